/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/friendsincode/grimnir_autopilot/internal/autopilot"
	"github.com/friendsincode/grimnir_autopilot/internal/events"
	"github.com/friendsincode/grimnir_autopilot/internal/journal"
	"github.com/friendsincode/grimnir_autopilot/internal/logbuffer"
	"github.com/friendsincode/grimnir_autopilot/internal/transition"
)

const maxBodyBytes = 64 << 10

// Deps are the services behind the control API. Journal, Logs, Limiter and
// Auth are optional. Auth guards every route that can change the mix.
type Deps struct {
	Bus        *events.Bus
	Engine     *transition.Engine
	Controller *autopilot.Controller
	Ballot     *transition.Ballot
	Journal    *journal.Journal
	Logs       *logbuffer.Buffer
	Limiter    *rate.Limiter
	Auth       func(http.Handler) http.Handler
}

// API serves the autopilot control surface.
type API struct {
	bus        *events.Bus
	engine     *transition.Engine
	controller *autopilot.Controller
	ballot     *transition.Ballot
	journal    *journal.Journal
	logs       *logbuffer.Buffer
	limiter    *rate.Limiter
	protect    func(http.Handler) http.Handler
	logger     zerolog.Logger

	outbound map[events.Topic]bool
	wg       sync.WaitGroup
}

// NewAPI creates the handler set.
func NewAPI(deps Deps, logger zerolog.Logger) *API {
	out := make(map[events.Topic]bool, len(events.Outbound))
	for _, t := range events.Outbound {
		out[t] = true
	}
	protect := deps.Auth
	if protect == nil {
		protect = func(next http.Handler) http.Handler { return next }
	}
	return &API{
		bus:        deps.Bus,
		engine:     deps.Engine,
		controller: deps.Controller,
		ballot:     deps.Ballot,
		journal:    deps.Journal,
		logs:       deps.Logs,
		limiter:    deps.Limiter,
		protect:    protect,
		logger:     logger.With().Str("component", "api").Logger(),
		outbound:   out,
	}
}

// Routes mounts the API under r.
func (a *API) Routes(r chi.Router) {
	r.Route("/autopilot", func(r chi.Router) {
		r.Get("/", a.handleAutopilotState)
		r.Get("/config", a.handleConfigGet)
		r.Group(func(r chi.Router) {
			r.Use(a.protect)
			r.Post("/start", a.handleAutopilotStart)
			r.Post("/stop", a.handleAutopilotStop)
			r.Post("/switch", a.handleAutopilotSwitch)
			r.Patch("/config", a.handleConfigPatch)
		})
	})

	r.Route("/transitions", func(r chi.Router) {
		r.With(a.protect).Post("/", a.handleTransitionTrigger)
		r.Get("/active", a.handleTransitionActive)
	})
	r.Get("/styles", a.handleStyles)

	r.Route("/rituals", func(r chi.Router) {
		r.Get("/", a.handleRituals)
		r.Get("/ballot", a.handleBallotTally)
		r.Group(func(r chi.Router) {
			r.Use(a.protect)
			r.Post("/ballot/votes", a.handleBallotVote)
			r.Post("/ballot/finalize", a.handleBallotFinalize)
			r.Post("/{key}", a.handleRitualTrigger)
		})
	})

	r.Get("/events", a.handleEvents)
	r.Get("/logs", a.handleLogs)
	r.With(a.protect).Get("/stream", a.handleStream)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", a.handleSessions)
		r.Get("/{id}", a.handleSession)
	})
}

// Wait blocks until background work started by handlers has finished.
func (a *API) Wait() {
	a.wg.Wait()
}

func (a *API) handleAutopilotState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.controller.State())
}

func (a *API) handleAutopilotStart(w http.ResponseWriter, r *http.Request) {
	changed := a.controller.Start()
	writeJSON(w, http.StatusOK, map[string]any{
		"active":  true,
		"changed": changed,
		"state":   a.controller.State(),
	})
}

func (a *API) handleAutopilotStop(w http.ResponseWriter, r *http.Request) {
	changed := a.controller.Stop()
	writeJSON(w, http.StatusOK, map[string]any{
		"active":  false,
		"changed": changed,
	})
}

// handleAutopilotSwitch runs the next decision now. The transition itself
// runs in the background; the response only acknowledges it.
func (a *API) handleAutopilotSwitch(w http.ResponseWriter, r *http.Request) {
	if !a.controller.Active() {
		writeError(w, http.StatusConflict, "autopilot_not_active")
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.controller.SwitchNow(); err != nil {
			a.logger.Warn().Err(err).Msg("manual switch failed")
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "switching"})
}

func (a *API) handleConfigGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.controller.Config())
}

func (a *API) handleConfigPatch(w http.ResponseWriter, r *http.Request) {
	var patch autopilot.ConfigPatch
	if err := decodeBody(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if patch.Empty() {
		writeError(w, http.StatusBadRequest, "empty_patch")
		return
	}
	cfg, err := a.controller.UpdateConfig(patch)
	if err != nil {
		if errors.Is(err, autopilot.ErrInvalidConfig) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error":   "invalid_config",
				"message": err.Error(),
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "update_failed")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (a *API) handleTransitionActive(w http.ResponseWriter, r *http.Request) {
	at, ok := a.engine.Active()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"active": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": true, "transition": at})
}

// allow applies the manual trigger limit.
func (a *API) allow(w http.ResponseWriter) bool {
	if a.limiter == nil || a.limiter.Allow() {
		return true
	}
	w.Header().Set("Retry-After", "1")
	writeError(w, http.StatusTooManyRequests, "rate_limited")
	return false
}

func (a *API) handleTransitionTrigger(w http.ResponseWriter, r *http.Request) {
	var p transition.TriggerPayload
	if err := decodeBody(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	req, err := p.Request()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request", "message": err.Error()})
		return
	}
	if _, ok := transition.LookupStyle(req.Style); !ok {
		writeError(w, http.StatusBadRequest, "unknown_style")
		return
	}
	if a.engine.Busy() {
		writeError(w, http.StatusConflict, "transition_in_progress")
		return
	}
	if !a.allow(w) {
		return
	}

	a.bus.Publish(events.TopicTransitionTrigger, transition.TriggerPayload{
		Style:      req.Style,
		FromDeck:   string(req.From),
		ToDeck:     string(req.To),
		DurationMS: req.Duration.Milliseconds(),
		Effects:    req.EffectHints,
	})
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":      "triggered",
		"style":       req.Style,
		"from_deck":   req.From,
		"to_deck":     req.To,
		"duration_ms": req.Duration.Milliseconds(),
	})
}

func (a *API) handleStyles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, transition.Styles())
}

func (a *API) handleRituals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.engine.Presets())
}

type ritualRequest struct {
	FromDeck   string `json:"from_deck,omitempty"`
	ToDeck     string `json:"to_deck,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// decks applies the a to b default of manual triggers.
func (rr ritualRequest) decks() (transition.Deck, transition.Deck, error) {
	from, to := rr.FromDeck, rr.ToDeck
	if from == "" {
		from = string(transition.DeckA)
	}
	if to == "" {
		to = string(transition.DeckB)
	}
	f, err := transition.ParseDeck(from)
	if err != nil {
		return "", "", err
	}
	t, err := transition.ParseDeck(to)
	if err != nil {
		return "", "", err
	}
	return f, t, nil
}

func (rr ritualRequest) duration() time.Duration {
	if rr.DurationMS <= 0 {
		return transition.DefaultDuration
	}
	return time.Duration(rr.DurationMS) * time.Millisecond
}

func (a *API) handleRitualTrigger(w http.ResponseWriter, r *http.Request) {
	preset, err := a.engine.Preset(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown_ritual")
		return
	}
	var body ritualRequest
	if err := decodeOptionalBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	from, to, err := body.decks()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request", "message": err.Error()})
		return
	}
	if a.engine.Busy() {
		writeError(w, http.StatusConflict, "transition_in_progress")
		return
	}
	if !a.allow(w) {
		return
	}

	a.bus.Publish(events.TopicRitualTrigger, transition.RitualTriggerPayload{
		Ritual:     preset.Key,
		FromDeck:   string(from),
		ToDeck:     string(to),
		DurationMS: body.duration().Milliseconds(),
	})
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":      "triggered",
		"ritual":      preset.Key,
		"from_deck":   from,
		"to_deck":     to,
		"duration_ms": body.duration().Milliseconds(),
	})
}

func (a *API) handleBallotTally(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.ballot.Tally())
}

type voteRequest struct {
	Voter  string `json:"voter"`
	Ritual string `json:"ritual"`
}

func (a *API) handleBallotVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := a.ballot.Cast(req.Voter, req.Ritual); err != nil {
		if errors.Is(err, transition.ErrUnknownRitual) {
			writeError(w, http.StatusNotFound, "unknown_ritual")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_vote")
		return
	}
	writeJSON(w, http.StatusOK, a.ballot.Tally())
}

func (a *API) handleBallotFinalize(w http.ResponseWriter, r *http.Request) {
	var body ritualRequest
	if err := decodeOptionalBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	from, to, err := body.decks()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, a.ballot.Finalize(from, to, body.duration()))
}

func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_limit")
		return
	}
	topic := events.Topic(r.URL.Query().Get("topic"))
	history := a.bus.History(topic, limit)
	if history == nil {
		history = []events.Event{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	if a.logs == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_disabled")
		return
	}
	limit, err := queryInt(r, "limit", 200)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_limit")
		return
	}
	q := logbuffer.Query{
		Level:     r.URL.Query().Get("level"),
		Component: r.URL.Query().Get("component"),
		Search:    r.URL.Query().Get("search"),
		Limit:     limit,
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		q.Since = t
	}
	writeJSON(w, http.StatusOK, a.logs.Find(q))
}

func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	if a.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal_disabled")
		return
	}
	limit, err := queryInt(r, "limit", journal.DefaultLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_limit")
		return
	}
	sessions, err := a.journal.Sessions(r.Context(), limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("list sessions failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	if a.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "journal_disabled")
		return
	}
	id := chi.URLParam(r, "id")
	rec, err := a.journal.Session(r.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "session_not_found")
			return
		}
		a.logger.Error().Err(err).Str("session_id", id).Msg("load session failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	transitions, err := a.journal.Transitions(r.Context(), id, 0)
	if err != nil {
		a.logger.Error().Err(err).Str("session_id", id).Msg("load transitions failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":     rec,
		"transitions": transitions,
	})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New("invalid " + key)
	}
	return v, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// decodeOptionalBody treats a missing body as an empty object.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := decodeBody(w, r, dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
