/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package autopilot

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_autopilot/internal/analysis"
	"github.com/friendsincode/grimnir_autopilot/internal/events"
	"github.com/friendsincode/grimnir_autopilot/internal/transition"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func record(bus *events.Bus) *recorder {
	r := &recorder{}
	bus.SubscribeAll(func(ev events.Event) error {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
		return nil
	})
	return r
}

func (r *recorder) topic(topic events.Topic) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.Topic == topic {
			out = append(out, ev)
		}
	}
	return out
}

type ritualCall struct {
	name     string
	from, to transition.Deck
	total    time.Duration
}

type fakeRunner struct {
	mu      sync.Mutex
	runs    []transition.Request
	rituals []ritualCall
	err     error
}

func (f *fakeRunner) Run(_ context.Context, req transition.Request) (transition.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, req)
	return transition.Result{Style: req.Style, From: req.From, To: req.To, Duration: req.Duration}, f.err
}

func (f *fakeRunner) RunRitual(_ context.Context, name string, from, to transition.Deck, total time.Duration) (transition.RitualResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rituals = append(f.rituals, ritualCall{name, from, to, total})
	return transition.RitualResult{Ritual: name}, f.err
}

func (f *fakeRunner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs) + len(f.rituals)
}

type harness struct {
	ctrl  *Controller
	bus   *events.Bus
	clock *fakeClock
	rec   *recorder
}

func newHarness(t *testing.T, runner func(*events.Bus, *fakeClock) Runner, cfg *Config) *harness {
	t.Helper()
	clock := newFakeClock()
	bus := events.NewBus(zerolog.Nop(), events.WithClock(clock.Now))
	rec := record(bus)
	ctrl, err := NewController(bus, runner(bus, clock), zerolog.Nop(), Options{
		Clock:  clock,
		Chance: fixedChance(0),
		Config: cfg,
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	t.Cleanup(ctrl.Close)
	return &harness{ctrl: ctrl, bus: bus, clock: clock, rec: rec}
}

func withFake(f *fakeRunner) func(*events.Bus, *fakeClock) Runner {
	return func(*events.Bus, *fakeClock) Runner { return f }
}

func withEngine(bus *events.Bus, clock *fakeClock) Runner {
	return transition.NewEngine(bus, zerolog.Nop(), transition.Options{
		Sleep: func(context.Context, time.Duration) bool { return true },
		Now:   clock.Now,
	})
}

func (h *harness) analyze(deck transition.Deck, a analysis.TrackAnalysis) {
	h.bus.Publish(events.TopicAnalysisComplete, AnalysisPayload{DeckID: string(deck), Analysis: a})
}

func (h *harness) play(deck transition.Deck) {
	h.bus.Publish(events.TopicDeckPlay, DeckPayload{DeckID: string(deck)})
}

func TestStartStopIdempotent(t *testing.T) {
	h := newHarness(t, withFake(&fakeRunner{}), nil)

	if !h.ctrl.Start() {
		t.Fatal("first Start returned false")
	}
	if h.ctrl.Start() {
		t.Fatal("second Start returned true")
	}
	if !h.ctrl.Stop() {
		t.Fatal("first Stop returned false")
	}
	if h.ctrl.Stop() {
		t.Fatal("second Stop returned true")
	}

	if n := len(h.rec.topic(events.TopicAutopilotStarted)); n != 1 {
		t.Fatalf("started events = %d, want 1", n)
	}
	stopped := h.rec.topic(events.TopicAutopilotStopped)
	if len(stopped) != 1 {
		t.Fatalf("stopped events = %d, want 1", len(stopped))
	}
	ev := stopped[0].Payload.(StoppedEvent)
	if ev.Stats.TracksPlayed != 0 {
		t.Fatalf("tracks played = %d, want 0", ev.Stats.TracksPlayed)
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"track_history":[]`) {
		t.Fatalf("stopped payload %s does not carry an empty history", raw)
	}
	if h.clock.pending() != 0 {
		t.Fatalf("pending timers after stop = %d", h.clock.pending())
	}
}

func TestEventsIgnoredWhileStopped(t *testing.T) {
	h := newHarness(t, withFake(&fakeRunner{}), nil)
	h.analyze(transition.DeckA, track(120, 0.5, "8A", "house"))
	h.play(transition.DeckA)

	if n := len(h.rec.topic(events.TopicTransitionScheduled)); n != 0 {
		t.Fatalf("scheduled while stopped: %d", n)
	}
	if st := h.ctrl.State(); st.Active || st.Session != nil {
		t.Fatalf("state = %+v", st)
	}
}

func TestPlaySchedulesSmartDelay(t *testing.T) {
	h := newHarness(t, withFake(&fakeRunner{}), nil)
	h.ctrl.Start()
	h.analyze(transition.DeckA, track(120, 0.5, "8A", "house"))
	h.play(transition.DeckA)

	scheduled := h.rec.topic(events.TopicTransitionScheduled)
	if len(scheduled) != 1 {
		t.Fatalf("scheduled events = %d, want 1", len(scheduled))
	}
	ev := scheduled[0].Payload.(ScheduledEvent)
	// (120s + 300s) / 2 * 0.75
	if ev.DelayMS != 157500 {
		t.Fatalf("delay = %dms, want 157500", ev.DelayMS)
	}
	if ev.CurrentDeck != transition.DeckA || ev.NextDeck != transition.DeckB {
		t.Fatalf("decks = %s/%s", ev.CurrentDeck, ev.NextDeck)
	}

	st := h.ctrl.State()
	if st.Session.Stats.TracksPlayed != 1 || !st.Session.TrackHistory[0].Played {
		t.Fatalf("play not recorded: %+v", st.Session)
	}
	if st.NextSwitchAt == nil {
		t.Fatal("NextSwitchAt not set")
	}
}

func TestPlayWithoutAnalysisSkipsScheduling(t *testing.T) {
	h := newHarness(t, withFake(&fakeRunner{}), nil)
	h.ctrl.Start()
	h.play(transition.DeckA)

	if n := len(h.rec.topic(events.TopicTransitionScheduled)); n != 0 {
		t.Fatalf("scheduled events = %d, want 0", n)
	}
}

func TestAutoSwitchDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoSwitchEnabled = false
	runner := &fakeRunner{}
	h := newHarness(t, withFake(runner), &cfg)
	h.ctrl.Start()
	h.analyze(transition.DeckA, track(120, 0.5, "8A", "house"))
	h.analyze(transition.DeckB, track(122, 0.55, "8A", "house"))
	h.play(transition.DeckA)
	h.clock.Advance(time.Hour)

	if n := len(h.rec.topic(events.TopicTransitionScheduled)); n != 0 {
		t.Fatalf("scheduled events = %d, want 0", n)
	}
	if runner.calls() != 0 {
		t.Fatalf("runner called %d times", runner.calls())
	}
}

func TestTimerFiresAndSwapsDecks(t *testing.T) {
	h := newHarness(t, withEngine, nil)
	h.ctrl.Start()
	h.analyze(transition.DeckA, track(120, 0.5, "8A", "house"))
	h.play(transition.DeckA)
	h.analyze(transition.DeckB, track(122, 0.55, "8A", "house"))
	h.clock.Advance(157500 * time.Millisecond)

	switches := h.rec.topic(events.TopicSwitchExecuted)
	if len(switches) != 1 {
		t.Fatalf("switch events = %d, want 1", len(switches))
	}
	sw := switches[0].Payload.(SwitchEvent)
	if sw.Style != transition.StyleMelodyMerge || sw.DurationMS != 8000 {
		t.Fatalf("switch = %+v, want melody_merge over 8s", sw)
	}
	if n := len(h.rec.topic(events.TopicTransitionCompleted)); n != 1 {
		t.Fatalf("completed events = %d, want 1", n)
	}

	st := h.ctrl.State()
	if st.Session.CurrentDeck != transition.DeckB || st.Session.NextDeck != transition.DeckA {
		t.Fatalf("decks after swap = %s/%s", st.Session.CurrentDeck, st.Session.NextDeck)
	}
	if st.Session.Stats.TransitionsMade != 1 || st.Session.Stats.RitualsPerformed != 0 {
		t.Fatalf("stats = %+v", st.Session.Stats)
	}

	needed := h.rec.topic(events.TopicNextTrackNeeded)
	if len(needed) != 1 {
		t.Fatalf("next-track-needed events = %d, want 1", len(needed))
	}
	need := needed[0].Payload.(NextTrackNeeded)
	if need.Deck != transition.DeckA || need.Reason != ReasonDeckFreed {
		t.Fatalf("next track needed = %+v", need)
	}
	if need.Suggestion.Key != "8A" || need.Suggestion.BPMRange != [2]float64{112, 132} {
		t.Fatalf("suggestion = %+v", need.Suggestion)
	}
}

func TestIncomingDeckPlayBeforeCompletion(t *testing.T) {
	h := newHarness(t, withEngine, nil)
	// A mixer starts the incoming deck as soon as the crossfade begins.
	h.bus.Subscribe(events.TopicTransitionStarted, func(ev events.Event) error {
		at := ev.Payload.(transition.ActiveTransition)
		if at.Ritual == "" && at.From != at.To {
			h.play(at.To)
		}
		return nil
	})
	h.ctrl.Start()
	h.analyze(transition.DeckA, track(120, 0.5, "8A", "house"))
	h.play(transition.DeckA)
	h.analyze(transition.DeckB, track(122, 0.55, "8A", "house"))
	h.clock.Advance(157500 * time.Millisecond)

	if n := len(h.rec.topic(events.TopicTransitionCompleted)); n != 1 {
		t.Fatalf("completed events = %d, want 1", n)
	}
	st := h.ctrl.State()
	if st.Session.CurrentDeck != transition.DeckB || st.Session.NextDeck != transition.DeckA {
		t.Fatalf("decks = %s/%s, want b/a", st.Session.CurrentDeck, st.Session.NextDeck)
	}
	if st.Session.Stats.TransitionsMade != 1 {
		t.Fatalf("transitions made = %d, want 1", st.Session.Stats.TransitionsMade)
	}
	needed := h.rec.topic(events.TopicNextTrackNeeded)
	if len(needed) != 1 {
		t.Fatalf("next-track-needed events = %d, want 1", len(needed))
	}
	if need := needed[0].Payload.(NextTrackNeeded); need.Deck != transition.DeckA || need.Reason != ReasonDeckFreed {
		t.Fatalf("next track needed = %+v", need)
	}
}

type blockingRunner struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingRunner) Run(ctx context.Context, req transition.Request) (transition.Result, error) {
	close(b.entered)
	<-b.release
	return transition.Result{Style: req.Style, From: req.From, To: req.To}, nil
}

func (b *blockingRunner) RunRitual(ctx context.Context, name string, from, to transition.Deck, total time.Duration) (transition.RitualResult, error) {
	close(b.entered)
	<-b.release
	return transition.RitualResult{Ritual: name}, nil
}

func TestDrainWaitsForRunningTransition(t *testing.T) {
	runner := &blockingRunner{entered: make(chan struct{}), release: make(chan struct{})}
	h := newHarness(t, func(*events.Bus, *fakeClock) Runner { return runner }, nil)
	h.ctrl.Start()
	h.analyze(transition.DeckA, track(120, 0.5, "8A", "house"))
	h.analyze(transition.DeckB, track(122, 0.55, "8A", "house"))
	h.play(transition.DeckA)

	go h.clock.Advance(10 * time.Minute)
	select {
	case <-runner.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("transition never started")
	}

	drained := make(chan struct{})
	go func() {
		h.ctrl.Drain()
		close(drained)
	}()
	select {
	case <-drained:
		t.Fatal("Drain returned while a transition was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(runner.release)
	select {
	case <-drained:
	case <-time.After(5 * time.Second):
		t.Fatal("Drain never returned")
	}
}

func TestDrainRefusesLaterCallbacks(t *testing.T) {
	runner := &fakeRunner{}
	h := newHarness(t, withFake(runner), nil)
	h.ctrl.Start()
	h.analyze(transition.DeckA, track(120, 0.5, "8A", "house"))
	h.analyze(transition.DeckB, track(122, 0.55, "8A", "house"))
	h.play(transition.DeckA)

	h.ctrl.Drain()
	h.clock.Advance(time.Hour)
	if runner.calls() != 0 {
		t.Fatalf("runner called %d times after Drain", runner.calls())
	}
	if n := len(h.rec.topic(events.TopicEnergyUpdate)); n != 0 {
		t.Fatalf("energy updates after Drain = %d", n)
	}
}

func TestRitualCompletionCountsRitual(t *testing.T) {
	h := newHarness(t, withEngine, nil)
	h.ctrl.Start()
	h.analyze(transition.DeckA, track(124, 0.35, "8A", "house"))
	h.play(transition.DeckA)
	h.analyze(transition.DeckB, track(124, 0.5, "3B", "house"))
	if err := h.ctrl.SwitchNow(); err != nil {
		t.Fatalf("SwitchNow: %v", err)
	}

	rituals := h.rec.topic(events.TopicRitualExecuted)
	if len(rituals) != 1 {
		t.Fatalf("ritual events = %d, want 1", len(rituals))
	}
	ev := rituals[0].Payload.(RitualEvent)
	if ev.Ritual != transition.RitualInvocation || ev.DurationMS != 18000 {
		t.Fatalf("ritual = %+v, want INVOCATION over 18s", ev)
	}

	st := h.ctrl.State()
	if st.Session.CurrentDeck != transition.DeckB {
		t.Fatalf("current deck = %s, want b", st.Session.CurrentDeck)
	}
	if st.Session.Stats.TransitionsMade != 1 || st.Session.Stats.RitualsPerformed != 1 {
		t.Fatalf("stats = %+v, want one ritual transition", st.Session.Stats)
	}
}

func TestMissingAnalysisSkipsCycle(t *testing.T) {
	runner := &fakeRunner{}
	h := newHarness(t, withFake(runner), nil)
	h.ctrl.Start()
	h.analyze(transition.DeckA, track(120, 0.5, "8A", "house"))
	h.play(transition.DeckA)
	h.clock.Advance(10 * time.Minute)

	if runner.calls() != 0 {
		t.Fatalf("runner called %d times", runner.calls())
	}
	needed := h.rec.topic(events.TopicNextTrackNeeded)
	if len(needed) != 1 {
		t.Fatalf("next-track-needed events = %d, want 1", len(needed))
	}
	need := needed[0].Payload.(NextTrackNeeded)
	if need.Deck != transition.DeckB || need.Reason != ReasonMissingAnalysis {
		t.Fatalf("next track needed = %+v", need)
	}
}

func TestPauseCancelsOnlyForCurrentDeck(t *testing.T) {
	runner := &fakeRunner{}
	h := newHarness(t, withFake(runner), nil)
	h.ctrl.Start()
	h.analyze(transition.DeckA, track(120, 0.5, "8A", "house"))
	h.analyze(transition.DeckB, track(122, 0.55, "8A", "house"))
	h.play(transition.DeckA)

	h.bus.Publish(events.TopicDeckPause, DeckPayload{DeckID: "b"})
	if h.ctrl.State().NextSwitchAt == nil {
		t.Fatal("pausing the next deck cancelled the timer")
	}
	h.bus.Publish(events.TopicDeckPause, DeckPayload{DeckID: "a"})
	if h.ctrl.State().NextSwitchAt != nil {
		t.Fatal("pausing the current deck kept the timer")
	}

	h.clock.Advance(time.Hour)
	if runner.calls() != 0 {
		t.Fatalf("runner called %d times after pause", runner.calls())
	}
}

func TestReplacedTimerNeverFires(t *testing.T) {
	runner := &fakeRunner{}
	h := newHarness(t, withFake(runner), nil)
	// Stop does not prevent callbacks, so only the generation check can.
	h.clock.leakyStop = true
	h.ctrl.Start()
	h.analyze(transition.DeckA, track(120, 0.5, "8A", "house"))
	h.analyze(transition.DeckB, track(122, 0.55, "8A", "house"))
	h.play(transition.DeckA)
	h.play(transition.DeckA)
	h.play(transition.DeckA)
	h.clock.Advance(10 * time.Minute)

	if runner.calls() != 1 {
		t.Fatalf("runner called %d times, want 1", runner.calls())
	}
}

func TestStopCancelsPendingTimer(t *testing.T) {
	runner := &fakeRunner{}
	h := newHarness(t, withFake(runner), nil)
	h.clock.leakyStop = true
	h.ctrl.Start()
	h.analyze(transition.DeckA, track(120, 0.5, "8A", "house"))
	h.analyze(transition.DeckB, track(122, 0.55, "8A", "house"))
	h.play(transition.DeckA)
	h.ctrl.Stop()
	h.clock.Advance(time.Hour)

	if runner.calls() != 0 {
		t.Fatalf("runner called %d times after stop", runner.calls())
	}
	if n := len(h.rec.topic(events.TopicEnergyUpdate)); n != 0 {
		t.Fatalf("energy updates after stop = %d", n)
	}
}

func TestBusyEngineIsNoop(t *testing.T) {
	runner := &fakeRunner{err: transition.ErrTransitionInProgress}
	h := newHarness(t, withFake(runner), nil)
	h.ctrl.Start()
	h.analyze(transition.DeckA, track(120, 0.5, "8A", "house"))
	h.analyze(transition.DeckB, track(122, 0.55, "8A", "house"))
	h.play(transition.DeckA)
	h.clock.Advance(10 * time.Minute)

	if runner.calls() != 1 {
		t.Fatalf("runner called %d times, want 1", runner.calls())
	}
	st := h.ctrl.State()
	if st.Session.CurrentDeck != transition.DeckA || st.Session.Stats.TransitionsMade != 0 {
		t.Fatalf("session changed after rejection: %+v", st.Session)
	}
}

func TestCompletionSwapRules(t *testing.T) {
	completed := func(from, to transition.Deck, ritual string) transition.CompletedEvent {
		return transition.CompletedEvent{ActiveTransition: transition.ActiveTransition{From: from, To: to, Ritual: ritual}}
	}
	raw, _ := json.Marshal(completed(transition.DeckA, transition.DeckB, ""))

	tests := []struct {
		name    string
		topic   events.Topic
		payload any
		swapped bool
		counted bool
	}{
		{"to next deck", events.TopicTransitionCompleted, completed(transition.DeckA, transition.DeckB, ""), true, true},
		// The incoming deck already reported play.
		{"to current deck", events.TopicTransitionCompleted, completed(transition.DeckB, transition.DeckA, ""), false, true},
		{"same deck pass", events.TopicTransitionCompleted, completed(transition.DeckA, transition.DeckA, ""), false, false},
		{"ritual step", events.TopicTransitionCompleted, completed(transition.DeckA, transition.DeckB, transition.RitualAscension), false, false},
		{"remote node", events.TopicTransitionCompleted, events.Remote{Origin: "other", Data: raw}, false, false},
		{"ritual to next deck", events.TopicRitualCompleted, transition.RitualCompletedEvent{
			RitualStartedEvent: transition.RitualStartedEvent{Ritual: transition.RitualAscension, From: transition.DeckA, To: transition.DeckB},
		}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, withFake(&fakeRunner{}), nil)
			h.ctrl.Start()
			h.bus.Publish(tt.topic, tt.payload)

			st := h.ctrl.State()
			swapped := st.Session.CurrentDeck == transition.DeckB
			if swapped != tt.swapped {
				t.Fatalf("swapped = %v, want %v", swapped, tt.swapped)
			}
			made := st.Session.Stats.TransitionsMade
			if (made == 1) != tt.counted {
				t.Fatalf("transitions made = %d, counted %v", made, tt.counted)
			}
			if n := len(h.rec.topic(events.TopicNextTrackNeeded)); (n == 1) != tt.counted {
				t.Fatalf("next-track-needed events = %d, counted %v", n, tt.counted)
			}
		})
	}
}

func TestRemoteAnalysisAccepted(t *testing.T) {
	h := newHarness(t, withFake(&fakeRunner{}), nil)
	h.ctrl.Start()
	data, _ := json.Marshal(AnalysisPayload{DeckID: "a", Analysis: track(126, 0.6, "8A", "house")})
	h.bus.Publish(events.TopicAnalysisComplete, events.Remote{Origin: "node-2", Data: data})

	st := h.ctrl.State()
	if st.Session.Stats.TracksAnalyzed != 1 || st.Session.Stats.AvgBPM != 126 {
		t.Fatalf("remote analysis not recorded: %+v", st.Session.Stats)
	}
}

func TestInvalidAnalysisRejected(t *testing.T) {
	h := newHarness(t, withFake(&fakeRunner{}), nil)
	h.ctrl.Start()
	h.analyze(transition.DeckA, track(0, 0.5, "8A", "house"))
	h.bus.Publish(events.TopicAnalysisComplete, AnalysisPayload{DeckID: "c", Analysis: track(120, 0.5, "8A", "house")})

	if n := h.ctrl.State().Session.Stats.TracksAnalyzed; n != 0 {
		t.Fatalf("tracks analyzed = %d, want 0", n)
	}
}

func TestSessionAverages(t *testing.T) {
	h := newHarness(t, withFake(&fakeRunner{}), nil)
	h.ctrl.Start()
	h.analyze(transition.DeckA, track(120, 0.4, "8A", "house"))
	h.analyze(transition.DeckB, track(130, 0.8, "8A", "house"))

	st := h.ctrl.State().Session.Stats
	if st.TracksAnalyzed != 2 || st.AvgBPM != 125 {
		t.Fatalf("stats = %+v", st)
	}
	if d := st.AvgEnergyLevel - 0.6; d > 1e-9 || d < -1e-9 {
		t.Fatalf("avg energy = %v, want 0.6", st.AvgEnergyLevel)
	}
}

func TestEnergySampler(t *testing.T) {
	h := newHarness(t, withFake(&fakeRunner{}), nil)
	h.ctrl.Start()
	h.analyze(transition.DeckA, track(120, 0.6, "8A", "house"))
	h.play(transition.DeckA)
	h.clock.Advance(25 * time.Second)

	updates := h.rec.topic(events.TopicEnergyUpdate)
	if len(updates) != 2 {
		t.Fatalf("energy updates = %d, want 2", len(updates))
	}
	u := updates[1].Payload.(EnergyUpdate)
	if u.Current != 0.6 || u.Average != 0.6 || u.Trend != TrendStable {
		t.Fatalf("update = %+v", u)
	}
}

func TestUpdateConfigAllOrNothing(t *testing.T) {
	h := newHarness(t, withFake(&fakeRunner{}), nil)
	before := h.ctrl.Config()

	timing := TimingFixed
	point := 1.5
	if _, err := h.ctrl.UpdateConfig(ConfigPatch{TransitionTiming: &timing, TransitionPoint: &point}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
	if h.ctrl.Config() != before {
		t.Fatalf("config changed by rejected patch: %+v", h.ctrl.Config())
	}
	if n := len(h.rec.topic(events.TopicConfigUpdated)); n != 0 {
		t.Fatalf("config-updated events = %d after rejection", n)
	}

	point = 0.5
	got, err := h.ctrl.UpdateConfig(ConfigPatch{TransitionTiming: &timing, TransitionPoint: &point})
	if err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if got.TransitionTiming != TimingFixed || got.TransitionPoint != 0.5 || got.MinTrackDuration != before.MinTrackDuration {
		t.Fatalf("config = %+v", got)
	}
	if n := len(h.rec.topic(events.TopicConfigUpdated)); n != 1 {
		t.Fatalf("config-updated events = %d, want 1", n)
	}
}

func TestSwitchNowRequiresSession(t *testing.T) {
	h := newHarness(t, withFake(&fakeRunner{}), nil)
	if err := h.ctrl.SwitchNow(); !errors.Is(err, ErrNotActive) {
		t.Fatalf("err = %v, want ErrNotActive", err)
	}
}

func TestNewControllerRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTrackDuration = time.Second
	bus := events.NewBus(zerolog.Nop())
	if _, err := NewController(bus, &fakeRunner{}, zerolog.Nop(), Options{Config: &cfg}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
}
