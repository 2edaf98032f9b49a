/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package transition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_autopilot/internal/events"
)

// recorder captures every event published on a bus.
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

func (r *recorder) topics() []events.Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Topic, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Topic
	}
	return out
}

func noSleep(ctx context.Context, d time.Duration) bool { return true }

func newTestEngine(t *testing.T, opts Options) (*Engine, *events.Bus, *recorder) {
	t.Helper()
	bus := events.NewBus(zerolog.Nop(), events.WithHistorySize(10000))
	rec := record(bus)
	if opts.Sleep == nil {
		opts.Sleep = noSleep
	}
	return NewEngine(bus, zerolog.Nop(), opts), bus, rec
}

func crossfaderValues(rec *recorder) []float64 {
	var out []float64
	for _, ev := range rec.topic(events.TopicMixerCrossfader) {
		out = append(out, ev.Payload.(CrossfaderCommand).Value)
	}
	return out
}

func TestRunProgressAndFinalCrossfader(t *testing.T) {
	tests := []struct {
		style string
		from  Deck
		to    Deck
	}{
		{StyleCrossfade, DeckA, DeckB},
		{StyleCrossfade, DeckB, DeckA},
		{StyleDropEcho, DeckA, DeckB},
		{StylePulseSync, DeckB, DeckA},
		{StyleSilenceRitual, DeckA, DeckB},
		{StyleGhostFade, DeckA, DeckA},
	}
	for _, tt := range tests {
		t.Run(tt.style+"_"+string(tt.from)+string(tt.to), func(t *testing.T) {
			engine, _, rec := newTestEngine(t, Options{})
			res, err := engine.Run(context.Background(), Request{Style: tt.style, From: tt.from, To: tt.to, Duration: 4 * time.Second})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res.Style != tt.style || res.Fallback {
				t.Fatalf("result = %+v", res)
			}

			progress := rec.topic(events.TopicTransitionProgress)
			style, _ := LookupStyle(tt.style)
			if len(progress) != style.Steps+1 {
				t.Fatalf("progress events = %d, want %d", len(progress), style.Steps+1)
			}
			prev := -1.0
			for _, ev := range progress {
				p := ev.Payload.(ProgressEvent).Progress
				if p < prev {
					t.Fatalf("progress decreased: %v after %v", p, prev)
				}
				prev = p
			}
			if prev != 1 {
				t.Fatalf("final progress = %v, want 1", prev)
			}

			values := crossfaderValues(rec)
			if got := values[len(values)-1]; got != tt.to.Position() {
				t.Fatalf("final crossfader = %v, want %v", got, tt.to.Position())
			}
			// The blend toward the target deck never moves backwards.
			span := tt.to.Position() - tt.from.Position()
			last := -1.0
			for _, v := range values {
				w := 0.0
				if span != 0 {
					w = (v - tt.from.Position()) / span
				} else if v != tt.from.Position() {
					t.Fatalf("same-deck pass moved the crossfader to %v", v)
				}
				if w < last-1e-12 {
					t.Fatalf("crossfader moved back toward source: %v after %v", w, last)
				}
				last = w
			}

			if len(rec.topic(events.TopicTransitionStarted)) != 1 || len(rec.topic(events.TopicTransitionCompleted)) != 1 {
				t.Fatal("expected exactly one started and one completed event")
			}
			if _, ok := engine.Active(); ok || engine.Busy() {
				t.Fatal("slot still held after completion")
			}
		})
	}
}

func TestRunEventOrder(t *testing.T) {
	engine, _, rec := newTestEngine(t, Options{})
	if _, err := engine.Run(context.Background(), Request{Style: StyleCut, From: DeckA, To: DeckB}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []events.Topic{
		events.TopicTransitionStarted,
		events.TopicMixerCrossfader,
		events.TopicTransitionProgress,
		events.TopicMixerCrossfader,
		events.TopicTransitionCompleted,
	}
	got := rec.topics()
	if len(got) != len(want) {
		t.Fatalf("topics = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("topics = %v, want %v", got, want)
		}
	}
}

func TestRunUnknownStyleFallsBack(t *testing.T) {
	engine, _, rec := newTestEngine(t, Options{})
	res, err := engine.Run(context.Background(), Request{Style: "spin_back", From: DeckA, To: DeckB, Duration: time.Second})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Fallback || res.Style != StyleCrossfade {
		t.Fatalf("result = %+v, want crossfade fallback", res)
	}
	started := rec.topic(events.TopicTransitionStarted)[0].Payload.(ActiveTransition)
	if started.Style != StyleCrossfade {
		t.Fatalf("started style = %s", started.Style)
	}
}

func TestRunRejectsInvalidDecks(t *testing.T) {
	engine, _, _ := newTestEngine(t, Options{})
	_, err := engine.Run(context.Background(), Request{Style: StyleCut, From: "x", To: DeckB})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestSleepsSpreadAcrossDuration(t *testing.T) {
	var mu sync.Mutex
	var total time.Duration
	calls := 0
	engine, _, _ := newTestEngine(t, Options{Sleep: func(ctx context.Context, d time.Duration) bool {
		mu.Lock()
		total += d
		calls++
		mu.Unlock()
		return true
	}})
	if _, err := engine.Run(context.Background(), Request{Style: StyleCrossfade, From: DeckA, To: DeckB, Duration: 10 * time.Second}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 100 {
		t.Fatalf("sleep calls = %d, want 100", calls)
	}
	if total != 10*time.Second {
		t.Fatalf("total sleep = %v, want 10s", total)
	}
}

// blockingSleep parks the first step until release is closed.
type blockingSleep struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingSleep() *blockingSleep {
	return &blockingSleep{entered: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingSleep) sleep(ctx context.Context, d time.Duration) bool {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return true
}

func TestSecondRunIsRejectedWhileRunning(t *testing.T) {
	block := newBlockingSleep()
	engine, _, rec := newTestEngine(t, Options{Sleep: block.sleep})

	done := make(chan error, 1)
	go func() {
		_, err := engine.Run(context.Background(), Request{Style: StyleCrossfade, From: DeckA, To: DeckB, Duration: time.Second})
		done <- err
	}()
	<-block.entered

	before, ok := engine.Active()
	if !ok {
		t.Fatal("no active transition while running")
	}

	_, err := engine.Run(context.Background(), Request{Style: StyleCut, From: DeckB, To: DeckA})
	if !errors.Is(err, ErrTransitionInProgress) {
		t.Fatalf("second Run err = %v, want ErrTransitionInProgress", err)
	}
	_, err = engine.RunRitual(context.Background(), RitualMeditation, DeckA, DeckB, time.Second)
	if !errors.Is(err, ErrTransitionInProgress) {
		t.Fatalf("RunRitual err = %v, want ErrTransitionInProgress", err)
	}

	after, _ := engine.Active()
	if after.ID != before.ID || after.Style != StyleCrossfade {
		t.Fatalf("active transition changed: %+v -> %+v", before, after)
	}
	rejected := rec.topic(events.TopicTransitionRejected)
	if len(rejected) != 2 || rejected[0].Payload.(RejectedEvent).ActiveID != before.ID {
		t.Fatalf("rejected events = %+v", rejected)
	}

	close(block.release)
	if err := <-done; err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if got := len(rec.topic(events.TopicTransitionStarted)); got != 1 {
		t.Fatalf("started events = %d, want 1", got)
	}
}

func TestConcurrentRunsHoldOneSlot(t *testing.T) {
	block := newBlockingSleep()
	engine, _, _ := newTestEngine(t, Options{Sleep: block.sleep})

	const callers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, rejected := 0, 0
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Run(context.Background(), Request{Style: StyleCrossfade, From: DeckA, To: DeckB, Duration: time.Second})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrTransitionInProgress):
				rejected++
			default:
				errs <- err
			}
		}()
	}
	<-block.entered
	close(block.release)
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}
	// Late callers may start after the first completes, but never alongside it.
	if ok < 1 || ok+rejected != callers {
		t.Fatalf("ok=%d rejected=%d", ok, rejected)
	}
}

func TestCancelledContextFastForwards(t *testing.T) {
	engine, _, rec := newTestEngine(t, Options{Sleep: sleepContext})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	res, err := engine.Run(ctx, Request{Style: StyleFilterSweep, From: DeckA, To: DeckB, Duration: time.Hour})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("cancelled transition did not fast-forward")
	}
	if !res.FastForwarded {
		t.Fatal("result not marked fast-forwarded")
	}
	progress := rec.topic(events.TopicTransitionProgress)
	if len(progress) != 2 || progress[1].Payload.(ProgressEvent).Progress != 1 {
		t.Fatalf("progress events = %d", len(progress))
	}
	var resets int
	for _, ev := range rec.topic(events.TopicEffectFilter) {
		if ev.Payload.(FilterCommand).Type == FilterReset {
			resets++
		}
	}
	if resets != 2 {
		t.Fatalf("filter resets = %d, want 2", resets)
	}
	if len(rec.topic(events.TopicTransitionCompleted)) != 1 {
		t.Fatal("completion not published")
	}
}

func TestRunRitualSequence(t *testing.T) {
	engine, _, rec := newTestEngine(t, Options{})
	total := 1001 * time.Millisecond
	res, err := engine.RunRitual(context.Background(), "invocation", DeckA, DeckB, total)
	if err != nil {
		t.Fatalf("RunRitual: %v", err)
	}
	if res.Fallback || res.Ritual != RitualInvocation {
		t.Fatalf("result = %+v", res)
	}
	if res.Duration() != total {
		t.Fatalf("slices sum to %v, want %v", res.Duration(), total)
	}
	for _, step := range res.Steps {
		if d := step.Duration - total/2; d < 0 || d > time.Millisecond {
			t.Fatalf("slice %v not within rounding of %v", step.Duration, total/2)
		}
	}

	started := rec.topic(events.TopicTransitionStarted)
	if len(started) != 2 {
		t.Fatalf("inner transitions = %d, want 2", len(started))
	}
	first := started[0].Payload.(ActiveTransition)
	second := started[1].Payload.(ActiveTransition)
	if first.Style != StyleGhostFade || first.From != DeckA || first.To != DeckA {
		t.Fatalf("first slice = %+v", first)
	}
	if second.Style != StyleMelodyMerge || second.From != DeckA || second.To != DeckB {
		t.Fatalf("second slice = %+v", second)
	}
	for _, ev := range rec.topic(events.TopicTransitionCompleted) {
		if ev.Payload.(CompletedEvent).Ritual != RitualInvocation {
			t.Fatal("inner completion missing ritual key")
		}
	}

	topics := rec.topics()
	if topics[0] != events.TopicRitualStarted || topics[len(topics)-1] != events.TopicRitualCompleted {
		t.Fatalf("ritual not bracketed by started/completed: first=%s last=%s", topics[0], topics[len(topics)-1])
	}
	values := crossfaderValues(rec)
	if values[len(values)-1] != 1 {
		t.Fatalf("final crossfader = %v", values[len(values)-1])
	}
}

func TestRunRitualUnknownFallsBack(t *testing.T) {
	var logs bytes.Buffer
	bus := events.NewBus(zerolog.Nop(), events.WithHistorySize(10000))
	rec := record(bus)
	engine := NewEngine(bus, zerolog.New(&logs), Options{Sleep: noSleep})

	res, err := engine.RunRitual(context.Background(), "FOO", DeckA, DeckB, 3*time.Second)
	if err != nil {
		t.Fatalf("RunRitual: %v", err)
	}
	if !res.Fallback || len(res.Steps) != 1 || res.Steps[0].Style != StyleCrossfade {
		t.Fatalf("result = %+v", res)
	}
	if res.Duration() != 3*time.Second {
		t.Fatalf("fallback duration = %v", res.Duration())
	}
	if len(rec.topic(events.TopicRitualStarted)) != 0 {
		t.Fatal("fallback published ritual:started")
	}

	warned := false
	for _, line := range bytes.Split(bytes.TrimSpace(logs.Bytes()), []byte("\n")) {
		var entry struct {
			Level   string `json:"level"`
			Ritual  string `json:"ritual"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(line, &entry); err != nil {
			t.Fatalf("log line %q: %v", line, err)
		}
		if entry.Level == "warn" && entry.Ritual == "FOO" && entry.Message == "unknown ritual, falling back to crossfade" {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("no fallback warning in %q", logs.String())
	}
}

func TestSplitDuration(t *testing.T) {
	tests := []struct {
		total time.Duration
		n     int
	}{
		{12 * time.Second, 2},
		{1001 * time.Millisecond, 3},
		{7, 2},
		{0, 2},
	}
	for _, tt := range tests {
		parts := splitDuration(tt.total, tt.n)
		var sum time.Duration
		for _, p := range parts {
			sum += p
			if math.Abs(float64(p-tt.total/time.Duration(tt.n))) >= float64(tt.n) {
				t.Errorf("slice %v of %v/%d outside rounding", p, tt.total, tt.n)
			}
		}
		if sum != tt.total || len(parts) != tt.n {
			t.Errorf("splitDuration(%v, %d) = %v", tt.total, tt.n, parts)
		}
	}
}

func TestLoadPresets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rituals.yaml")
	content := `rituals:
  - key: dawn
    name: Dawn
    styles: [ghost_fade, crossfade]
    description: Slow opener
  - key: STORM
    name: Storm
    styles: [strobe_cut, drop_echo, cut]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	presets, err := LoadPresets(path)
	if err != nil {
		t.Fatalf("LoadPresets: %v", err)
	}
	if len(presets) != 2 || presets[0].Key != "DAWN" || len(presets[1].Styles) != 3 {
		t.Fatalf("presets = %+v", presets)
	}

	engine, _, _ := newTestEngine(t, Options{Presets: presets})
	if _, err := engine.Preset(RitualInvocation); !errors.Is(err, ErrUnknownRitual) {
		t.Fatalf("default preset still present: %v", err)
	}
	if p, err := engine.Preset("storm"); err != nil || p.Name != "Storm" {
		t.Fatalf("Preset(storm) = %+v, %v", p, err)
	}
}

func TestValidatePresets(t *testing.T) {
	tests := []struct {
		name    string
		presets []RitualPreset
	}{
		{"empty", nil},
		{"single style", []RitualPreset{{Key: "X", Styles: []string{StyleCut}}}},
		{"unknown style", []RitualPreset{{Key: "X", Styles: []string{StyleCut, "moonwalk"}}}},
		{"duplicate", []RitualPreset{
			{Key: "X", Styles: []string{StyleCut, StyleCut}},
			{Key: "X", Styles: []string{StyleCut, StyleCut}},
		}},
		{"missing key", []RitualPreset{{Styles: []string{StyleCut, StyleCut}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidatePresets(tt.presets); !errors.Is(err, ErrInvalidPreset) {
				t.Fatalf("err = %v, want ErrInvalidPreset", err)
			}
		})
	}
	if err := ValidatePresets(DefaultPresets()); err != nil {
		t.Fatalf("default presets invalid: %v", err)
	}
}

func TestListenRunsTriggers(t *testing.T) {
	engine, bus, rec := newTestEngine(t, Options{})
	stop := engine.Listen(context.Background())

	bus.Publish(events.TopicTransitionTrigger, TriggerPayload{Style: StyleEchoOut, FromDeck: "b", ToDeck: "a", DurationMS: 500})
	engine.Wait()
	bus.Publish(events.TopicRitualTrigger, RitualTriggerPayload{Ritual: RitualRevelation, DurationMS: 800})
	engine.Wait()

	completed := rec.topic(events.TopicTransitionCompleted)
	if len(completed) != 3 {
		t.Fatalf("completed transitions = %d, want 3", len(completed))
	}
	first := completed[0].Payload.(CompletedEvent)
	if first.Style != StyleEchoOut || first.From != DeckB || first.To != DeckA || first.DurationMS != 500 {
		t.Fatalf("first transition = %+v", first)
	}
	if len(rec.topic(events.TopicRitualCompleted)) != 1 {
		t.Fatal("ritual trigger did not run")
	}

	stop()
	bus.Publish(events.TopicTransitionTrigger, TriggerPayload{})
	engine.Wait()
	if got := len(rec.topic(events.TopicTransitionCompleted)); got != 3 {
		t.Fatalf("trigger after stop ran: %d completions", got)
	}
}

func TestTriggerPayloadDefaults(t *testing.T) {
	req, err := TriggerPayload{}.Request()
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if req.Style != StyleCrossfade || req.From != DeckA || req.To != DeckB || req.Duration != DefaultDuration {
		t.Fatalf("defaults = %+v", req)
	}
	if _, err := (TriggerPayload{FromDeck: "z"}).Request(); err == nil {
		t.Fatal("invalid deck accepted")
	}
}
