package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/richinex/murmur/agent"
	"github.com/richinex/murmur/compaction"
)

func TestMain(m *testing.M) {
	// genai pulls in opencensus, whose view worker starts in an init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type fakeTurner struct {
	mu          sync.Mutex
	replies     map[string][]string
	errs        map[string]error
	gates       map[string]chan struct{}
	stubborn    chan struct{}
	compactions int
}

func (f *fakeTurner) Turn(ctx context.Context, input string, onDelta func(string)) (agent.TurnResult, error) {
	if gate := f.gates[input]; gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return agent.TurnResult{}, ctx.Err()
		}
	}
	if input == "stuck" {
		<-f.stubborn
		return agent.TurnResult{}, errors.New("stuck")
	}
	if err := f.errs[input]; err != nil {
		return agent.TurnResult{}, err
	}
	for _, d := range f.replies[input] {
		onDelta(d)
	}
	return agent.TurnResult{Outcome: agent.TurnFinal, Content: strings.Join(f.replies[input], "")}, nil
}

func (f *fakeTurner) Compact(ctx context.Context) (compaction.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compactions++
	return compaction.Result{}, nil
}

func (f *fakeTurner) compacted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.compactions
}

type echoSynth struct{}

func (echoSynth) Synthesize(_ context.Context, text string) ([]byte, error) {
	return []byte(text), nil
}

type recordingSink struct {
	mu     sync.Mutex
	chunks []string
}

func (s *recordingSink) Play(_ context.Context, audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, string(audio))
	return nil
}

func (s *recordingSink) played() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.chunks...)
}

func newTurner() *fakeTurner {
	return &fakeTurner{
		replies: map[string][]string{
			"hi":   {"Hello wor", "ld. How are", " you? I am", " fine"},
			"slow": {"Stale answer. ", "Still stale."},
		},
		errs:  map[string]error{},
		gates: map[string]chan struct{}{},
	}
}

var greeting = []string{"Hello world.", "How are you?", "I am fine"}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func start(t *testing.T, c *Coordinator) {
	t.Helper()
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		if err := c.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	})
}

func TestRenderPlaysSentencesInOrder(t *testing.T) {
	turner := newTurner()
	player := &recordingSink{}
	var text strings.Builder

	c := New(Config{}, turner, echoSynth{}).
		WithPlayer(player).
		WithTextHandler(func(s string) { text.WriteString(s) })
	start(t, c)

	result, err := c.Render(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if result.Outcome != agent.TurnFinal {
		t.Errorf("Outcome = %v", result.Outcome)
	}
	if got := player.played(); !equal(got, greeting) {
		t.Errorf("played %q, want %q", got, greeting)
	}
	if text.String() != "Hello world. How are you? I am fine" {
		t.Errorf("text = %q", text.String())
	}
}

func TestRenderSendsAudioToTransport(t *testing.T) {
	turner := newTurner()
	transport := &recordingSink{}

	c := New(Config{}, turner, echoSynth{}).WithTransport(transport)
	start(t, c)

	if len(c.workers) != 1 {
		t.Fatalf("expected only the llm worker, got %d workers", len(c.workers))
	}
	if _, err := c.Render(context.Background(), "hi"); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if got := transport.played(); !equal(got, greeting) {
		t.Errorf("sent %q, want %q", got, greeting)
	}
}

func TestRenderReportsTurnError(t *testing.T) {
	turner := newTurner()
	turner.errs["boom"] = errors.New("model down")
	player := &recordingSink{}

	c := New(Config{}, turner, echoSynth{}).WithPlayer(player)
	start(t, c)

	_, err := c.Render(context.Background(), "boom")
	if err == nil || err.Error() != "model down" {
		t.Fatalf("expected model error, got %v", err)
	}

	// The pipeline keeps serving after a failed turn.
	if _, err := c.Render(context.Background(), "hi"); err != nil {
		t.Fatalf("Render after failure: %v", err)
	}
	if got := player.played(); !equal(got, greeting) {
		t.Errorf("played %q", got)
	}

	deadline := time.Now().Add(time.Second)
	for turner.compacted() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := turner.compacted(); n != 1 {
		t.Errorf("compactions = %d, want 1 (failed turns are not compacted)", n)
	}
}

func TestRenderNoResponseThenDiscardsStale(t *testing.T) {
	turner := newTurner()
	gate := make(chan struct{})
	turner.gates["slow"] = gate
	player := &recordingSink{}
	var text strings.Builder

	c := New(Config{ResponseTimeout: 50 * time.Millisecond}, turner, echoSynth{}).
		WithPlayer(player).
		WithTextHandler(func(s string) { text.WriteString(s) })
	start(t, c)

	if _, err := c.Render(context.Background(), "slow"); !errors.Is(err, ErrNoResponse) {
		t.Fatalf("expected ErrNoResponse, got %v", err)
	}

	close(gate)
	c.config.ResponseTimeout = 5 * time.Second

	if _, err := c.Render(context.Background(), "hi"); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if got := player.played(); !equal(got, greeting) {
		t.Errorf("played %q, want only the current reply", got)
	}
	if strings.Contains(text.String(), "Stale") {
		t.Errorf("stale text leaked: %q", text.String())
	}
}

func TestRenderTimesOutOnFullInputQueue(t *testing.T) {
	turner := newTurner()
	gate := make(chan struct{})
	turner.gates["slow"] = gate

	c := New(Config{InputQueueSize: 1, ResponseTimeout: 50 * time.Millisecond}, turner, nil)
	start(t, c)
	// Release the stalled turns before the cleanup Stop joins the worker.
	t.Cleanup(func() { close(gate) })

	// The first input occupies the worker, the second fills the queue.
	for i := 0; i < 2; i++ {
		if _, err := c.Render(context.Background(), "slow"); !errors.Is(err, ErrNoResponse) {
			t.Fatalf("render %d: expected ErrNoResponse, got %v", i, err)
		}
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.Render(context.Background(), "slow")
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrNoResponse) {
			t.Fatalf("expected ErrNoResponse, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Render blocked on a full input queue")
	}
}

func TestRenderWithoutSynthesizer(t *testing.T) {
	c := New(Config{}, newTurner(), nil)
	start(t, c)

	result, err := c.Render(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if result.Content != "Hello world. How are you? I am fine" {
		t.Errorf("Content = %q", result.Content)
	}
}

func TestRenderRequiresStart(t *testing.T) {
	c := New(Config{}, newTurner(), echoSynth{})
	if _, err := c.Render(context.Background(), "hi"); err == nil {
		t.Error("expected error before Start")
	}
	if err := c.Start(context.Background()); err == nil {
		t.Error("expected error without player or transport")
	}
}

func TestStopEndsRender(t *testing.T) {
	c := New(Config{}, newTurner(), echoSynth{}).WithPlayer(&recordingSink{})
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
	if _, err := c.Render(context.Background(), "hi"); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}

func TestStopCancelsInFlightTurn(t *testing.T) {
	turner := newTurner()
	turner.gates["slow"] = make(chan struct{})

	c := New(Config{ResponseTimeout: 20 * time.Millisecond}, turner, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Render(context.Background(), "slow"); !errors.Is(err, ErrNoResponse) {
		t.Fatalf("expected ErrNoResponse, got %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestStopReportsJoinTimeout(t *testing.T) {
	turner := newTurner()
	turner.stubborn = make(chan struct{})

	c := New(Config{ResponseTimeout: 20 * time.Millisecond, JoinTimeout: 20 * time.Millisecond}, turner, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Render(context.Background(), "stuck"); !errors.Is(err, ErrNoResponse) {
		t.Fatalf("expected ErrNoResponse, got %v", err)
	}

	if err := c.Stop(); !errors.Is(err, ErrJoinTimeout) {
		t.Fatalf("expected ErrJoinTimeout, got %v", err)
	}

	close(turner.stubborn)
	c.config.JoinTimeout = time.Second
	if err := c.Stop(); err != nil {
		t.Errorf("Stop after release: %v", err)
	}
}
