// Package pipeline connects the turn orchestrator to speech output.
//
// Information Hiding:
// - Worker goroutines and the bounded queues between them
// - Turn sequence numbers used to drop leftovers of abandoned replies
// - Sentence segmentation of streamed model output
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/richinex/murmur/agent"
	"github.com/richinex/murmur/compaction"
	"github.com/richinex/murmur/speech"
)

var (
	// ErrNoResponse is returned by Render when the reply stalls for longer
	// than Config.ResponseTimeout.
	ErrNoResponse = errors.New("no response from assistant")

	// ErrStopped is returned by Render once the coordinator is stopped.
	ErrStopped = errors.New("pipeline stopped")

	// ErrJoinTimeout is returned by Stop when a worker does not exit in time.
	ErrJoinTimeout = errors.New("worker did not exit")
)

// Turner runs conversation turns. *agent.Agent implements it.
type Turner interface {
	Turn(ctx context.Context, input string, onDelta func(string)) (agent.TurnResult, error)
	Compact(ctx context.Context) (compaction.Result, error)
}

// Sink consumes synthesized audio. audio.Player plays it locally; a live
// transport forwards it to a remote client.
type Sink interface {
	Play(ctx context.Context, audio []byte) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, audio []byte) error

// Play calls f.
func (f SinkFunc) Play(ctx context.Context, audio []byte) error {
	return f(ctx, audio)
}

type messageKind int

const (
	messageDelta messageKind = iota
	messageError
	messageEnd
)

type request struct {
	turn uint64
	text string
}

type message struct {
	turn   uint64
	kind   messageKind
	text   string
	err    error
	result agent.TurnResult
}

type audioChunk struct {
	turn uint64
	data []byte
	end  bool
}

type worker struct {
	name string
	done chan struct{}
}

// Coordinator runs an LLM worker and, without a live transport, an audio
// worker. Render is called from the caller's goroutine, one input at a time.
type Coordinator struct {
	config    Config
	turner    Turner
	synth     speech.Synthesizer
	player    Sink
	transport Sink
	onText    func(string)
	logger    *slog.Logger

	input    chan request
	messages chan message
	audio    chan audioChunk
	drained  chan uint64

	seq      atomic.Uint64
	started  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
	workers  []worker
}

// New creates a coordinator. synth may be nil for text-only replies.
func New(config Config, turner Turner, synth speech.Synthesizer) *Coordinator {
	config = config.withDefaults()
	return &Coordinator{
		config:   config,
		turner:   turner,
		synth:    synth,
		logger:   slog.New(slog.DiscardHandler),
		input:    make(chan request, config.InputQueueSize),
		messages: make(chan message, config.MessageQueueSize),
		audio:    make(chan audioChunk, config.AudioQueueSize),
		drained:  make(chan uint64, 1),
		stop:     make(chan struct{}),
	}
}

// WithPlayer sets the sink the audio worker plays chunks on.
func (c *Coordinator) WithPlayer(player Sink) *Coordinator {
	c.player = player
	return c
}

// WithTransport sends audio straight to a live transport. The audio worker
// is not started when a transport is set.
func (c *Coordinator) WithTransport(transport Sink) *Coordinator {
	c.transport = transport
	return c
}

// WithTextHandler sets a callback receiving each content fragment of the reply.
func (c *Coordinator) WithTextHandler(fn func(string)) *Coordinator {
	c.onText = fn
	return c
}

// WithLogger sets the logger.
func (c *Coordinator) WithLogger(logger *slog.Logger) *Coordinator {
	c.logger = logger
	return c
}

// Start launches the workers. They run until Stop or until ctx is done.
func (c *Coordinator) Start(ctx context.Context) error {
	if c.synth != nil && c.transport == nil && c.player == nil {
		return fmt.Errorf("pipeline needs a player or a transport for audio")
	}
	if !c.started.CompareAndSwap(false, true) {
		return fmt.Errorf("pipeline already started")
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.spawn("llm", func() { c.llmWorker(ctx) })
	if c.transport == nil && c.player != nil {
		c.spawn("audio", func() { c.audioWorker(ctx) })
	}
	return nil
}

func (c *Coordinator) spawn(name string, run func()) {
	w := worker{name: name, done: make(chan struct{})}
	c.workers = append(c.workers, w)
	go func() {
		defer close(w.done)
		run()
	}()
}

// Stop signals the workers and joins each for at most Config.JoinTimeout.
// A worker that does not exit is abandoned and reported with ErrJoinTimeout.
// Stop may be called again to retry the join.
func (c *Coordinator) Stop() error {
	c.stopOnce.Do(func() {
		close(c.stop)
		if c.cancel != nil {
			c.cancel()
		}
	})

	for _, w := range c.workers {
		timer := time.NewTimer(c.config.JoinTimeout)
		select {
		case <-w.done:
			timer.Stop()
		case <-timer.C:
			c.logger.Warn("pipeline worker abandoned", "worker", w.name, "timeout", c.config.JoinTimeout)
			return fmt.Errorf("%w: %s within %s", ErrJoinTimeout, w.name, c.config.JoinTimeout)
		}
	}
	return nil
}

func (c *Coordinator) stopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

// Render submits one user input and speaks the reply sentence by sentence.
// It returns once the reply is complete and its audio has been played.
func (c *Coordinator) Render(ctx context.Context, input string) (agent.TurnResult, error) {
	if !c.started.Load() {
		return agent.TurnResult{}, fmt.Errorf("pipeline not started")
	}
	if c.stopped() {
		return agent.TurnResult{}, ErrStopped
	}

	turn := c.seq.Add(1)
	submit := time.NewTimer(c.config.ResponseTimeout)
	select {
	case c.input <- request{turn: turn, text: input}:
		submit.Stop()
	case <-submit.C:
		// The input queue is full behind a stalled turn.
		c.logger.Warn("no response", "turn", turn, "timeout", c.config.ResponseTimeout, "queued", false)
		return agent.TurnResult{}, ErrNoResponse
	case <-ctx.Done():
		submit.Stop()
		return agent.TurnResult{}, ctx.Err()
	case <-c.stop:
		submit.Stop()
		return agent.TurnResult{}, ErrStopped
	}

	var segmenter speech.Segmenter
	var turnErr error

	for {
		timer := time.NewTimer(c.config.ResponseTimeout)
		var msg message
		select {
		case msg = <-c.messages:
			timer.Stop()
		case <-timer.C:
			c.logger.Warn("no response", "turn", turn, "timeout", c.config.ResponseTimeout)
			return agent.TurnResult{}, ErrNoResponse
		case <-ctx.Done():
			timer.Stop()
			return agent.TurnResult{}, ctx.Err()
		case <-c.stop:
			timer.Stop()
			return agent.TurnResult{}, ErrStopped
		}

		if msg.turn != turn {
			c.logger.Debug("discarding stale message", "turn", msg.turn, "current", turn)
			continue
		}

		switch msg.kind {
		case messageDelta:
			if c.onText != nil {
				c.onText(msg.text)
			}
			for _, sentence := range segmenter.Feed(msg.text) {
				if err := c.speak(ctx, turn, sentence); err != nil {
					return agent.TurnResult{}, err
				}
			}
		case messageError:
			turnErr = msg.err
		case messageEnd:
			if tail := segmenter.Flush(); tail != "" {
				if err := c.speak(ctx, turn, tail); err != nil {
					return agent.TurnResult{}, err
				}
			}
			if turnErr != nil {
				return agent.TurnResult{}, turnErr
			}
			if err := c.drain(ctx, turn); err != nil {
				return msg.result, err
			}
			return msg.result, nil
		}
	}
}

// speak synthesizes one sentence. A failed synthesis skips the sentence.
func (c *Coordinator) speak(ctx context.Context, turn uint64, sentence string) error {
	if c.synth == nil {
		return nil
	}

	data, err := c.synth.Synthesize(ctx, sentence)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("speech synthesis failed", "error", err, "sentence", sentence)
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	if c.transport != nil {
		if err := c.transport.Play(ctx, data); err != nil {
			return fmt.Errorf("failed to send audio: %w", err)
		}
		return nil
	}

	return c.enqueueAudio(ctx, audioChunk{turn: turn, data: data})
}

func (c *Coordinator) enqueueAudio(ctx context.Context, chunk audioChunk) error {
	select {
	case c.audio <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stop:
		return ErrStopped
	}
}

// drain waits until the audio worker has played every chunk of turn.
func (c *Coordinator) drain(ctx context.Context, turn uint64) error {
	if c.synth == nil || c.transport != nil {
		return nil
	}
	if err := c.enqueueAudio(ctx, audioChunk{turn: turn, end: true}); err != nil {
		return err
	}

	for {
		select {
		case done := <-c.drained:
			if done == turn {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return ErrStopped
		}
	}
}

// llmWorker owns the conversation: it is the only goroutine calling the Turner.
func (c *Coordinator) llmWorker(ctx context.Context) {
	for {
		var req request
		select {
		case req = <-c.input:
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}

		result, err := c.turner.Turn(ctx, req.text, func(delta string) {
			c.emit(ctx, message{turn: req.turn, kind: messageDelta, text: delta})
		})
		if err != nil {
			c.logger.Warn("turn failed", "turn", req.turn, "error", err)
			c.emit(ctx, message{turn: req.turn, kind: messageError, err: err})
		}
		if !c.emit(ctx, message{turn: req.turn, kind: messageEnd, result: result}) {
			return
		}

		if err == nil {
			if _, err := c.turner.Compact(ctx); err != nil {
				c.logger.Warn("compaction failed", "turn", req.turn, "error", err)
			}
		}
	}
}

func (c *Coordinator) emit(ctx context.Context, msg message) bool {
	select {
	case c.messages <- msg:
		return true
	case <-c.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

// audioWorker plays chunks strictly in order, skipping those of older turns.
func (c *Coordinator) audioWorker(ctx context.Context) {
	for {
		var chunk audioChunk
		select {
		case chunk = <-c.audio:
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}

		if chunk.turn != c.seq.Load() {
			continue
		}
		if chunk.end {
			// drained holds only the latest finished turn.
			select {
			case <-c.drained:
			default:
			}
			c.drained <- chunk.turn
			continue
		}

		if err := c.player.Play(ctx, chunk.data); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("audio playback failed", "turn", chunk.turn, "error", err)
		}
	}
}
