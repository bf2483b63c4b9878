// Package server exposes the assistant over a websocket.
//
// Information Hiding:
// - Frame protocol (JSON text frames in both directions, binary PCM audio)
// - One agent and pipeline per connection
// - Serialization of concurrent writes to a connection
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/richinex/murmur/audio/wav"
	"github.com/richinex/murmur/pipeline"
	"github.com/richinex/murmur/speech"
)

// Client frame types.
const (
	FrameText = "text" // {"type":"text","text":"..."} sends one user input
	FrameEnd  = "end"  // ends the binary PCM utterance sent so far
)

// Server event types.
const (
	EventSession    = "session"
	EventTranscript = "transcript"
	EventDelta      = "delta"
	EventTurnEnd    = "turn_end"
	EventError      = "error"
)

const (
	maxFrameBytes   = 4 << 20
	maxUtterance    = 60 * 16000 * 2 // one minute of 16 kHz mono
	shutdownTimeout = 5 * time.Second
)

// Factory creates the conversation for a connection. The session id is
// taken from the "session" query parameter or generated.
type Factory func(ctx context.Context, sessionID string) (pipeline.Turner, error)

// ClientFrame is a JSON frame sent by the client.
type ClientFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Event is a JSON frame sent to the client. Synthesized audio is sent as
// binary frames between delta events.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Server serves /ws.
type Server struct {
	factory     Factory
	synth       speech.Synthesizer
	transcriber speech.Transcriber
	pipeConfig  pipeline.Config
	sampleRate  int
	logger      *slog.Logger
	upgrader    websocket.Upgrader
}

// New creates a server. synth and transcriber may be nil, which disables
// audio output and voice input respectively.
func New(factory Factory, synth speech.Synthesizer, transcriber speech.Transcriber) *Server {
	return &Server{
		factory:     factory,
		synth:       synth,
		transcriber: transcriber,
		pipeConfig:  pipeline.DefaultConfig(),
		sampleRate:  16000,
		logger:      slog.New(slog.DiscardHandler),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// WithPipelineConfig sets the per-connection pipeline settings.
func (s *Server) WithPipelineConfig(config pipeline.Config) *Server {
	s.pipeConfig = config
	return s
}

// WithInputSampleRate sets the sample rate of incoming mono PCM.
func (s *Server) WithInputSampleRate(rate int) *Server {
	s.sampleRate = rate
	return s
}

// WithLogger sets the logger.
func (s *Server) WithLogger(logger *slog.Logger) *Server {
	s.logger = logger
	return s
}

// Handler returns the HTTP handler serving /ws and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("websocket server listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// connection serializes writes; gorilla/websocket allows one concurrent writer.
type connection struct {
	ws     *websocket.Conn
	mu     sync.Mutex
	logger *slog.Logger
}

func (c *connection) send(event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(event)
}

func (c *connection) sendAudio(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()
	ws.SetReadLimit(maxFrameBytes)

	sessionID := strings.TrimSpace(r.URL.Query().Get("session"))
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	logger := s.logger.With("session", sessionID)
	conn := &connection{ws: ws, logger: logger}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	turner, err := s.factory(ctx, sessionID)
	if err != nil {
		logger.Error("failed to create session", "error", err)
		_ = conn.send(Event{Type: EventError, Error: err.Error()})
		return
	}

	coordinator := pipeline.New(s.pipeConfig, turner, s.synth).
		WithTransport(pipeline.SinkFunc(conn.sendAudio)).
		WithTextHandler(func(delta string) {
			if err := conn.send(Event{Type: EventDelta, Text: delta}); err != nil {
				logger.Debug("failed to send delta", "error", err)
			}
		}).
		WithLogger(logger)
	if err := coordinator.Start(ctx); err != nil {
		_ = conn.send(Event{Type: EventError, Error: err.Error()})
		return
	}
	defer func() {
		if err := coordinator.Stop(); err != nil {
			logger.Warn("pipeline did not stop cleanly", "error", err)
		}
	}()

	if err := conn.send(Event{Type: EventSession, SessionID: sessionID}); err != nil {
		return
	}
	logger.Info("websocket session started")

	var utterance bytes.Buffer
	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read ended", "error", err)
			}
			logger.Info("websocket session ended")
			return
		}

		if messageType == websocket.BinaryMessage {
			if utterance.Len()+len(data) > maxUtterance {
				utterance.Reset()
				_ = conn.send(Event{Type: EventError, Error: "utterance too long"})
				continue
			}
			utterance.Write(data)
			continue
		}

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			_ = conn.send(Event{Type: EventError, Error: "invalid frame: " + err.Error()})
			continue
		}

		var input string
		switch frame.Type {
		case FrameText:
			input = strings.TrimSpace(frame.Text)
		case FrameEnd:
			input, err = s.transcribe(ctx, utterance.Bytes())
			utterance.Reset()
			if err != nil {
				_ = conn.send(Event{Type: EventError, Error: err.Error()})
				continue
			}
			if err := conn.send(Event{Type: EventTranscript, Text: input}); err != nil {
				return
			}
		default:
			_ = conn.send(Event{Type: EventError, Error: fmt.Sprintf("unknown frame type %q", frame.Type)})
			continue
		}

		if input == "" {
			continue
		}
		s.render(ctx, conn, coordinator, input)
	}
}

func (s *Server) transcribe(ctx context.Context, pcm []byte) (string, error) {
	if s.transcriber == nil {
		return "", fmt.Errorf("voice input is not configured")
	}
	if len(pcm) == 0 {
		return "", fmt.Errorf("empty utterance")
	}

	utterance := wav.Encode(pcm, s.sampleRate, 1)
	text, err := s.transcriber.Transcribe(ctx, bytes.NewReader(utterance), "utterance.wav")
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (s *Server) render(ctx context.Context, conn *connection, coordinator *pipeline.Coordinator, input string) {
	result, err := coordinator.Render(ctx, input)
	if err != nil {
		conn.logger.Warn("turn failed", "error", err)
		_ = conn.send(Event{Type: EventError, Error: err.Error()})
		return
	}
	_ = conn.send(Event{Type: EventTurnEnd, Text: result.Content, Outcome: result.Outcome.String()})
}
