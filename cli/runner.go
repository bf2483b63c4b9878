// Command execution for CLI commands.
//
// Information Hiding:
// - Interactive loop handling (text and push-to-talk voice)
// - Output formatting hidden

package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/richinex/murmur/agent"
	"github.com/richinex/murmur/audio"
	"github.com/richinex/murmur/pipeline"
	"github.com/richinex/murmur/server"
	"github.com/richinex/murmur/storage"
)

// Chat runs an interactive text conversation. Replies stream to stdout.
func Chat(ctx context.Context, rt *Runtime, sessionID string, resume bool) error {
	a, err := rt.NewAgent(ctx, sessionID, resume)
	if err != nil {
		return err
	}
	announceSession(a)

	fmt.Printf("Chat with murmur. Type 'exit' to quit.\n\n")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if isExit(input) {
			break
		}

		fmt.Println()
		result, err := a.Chat(ctx, input, func(delta string) { fmt.Print(delta) })
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(os.Stderr, "\nError: %v\n\n", err)
			continue
		}
		printOutcome(result)
	}

	return scanner.Err()
}

// Voice runs a push-to-talk loop: Enter starts recording, Enter again stops
// it, the recording is transcribed and the reply is spoken. A typed line is
// sent as text.
func Voice(ctx context.Context, rt *Runtime, sessionID string, resume bool) error {
	synth, transcriber := rt.Synthesizer(), rt.Transcriber()
	if synth == nil || transcriber == nil {
		return fmt.Errorf("voice mode needs tts and stt providers in the config")
	}

	a, err := rt.NewAgent(ctx, sessionID, resume)
	if err != nil {
		return err
	}
	announceSession(a)

	settings := rt.Settings
	recorder, err := audio.NewRecorder(settings.Audio.RecordSampleRate, settings.Audio.Channels)
	if err != nil {
		return err
	}
	defer recorder.Close()

	player := audio.NewPlayer(settings.Audio.PlaybackSampleRate, settings.Audio.Channels)
	coordinator := pipeline.New(settings.Pipeline, a, synth).
		WithPlayer(player).
		WithTextHandler(func(delta string) { fmt.Print(delta) }).
		WithLogger(rt.Logger)
	if err := coordinator.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := coordinator.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}()

	fmt.Printf("Voice chat with murmur. Press Enter to talk, Enter again to stop. Type 'exit' to quit.\n\n")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("[ready] ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if isExit(input) {
			break
		}

		if input == "" {
			if err := recorder.Start(); err != nil {
				return err
			}
			fmt.Print("[recording] ")
			if !scanner.Scan() {
				_, _ = recorder.Stop()
				break
			}
			wav, err := recorder.Stop()
			if err != nil {
				return err
			}

			input, err = transcriber.Transcribe(ctx, bytes.NewReader(wav), "utterance.wav")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
				continue
			}
			input = strings.TrimSpace(input)
			if input == "" {
				fmt.Println("(nothing heard)")
				continue
			}
			fmt.Printf("You: %s\n", input)
		}

		fmt.Println()
		result, err := coordinator.Render(ctx, input)
		switch {
		case errors.Is(err, pipeline.ErrNoResponse):
			fmt.Fprintf(os.Stderr, "\nNo response from the assistant.\n\n")
		case errors.Is(err, pipeline.ErrStopped), ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			fmt.Fprintf(os.Stderr, "\nError: %v\n\n", err)
		default:
			printOutcome(result)
		}
	}

	return scanner.Err()
}

// Serve runs the websocket server until ctx is done.
func Serve(ctx context.Context, rt *Runtime) error {
	factory := func(ctx context.Context, sessionID string) (pipeline.Turner, error) {
		return rt.NewAgent(ctx, sessionID, false)
	}

	srv := server.New(factory, rt.Synthesizer(), rt.Transcriber()).
		WithPipelineConfig(rt.Settings.Pipeline).
		WithInputSampleRate(rt.Settings.Audio.RecordSampleRate).
		WithLogger(rt.Logger)

	fmt.Printf("Serving on %s (websocket at /ws)\n", rt.Settings.Server.Addr)
	return srv.ListenAndServe(ctx, rt.Settings.Server.Addr)
}

// ListTools prints the tools offered to the model.
func ListTools(rt *Runtime, verbose bool) {
	definitions := rt.Tools()
	if len(definitions) == 0 {
		fmt.Println("No tools configured.")
		return
	}

	fmt.Println("Available tools:")
	fmt.Println()

	for _, def := range definitions {
		fmt.Printf("  %s\n", def.Name)
		fmt.Printf("    %s\n", def.Description)

		properties, _ := def.Parameters["properties"].(map[string]interface{})
		if verbose && len(properties) > 0 {
			required := map[string]bool{}
			if req, ok := def.Parameters["required"].([]interface{}); ok {
				for _, r := range req {
					if s, ok := r.(string); ok {
						required[s] = true
					}
				}
			}
			if req, ok := def.Parameters["required"].([]string); ok {
				for _, s := range req {
					required[s] = true
				}
			}

			names := make([]string, 0, len(properties))
			for name := range properties {
				names = append(names, name)
			}
			sort.Strings(names)

			fmt.Println("    Parameters:")
			for _, name := range names {
				req := ""
				if required[name] {
					req = "*"
				}
				paramType, description := "", ""
				if prop, ok := properties[name].(map[string]interface{}); ok {
					paramType, _ = prop["type"].(string)
					description, _ = prop["description"].(string)
				}
				fmt.Printf("      %s%s: %s - %s\n", name, req, paramType, description)
			}
		}
		fmt.Println()
	}
}

// ListSessions prints the saved session ids.
func ListSessions(ctx context.Context, store storage.Store) error {
	sessions, err := store.ListSessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No saved sessions.")
		return nil
	}
	for _, id := range sessions {
		history, err := store.Load(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("  %s (%d messages)\n", id, len(history))
	}
	return nil
}

// DeleteSession removes a session with its history and summaries.
func DeleteSession(ctx context.Context, store storage.Store, sessionID string) error {
	if exists, err := store.Exists(ctx, sessionID); err != nil {
		return err
	} else if !exists {
		return fmt.Errorf("%w: %s", storage.ErrSessionNotFound, sessionID)
	}
	if err := store.Delete(ctx, sessionID); err != nil {
		return err
	}
	fmt.Printf("Deleted session %s\n", sessionID)
	return nil
}

// ShowSummaries prints the compaction log of a session, newest first.
func ShowSummaries(ctx context.Context, store storage.Store, sessionID, kind string, limit int) error {
	var filter *storage.MemoryType
	if kind != "" {
		t, err := storage.ParseMemoryType(kind)
		if err != nil {
			return err
		}
		filter = &t
	}

	entries, err := store.QueryMemories(ctx, sessionID, filter, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Printf("No summaries for session %s.\n", sessionID)
		return nil
	}

	for _, e := range entries {
		fmt.Printf("[%s] %s\n", e.Time().Format("2006-01-02 15:04:05"), e.Type)
		fmt.Printf("%s\n\n", truncateString(e.Content, 600))
	}
	return nil
}

func announceSession(a *agent.Agent) {
	if n := len(a.History()); n > 1 {
		fmt.Printf("Resuming session '%s' (%d messages)\n\n", a.SessionID(), n)
		return
	}
	fmt.Printf("Session '%s'\n\n", a.SessionID())
}

func printOutcome(result agent.TurnResult) {
	fmt.Printf("\n\n")
	if result.Outcome == agent.TurnToolLoopExceeded {
		fmt.Fprintf(os.Stderr, "(stopped after %d tool rounds without an answer)\n\n", result.Rounds)
	}
}

func isExit(input string) bool {
	return input == "exit" || input == "quit"
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
