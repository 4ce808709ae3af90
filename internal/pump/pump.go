// Package pump implements the per-session output pump: it drains a
// session's transport, feeds bytes through the OSC scanner, and fans
// terminal output and in-band events out as notifications.
package pump

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/trybotster/termmux-hub/internal/oscscan"
	"github.com/trybotster/termmux-hub/internal/protocol"
	"github.com/trybotster/termmux-hub/internal/session"
)

// Config mirrors the component design's per-pump configuration.
type Config struct {
	BufferSize   int
	ReadTimeout  time.Duration
	OSCEnabled   bool
	MaxClipboard int
}

// DefaultConfig matches the values named in the component design.
func DefaultConfig() Config {
	return Config{
		BufferSize:   4096,
		ReadTimeout:  100 * time.Millisecond,
		OSCEnabled:   true,
		MaxClipboard: oscscan.DefaultMaxClipboard,
	}
}

// Notifier is the narrow sink a pump pushes outbound notifications into.
// *notifier.Queue satisfies this structurally.
type Notifier interface {
	Push(method string, params any)
}

// Run drives sess's transport until EOF, error, or stop signal, and always
// closes sess.PumpDone on return. A panic inside the pump is recovered,
// logged, and reflected as a session.status error notification rather than
// tearing down the process — other sessions' pumps are unaffected.
func Run(sess *session.Session, transport session.Transport, notifier Notifier, cfg Config, logger *slog.Logger) {
	defer close(sess.PumpDone)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("pump panic recovered", "session", sess.ID, "panic", r)
			sess.TransitionTo(session.StatusError, fmt.Sprintf("pump panic: %v", r))
			notifier.Push("session.status", protocol.SessionStatusParams{
				SessionID: sess.ID,
				Status:    string(session.StatusError),
			})
		}
	}()

	scanner := oscscan.New().WithLogger(logger).WithMaxClipboard(cfg.MaxClipboard)

	switch t := transport.(type) {
	case session.LocalSource:
		runLocal(sess, t, notifier, cfg, scanner, logger)
	case session.MessageSource:
		runSSH(sess, t, notifier, cfg, scanner, logger)
	default:
		logger.Error("pump given a transport with no known read path", "session", sess.ID)
	}
}

func runLocal(sess *session.Session, t session.LocalSource, notifier Notifier, cfg Config, scanner *oscscan.Scanner, logger *slog.Logger) {
	reader, err := t.CloneReader()
	if err != nil {
		failSession(sess, notifier, err)
		return
	}

	buf := make([]byte, cfg.BufferSize)
	for {
		select {
		case <-sess.StopPump:
			return
		default:
		}

		n, err := reader.Read(buf)
		if n > 0 {
			processChunk(sess, buf[:n], notifier, cfg, scanner)
		}
		if err != nil {
			// A read that fails after a stop request is the transport being
			// closed under the pump; exit without reporting a status.
			select {
			case <-sess.StopPump:
				return
			default:
			}
			if errors.Is(err, io.EOF) {
				emitLocalDone(sess, t, notifier, logger)
				return
			}
			if isRetryable(err) {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			failSession(sess, notifier, err)
			return
		}
		if n == 0 {
			emitLocalDone(sess, t, notifier, logger)
			return
		}
	}
}

// emitLocalDone is reached on local-adapter EOF, where no SSH-style
// ExitStatus message exists; the real exit code is recovered from the
// adapter's own Wait, falling back to 0 (matching the upstream reference's
// "no explicit status observed" default) if the child's status can't be
// determined.
func emitLocalDone(sess *session.Session, t session.LocalSource, notifier Notifier, logger *slog.Logger) {
	if sess.Status() == session.StatusDone {
		return
	}
	code, err := t.Wait()
	if err != nil {
		logger.Warn("local adapter wait failed, reporting exit code 0", "session", sess.ID, "error", err)
		code = 0
	}
	sess.SetExitCode(code)
	_ = sess.TransitionTo(session.StatusDone, "")
	notifier.Push("session.status", protocol.SessionStatusParams{
		SessionID: sess.ID,
		Status:    string(session.StatusDone),
		ExitCode:  &code,
	})
}

func runSSH(sess *session.Session, t session.MessageSource, notifier Notifier, cfg Config, scanner *oscscan.Scanner, logger *slog.Logger) {
	msgs := t.Messages()
	for {
		// Stop is checked first, non-blocking, so a pending stop always wins
		// over an already-queued transport message.
		select {
		case <-sess.StopPump:
			return
		default:
		}

		select {
		case <-sess.StopPump:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			handleSSHMessage(sess, msg, notifier, cfg, scanner)
			if msg.ExitCode != nil || (msg.Err != nil) {
				return
			}
		}
	}
}

func handleSSHMessage(sess *session.Session, msg session.Message, notifier Notifier, cfg Config, scanner *oscscan.Scanner) {
	if len(msg.Data) > 0 {
		processChunk(sess, msg.Data, notifier, cfg, scanner)
	}
	if msg.ExitCode != nil {
		sess.SetExitCode(*msg.ExitCode)
		_ = sess.TransitionTo(session.StatusDone, "")
		code := *msg.ExitCode
		notifier.Push("session.status", protocol.SessionStatusParams{
			SessionID: sess.ID,
			Status:    string(session.StatusDone),
			ExitCode:  &code,
		})
		return
	}
	if msg.Err != nil {
		if errors.Is(msg.Err, io.EOF) {
			emitDoneOnEOF(sess, notifier)
			return
		}
		failSession(sess, notifier, msg.Err)
	}
}

// emitDoneOnEOF reflects §9's open question: Done is emitted from an
// explicit ExitStatus when observed, exactly once; plain EOF with no prior
// exit status carries no exit code.
func emitDoneOnEOF(sess *session.Session, notifier Notifier) {
	if sess.Status() == session.StatusDone {
		return
	}
	_ = sess.TransitionTo(session.StatusDone, "")
	notifier.Push("session.status", protocol.SessionStatusParams{
		SessionID: sess.ID,
		Status:    string(session.StatusDone),
	})
}

func failSession(sess *session.Session, notifier Notifier, err error) {
	_ = sess.TransitionTo(session.StatusError, err.Error())
	notifier.Push("session.status", protocol.SessionStatusParams{
		SessionID: sess.ID,
		Status:    string(session.StatusError),
	})
}

// processChunk runs the OSC scanner over a chunk (when enabled and the
// chunk decodes as UTF-8), emits one notification per extracted event ahead
// of the terminal.output for the stripped remainder, preserving the
// ordering guarantee in §5.
func processChunk(sess *session.Session, data []byte, notifier Notifier, cfg Config, scanner *oscscan.Scanner) {
	out := data
	if cfg.OSCEnabled && utf8.Valid(data) {
		stripped, seqs := scanner.StripSequences(string(data))
		for _, sq := range seqs {
			switch sq.Kind {
			case oscscan.WorkingDirectory:
				sess.SetCwd(sq.Path)
				notifier.Push("session.cwd", protocol.SessionCwdParams{SessionID: sess.ID, Cwd: sq.Path})
			case oscscan.Clipboard:
				notifier.Push("session.clipboard", protocol.SessionClipboardParams{SessionID: sess.ID, Content: sq.Content})
			}
		}
		out = []byte(stripped)
	}
	if len(out) > 0 {
		notifier.Push("terminal.output", protocol.TerminalOutputParams{
			SessionID: sess.ID,
			Data:      base64.StdEncoding.EncodeToString(out),
		})
	}
}

func isRetryable(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EINTR)
}
