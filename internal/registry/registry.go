// Package registry holds the live session map: a mapping from session id to
// *session.Session plus the machinery to create, drive and tear down the
// adapter and pump bound to each one. The map is guarded by a single mutex
// behind a thin API; it keeps no ordering or selection state.
package registry

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trybotster/termmux-hub/internal/notifier"
	"github.com/trybotster/termmux-hub/internal/protocol"
	"github.com/trybotster/termmux-hub/internal/ptyadapter"
	"github.com/trybotster/termmux-hub/internal/pump"
	"github.com/trybotster/termmux-hub/internal/session"
	"github.com/trybotster/termmux-hub/internal/sshadapter"
)

// pumpJoinTimeout bounds how long Close waits for a pump to exit after the
// stop signal has been sent and the transport closed.
const pumpJoinTimeout = 5 * time.Second

// Registry owns every live Session and the pump bound to it. All mutating
// and enumerating operations are serialized by mu; a per-session transport
// write is not — that mutual exclusion lives inside the Session/adapter.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session

	notifications *notifier.Queue
	logger        *slog.Logger
	pumpConfig    pump.Config
}

// New constructs an empty Registry. notifications is the shared outbound
// queue every pump started by this registry pushes into.
func New(notifications *notifier.Queue, logger *slog.Logger, pumpConfig pump.Config) *Registry {
	return &Registry{
		sessions:      make(map[string]*session.Session),
		notifications: notifications,
		logger:        logger,
		pumpConfig:    pumpConfig,
	}
}

// Create mints a fresh session id and, for a local connection, synchronously
// opens the PTY and starts its pump; for SSH, registers a placeholder
// session in Connecting and starts the connect+pump sequence in the
// background, returning immediately. A pty-creation failure on the local
// path is returned to the caller and no session is registered.
func (r *Registry) Create(desc session.ConnectionDescriptor, size session.TerminalSize) (string, error) {
	id := uuid.NewString()
	sess := session.New(id, desc)

	switch desc.Kind {
	case session.ConnectionLocal:
		adapter, err := ptyadapter.Open(ptyadapter.Config{
			Shell: desc.Shell,
			Cwd:   desc.Cwd,
			Env:   desc.Env,
			Size:  size,
		}, r.logger)
		if err != nil {
			return "", protocol.ErrPtyCreationFailed(err.Error())
		}
		sess.SetTransport(adapter)
		if err := sess.TransitionTo(session.StatusRunning, ""); err != nil {
			adapter.Close()
			return "", err
		}
		r.register(sess)
		go pump.Run(sess, adapter, r.notifications, r.pumpConfig, r.logger)

	case session.ConnectionSSH:
		_ = sess.TransitionTo(session.StatusConnecting, "")
		r.register(sess)
		go r.connectSSH(sess, desc, size)

	default:
		return "", protocol.ErrInvalidParams(fmt.Sprintf("unknown connection type %q", desc.Kind))
	}

	return id, nil
}

func (r *Registry) connectSSH(sess *session.Session, desc session.ConnectionDescriptor, size session.TerminalSize) {
	_ = sess.TransitionTo(session.StatusConnecting, "")
	r.notifications.Push("session.status", protocol.SessionStatusParams{
		SessionID: sess.ID,
		Status:    string(session.StatusConnecting),
	})

	adapter, err := sshadapter.Open(sshadapter.Config{
		Host:         desc.Host,
		Port:         desc.Port,
		User:         desc.User,
		Auth:         desc.Auth,
		Secret:       desc.Password,
		IdentityFile: desc.IdentityFile,
		Size:         size,
	}, r.logger)
	if err != nil {
		_ = sess.TransitionTo(session.StatusError, err.Error())
		r.notifications.Push("session.status", protocol.SessionStatusParams{
			SessionID: sess.ID,
			Status:    string(session.StatusError),
		})
		return
	}

	sess.SetTransport(adapter)
	if err := sess.TransitionTo(session.StatusRunning, ""); err != nil {
		adapter.Close()
		return
	}
	r.notifications.Push("session.status", protocol.SessionStatusParams{
		SessionID: sess.ID,
		Status:    string(session.StatusRunning),
	})

	pump.Run(sess, adapter, r.notifications, r.pumpConfig, r.logger)
}

func (r *Registry) register(sess *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID] = sess
}

func (r *Registry) lookup(id string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// Input decodes base64 payload and writes it to the session's transport.
func (r *Registry) Input(id string, dataB64 string) error {
	sess, ok := r.lookup(id)
	if !ok {
		return protocol.ErrSessionNotFound(id)
	}
	data, err := base64.StdEncoding.DecodeString(dataB64)
	if err != nil {
		return protocol.ErrInvalidParams("data is not valid base64")
	}
	transport := sess.Transport()
	if transport == nil {
		return protocol.ErrInvalidParams("session has no active transport yet")
	}
	if _, err := transport.Write(data); err != nil {
		return protocol.ErrChannelError(err.Error())
	}
	return nil
}

// Resize applies a new terminal size to the session's transport.
func (r *Registry) Resize(id string, size session.TerminalSize) error {
	sess, ok := r.lookup(id)
	if !ok {
		return protocol.ErrSessionNotFound(id)
	}
	transport := sess.Transport()
	if transport == nil {
		return protocol.ErrInvalidParams("session has no active transport yet")
	}
	if err := transport.Resize(size); err != nil {
		return protocol.ErrChannelError(err.Error())
	}
	return nil
}

// Close removes the session from the registry, signals its pump to stop,
// closes the transport, and then waits up to pumpJoinTimeout for the pump to
// exit. Closing an id not present in the map is an error; closing a session
// already in Done or Error but still registered succeeds.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return protocol.ErrSessionNotFound(id)
	}

	sess.RequestStop()
	if transport := sess.Transport(); transport != nil {
		// Closing the transport unblocks a pump parked in a blocking read
		// (a local PTY's read has no deadline, so the pump cannot see
		// StopPump until the read returns); WaitPumpDone below is then a
		// bounded safety join rather than the only way the pump ever
		// notices the stop.
		_ = transport.Close()
	}
	sess.WaitPumpDone(pumpJoinTimeout)

	return nil
}

// List returns a snapshot of every registered session, in no particular
// order; Non-goal per the wire contract, which never promises list ordering.
func (r *Registry) List() []session.Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]session.Info, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess.Snapshot())
	}
	return out
}

// Get returns a single session's snapshot, or an invalid-params error for an
// unknown id — matching the upstream reference's asymmetric error code for
// this one method (session.input/resize/close use session-not-found instead).
func (r *Registry) Get(id string) (session.Info, error) {
	sess, ok := r.lookup(id)
	if !ok {
		return session.Info{}, protocol.ErrInvalidParams(fmt.Sprintf("unknown session %q", id))
	}
	return sess.Snapshot(), nil
}

// Shutdown stops every pump and closes every transport, used when the
// dispatcher observes EOF on its input stream. Best-effort: it does not
// return the first error encountered, since one wedged session must not
// block the rest from being torn down.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := r.Close(id); err != nil {
				r.logger.Warn("error closing session during shutdown", "session", id, "error", err)
			}
		}(id)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Warn("shutdown deadline exceeded waiting for sessions to close")
	}
}
