package pump

import (
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/trybotster/termmux-hub/internal/protocol"
	"github.com/trybotster/termmux-hub/internal/session"
)

// recordingNotifier collects pushed frames in order, safe for concurrent use.
type recordingNotifier struct {
	mu     sync.Mutex
	frames []notifierFrame
}

type notifierFrame struct {
	method string
	params any
}

func (n *recordingNotifier) Push(method string, params any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.frames = append(n.frames, notifierFrame{method, params})
}

func (n *recordingNotifier) methods() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.frames))
	for i, f := range n.frames {
		out[i] = f.method
	}
	return out
}

func (n *recordingNotifier) last(method string) any {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.frames) - 1; i >= 0; i-- {
		if n.frames[i].method == method {
			return n.frames[i].params
		}
	}
	return nil
}

// fakeLocal is a minimal session.LocalSource backed by an in-memory pipe.
type fakeLocal struct {
	r *io.PipeReader
	w *io.PipeWriter

	waitCode int
	waitErr  error
}

func newFakeLocal() *fakeLocal {
	r, w := io.Pipe()
	return &fakeLocal{r: r, w: w}
}

func (f *fakeLocal) Kind() session.TransportKind       { return session.TransportLocal }
func (f *fakeLocal) Write(p []byte) (int, error)       { return len(p), nil }
func (f *fakeLocal) Resize(session.TerminalSize) error { return nil }
func (f *fakeLocal) Close() error                      { return f.w.Close() }
func (f *fakeLocal) CloneReader() (io.Reader, error)   { return f.r, nil }
func (f *fakeLocal) TryWait() (int, bool)              { return f.waitCode, true }

func (f *fakeLocal) Wait() (int, error) {
	if f.waitErr != nil {
		return 0, f.waitErr
	}
	return f.waitCode, nil
}

// fakeSSH is a minimal session.MessageSource backed by a channel the test
// feeds directly.
type fakeSSH struct {
	ch chan session.Message
}

func newFakeSSH() *fakeSSH {
	return &fakeSSH{ch: make(chan session.Message, 8)}
}

func (f *fakeSSH) Kind() session.TransportKind       { return session.TransportSSH }
func (f *fakeSSH) Write(p []byte) (int, error)       { return len(p), nil }
func (f *fakeSSH) Resize(session.TerminalSize) error { return nil }
func (f *fakeSSH) Close() error                      { close(f.ch); return nil }
func (f *fakeSSH) Messages() <-chan session.Message  { return f.ch }

func newTestSession() *session.Session {
	s := session.New("sess-1", session.ConnectionDescriptor{Kind: session.ConnectionLocal})
	_ = s.TransitionTo(session.StatusRunning, "")
	return s
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLocalEOFEmitsDoneWithExitCodeZero(t *testing.T) {
	sess := newTestSession()
	local := newFakeLocal()
	notif := &recordingNotifier{}

	go func() {
		local.w.Write([]byte("hello"))
		local.w.Close()
	}()

	done := make(chan struct{})
	go func() {
		Run(sess, local, notif, DefaultConfig(), discardLogger())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pump did not return after EOF")
	}

	if sess.Status() != session.StatusDone {
		t.Fatalf("status = %s, want done", sess.Status())
	}
	status, ok := notif.last("session.status").(protocol.SessionStatusParams)
	if !ok {
		t.Fatal("expected a session.status notification")
	}
	if status.ExitCode == nil || *status.ExitCode != 0 {
		t.Fatalf("exit code = %v, want 0", status.ExitCode)
	}
}

func TestLocalEOFReportsAdapterWaitExitCode(t *testing.T) {
	sess := newTestSession()
	local := newFakeLocal()
	local.waitCode = 7
	notif := &recordingNotifier{}

	go func() {
		local.w.Write([]byte("hello"))
		local.w.Close()
	}()

	done := make(chan struct{})
	go func() {
		Run(sess, local, notif, DefaultConfig(), discardLogger())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pump did not return after EOF")
	}

	status, ok := notif.last("session.status").(protocol.SessionStatusParams)
	if !ok {
		t.Fatal("expected a session.status notification")
	}
	if status.ExitCode == nil || *status.ExitCode != 7 {
		t.Fatalf("exit code = %v, want 7", status.ExitCode)
	}
}

func TestLocalEOFFallsBackToExitCodeZeroOnWaitError(t *testing.T) {
	sess := newTestSession()
	local := newFakeLocal()
	local.waitErr = errors.New("wait: no child process")
	notif := &recordingNotifier{}

	go func() {
		local.w.Write([]byte("hello"))
		local.w.Close()
	}()

	done := make(chan struct{})
	go func() {
		Run(sess, local, notif, DefaultConfig(), discardLogger())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pump did not return after EOF")
	}

	status, ok := notif.last("session.status").(protocol.SessionStatusParams)
	if !ok {
		t.Fatal("expected a session.status notification")
	}
	if status.ExitCode == nil || *status.ExitCode != 0 {
		t.Fatalf("exit code = %v, want 0 fallback", status.ExitCode)
	}
}

func TestSSHExitCodeEmitsDone(t *testing.T) {
	sess := newTestSession()
	ssh := newFakeSSH()
	notif := &recordingNotifier{}

	code := 3
	ssh.ch <- session.Message{Data: []byte("out")}
	ssh.ch <- session.Message{ExitCode: &code}

	Run(sess, ssh, notif, DefaultConfig(), discardLogger())

	if sess.Status() != session.StatusDone {
		t.Fatalf("status = %s, want done", sess.Status())
	}
	status, ok := notif.last("session.status").(protocol.SessionStatusParams)
	if !ok {
		t.Fatal("expected a session.status notification")
	}
	if status.ExitCode == nil || *status.ExitCode != 3 {
		t.Fatalf("exit code = %v, want 3", status.ExitCode)
	}
}

func TestSSHEOFWithoutExitStatusEmitsDoneNoCode(t *testing.T) {
	sess := newTestSession()
	ssh := newFakeSSH()
	notif := &recordingNotifier{}

	ssh.ch <- session.Message{Err: io.EOF}

	Run(sess, ssh, notif, DefaultConfig(), discardLogger())

	if sess.Status() != session.StatusDone {
		t.Fatalf("status = %s, want done", sess.Status())
	}
	status := notif.last("session.status").(protocol.SessionStatusParams)
	if status.ExitCode != nil {
		t.Fatalf("expected no exit code, got %v", *status.ExitCode)
	}
}

func TestSSHErrorTransitionsToError(t *testing.T) {
	sess := newTestSession()
	ssh := newFakeSSH()
	notif := &recordingNotifier{}

	ssh.ch <- session.Message{Err: errors.New("broken pipe")}

	Run(sess, ssh, notif, DefaultConfig(), discardLogger())

	if sess.Status() != session.StatusError {
		t.Fatalf("status = %s, want error", sess.Status())
	}
}

func TestOSCCwdEmittedBeforeStrippedOutput(t *testing.T) {
	sess := newTestSession()
	local := newFakeLocal()
	notif := &recordingNotifier{}

	payload := "\x1b]7;file://host/home/me/project\x07rest of output"

	go func() {
		local.w.Write([]byte(payload))
		local.w.Close()
	}()

	Run(sess, local, notif, DefaultConfig(), discardLogger())

	methods := notif.methods()
	cwdIdx, outIdx := -1, -1
	for i, m := range methods {
		if m == "session.cwd" && cwdIdx == -1 {
			cwdIdx = i
		}
		if m == "terminal.output" && outIdx == -1 {
			outIdx = i
		}
	}
	if cwdIdx == -1 || outIdx == -1 {
		t.Fatalf("expected both session.cwd and terminal.output, got %v", methods)
	}
	if cwdIdx > outIdx {
		t.Fatalf("session.cwd (%d) must precede terminal.output (%d)", cwdIdx, outIdx)
	}

	cwd := notif.last("session.cwd").(protocol.SessionCwdParams)
	if cwd.Cwd != "/home/me/project" {
		t.Fatalf("cwd = %q", cwd.Cwd)
	}

	out := notif.last("terminal.output").(protocol.TerminalOutputParams)
	decoded, err := base64.StdEncoding.DecodeString(out.Data)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if string(decoded) != "rest of output" {
		t.Fatalf("output = %q, want %q", decoded, "rest of output")
	}
}

func TestStopSignalHaltsLocalPumpWithoutFurtherNotifications(t *testing.T) {
	sess := newTestSession()
	local := newFakeLocal()
	notif := &recordingNotifier{}

	sess.RequestStop()

	Run(sess, local, notif, DefaultConfig(), discardLogger())

	if len(notif.methods()) != 0 {
		t.Fatalf("expected no notifications after immediate stop, got %v", notif.methods())
	}
	local.w.Close()
}

func TestStopSignalHaltsSSHPumpWithoutFurtherNotifications(t *testing.T) {
	sess := newTestSession()
	ssh := newFakeSSH()
	notif := &recordingNotifier{}

	sess.RequestStop()
	ssh.ch <- session.Message{Data: []byte("should not be read")}

	Run(sess, ssh, notif, DefaultConfig(), discardLogger())

	if len(notif.methods()) != 0 {
		t.Fatalf("expected no notifications after immediate stop, got %v", notif.methods())
	}
}
