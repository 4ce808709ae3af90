// Package ptyadapter spawns a shell under a pseudo-terminal and exposes the
// narrow read/write/resize/wait/kill surface the session registry and
// output pump use uniformly across local and SSH transports.
package ptyadapter

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sync"

	"github.com/creack/pty"

	"github.com/trybotster/termmux-hub/internal/session"
)

// Config describes how to spawn the shell.
type Config struct {
	Shell string
	Cwd   string
	Env   map[string]string
	Size  session.TerminalSize
}

// Adapter is a spawned local shell bound to a PTY master file. It
// implements session.LocalSource.
type Adapter struct {
	mu     sync.Mutex
	ptmx   *os.File
	cmd    *exec.Cmd
	logger *slog.Logger

	waitCode int
	waitErr  error
	waitDone chan struct{}
}

// Open spawns cfg.Shell (or the platform default) under a new PTY sized to
// cfg.Size. TERM=xterm-256color is prepended to the environment overlay;
// caller-supplied entries win on conflict.
func Open(cfg Config, logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	shell := cfg.Shell
	if shell == "" {
		shell = defaultShell()
	}

	env := append([]string{"TERM=xterm-256color"}, os.Environ()...)
	for k, v := range cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	cmd := exec.Command(shell)
	cmd.Dir = cfg.Cwd
	cmd.Env = env

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: cfg.Size.Rows, Cols: cfg.Size.Cols})
	if err != nil {
		return nil, fmt.Errorf("pty creation failed: %w", err)
	}

	a := &Adapter{
		ptmx:     ptmx,
		cmd:      cmd,
		logger:   logger,
		waitDone: make(chan struct{}),
	}
	go a.watchExit()

	logger.Info("local pty spawned", "shell", shell, "cwd", cfg.Cwd)
	return a, nil
}

func defaultShell() string {
	if runtime.GOOS == "windows" {
		if c := os.Getenv("COMSPEC"); c != "" {
			return c
		}
		return "cmd.exe"
	}
	if s := os.Getenv("SHELL"); s != "" {
		return s
	}
	return "/bin/sh"
}

// Kind reports this adapter as a local transport.
func (a *Adapter) Kind() session.TransportKind { return session.TransportLocal }

// CloneReader returns the PTY master as an io.Reader. Only one reader is
// ever handed out (the pump's dedicated goroutine); the adapter does not
// itself read from it.
func (a *Adapter) CloneReader() (io.Reader, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ptmx == nil {
		return nil, errors.New("adapter closed")
	}
	return a.ptmx, nil
}

// Write sends bytes to the shell's stdin.
func (a *Adapter) Write(p []byte) (int, error) {
	a.mu.Lock()
	f := a.ptmx
	a.mu.Unlock()
	if f == nil {
		return 0, errors.New("adapter closed")
	}
	return f.Write(p)
}

// Resize changes the PTY window size.
func (a *Adapter) Resize(size session.TerminalSize) error {
	a.mu.Lock()
	f := a.ptmx
	a.mu.Unlock()
	if f == nil {
		return errors.New("adapter closed")
	}
	return pty.Setsize(f, &pty.Winsize{Rows: size.Rows, Cols: size.Cols})
}

// watchExit waits for the child process in the background so TryWait/Wait
// never block on process reaping after the fact.
func (a *Adapter) watchExit() {
	err := a.cmd.Wait()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			a.waitErr = err
		}
	}
	a.waitCode = code
	close(a.waitDone)
}

// TryWait reports the exit code if the child has already exited, without
// blocking.
func (a *Adapter) TryWait() (code int, exited bool) {
	select {
	case <-a.waitDone:
		return a.waitCode, true
	default:
		return 0, false
	}
}

// Wait blocks until the child process exits and returns its exit code.
func (a *Adapter) Wait() (int, error) {
	<-a.waitDone
	return a.waitCode, a.waitErr
}

// Close kills the child process and releases the PTY master. Safe to call
// more than once.
func (a *Adapter) Close() error {
	a.mu.Lock()
	ptmx := a.ptmx
	cmd := a.cmd
	a.ptmx = nil
	a.mu.Unlock()

	if ptmx == nil {
		return nil
	}

	if cmd != nil && cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			a.logger.Warn("failed to kill pty child", "error", err)
		}
	}
	err := ptmx.Close()
	<-a.waitDone
	return err
}
