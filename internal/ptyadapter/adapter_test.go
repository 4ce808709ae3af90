package ptyadapter

import (
	"bufio"
	"strings"
	"testing"
	"time"

	"github.com/trybotster/termmux-hub/internal/session"
)

func TestOpenSpawnsShellAndEchoesOutput(t *testing.T) {
	a, err := Open(Config{
		Shell: "/bin/sh",
		Cwd:   "/tmp",
		Size:  session.TerminalSize{Rows: 24, Cols: 80},
	}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	if _, err := a.Write([]byte("echo hello_from_pty\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	reader, err := a.CloneReader()
	if err != nil {
		t.Fatalf("CloneReader: %v", err)
	}

	found := make(chan struct{})
	go func() {
		scanner := bufio.NewScanner(reader)
		for scanner.Scan() {
			if strings.Contains(scanner.Text(), "hello_from_pty") {
				close(found)
				return
			}
		}
	}()

	select {
	case <-found:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for echoed output")
	}
}

func TestResizeOnClosedAdapterFails(t *testing.T) {
	a, err := Open(Config{Shell: "/bin/sh", Size: session.TerminalSize{Rows: 24, Cols: 80}}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := a.Resize(session.TerminalSize{Rows: 30, Cols: 100}); err == nil {
		t.Fatal("expected resize on closed adapter to fail")
	}
}

func TestWaitReportsExitCode(t *testing.T) {
	a, err := Open(Config{
		Shell: "/bin/sh",
		Env:   map[string]string{"TESTVAR": "1"},
		Size:  session.TerminalSize{Rows: 24, Cols: 80},
	}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := a.Write([]byte("exit 7\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	code, err := a.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if code != 7 {
		t.Fatalf("exit code = %d, want 7", code)
	}
}

func TestKindIsLocal(t *testing.T) {
	a := &Adapter{}
	if a.Kind() != session.TransportLocal {
		t.Fatalf("Kind() = %v, want TransportLocal", a.Kind())
	}
}
