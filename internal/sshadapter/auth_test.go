package sshadapter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/trybotster/termmux-hub/internal/protocol"
)

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}
	if got := expandTilde("~/foo/bar"); got != filepath.Join(home, "foo/bar") {
		t.Errorf("expandTilde = %q", got)
	}
	if got := expandTilde("/absolute/path"); got != "/absolute/path" {
		t.Errorf("expandTilde should leave absolute paths alone, got %q", got)
	}
}

func TestLoadPrivateKeyMissingFile(t *testing.T) {
	_, err := loadPrivateKey("/nonexistent/path/to/key", "", nil)
	if err == nil {
		t.Fatal("expected error loading nonexistent key")
	}
}

func TestLoadPrivateKeyWarnsOnLoosePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key")
	if err := os.WriteFile(path, []byte("not a real key"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var warned string
	_, err := loadPrivateKey(path, "", func(msg string) { warned = msg })
	if err == nil {
		t.Fatal("expected parse failure for non-key content")
	}
	if warned == "" {
		t.Fatal("expected a permission warning for mode 0644")
	}
}

func TestDefaultIdentityFilesOnlyListsExisting(t *testing.T) {
	for _, p := range defaultIdentityFiles() {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("listed identity file does not exist: %s", p)
		}
	}
}

func TestClassifyHandshakeError(t *testing.T) {
	cases := []struct {
		msg  string
		kind string
	}{
		{"ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password]", "auth_failed"},
		{"ssh: no common algorithm for key exchange", "ssh_protocol_error"},
		{"dial tcp: connection refused", "ssh_connection_failed"},
	}
	for _, c := range cases {
		err := classifyHandshakeError(errString(c.msg))
		wired := err.Error()
		if wired == "" {
			t.Fatalf("expected non-empty message for %q", c.msg)
		}
		appErr, ok := err.(*protocol.AppError)
		if !ok || appErr.ErrorType != c.kind {
			t.Errorf("classifyHandshakeError(%q) = %v, want kind %q", c.msg, err, c.kind)
		}
	}
}

type errString string

func (e errString) Error() string { return string(e) }
