package sshadapter

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/trybotster/termmux-hub/internal/protocol"
)

// defaultIdentityNames lists the conventional private key file names under
// ~/.ssh, tried in priority order when no explicit identity file is given.
var defaultIdentityNames = []string{"id_ed25519", "id_ecdsa", "id_rsa", "id_dsa", "identity"}

func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func defaultIdentityFiles() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	sshDir := filepath.Join(home, ".ssh")
	var paths []string
	for _, name := range defaultIdentityNames {
		p := filepath.Join(sshDir, name)
		if _, err := os.Stat(p); err == nil {
			paths = append(paths, p)
		}
	}
	return paths
}

// loadPrivateKey reads and parses a private key file, expanding a leading
// ~/ and warning (not failing) about over-permissive file modes on POSIX.
func loadPrivateKey(path, passphrase string, warn func(string)) (ssh.Signer, error) {
	expanded := expandTilde(path)

	info, err := os.Stat(expanded)
	if err != nil {
		return nil, protocol.ErrKeyLoadFailed(fmt.Sprintf("%s: file does not exist", path))
	}

	if mode := info.Mode().Perm(); mode&0o077 != 0 && warn != nil {
		warn(fmt.Sprintf("private key %s has overly permissive mode %o, recommend 600", path, mode))
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, protocol.ErrKeyLoadFailed(fmt.Sprintf("%s: cannot read file: %v", path, err))
	}

	if passphrase != "" {
		signer, err := ssh.ParsePrivateKeyWithPassphrase(data, []byte(passphrase))
		if err != nil {
			return nil, protocol.ErrKeyLoadFailed(fmt.Sprintf("%s: parse failed (passphrase may be wrong): %v", path, err))
		}
		return signer, nil
	}

	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "passphrase") ||
			strings.Contains(strings.ToLower(err.Error()), "encrypted") {
			return nil, protocol.ErrKeyLoadFailed(fmt.Sprintf("%s: encrypted; passphrase required", path))
		}
		return nil, protocol.ErrKeyLoadFailed(fmt.Sprintf("%s: parse failed: %v", path, err))
	}
	return signer, nil
}

// loadDefaultKey tries the conventional identity files in priority order and
// returns the first that decodes without a passphrase.
func loadDefaultKey(warn func(string)) (ssh.Signer, error) {
	var lastErr error
	for _, path := range defaultIdentityFiles() {
		signer, err := loadPrivateKey(path, "", warn)
		if err == nil {
			return signer, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = protocol.ErrKeyLoadFailed("no default identity file found under ~/.ssh")
	}
	return nil, lastErr
}

func currentOSUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "root"
}
