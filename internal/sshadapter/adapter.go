// Package sshadapter establishes an outbound SSH connection, authenticates,
// opens an interactive shell channel with a PTY, and exposes the same
// narrow transport surface as the local PTY adapter — but driven by an
// asynchronously fed message channel rather than a blocking Reader, since a
// single SSH session channel multiplexes stdout, stderr and exit status.
package sshadapter

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/trybotster/termmux-hub/internal/protocol"
	"github.com/trybotster/termmux-hub/internal/session"
)

const dialTimeout = 10 * time.Second

// Config describes how to dial, authenticate and open the remote shell.
type Config struct {
	Host string
	Port uint16
	User string

	Auth session.AuthMethodKind
	// Secret is the login password when Auth is AuthPassword, or the key
	// passphrase when Auth is AuthPrivateKey (empty if the key is
	// unencrypted).
	Secret       string
	IdentityFile string

	Size session.TerminalSize

	// HostKeyCallback lets the caller override host-key verification
	// policy. If nil, AcceptAndWarn is used: every server key is accepted
	// and a warning is logged, since known-hosts verification policy is an
	// external collaborator this system does not implement.
	HostKeyCallback ssh.HostKeyCallback
}

// AcceptAndWarn is the default host-key verification hook: it accepts any
// server key and logs a warning through logger.
func AcceptAndWarn(logger *slog.Logger) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		logger.Warn("known-hosts check not implemented, accepting host key", "host", hostname)
		return nil
	}
}

// Adapter is a connected SSH shell channel. It implements session.MessageSource.
type Adapter struct {
	client *ssh.Client
	sess   *ssh.Session
	stdin  io.WriteCloser

	messages  chan session.Message
	logger    *slog.Logger
	closeOnce sync.Once
}

// Open performs the full connect-authenticate-shell sequence described in
// the component design, in order, mapping each failure mode to its own
// error code.
func Open(cfg Config, logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	port := cfg.Port
	if port == 0 {
		port = 22
	}
	user := cfg.User
	if user == "" {
		user = currentOSUser()
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(int(port)))

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return nil, protocol.ErrHostResolutionFailed(fmt.Sprintf("cannot resolve %s: %v", cfg.Host, err))
		}
		return nil, protocol.ErrSSHConnectionFailed(fmt.Sprintf("cannot reach %s: %v", addr, err))
	}

	hostKeyCallback := cfg.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback = AcceptAndWarn(logger)
	}

	authMethods, err := buildAuthMethods(cfg, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}

	clientConfig := &ssh.ClientConfig{
		User:            user,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         dialTimeout,
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		conn.Close()
		return nil, classifyHandshakeError(err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	sess, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, protocol.ErrChannelError(fmt.Sprintf("session channel open failed: %v", err))
	}

	size := cfg.Size
	if size.Rows == 0 && size.Cols == 0 {
		size = session.DefaultTerminalSize
	}
	if err := sess.RequestPty("xterm-256color", int(size.Rows), int(size.Cols), ssh.TerminalModes{}); err != nil {
		sess.Close()
		client.Close()
		return nil, protocol.ErrChannelError(fmt.Sprintf("pty request failed: %v", err))
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, protocol.ErrChannelError(fmt.Sprintf("stdin pipe failed: %v", err))
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, protocol.ErrChannelError(fmt.Sprintf("stdout pipe failed: %v", err))
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, protocol.ErrChannelError(fmt.Sprintf("stderr pipe failed: %v", err))
	}

	if err := sess.Shell(); err != nil {
		sess.Close()
		client.Close()
		return nil, protocol.ErrChannelError(fmt.Sprintf("shell request failed: %v", err))
	}

	a := &Adapter{
		client:   client,
		sess:     sess,
		stdin:    stdin,
		messages: make(chan session.Message, 16),
		logger:   logger,
	}
	go a.run(stdout, stderr)

	logger.Info("ssh shell opened", "host", cfg.Host, "port", port, "user", user)
	return a, nil
}

func buildAuthMethods(cfg Config, logger *slog.Logger) ([]ssh.AuthMethod, error) {
	switch cfg.Auth {
	case session.AuthPassword:
		return []ssh.AuthMethod{ssh.Password(cfg.Secret)}, nil
	case session.AuthPrivateKey:
		var signer ssh.Signer
		var err error
		warn := func(msg string) { logger.Warn(msg) }
		if cfg.IdentityFile != "" {
			signer, err = loadPrivateKey(cfg.IdentityFile, cfg.Secret, warn)
		} else {
			signer, err = loadDefaultKey(warn)
		}
		if err != nil {
			return nil, err
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	default:
		return []ssh.AuthMethod{}, nil
	}
}

func classifyHandshakeError(err error) error {
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "unable to authenticate"):
		return protocol.ErrAuthFailed("server requires authentication")
	case strings.Contains(lower, "no common algorithm"):
		return protocol.ErrSSHProtocolError(err.Error())
	default:
		return protocol.ErrSSHConnectionFailed(err.Error())
	}
}

// run multiplexes stdout, stderr, and exit status into a single message
// channel, closing it only after both stream copiers and the exit wait have
// completed so no output is lost before the terminal status is observed.
func (a *Adapter) run(stdout, stderr io.Reader) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); a.copyStream(stdout) }()
	go func() { defer wg.Done(); a.copyStream(stderr) }()

	waitErr := a.sess.Wait()
	wg.Wait()

	var exitErr *ssh.ExitError
	switch {
	case waitErr == nil:
		code := 0
		a.messages <- session.Message{ExitCode: &code}
	case errors.As(waitErr, &exitErr):
		code := exitErr.ExitStatus()
		a.messages <- session.Message{ExitCode: &code}
	default:
		a.messages <- session.Message{Err: io.EOF}
	}
	close(a.messages)
}

func (a *Adapter) copyStream(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			a.messages <- session.Message{Data: data}
		}
		if err != nil {
			return
		}
	}
}

// Kind reports this adapter as an SSH transport.
func (a *Adapter) Kind() session.TransportKind { return session.TransportSSH }

// Messages returns the channel the pump selects on for data and exit status.
func (a *Adapter) Messages() <-chan session.Message { return a.messages }

// Write sends bytes as channel Data to the remote shell's stdin.
func (a *Adapter) Write(p []byte) (int, error) {
	if a.stdin == nil {
		return 0, errors.New("adapter closed")
	}
	return a.stdin.Write(p)
}

// Resize issues an SSH window-change request.
func (a *Adapter) Resize(size session.TerminalSize) error {
	return a.sess.WindowChange(int(size.Rows), int(size.Cols))
}

// Close sends EOF on stdin, closes the channel, then disconnects the SSH
// connection. Safe to call more than once.
func (a *Adapter) Close() error {
	a.closeOnce.Do(func() {
		if a.stdin != nil {
			a.stdin.Close()
		}
		a.sess.Close()
		a.client.Close()
	})
	return nil
}
