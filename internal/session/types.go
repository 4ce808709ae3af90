// Package session holds the terminal multiplexer's authoritative per-session
// record: identity, connection descriptor, lifecycle status and the narrow
// transport surface that the local PTY and SSH adapters both implement.
package session

import "io"

// TerminalSize is rows/cols in character cells. Pixel dimensions are never
// negotiated and are always reported as zero to transports that ask for them.
type TerminalSize struct {
	Rows uint16 `json:"rows"`
	Cols uint16 `json:"cols"`
}

// DefaultTerminalSize is used whenever a caller omits term_size.
var DefaultTerminalSize = TerminalSize{Rows: 24, Cols: 80}

// ConnectionKind tags the ConnectionDescriptor union.
type ConnectionKind string

const (
	ConnectionLocal ConnectionKind = "local"
	ConnectionSSH   ConnectionKind = "ssh"
)

// AuthMethodKind tags the SSH auth union carried inside ConnectionDescriptor.
type AuthMethodKind string

const (
	AuthNone       AuthMethodKind = "none"
	AuthPassword   AuthMethodKind = "password"
	AuthPrivateKey AuthMethodKind = "private_key"
)

// ConnectionDescriptor is a tagged union: exactly one of the Local or SSH
// fields is meaningful, selected by Kind. It is immutable once a session is
// created from it.
type ConnectionDescriptor struct {
	Kind ConnectionKind

	// Local fields.
	Shell string
	Cwd   string
	Env   map[string]string

	// SSH fields.
	Host         string
	Port         uint16
	User         string
	Auth         AuthMethodKind
	IdentityFile string
	Password     string
}

// Redacted returns a copy with any secret fields blanked, safe to place in a
// session-info snapshot or log line.
func (c ConnectionDescriptor) Redacted() ConnectionDescriptor {
	r := c
	r.Password = ""
	return r
}

// Status is one of the five lifecycle states a Session can occupy.
type Status string

const (
	StatusInit       Status = "init"
	StatusConnecting Status = "connecting"
	StatusRunning    Status = "running"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// CanTransition reports whether moving from `from` to `to` is permitted by
// the state machine in the component design. Self-transitions are always a
// no-op success except out of the terminal states, where only a self
// transition is legal at all.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusDone, StatusError:
		return false
	case StatusInit:
		return to == StatusConnecting || to == StatusRunning || to == StatusDone || to == StatusError
	case StatusConnecting:
		return to == StatusRunning || to == StatusDone || to == StatusError
	case StatusRunning:
		return to == StatusDone || to == StatusError
	default:
		return false
	}
}

// TransportKind distinguishes the two concrete adapters behind the Transport
// interface without resorting to a type hierarchy.
type TransportKind int

const (
	TransportLocal TransportKind = iota
	TransportSSH
)

// Transport is the narrow surface every adapter exposes to the registry.
// Reading is not part of this interface on purpose: local and SSH adapters
// surface their read path differently (see LocalSource and MessageSource)
// and the output pump picks the right one with a single type switch.
type Transport interface {
	Kind() TransportKind
	Write(p []byte) (int, error)
	Resize(size TerminalSize) error
	Close() error
}

// LocalSource is implemented by transports whose read path is a single
// blocking Reader clone, driven by a dedicated goroutine in the pump.
type LocalSource interface {
	Transport
	CloneReader() (io.Reader, error)
	TryWait() (code int, exited bool)
	Wait() (code int, err error)
}

// Message is one unit handed from an async transport to its pump.
type Message struct {
	Data     []byte
	Err      error
	ExitCode *int
}

// MessageSource is implemented by transports that surface their read path as
// an asynchronously fed channel instead of a blocking Reader (the SSH
// adapter, which must multiplex stdout, stderr and exit-status messages).
type MessageSource interface {
	Transport
	Messages() <-chan Message
}

// Info is the redacted, read-only view of a Session returned by list/get.
type Info struct {
	ID         string                `json:"id"`
	Connection ConnectionDescriptor  `json:"connection"`
	Status     Status                `json:"status"`
	Title      *string               `json:"title,omitempty"`
	Cwd        *string               `json:"cwd,omitempty"`
	ExitCode   *int                  `json:"exit_code,omitempty"`
	CreatedAt  int64                 `json:"created_at"`
}
