package protocol

// Wire-shaped parameter and result types for the six request methods. These
// are intentionally distinct from the internal session package's types:
// this layer owns JSON field names and optionality, the session package
// owns the authoritative in-memory shapes.

// TermSizeParams is the wire shape of a terminal size.
type TermSizeParams struct {
	Rows uint16 `json:"rows"`
	Cols uint16 `json:"cols"`
}

// AuthParams describes the SSH auth method and its secret, all optional
// since only one branch is populated per ConnectionParams.Auth value.
type AuthParams struct {
	Method     string `json:"method"` // "none" | "password" | "private_key"
	Password   string `json:"password,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
}

// ConnectionParams is the wire shape of a connection descriptor as accepted
// by session.create.
type ConnectionParams struct {
	Type string `json:"type"` // "local" | "ssh"

	// Local fields.
	Shell string            `json:"shell,omitempty"`
	Cwd   string            `json:"cwd,omitempty"`
	Env   map[string]string `json:"env,omitempty"`

	// SSH fields.
	Host         string      `json:"host,omitempty"`
	Port         uint16      `json:"port,omitempty"`
	User         string      `json:"user,omitempty"`
	Auth         *AuthParams `json:"auth,omitempty"`
	IdentityFile string      `json:"identity_file,omitempty"`
}

// CreateParams is session.create's params.
type CreateParams struct {
	Connection ConnectionParams `json:"connection"`
	TermSize   *TermSizeParams  `json:"term_size,omitempty"`
}

// CreateResult is session.create's result.
type CreateResult struct {
	SessionID string `json:"session_id"`
}

// InputParams is session.input's params.
type InputParams struct {
	SessionID string `json:"session_id"`
	Data      string `json:"data"` // base64
}

// ResizeParams is session.resize's params.
type ResizeParams struct {
	SessionID string         `json:"session_id"`
	TermSize  TermSizeParams `json:"term_size"`
}

// CloseParams is session.close's params.
type CloseParams struct {
	SessionID string `json:"session_id"`
}

// GetParams is session.get's params.
type GetParams struct {
	SessionID string `json:"session_id"`
}

// SessionInfoParams is the wire shape of a session-info snapshot, returned
// by both session.list and session.get.
type SessionInfoParams struct {
	ID             string `json:"id"`
	ConnectionType string `json:"connection_type"`
	Status         string `json:"status"`
	Title          string `json:"title,omitempty"`
	Cwd            string `json:"cwd,omitempty"`
	ExitCode       *int   `json:"exit_code,omitempty"`
	CreatedAt      int64  `json:"created_at"`
}
