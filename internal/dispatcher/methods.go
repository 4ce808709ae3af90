package dispatcher

import (
	"encoding/json"
	"fmt"

	"github.com/trybotster/termmux-hub/internal/protocol"
	"github.com/trybotster/termmux-hub/internal/session"
)

// dispatch looks up req.Method in the fixed method table and runs it,
// returning a JSON-marshalable result or a wire-ready error.
func (d *Dispatcher) dispatch(req protocol.Request) (any, error) {
	switch req.Method {
	case "session.create":
		return d.handleCreate(req.Params)
	case "session.input":
		return nil, d.handleInput(req.Params)
	case "session.resize":
		return nil, d.handleResize(req.Params)
	case "session.close":
		return nil, d.handleClose(req.Params)
	case "session.list":
		return d.handleList()
	case "session.get":
		return d.handleGet(req.Params)
	default:
		return nil, protocol.ErrMethodNotFound(req.Method)
	}
}

func (d *Dispatcher) handleCreate(raw json.RawMessage) (*protocol.CreateResult, error) {
	var params protocol.CreateParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, protocol.ErrInvalidParams(err.Error())
	}

	desc, err := toConnectionDescriptor(params.Connection)
	if err != nil {
		return nil, err
	}
	size := session.DefaultTerminalSize
	if params.TermSize != nil {
		size = toTerminalSize(*params.TermSize)
	}

	id, err := d.registry.Create(desc, size)
	if err != nil {
		return nil, err
	}
	return &protocol.CreateResult{SessionID: id}, nil
}

func (d *Dispatcher) handleInput(raw json.RawMessage) error {
	var params protocol.InputParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return protocol.ErrInvalidParams(err.Error())
	}
	return d.registry.Input(params.SessionID, params.Data)
}

func (d *Dispatcher) handleResize(raw json.RawMessage) error {
	var params protocol.ResizeParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return protocol.ErrInvalidParams(err.Error())
	}
	return d.registry.Resize(params.SessionID, toTerminalSize(params.TermSize))
}

func (d *Dispatcher) handleClose(raw json.RawMessage) error {
	var params protocol.CloseParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return protocol.ErrInvalidParams(err.Error())
	}
	return d.registry.Close(params.SessionID)
}

func (d *Dispatcher) handleList() ([]protocol.SessionInfoParams, error) {
	infos := d.registry.List()
	out := make([]protocol.SessionInfoParams, len(infos))
	for i, info := range infos {
		out[i] = toSessionInfoParams(info)
	}
	return out, nil
}

func (d *Dispatcher) handleGet(raw json.RawMessage) (*protocol.SessionInfoParams, error) {
	var params protocol.GetParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, protocol.ErrInvalidParams(err.Error())
	}
	info, err := d.registry.Get(params.SessionID)
	if err != nil {
		return nil, err
	}
	out := toSessionInfoParams(info)
	return &out, nil
}

func toTerminalSize(p protocol.TermSizeParams) session.TerminalSize {
	return session.TerminalSize{Rows: p.Rows, Cols: p.Cols}
}

func toConnectionDescriptor(p protocol.ConnectionParams) (session.ConnectionDescriptor, error) {
	switch p.Type {
	case "local":
		return session.ConnectionDescriptor{
			Kind:  session.ConnectionLocal,
			Shell: p.Shell,
			Cwd:   p.Cwd,
			Env:   p.Env,
		}, nil
	case "ssh":
		desc := session.ConnectionDescriptor{
			Kind:         session.ConnectionSSH,
			Host:         p.Host,
			Port:         p.Port,
			User:         p.User,
			IdentityFile: p.IdentityFile,
		}
		if p.Auth == nil {
			return session.ConnectionDescriptor{}, protocol.ErrInvalidParams("ssh connection requires auth")
		}
		switch p.Auth.Method {
		case "none":
			desc.Auth = session.AuthNone
		case "password":
			desc.Auth = session.AuthPassword
			desc.Password = p.Auth.Password
		case "private_key":
			desc.Auth = session.AuthPrivateKey
			desc.Password = p.Auth.Passphrase
		default:
			return session.ConnectionDescriptor{}, protocol.ErrInvalidParams(fmt.Sprintf("unknown auth method %q", p.Auth.Method))
		}
		return desc, nil
	default:
		return session.ConnectionDescriptor{}, protocol.ErrInvalidParams(fmt.Sprintf("unknown connection type %q", p.Type))
	}
}

func toSessionInfoParams(info session.Info) protocol.SessionInfoParams {
	out := protocol.SessionInfoParams{
		ID:             info.ID,
		ConnectionType: string(info.Connection.Kind),
		Status:         string(info.Status),
		ExitCode:       info.ExitCode,
		CreatedAt:      info.CreatedAt,
	}
	if info.Title != nil {
		out.Title = *info.Title
	}
	if info.Cwd != nil {
		out.Cwd = *info.Cwd
	}
	return out
}
