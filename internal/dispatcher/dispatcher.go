// Package dispatcher implements the inbound request reader and outbound
// notification writer that together drive the system's line-delimited
// JSON-RPC protocol, serializing both onto a single output stream.
package dispatcher

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/trybotster/termmux-hub/internal/notifier"
	"github.com/trybotster/termmux-hub/internal/protocol"
	"github.com/trybotster/termmux-hub/internal/registry"
)

// shutdownTimeout bounds how long the dispatcher waits for session teardown
// after observing EOF on its input.
const shutdownTimeout = 5 * time.Second

// Dispatcher reads requests from an input stream and writes responses and
// notifications to an output stream, serializing writers on outMu so
// frames are never interleaved mid-line.
type Dispatcher struct {
	registry      *registry.Registry
	notifications *notifier.Queue
	logger        *slog.Logger

	outMu sync.Mutex
	out   *bufio.Writer
}

// New builds a Dispatcher bound to reg and notifications. Callers construct
// the registry with the same notifications queue so pumps started by the
// registry feed the writer goroutine started by Run.
func New(reg *registry.Registry, notifications *notifier.Queue, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{registry: reg, notifications: notifications, logger: logger}
}

// Run reads newline-delimited JSON requests from in until EOF, dispatching
// each to the registry and writing a response to out; concurrently it
// drains the notification queue onto the same out. Run blocks until input
// reaches EOF, at which point it shuts down the registry and returns.
func (d *Dispatcher) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	d.out = bufio.NewWriter(out)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		d.writeNotifications()
	}()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		d.handleLine(line)
	}
	err := scanner.Err()

	d.notifications.Close()
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	d.registry.Shutdown(shutdownCtx)
	<-writerDone

	return err
}

// writeNotifications drains the notification queue until it is closed and
// drained, writing each frame as one JSON line.
func (d *Dispatcher) writeNotifications() {
	for {
		frame, ok := d.notifications.Pop()
		if !ok {
			return
		}
		note, err := protocol.NewNotification(frame.Method, frame.Params)
		if err != nil {
			d.logger.Error("failed to marshal notification params", "method", frame.Method, "error", err)
			continue
		}
		d.writeFrame(note)
	}
}

func (d *Dispatcher) handleLine(line string) {
	var req protocol.Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		d.writeFrame(protocol.NewErrorResponse(nil, protocol.ErrParse(err.Error())))
		return
	}
	if req.JSONRPC != protocol.Version {
		d.writeFrame(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest("jsonrpc must be \"2.0\"")))
		return
	}

	result, err := d.dispatch(req)
	if err != nil {
		d.writeFrame(protocol.NewErrorResponse(req.ID, err))
		return
	}
	resp, err := protocol.NewResult(req.ID, result)
	if err != nil {
		d.writeFrame(protocol.NewErrorResponse(req.ID, protocol.ErrInternal(err.Error())))
		return
	}
	d.writeFrame(resp)
}

func (d *Dispatcher) writeFrame(v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		d.logger.Error("failed to marshal outbound frame", "error", err)
		return
	}

	d.outMu.Lock()
	defer d.outMu.Unlock()
	d.out.Write(raw)
	d.out.WriteByte('\n')
	d.out.Flush()
}
