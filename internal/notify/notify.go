package notify

import (
	"context"
	"log/slog"
)

// Kinds of notification requests the engine emits.
const (
	KindMention     = "mention"
	KindRoomMessage = "room_message"
)

// Request describes one notification for one user. Payload is the wire
// frame the user missed.
type Request struct {
	UserID  string
	Kind    string
	RoomID  string
	Payload []byte
}

// Dispatcher hands notification requests to an external delivery path
// (push, email, whatever the deployment wires in). The engine fires and
// forgets; a slow dispatcher must never stall message fanout.
type Dispatcher interface {
	Notify(ctx context.Context, req Request) error
}

// LogDispatcher is the default Dispatcher: it records each request and
// delivers nothing. Deployments replace it with a real delivery path.
type LogDispatcher struct {
	log *slog.Logger
}

// NewLogDispatcher returns a Dispatcher that only logs.
func NewLogDispatcher(log *slog.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

// Notify logs the request.
func (d *LogDispatcher) Notify(_ context.Context, req Request) error {
	d.log.Debug("notification request",
		"user", req.UserID,
		"kind", req.Kind,
		"room", req.RoomID,
	)
	return nil
}
