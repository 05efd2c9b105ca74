package deadrat

import (
	"github.com/sirupsen/logrus"
)

// Arity declares the shape a command handler was registered with. It is
// stored explicitly at registration time; the dispatch loop never
// inspects a handler's signature.
type Arity int

const (
	// MessageOnly handlers receive just the parsed message.
	MessageOnly Arity = iota
	// MessageAndArgs handlers additionally receive the parsed arguments.
	MessageAndArgs
)

// Lifecycle event names. Registrations under any other name are
// rejected with a warning.
const (
	EventStartup         = "startup"
	EventShutdown        = "shutdown"
	EventConnectionError = "connection_error"
	EventError           = "error"
)

// MessageFunc handles a single message. A returned error is reported
// through the error lifecycle event and never aborts the loop.
type MessageFunc func(msg *Message) error

// CommandFunc is a command handler that also receives the parsed
// arguments.
type CommandFunc func(msg *Message, args []string) error

// EventFunc handles a lifecycle event. err and msg are only set for the
// error event, and msg only when the failure is tied to a message.
type EventFunc func(err error, msg *Message)

type commandEntry struct {
	arity Arity
	msgFn MessageFunc
	cmdFn CommandFunc
}

// Registry holds the command table, the ordered catch-all handlers and
// one slot per lifecycle event. It is mutated only during setup and by
// the single dispatch goroutine, so it needs no locking.
type Registry struct {
	commands map[string]commandEntry
	catchAll []MessageFunc
	events   map[string]EventFunc
	log      *logrus.Logger
}

func newRegistry(log *logrus.Logger) *Registry {
	return &Registry{
		commands: make(map[string]commandEntry),
		events: map[string]EventFunc{
			EventStartup:         nil,
			EventShutdown:        nil,
			EventConnectionError: nil,
			EventError:           nil,
		},
		log: log,
	}
}

// Command registers fn for the exact trigger string, e.g. "/start".
// Registering the same trigger again replaces the earlier handler. The
// handler is returned so callers can keep using it directly.
func (r *Registry) Command(trigger string, fn MessageFunc) MessageFunc {
	r.commands[trigger] = commandEntry{arity: MessageOnly, msgFn: fn}
	return fn
}

// CommandWithArgs registers fn for the exact trigger string; the
// handler is invoked with the message and its parsed arguments.
func (r *Registry) CommandWithArgs(trigger string, fn CommandFunc) CommandFunc {
	r.commands[trigger] = commandEntry{arity: MessageAndArgs, cmdFn: fn}
	return fn
}

// OnMessage registers a catch-all handler for messages whose command
// matched no registered trigger. Catch-alls run in registration order.
func (r *Registry) OnMessage(fn MessageFunc) MessageFunc {
	r.catchAll = append(r.catchAll, fn)
	return fn
}

// On registers a lifecycle event handler. Each event holds at most one
// handler; unknown event names are logged and ignored, leaving every
// slot unchanged.
func (r *Registry) On(event string, fn EventFunc) EventFunc {
	if _, known := r.events[event]; !known {
		r.log.WithField("event", event).Warn("unknown-event-type")
		return fn
	}
	r.events[event] = fn
	return fn
}

// lookup returns the command entry for a parsed command token.
func (r *Registry) lookup(command string) (commandEntry, bool) {
	entry, ok := r.commands[command]
	return entry, ok
}

// fire invokes a lifecycle handler if one is registered. A panicking
// handler is logged and swallowed; lifecycle handlers are best-effort
// and must never take the loop down.
func (r *Registry) fire(event string, err error, msg *Message) {
	fn := r.events[event]
	if fn == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithFields(logrus.Fields{
				"event": event,
				"panic": rec,
			}).Error("event-handler-panic-recovered")
		}
	}()
	fn(err, msg)
}
