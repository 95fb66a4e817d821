package engine

// CommandKind enumerates the operator-issued commands the engine accepts
// over its command channel.
type CommandKind string

const (
	CommandPause            CommandKind = "pause"
	CommandResume           CommandKind = "resume"
	CommandRefreshUniverse  CommandKind = "refresh_universe"
	CommandApplyConfig      CommandKind = "apply_config"
	CommandQuit             CommandKind = "quit"
)

// Command is one operator-issued instruction delivered to the engine's
// control loop. Payload's meaning depends on Kind: for ApplyConfig it is
// the new *config.Config (kept as `any` here so this package doesn't
// import config, avoiding an import cycle with config's own translator
// methods).
type Command struct {
	Kind    CommandKind
	Payload any
}

// CommandQueue is a single-producer-many-consumer style channel wrapper:
// any goroutine may Send, only the engine's control loop reads Commands().
// It never blocks a sender for long — the channel is buffered so a UI
// command handler posting "pause" never stalls on the engine being busy
// mid-cycle.
type CommandQueue struct {
	ch chan Command
}

// NewCommandQueue returns a queue buffered to capacity.
func NewCommandQueue(capacity int) *CommandQueue {
	if capacity < 1 {
		capacity = 8
	}
	return &CommandQueue{ch: make(chan Command, capacity)}
}

// Send enqueues cmd. Returns false if the queue is full, in which case the
// caller should treat the command as dropped rather than block.
func (q *CommandQueue) Send(cmd Command) bool {
	select {
	case q.ch <- cmd:
		return true
	default:
		return false
	}
}

// Commands exposes the receive-only channel for the engine's control loop.
func (q *CommandQueue) Commands() <-chan Command {
	return q.ch
}
