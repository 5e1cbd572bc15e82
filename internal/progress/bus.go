package progress

import "log/slog"

// Bus bundles the two progress topics.
type Bus struct {
	Scalar   *Topic[ScalarProgress]
	Workflow *Topic[WorkflowEvent]
}

// NewBus constructs a Bus whose subscriber mailboxes hold at most queueLimit
// undelivered events.
func NewBus(queueLimit int, logger *slog.Logger) *Bus {
	return &Bus{
		Scalar:   NewTopic[ScalarProgress](ChannelScalar, queueLimit, logger),
		Workflow: NewTopic[WorkflowEvent](ChannelWorkflow, queueLimit, logger),
	}
}

// Close stops delivery on both topics.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.Scalar.Close()
	b.Workflow.Close()
}
