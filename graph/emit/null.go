package emit

import "context"

// NullEmitter discards every event. It is the default when no observability
// backend is configured, so Compile never has to special-case a nil
// emitter.
type NullEmitter struct{}

func NewNullEmitter() *NullEmitter { return &NullEmitter{} }

func (n *NullEmitter) Emit(Event) {}

func (n *NullEmitter) EmitBatch(context.Context, []Event) error { return nil }

func (n *NullEmitter) Flush(context.Context) error { return nil }
