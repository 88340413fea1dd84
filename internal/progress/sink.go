package progress

import "context"

// Sink consumes batches of progress events. Implementations must honor ctx
// deadlines, tolerate repeated calls and must not retain batch after
// returning.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events. Hub satisfies it so the pipeline stays
// agnostic about how events are delivered.
type Emitter interface {
	Emit(evt Event)
}
