package events

import "context"

// Store appends events to the outbox, joining the caller's transaction.
type Store interface {
	Append(ctx context.Context, evts ...*Event) error
}

// Publisher records events transactionally and hands them to the in-process
// dispatcher once the caller has committed.
type Publisher struct {
	store      Store
	dispatcher *Dispatcher
}

func NewPublisher(store Store, dispatcher *Dispatcher) *Publisher {
	return &Publisher{store: store, dispatcher: dispatcher}
}

// Record writes events to the outbox. Call it inside the unit of work.
func (p *Publisher) Record(ctx context.Context, evts ...*Event) error {
	if p == nil || len(evts) == 0 {
		return nil
	}
	return p.store.Append(ctx, evts...)
}

// Dispatch delivers committed events to subscribers. Safe on a nil Publisher
// or one built without a dispatcher.
func (p *Publisher) Dispatch(ctx context.Context, evts ...*Event) {
	if p == nil || p.dispatcher == nil || len(evts) == 0 {
		return
	}
	p.dispatcher.Dispatch(ctx, evts...)
}
