package core

// Frame is a raw encoded envelope.
type Frame []byte

// SignalConnection abstracts one relay-side member transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Outbox is the outbound half of the relay client as seen by engine components.
// Implementations preserve send order.
type Outbox interface {
	Send(Message) error
}

// OutboxFunc adapts a function to Outbox.
type OutboxFunc func(Message) error

func (f OutboxFunc) Send(m Message) error { return f(m) }
