package core

// Frame is a raw signaling payload as it travels on the wire.
type Frame []byte

// SignalConnection abstracts one client's messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
