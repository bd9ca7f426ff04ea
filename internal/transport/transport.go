package transport

// Transport defines a generic interface for sending status or meter frames.
// Implementations must be thread-safe and must never block the caller for
// long: Send is invoked from the render thread's observer hooks.
type Transport interface {
	Send(data any) error
	Close() error
}

// PrioritySender is implemented by transports that can bypass their rate
// limiting for frames a client explicitly requested.
type PrioritySender interface {
	SendNow(data any) error
}

// MeterProvider is implemented by processors that expose their latest
// per-bus meter values for pull-based publishers (the UDP packet loop).
type MeterProvider interface {
	// MetersInto copies the latest meter values into dst and returns the
	// number of values written. dst must hold at least MeterCount values.
	MetersInto(dst []float64) (int, error)
	// MeterCount returns the number of values MetersInto produces.
	MeterCount() int
}
