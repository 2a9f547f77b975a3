package notification

import "time"

// Channel is one live push connection to a client. Implementations must be
// safe for concurrent Send calls; the registry delivers to sibling channels
// from multiple goroutines.
type Channel interface {
	// Send delivers an event to the client. An error marks the channel as
	// broken; the registry removes it without affecting the user's other
	// channels.
	Send(event *Event) error

	// Ping probes the connection. Used by the keepalive loop when no
	// traffic has been seen within the idle window.
	Ping() error

	// LastActive reports the time of the last successful send, received
	// message or answered ping.
	LastActive() time.Time

	// Close tears the connection down. Closing twice must be safe.
	Close() error
}
