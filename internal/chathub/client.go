package chathub

import "nexochat/backend/internal/models"

// Client is one live stream connection. It abstracts the transport so the
// hub can track and shut down clients uniformly.
type Client interface {
	// GetUserID returns the identifier of the authenticated user.
	GetUserID() string
	// GetTopic returns the broker topic the client is streaming.
	GetTopic() string

	// Deliver queues an event for the client without blocking. It reports
	// false when the client could not keep up and is being dropped.
	Deliver(ev models.ChangeEvent) bool

	// Run starts the client's read and write pumps.
	Run()
	// Close ends the connection with the given close code and reason.
	Close(code int, reason string)
}
