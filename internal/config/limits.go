package config

import "time"

const (
	// Directory
	SearchResultLimit = 10

	// Messages
	MaxMessageLength = 4000

	// Notifications
	NotificationBodyLimit    = 50
	NotificationEllipsis     = "..."
	DefaultNotificationLimit = 20
	MaxNotificationLimit     = 100

	// Live streams
	SubscriptionBuffer = 256

	// Sync coordinator
	RefetchPerSecond      = 10
	ReconnectInitialDelay = 250 * time.Millisecond
	ReconnectMaxDelay     = 30 * time.Second
	DegradedAfterFailures = 3
)
