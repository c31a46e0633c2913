package chathub_test

import (
	"sync"

	"nexochat/backend/internal/models"
)

type MockClient struct {
	userID      string
	topic       string
	RecvChannel chan models.ChangeEvent

	mu          sync.Mutex
	closed      bool
	closeCode   int
	closeReason string
}

func newMockClient(userID string) *MockClient {
	return &MockClient{
		userID:      userID,
		topic:       "notifications:user_id=eq." + userID,
		RecvChannel: make(chan models.ChangeEvent, 10),
	}
}

func (c *MockClient) GetUserID() string { return c.userID }
func (c *MockClient) GetTopic() string  { return c.topic }

func (c *MockClient) Deliver(ev models.ChangeEvent) bool {
	select {
	case c.RecvChannel <- ev:
		return true
	default:
		return false
	}
}

func (c *MockClient) Run() {
	// Not needed for testing
}

func (c *MockClient) Close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
}

func (c *MockClient) closedWith() (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeCode
}
