package coordinator_test

import (
	"context"
	"testing"
	"time"

	"nexochat/backend/internal/apperror"
	"nexochat/backend/internal/coordinator"
	"nexochat/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockNotificationBackend struct {
	mock.Mock
}

func (m *MockNotificationBackend) ListNotifications(ctx context.Context, limit int) ([]models.Notification, error) {
	args := m.Called(limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Notification), args.Error(1)
}

func (m *MockNotificationBackend) UnreadCount(ctx context.Context) (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockNotificationBackend) MarkRead(ctx context.Context, notificationID uint) error {
	args := m.Called(notificationID)
	return args.Error(0)
}

func (m *MockNotificationBackend) MarkAllRead(ctx context.Context) (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockNotificationBackend) WatchNotifications(ctx context.Context, onChange func()) (coordinator.Stream, error) {
	m.Called()
	return newFakeStream(), nil
}

func TestNotificationCenter_RollsBackFailedWrites(t *testing.T) {
	// Arrange
	backend := new(MockNotificationBackend)
	unread := []models.Notification{{ID: 1, UserID: "u1", Body: "hi"}, {ID: 2, UserID: "u1", Body: "yo"}}
	backend.On("WatchNotifications").Return()
	backend.On("ListNotifications", 20).Return(unread, nil)
	backend.On("UnreadCount").Return(int64(2), nil)
	backend.On("MarkRead", uint(1)).Return(apperror.Unavailable("server unreachable"))
	backend.On("MarkAllRead").Return(int64(0), apperror.Unavailable("server unreachable"))

	center := coordinator.NewNotificationCenter(backend, fastOptions())
	defer center.Close()
	require.NoError(t, center.Start(context.Background()))
	require.Equal(t, int64(2), center.Unread())

	// Act
	err := center.MarkRead(context.Background(), 1)

	// Assert
	assert.True(t, apperror.IsTransient(err))
	assert.Eventually(t, func() bool {
		s := center.Snapshot()
		return s.Unread == 2 && !s.Items[0].IsRead
	}, time.Second, 5*time.Millisecond)

	_, err = center.MarkAllRead(context.Background())
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return center.Unread() == 2 }, time.Second, 5*time.Millisecond)

	backend.AssertCalled(t, "MarkRead", uint(1))
	backend.AssertCalled(t, "MarkAllRead")
}
