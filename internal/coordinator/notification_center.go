package coordinator

import (
	"context"
	"sync"

	"nexochat/backend/internal/config"
	"nexochat/backend/internal/models"

	"golang.org/x/sync/errgroup"
)

// NotificationSnapshot is what the notification center displays.
type NotificationSnapshot struct {
	Items  []models.Notification
	Unread int64
}

// NotificationCenter is the live notification list and unread badge.
type NotificationCenter struct {
	*Coordinator[NotificationSnapshot]

	backend NotificationBackend

	mu   sync.RWMutex
	snap NotificationSnapshot
}

func NewNotificationCenter(backend NotificationBackend, opts Options) *NotificationCenter {
	n := &NotificationCenter{backend: backend}
	src := SourceFuncs[NotificationSnapshot]{
		FetchFunc: func(ctx context.Context) (NotificationSnapshot, error) {
			var snap NotificationSnapshot
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() (err error) {
				snap.Items, err = backend.ListNotifications(gctx, config.DefaultNotificationLimit)
				return err
			})
			g.Go(func() (err error) {
				snap.Unread, err = backend.UnreadCount(gctx)
				return err
			})
			if err := g.Wait(); err != nil {
				return NotificationSnapshot{}, err
			}
			return snap, nil
		},
		SubscribeFunc: backend.WatchNotifications,
	}
	n.Coordinator = New[NotificationSnapshot]("notifications", src, n, opts)
	return n
}

// Replace keeps its own copy of the items, which MarkRead edits in place.
func (n *NotificationCenter) Replace(snap NotificationSnapshot) {
	snap.Items = append([]models.Notification(nil), snap.Items...)
	n.mu.Lock()
	n.snap = snap
	n.mu.Unlock()
}

func (n *NotificationCenter) Reset() { n.Replace(NotificationSnapshot{}) }

func (n *NotificationCenter) Snapshot() NotificationSnapshot {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return NotificationSnapshot{
		Items:  append([]models.Notification(nil), n.snap.Items...),
		Unread: n.snap.Unread,
	}
}

func (n *NotificationCenter) Unread() int64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.snap.Unread
}

// MarkRead flips the notification locally, then on the server. A failed
// write is undone by refetching.
func (n *NotificationCenter) MarkRead(ctx context.Context, id uint) error {
	n.Update(func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i := range n.snap.Items {
			if n.snap.Items[i].ID == id && !n.snap.Items[i].IsRead {
				n.snap.Items[i].IsRead = true
				if n.snap.Unread > 0 {
					n.snap.Unread--
				}
			}
		}
	})
	if err := n.backend.MarkRead(ctx, id); err != nil {
		n.Refresh()
		return err
	}
	return nil
}

// MarkAllRead clears the badge locally, then on the server.
func (n *NotificationCenter) MarkAllRead(ctx context.Context) (int64, error) {
	n.Update(func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i := range n.snap.Items {
			n.snap.Items[i].IsRead = true
		}
		n.snap.Unread = 0
	})
	changed, err := n.backend.MarkAllRead(ctx)
	if err != nil {
		n.Refresh()
		return 0, err
	}
	return changed, nil
}
