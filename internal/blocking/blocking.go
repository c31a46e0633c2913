// Package blocking keeps the block list and answers whether two users may
// talk to each other.
package blocking

import (
	"context"
	"strings"

	"nexochat/backend/internal/apperror"
	"nexochat/backend/internal/directory"
	"nexochat/backend/internal/models"

	jww "github.com/spf13/jwalterweatherman"
	"gorm.io/gorm"
)

var (
	ErrSelfBlock = apperror.InvalidArg("users cannot block themselves")
	// ErrBlocked is returned by operations refused because of a block in
	// either direction.
	ErrBlocked = apperror.Forbidden("one of the users has blocked the other")
)

type Registry struct {
	db        *gorm.DB
	directory *directory.Service
}

func NewRegistry(db *gorm.DB, dir *directory.Service) *Registry {
	return &Registry{db: db, directory: dir}
}

// WithTx returns a Registry whose queries run inside tx.
func (r *Registry) WithTx(tx *gorm.DB) *Registry {
	return &Registry{db: tx, directory: r.directory.WithTx(tx)}
}

// Block records that blockerID blocks blockedID. Blocking the same user
// twice is a Conflict.
func (r *Registry) Block(ctx context.Context, blockerID, blockedID string) (*models.Block, error) {
	blockerID, blockedID = strings.TrimSpace(blockerID), strings.TrimSpace(blockedID)
	if blockerID == "" || blockedID == "" {
		return nil, apperror.InvalidArg("both users are required")
	}
	if blockerID == blockedID {
		return nil, ErrSelfBlock
	}

	ok, err := r.directory.Exists(ctx, blockedID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NotFound("profile not found")
	}

	b := &models.Block{BlockerID: blockerID, BlockedID: blockedID}
	if err := r.db.WithContext(ctx).Create(b).Error; err != nil {
		return nil, apperror.FromDB(err, "block")
	}
	jww.INFO.Printf("User %s blocked %s", blockerID, blockedID)
	return b, nil
}

// Unblock removes a block owned by actorID. A block that does not exist or
// belongs to someone else is NotFound.
func (r *Registry) Unblock(ctx context.Context, actorID string, blockID uint) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND blocker_id = ?", blockID, actorID).
		Delete(&models.Block{})
	if res.Error != nil {
		return apperror.FromDB(res.Error, "block")
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("block not found")
	}
	return nil
}

// IsBlocked reports whether either user blocks the other.
func (r *Registry) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Block{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&n).Error
	if err != nil {
		return false, apperror.FromDB(err, "block")
	}
	return n > 0, nil
}

// ListBlocked returns the users blockerID has blocked, newest first.
func (r *Registry) ListBlocked(ctx context.Context, blockerID string) ([]models.BlockedEntry, error) {
	var blocks []models.Block
	err := r.db.WithContext(ctx).
		Where("blocker_id = ?", blockerID).
		Order("created_at DESC, id DESC").
		Find(&blocks).Error
	if err != nil {
		return nil, apperror.FromDB(err, "block")
	}

	ids := make([]string, len(blocks))
	for i, b := range blocks {
		ids[i] = b.BlockedID
	}
	profiles, err := r.directory.Compact(ctx, ids...)
	if err != nil {
		return nil, err
	}

	entries := make([]models.BlockedEntry, len(blocks))
	for i, b := range blocks {
		blocked, ok := profiles[b.BlockedID]
		if !ok {
			blocked = models.ProfileCompact{ID: b.BlockedID}
		}
		entries[i] = models.BlockedEntry{Block: b, Blocked: blocked}
	}
	return entries, nil
}
