package models

import "time"

// Block is a directed edge: BlockerID no longer wants contact with BlockedID.
// Enforcement treats the edge as symmetric.
type Block struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BlockerID string    `gorm:"not null;uniqueIndex:idx_block_pair,priority:1" json:"blocker_id"`
	BlockedID string    `gorm:"not null;uniqueIndex:idx_block_pair,priority:2;index" json:"blocked_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (Block) TableName() string { return "blocked_users" }

// BlockedEntry is a block joined with the blocked user's profile.
type BlockedEntry struct {
	Block
	Blocked ProfileCompact `json:"blocked"`
}
