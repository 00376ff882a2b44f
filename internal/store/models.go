// Package store persists the audit trail spec.md §6 requires: one row per
// bid and one row per auction, independent of the in-memory Auction
// Manager state the rest of the server runs on. Grounded on
// josephblackelite-nhbchain/services/otc-gateway/models (gorm struct
// tags, uuid primary keys) and main.go's gorm.Open(postgres.Open(...))
// wiring.
package store

import (
	"time"

	"github.com/google/uuid"
)

// BidRecord is the persisted row for spec.md §6's bid table.
type BidRecord struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey"`
	CreationTime      time.Time  `gorm:"index"`
	PermissionKey     []byte     `gorm:"type:bytea;index"`
	ChainID           string     `gorm:"index"`
	ChainType         string
	BidAmount         string     `gorm:"type:numeric"`
	Status            string     `gorm:"index"`
	AuctionID         *uuid.UUID `gorm:"type:uuid;index"`
	InitiationTime    time.Time
	ConclusionTime    *time.Time
	ProfileID         *string `gorm:"index"`
	Metadata          []byte  `gorm:"type:jsonb"`
}

// TableName pins the table name spec.md §6 names rather than gorm's
// pluralization default.
func (BidRecord) TableName() string { return "bid" }

// AuctionRecord is the persisted row for spec.md §6's auction table.
type AuctionRecord struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreationTime      time.Time `gorm:"index"`
	ConclusionTime    *time.Time
	PermissionKey     []byte `gorm:"type:bytea;index"`
	ChainID           string `gorm:"index"`
	ChainType         string
	TxHash            *string
	BidCollectionTime *time.Time
	SubmissionTime    *time.Time
}

func (AuctionRecord) TableName() string { return "auction" }
