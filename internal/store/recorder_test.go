package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/expressrelay/auction-server/internal/entities"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	return db
}

type recordingPublisher struct {
	events []entities.Event
}

func (p *recordingPublisher) Publish(event entities.Event) {
	p.events = append(p.events, event)
}

func TestRecordBidInsertsRow(t *testing.T) {
	db := setupTestDB(t)
	r := New(db, nil)
	require.NoError(t, r.Migrate())

	bid := &entities.Bid{
		ID:             entities.NewBidID(),
		ChainID:        "solana-mainnet-beta",
		Amount:         1_000_000,
		ProfileID:      "profile-1",
		InitiationTime: time.Now(),
		PermissionKey:  entities.NewPermissionKeySvm(entities.PermissionKeyTagSubmitBid, solana.NewWallet().PublicKey()),
		Status:         entities.BidStatusPending,
	}
	require.NoError(t, r.RecordBid(bid))

	var row BidRecord
	require.NoError(t, db.First(&row, "id = ?", bid.ID.String()).Error)
	require.Equal(t, "pending", row.Status)
	require.Equal(t, "1000000", row.BidAmount)
}

func TestPublishBidStatusUpdateUpdatesRowAndForwards(t *testing.T) {
	db := setupTestDB(t)
	next := &recordingPublisher{}
	r := New(db, next)
	require.NoError(t, r.Migrate())

	bid := &entities.Bid{
		ID:             entities.NewBidID(),
		ChainID:        "solana-mainnet-beta",
		InitiationTime: time.Now(),
		Status:         entities.BidStatusPending,
	}
	require.NoError(t, r.RecordBid(bid))

	auctionID := entities.NewAuctionID()
	r.Publish(entities.Event{
		Kind: entities.EventBidStatusUpdate,
		BidStatusUpdate: &entities.BidStatusUpdateEvent{
			ChainID:   bid.ChainID,
			BidID:     bid.ID,
			Status:    entities.BidStatusWon,
			AuctionID: &auctionID,
		},
	})

	var row BidRecord
	require.NoError(t, db.First(&row, "id = ?", bid.ID.String()).Error)
	require.Equal(t, "won", row.Status)
	require.NotNil(t, row.AuctionID)

	var auctionRow AuctionRecord
	require.NoError(t, db.First(&auctionRow, "id = ?", auctionID.String()).Error)
	require.NotNil(t, auctionRow.ConclusionTime)

	require.Len(t, next.events, 1)
}

func TestNilRecorderIsNoOp(t *testing.T) {
	var r *Recorder
	require.NoError(t, r.Migrate())
	require.NoError(t, r.RecordBid(&entities.Bid{}))
	r.Publish(entities.Event{Kind: entities.EventBidStatusUpdate})
}
