package store

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/expressrelay/auction-server/internal/entities"
)

// Open connects to the Postgres audit database, matching
// otc-gateway/main.go's gorm.Open(postgres.Open(dsn), &gorm.Config{}).
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}

// Publisher is the narrow event sink auction.Manager and opportunity.Store
// already call into; Recorder implements it so it can sit in front of the
// Subscription Hub in the publish chain without either package depending on
// gorm.
type Publisher interface {
	Publish(entities.Event)
}

// Recorder persists bid/auction rows as they change and forwards every
// event to the next publisher in the chain (normally the Subscription
// Hub), so wiring it in costs nothing beyond construction. A nil Recorder
// is a safe no-op, matching metrics.Recorder's nil-receiver style, so it
// can be omitted in tests that don't configure a database.
type Recorder struct {
	db   *gorm.DB
	next Publisher
}

// New wraps db, forwarding every published event to next after recording
// it (next may be nil to only persist).
func New(db *gorm.DB, next Publisher) *Recorder {
	return &Recorder{db: db, next: next}
}

// Migrate creates/updates the bid and auction tables.
func (r *Recorder) Migrate() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.AutoMigrate(&BidRecord{}, &AuctionRecord{})
}

// RecordBid inserts the initial audit row for a newly verified bid,
// called by the API right after auction.Manager.SubmitBid accepts it.
func (r *Recorder) RecordBid(bid *entities.Bid) error {
	if r == nil || r.db == nil {
		return nil
	}
	var profileID *string
	if bid.ProfileID != "" {
		profileID = &bid.ProfileID
	}
	record := BidRecord{
		ID:             uuidOf(bid.ID),
		CreationTime:   bid.InitiationTime,
		PermissionKey:  bid.PermissionKey.Bytes(),
		ChainID:        string(bid.ChainID),
		ChainType:      "svm",
		BidAmount:      strconv.FormatUint(bid.Amount, 10),
		Status:         string(bid.Status),
		InitiationTime: bid.InitiationTime,
		ProfileID:      profileID,
	}
	return r.db.Create(&record).Error
}

// Publish satisfies the Publisher contract: it updates persisted rows for
// bid status transitions, then forwards the event unchanged.
func (r *Recorder) Publish(event entities.Event) {
	if r != nil && r.db != nil && event.Kind == entities.EventBidStatusUpdate {
		if err := r.applyBidStatusUpdate(event.BidStatusUpdate); err != nil {
			// Best-effort: a persistence failure must never block the
			// in-memory auction flow or the WS fan-out that depends on
			// this same Publish call forwarding on.
			_ = err
		}
	}
	if r != nil && r.next != nil {
		r.next.Publish(event)
	}
}

func (r *Recorder) applyBidStatusUpdate(update *entities.BidStatusUpdateEvent) error {
	updates := map[string]any{"status": string(update.Status)}
	if update.AuctionID != nil {
		auctionID := uuidOf(*update.AuctionID)
		updates["auction_id"] = auctionID
		if err := r.upsertAuction(auctionID, update); err != nil {
			return err
		}
	}
	if entities.BidStatus(update.Status).IsTerminal() {
		updates["conclusion_time"] = time.Now()
	}
	return r.db.Model(&BidRecord{}).Where("id = ?", uuidOf(update.BidID)).Updates(updates).Error
}

func (r *Recorder) upsertAuction(auctionID uuid.UUID, update *entities.BidStatusUpdateEvent) error {
	now := time.Now()

	var txHash *string
	if update.TxSignature != nil {
		s := update.TxSignature.String()
		txHash = &s
	}

	var existing AuctionRecord
	err := r.db.Where("id = ?", auctionID).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		record := AuctionRecord{
			ID:           auctionID,
			CreationTime: now,
			ChainID:      string(update.ChainID),
			ChainType:    "svm",
			TxHash:       txHash,
		}
		if txHash != nil {
			record.SubmissionTime = &now
		}
		if entities.BidStatus(update.Status).IsTerminal() {
			record.ConclusionTime = &now
		}
		return r.db.Create(&record).Error
	}
	if err != nil {
		return err
	}

	if txHash != nil {
		existing.TxHash = txHash
		existing.SubmissionTime = &now
	}
	if entities.BidStatus(update.Status).IsTerminal() {
		existing.ConclusionTime = &now
	}
	return r.db.Save(&existing).Error
}

func uuidOf[T ~[16]byte](id T) uuid.UUID {
	return uuid.UUID(id)
}
