package services

import (
	"context"
	"fmt"
	"time"

	"leilao/internal/domain"
	"leilao/pkg/logger"

	"github.com/google/uuid"
)

// AuctionManager owns the auction lifecycle. Transitions happen only through
// its explicit verbs and share the per-auction mutex with bid admission, so a
// close cannot interleave with an in-flight bid on the same auction.
type AuctionManager struct {
	auctions domain.AuctionRepository
	eventPub domain.EventPublisher
	locks    *AuctionLocks
	clock    domain.Clock
	log      logger.Logger
}

func NewAuctionManager(
	auctions domain.AuctionRepository,
	eventPub domain.EventPublisher,
	locks *AuctionLocks,
	clock domain.Clock,
	log logger.Logger,
) *AuctionManager {
	return &AuctionManager{
		auctions: auctions,
		eventPub: eventPub,
		locks:    locks,
		clock:    clock,
		log:      log,
	}
}

// AuctionInput carries the editable auction fields for creation and updates.
type AuctionInput struct {
	Title               string
	Description         string
	DetailedDescription string
	Observation         string
	CategoryID          string
	StartTime           time.Time
	EndTime             time.Time
	MinimumBid          float64
	Increment           float64
}

func (m *AuctionManager) CreateAuction(ctx context.Context, sellerID string, in AuctionInput) (*domain.Auction, error) {
	now := m.clock.Now()
	auction := &domain.Auction{
		ID:                  uuid.NewString(),
		Title:               in.Title,
		Description:         in.Description,
		DetailedDescription: in.DetailedDescription,
		Observation:         in.Observation,
		CategoryID:          in.CategoryID,
		SellerID:            sellerID,
		StartTime:           in.StartTime,
		EndTime:             in.EndTime,
		MinimumBid:          in.MinimumBid,
		Increment:           in.Increment,
		Status:              domain.StatusEmAnalise,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := m.validate(auction); err != nil {
		return nil, err
	}

	if err := m.auctions.CreateAuction(ctx, auction); err != nil {
		return nil, err
	}

	m.log.Info("Auction created", "auction_id", auction.ID, "seller_id", sellerID)
	return auction, nil
}

func (m *AuctionManager) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	return m.auctions.GetAuction(ctx, auctionID)
}

func (m *AuctionManager) ListByStatus(ctx context.Context, status domain.AuctionStatus) ([]*domain.Auction, error) {
	return m.auctions.ListByStatus(ctx, status)
}

func (m *AuctionManager) ListBySeller(ctx context.Context, sellerID string) ([]*domain.Auction, error) {
	return m.auctions.ListBySeller(ctx, sellerID)
}

// UpdateAuction edits the auction's fields. Edits are allowed while the
// auction is EM_ANALISE or ABERTO and re-run the full creation validation.
func (m *AuctionManager) UpdateAuction(ctx context.Context, auctionID string, in AuctionInput) (*domain.Auction, error) {
	mu := m.locks.ForAuction(auctionID)
	mu.Lock()
	defer mu.Unlock()

	auction, err := m.auctions.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	if auction.Status.Terminal() {
		return nil, domain.ErrImmutableAuction
	}

	auction.Title = in.Title
	auction.Description = in.Description
	auction.DetailedDescription = in.DetailedDescription
	auction.Observation = in.Observation
	auction.CategoryID = in.CategoryID
	auction.StartTime = in.StartTime
	auction.EndTime = in.EndTime
	auction.MinimumBid = in.MinimumBid
	auction.Increment = in.Increment
	auction.UpdatedAt = m.clock.Now()

	if err := m.validate(auction); err != nil {
		return nil, err
	}

	if err := m.auctions.UpdateAuction(ctx, auction); err != nil {
		return nil, err
	}

	m.log.Info("Auction updated", "auction_id", auctionID)
	return auction, nil
}

// OpenAuction moves an auction under review into ABERTO.
func (m *AuctionManager) OpenAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	return m.transition(ctx, auctionID, domain.StatusEmAnalise, domain.StatusAberto, domain.EventAuctionOpened)
}

// CloseAuction ends an open auction.
func (m *AuctionManager) CloseAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	return m.transition(ctx, auctionID, domain.StatusAberto, domain.StatusEncerrado, domain.EventAuctionClosed)
}

// CancelAuction cancels an auction that has not yet ended. Cancelling a
// closed or already cancelled auction is an invalid transition.
func (m *AuctionManager) CancelAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	mu := m.locks.ForAuction(auctionID)
	mu.Lock()
	defer mu.Unlock()

	auction, err := m.auctions.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	if auction.Status.Terminal() {
		return nil, fmt.Errorf("%w: cannot cancel a %s auction",
			domain.ErrInvalidTransition, auction.Status)
	}

	return m.setStatus(ctx, auction, domain.StatusCancelado, domain.EventAuctionCancelled)
}

// DeleteAuction removes an auction that is not currently open for bidding.
func (m *AuctionManager) DeleteAuction(ctx context.Context, auctionID string) error {
	mu := m.locks.ForAuction(auctionID)
	mu.Lock()
	defer mu.Unlock()

	auction, err := m.auctions.GetAuction(ctx, auctionID)
	if err != nil {
		return err
	}

	if auction.Status == domain.StatusAberto {
		return domain.ErrDeleteOpenAuction
	}

	if err := m.auctions.DeleteAuction(ctx, auctionID); err != nil {
		return err
	}

	m.locks.Release(auctionID)
	m.log.Info("Auction deleted", "auction_id", auctionID, "status", auction.Status.String())
	return nil
}

func (m *AuctionManager) transition(ctx context.Context, auctionID string, from, to domain.AuctionStatus, event domain.AuctionEventType) (*domain.Auction, error) {
	mu := m.locks.ForAuction(auctionID)
	mu.Lock()
	defer mu.Unlock()

	auction, err := m.auctions.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	if auction.Status != from {
		return nil, fmt.Errorf("%w: %s auctions cannot move to %s",
			domain.ErrInvalidTransition, auction.Status, to)
	}

	return m.setStatus(ctx, auction, to, event)
}

func (m *AuctionManager) setStatus(ctx context.Context, auction *domain.Auction, to domain.AuctionStatus, event domain.AuctionEventType) (*domain.Auction, error) {
	auction.Status = to
	auction.UpdatedAt = m.clock.Now()

	if err := m.auctions.UpdateAuction(ctx, auction); err != nil {
		return nil, err
	}

	if to.Terminal() {
		m.locks.Release(auction.ID)
	}

	m.log.Info("Auction status changed", "auction_id", auction.ID, "status", to.String())

	if err := m.eventPub.PublishAuctionEvent(ctx, &domain.AuctionEvent{
		Type:      event,
		AuctionID: auction.ID,
		Status:    to.String(),
		Timestamp: auction.UpdatedAt,
	}); err != nil {
		m.log.Error("Failed to publish lifecycle event",
			"auction_id", auction.ID, "error", err)
	}

	return auction, nil
}

func (m *AuctionManager) validate(auction *domain.Auction) error {
	if auction.Title == "" {
		return fmt.Errorf("%w: title is required", domain.ErrValidation)
	}
	if auction.Description == "" {
		return fmt.Errorf("%w: description is required", domain.ErrValidation)
	}
	if !auction.StartTime.Before(auction.EndTime) {
		return fmt.Errorf("%w: start time must be before end time", domain.ErrValidation)
	}
	if auction.StartTime.Before(m.clock.Now()) {
		return fmt.Errorf("%w: start time cannot be in the past", domain.ErrValidation)
	}
	if auction.Increment <= 0 {
		return fmt.Errorf("%w: increment must be greater than zero", domain.ErrValidation)
	}
	if auction.MinimumBid <= 0 {
		return fmt.Errorf("%w: minimum bid must be greater than zero", domain.ErrValidation)
	}
	return nil
}
