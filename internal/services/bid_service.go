package services

import (
	"context"
	"errors"
	"math"

	"leilao/internal/domain"
	"leilao/pkg/logger"

	"github.com/google/uuid"
)

// DefaultCommitRetries bounds how often a bid is revalidated after losing
// the commit race. Contention on one auction is momentary, so a small
// bound is enough before giving up with ErrCommitConflict.
const DefaultCommitRetries = 3

type BidService struct {
	auctions      domain.AuctionRepository
	bids          domain.BidRepository
	highestCache  domain.HighestBidCache
	eventPub      domain.EventPublisher
	locks         *AuctionLocks
	clock         domain.Clock
	commitRetries int
	log           logger.Logger
}

func NewBidService(
	auctions domain.AuctionRepository,
	bids domain.BidRepository,
	highestCache domain.HighestBidCache,
	eventPub domain.EventPublisher,
	locks *AuctionLocks,
	clock domain.Clock,
	commitRetries int,
	log logger.Logger,
) *BidService {
	if commitRetries <= 0 {
		commitRetries = DefaultCommitRetries
	}
	return &BidService{
		auctions:      auctions,
		bids:          bids,
		highestCache:  highestCache,
		eventPub:      eventPub,
		locks:         locks,
		clock:         clock,
		commitRetries: commitRetries,
		log:           log,
	}
}

// PlaceBid admits a single bid against an auction. The read-validate-commit
// sequence runs under the auction's mutex, and the bid store append is
// conditional on the observed highest amount, so when several instances
// share one store at most one of two racing bids becomes the new highest.
func (s *BidService) PlaceBid(ctx context.Context, auctionID, bidderID string, amount float64) (*domain.Bid, error) {
	s.log.Info("Placing bid", "auction_id", auctionID, "bidder_id", bidderID, "amount", amount)

	mu := s.locks.ForAuction(auctionID)
	mu.Lock()
	defer mu.Unlock()

	auction, err := s.auctions.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	if auction.Status != domain.StatusAberto {
		return nil, domain.ErrAuctionNotOpen
	}

	// An auction left ABERTO past its end time still rejects bids here;
	// nothing moves it to ENCERRADO automatically.
	now := s.clock.Now()
	if now.Before(auction.StartTime) || now.After(auction.EndTime) {
		return nil, domain.ErrOutsideWindow
	}

	if bidderID == auction.SellerID {
		return nil, domain.ErrSelfBid
	}

	for attempt := 0; attempt < s.commitRetries; attempt++ {
		highest, err := s.bids.HighestBid(ctx, auctionID)
		if err != nil {
			return nil, err
		}

		required := auction.MinimumBid
		observed := 0.0
		if highest != nil {
			required = highest.Amount + auction.Increment
			observed = highest.Amount
		}

		// NaN compares false against every bound and would poison the
		// highest-bid comparison for the rest of the auction.
		if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < required {
			return nil, &domain.BidTooLowError{RequiredMinimum: required}
		}

		bid := &domain.Bid{
			ID:        uuid.NewString(),
			AuctionID: auctionID,
			BidderID:  bidderID,
			Amount:    amount,
			PlacedAt:  s.clock.Now(),
		}

		err = s.bids.CreateBid(ctx, bid, observed)
		if errors.Is(err, domain.ErrCommitConflict) {
			s.log.Warn("Bid lost the commit race, revalidating",
				"auction_id", auctionID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, err
		}

		s.afterAccept(ctx, bid)
		return bid, nil
	}

	s.log.Warn("Bid commit retries exhausted",
		"auction_id", auctionID, "bidder_id", bidderID, "amount", amount)
	return nil, domain.ErrCommitConflict
}

func (s *BidService) afterAccept(ctx context.Context, bid *domain.Bid) {
	s.log.Info("Bid accepted",
		"auction_id", bid.AuctionID, "bidder_id", bid.BidderID, "amount", bid.Amount)

	if err := s.highestCache.SetHighest(ctx, &domain.HighestSnapshot{
		AuctionID: bid.AuctionID,
		BidderID:  bid.BidderID,
		Amount:    bid.Amount,
		UpdatedAt: bid.PlacedAt,
	}); err != nil {
		s.log.Warn("Failed to refresh highest-bid cache",
			"auction_id", bid.AuctionID, "error", err)
	}

	if err := s.eventPub.PublishAuctionEvent(ctx, &domain.AuctionEvent{
		Type:      domain.EventBidAccepted,
		AuctionID: bid.AuctionID,
		BidderID:  bid.BidderID,
		Amount:    bid.Amount,
		Timestamp: bid.PlacedAt,
	}); err != nil {
		s.log.Error("Failed to publish bid event",
			"auction_id", bid.AuctionID, "error", err)
	}
}

// HighestBid reads the current highest bid from the bid log. Returns nil
// when the auction has no bids yet.
func (s *BidService) HighestBid(ctx context.Context, auctionID string) (*domain.Bid, error) {
	if _, err := s.auctions.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	return s.bids.HighestBid(ctx, auctionID)
}

// CurrentHighest serves display reads through the cache, falling back to the
// bid log and repopulating on a miss.
func (s *BidService) CurrentHighest(ctx context.Context, auctionID string) (*domain.HighestSnapshot, error) {
	snap, err := s.highestCache.GetHighest(ctx, auctionID)
	if err != nil {
		s.log.Warn("Highest-bid cache read failed", "auction_id", auctionID, "error", err)
	}
	if snap != nil {
		return snap, nil
	}

	highest, err := s.HighestBid(ctx, auctionID)
	if err != nil || highest == nil {
		return nil, err
	}

	snap = &domain.HighestSnapshot{
		AuctionID: highest.AuctionID,
		BidderID:  highest.BidderID,
		Amount:    highest.Amount,
		UpdatedAt: highest.PlacedAt,
	}
	if err := s.highestCache.SetHighest(ctx, snap); err != nil {
		s.log.Warn("Failed to repopulate highest-bid cache",
			"auction_id", auctionID, "error", err)
	}
	return snap, nil
}

// ListBids returns an auction's bids in descending amount order.
func (s *BidService) ListBids(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	if _, err := s.auctions.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	return s.bids.ListForAuction(ctx, auctionID)
}

func (s *BidService) ListBidsByBidder(ctx context.Context, bidderID string) ([]*domain.Bid, error) {
	return s.bids.ListByBidder(ctx, bidderID)
}
