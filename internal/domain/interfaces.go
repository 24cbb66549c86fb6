package domain

import (
	"context"
	"time"
)

// Repository interfaces
type AuctionRepository interface {
	CreateAuction(ctx context.Context, auction *Auction) error
	GetAuction(ctx context.Context, auctionID string) (*Auction, error)
	UpdateAuction(ctx context.Context, auction *Auction) error
	DeleteAuction(ctx context.Context, auctionID string) error
	ListByStatus(ctx context.Context, status AuctionStatus) ([]*Auction, error)
	ListBySeller(ctx context.Context, sellerID string) ([]*Auction, error)
	// ListExpiredOpen returns auctions still ABERTO whose end time is before the
	// given instant. Used for reporting only; the repository never closes them.
	ListExpiredOpen(ctx context.Context, before time.Time) ([]*Auction, error)
}

type BidRepository interface {
	// CreateBid appends the bid only if observedHighest is still the auction's
	// highest amount (0 when the caller observed no bids). A bid committed in
	// between fails the append with ErrCommitConflict so the caller can
	// revalidate against the new highest.
	CreateBid(ctx context.Context, bid *Bid, observedHighest float64) error
	// HighestBid returns nil without error when the auction has no bids.
	HighestBid(ctx context.Context, auctionID string) (*Bid, error)
	// ListForAuction returns bids in descending amount order.
	ListForAuction(ctx context.Context, auctionID string) ([]*Bid, error)
	ListByBidder(ctx context.Context, bidderID string) ([]*Bid, error)
}

// Cache interface
type HighestBidCache interface {
	SetHighest(ctx context.Context, snap *HighestSnapshot) error
	// GetHighest returns nil without error on a cache miss.
	GetHighest(ctx context.Context, auctionID string) (*HighestSnapshot, error)
	Invalidate(ctx context.Context, auctionID string) error
}

// Event interfaces
type EventPublisher interface {
	PublishAuctionEvent(ctx context.Context, event *AuctionEvent) error
}

type EventSubscriber interface {
	SubscribeAuctionEvents(ctx context.Context, handler EventHandler) error
}

type EventHandler func(event *AuctionEvent) error

// Leader election interface
type LeaderElection interface {
	BecomeLeader(ctx context.Context, instanceID string) (bool, error)
	IsLeader(ctx context.Context, instanceID string) (bool, error)
	ReleaseLeadership(ctx context.Context, instanceID string) error
}

// WebSocket interfaces
type WebSocketConnection interface {
	Send(message interface{}) error
	Close() error
	UserID() string
	AuctionID() string
}

type ConnectionManager interface {
	RegisterConnection(userID, auctionID string, conn WebSocketConnection) error
	UnregisterConnection(userID, auctionID string) error
	BroadcastToAuction(auctionID string, message interface{}) error
	CloseAuctionConnections(auctionID string) error
}

// Clock supplies the current time so window checks can run against
// synthetic times in tests.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
