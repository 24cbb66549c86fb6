package domain

import (
	"fmt"
	"time"
)

// AuctionStatus follows the lifecycle of the leilao platform: every auction
// starts under review and is opened, closed and cancelled by explicit
// operator actions only. Nothing flips status in the background.
type AuctionStatus int

const (
	StatusEmAnalise AuctionStatus = iota
	StatusAberto
	StatusEncerrado
	StatusCancelado
)

func (s AuctionStatus) String() string {
	switch s {
	case StatusEmAnalise:
		return "EM_ANALISE"
	case StatusAberto:
		return "ABERTO"
	case StatusEncerrado:
		return "ENCERRADO"
	case StatusCancelado:
		return "CANCELADO"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions or field edits are allowed.
func (s AuctionStatus) Terminal() bool {
	return s == StatusEncerrado || s == StatusCancelado
}

func ParseAuctionStatus(v string) (AuctionStatus, error) {
	switch v {
	case "EM_ANALISE":
		return StatusEmAnalise, nil
	case "ABERTO":
		return StatusAberto, nil
	case "ENCERRADO":
		return StatusEncerrado, nil
	case "CANCELADO":
		return StatusCancelado, nil
	default:
		return StatusEmAnalise, fmt.Errorf("%w: unknown status %q", ErrValidation, v)
	}
}

type Auction struct {
	ID                  string
	Title               string
	Description         string
	DetailedDescription string
	Observation         string
	CategoryID          string
	SellerID            string
	StartTime           time.Time
	EndTime             time.Time
	MinimumBid          float64
	Increment           float64
	Status              AuctionStatus
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Bid is append-only: once accepted it is never updated or deleted, and the
// current highest bid for an auction is always derived from the bid log.
type Bid struct {
	ID        string
	AuctionID string
	BidderID  string
	Amount    float64
	PlacedAt  time.Time
}

// HighestSnapshot is a cached view of an auction's current highest bid,
// used only on display paths. Admission decisions never consult it.
type HighestSnapshot struct {
	AuctionID string
	BidderID  string
	Amount    float64
	UpdatedAt time.Time
}

type AuctionEventType string

const (
	EventBidAccepted        AuctionEventType = "bid_accepted"
	EventAuctionOpened      AuctionEventType = "auction_opened"
	EventAuctionClosed      AuctionEventType = "auction_closed"
	EventAuctionCancelled   AuctionEventType = "auction_cancelled"
	EventAuctionExpiredOpen AuctionEventType = "auction_expired_open"
)

type AuctionEvent struct {
	Type      AuctionEventType `json:"type"`
	AuctionID string           `json:"auction_id"`
	BidderID  string           `json:"bidder_id,omitempty"`
	Amount    float64          `json:"amount,omitempty"`
	Status    string           `json:"status,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}
