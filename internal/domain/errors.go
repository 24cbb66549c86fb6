package domain

import (
	"errors"
	"fmt"
)

// Business outcomes. All of these are expected results of a single request
// and propagate to the caller unchanged; none is fatal to the process.
var (
	ErrAuctionNotFound   = errors.New("auction does not exist")
	ErrInvalidTransition = errors.New("auction status does not allow this transition")
	ErrImmutableAuction  = errors.New("closed or cancelled auctions can no longer be changed")
	ErrDeleteOpenAuction = errors.New("an open auction cannot be deleted")
	ErrValidation        = errors.New("invalid auction data")
	ErrAuctionNotOpen    = errors.New("auction is not open for bidding")
	ErrOutsideWindow     = errors.New("bid placed outside the auction window")
	ErrSelfBid           = errors.New("seller cannot bid on their own auction")
	ErrBidTooLow         = errors.New("bid below the required minimum")
	ErrCommitConflict    = errors.New("bid commit conflicted with a concurrent bid")
	ErrNoIdentity        = errors.New("caller identity missing")
)

// ErrStoreUnavailable marks store-layer I/O failures (connectivity, timeouts).
// It is never used for business outcomes.
var ErrStoreUnavailable = errors.New("backing store unavailable")

// BidTooLowError carries the exact minimum the bidder must offer so the
// caller can report it precisely.
type BidTooLowError struct {
	RequiredMinimum float64
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid must be at least %.2f", e.RequiredMinimum)
}

func (e *BidTooLowError) Is(target error) bool {
	return target == ErrBidTooLow
}
