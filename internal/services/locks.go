package services

import "sync"

// AuctionLocks hands out one mutex per auction id. Bid admission and
// lifecycle transitions for the same auction share its mutex; requests
// against different auctions never contend.
type AuctionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewAuctionLocks() *AuctionLocks {
	return &AuctionLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *AuctionLocks) ForAuction(auctionID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, exists := l.locks[auctionID]
	if !exists {
		m = &sync.Mutex{}
		l.locks[auctionID] = m
	}
	return m
}

// Release drops the auction's registry entry once it can no longer accept
// bids, keeping the map from growing with every auction ever seen. Waiters
// holding the evicted mutex still drain through it; a fresh mutex after
// eviction is safe because terminal and deleted auctions reject all work
// on the status check.
func (l *AuctionLocks) Release(auctionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, auctionID)
}
