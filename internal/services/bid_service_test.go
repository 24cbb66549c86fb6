package services_test

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leilao/internal/domain"
	"leilao/internal/services"
	"leilao/pkg/logger"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setupBidService(t *testing.T) (*services.BidService, *memAuctionRepo, *memBidRepo, *fakeClock, *recordPublisher, *memHighestCache) {
	t.Helper()

	auctions := newMemAuctionRepo()
	bids := newMemBidRepo()
	cache := newMemHighestCache()
	pub := &recordPublisher{}
	clock := &fakeClock{now: baseTime}

	svc := services.NewBidService(
		auctions, bids, cache, pub,
		services.NewAuctionLocks(), clock, 3, logger.NewNop())
	return svc, auctions, bids, clock, pub, cache
}

func openAuction(sellerID string) *domain.Auction {
	return &domain.Auction{
		ID:          uuid.NewString(),
		Title:       "Persian rug",
		Description: "Hand woven",
		SellerID:    sellerID,
		StartTime:   baseTime.Add(-time.Hour),
		EndTime:     baseTime.Add(time.Hour),
		MinimumBid:  100,
		Increment:   10,
		Status:      domain.StatusAberto,
		CreatedAt:   baseTime.Add(-2 * time.Hour),
		UpdatedAt:   baseTime.Add(-2 * time.Hour),
	}
}

func TestPlaceBidFirstBidFloor(t *testing.T) {
	svc, auctions, _, _, pub, cache := setupBidService(t)
	auction := openAuction("seller-1")
	auctions.seed(auction)

	t.Run("below minimum", func(t *testing.T) {
		_, err := svc.PlaceBid(context.Background(), auction.ID, "bidder-1", 99.99)
		require.ErrorIs(t, err, domain.ErrBidTooLow)

		var tooLow *domain.BidTooLowError
		require.ErrorAs(t, err, &tooLow)
		assert.Equal(t, 100.0, tooLow.RequiredMinimum)
	})

	t.Run("at minimum", func(t *testing.T) {
		bid, err := svc.PlaceBid(context.Background(), auction.ID, "bidder-1", 100)
		require.NoError(t, err)
		require.NotNil(t, bid)
		assert.Equal(t, auction.ID, bid.AuctionID)
		assert.Equal(t, "bidder-1", bid.BidderID)
		assert.Equal(t, 100.0, bid.Amount)
		assert.Equal(t, baseTime, bid.PlacedAt)

		events := pub.published()
		require.Len(t, events, 1)
		assert.Equal(t, domain.EventBidAccepted, events[0].Type)
		assert.Equal(t, 100.0, events[0].Amount)

		snap := cache.get(auction.ID)
		require.NotNil(t, snap)
		assert.Equal(t, 100.0, snap.Amount)
	})
}

func TestPlaceBidIncrementRule(t *testing.T) {
	svc, auctions, _, _, _, _ := setupBidService(t)
	auction := openAuction("seller-1")
	auctions.seed(auction)

	_, err := svc.PlaceBid(context.Background(), auction.ID, "bidder-1", 100)
	require.NoError(t, err)

	t.Run("below highest plus increment", func(t *testing.T) {
		_, err := svc.PlaceBid(context.Background(), auction.ID, "bidder-2", 105)
		require.ErrorIs(t, err, domain.ErrBidTooLow)

		var tooLow *domain.BidTooLowError
		require.ErrorAs(t, err, &tooLow)
		assert.Equal(t, 110.0, tooLow.RequiredMinimum)
	})

	t.Run("equal to highest", func(t *testing.T) {
		_, err := svc.PlaceBid(context.Background(), auction.ID, "bidder-2", 100)
		assert.ErrorIs(t, err, domain.ErrBidTooLow)
	})

	t.Run("exactly highest plus increment", func(t *testing.T) {
		bid, err := svc.PlaceBid(context.Background(), auction.ID, "bidder-2", 110)
		require.NoError(t, err)
		assert.Equal(t, 110.0, bid.Amount)
	})
}

func TestPlaceBidRejectsNonFiniteAmounts(t *testing.T) {
	svc, auctions, bids, _, _, _ := setupBidService(t)
	auction := openAuction("seller-1")
	auctions.seed(auction)

	for _, amount := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := svc.PlaceBid(context.Background(), auction.ID, "bidder-1", amount)
		require.ErrorIs(t, err, domain.ErrBidTooLow)

		var tooLow *domain.BidTooLowError
		require.ErrorAs(t, err, &tooLow)
		assert.Equal(t, 100.0, tooLow.RequiredMinimum)
	}
	assert.Zero(t, bids.count(auction.ID))

	// A NaN must not have slipped into the log and broken later admissions.
	_, err := svc.PlaceBid(context.Background(), auction.ID, "bidder-2", 1)
	require.ErrorIs(t, err, domain.ErrBidTooLow)

	bid, err := svc.PlaceBid(context.Background(), auction.ID, "bidder-2", 100)
	require.NoError(t, err)
	assert.Equal(t, 100.0, bid.Amount)
}

func TestPlaceBidAuctionNotFound(t *testing.T) {
	svc, _, _, _, _, _ := setupBidService(t)

	_, err := svc.PlaceBid(context.Background(), "missing", "bidder-1", 100)
	assert.ErrorIs(t, err, domain.ErrAuctionNotFound)
}

func TestPlaceBidStateGated(t *testing.T) {
	for _, status := range []domain.AuctionStatus{
		domain.StatusEmAnalise,
		domain.StatusEncerrado,
		domain.StatusCancelado,
	} {
		t.Run(status.String(), func(t *testing.T) {
			svc, auctions, bids, _, _, _ := setupBidService(t)
			auction := openAuction("seller-1")
			auction.Status = status
			auctions.seed(auction)

			_, err := svc.PlaceBid(context.Background(), auction.ID, "bidder-1", 9999)
			assert.ErrorIs(t, err, domain.ErrAuctionNotOpen)
			assert.Zero(t, bids.count(auction.ID), "rejection must not persist a bid")
		})
	}
}

func TestPlaceBidWindow(t *testing.T) {
	svc, auctions, _, clock, _, _ := setupBidService(t)
	auction := openAuction("seller-1")
	auctions.seed(auction)

	t.Run("before start", func(t *testing.T) {
		clock.set(auction.StartTime.Add(-time.Second))
		_, err := svc.PlaceBid(context.Background(), auction.ID, "bidder-1", 100)
		assert.ErrorIs(t, err, domain.ErrOutsideWindow)
	})

	t.Run("at start", func(t *testing.T) {
		clock.set(auction.StartTime)
		_, err := svc.PlaceBid(context.Background(), auction.ID, "bidder-1", 100)
		assert.NoError(t, err)
	})

	t.Run("at end", func(t *testing.T) {
		clock.set(auction.EndTime)
		_, err := svc.PlaceBid(context.Background(), auction.ID, "bidder-2", 110)
		assert.NoError(t, err)
	})

	t.Run("after end while still open", func(t *testing.T) {
		// No background job closes the auction; the window check alone
		// must reject late bids.
		clock.set(auction.EndTime.Add(time.Second))
		_, err := svc.PlaceBid(context.Background(), auction.ID, "bidder-3", 500)
		assert.ErrorIs(t, err, domain.ErrOutsideWindow)
	})
}

func TestPlaceBidSellerRejected(t *testing.T) {
	svc, auctions, _, _, _, _ := setupBidService(t)
	auction := openAuction("seller-1")
	auctions.seed(auction)

	_, err := svc.PlaceBid(context.Background(), auction.ID, "seller-1", 200)
	assert.ErrorIs(t, err, domain.ErrSelfBid)
}

func TestPlaceBidCommitConflict(t *testing.T) {
	t.Run("revalidated bid no longer clears increment", func(t *testing.T) {
		svc, auctions, bids, _, _, _ := setupBidService(t)
		auction := openAuction("seller-1")
		auctions.seed(auction)
		bids.insert(&domain.Bid{ID: "b0", AuctionID: auction.ID, BidderID: "bidder-0", Amount: 100, PlacedAt: baseTime})

		// A competitor's 150 lands between our read and our commit.
		bids.beforeCreate = onceHook(func() {
			bids.insert(&domain.Bid{ID: "b1", AuctionID: auction.ID, BidderID: "bidder-1", Amount: 150, PlacedAt: baseTime})
		})

		_, err := svc.PlaceBid(context.Background(), auction.ID, "bidder-2", 150)
		require.ErrorIs(t, err, domain.ErrBidTooLow)

		var tooLow *domain.BidTooLowError
		require.ErrorAs(t, err, &tooLow)
		assert.Equal(t, 160.0, tooLow.RequiredMinimum)
		assert.Equal(t, 2, bids.count(auction.ID))
	})

	t.Run("revalidated bid still clears increment", func(t *testing.T) {
		svc, auctions, bids, _, _, _ := setupBidService(t)
		auction := openAuction("seller-1")
		auctions.seed(auction)
		bids.insert(&domain.Bid{ID: "b0", AuctionID: auction.ID, BidderID: "bidder-0", Amount: 100, PlacedAt: baseTime})

		bids.beforeCreate = onceHook(func() {
			bids.insert(&domain.Bid{ID: "b1", AuctionID: auction.ID, BidderID: "bidder-1", Amount: 110, PlacedAt: baseTime})
		})

		bid, err := svc.PlaceBid(context.Background(), auction.ID, "bidder-2", 150)
		require.NoError(t, err)
		assert.Equal(t, 150.0, bid.Amount)

		amounts := bids.amountsAscending(auction.ID)
		assert.Equal(t, []float64{100, 110, 150}, amounts)
	})

	t.Run("retries exhausted", func(t *testing.T) {
		svc, auctions, bids, _, _, _ := setupBidService(t)
		auction := openAuction("seller-1")
		auctions.seed(auction)
		bids.alwaysConflict = true

		_, err := svc.PlaceBid(context.Background(), auction.ID, "bidder-1", 100)
		require.ErrorIs(t, err, domain.ErrCommitConflict)
		assert.Equal(t, 3, bids.createCalls)
		assert.Zero(t, bids.count(auction.ID))
	})
}

func TestPlaceBidConcurrentSameAuction(t *testing.T) {
	svc, auctions, bids, _, _, _ := setupBidService(t)
	auction := openAuction("seller-1")
	auctions.seed(auction)
	bids.insert(&domain.Bid{ID: "b0", AuctionID: auction.ID, BidderID: "bidder-0", Amount: 100, PlacedAt: baseTime})

	// Both 150s individually clear 100+10; only one may win the highest slot.
	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, bidder := range []string{"bidder-1", "bidder-2"} {
		wg.Add(1)
		go func(i int, bidder string) {
			defer wg.Done()
			_, results[i] = svc.PlaceBid(context.Background(), auction.ID, bidder, 150)
		}(i, bidder)
	}
	wg.Wait()

	var accepted, rejected int
	for _, err := range results {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, domain.ErrBidTooLow):
			rejected++
			var tooLow *domain.BidTooLowError
			require.ErrorAs(t, err, &tooLow)
			assert.Equal(t, 160.0, tooLow.RequiredMinimum)
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 2, bids.count(auction.ID))
}

func TestPlaceBidCrossAuctionIndependence(t *testing.T) {
	svc, auctions, bids, _, _, _ := setupBidService(t)

	a := openAuction("seller-a")
	b := openAuction("seller-b")
	auctions.seed(a)
	auctions.seed(b)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = svc.PlaceBid(context.Background(), a.ID, "bidder-1", 100)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = svc.PlaceBid(context.Background(), b.ID, "bidder-1", 100)
	}()
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Equal(t, 1, bids.count(a.ID))
	assert.Equal(t, 1, bids.count(b.ID))
}

func TestAcceptedBidsStrictlyIncreasing(t *testing.T) {
	svc, auctions, bids, clock, _, _ := setupBidService(t)
	auction := openAuction("seller-1")
	auctions.seed(auction)

	bidders := []string{"bidder-1", "bidder-2", "bidder-1", "bidder-3"}
	amounts := []float64{100, 115, 125, 200}
	for i, amount := range amounts {
		clock.set(baseTime.Add(time.Duration(i) * time.Minute))
		_, err := svc.PlaceBid(context.Background(), auction.ID, bidders[i], amount)
		require.NoError(t, err)
	}

	listed, err := svc.ListBids(context.Background(), auction.ID)
	require.NoError(t, err)
	require.Len(t, listed, len(amounts))

	// Listing is descending by amount; the log itself must grow by at
	// least the increment per accepted bid, consistently with time.
	for i := 1; i < len(listed); i++ {
		assert.Greater(t, listed[i-1].Amount, listed[i].Amount)
		assert.True(t, listed[i-1].PlacedAt.After(listed[i].PlacedAt))
	}

	ascending := bids.amountsAscending(auction.ID)
	assert.GreaterOrEqual(t, ascending[0], auction.MinimumBid)
	for i := 1; i < len(ascending); i++ {
		assert.GreaterOrEqual(t, ascending[i], ascending[i-1]+auction.Increment)
	}
}

func TestHighestBid(t *testing.T) {
	svc, auctions, _, _, _, _ := setupBidService(t)
	auction := openAuction("seller-1")
	auctions.seed(auction)

	t.Run("no bids", func(t *testing.T) {
		highest, err := svc.HighestBid(context.Background(), auction.ID)
		require.NoError(t, err)
		assert.Nil(t, highest)
	})

	t.Run("unknown auction", func(t *testing.T) {
		_, err := svc.HighestBid(context.Background(), "missing")
		assert.ErrorIs(t, err, domain.ErrAuctionNotFound)
	})

	t.Run("after bids", func(t *testing.T) {
		_, err := svc.PlaceBid(context.Background(), auction.ID, "bidder-1", 100)
		require.NoError(t, err)
		_, err = svc.PlaceBid(context.Background(), auction.ID, "bidder-2", 120)
		require.NoError(t, err)

		highest, err := svc.HighestBid(context.Background(), auction.ID)
		require.NoError(t, err)
		require.NotNil(t, highest)
		assert.Equal(t, 120.0, highest.Amount)
		assert.Equal(t, "bidder-2", highest.BidderID)
	})
}

func TestCurrentHighestReadThrough(t *testing.T) {
	svc, auctions, bids, _, _, cache := setupBidService(t)
	auction := openAuction("seller-1")
	auctions.seed(auction)
	bids.insert(&domain.Bid{ID: "b0", AuctionID: auction.ID, BidderID: "bidder-1", Amount: 130, PlacedAt: baseTime})

	// Miss populates the cache from the bid log.
	snap, err := svc.CurrentHighest(context.Background(), auction.ID)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 130.0, snap.Amount)
	require.NotNil(t, cache.get(auction.ID))

	// Subsequent reads are served from the cache.
	cache.set(&domain.HighestSnapshot{AuctionID: auction.ID, BidderID: "bidder-1", Amount: 140})
	snap, err = svc.CurrentHighest(context.Background(), auction.ID)
	require.NoError(t, err)
	assert.Equal(t, 140.0, snap.Amount)
}

// ---------------------------------------------------------------------------
// test doubles

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var _ domain.AuctionRepository = &memAuctionRepo{}

type memAuctionRepo struct {
	mu    sync.Mutex
	store map[string]domain.Auction
}

func newMemAuctionRepo() *memAuctionRepo {
	return &memAuctionRepo{store: make(map[string]domain.Auction)}
}

func (r *memAuctionRepo) seed(a *domain.Auction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store[a.ID] = *a
}

func (r *memAuctionRepo) stored(id string) *domain.Auction {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.store[id]
	if !ok {
		return nil
	}
	return &a
}

func (r *memAuctionRepo) CreateAuction(ctx context.Context, a *domain.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store[a.ID] = *a
	return nil
}

func (r *memAuctionRepo) GetAuction(ctx context.Context, id string) (*domain.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.store[id]
	if !ok {
		return nil, domain.ErrAuctionNotFound
	}
	copied := a
	return &copied, nil
}

func (r *memAuctionRepo) UpdateAuction(ctx context.Context, a *domain.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store[a.ID]; !ok {
		return domain.ErrAuctionNotFound
	}
	r.store[a.ID] = *a
	return nil
}

func (r *memAuctionRepo) DeleteAuction(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store[id]; !ok {
		return domain.ErrAuctionNotFound
	}
	delete(r.store, id)
	return nil
}

func (r *memAuctionRepo) ListByStatus(ctx context.Context, status domain.AuctionStatus) ([]*domain.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Auction
	for _, a := range r.store {
		if a.Status == status {
			copied := a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memAuctionRepo) ListBySeller(ctx context.Context, sellerID string) ([]*domain.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Auction
	for _, a := range r.store {
		if a.SellerID == sellerID {
			copied := a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memAuctionRepo) ListExpiredOpen(ctx context.Context, before time.Time) ([]*domain.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Auction
	for _, a := range r.store {
		if a.Status == domain.StatusAberto && a.EndTime.Before(before) {
			copied := a
			out = append(out, &copied)
		}
	}
	return out, nil
}

var _ domain.BidRepository = &memBidRepo{}

// memBidRepo mirrors the store contract: CreateBid is a conditional append
// that fails when a bid above the observed highest already exists.
type memBidRepo struct {
	mu             sync.Mutex
	bids           map[string][]*domain.Bid
	beforeCreate   func()
	alwaysConflict bool
	createCalls    int
}

func newMemBidRepo() *memBidRepo {
	return &memBidRepo{bids: make(map[string][]*domain.Bid)}
}

func onceHook(fn func()) func() {
	var once sync.Once
	return func() { once.Do(fn) }
}

func (r *memBidRepo) insert(b *domain.Bid) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bids[b.AuctionID] = append(r.bids[b.AuctionID], b)
}

func (r *memBidRepo) count(auctionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bids[auctionID])
}

func (r *memBidRepo) amountsAscending(auctionID string) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	amounts := make([]float64, 0, len(r.bids[auctionID]))
	for _, b := range r.bids[auctionID] {
		amounts = append(amounts, b.Amount)
	}
	sort.Float64s(amounts)
	return amounts
}

func (r *memBidRepo) CreateBid(ctx context.Context, bid *domain.Bid, observedHighest float64) error {
	if r.beforeCreate != nil {
		r.beforeCreate()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++

	if r.alwaysConflict {
		return domain.ErrCommitConflict
	}

	for _, existing := range r.bids[bid.AuctionID] {
		if existing.Amount > observedHighest {
			return domain.ErrCommitConflict
		}
	}

	r.bids[bid.AuctionID] = append(r.bids[bid.AuctionID], bid)
	return nil
}

func (r *memBidRepo) HighestBid(ctx context.Context, auctionID string) (*domain.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var highest *domain.Bid
	for _, b := range r.bids[auctionID] {
		if highest == nil || b.Amount > highest.Amount {
			highest = b
		}
	}
	return highest, nil
}

func (r *memBidRepo) ListForAuction(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := append([]*domain.Bid(nil), r.bids[auctionID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Amount > out[j].Amount })
	return out, nil
}

func (r *memBidRepo) ListByBidder(ctx context.Context, bidderID string) ([]*domain.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.Bid
	for _, auctionBids := range r.bids {
		for _, b := range auctionBids {
			if b.BidderID == bidderID {
				out = append(out, b)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt.After(out[j].PlacedAt) })
	return out, nil
}

var _ domain.EventPublisher = &recordPublisher{}

type recordPublisher struct {
	mu     sync.Mutex
	events []*domain.AuctionEvent
}

func (p *recordPublisher) PublishAuctionEvent(ctx context.Context, event *domain.AuctionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordPublisher) published() []*domain.AuctionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*domain.AuctionEvent(nil), p.events...)
}

var _ domain.HighestBidCache = &memHighestCache{}

type memHighestCache struct {
	mu    sync.Mutex
	snaps map[string]*domain.HighestSnapshot
}

func newMemHighestCache() *memHighestCache {
	return &memHighestCache{snaps: make(map[string]*domain.HighestSnapshot)}
}

func (c *memHighestCache) SetHighest(ctx context.Context, snap *domain.HighestSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[snap.AuctionID] = snap
	return nil
}

func (c *memHighestCache) GetHighest(ctx context.Context, auctionID string) (*domain.HighestSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snaps[auctionID], nil
}

func (c *memHighestCache) Invalidate(ctx context.Context, auctionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snaps, auctionID)
	return nil
}

func (c *memHighestCache) get(auctionID string) *domain.HighestSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snaps[auctionID]
}

func (c *memHighestCache) set(snap *domain.HighestSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[snap.AuctionID] = snap
}
