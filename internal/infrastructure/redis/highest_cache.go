package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"leilao/internal/domain"

	"github.com/go-redis/redis/v8"
)

// HighestCache keeps a read-through copy of each auction's current highest
// bid for display endpoints. The bid log remains the source of truth; the
// admission path never reads this cache.
type HighestCache struct {
	client *redis.Client
}

func NewHighestCache(client *redis.Client) *HighestCache {
	return &HighestCache{client: client}
}

func highestKey(auctionID string) string {
	return fmt.Sprintf("leilao:%s:highest", auctionID)
}

func (c *HighestCache) SetHighest(ctx context.Context, snap *domain.HighestSnapshot) error {
	return c.client.HSet(ctx, highestKey(snap.AuctionID),
		"amount", strconv.FormatFloat(snap.Amount, 'f', 2, 64),
		"bidder_id", snap.BidderID,
		"updated_at", strconv.FormatInt(snap.UpdatedAt.Unix(), 10),
	).Err()
}

func (c *HighestCache) GetHighest(ctx context.Context, auctionID string) (*domain.HighestSnapshot, error) {
	fields, err := c.client.HGetAll(ctx, highestKey(auctionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: read highest cache: %v", domain.ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	amount, err := strconv.ParseFloat(fields["amount"], 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt highest cache entry for auction %s: %v", auctionID, err)
	}

	updated, _ := strconv.ParseInt(fields["updated_at"], 10, 64)

	return &domain.HighestSnapshot{
		AuctionID: auctionID,
		BidderID:  fields["bidder_id"],
		Amount:    amount,
		UpdatedAt: time.Unix(updated, 0),
	}, nil
}

func (c *HighestCache) Invalidate(ctx context.Context, auctionID string) error {
	return c.client.Del(ctx, highestKey(auctionID)).Err()
}
