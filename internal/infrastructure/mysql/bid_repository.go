package mysql

import (
	"context"
	"database/sql"
	"errors"

	"leilao/internal/domain"

	"github.com/go-sql-driver/mysql"
)

type BidRepository struct {
	db *sql.DB
}

func NewBidRepository(db *sql.DB) *BidRepository {
	return &BidRepository{db: db}
}

// CreateBid appends the bid only while no bid above observedHighest exists
// for the auction. The guard runs inside the INSERT itself, so two engine
// instances sharing this database cannot both commit against the same
// observed highest; the loser gets ErrCommitConflict and revalidates.
func (r *BidRepository) CreateBid(ctx context.Context, bid *domain.Bid, observedHighest float64) error {
	query := `
        INSERT INTO bids (id, auction_id, bidder_id, amount, placed_at)
        SELECT ?, ?, ?, ?, ?
        FROM DUAL
        WHERE NOT EXISTS (
            SELECT 1 FROM bids WHERE auction_id = ? AND amount > ?
        )
    `
	res, err := r.db.ExecContext(ctx, query,
		bid.ID, bid.AuctionID, bid.BidderID, bid.Amount, bid.PlacedAt,
		bid.AuctionID, observedHighest)
	if err != nil {
		if isLockConflict(err) {
			return domain.ErrCommitConflict
		}
		return storeErr("create bid", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("create bid", err)
	}
	if n == 0 {
		return domain.ErrCommitConflict
	}
	return nil
}

// isLockConflict reports whether err is InnoDB killing the loser of two
// overlapping conditional inserts. Under REPEATABLE READ the race usually
// surfaces as a deadlock (1213) or lock wait timeout (1205) on the scanned
// range rather than as zero affected rows.
func isLockConflict(err error) bool {
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		return false
	}
	return mysqlErr.Number == 1213 || mysqlErr.Number == 1205
}

func (r *BidRepository) HighestBid(ctx context.Context, auctionID string) (*domain.Bid, error) {
	query := `
        SELECT id, auction_id, bidder_id, amount, placed_at
        FROM bids WHERE auction_id = ?
        ORDER BY amount DESC LIMIT 1
    `

	var bid domain.Bid
	err := r.db.QueryRowContext(ctx, query, auctionID).Scan(
		&bid.ID, &bid.AuctionID, &bid.BidderID, &bid.Amount, &bid.PlacedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get highest bid", err)
	}
	return &bid, nil
}

func (r *BidRepository) ListForAuction(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	query := `
        SELECT id, auction_id, bidder_id, amount, placed_at
        FROM bids WHERE auction_id = ?
        ORDER BY amount DESC
    `
	return r.queryBids(ctx, query, auctionID)
}

func (r *BidRepository) ListByBidder(ctx context.Context, bidderID string) ([]*domain.Bid, error) {
	query := `
        SELECT id, auction_id, bidder_id, amount, placed_at
        FROM bids WHERE bidder_id = ?
        ORDER BY placed_at DESC
    `
	return r.queryBids(ctx, query, bidderID)
}

func (r *BidRepository) queryBids(ctx context.Context, query string, arg interface{}) ([]*domain.Bid, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, storeErr("list bids", err)
	}
	defer rows.Close()

	var bids []*domain.Bid
	for rows.Next() {
		var bid domain.Bid
		if err := rows.Scan(&bid.ID, &bid.AuctionID, &bid.BidderID, &bid.Amount, &bid.PlacedAt); err != nil {
			return nil, storeErr("list bids", err)
		}
		bids = append(bids, &bid)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list bids", err)
	}

	return bids, nil
}
