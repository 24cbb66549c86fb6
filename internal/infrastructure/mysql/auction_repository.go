package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"leilao/internal/domain"

	_ "github.com/go-sql-driver/mysql"
)

const auctionColumns = `id, title, description, detailed_description, observation,
        category_id, seller_id, start_time, end_time, minimum_bid, increment,
        status, created_at, updated_at`

type AuctionRepository struct {
	db *sql.DB
}

func NewAuctionRepository(db *sql.DB) *AuctionRepository {
	return &AuctionRepository{db: db}
}

func (r *AuctionRepository) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	query := `
        INSERT INTO auctions (` + auctionColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := r.db.ExecContext(ctx, query,
		auction.ID, auction.Title, auction.Description, auction.DetailedDescription,
		auction.Observation, auction.CategoryID, auction.SellerID,
		auction.StartTime, auction.EndTime, auction.MinimumBid, auction.Increment,
		int(auction.Status), auction.CreatedAt, auction.UpdatedAt)
	if err != nil {
		return storeErr("create auction", err)
	}
	return nil
}

func (r *AuctionRepository) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = ?`

	auction, err := scanAuction(r.db.QueryRowContext(ctx, query, auctionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAuctionNotFound
	}
	if err != nil {
		return nil, storeErr("get auction", err)
	}
	return auction, nil
}

func (r *AuctionRepository) UpdateAuction(ctx context.Context, auction *domain.Auction) error {
	query := `
        UPDATE auctions
        SET title = ?, description = ?, detailed_description = ?, observation = ?,
            category_id = ?, start_time = ?, end_time = ?, minimum_bid = ?,
            increment = ?, status = ?, updated_at = ?
        WHERE id = ?
    `
	res, err := r.db.ExecContext(ctx, query,
		auction.Title, auction.Description, auction.DetailedDescription,
		auction.Observation, auction.CategoryID, auction.StartTime, auction.EndTime,
		auction.MinimumBid, auction.Increment, int(auction.Status),
		auction.UpdatedAt, auction.ID)
	if err != nil {
		return storeErr("update auction", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("update auction", err)
	}
	if n == 0 {
		return domain.ErrAuctionNotFound
	}
	return nil
}

// DeleteAuction removes the auction together with its bids; a bid never
// outlives its auction.
func (r *AuctionRepository) DeleteAuction(ctx context.Context, auctionID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("delete auction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM bids WHERE auction_id = ?`, auctionID); err != nil {
		return storeErr("delete auction bids", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM auctions WHERE id = ?`, auctionID)
	if err != nil {
		return storeErr("delete auction", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("delete auction", err)
	}
	if n == 0 {
		return domain.ErrAuctionNotFound
	}

	if err := tx.Commit(); err != nil {
		return storeErr("delete auction", err)
	}
	return nil
}

func (r *AuctionRepository) ListByStatus(ctx context.Context, status domain.AuctionStatus) ([]*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE status = ? ORDER BY created_at DESC`
	return r.queryAuctions(ctx, query, int(status))
}

func (r *AuctionRepository) ListBySeller(ctx context.Context, sellerID string) ([]*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE seller_id = ? ORDER BY created_at DESC`
	return r.queryAuctions(ctx, query, sellerID)
}

func (r *AuctionRepository) ListExpiredOpen(ctx context.Context, before time.Time) ([]*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE status = ? AND end_time < ? ORDER BY end_time ASC`
	return r.queryAuctions(ctx, query, int(domain.StatusAberto), before)
}

func (r *AuctionRepository) queryAuctions(ctx context.Context, query string, args ...interface{}) ([]*domain.Auction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list auctions", err)
	}
	defer rows.Close()

	var auctions []*domain.Auction
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, storeErr("list auctions", err)
		}
		auctions = append(auctions, auction)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list auctions", err)
	}

	return auctions, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuction(row rowScanner) (*domain.Auction, error) {
	var auction domain.Auction
	var status int

	err := row.Scan(
		&auction.ID, &auction.Title, &auction.Description, &auction.DetailedDescription,
		&auction.Observation, &auction.CategoryID, &auction.SellerID,
		&auction.StartTime, &auction.EndTime, &auction.MinimumBid, &auction.Increment,
		&status, &auction.CreatedAt, &auction.UpdatedAt)
	if err != nil {
		return nil, err
	}

	auction.Status = domain.AuctionStatus(status)
	return &auction, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}
