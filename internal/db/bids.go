package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/codr1/leaguebids/internal/auction"
)

func (db *DB) InsertBid(ctx context.Context, b auction.Bid) error {
	_, err := db.conn(ctx).ExecContext(ctx, `
		INSERT INTO bids (id, auction_id, team_id, amount, placed_at)
		VALUES (?, ?, ?, ?, ?)`,
		b.ID,
		b.AuctionID,
		b.TeamID,
		b.Amount,
		b.PlacedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert bid: %w", err)
	}
	return nil
}

func (db *DB) HighestBid(ctx context.Context, auctionID string) (*auction.Bid, error) {
	var b auction.Bid
	err := db.conn(ctx).QueryRowContext(ctx, `
		SELECT id, auction_id, team_id, amount, placed_at
		FROM bids
		WHERE auction_id = ?
		ORDER BY seq DESC
		LIMIT 1`,
		auctionID,
	).Scan(&b.ID, &b.AuctionID, &b.TeamID, &b.Amount, &b.PlacedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get highest bid: %w", err)
	}
	b.PlacedAt = b.PlacedAt.UTC()
	return &b, nil
}

func (db *DB) ListBids(ctx context.Context, auctionID string) ([]auction.Bid, error) {
	rows, err := db.conn(ctx).QueryContext(ctx, `
		SELECT id, auction_id, team_id, amount, placed_at
		FROM bids
		WHERE auction_id = ?
		ORDER BY seq`,
		auctionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	defer rows.Close()

	var out []auction.Bid
	for rows.Next() {
		var b auction.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.TeamID, &b.Amount, &b.PlacedAt); err != nil {
			return nil, fmt.Errorf("scan bid: %w", err)
		}
		b.PlacedAt = b.PlacedAt.UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}
