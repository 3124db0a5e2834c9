package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codr1/leaguebids/internal/auction"
)

var _ auction.Repository = (*DB)(nil)

const auctionColumns = `id, player_id, status, current_high_bid, current_high_team_id,
	min_increment, bid_window_seconds, expires_at, created_at, settled_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (auction.Auction, error) {
	var (
		a          auction.Auction
		status     string
		highTeamID sql.NullString
		windowSecs int64
		settledAt  sql.NullTime
	)
	if err := row.Scan(
		&a.ID,
		&a.PlayerID,
		&status,
		&a.CurrentHighBid,
		&highTeamID,
		&a.MinIncrement,
		&windowSecs,
		&a.ExpiresAt,
		&a.CreatedAt,
		&settledAt,
	); err != nil {
		return auction.Auction{}, err
	}
	a.Status = auction.Status(status)
	a.BidWindow = time.Duration(windowSecs) * time.Second
	a.ExpiresAt = a.ExpiresAt.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	if highTeamID.Valid {
		teamID := highTeamID.String
		a.CurrentHighTeamID = &teamID
	}
	if settledAt.Valid {
		t := settledAt.Time.UTC()
		a.SettledAt = &t
	}
	return a, nil
}

func (db *DB) CreateAuction(ctx context.Context, a auction.Auction) error {
	_, err := db.conn(ctx).ExecContext(ctx, `
		INSERT INTO auctions (`+auctionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.PlayerID,
		string(a.Status),
		a.CurrentHighBid,
		nullString(a.CurrentHighTeamID),
		a.MinIncrement,
		int64(a.BidWindow/time.Second),
		a.ExpiresAt.UTC(),
		a.CreatedAt.UTC(),
		nullTime(a.SettledAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return auction.ErrAuctionExists
		}
		return fmt.Errorf("insert auction: %w", err)
	}
	return nil
}

func (db *DB) GetAuction(ctx context.Context, id string) (auction.Auction, error) {
	row := db.conn(ctx).QueryRowContext(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = ?`, id)
	a, err := scanAuction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auction.Auction{}, auction.ErrAuctionNotFound
		}
		return auction.Auction{}, fmt.Errorf("get auction: %w", err)
	}
	return a, nil
}

func (db *DB) UpdateAuction(ctx context.Context, a auction.Auction) error {
	res, err := db.conn(ctx).ExecContext(ctx, `
		UPDATE auctions
		SET status = ?,
			current_high_bid = ?,
			current_high_team_id = ?,
			expires_at = ?,
			settled_at = ?
		WHERE id = ?`,
		string(a.Status),
		a.CurrentHighBid,
		nullString(a.CurrentHighTeamID),
		a.ExpiresAt.UTC(),
		nullTime(a.SettledAt),
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("update auction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update auction rows: %w", err)
	}
	if n == 0 {
		return auction.ErrAuctionNotFound
	}
	return nil
}

func (db *DB) ListAuctions(ctx context.Context, statuses ...auction.Status) ([]auction.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, s := range statuses {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY expires_at, created_at`
	return db.queryAuctions(ctx, query, args...)
}

func (db *DB) ListLeadingAuctions(ctx context.Context, teamID string) ([]auction.Auction, error) {
	return db.queryAuctions(ctx, `
		SELECT `+auctionColumns+`
		FROM auctions
		WHERE current_high_team_id = ? AND status IN ('open', 'extended')`,
		teamID,
	)
}

func (db *DB) ActiveAuctionForPlayer(ctx context.Context, playerID string) (*auction.Auction, error) {
	row := db.conn(ctx).QueryRowContext(ctx, `
		SELECT `+auctionColumns+`
		FROM auctions
		WHERE player_id = ? AND status IN ('open', 'extended')`,
		playerID,
	)
	a, err := scanAuction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active auction: %w", err)
	}
	return &a, nil
}

func (db *DB) queryAuctions(ctx context.Context, query string, args ...any) ([]auction.Auction, error) {
	rows, err := db.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query auctions: %w", err)
	}
	defer rows.Close()

	var out []auction.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan auction: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
