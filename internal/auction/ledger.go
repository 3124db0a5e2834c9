package auction

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Ledger is the ordered, append-only record of accepted bids per auction.
// Amounts for one auction are strictly increasing in append order.
type Ledger struct {
	repo BidRepository
}

func NewLedger(repo BidRepository) *Ledger {
	return &Ledger{repo: repo}
}

// Append records a bid. It fails with ErrNonMonotonicBid if the amount does not
// exceed the current highest bid for the auction.
func (l *Ledger) Append(ctx context.Context, auctionID, teamID string, amount int64, placedAt time.Time) (Bid, error) {
	if amount <= 0 {
		return Bid{}, ErrInvalidAmount
	}
	highest, err := l.repo.HighestBid(ctx, auctionID)
	if err != nil {
		return Bid{}, fmt.Errorf("load highest bid: %w", err)
	}
	if highest != nil && amount <= highest.Amount {
		return Bid{}, ErrNonMonotonicBid
	}

	bid := Bid{
		ID:        uuid.NewString(),
		AuctionID: auctionID,
		TeamID:    teamID,
		Amount:    amount,
		PlacedAt:  placedAt.UTC(),
	}
	if err := l.repo.InsertBid(ctx, bid); err != nil {
		return Bid{}, fmt.Errorf("insert bid: %w", err)
	}
	return bid, nil
}

// Highest returns the most recently accepted bid, or nil if none exist.
func (l *Ledger) Highest(ctx context.Context, auctionID string) (*Bid, error) {
	return l.repo.HighestBid(ctx, auctionID)
}

// List returns the auction's bids in acceptance order.
func (l *Ledger) List(ctx context.Context, auctionID string) ([]Bid, error) {
	return l.repo.ListBids(ctx, auctionID)
}
