package auction

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Settle finalizes an expired auction: the leading team gets the player at the
// winning amount, or the auction closes without a winner if nobody bid.
// Settling a settled or closed auction returns the recorded outcome unchanged.
func (e *Engine) Settle(ctx context.Context, auctionID string) (Settlement, error) {
	unlock := e.locks.Lock(auctionID)
	defer unlock()

	s, applied, err := e.settleLocked(ctx, auctionID)
	if err != nil {
		return Settlement{}, err
	}
	if applied {
		log.Ctx(ctx).Info().
			Str("auction_id", auctionID).
			Str("status", string(s.Status)).
			Str("team_id", s.TeamID).
			Int64("amount", s.Amount).
			Msg("Auction settled")
	}
	return s, nil
}

// settleLocked must run inside the auction's critical section. applied is false
// when the auction had already been finalized.
func (e *Engine) settleLocked(ctx context.Context, auctionID string) (Settlement, bool, error) {
	var (
		a       Auction
		applied bool
	)
	err := e.repo.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		a, err = e.repo.GetAuction(txCtx, auctionID)
		if err != nil {
			return err
		}

		switch a.Status {
		case StatusSettled, StatusClosed:
			return nil
		case StatusCancelled:
			return ErrAuctionCancelled
		}

		now := e.now()
		if now.Before(a.ExpiresAt) {
			return ErrNotExpired
		}

		a.SettledAt = &now
		if leader := a.Leader(); leader != "" {
			if err := e.repo.AssignPlayer(txCtx, a.PlayerID, leader, a.CurrentHighBid); err != nil {
				return fmt.Errorf("assign player: %w", err)
			}
			a.Status = StatusSettled
		} else {
			a.Status = StatusClosed
		}
		if err := e.repo.UpdateAuction(txCtx, a); err != nil {
			return fmt.Errorf("update auction: %w", err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return Settlement{}, false, err
	}

	s := settlementOf(a)
	if !applied {
		return s, false, nil
	}

	e.timers.Cancel(auctionID)
	if s.Status == StatusSettled {
		e.events.Publish(Event{
			Type:      EventAuctionSettled,
			AuctionID: s.AuctionID,
			PlayerID:  s.PlayerID,
			TeamID:    s.TeamID,
			Amount:    s.Amount,
			At:        s.SettledAt,
		})
	} else {
		e.events.Publish(Event{
			Type:      EventAuctionClosed,
			AuctionID: s.AuctionID,
			PlayerID:  s.PlayerID,
			At:        s.SettledAt,
		})
	}
	return s, true, nil
}

func settlementOf(a Auction) Settlement {
	s := Settlement{
		AuctionID: a.ID,
		PlayerID:  a.PlayerID,
		Status:    a.Status,
	}
	if a.Status == StatusSettled {
		s.TeamID = a.Leader()
		s.Amount = a.CurrentHighBid
	}
	if a.SettledAt != nil {
		s.SettledAt = *a.SettledAt
	}
	return s
}
