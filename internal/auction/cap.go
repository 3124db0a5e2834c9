package auction

import (
	"context"
	"fmt"
)

// CapValidator checks prospective winning bids against a team's salary cap.
type CapValidator struct {
	teams    TeamRepository
	auctions AuctionRepository
	maxCap   int64
}

func NewCapValidator(teams TeamRepository, auctions AuctionRepository, maxCap int64) *CapValidator {
	return &CapValidator{teams: teams, auctions: auctions, maxCap: maxCap}
}

// State computes the team's cap position. Exposure on excludeAuctionID is left out
// so a team raising its own lead is not charged twice.
func (v *CapValidator) State(ctx context.Context, teamID, excludeAuctionID string) (TeamCapState, error) {
	team, err := v.teams.GetTeam(ctx, teamID)
	if err != nil {
		return TeamCapState{}, err
	}
	leading, err := v.auctions.ListLeadingAuctions(ctx, teamID)
	if err != nil {
		return TeamCapState{}, fmt.Errorf("list leading auctions: %w", err)
	}

	state := TeamCapState{
		TeamID:          teamID,
		CommittedSalary: team.CommittedSalary,
		MaxSalaryCap:    v.maxCap,
	}
	for _, a := range leading {
		if a.ID == excludeAuctionID || !a.Status.Biddable() {
			continue
		}
		state.PendingBidExposure += a.CurrentHighBid
	}
	return state, nil
}

// WouldExceedCap reports whether committing candidate on auctionID would push the
// team past the maximum salary cap.
func (v *CapValidator) WouldExceedCap(ctx context.Context, teamID, auctionID string, candidate int64) (bool, TeamCapState, error) {
	state, err := v.State(ctx, teamID, auctionID)
	if err != nil {
		return false, TeamCapState{}, err
	}
	return state.CommittedSalary+state.PendingBidExposure+candidate > state.MaxSalaryCap, state, nil
}
