package freeagency

import (
	"time"

	"github.com/codr1/leaguebids/internal/auction"
)

type auctionResponse struct {
	ID                string     `json:"id"`
	PlayerID          string     `json:"player_id"`
	Status            string     `json:"status"`
	CurrentHighBid    int64      `json:"current_high_bid"`
	CurrentHighTeamID *string    `json:"current_high_team_id,omitempty"`
	MinIncrement      int64      `json:"min_increment"`
	MinimumNextBid    int64      `json:"minimum_next_bid"`
	BidWindowSeconds  int64      `json:"bid_window_seconds"`
	ExpiresAt         time.Time  `json:"expires_at"`
	CreatedAt         time.Time  `json:"created_at"`
	SettledAt         *time.Time `json:"settled_at,omitempty"`
}

type bidHistoryEntry struct {
	ID       string    `json:"id"`
	TeamID   string    `json:"team_id"`
	Amount   int64     `json:"amount"`
	PlacedAt time.Time `json:"placed_at"`
}

type auctionDetailResponse struct {
	Auction auctionResponse   `json:"auction"`
	Bids    []bidHistoryEntry `json:"bids"`
}

type bidResponse struct {
	Accepted       bool       `json:"accepted"`
	Reason         string     `json:"reason,omitempty"`
	Message        string     `json:"message,omitempty"`
	CurrentHighBid int64      `json:"current_high_bid"`
	MinimumNextBid int64      `json:"minimum_next_bid"`
	NewExpiry      *time.Time `json:"new_expiry,omitempty"`
}

type cancelResponse struct {
	Success bool            `json:"success"`
	Auction auctionResponse `json:"auction"`
}

type settlementResponse struct {
	AuctionID string    `json:"auction_id"`
	PlayerID  string    `json:"player_id"`
	Status    string    `json:"status"`
	TeamID    string    `json:"team_id,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	SettledAt time.Time `json:"settled_at"`
}

type resetTimersResponse struct {
	Reset         int   `json:"reset"`
	WindowSeconds int64 `json:"window_seconds"`
}

type capResponse struct {
	TeamID             string `json:"team_id"`
	CommittedSalary    int64  `json:"committed_salary"`
	PendingBidExposure int64  `json:"pending_bid_exposure"`
	MaxSalaryCap       int64  `json:"max_salary_cap"`
	Headroom           int64  `json:"headroom"`
}

func toAuctionResponse(a auction.Auction) auctionResponse {
	return auctionResponse{
		ID:                a.ID,
		PlayerID:          a.PlayerID,
		Status:            string(a.Status),
		CurrentHighBid:    a.CurrentHighBid,
		CurrentHighTeamID: a.CurrentHighTeamID,
		MinIncrement:      a.MinIncrement,
		MinimumNextBid:    a.MinimumNextBid(),
		BidWindowSeconds:  int64(a.BidWindow / time.Second),
		ExpiresAt:         a.ExpiresAt,
		CreatedAt:         a.CreatedAt,
		SettledAt:         a.SettledAt,
	}
}

func toBidResponse(r auction.BidResult) bidResponse {
	resp := bidResponse{
		Accepted:       r.Accepted,
		Reason:         string(r.Reason),
		CurrentHighBid: r.CurrentHighBid,
		MinimumNextBid: r.MinimumNextBid,
		NewExpiry:      r.NewExpiry,
	}
	if !r.Accepted {
		resp.Message = rejectMessage(r)
	}
	return resp
}

func rejectMessage(r auction.BidResult) string {
	switch r.Reason {
	case auction.ReasonTooLow:
		return "Bid must be at least " + auction.FormatMoney(r.MinimumNextBid)
	case auction.ReasonCapExceeded:
		return "Bid would exceed the team salary cap"
	case auction.ReasonClosed:
		return "Auction is closed"
	case auction.ReasonTeamRestricted:
		return "Team is restricted from bidding"
	case auction.ReasonSalaryOutOfRange:
		return "Bid is outside the allowed player salary range"
	default:
		return ""
	}
}

func toSettlementResponse(s auction.Settlement) settlementResponse {
	return settlementResponse{
		AuctionID: s.AuctionID,
		PlayerID:  s.PlayerID,
		Status:    string(s.Status),
		TeamID:    s.TeamID,
		Amount:    s.Amount,
		SettledAt: s.SettledAt,
	}
}

func toCapResponse(s auction.TeamCapState) capResponse {
	return capResponse{
		TeamID:             s.TeamID,
		CommittedSalary:    s.CommittedSalary,
		PendingBidExposure: s.PendingBidExposure,
		MaxSalaryCap:       s.MaxSalaryCap,
		Headroom:           s.Headroom(),
	}
}
