package auction

import "time"

type Status string

const (
	StatusOpen      Status = "open"
	StatusExtended  Status = "extended"
	StatusClosed    Status = "closed"
	StatusSettled   Status = "settled"
	StatusCancelled Status = "cancelled"
)

// Biddable reports whether the auction still accepts bids.
func (s Status) Biddable() bool {
	return s == StatusOpen || s == StatusExtended
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusSettled || s == StatusCancelled
}

// Auction is a timed free-agent auction for a single player.
type Auction struct {
	ID                string
	PlayerID          string
	Status            Status
	CurrentHighBid    int64
	CurrentHighTeamID *string
	MinIncrement      int64
	BidWindow         time.Duration
	ExpiresAt         time.Time
	CreatedAt         time.Time
	SettledAt         *time.Time
}

// Leader returns the leading team id, or "" when no bid has been accepted.
func (a Auction) Leader() string {
	if a.CurrentHighTeamID == nil {
		return ""
	}
	return *a.CurrentHighTeamID
}

// MinimumNextBid is the smallest amount the next bid must reach.
func (a Auction) MinimumNextBid() int64 {
	return a.CurrentHighBid + a.MinIncrement
}

// Bid is an accepted bid. Bids are immutable once recorded.
type Bid struct {
	ID        string
	AuctionID string
	TeamID    string
	Amount    int64
	PlacedAt  time.Time
}

// Team is the subset of team state the engine needs.
type Team struct {
	ID              string
	Name            string
	Restricted      bool
	CommittedSalary int64
}

// TeamCapState is derived from the roster and open auctions at decision time.
type TeamCapState struct {
	TeamID             string
	CommittedSalary    int64
	PendingBidExposure int64
	MaxSalaryCap       int64
}

// Headroom is the amount the team can still commit.
func (s TeamCapState) Headroom() int64 {
	return s.MaxSalaryCap - s.CommittedSalary - s.PendingBidExposure
}

// Rules are the administratively configured auction parameters.
type Rules struct {
	MinIncrement    int64
	BidWindow       time.Duration
	OpeningWindow   time.Duration
	MaxSalaryCap    int64
	MinPlayerSalary int64
	MaxPlayerSalary int64
	// StrictTeamCap serializes bids per team as well as per auction so two auctions
	// cannot both pass cap validation for the same team at the same instant.
	StrictTeamCap bool
}

// DefaultRules returns the league defaults.
func DefaultRules() Rules {
	return Rules{
		MinIncrement:    2_000_000,
		BidWindow:       5 * time.Minute,
		OpeningWindow:   24 * time.Hour,
		MaxSalaryCap:    65_000_000,
		MinPlayerSalary: 1_000_000,
		MaxPlayerSalary: 65_000_000,
	}
}

type RejectReason string

const (
	ReasonTooLow           RejectReason = "too_low"
	ReasonCapExceeded      RejectReason = "cap_exceeded"
	ReasonClosed           RejectReason = "closed"
	ReasonTeamRestricted   RejectReason = "team_restricted"
	ReasonSalaryOutOfRange RejectReason = "salary_out_of_range"
)

type BidInput struct {
	AuctionID string
	TeamID    string
	Amount    int64
}

// BidResult is returned for every evaluated submission. CurrentHighBid and
// MinimumNextBid always reflect the state after evaluation.
type BidResult struct {
	Accepted       bool
	Reason         RejectReason
	Bid            *Bid
	CurrentHighBid int64
	MinimumNextBid int64
	NewExpiry      *time.Time
}

type OpenInput struct {
	PlayerID string
	// Window overrides Rules.OpeningWindow when positive.
	Window time.Duration
}

// Settlement is the outcome of finalizing an auction.
type Settlement struct {
	AuctionID string
	PlayerID  string
	Status    Status
	TeamID    string
	Amount    int64
	SettledAt time.Time
}
