package auction

import "context"

// AuctionRepository persists auctions. WithTx runs fn in a transaction carried by
// the context so the other repository methods called with that context join it.
type AuctionRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateAuction(ctx context.Context, a Auction) error
	GetAuction(ctx context.Context, id string) (Auction, error)
	UpdateAuction(ctx context.Context, a Auction) error
	ListAuctions(ctx context.Context, statuses ...Status) ([]Auction, error)
	ListLeadingAuctions(ctx context.Context, teamID string) ([]Auction, error)
	ActiveAuctionForPlayer(ctx context.Context, playerID string) (*Auction, error)
}

// BidRepository is append-only storage for accepted bids.
type BidRepository interface {
	InsertBid(ctx context.Context, b Bid) error
	HighestBid(ctx context.Context, auctionID string) (*Bid, error)
	ListBids(ctx context.Context, auctionID string) ([]Bid, error)
}

// TeamRepository exposes roster state and the assignment performed on settlement.
type TeamRepository interface {
	GetTeam(ctx context.Context, teamID string) (Team, error)
	PlayerIsFreeAgent(ctx context.Context, playerID string) (bool, error)
	AssignPlayer(ctx context.Context, playerID, teamID string, salary int64) error
}

type Repository interface {
	AuctionRepository
	BidRepository
	TeamRepository
}
