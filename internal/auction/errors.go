package auction

import "errors"

var (
	ErrAuctionNotFound   = errors.New("auction not found")
	ErrTeamNotFound      = errors.New("team not found")
	ErrPlayerNotFound    = errors.New("player not found")
	ErrPlayerUnavailable = errors.New("player is not a free agent")
	ErrInvalidAmount     = errors.New("bid amount must be positive")
	ErrInvalidWindow     = errors.New("window must be positive")
	ErrNonMonotonicBid   = errors.New("bid does not exceed current highest bid")
	ErrAuctionClosed     = errors.New("auction already closed")
	ErrAuctionCancelled  = errors.New("auction cancelled")
	ErrNotExpired        = errors.New("auction has not expired")
	ErrAuctionExists     = errors.New("player already has an active auction")
)
