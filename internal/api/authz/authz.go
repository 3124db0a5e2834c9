package authz

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
)

type Action string

const (
	ActionViewAuctions  Action = "view_auctions"
	ActionPlaceBid      Action = "place_bid"
	ActionOpenAuction   Action = "open_auction"
	ActionCancelAuction Action = "cancel_auction"
	ActionResetTimers   Action = "reset_timers"
	ActionSettleAuction Action = "settle_auction"
)

type AuthUser struct {
	ID         string
	Email      string
	Role       string
	TeamID     *string
	Restricted bool
}

// Resource identifies what an action targets. TeamID is the acting team for bids.
type Resource struct {
	AuctionID string
	TeamID    string
}

type userContextKey struct{}

func ContextWithUser(ctx context.Context, user *AuthUser) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext retrieves the AuthUser stored in ctx.
// It returns nil if ctx is nil, if no user is stored, or if the stored value has a different type.
func UserFromContext(ctx context.Context) *AuthUser {
	if ctx == nil {
		return nil
	}

	user, ok := ctx.Value(userContextKey{}).(*AuthUser)
	if !ok {
		return nil
	}

	return user
}

func HasRole(user *AuthUser, role string) bool {
	return user != nil && strings.EqualFold(strings.TrimSpace(user.Role), role)
}

// Authorize is the single capability check for every protected operation.
// Admins may do anything except bid; managers may view and bid for their own team.
func Authorize(user *AuthUser, action Action, resource Resource) error {
	if user == nil {
		return ErrUnauthenticated
	}

	switch action {
	case ActionViewAuctions:
		if HasRole(user, RoleAdmin) || HasRole(user, RoleManager) {
			return nil
		}
		return ErrForbidden
	case ActionPlaceBid:
		if !HasRole(user, RoleManager) || user.Restricted {
			return ErrForbidden
		}
		if user.TeamID == nil || resource.TeamID == "" || *user.TeamID != resource.TeamID {
			return ErrForbidden
		}
		return nil
	case ActionOpenAuction, ActionCancelAuction, ActionResetTimers, ActionSettleAuction:
		if HasRole(user, RoleAdmin) {
			return nil
		}
		return ErrForbidden
	default:
		return ErrForbidden
	}
}

// AuthorizeContext runs Authorize against the user carried by ctx.
func AuthorizeContext(ctx context.Context, action Action, resource Resource) error {
	return Authorize(UserFromContext(ctx), action, resource)
}
