package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultExpiryTimeout = 10 * time.Second

// Engine coordinates auction lifecycles. Every state transition for a given
// auction happens inside that auction's critical section; different auctions
// proceed in parallel.
type Engine struct {
	repo   Repository
	ledger *Ledger
	caps   *CapValidator
	timers *TimerService
	clock  clockwork.Clock
	events Publisher
	rules  Rules
	logger zerolog.Logger

	locks       keyedMutex
	teamLocks   keyedMutex
	playerLocks keyedMutex

	expiryTimeout time.Duration
}

type Option func(*Engine)

// WithClock overrides the wall clock (tests use a fake clock).
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithPublisher sets the event sink.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.events = p
		}
	}
}

// WithLogger sets the logger used for timer-driven work that has no request context.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

func NewEngine(repo Repository, rules Rules, opts ...Option) *Engine {
	e := &Engine{
		repo:          repo,
		rules:         rules,
		clock:         clockwork.NewRealClock(),
		events:        nopPublisher{},
		logger:        log.Logger,
		expiryTimeout: defaultExpiryTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With().Str("component", "auction_engine").Logger()
	e.ledger = NewLedger(repo)
	e.caps = NewCapValidator(repo, repo, rules.MaxSalaryCap)
	e.timers = NewTimerService(e.clock, func(f Fire) { go e.handleExpiry(f) })
	return e
}

func (e *Engine) Rules() Rules {
	return e.rules
}

func (e *Engine) Timers() *TimerService {
	return e.timers
}

// Stop cancels all pending expiry timers.
func (e *Engine) Stop() {
	e.timers.Stop()
}

func (e *Engine) now() time.Time {
	return e.clock.Now().UTC()
}

// OpenAuction starts an auction for a free agent using the rules in effect now.
func (e *Engine) OpenAuction(ctx context.Context, in OpenInput) (Auction, error) {
	if in.PlayerID == "" {
		return Auction{}, ErrPlayerNotFound
	}
	window := in.Window
	if window < 0 {
		return Auction{}, ErrInvalidWindow
	}
	if window == 0 {
		window = e.rules.OpeningWindow
	}

	unlock := e.playerLocks.Lock(in.PlayerID)
	defer unlock()

	now := e.now()
	a := Auction{
		ID:           uuid.NewString(),
		PlayerID:     in.PlayerID,
		Status:       StatusOpen,
		MinIncrement: e.rules.MinIncrement,
		BidWindow:    e.rules.BidWindow,
		ExpiresAt:    now.Add(window),
		CreatedAt:    now,
	}

	err := e.repo.WithTx(ctx, func(txCtx context.Context) error {
		free, err := e.repo.PlayerIsFreeAgent(txCtx, in.PlayerID)
		if err != nil {
			return err
		}
		if !free {
			return ErrPlayerUnavailable
		}
		existing, err := e.repo.ActiveAuctionForPlayer(txCtx, in.PlayerID)
		if err != nil {
			return fmt.Errorf("check active auction: %w", err)
		}
		if existing != nil {
			return ErrAuctionExists
		}
		return e.repo.CreateAuction(txCtx, a)
	})
	if err != nil {
		return Auction{}, err
	}

	e.timers.Schedule(a.ID, a.ExpiresAt)
	expiresAt := a.ExpiresAt
	e.events.Publish(Event{
		Type:           EventAuctionOpened,
		AuctionID:      a.ID,
		PlayerID:       a.PlayerID,
		MinimumNextBid: a.MinimumNextBid(),
		ExpiresAt:      &expiresAt,
		At:             now,
	})
	log.Ctx(ctx).Info().
		Str("auction_id", a.ID).
		Str("player_id", a.PlayerID).
		Time("expires_at", a.ExpiresAt).
		Msg("Auction opened")
	return a, nil
}

// SubmitBid evaluates a bid under the auction's critical section. Business
// rejections are reported in the result; the error is reserved for missing
// records and storage failures.
func (e *Engine) SubmitBid(ctx context.Context, in BidInput) (BidResult, error) {
	if in.Amount <= 0 {
		return BidResult{}, ErrInvalidAmount
	}

	logger := log.Ctx(ctx).With().
		Str("component", "auction_coordinator").
		Str("auction_id", in.AuctionID).
		Str("team_id", in.TeamID).
		Int64("amount", in.Amount).
		Logger()

	unlock := e.locks.Lock(in.AuctionID)
	defer unlock()
	if e.rules.StrictTeamCap {
		unlockTeam := e.teamLocks.Lock(in.TeamID)
		defer unlockTeam()
	}

	var (
		result     BidResult
		auction    Auction
		prevLeader string
	)
	err := e.repo.WithTx(ctx, func(txCtx context.Context) error {
		a, err := e.repo.GetAuction(txCtx, in.AuctionID)
		if err != nil {
			return err
		}
		team, err := e.repo.GetTeam(txCtx, in.TeamID)
		if err != nil {
			return err
		}
		auction = a
		now := e.now()

		reason, err := e.evaluate(txCtx, a, team, in.Amount, now)
		if err != nil {
			return err
		}
		if reason != "" {
			result = BidResult{
				Reason:         reason,
				CurrentHighBid: a.CurrentHighBid,
				MinimumNextBid: a.MinimumNextBid(),
			}
			return nil
		}

		bid, err := e.ledger.Append(txCtx, a.ID, team.ID, in.Amount, now)
		if err != nil {
			return err
		}
		prevLeader = a.Leader()
		teamID := team.ID
		a.CurrentHighBid = in.Amount
		a.CurrentHighTeamID = &teamID
		a.Status = StatusExtended
		a.ExpiresAt = now.Add(a.BidWindow)
		if err := e.repo.UpdateAuction(txCtx, a); err != nil {
			return fmt.Errorf("update auction: %w", err)
		}
		auction = a

		expiresAt := a.ExpiresAt
		result = BidResult{
			Accepted:       true,
			Bid:            &bid,
			CurrentHighBid: a.CurrentHighBid,
			MinimumNextBid: a.MinimumNextBid(),
			NewExpiry:      &expiresAt,
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrAuctionNotFound) && !errors.Is(err, ErrTeamNotFound) {
			logger.Error().Err(err).Msg("Failed to evaluate bid")
		}
		return BidResult{}, err
	}

	if !result.Accepted {
		e.events.Publish(Event{
			Type:           EventBidRejected,
			AuctionID:      in.AuctionID,
			PlayerID:       auction.PlayerID,
			TeamID:         in.TeamID,
			Amount:         in.Amount,
			MinimumNextBid: result.MinimumNextBid,
			Reason:         result.Reason,
			At:             e.now(),
		})
		logger.Info().
			Str("reason", string(result.Reason)).
			Int64("current_high_bid", result.CurrentHighBid).
			Int64("minimum_next_bid", result.MinimumNextBid).
			Msg("Bid rejected")
		return result, nil
	}

	e.timers.Schedule(auction.ID, auction.ExpiresAt)
	e.events.Publish(Event{
		Type:           EventBidAccepted,
		AuctionID:      auction.ID,
		PlayerID:       auction.PlayerID,
		TeamID:         in.TeamID,
		PreviousTeamID: prevLeader,
		Amount:         in.Amount,
		MinimumNextBid: result.MinimumNextBid,
		ExpiresAt:      result.NewExpiry,
		At:             result.Bid.PlacedAt,
	})
	logger.Info().
		Str("bid_id", result.Bid.ID).
		Time("expires_at", auction.ExpiresAt).
		Msg("Bid accepted")
	return result, nil
}

func (e *Engine) evaluate(ctx context.Context, a Auction, team Team, amount int64, now time.Time) (RejectReason, error) {
	// TooLow wins over every later reason, whatever the auction's status.
	switch {
	case team.Restricted:
		return ReasonTeamRestricted, nil
	case amount < a.MinimumNextBid():
		return ReasonTooLow, nil
	case amount < e.rules.MinPlayerSalary || (e.rules.MaxPlayerSalary > 0 && amount > e.rules.MaxPlayerSalary):
		return ReasonSalaryOutOfRange, nil
	}

	exceeds, _, err := e.caps.WouldExceedCap(ctx, team.ID, a.ID, amount)
	if err != nil {
		return "", fmt.Errorf("validate cap: %w", err)
	}
	if exceeds {
		return ReasonCapExceeded, nil
	}

	if !a.Status.Biddable() {
		return ReasonClosed, nil
	}
	// The timer may not have been processed yet; the clock is authoritative.
	if !now.Before(a.ExpiresAt) {
		return ReasonClosed, nil
	}
	return "", nil
}

// CancelAuction administratively removes an auction, superseding bidding and the
// timer. Cancelling an already-cancelled auction succeeds without change.
func (e *Engine) CancelAuction(ctx context.Context, auctionID string) (Auction, error) {
	unlock := e.locks.Lock(auctionID)
	defer unlock()

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
		case StatusCancelled:
			return nil
		case StatusSettled, StatusClosed:
			return ErrAuctionClosed
		}
		now := e.now()
		a.Status = StatusCancelled
		a.SettledAt = &now
		applied = true
		return e.repo.UpdateAuction(txCtx, a)
	})
	if err != nil {
		return Auction{}, err
	}

	e.timers.Cancel(auctionID)
	if applied {
		e.events.Publish(Event{
			Type:      EventAuctionCancelled,
			AuctionID: a.ID,
			PlayerID:  a.PlayerID,
			At:        e.now(),
		})
		log.Ctx(ctx).Info().Str("auction_id", a.ID).Msg("Auction cancelled")
	}
	return a, nil
}

// ResetTimers sets every biddable auction to expire window from now. Each
// auction is rescheduled inside its own critical section.
func (e *Engine) ResetTimers(ctx context.Context, window time.Duration) (int, error) {
	if window <= 0 {
		return 0, ErrInvalidWindow
	}
	auctions, err := e.repo.ListAuctions(ctx, StatusOpen, StatusExtended)
	if err != nil {
		return 0, fmt.Errorf("list open auctions: %w", err)
	}

	reset := 0
	for _, listed := range auctions {
		ok, err := e.resetTimer(ctx, listed.ID, window)
		if err != nil {
			return reset, err
		}
		if ok {
			reset++
		}
	}
	log.Ctx(ctx).Info().
		Int("auctions_reset", reset).
		Dur("window", window).
		Msg("Auction timers reset")
	return reset, nil
}

func (e *Engine) resetTimer(ctx context.Context, auctionID string, window time.Duration) (bool, error) {
	unlock := e.locks.Lock(auctionID)
	defer unlock()

	var a Auction
	err := e.repo.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		a, err = e.repo.GetAuction(txCtx, auctionID)
		if err != nil {
			return err
		}
		if !a.Status.Biddable() {
			return nil
		}
		a.ExpiresAt = e.now().Add(window)
		return e.repo.UpdateAuction(txCtx, a)
	})
	if err != nil {
		return false, fmt.Errorf("reset auction %s: %w", auctionID, err)
	}
	if !a.Status.Biddable() {
		return false, nil
	}
	e.timers.Schedule(a.ID, a.ExpiresAt)
	return true, nil
}

// Restore schedules timers for every biddable auction, typically at startup.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	auctions, err := e.repo.ListAuctions(ctx, StatusOpen, StatusExtended)
	if err != nil {
		return 0, fmt.Errorf("list open auctions: %w", err)
	}
	for _, a := range auctions {
		e.timers.Schedule(a.ID, a.ExpiresAt)
	}
	log.Ctx(ctx).Info().Int("auctions", len(auctions)).Msg("Auction timers restored")
	return len(auctions), nil
}

// SweepExpired settles every biddable auction whose expiry has passed. It backs
// up the in-process timers and is safe to run concurrently with them.
func (e *Engine) SweepExpired(ctx context.Context) ([]Settlement, error) {
	auctions, err := e.repo.ListAuctions(ctx, StatusOpen, StatusExtended)
	if err != nil {
		return nil, fmt.Errorf("list open auctions: %w", err)
	}

	now := e.now()
	var (
		settled []Settlement
		errs    []error
	)
	for _, a := range auctions {
		if now.Before(a.ExpiresAt) {
			continue
		}
		s, err := e.Settle(ctx, a.ID)
		if err != nil {
			if errors.Is(err, ErrNotExpired) {
				continue
			}
			errs = append(errs, fmt.Errorf("settle auction %s: %w", a.ID, err))
			continue
		}
		settled = append(settled, s)
	}
	return settled, errors.Join(errs...)
}

func (e *Engine) handleExpiry(f Fire) {
	defer e.timers.Consume(f)

	logger := e.logger.With().
		Str("auction_id", f.AuctionID).
		Time("expires_at", f.ExpiresAt).
		Logger()
	ctx, cancel := context.WithTimeout(context.Background(), e.expiryTimeout)
	defer cancel()
	ctx = logger.WithContext(ctx)

	unlock := e.locks.Lock(f.AuctionID)
	defer unlock()

	s, applied, err := e.settleLocked(ctx, f.AuctionID)
	switch {
	case errors.Is(err, ErrNotExpired):
		// A bid extended the auction after this fire was scheduled.
		logger.Debug().Msg("Discarded stale auction expiry")
	case errors.Is(err, ErrAuctionCancelled), errors.Is(err, ErrAuctionNotFound):
		logger.Debug().Err(err).Msg("Skipped expiry for inactive auction")
	case err != nil:
		logger.Error().Err(err).Msg("Failed to settle expired auction")
	case applied:
		logger.Info().
			Str("status", string(s.Status)).
			Str("team_id", s.TeamID).
			Int64("amount", s.Amount).
			Msg("Auction expired")
	}
}

// Get returns an auction by id.
func (e *Engine) Get(ctx context.Context, auctionID string) (Auction, error) {
	return e.repo.GetAuction(ctx, auctionID)
}

// Bids returns the auction's accepted bids in order.
func (e *Engine) Bids(ctx context.Context, auctionID string) ([]Bid, error) {
	if _, err := e.repo.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	return e.ledger.List(ctx, auctionID)
}

// List returns auctions in the given statuses, or all auctions when none are given.
func (e *Engine) List(ctx context.Context, statuses ...Status) ([]Auction, error) {
	return e.repo.ListAuctions(ctx, statuses...)
}

// TeamCap returns the team's current cap position across all open auctions.
func (e *Engine) TeamCap(ctx context.Context, teamID string) (TeamCapState, error) {
	return e.caps.State(ctx, teamID, "")
}
