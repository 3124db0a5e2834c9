package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/leaguebids/internal/auction"
)

const (
	AuctionSweepJobName = "auction_expiry_sweep"
	TokenPurgeJobName   = "session_token_purge"

	sweepJobTimeout = 2 * time.Minute
)

// Sweeper settles auctions whose timers were missed.
type Sweeper interface {
	SweepExpired(ctx context.Context) ([]auction.Settlement, error)
}

// Purger evicts expired entries from a token store.
type Purger interface {
	Purge() int
}

// RegisterAuctionSweepJob settles expired auctions on a schedule. In-process
// timers normally settle on time; the sweep covers fires lost to restarts or
// storage errors.
func RegisterAuctionSweepJob(s *Service, sweeper Sweeper, cronExpr string) error {
	if sweeper == nil {
		return fmt.Errorf("auction sweep job requires an engine")
	}

	jobLogger := log.With().
		Str("component", "auction_sweep_job").
		Str("job_name", AuctionSweepJobName).
		Str("cron", cronExpr).
		Logger()

	_, err := s.AddJob(AuctionSweepJobName, cronExpr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepJobTimeout)
		defer cancel()
		ctx = jobLogger.WithContext(ctx)

		settled, err := sweeper.SweepExpired(ctx)
		if err != nil {
			jobLogger.Error().Err(err).Int("settled", len(settled)).Msg("Auction sweep finished with errors")
			return
		}
		if len(settled) > 0 {
			jobLogger.Info().Int("settled", len(settled)).Msg("Auction sweep settled expired auctions")
		}
	})
	return err
}

// RegisterTokenPurgeJob evicts expired session tokens on a schedule.
func RegisterTokenPurgeJob(s *Service, purger Purger, cronExpr string) error {
	if purger == nil {
		return fmt.Errorf("token purge job requires a store")
	}

	jobLogger := log.With().
		Str("component", "token_purge_job").
		Str("job_name", TokenPurgeJobName).
		Logger()

	_, err := s.AddJob(TokenPurgeJobName, cronExpr, func() {
		if removed := purger.Purge(); removed > 0 {
			jobLogger.Debug().Int("removed", removed).Msg("Expired session tokens purged")
		}
	})
	return err
}
