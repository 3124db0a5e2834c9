package auction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

var testStart = time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)

type engineFixture struct {
	engine *Engine
	repo   *fakeRepo
	clock  *clockwork.FakeClock
	events <-chan Event
}

func newEngineFixture(t *testing.T, mutate ...func(*Rules)) *engineFixture {
	t.Helper()

	rules := DefaultRules()
	for _, m := range mutate {
		m(&rules)
	}

	repo := newFakeRepo()
	repo.addTeam(Team{ID: "team-a", Name: "Anchors"})
	repo.addTeam(Team{ID: "team-b", Name: "Badgers"})
	repo.addFreeAgent("player-1")
	repo.addFreeAgent("player-2")

	clock := clockwork.NewFakeClockAt(testStart)
	bus := NewBus()
	events, unsubscribe := bus.Subscribe(256)
	engine := NewEngine(repo, rules, WithClock(clock), WithPublisher(bus))
	t.Cleanup(func() {
		engine.Stop()
		unsubscribe()
	})

	return &engineFixture{engine: engine, repo: repo, clock: clock, events: events}
}

func (f *engineFixture) open(t *testing.T, playerID string) Auction {
	t.Helper()
	a, err := f.engine.OpenAuction(context.Background(), OpenInput{PlayerID: playerID})
	assert.NoError(t, err)
	return a
}

func (f *engineFixture) bid(t *testing.T, auctionID, teamID string, amount int64) BidResult {
	t.Helper()
	res, err := f.engine.SubmitBid(context.Background(), BidInput{AuctionID: auctionID, TeamID: teamID, Amount: amount})
	assert.NoError(t, err)
	return res
}

// waitForEvent drains events until one of the wanted type for the auction arrives.
func waitForEvent(t *testing.T, events <-chan Event, typ EventType, auctionID string) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == typ && ev.AuctionID == auctionID {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s on %s", typ, auctionID)
			return Event{}
		}
	}
}

func TestSubmitBid_IncrementScenario(t *testing.T) {
	f := newEngineFixture(t)
	a := f.open(t, "player-1")
	check.Equal(t, int64(0), a.CurrentHighBid)

	first := f.bid(t, a.ID, "team-a", 5_000_000)
	check.True(t, first.Accepted)
	check.Equal(t, int64(5_000_000), first.CurrentHighBid)
	check.NotNil(t, first.NewExpiry)
	check.Equal(t, testStart.Add(5*time.Minute), *first.NewExpiry)

	low := f.bid(t, a.ID, "team-b", 6_500_000)
	check.False(t, low.Accepted)
	check.Equal(t, ReasonTooLow, low.Reason)
	check.Equal(t, int64(5_000_000), low.CurrentHighBid)
	check.Equal(t, int64(7_000_000), low.MinimumNextBid)

	ok := f.bid(t, a.ID, "team-b", 7_000_000)
	check.True(t, ok.Accepted)

	got, err := f.engine.Get(context.Background(), a.ID)
	assert.NoError(t, err)
	check.Equal(t, StatusExtended, got.Status)
	check.Equal(t, "team-b", got.Leader())
	check.Equal(t, int64(7_000_000), got.CurrentHighBid)

	bids, err := f.engine.Bids(context.Background(), a.ID)
	assert.NoError(t, err)
	check.Equal(t, 2, len(bids))
}

func TestSubmitBid_CapExceeded(t *testing.T) {
	f := newEngineFixture(t)
	f.repo.addTeam(Team{ID: "team-a", CommittedSalary: 60_000_000})
	a := f.open(t, "player-1")

	res := f.bid(t, a.ID, "team-a", 6_000_000)
	check.False(t, res.Accepted)
	check.Equal(t, ReasonCapExceeded, res.Reason)
	check.Equal(t, int64(2_000_000), res.MinimumNextBid)

	accepted := f.bid(t, a.ID, "team-a", 5_000_000)
	check.True(t, accepted.Accepted)
}

func TestSubmitBid_SelfOutbidIsNotDoubleCounted(t *testing.T) {
	f := newEngineFixture(t)
	f.repo.addTeam(Team{ID: "team-a", CommittedSalary: 50_000_000})
	a := f.open(t, "player-1")

	check.True(t, f.bid(t, a.ID, "team-a", 10_000_000).Accepted)
	// 50M committed + 12M candidate fits; counting the prior 10M lead again would not.
	raised := f.bid(t, a.ID, "team-a", 12_000_000)
	check.True(t, raised.Accepted)
	check.Equal(t, int64(12_000_000), raised.CurrentHighBid)
}

func TestSubmitBid_ExposureOnOtherAuctionsCounts(t *testing.T) {
	f := newEngineFixture(t)
	f.repo.addTeam(Team{ID: "team-a", CommittedSalary: 50_000_000})
	first := f.open(t, "player-1")
	second := f.open(t, "player-2")

	check.True(t, f.bid(t, first.ID, "team-a", 10_000_000).Accepted)

	res := f.bid(t, second.ID, "team-a", 6_000_000)
	check.False(t, res.Accepted)
	check.Equal(t, ReasonCapExceeded, res.Reason)

	capState, err := f.engine.TeamCap(context.Background(), "team-a")
	assert.NoError(t, err)
	check.Equal(t, int64(10_000_000), capState.PendingBidExposure)
	check.Equal(t, int64(5_000_000), capState.Headroom())
}

func TestSubmitBid_Rejections(t *testing.T) {
	f := newEngineFixture(t, func(r *Rules) {
		r.MaxPlayerSalary = 20_000_000
	})
	f.repo.addTeam(Team{ID: "team-r", Restricted: true})
	a := f.open(t, "player-1")

	restricted := f.bid(t, a.ID, "team-r", 5_000_000)
	check.Equal(t, ReasonTeamRestricted, restricted.Reason)

	tooRich := f.bid(t, a.ID, "team-a", 25_000_000)
	check.Equal(t, ReasonSalaryOutOfRange, tooRich.Reason)

	_, err := f.engine.SubmitBid(context.Background(), BidInput{AuctionID: a.ID, TeamID: "team-a", Amount: 0})
	check.True(t, errors.Is(err, ErrInvalidAmount))

	_, err = f.engine.SubmitBid(context.Background(), BidInput{AuctionID: "missing", TeamID: "team-a", Amount: 5_000_000})
	check.True(t, errors.Is(err, ErrAuctionNotFound))

	_, err = f.engine.SubmitBid(context.Background(), BidInput{AuctionID: a.ID, TeamID: "nobody", Amount: 5_000_000})
	check.True(t, errors.Is(err, ErrTeamNotFound))

	rejected := waitForEvent(t, f.events, EventBidRejected, a.ID)
	check.Equal(t, ReasonTeamRestricted, rejected.Reason)
}

func TestTimerExpiry_SettlesToLeader(t *testing.T) {
	f := newEngineFixture(t)
	a := f.open(t, "player-1")

	f.clock.Advance(time.Minute)
	check.True(t, f.bid(t, a.ID, "team-a", 5_000_000).Accepted)

	f.clock.Advance(5 * time.Minute)
	ev := waitForEvent(t, f.events, EventAuctionSettled, a.ID)
	check.Equal(t, "team-a", ev.TeamID)
	check.Equal(t, "player-1", ev.PlayerID)
	check.Equal(t, int64(5_000_000), ev.Amount)

	got, err := f.engine.Get(context.Background(), a.ID)
	assert.NoError(t, err)
	check.Equal(t, StatusSettled, got.Status)
	check.Equal(t, 1, f.repo.assignmentCount())

	late := f.bid(t, a.ID, "team-b", 9_000_000)
	check.Equal(t, ReasonClosed, late.Reason)
}

func TestTimerExpiry_NoBidsCloses(t *testing.T) {
	f := newEngineFixture(t)
	a := f.open(t, "player-1")

	f.clock.Advance(24 * time.Hour)
	waitForEvent(t, f.events, EventAuctionClosed, a.ID)

	got, err := f.engine.Get(context.Background(), a.ID)
	assert.NoError(t, err)
	check.Equal(t, StatusClosed, got.Status)
	check.Equal(t, "", got.Leader())
	check.Equal(t, 0, f.repo.assignmentCount())
}

func TestTimerExpiry_BidResetsClock(t *testing.T) {
	f := newEngineFixture(t, func(r *Rules) {
		r.OpeningWindow = 10 * time.Minute
	})
	a := f.open(t, "player-1")

	f.clock.Advance(9 * time.Minute)
	check.True(t, f.bid(t, a.ID, "team-a", 5_000_000).Accepted)

	// Past the opening expiry but inside the new bid window.
	f.clock.Advance(2 * time.Minute)
	got, err := f.engine.Get(context.Background(), a.ID)
	assert.NoError(t, err)
	check.Equal(t, StatusExtended, got.Status)

	state, expiresAt, ok := f.engine.Timers().State(a.ID)
	check.True(t, ok)
	check.Equal(t, TimerScheduled, state)
	check.Equal(t, testStart.Add(14*time.Minute), expiresAt)

	f.clock.Advance(3 * time.Minute)
	waitForEvent(t, f.events, EventAuctionSettled, a.ID)
}

func TestSettle_Idempotent(t *testing.T) {
	f := newEngineFixture(t)
	a := f.open(t, "player-1")
	check.True(t, f.bid(t, a.ID, "team-b", 8_000_000).Accepted)

	_, err := f.engine.Settle(context.Background(), a.ID)
	check.True(t, errors.Is(err, ErrNotExpired))

	f.engine.Timers().Cancel(a.ID)
	f.clock.Advance(10 * time.Minute)

	first, err := f.engine.Settle(context.Background(), a.ID)
	assert.NoError(t, err)
	second, err := f.engine.Settle(context.Background(), a.ID)
	assert.NoError(t, err)

	check.Equal(t, first, second)
	check.Equal(t, StatusSettled, second.Status)
	check.Equal(t, "team-b", second.TeamID)
	check.Equal(t, 1, f.repo.assignmentCount())

	team, err := f.repo.GetTeam(context.Background(), "team-b")
	assert.NoError(t, err)
	check.Equal(t, int64(8_000_000), team.CommittedSalary)
}

func TestSubmitBid_TooLowAfterSettlement(t *testing.T) {
	f := newEngineFixture(t)
	a := f.open(t, "player-1")
	check.True(t, f.bid(t, a.ID, "team-a", 5_000_000).Accepted)

	f.clock.Advance(6 * time.Minute)
	waitForEvent(t, f.events, EventAuctionSettled, a.ID)
	_, err := f.engine.Settle(context.Background(), a.ID)
	assert.NoError(t, err)

	low := f.bid(t, a.ID, "team-b", 5_500_000)
	check.False(t, low.Accepted)
	check.Equal(t, ReasonTooLow, low.Reason)
	check.Equal(t, int64(5_000_000), low.CurrentHighBid)
	check.Equal(t, int64(7_000_000), low.MinimumNextBid)

	check.Equal(t, ReasonClosed, f.bid(t, a.ID, "team-b", 7_000_000).Reason)
}

func TestCancelAuction(t *testing.T) {
	f := newEngineFixture(t)
	a := f.open(t, "player-1")
	check.True(t, f.bid(t, a.ID, "team-a", 5_000_000).Accepted)

	cancelled, err := f.engine.CancelAuction(context.Background(), a.ID)
	assert.NoError(t, err)
	check.Equal(t, StatusCancelled, cancelled.Status)
	waitForEvent(t, f.events, EventAuctionCancelled, a.ID)

	_, _, scheduled := f.engine.Timers().State(a.ID)
	check.False(t, scheduled)

	again, err := f.engine.CancelAuction(context.Background(), a.ID)
	assert.NoError(t, err)
	check.Equal(t, StatusCancelled, again.Status)

	check.Equal(t, ReasonClosed, f.bid(t, a.ID, "team-b", 9_000_000).Reason)

	f.clock.Advance(time.Hour)
	_, err = f.engine.Settle(context.Background(), a.ID)
	check.True(t, errors.Is(err, ErrAuctionCancelled))
	check.Equal(t, 0, f.repo.assignmentCount())
}

func TestOpenAuction_Preconditions(t *testing.T) {
	f := newEngineFixture(t)
	f.open(t, "player-1")

	_, err := f.engine.OpenAuction(context.Background(), OpenInput{PlayerID: "player-1"})
	check.True(t, errors.Is(err, ErrAuctionExists))

	_, err = f.engine.OpenAuction(context.Background(), OpenInput{PlayerID: "unknown"})
	check.True(t, errors.Is(err, ErrPlayerNotFound))

	f.repo.mu.Lock()
	f.repo.players["rostered"] = "team-a"
	f.repo.mu.Unlock()
	_, err = f.engine.OpenAuction(context.Background(), OpenInput{PlayerID: "rostered"})
	check.True(t, errors.Is(err, ErrPlayerUnavailable))

	a, err := f.engine.OpenAuction(context.Background(), OpenInput{PlayerID: "player-2", Window: time.Hour})
	assert.NoError(t, err)
	check.Equal(t, testStart.Add(time.Hour), a.ExpiresAt)
	check.Equal(t, int64(2_000_000), a.MinIncrement)
}

func TestResetTimersAndSweep(t *testing.T) {
	f := newEngineFixture(t)
	a := f.open(t, "player-1")
	b := f.open(t, "player-2")
	check.True(t, f.bid(t, a.ID, "team-a", 5_000_000).Accepted)

	n, err := f.engine.ResetTimers(context.Background(), 10*time.Hour)
	assert.NoError(t, err)
	check.Equal(t, 2, n)

	got, err := f.engine.Get(context.Background(), b.ID)
	assert.NoError(t, err)
	check.Equal(t, testStart.Add(10*time.Hour), got.ExpiresAt)

	_, err = f.engine.ResetTimers(context.Background(), 0)
	check.True(t, errors.Is(err, ErrInvalidWindow))

	// Sweep settles without relying on the in-process timers.
	f.engine.Timers().Stop()
	f.clock.Advance(11 * time.Hour)
	settled, err := f.engine.SweepExpired(context.Background())
	assert.NoError(t, err)
	check.Equal(t, 2, len(settled))

	again, err := f.engine.SweepExpired(context.Background())
	assert.NoError(t, err)
	check.Equal(t, 0, len(again))
}

func TestSubmitBid_ConcurrentSameAuction(t *testing.T) {
	f := newEngineFixture(t, func(r *Rules) {
		r.MaxSalaryCap = 1_000_000_000
		r.MaxPlayerSalary = 0
	})
	for _, id := range []string{"team-c", "team-d", "team-e", "team-f"} {
		f.repo.addTeam(Team{ID: id})
	}
	a := f.open(t, "player-1")

	teams := []string{"team-a", "team-b", "team-c", "team-d", "team-e", "team-f"}
	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			amount := int64(10_000_000 + (i%6)*500_000)
			_, err := f.engine.SubmitBid(context.Background(), BidInput{
				AuctionID: a.ID,
				TeamID:    teams[i%len(teams)],
				Amount:    amount,
			})
			check.NoError(t, err)
		}(i)
	}
	wg.Wait()

	bids, err := f.engine.Bids(context.Background(), a.ID)
	assert.NoError(t, err)
	check.True(t, len(bids) >= 1)
	for i := 1; i < len(bids); i++ {
		check.True(t, bids[i].Amount >= bids[i-1].Amount+2_000_000)
	}

	got, err := f.engine.Get(context.Background(), a.ID)
	assert.NoError(t, err)
	last := bids[len(bids)-1]
	check.Equal(t, last.Amount, got.CurrentHighBid)
	check.Equal(t, last.TeamID, got.Leader())
}

func TestRestore_SchedulesOpenAuctions(t *testing.T) {
	f := newEngineFixture(t)
	a := f.open(t, "player-1")
	f.engine.Timers().Cancel(a.ID)

	n, err := f.engine.Restore(context.Background())
	assert.NoError(t, err)
	check.Equal(t, 1, n)

	_, expiresAt, ok := f.engine.Timers().State(a.ID)
	check.True(t, ok)
	check.Equal(t, a.ExpiresAt, expiresAt)
}
