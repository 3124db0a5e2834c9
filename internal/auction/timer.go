package auction

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type TimerState string

const (
	TimerScheduled TimerState = "scheduled"
	TimerFired     TimerState = "fired"
	TimerConsumed  TimerState = "consumed"
)

// Fire identifies one expiry notification. Generation distinguishes it from
// schedules that superseded it.
type Fire struct {
	AuctionID  string
	ExpiresAt  time.Time
	Generation uint64
}

type timerEntry struct {
	gen       uint64
	expiresAt time.Time
	state     TimerState
	timer     clockwork.Timer
}

// TimerService tracks one pending expiry per auction and fires each schedule at
// most once. Rescheduling an auction invalidates its previous schedule.
type TimerService struct {
	clock  clockwork.Clock
	onFire func(Fire)

	mu      sync.Mutex
	entries map[string]*timerEntry
	nextGen uint64
	stopped bool
}

func NewTimerService(clock clockwork.Clock, onFire func(Fire)) *TimerService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TimerService{
		clock:   clock,
		onFire:  onFire,
		entries: make(map[string]*timerEntry),
	}
}

// Schedule sets the auction's fire time, superseding any earlier schedule.
// An expiry at or before now fires immediately.
func (s *TimerService) Schedule(auctionID string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	if existing, ok := s.entries[auctionID]; ok && existing.timer != nil {
		existing.timer.Stop()
	}
	s.nextGen++
	gen := s.nextGen
	entry := &timerEntry{gen: gen, expiresAt: expiresAt, state: TimerScheduled}
	s.entries[auctionID] = entry

	d := expiresAt.Sub(s.clock.Now())
	if d <= 0 {
		go s.fire(auctionID, gen)
		return
	}
	entry.timer = s.clock.AfterFunc(d, func() { go s.fire(auctionID, gen) })
}

// Cancel removes any pending schedule for the auction.
func (s *TimerService) Cancel(auctionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[auctionID]; ok {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(s.entries, auctionID)
	}
}

// Consume marks a fire as handled. It is a no-op if the auction has been
// rescheduled since the fire.
func (s *TimerService) Consume(f Fire) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[f.AuctionID]
	if !ok || entry.gen != f.Generation || entry.state != TimerFired {
		return
	}
	entry.state = TimerConsumed
	delete(s.entries, f.AuctionID)
}

// State returns the current schedule for an auction, if any.
func (s *TimerService) State(auctionID string) (TimerState, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[auctionID]
	if !ok {
		return "", time.Time{}, false
	}
	return entry.state, entry.expiresAt, true
}

// Pending returns the number of tracked auctions.
func (s *TimerService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop cancels every schedule and refuses new ones.
func (s *TimerService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, entry := range s.entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(s.entries, id)
	}
}

func (s *TimerService) fire(auctionID string, gen uint64) {
	s.mu.Lock()
	entry, ok := s.entries[auctionID]
	if !ok || entry.gen != gen || entry.state != TimerScheduled || s.stopped {
		s.mu.Unlock()
		return
	}
	entry.state = TimerFired
	f := Fire{AuctionID: auctionID, ExpiresAt: entry.expiresAt, Generation: gen}
	s.mu.Unlock()

	if s.onFire != nil {
		s.onFire(f)
	}
}
