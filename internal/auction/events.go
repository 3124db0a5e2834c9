package auction

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventAuctionOpened    EventType = "auction_opened"
	EventBidAccepted      EventType = "bid_accepted"
	EventBidRejected      EventType = "bid_rejected"
	EventAuctionSettled   EventType = "auction_settled"
	EventAuctionClosed    EventType = "auction_closed"
	EventAuctionCancelled EventType = "auction_cancelled"
)

// Event is emitted by the engine for downstream consumers. Fields irrelevant to
// the event type are zero.
type Event struct {
	Type           EventType    `json:"type"`
	AuctionID      string       `json:"auction_id"`
	PlayerID       string       `json:"player_id,omitempty"`
	TeamID         string       `json:"team_id,omitempty"`
	PreviousTeamID string       `json:"previous_team_id,omitempty"`
	Amount         int64        `json:"amount,omitempty"`
	MinimumNextBid int64        `json:"minimum_next_bid,omitempty"`
	ExpiresAt      *time.Time   `json:"expires_at,omitempty"`
	Reason         RejectReason `json:"reason,omitempty"`
	At             time.Time    `json:"at"`
}

type Publisher interface {
	Publish(ev Event)
}

// Bus fans events out to subscribers without blocking the publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a buffered subscriber. The returned function unsubscribes
// and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			log.Warn().
				Int("subscriber_id", id).
				Str("event_type", string(ev.Type)).
				Str("auction_id", ev.AuctionID).
				Msg("Dropped auction event for slow subscriber")
		}
	}
}

func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}
