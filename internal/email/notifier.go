package email

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/leaguebids/internal/auction"
)

const notificationEmailTimeout = 10 * time.Second

// Contacts resolves who to notify and how to name things in messages.
type Contacts interface {
	TeamManagerEmails(ctx context.Context, teamID string) ([]string, error)
	PlayerName(ctx context.Context, playerID string) string
}

// Notifier turns auction events into outbid and signing emails.
type Notifier struct {
	sender   EmailSender
	contacts Contacts
	baseURL  string
	logger   zerolog.Logger
	wg       sync.WaitGroup
}

func NewNotifier(sender EmailSender, contacts Contacts, baseURL string) *Notifier {
	return &Notifier{
		sender:   sender,
		contacts: contacts,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   log.With().Str("component", "email_notifier").Logger(),
	}
}

// Run consumes events until ctx is cancelled or the channel closes, then
// waits for in-flight deliveries.
func (n *Notifier) Run(ctx context.Context, events <-chan auction.Event) {
	defer n.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			n.Handle(ctx, ev)
		}
	}
}

func (n *Notifier) Handle(ctx context.Context, ev auction.Event) {
	switch ev.Type {
	case auction.EventBidAccepted:
		if ev.PreviousTeamID == "" || ev.PreviousTeamID == ev.TeamID {
			return
		}
		msg := BuildOutbidEmail(OutbidDetails{
			PlayerName:     n.contacts.PlayerName(ctx, ev.PlayerID),
			NewHighBid:     ev.Amount,
			MinimumNextBid: ev.MinimumNextBid,
			ExpiresAt:      ev.ExpiresAt,
			AuctionURL:     n.auctionURL(ev.AuctionID),
		})
		n.sendToTeam(ctx, ev.PreviousTeamID, ev.AuctionID, msg)
	case auction.EventAuctionSettled:
		if ev.TeamID == "" {
			return
		}
		msg := BuildWonEmail(WonDetails{
			PlayerName: n.contacts.PlayerName(ctx, ev.PlayerID),
			Amount:     ev.Amount,
			SettledAt:  ev.At,
		})
		n.sendToTeam(ctx, ev.TeamID, ev.AuctionID, msg)
	}
}

func (n *Notifier) sendToTeam(ctx context.Context, teamID, auctionID string, msg Message) {
	recipients, err := n.contacts.TeamManagerEmails(ctx, teamID)
	if err != nil {
		n.logger.Error().Err(err).Str("team_id", teamID).Msg("Failed to load team managers")
		return
	}
	for _, recipient := range recipients {
		recipient = strings.TrimSpace(recipient)
		if recipient == "" {
			continue
		}
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			sendCtx, cancel := n.sendContext(ctx)
			defer cancel()
			if err := n.sender.Send(sendCtx, recipient, msg.Subject, msg.Body); err != nil {
				n.logger.Error().
					Err(err).
					Str("team_id", teamID).
					Str("auction_id", auctionID).
					Msg("Failed to send notification email")
			}
		}()
	}
}

func (n *Notifier) auctionURL(auctionID string) string {
	if n.baseURL == "" {
		return ""
	}
	return n.baseURL + "/auctions/" + auctionID
}

// Wait blocks until every in-flight delivery has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// sendContext outlives the event loop's context so shutdown does not abort a
// delivery already in flight; the timeout still bounds it.
func (n *Notifier) sendContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx := n.logger.WithContext(context.WithoutCancel(parent))
	return context.WithTimeout(ctx, notificationEmailTimeout)
}
