package email

import (
	"fmt"
	"strings"
	"time"

	"github.com/codr1/leaguebids/internal/auction"
)

type Message struct {
	Subject string
	Body    string
}

type OutbidDetails struct {
	PlayerName     string
	NewHighBid     int64
	MinimumNextBid int64
	ExpiresAt      *time.Time
	AuctionURL     string
}

type WonDetails struct {
	PlayerName string
	TeamName   string
	Amount     int64
	SettledAt  time.Time
}

func playerLabel(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "a free agent"
	}
	return name
}

func BuildOutbidEmail(details OutbidDetails) Message {
	player := playerLabel(details.PlayerName)
	lines := []string{
		fmt.Sprintf("Your team has been outbid for %s.", player),
		"",
		fmt.Sprintf("New high bid: %s", auction.FormatMoney(details.NewHighBid)),
		fmt.Sprintf("Minimum next bid: %s", auction.FormatMoney(details.MinimumNextBid)),
	}
	if details.ExpiresAt != nil {
		lines = append(lines, fmt.Sprintf("Auction closes: %s", details.ExpiresAt.UTC().Format("Mon Jan 2, 3:04 PM MST")))
	}
	if url := strings.TrimSpace(details.AuctionURL); url != "" {
		lines = append(lines, "", url)
	}

	return Message{
		Subject: fmt.Sprintf("Outbid: %s", player),
		Body:    strings.Join(lines, "\n"),
	}
}

func BuildWonEmail(details WonDetails) Message {
	player := playerLabel(details.PlayerName)
	team := strings.TrimSpace(details.TeamName)
	if team == "" {
		team = "Your team"
	}
	lines := []string{
		fmt.Sprintf("%s won the auction for %s.", team, player),
		"",
		fmt.Sprintf("Salary: %s", auction.FormatMoney(details.Amount)),
		fmt.Sprintf("Settled: %s", details.SettledAt.UTC().Format("Mon Jan 2, 3:04 PM MST")),
	}
	return Message{
		Subject: fmt.Sprintf("Signed: %s", player),
		Body:    strings.Join(lines, "\n"),
	}
}
