package auction

import (
	"context"
	"sort"
	"sync"
)

type assignment struct {
	PlayerID string
	TeamID   string
	Salary   int64
}

type fakeRepo struct {
	mu       sync.Mutex
	auctions map[string]Auction
	bids     map[string][]Bid
	teams    map[string]Team
	// players maps player id to owning team id; "" is a free agent.
	players     map[string]string
	assignments []assignment
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		auctions: make(map[string]Auction),
		bids:     make(map[string][]Bid),
		teams:    make(map[string]Team),
		players:  make(map[string]string),
	}
}

func (r *fakeRepo) addTeam(t Team) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teams[t.ID] = t
}

func (r *fakeRepo) addFreeAgent(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.players[playerID] = ""
}

func (r *fakeRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (r *fakeRepo) CreateAuction(_ context.Context, a Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auctions[a.ID] = a
	return nil
}

func (r *fakeRepo) GetAuction(_ context.Context, id string) (Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.auctions[id]
	if !ok {
		return Auction{}, ErrAuctionNotFound
	}
	return a, nil
}

func (r *fakeRepo) UpdateAuction(_ context.Context, a Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.auctions[a.ID]; !ok {
		return ErrAuctionNotFound
	}
	r.auctions[a.ID] = a
	return nil
}

func (r *fakeRepo) ListAuctions(_ context.Context, statuses ...Status) ([]Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Auction
	for _, a := range r.auctions {
		if len(statuses) == 0 || containsStatus(statuses, a.Status) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeRepo) ListLeadingAuctions(_ context.Context, teamID string) ([]Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Auction
	for _, a := range r.auctions {
		if a.Status.Biddable() && a.Leader() == teamID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeRepo) ActiveAuctionForPlayer(_ context.Context, playerID string) (*Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.auctions {
		if a.PlayerID == playerID && a.Status.Biddable() {
			found := a
			return &found, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) InsertBid(_ context.Context, b Bid) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bids[b.AuctionID] = append(r.bids[b.AuctionID], b)
	return nil
}

func (r *fakeRepo) HighestBid(_ context.Context, auctionID string) (*Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bids := r.bids[auctionID]
	if len(bids) == 0 {
		return nil, nil
	}
	last := bids[len(bids)-1]
	return &last, nil
}

func (r *fakeRepo) ListBids(_ context.Context, auctionID string) ([]Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Bid(nil), r.bids[auctionID]...), nil
}

func (r *fakeRepo) GetTeam(_ context.Context, teamID string) (Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.teams[teamID]
	if !ok {
		return Team{}, ErrTeamNotFound
	}
	return t, nil
}

func (r *fakeRepo) PlayerIsFreeAgent(_ context.Context, playerID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	teamID, ok := r.players[playerID]
	if !ok {
		return false, ErrPlayerNotFound
	}
	return teamID == "", nil
}

func (r *fakeRepo) AssignPlayer(_ context.Context, playerID, teamID string, salary int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.players[playerID] = teamID
	t := r.teams[teamID]
	t.CommittedSalary += salary
	r.teams[teamID] = t
	r.assignments = append(r.assignments, assignment{PlayerID: playerID, TeamID: teamID, Salary: salary})
	return nil
}

func (r *fakeRepo) assignmentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.assignments)
}

func containsStatus(statuses []Status, s Status) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}
