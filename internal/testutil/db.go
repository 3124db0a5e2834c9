package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/codr1/leaguebids/internal/auction"
	"github.com/codr1/leaguebids/internal/db"
)

// NewTestDB creates a temporary SQLite database with migrations applied.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath)
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	return database
}

// SeedTeam inserts a team with an empty roster.
func SeedTeam(t *testing.T, database *db.DB, name string) auction.Team {
	t.Helper()

	team, err := database.CreateTeam(context.Background(), name)
	if err != nil {
		t.Fatalf("seed team %q: %v", name, err)
	}
	return team
}

// SeedFreeAgent inserts an active, unrostered player.
func SeedFreeAgent(t *testing.T, database *db.DB, name, position string) db.Player {
	t.Helper()

	player, err := database.CreatePlayer(context.Background(), db.CreatePlayerParams{Name: name, Position: position})
	if err != nil {
		t.Fatalf("seed free agent %q: %v", name, err)
	}
	return player
}

// SeedRosteredPlayer inserts a player already signed to teamID, adding salary
// to the team's committed total.
func SeedRosteredPlayer(t *testing.T, database *db.DB, teamID, name string, salary int64) db.Player {
	t.Helper()

	player, err := database.CreatePlayer(context.Background(), db.CreatePlayerParams{
		Name:   name,
		TeamID: &teamID,
		Salary: salary,
	})
	if err != nil {
		t.Fatalf("seed rostered player %q: %v", name, err)
	}
	return player
}
