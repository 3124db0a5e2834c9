package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codr1/leaguebids/internal/auction"
)

type Player struct {
	ID        string
	Name      string
	Position  string
	TeamID    *string
	Salary    int64
	Active    bool
	CreatedAt time.Time
}

type CreatePlayerParams struct {
	Name     string
	Position string
	TeamID   *string
	Salary   int64
}

// GetTeam returns the team with committed salary summed over its active roster.
func (db *DB) GetTeam(ctx context.Context, teamID string) (auction.Team, error) {
	var (
		t          auction.Team
		restricted bool
	)
	err := db.conn(ctx).QueryRowContext(ctx, `
		SELECT t.id, t.name, t.restricted,
			COALESCE((SELECT SUM(p.salary) FROM players p WHERE p.team_id = t.id AND p.active = 1), 0)
		FROM teams t
		WHERE t.id = ?`,
		teamID,
	).Scan(&t.ID, &t.Name, &restricted, &t.CommittedSalary)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auction.Team{}, auction.ErrTeamNotFound
		}
		return auction.Team{}, fmt.Errorf("get team: %w", err)
	}
	t.Restricted = restricted
	return t, nil
}

func (db *DB) CreateTeam(ctx context.Context, name string) (auction.Team, error) {
	t := auction.Team{ID: uuid.NewString(), Name: name}
	if _, err := db.conn(ctx).ExecContext(ctx, `INSERT INTO teams (id, name) VALUES (?, ?)`, t.ID, t.Name); err != nil {
		return auction.Team{}, fmt.Errorf("insert team: %w", err)
	}
	return t, nil
}

// SetTeamRestricted toggles the administrative restriction that blocks bidding.
func (db *DB) SetTeamRestricted(ctx context.Context, teamID string, restricted bool) error {
	res, err := db.conn(ctx).ExecContext(ctx, `UPDATE teams SET restricted = ? WHERE id = ?`, restricted, teamID)
	if err != nil {
		return fmt.Errorf("update team: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auction.ErrTeamNotFound
	}
	return nil
}

func (db *DB) PlayerIsFreeAgent(ctx context.Context, playerID string) (bool, error) {
	var (
		teamID sql.NullString
		active bool
	)
	err := db.conn(ctx).QueryRowContext(ctx, `SELECT team_id, active FROM players WHERE id = ?`, playerID).Scan(&teamID, &active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, auction.ErrPlayerNotFound
		}
		return false, fmt.Errorf("get player: %w", err)
	}
	return active && !teamID.Valid, nil
}

// AssignPlayer attaches a free agent to the team at the given salary.
func (db *DB) AssignPlayer(ctx context.Context, playerID, teamID string, salary int64) error {
	res, err := db.conn(ctx).ExecContext(ctx, `
		UPDATE players
		SET team_id = ?, salary = ?
		WHERE id = ? AND team_id IS NULL`,
		teamID,
		salary,
		playerID,
	)
	if err != nil {
		return fmt.Errorf("assign player: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("assign player rows: %w", err)
	}
	if n == 0 {
		return auction.ErrPlayerUnavailable
	}
	return nil
}

func (db *DB) CreatePlayer(ctx context.Context, params CreatePlayerParams) (Player, error) {
	p := Player{
		ID:        uuid.NewString(),
		Name:      params.Name,
		Position:  params.Position,
		TeamID:    params.TeamID,
		Salary:    params.Salary,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	_, err := db.conn(ctx).ExecContext(ctx, `
		INSERT INTO players (id, name, position, team_id, salary, active, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)`,
		p.ID, p.Name, p.Position, nullString(p.TeamID), p.Salary, p.CreatedAt,
	)
	if err != nil {
		return Player{}, fmt.Errorf("insert player: %w", err)
	}
	return p, nil
}

func (db *DB) GetPlayer(ctx context.Context, playerID string) (Player, error) {
	var (
		p      Player
		teamID sql.NullString
	)
	err := db.conn(ctx).QueryRowContext(ctx, `
		SELECT id, name, position, team_id, salary, active, created_at
		FROM players WHERE id = ?`,
		playerID,
	).Scan(&p.ID, &p.Name, &p.Position, &teamID, &p.Salary, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Player{}, auction.ErrPlayerNotFound
		}
		return Player{}, fmt.Errorf("get player: %w", err)
	}
	if teamID.Valid {
		id := teamID.String
		p.TeamID = &id
	}
	return p, nil
}
