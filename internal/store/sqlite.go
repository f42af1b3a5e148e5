package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/lox/settlersforbots/internal/game"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var schema string

// SQLite persists logs in a SQLite database. The primary key on
// (game_id, state_index) backs the compare-and-append check.
type SQLite struct {
	db *sql.DB
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isConstraintError(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func encodeEntry(e Entry) (action sql.NullString, state string, err error) {
	if e.Action != nil {
		b, err := json.Marshal(e.Action)
		if err != nil {
			return action, "", fmt.Errorf("encode action: %w", err)
		}
		action = sql.NullString{String: string(b), Valid: true}
	}
	b, err := json.Marshal(e.State)
	if err != nil {
		return action, "", fmt.Errorf("encode state: %w", err)
	}
	return action, string(b), nil
}

func (s *SQLite) Create(ctx context.Context, g Game, initial Entry) error {
	if initial.Index != 0 || initial.State == nil {
		return fmt.Errorf("initial entry must be index 0 with a state")
	}
	seats, err := json.Marshal(g.Seats)
	if err != nil {
		return fmt.Errorf("encode seats: %w", err)
	}
	action, state, err := encodeEntry(initial)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO games (id, seats, latest, winner, created_at, updated_at) VALUES (?, ?, 0, '', ?, ?)`,
		g.ID, string(seats), toMillis(g.CreatedAt), toMillis(g.CreatedAt),
	); err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("game %s: %w", g.ID, ErrExists)
		}
		return fmt.Errorf("insert game: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO game_states (game_id, state_index, action, state, created_at) VALUES (?, 0, ?, ?, ?)`,
		g.ID, action, state, toMillis(initial.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert initial state: %w", err)
	}
	return tx.Commit()
}

func (s *SQLite) Append(ctx context.Context, gameID string, expected int, e Entry) error {
	if e.Index != expected+1 || e.State == nil {
		return fmt.Errorf("entry must be index %d with a state", expected+1)
	}
	action, state, err := encodeEntry(e)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE games SET latest = ?, winner = ?, updated_at = ? WHERE id = ? AND latest = ?`,
		e.Index, string(e.State.Winner), toMillis(e.CreatedAt), gameID, expected,
	)
	if err != nil {
		return fmt.Errorf("advance game: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("advance game: %w", err)
	} else if n == 0 {
		if _, err := s.gameTx(ctx, tx, gameID); err != nil {
			return err
		}
		return fmt.Errorf("game %s: expected index %d is stale: %w", gameID, expected, ErrConflict)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO game_states (game_id, state_index, action, state, created_at) VALUES (?, ?, ?, ?, ?)`,
		gameID, e.Index, action, state, toMillis(e.CreatedAt),
	); err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("game %s index %d: %w", gameID, e.Index, ErrConflict)
		}
		return fmt.Errorf("insert state: %w", err)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e       Entry
		action  sql.NullString
		state   string
		created int64
	)
	if err := row.Scan(&e.Index, &action, &state, &created); err != nil {
		return Entry{}, err
	}
	if action.Valid {
		var a game.Action
		if err := json.Unmarshal([]byte(action.String), &a); err != nil {
			return Entry{}, fmt.Errorf("decode action %d: %w", e.Index, err)
		}
		e.Action = &a
	}
	e.State = &game.State{}
	if err := json.Unmarshal([]byte(state), e.State); err != nil {
		return Entry{}, fmt.Errorf("decode state %d: %w", e.Index, err)
	}
	e.CreatedAt = fromMillis(created)
	return e, nil
}

func (s *SQLite) Read(ctx context.Context, gameID string, index int) (Entry, error) {
	var row *sql.Row
	if index == Latest {
		row = s.db.QueryRowContext(ctx,
			`SELECT state_index, action, state, created_at FROM game_states
			 WHERE game_id = ? ORDER BY state_index DESC LIMIT 1`, gameID)
	} else {
		row = s.db.QueryRowContext(ctx,
			`SELECT state_index, action, state, created_at FROM game_states
			 WHERE game_id = ? AND state_index = ?`, gameID, index)
	}
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("game %s index %d: %w", gameID, index, ErrNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("read state: %w", err)
	}
	return e, nil
}

func (s *SQLite) Entries(ctx context.Context, gameID string, upTo int) ([]Entry, error) {
	g, err := s.Game(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if upTo == Latest {
		upTo = g.Latest
	}
	if upTo < 0 || upTo > g.Latest {
		return nil, fmt.Errorf("game %s index %d: %w", gameID, upTo, ErrNotFound)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT state_index, action, state, created_at FROM game_states
		 WHERE game_id = ? AND state_index <= ? ORDER BY state_index`, gameID, upTo)
	if err != nil {
		return nil, fmt.Errorf("query states: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanGame(row rowScanner) (Game, error) {
	var (
		g                Game
		seats, winner    string
		created, updated int64
	)
	if err := row.Scan(&g.ID, &seats, &g.Latest, &winner, &created, &updated); err != nil {
		return Game{}, err
	}
	if err := json.Unmarshal([]byte(seats), &g.Seats); err != nil {
		return Game{}, fmt.Errorf("decode seats: %w", err)
	}
	g.Winner = game.Color(winner)
	g.CreatedAt = fromMillis(created)
	g.UpdatedAt = fromMillis(updated)
	return g, nil
}

const gameColumns = `id, seats, latest, winner, created_at, updated_at`

func (s *SQLite) Game(ctx context.Context, gameID string) (Game, error) {
	return s.gameTx(ctx, s.db, gameID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLite) gameTx(ctx context.Context, q queryer, gameID string) (Game, error) {
	g, err := scanGame(q.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE id = ?`, gameID))
	if errors.Is(err, sql.ErrNoRows) {
		return Game{}, fmt.Errorf("game %s: %w", gameID, ErrNotFound)
	}
	if err != nil {
		return Game{}, fmt.Errorf("read game: %w", err)
	}
	return g, nil
}

func (s *SQLite) List(ctx context.Context, limit int) ([]Game, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+gameColumns+` FROM games ORDER BY updated_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var out []Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *SQLite) Delete(ctx context.Context, gameID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"game_events", "game_states"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE game_id = ?`, gameID); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM games WHERE id = ?`, gameID)
	if err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("game %s: %w", gameID, ErrNotFound)
	}
	return tx.Commit()
}

func (s *SQLite) AppendEvent(ctx context.Context, ev Event) (Event, error) {
	if _, err := s.Game(ctx, ev.GameID); err != nil {
		return Event{}, err
	}
	var payload sql.NullString
	if len(ev.Payload) > 0 {
		payload = sql.NullString{String: string(ev.Payload), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO game_events (game_id, type, state_index, color, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.GameID, ev.Type, ev.StateIndex, string(ev.Color), payload, toMillis(ev.CreatedAt),
	)
	if err != nil {
		return Event{}, fmt.Errorf("insert event: %w", err)
	}
	if ev.ID, err = res.LastInsertId(); err != nil {
		return Event{}, fmt.Errorf("insert event: %w", err)
	}
	ev.CreatedAt = fromMillis(toMillis(ev.CreatedAt))
	return ev, nil
}

func (s *SQLite) Events(ctx context.Context, gameID string) ([]Event, error) {
	if _, err := s.Game(ctx, gameID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, game_id, type, state_index, color, payload, created_at FROM game_events
		 WHERE game_id = ? ORDER BY id`, gameID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev      Event
			color   string
			payload sql.NullString
			created int64
		)
		if err := rows.Scan(&ev.ID, &ev.GameID, &ev.Type, &ev.StateIndex, &color, &payload, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Color = game.Color(color)
		if payload.Valid {
			ev.Payload = json.RawMessage(payload.String)
		}
		ev.CreatedAt = fromMillis(created)
		out = append(out, ev)
	}
	return out, rows.Err()
}

var _ Store = (*SQLite)(nil)
