package scum

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/XenonAtom/Dom6SaveScummer/internal/backup"
)

// SQL statements for the journal.
const (
	sqlUpsertSnapshot = `INSERT INTO snapshots
		(id, game, number, turn_file, source_mtime, files, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(game, number) DO UPDATE SET
		 turn_file = excluded.turn_file,
		 source_mtime = excluded.source_mtime,
		 files = excluded.files,
		 created_at = excluded.created_at`

	sqlInsertEvent = `INSERT INTO game_events (id, game, kind, detail, at)
		VALUES (?, ?, ?, ?, ?)`

	sqlDeleteSnapshots = `DELETE FROM snapshots WHERE game = ?`

	sqlListSnapshots = `SELECT id, game, number, turn_file, source_mtime, files, created_at
		FROM snapshots WHERE game = ? ORDER BY number`

	sqlListEvents = `SELECT id, game, kind, detail, at
		FROM game_events WHERE (? = '' OR game = ?) ORDER BY at DESC, rowid DESC LIMIT ?`
)

// SnapshotRecord is a journaled snapshot.
type SnapshotRecord struct {
	ID          string    `json:"id"`
	Game        string    `json:"game"`
	Number      int       `json:"number"`
	TurnFile    string    `json:"turn_file"`
	SourceMTime time.Time `json:"source_mtime"`
	Files       int       `json:"files"`
	CreatedAt   time.Time `json:"created_at"`
}

// GameEvent is a journaled lifecycle event.
type GameEvent struct {
	ID     string    `json:"id"`
	Game   string    `json:"game"`
	Kind   EventKind `json:"kind"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// Journal is an append-mostly SQLite record of snapshots and game
// lifecycle events. It implements Recorder. The backup tree on disk remains
// the source of truth; the journal only answers history queries.
type Journal struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests
}

// OpenJournal opens (creating if needed) the journal database at dbPath and
// applies migrations.
func OpenJournal(ctx context.Context, dbPath string, logger *slog.Logger) (*Journal, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"+
			"&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("scum: opening journal %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("journal opened", slog.String("db_path", dbPath))

	return &Journal{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordSnapshot stores a snapshot. Re-recording a number replaces the row.
func (j *Journal) RecordSnapshot(ctx context.Context, snap *backup.Snapshot) error {
	_, err := j.db.ExecContext(ctx, sqlUpsertSnapshot,
		uuid.New().String(),
		snap.Game,
		snap.Number,
		snap.Turn.Name(),
		snap.TurnModTime.UnixNano(),
		len(snap.Files),
		j.nowFunc().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("scum: journaling snapshot %d of %s: %w", snap.Number, snap.Game, err)
	}

	return nil
}

// RecordGameEvent appends a lifecycle event.
func (j *Journal) RecordGameEvent(ctx context.Context, game string, kind EventKind, detail string) error {
	_, err := j.db.ExecContext(ctx, sqlInsertEvent,
		uuid.New().String(), game, string(kind), detail, j.nowFunc().UnixNano())
	if err != nil {
		return fmt.Errorf("scum: journaling %s event for %s: %w", kind, game, err)
	}

	return nil
}

// ForgetGame drops the snapshot rows of a game whose backups were deleted.
// Its events are kept.
func (j *Journal) ForgetGame(ctx context.Context, game string) error {
	if _, err := j.db.ExecContext(ctx, sqlDeleteSnapshots, game); err != nil {
		return fmt.Errorf("scum: forgetting %s: %w", game, err)
	}

	return nil
}

// Snapshots returns the journaled snapshots of a game, ascending by number.
func (j *Journal) Snapshots(ctx context.Context, game string) ([]SnapshotRecord, error) {
	rows, err := j.db.QueryContext(ctx, sqlListSnapshots, game)
	if err != nil {
		return nil, fmt.Errorf("scum: listing snapshots of %s: %w", game, err)
	}
	defer rows.Close()

	var out []SnapshotRecord

	for rows.Next() {
		var (
			rec       SnapshotRecord
			mtime     int64
			createdAt int64
		)

		if err := rows.Scan(&rec.ID, &rec.Game, &rec.Number, &rec.TurnFile, &mtime, &rec.Files, &createdAt); err != nil {
			return nil, fmt.Errorf("scum: scanning snapshot row: %w", err)
		}

		rec.SourceMTime = time.Unix(0, mtime)
		rec.CreatedAt = time.Unix(0, createdAt)
		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scum: iterating snapshot rows: %w", err)
	}

	return out, nil
}

// Events returns up to limit lifecycle events, newest first. An empty game
// returns events of every game.
func (j *Journal) Events(ctx context.Context, game string, limit int) ([]GameEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := j.db.QueryContext(ctx, sqlListEvents, game, game, limit)
	if err != nil {
		return nil, fmt.Errorf("scum: listing events: %w", err)
	}
	defer rows.Close()

	var out []GameEvent

	for rows.Next() {
		var (
			ev   GameEvent
			kind string
			at   int64
		)

		if err := rows.Scan(&ev.ID, &ev.Game, &kind, &ev.Detail, &at); err != nil {
			return nil, fmt.Errorf("scum: scanning event row: %w", err)
		}

		ev.Kind = EventKind(kind)
		ev.At = time.Unix(0, at)
		out = append(out, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scum: iterating event rows: %w", err)
	}

	return out, nil
}
