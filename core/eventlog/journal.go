package eventlog

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"workescrow/core/events"
	"workescrow/core/types"
)

const defaultListLimit = 100

// Journal persists committed events to SQLite so they can be replayed after a
// restart. It implements events.Emitter.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Record is one journaled event.
type Record struct {
	Sequence  int64        `json:"sequence"`
	Event     *types.Event `json:"event"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Payer *[20]byte
	Payee *[20]byte
	After int64
	Limit int
}

// Open opens (or creates) the journal at path.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection serialises writers and keeps ":memory:" journals
	// on one database.
	db.SetMaxOpenConns(1)
	j := &Journal{db: db, logger: logger, now: func() time.Time { return time.Now().UTC() }}
	if err := j.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS events (
            sequence INTEGER PRIMARY KEY AUTOINCREMENT,
            type TEXT NOT NULL,
            payer TEXT,
            payee TEXT,
            payload TEXT NOT NULL,
            created_at INTEGER NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS events_pair ON events(payer, payee, sequence);`,
	}
	for _, stmt := range schema {
		if _, err := j.db.Exec(stmt); err != nil {
			return fmt.Errorf("eventlog: init schema: %w", err)
		}
	}
	return nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Emit implements events.Emitter. Failures are logged; the state change the
// event describes has already committed.
func (j *Journal) Emit(evt events.Event) {
	body := events.Body(evt)
	if body == nil {
		return
	}
	if _, err := j.Append(context.Background(), body); err != nil {
		j.logger.Error("failed to journal event", slog.String("type", body.Type), slog.String("error", err.Error()))
	}
}

// Append stores evt and returns its sequence number.
func (j *Journal) Append(ctx context.Context, evt *types.Event) (int64, error) {
	payload, err := json.Marshal(evt.Attributes)
	if err != nil {
		return 0, err
	}
	const stmt = `INSERT INTO events(type, payer, payee, payload, created_at) VALUES (?, ?, ?, ?, ?)`
	res, err := j.db.ExecContext(ctx, stmt, evt.Type, evt.Attributes["payer"], evt.Attributes["payee"], string(payload), j.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("eventlog: append: %w", err)
	}
	return res.LastInsertId()
}

// List returns journaled events in sequence order.
func (j *Journal) List(ctx context.Context, f Filter) ([]Record, error) {
	limit := f.Limit
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	query := `SELECT sequence, type, payload, created_at FROM events WHERE sequence > ?`
	args := []any{f.After}
	if f.Payer != nil {
		query += ` AND payer = ?`
		args = append(args, hex.EncodeToString(f.Payer[:]))
	}
	if f.Payee != nil {
		query += ` AND payee = ?`
		args = append(args, hex.EncodeToString(f.Payee[:]))
	}
	query += ` ORDER BY sequence ASC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("eventlog: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec       Record
			evtType   string
			payload   string
			createdMs int64
		)
		if err := rows.Scan(&rec.Sequence, &evtType, &payload, &createdMs); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.UnixMilli(createdMs).UTC()
		attrs := make(map[string]string)
		if err := json.Unmarshal([]byte(payload), &attrs); err != nil {
			return nil, fmt.Errorf("eventlog: decode event %d: %w", rec.Sequence, err)
		}
		rec.Event = &types.Event{Type: evtType, Attributes: attrs}
		out = append(out, rec)
	}
	return out, rows.Err()
}
