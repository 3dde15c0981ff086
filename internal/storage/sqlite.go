package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/maaaruch/tg-lucky-bot/internal/domain"
)

//go:embed schema.sql
var embeddedSchema embed.FS

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InitSchema() error {
	if _, err := s.db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return err
	}

	b, err := embeddedSchema.ReadFile("schema.sql")
	if err != nil {
		return err
	}

	schema := strings.TrimSpace(string(b))
	_, err = s.db.Exec(schema)
	return err
}

// Open reserves a connection for the scope until the book is closed.
func (s *Store) Open(ctx context.Context, scope string) (Book, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &sqliteBook{conn: conn, scope: scope}, nil
}

type sqliteBook struct {
	conn  *sql.Conn
	scope string
}

func (b *sqliteBook) Close() error {
	return b.conn.Close()
}

// ---------- Participants ----------

func (b *sqliteBook) Participant(ctx context.Context, id int64) (*domain.Participant, error) {
	row := b.conn.QueryRowContext(ctx, `SELECT user_id, name, points FROM participants WHERE scope = ? AND user_id = ?`, b.scope, id)
	var p domain.Participant
	if err := row.Scan(&p.ID, &p.Name, &p.Points); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (b *sqliteBook) AddParticipant(ctx context.Context, p domain.Participant) error {
	_, err := b.conn.ExecContext(ctx, `INSERT INTO participants(scope, user_id, name, points) VALUES (?, ?, ?, ?)`, b.scope, p.ID, p.Name, p.Points)
	if isDuplicate(err) {
		return ErrExists
	}
	return err
}

func (b *sqliteBook) Participants(ctx context.Context) ([]domain.Participant, error) {
	rows, err := b.conn.QueryContext(ctx, `
SELECT user_id, name, points
FROM participants
WHERE scope = ?
ORDER BY points DESC, rowid
`, b.scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.ID, &p.Name, &p.Points); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return participants, nil
}

// ---------- Results ----------

func (b *sqliteBook) Result(ctx context.Context, date string, kind domain.ResultKind) (*domain.DrawResult, error) {
	row := b.conn.QueryRowContext(ctx, `
SELECT date, kind, winner_id, winner_name, winner_points, created_at
FROM results
WHERE scope = ? AND date = ? AND kind = ?
`, b.scope, date, string(kind))

	var (
		r       domain.DrawResult
		rawKind string
	)
	if err := row.Scan(&r.Date, &rawKind, &r.Winner.ID, &r.Winner.Name, &r.Winner.Points, &r.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	r.Kind = domain.ResultKind(rawKind)
	return &r, nil
}

func (b *sqliteBook) RecordWin(ctx context.Context, r domain.DrawResult) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	tx, err := b.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO results(scope, date, kind, winner_id, winner_name, winner_points, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, b.scope, r.Date, string(r.Kind), r.Winner.ID, r.Winner.Name, r.Winner.Points, r.CreatedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrExists
		}
		return err
	}

	res, err := tx.ExecContext(ctx, `UPDATE participants SET points = points + 1 WHERE scope = ? AND user_id = ?`, b.scope, r.Winner.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

func isDuplicate(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
}
