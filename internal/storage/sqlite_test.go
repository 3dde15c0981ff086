package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/maaaruch/tg-lucky-bot/internal/domain"
)

func newTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	// one connection, as in production: a book holds it until Close
	db.SetMaxOpenConns(1)

	s := New(db)
	if err := s.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return s, db
}

func openBook(t *testing.T, s *Store, scope string) Book {
	t.Helper()
	b, err := s.Open(context.Background(), scope)
	if err != nil {
		t.Fatalf("Open(%s): %v", scope, err)
	}
	return b
}

func mustCount(t *testing.T, db *sql.DB, q string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := db.QueryRow(q, args...).Scan(&n); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	return n
}

func TestStore_AddParticipant_DuplicateInScope(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	b := openBook(t, s, "chat-1")
	defer b.Close()

	if err := b.AddParticipant(ctx, domain.Participant{ID: 7, Name: "alice"}); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}
	err := b.AddParticipant(ctx, domain.Participant{ID: 7, Name: "alice again"})
	if err != ErrExists {
		t.Fatalf("expected ErrExists, got: %v", err)
	}

	p, err := b.Participant(ctx, 7)
	if err != nil {
		t.Fatalf("Participant: %v", err)
	}
	if p.Name != "alice" || p.Points != 0 {
		t.Fatalf("unexpected participant: %+v", p)
	}

	if _, err := b.Participant(ctx, 8); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}

func TestStore_ScopesAreIsolated(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	a := openBook(t, s, "chat-a")
	if err := a.AddParticipant(ctx, domain.Participant{ID: 1, Name: "one"}); err != nil {
		t.Fatalf("AddParticipant(a): %v", err)
	}
	_ = a.Close()

	b := openBook(t, s, "chat-b")
	// same user id is a different participant in another scope
	if err := b.AddParticipant(ctx, domain.Participant{ID: 1, Name: "one"}); err != nil {
		t.Fatalf("AddParticipant(b): %v", err)
	}
	list, err := b.Participants(ctx)
	if err != nil {
		t.Fatalf("Participants: %v", err)
	}
	_ = b.Close()

	if len(list) != 1 {
		t.Fatalf("expected 1 participant in chat-b, got %d", len(list))
	}
	if got := mustCount(t, db, `SELECT COUNT(*) FROM participants`); got != 2 {
		t.Fatalf("expected 2 participant rows, got %d", got)
	}
}

func TestStore_Participants_OrderedByPoints(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	b := openBook(t, s, "chat")
	defer b.Close()

	for _, p := range []domain.Participant{
		{ID: 1, Name: "c", Points: 3},
		{ID: 2, Name: "a", Points: 10},
		{ID: 3, Name: "b", Points: 10},
	} {
		if err := b.AddParticipant(ctx, p); err != nil {
			t.Fatalf("AddParticipant(%d): %v", p.ID, err)
		}
	}

	list, err := b.Participants(ctx)
	if err != nil {
		t.Fatalf("Participants: %v", err)
	}
	want := []int64{2, 3, 1}
	if len(list) != len(want) {
		t.Fatalf("len: got=%d want=%d", len(list), len(want))
	}
	for i := range want {
		if list[i].ID != want[i] {
			t.Fatalf("idx=%d got=%d want=%d (list=%+v)", i, list[i].ID, want[i], list)
		}
	}
}

func TestStore_RecordWin_IncrementsAndRejectsSecond(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()
	b := openBook(t, s, "chat")

	_ = b.AddParticipant(ctx, domain.Participant{ID: 1, Name: "alice"})
	_ = b.AddParticipant(ctx, domain.Participant{ID: 2, Name: "bob"})

	first := domain.DrawResult{
		Date:      "2024-03-05",
		Kind:      domain.KindDaily,
		Winner:    domain.Participant{ID: 1, Name: "alice"},
		CreatedAt: time.Unix(100, 0),
	}
	if err := b.RecordWin(ctx, first); err != nil {
		t.Fatalf("RecordWin(first): %v", err)
	}

	second := first
	second.Winner = domain.Participant{ID: 2, Name: "bob"}
	if err := b.RecordWin(ctx, second); err != ErrExists {
		t.Fatalf("expected ErrExists, got: %v", err)
	}

	got, err := b.Result(ctx, "2024-03-05", domain.KindDaily)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if got.Winner.ID != 1 || got.Kind != domain.KindDaily {
		t.Fatalf("unexpected result: %+v", got)
	}
	if _, err := b.Result(ctx, "2024-03-05", domain.KindChampion); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for champion, got: %v", err)
	}
	_ = b.Close()

	if got := mustCount(t, db, `SELECT points FROM participants WHERE user_id = 1`); got != 1 {
		t.Fatalf("alice points: got %d want 1", got)
	}
	if got := mustCount(t, db, `SELECT points FROM participants WHERE user_id = 2`); got != 0 {
		t.Fatalf("bob points: got %d want 0 (rejected win must not touch points)", got)
	}
}

func TestStore_RecordWin_ChampionBesideDaily(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()
	b := openBook(t, s, "chat")

	_ = b.AddParticipant(ctx, domain.Participant{ID: 1, Name: "alice", Points: 5})

	daily := domain.DrawResult{Date: "2024-01-31", Kind: domain.KindDaily, Winner: domain.Participant{ID: 1, Name: "alice", Points: 5}}
	champ := domain.DrawResult{Date: "2024-01-31", Kind: domain.KindChampion, Winner: domain.Participant{ID: 1, Name: "alice", Points: 6}}
	if err := b.RecordWin(ctx, daily); err != nil {
		t.Fatalf("RecordWin(daily): %v", err)
	}
	if err := b.RecordWin(ctx, champ); err != nil {
		t.Fatalf("RecordWin(champion): %v", err)
	}
	_ = b.Close()

	if got := mustCount(t, db, `SELECT COUNT(*) FROM results WHERE date = ?`, "2024-01-31"); got != 2 {
		t.Fatalf("expected 2 results, got %d", got)
	}
	if got := mustCount(t, db, `SELECT points FROM participants WHERE user_id = 1`); got != 7 {
		t.Fatalf("points: got %d want 7", got)
	}
}

func TestStore_RecordWin_UnknownWinner(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()
	b := openBook(t, s, "chat")

	err := b.RecordWin(ctx, domain.DrawResult{Date: "2024-01-01", Kind: domain.KindDaily, Winner: domain.Participant{ID: 42, Name: "ghost"}})
	if err == nil {
		t.Fatalf("expected error for unknown winner")
	}
	_ = b.Close()

	if got := mustCount(t, db, `SELECT COUNT(*) FROM results`); got != 0 {
		t.Fatalf("expected no result rows, got %d", got)
	}
}
