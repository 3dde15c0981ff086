package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/maaaruch/tg-lucky-bot/internal/domain"
)

// Runs against a real server only, e.g.
// LUCKYBOT_TEST_MONGODB_URI=mongodb://localhost:27017 go test ./internal/storage
func newTestMongoStore(t *testing.T) (*MongoStore, string) {
	t.Helper()

	uri := os.Getenv("LUCKYBOT_TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("LUCKYBOT_TEST_MONGODB_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := Connect(ctx, uri)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	scope := fmt.Sprintf("luckybot_test_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_ = client.Database(scope).Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return NewMongo(client), scope
}

func TestMongoStore_RegisterAndRecordWin(t *testing.T) {
	s, scope := newTestMongoStore(t)
	ctx := context.Background()

	b, err := s.Open(ctx, scope)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()

	if err := b.AddParticipant(ctx, domain.Participant{ID: 1, Name: "alice"}); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}
	if err := b.AddParticipant(ctx, domain.Participant{ID: 1, Name: "alice"}); err != ErrExists {
		t.Fatalf("expected ErrExists, got: %v", err)
	}
	if err := b.AddParticipant(ctx, domain.Participant{ID: 2, Name: "bob"}); err != nil {
		t.Fatalf("AddParticipant(bob): %v", err)
	}

	r := domain.DrawResult{Date: "2024-03-05", Kind: domain.KindDaily, Winner: domain.Participant{ID: 2, Name: "bob"}}
	if err := b.RecordWin(ctx, r); err != nil {
		t.Fatalf("RecordWin: %v", err)
	}
	r.Winner = domain.Participant{ID: 1, Name: "alice"}
	if err := b.RecordWin(ctx, r); err != ErrExists {
		t.Fatalf("expected ErrExists, got: %v", err)
	}

	got, err := b.Result(ctx, "2024-03-05", domain.KindDaily)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if got.Winner.ID != 2 {
		t.Fatalf("unexpected winner: %+v", got.Winner)
	}

	list, err := b.Participants(ctx)
	if err != nil {
		t.Fatalf("Participants: %v", err)
	}
	if len(list) != 2 || list[0].ID != 2 || list[0].Points != 1 || list[1].Points != 0 {
		t.Fatalf("unexpected ranking: %+v", list)
	}
}

func TestMongoStore_OpenWithKindlessResults(t *testing.T) {
	s, scope := newTestMongoStore(t)
	ctx := context.Background()

	// daily and champion of the same day, both written without a kind
	results := s.client.Database(scope).Collection(resultsCollection)
	for _, id := range []int64{1, 2} {
		_, err := results.InsertOne(ctx, bson.M{
			"date":   "2024-01-31",
			"winner": bson.M{"id": id, "name": fmt.Sprintf("user%d", id), "points": 3},
		})
		if err != nil {
			t.Fatalf("seed result: %v", err)
		}
	}

	b, err := s.Open(ctx, scope)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()

	if _, err := b.Result(ctx, "2024-01-31", domain.KindDaily); err != nil {
		t.Fatalf("Result(daily): %v", err)
	}
	if _, err := b.Result(ctx, "2024-01-31", domain.KindChampion); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for champion, got: %v", err)
	}

	if err := b.AddParticipant(ctx, domain.Participant{ID: 1, Name: "user1"}); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}
	r := domain.DrawResult{Date: "2024-02-01", Kind: domain.KindDaily, Winner: domain.Participant{ID: 1, Name: "user1"}}
	if err := b.RecordWin(ctx, r); err != nil {
		t.Fatalf("RecordWin: %v", err)
	}
	if err := b.RecordWin(ctx, r); err != ErrExists {
		t.Fatalf("expected ErrExists, got: %v", err)
	}
}
