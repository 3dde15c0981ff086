package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/maaaruch/tg-lucky-bot/internal/domain"
)

const (
	participantsCollection = "participants"
	resultsCollection      = "results"
)

// Connect dials MongoDB and checks the connection.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

// MongoStore keeps every scope in its own database with a participants and
// a results collection.
type MongoStore struct {
	client  *mongo.Client
	indexed sync.Map // scope -> struct{}
}

func NewMongo(client *mongo.Client) *MongoStore {
	return &MongoStore{client: client}
}

func (s *MongoStore) Open(ctx context.Context, scope string) (Book, error) {
	db := s.client.Database(scope)
	if _, ok := s.indexed.Load(scope); !ok {
		if err := ensureIndexes(ctx, db); err != nil {
			return nil, fmt.Errorf("ensure indexes for %s: %w", scope, err)
		}
		s.indexed.Store(scope, struct{}{})
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return nil, err
	}
	return &mongoBook{
		sess:         sess,
		participants: db.Collection(participantsCollection),
		results:      db.Collection(resultsCollection),
	}, nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(participantsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = db.Collection(resultsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "date", Value: 1}, {Key: "kind", Value: 1}},
		// Older results carry no kind and may share a date.
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"kind": bson.M{"$exists": true}}),
	})
	return err
}

type participantDoc struct {
	ID     int64  `bson:"id"`
	Name   string `bson:"name"`
	Points int64  `bson:"points"`
}

type resultDoc struct {
	Date      string         `bson:"date"`
	Kind      string         `bson:"kind,omitempty"`
	Winner    participantDoc `bson:"winner"`
	CreatedAt time.Time      `bson:"createdAt,omitempty"`
}

func (d participantDoc) toDomain() domain.Participant {
	return domain.Participant{ID: d.ID, Name: d.Name, Points: d.Points}
}

type mongoBook struct {
	sess         mongo.Session
	participants *mongo.Collection
	results      *mongo.Collection
}

func (b *mongoBook) ctx(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, b.sess)
}

func (b *mongoBook) Close() error {
	b.sess.EndSession(context.Background())
	return nil
}

// ---------- Participants ----------

func (b *mongoBook) Participant(ctx context.Context, id int64) (*domain.Participant, error) {
	var doc participantDoc
	err := b.participants.FindOne(b.ctx(ctx), bson.M{"id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p := doc.toDomain()
	return &p, nil
}

func (b *mongoBook) AddParticipant(ctx context.Context, p domain.Participant) error {
	_, err := b.participants.InsertOne(b.ctx(ctx), participantDoc{ID: p.ID, Name: p.Name, Points: p.Points})
	if mongo.IsDuplicateKeyError(err) {
		return ErrExists
	}
	return err
}

func (b *mongoBook) Participants(ctx context.Context) ([]domain.Participant, error) {
	opts := options.Find().SetSort(bson.D{{Key: "points", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := b.participants.Find(b.ctx(ctx), bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []participantDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	participants := make([]domain.Participant, 0, len(docs))
	for _, d := range docs {
		participants = append(participants, d.toDomain())
	}
	return participants, nil
}

// ---------- Results ----------

func kindFilter(kind domain.ResultKind) any {
	// Results written before kinds existed have no kind field and count as daily.
	if kind == domain.KindDaily {
		return bson.M{"$in": bson.A{string(domain.KindDaily), nil}}
	}
	return string(kind)
}

func (b *mongoBook) Result(ctx context.Context, date string, kind domain.ResultKind) (*domain.DrawResult, error) {
	var doc resultDoc
	err := b.results.FindOne(b.ctx(ctx), bson.M{"date": date, "kind": kindFilter(kind)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &domain.DrawResult{
		Date:      doc.Date,
		Kind:      kind,
		Winner:    doc.Winner.toDomain(),
		CreatedAt: doc.CreatedAt,
	}, nil
}

// RecordWin claims the (date, kind) slot through the unique index first, so a
// concurrent draw loses before any points are touched.
func (b *mongoBook) RecordWin(ctx context.Context, r domain.DrawResult) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	sctx := b.ctx(ctx)

	_, err := b.results.InsertOne(sctx, resultDoc{
		Date:      r.Date,
		Kind:      string(r.Kind),
		Winner:    participantDoc{ID: r.Winner.ID, Name: r.Winner.Name, Points: r.Winner.Points},
		CreatedAt: r.CreatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrExists
		}
		return err
	}

	res, err := b.participants.UpdateOne(sctx, bson.M{"id": r.Winner.ID}, bson.M{"$inc": bson.M{"points": 1}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
