package storage

import (
	"context"
	"errors"

	"github.com/maaaruch/tg-lucky-bot/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

// Book is a handle on the participants and results of a single scope.
// It is acquired per command and must be closed on every exit path.
type Book interface {
	Participant(ctx context.Context, id int64) (*domain.Participant, error)
	AddParticipant(ctx context.Context, p domain.Participant) error
	// Participants are ordered by points descending, ties in insertion order.
	Participants(ctx context.Context) ([]domain.Participant, error)
	Result(ctx context.Context, date string, kind domain.ResultKind) (*domain.DrawResult, error)
	// RecordWin stores r and increments the winner's points as one step.
	// ErrExists is returned when a result of the same date and kind is
	// already recorded; nothing is changed in that case.
	RecordWin(ctx context.Context, r domain.DrawResult) error
	Close() error
}
