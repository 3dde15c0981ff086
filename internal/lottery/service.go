package lottery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/logger"

	"github.com/maaaruch/tg-lucky-bot/internal/domain"
	"github.com/maaaruch/tg-lucky-bot/internal/storage"
)

var (
	ErrNotMonthEnd   = errors.New("today is not the last day of the month")
	ErrNotDrawnToday = errors.New("no draw yet today")
	ErrSingleLeader  = errors.New("only one participant with the highest points")
)

// Ledger hands out per-scope books. Implemented by storage.Store and
// storage.MongoStore.
type Ledger interface {
	Open(ctx context.Context, scope string) (storage.Book, error)
}

type Service struct {
	ledger   Ledger
	selector Selector
	loc      *time.Location
}

func NewService(ledger Ledger, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		ledger:   ledger,
		selector: ShuffleSelector{},
		loc:      loc,
	}
}

func (s *Service) Location() *time.Location {
	return s.loc
}

type Registration struct {
	Participant domain.Participant
	Already     bool
}

type DrawOutcome struct {
	Result domain.DrawResult
	// Fresh is false when the result was already recorded before this call.
	Fresh bool
	// Leader reports that the winner now holds the scope's highest points.
	Leader bool
}

type ChampionOutcome struct {
	Contenders []domain.Participant
	Result     domain.DrawResult
	Fresh      bool
}

func (s *Service) open(ctx context.Context, scope string) (storage.Book, error) {
	book, err := s.ledger.Open(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", scope, err)
	}
	return book, nil
}

func closeBook(book storage.Book, scope string) {
	if err := book.Close(); err != nil {
		logger.Warningf("close ledger %s: %v", scope, err)
	}
}

// ---------- Registration ----------

func (s *Service) Register(ctx context.Context, scope string, id int64, name string) (*Registration, error) {
	book, err := s.open(ctx, scope)
	if err != nil {
		return nil, err
	}
	defer closeBook(book, scope)

	existing, err := book.Participant(ctx, id)
	if err == nil {
		return &Registration{Participant: *existing, Already: true}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	p := domain.Participant{ID: id, Name: name}
	if err := book.AddParticipant(ctx, p); err != nil {
		if !errors.Is(err, storage.ErrExists) {
			return nil, err
		}
		existing, err := book.Participant(ctx, id)
		if err != nil {
			return nil, err
		}
		return &Registration{Participant: *existing, Already: true}, nil
	}
	return &Registration{Participant: p}, nil
}

// ---------- Ranking ----------

func (s *Service) Rank(ctx context.Context, scope string) ([]domain.Participant, error) {
	book, err := s.open(ctx, scope)
	if err != nil {
		return nil, err
	}
	defer closeBook(book, scope)

	return book.Participants(ctx)
}

// ---------- Daily draw ----------

func (s *Service) Draw(ctx context.Context, scope string, now time.Time) (*DrawOutcome, error) {
	return s.DrawWith(ctx, s.selector, scope, now)
}

// DrawWith runs today's draw for scope with the given selector. When today's
// winner is already known it is returned unchanged.
func (s *Service) DrawWith(ctx context.Context, sel Selector, scope string, now time.Time) (*DrawOutcome, error) {
	book, err := s.open(ctx, scope)
	if err != nil {
		return nil, err
	}
	defer closeBook(book, scope)

	date := DateKey(now, s.loc)

	existing, err := book.Result(ctx, date, domain.KindDaily)
	if err == nil {
		return &DrawOutcome{Result: *existing}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	participants, err := book.Participants(ctx)
	if err != nil {
		return nil, err
	}
	if len(participants) == 0 {
		return nil, ErrEmptyCandidateSet
	}

	winner, err := sel.Select(participants)
	if err != nil {
		return nil, err
	}

	result := domain.DrawResult{Date: date, Kind: domain.KindDaily, Winner: winner, CreatedAt: now}
	if err := book.RecordWin(ctx, result); err != nil {
		if errors.Is(err, storage.ErrExists) {
			return s.recorded(ctx, book, date, domain.KindDaily)
		}
		return nil, err
	}
	logger.Infof("draw %s %s: winner %d", scope, date, winner.ID)

	after, err := book.Participants(ctx)
	if err != nil {
		return nil, err
	}
	return &DrawOutcome{
		Result: result,
		Fresh:  true,
		Leader: winner.Points+1 >= maxPoints(after),
	}, nil
}

// recorded loads the result that beat this call to the store.
func (s *Service) recorded(ctx context.Context, book storage.Book, date string, kind domain.ResultKind) (*DrawOutcome, error) {
	r, err := book.Result(ctx, date, kind)
	if err != nil {
		return nil, err
	}
	return &DrawOutcome{Result: *r}, nil
}

// ---------- Champion of the month ----------

// Champion resolves a tie between the month's leaders. announce is called
// with the tied leaders before the winner is selected.
func (s *Service) Champion(ctx context.Context, scope string, now time.Time, announce func([]domain.Participant) error) (*ChampionOutcome, error) {
	if !IsLastDayOfMonth(now, s.loc) {
		return nil, ErrNotMonthEnd
	}

	book, err := s.open(ctx, scope)
	if err != nil {
		return nil, err
	}
	defer closeBook(book, scope)

	date := DateKey(now, s.loc)

	if _, err := book.Result(ctx, date, domain.KindDaily); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotDrawnToday
		}
		return nil, err
	}

	crowned, err := book.Result(ctx, date, domain.KindChampion)
	if err == nil {
		return &ChampionOutcome{Result: *crowned}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	participants, err := book.Participants(ctx)
	if err != nil {
		return nil, err
	}
	if len(participants) == 0 {
		return nil, ErrEmptyCandidateSet
	}

	top := leaders(participants)
	if len(top) <= 1 {
		return nil, ErrSingleLeader
	}

	if announce != nil {
		if err := announce(top); err != nil {
			return nil, err
		}
	}

	winner, err := s.selector.Select(top)
	if err != nil {
		return nil, err
	}

	result := domain.DrawResult{Date: date, Kind: domain.KindChampion, Winner: winner, CreatedAt: now}
	if err := book.RecordWin(ctx, result); err != nil {
		if errors.Is(err, storage.ErrExists) {
			out, err := s.recorded(ctx, book, date, domain.KindChampion)
			if err != nil {
				return nil, err
			}
			return &ChampionOutcome{Contenders: top, Result: out.Result}, nil
		}
		return nil, err
	}
	logger.Infof("champion %s %s: winner %d out of %d", scope, date, winner.ID, len(top))

	return &ChampionOutcome{Contenders: top, Result: result, Fresh: true}, nil
}

func maxPoints(participants []domain.Participant) int64 {
	var highest int64
	for _, p := range participants {
		if p.Points > highest {
			highest = p.Points
		}
	}
	return highest
}

func leaders(participants []domain.Participant) []domain.Participant {
	highest := maxPoints(participants)
	var top []domain.Participant
	for _, p := range participants {
		if p.Points == highest {
			top = append(top, p)
		}
	}
	return top
}
