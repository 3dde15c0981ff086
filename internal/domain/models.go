package domain

import "time"

type Participant struct {
	ID     int64
	Name   string
	Points int64
}

type ResultKind string

const (
	KindDaily    ResultKind = "daily"
	KindChampion ResultKind = "champion"
)

// DrawResult is the winner of one draw. Winner is a snapshot taken before
// the point increment.
type DrawResult struct {
	Date      string
	Kind      ResultKind
	Winner    Participant
	CreatedAt time.Time
}
