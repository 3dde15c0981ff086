package lottery

import (
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"math/rand/v2"
	"sort"

	"github.com/maaaruch/tg-lucky-bot/internal/domain"
)

var ErrEmptyCandidateSet = errors.New("no candidates to draw from")

// Selector picks one winner out of a non-empty candidate list.
type Selector interface {
	Select(candidates []domain.Participant) (domain.Participant, error)
}

// rankSpread is the width, per candidate, of the range ranks are drawn from.
const rankSpread = 64

// ShuffleSelector ranks every candidate with a random number in [0, 64*N),
// orders them by rank and then picks a random position. Both draws come
// from a cryptographic source.
type ShuffleSelector struct {
	// Rand defaults to crypto/rand.Reader.
	Rand io.Reader
}

func (s ShuffleSelector) Select(candidates []domain.Participant) (domain.Participant, error) {
	n := len(candidates)
	if n == 0 {
		return domain.Participant{}, ErrEmptyCandidateSet
	}

	src := s.Rand
	if src == nil {
		src = crand.Reader
	}

	type ranked struct {
		p    domain.Participant
		rank int64
	}
	shuffled := make([]ranked, n)
	for i, c := range candidates {
		r, err := randInt(src, int64(n)*rankSpread)
		if err != nil {
			return domain.Participant{}, err
		}
		shuffled[i] = ranked{p: c, rank: r}
	}
	sort.SliceStable(shuffled, func(i, j int) bool { return shuffled[i].rank < shuffled[j].rank })

	idx, err := randInt(src, int64(n))
	if err != nil {
		return domain.Participant{}, err
	}
	return shuffled[idx].p, nil
}

func randInt(src io.Reader, max int64) (int64, error) {
	v, err := crand.Int(src, big.NewInt(max))
	if err != nil {
		return 0, fmt.Errorf("read random: %w", err)
	}
	return v.Int64(), nil
}

// UniformSelector picks a random index without shuffling. It is what the
// scheduled draw uses and is kept apart from ShuffleSelector on purpose.
type UniformSelector struct{}

func (UniformSelector) Select(candidates []domain.Participant) (domain.Participant, error) {
	if len(candidates) == 0 {
		return domain.Participant{}, ErrEmptyCandidateSet
	}
	return candidates[rand.IntN(len(candidates))], nil
}
