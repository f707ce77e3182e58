package dialer

import (
	"math/rand"
	"time"

	"github.com/nyaruka/phonenumbers"
)

// Selector picks the DID presented as caller ID for an outbound call.
// Stateless between calls: rotation state lives in the DID usage counters,
// so every pacer instance sees the same view.
type Selector struct {
	rand *rand.Rand
}

func NewSelector() *Selector {
	return &Selector{rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Select applies the strategy to the active DID pool. The pool must be
// non-empty; callers filter inactive DIDs first.
func (s *Selector) Select(dids []DID, strategy Strategy, leadPhone string) (DID, error) {
	if len(dids) == 0 {
		return DID{}, ErrNoUsableDID
	}
	switch strategy {
	case StrategyRandom:
		return dids[s.rand.Intn(len(dids))], nil
	case StrategyRoundRobin:
		return leastRecentlyUsed(dids), nil
	case StrategyGeographic:
		if d, ok := matchAreaCode(dids, leadPhone); ok {
			return d, nil
		}
		if d, ok := matchState(dids, leadPhone); ok {
			return d, nil
		}
		return leastUsed(dids), nil
	default: // StrategyEven
		return leastUsed(dids), nil
	}
}

func leastUsed(dids []DID) DID {
	best := dids[0]
	for _, d := range dids[1:] {
		if d.UsageCount < best.UsageCount {
			best = d
		}
	}
	return best
}

func leastRecentlyUsed(dids []DID) DID {
	best := dids[0]
	for _, d := range dids[1:] {
		if olderThan(d.LastUsedAt, best.LastUsedAt) {
			best = d
		}
	}
	return best
}

// olderThan treats never-used (nil) as oldest.
func olderThan(a, b *time.Time) bool {
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}
	return a.Before(*b)
}

// matchAreaCode finds the least-used DID sharing the lead's NANP area
// code. Unparseable numbers simply report no match.
func matchAreaCode(dids []DID, leadPhone string) (DID, bool) {
	want := areaCode(leadPhone)
	if want == "" {
		return DID{}, false
	}
	var pool []DID
	for _, d := range dids {
		if areaCode(d.Phone) == want {
			pool = append(pool, d)
		}
	}
	if len(pool) == 0 {
		return DID{}, false
	}
	return leastUsed(pool), true
}

// matchState finds the least-used DID in the lead's state when no DID
// shares the area code. The lead's state comes from its area code; a DID
// uses its stored state, or its own area code when none was recorded.
func matchState(dids []DID, leadPhone string) (DID, bool) {
	want := stateForAreaCode(areaCode(leadPhone))
	if want == "" {
		return DID{}, false
	}
	var pool []DID
	for _, d := range dids {
		if didState(d) == want {
			pool = append(pool, d)
		}
	}
	if len(pool) == 0 {
		return DID{}, false
	}
	return leastUsed(pool), true
}

func didState(d DID) string {
	if d.State != "" {
		return d.State
	}
	return stateForAreaCode(areaCode(d.Phone))
}

func areaCode(phone string) string {
	parsed, err := phonenumbers.Parse(phone, "US")
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		return ""
	}
	national := phonenumbers.GetNationalSignificantNumber(parsed)
	if len(national) < 10 {
		return ""
	}
	return national[:3]
}
