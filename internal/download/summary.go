package download

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ytget/episode-downloader/internal/model"
	"github.com/ytget/episode-downloader/internal/retry"
)

// Summary counts how the items of one DownloadAll run ended
type Summary struct {
	Run      string
	Outcomes map[int]retry.Outcome
	counts   map[model.ItemState]int
}

func newSummary(run string) Summary {
	return Summary{
		Run:      run,
		Outcomes: make(map[int]retry.Outcome),
		counts:   make(map[model.ItemState]int),
	}
}

func (s *Summary) add(ordinal int, outcome retry.Outcome) {
	s.Outcomes[ordinal] = outcome
	s.counts[outcome.State]++
}

// Count returns how many items ended in state
func (s Summary) Count(state model.ItemState) int {
	return s.counts[state]
}

// Total returns how many items the run looked at
func (s Summary) Total() int {
	return len(s.Outcomes)
}

// Ordinals returns the items that ended in state, in order
func (s Summary) Ordinals(state model.ItemState) []int {
	var ordinals []int
	for ordinal, outcome := range s.Outcomes {
		if outcome.State == state {
			ordinals = append(ordinals, ordinal)
		}
	}
	sort.Ints(ordinals)
	return ordinals
}

// String renders the non-zero counts, e.g. "completed=3 exhausted=1"
func (s Summary) String() string {
	states := make([]string, 0, len(s.counts))
	for state, n := range s.counts {
		if n > 0 {
			states = append(states, fmt.Sprintf("%s=%d", state, n))
		}
	}
	sort.Strings(states)
	return strings.Join(states, " ")
}
