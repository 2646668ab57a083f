// Package tally resolves the winner of a plurality count.
package tally

import (
	"sort"

	"github.com/maaaruch/online-voting/internal/domain"
)

// Resolve scans counts once, keeping the running maximum and every
// candidate that reaches it. A strictly greater count resets the set, an
// equal one joins it. Two or more candidates at the top are a Tie; there
// is no secondary tie-break.
func Resolve(counts map[string]int64) (domain.Outcome, error) {
	var (
		maxVotes int64 = -1
		winners  []string
	)
	for candidate, votes := range counts {
		switch {
		case votes > maxVotes:
			maxVotes = votes
			winners = append(winners[:0], candidate)
		case votes == maxVotes:
			winners = append(winners, candidate)
		}
	}

	if len(winners) == 0 || maxVotes <= 0 {
		return domain.Outcome{}, domain.ErrNoVotes
	}

	if len(winners) == 1 {
		return domain.Outcome{Kind: domain.SingleWinner, Candidates: winners, Votes: maxVotes}, nil
	}

	// map order is random
	sort.Strings(winners)
	return domain.Outcome{Kind: domain.Tie, Candidates: winners, Votes: maxVotes}, nil
}
