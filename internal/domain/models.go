package domain

import "time"

type Credential struct {
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

type Election struct {
	Name       string
	Candidates []string
}

type Tally struct {
	Election string
	Counts   map[string]int64
}

type OutcomeKind int

const (
	SingleWinner OutcomeKind = iota + 1
	Tie
)

func (k OutcomeKind) String() string {
	switch k {
	case SingleWinner:
		return "single_winner"
	case Tie:
		return "tie"
	default:
		return "unknown"
	}
}

// Outcome is the resolved top of an election. For a Tie, Candidates holds
// every candidate sharing the maximum, sorted by name.
type Outcome struct {
	Kind       OutcomeKind
	Candidates []string
	Votes      int64
}

// Winner returns the single winner, if there is one.
func (o Outcome) Winner() (string, bool) {
	if o.Kind != SingleWinner || len(o.Candidates) != 1 {
		return "", false
	}
	return o.Candidates[0], true
}

func (o Outcome) IsTie() bool {
	return o.Kind == Tie
}

type CandidateCount struct {
	Candidate string
	Votes     int64
}

type Results struct {
	Election string
	Counts   []CandidateCount
	Outcome  Outcome
}
