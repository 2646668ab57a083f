// Package memory keeps credentials, ballots and tallies in process maps.
package memory

import (
	"slices"
	"sync"
	"time"

	"github.com/maaaruch/online-voting/internal/domain"
	"github.com/maaaruch/online-voting/internal/storage"
)

type Store struct {
	mu          sync.RWMutex
	credentials map[string]domain.Credential
	ballots     map[string][]string
	order       []string
	tallies     map[string]map[string]int64
}

func New() *Store {
	return &Store{
		credentials: make(map[string]domain.Credential),
		ballots:     make(map[string][]string),
		tallies:     make(map[string]map[string]int64),
	}
}

func (s *Store) CreateCredential(c domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.credentials[c.Username]; ok {
		return storage.ErrConflict
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.credentials[c.Username] = c
	return nil
}

func (s *Store) Credential(username string) (domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.credentials[username]
	if !ok {
		return domain.Credential{}, storage.ErrNotFound
	}
	return c, nil
}

func (s *Store) CreateElection(e domain.Election) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ballots[e.Name]; ok {
		return storage.ErrConflict
	}
	s.ballots[e.Name] = slices.Clone(e.Candidates)
	s.order = append(s.order, e.Name)
	return nil
}

func (s *Store) Election(name string) (domain.Election, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates, ok := s.ballots[name]
	if !ok {
		return domain.Election{}, storage.ErrNotFound
	}
	return domain.Election{Name: name, Candidates: slices.Clone(candidates)}, nil
}

func (s *Store) ListElections() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.order), nil
}

func (s *Store) RegisteredCandidates() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, name := range s.order {
		out = append(out, s.ballots[name]...)
	}
	return out, nil
}

// IncrementVote creates the election's tally on first use and the
// candidate's counter at 1.
func (s *Store) IncrementVote(election, candidate string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ballots[election]; !ok {
		return 0, storage.ErrNotFound
	}
	counts, ok := s.tallies[election]
	if !ok {
		counts = make(map[string]int64)
		s.tallies[election] = counts
	}
	counts[candidate]++
	return counts[candidate], nil
}

func (s *Store) Tally(election string) (domain.Tally, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts, ok := s.tallies[election]
	if !ok {
		return domain.Tally{}, storage.ErrNotFound
	}
	out := make(map[string]int64, len(counts))
	for k, v := range counts {
		out[k] = v
	}
	return domain.Tally{Election: election, Counts: out}, nil
}
