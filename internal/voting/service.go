// Package voting is the in-process API of the voting system: credentials,
// ballots, tallies and the process login session behind one Service.
package voting

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/maaaruch/online-voting/internal/domain"
	"github.com/maaaruch/online-voting/internal/metrics"
	"github.com/maaaruch/online-voting/internal/session"
	"github.com/maaaruch/online-voting/internal/storage"
	"github.com/maaaruch/online-voting/internal/tally"
)

// Repository stores credentials, ballots and tallies. Implementations
// report missing rows with storage.ErrNotFound and duplicate keys with
// storage.ErrConflict.
type Repository interface {
	CreateCredential(c domain.Credential) error
	Credential(username string) (domain.Credential, error)

	CreateElection(e domain.Election) error
	Election(name string) (domain.Election, error)
	ListElections() ([]string, error)
	RegisteredCandidates() ([]string, error)

	IncrementVote(election, candidate string) (int64, error)
	Tally(election string) (domain.Tally, error)
}

type Service struct {
	repo       Repository
	session    session.State
	bcryptCost int
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Service)

func WithLogger(l *zerolog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = *l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

func New(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		bcryptCost: bcrypt.DefaultCost,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ---------- Credentials ----------

// Register stores a new credential. The username is trimmed; the password
// is hashed as given.
func (s *Service) Register(username, password string) (err error) {
	defer func() { s.metrics.ObserveRegistration(err) }()

	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return domain.ErrEmptyInput
	}

	if _, err := s.repo.Credential(username); err == nil {
		return domain.ErrAlreadyExists
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("lookup credential: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword(passwordKey(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.repo.CreateCredential(domain.Credential{Username: username, PasswordHash: string(hash)}); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("create credential: %w", err)
	}

	s.logger.Debug().Str("username", username).Msg("user registered")
	return nil
}

func (s *Service) Authenticate(username, password string) (err error) {
	defer func() { s.metrics.ObserveLogin(err) }()

	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return domain.ErrEmptyInput
	}

	c, err := s.repo.Credential(username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.ErrUnknownUser
		}
		return fmt.Errorf("lookup credential: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), passwordKey(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return domain.ErrInvalidCredentials
		}
		return fmt.Errorf("compare password: %w", err)
	}
	return nil
}

// passwordKey pre-hashes the password so bcrypt never sees more than its
// 72-byte limit.
func passwordKey(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(out, sum[:])
	return out
}

// ---------- Session ----------

// LogIn authenticates and, on success, makes username the process user.
func (s *Service) LogIn(username, password string) error {
	if err := s.Authenticate(username, password); err != nil {
		return err
	}
	s.session.LogIn(strings.TrimSpace(username))

	s.logger.Info().
		Str("username", strings.TrimSpace(username)).
		Str("session_id", s.session.ID()).
		Msg("logged in")
	return nil
}

func (s *Service) LogOut() {
	if user, ok := s.session.CurrentUser(); ok {
		s.logger.Info().Str("username", user).Str("session_id", s.session.ID()).Msg("logged out")
	}
	s.session.LogOut()
}

func (s *Service) CurrentUser() (string, bool) {
	return s.session.CurrentUser()
}

// ---------- Ballots ----------

// CreateElection registers a ballot. Candidates are kept verbatim and in
// order, duplicates included.
func (s *Service) CreateElection(name string, candidates []string) (err error) {
	defer func() { s.metrics.ObserveElection(err) }()

	if strings.TrimSpace(name) == "" {
		return domain.ErrEmptyName
	}

	if _, err := s.repo.Election(name); err == nil {
		return domain.ErrDuplicateName
	} else if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("lookup election: %w", err)
	}

	if len(candidates) == 0 {
		return domain.ErrEmptyCandidateList
	}

	err = s.repo.CreateElection(domain.Election{Name: name, Candidates: slices.Clone(candidates)})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return domain.ErrDuplicateName
		}
		return fmt.Errorf("create election: %w", err)
	}

	s.logger.Debug().Str("election", name).Int("candidates", len(candidates)).Msg("ballot created")
	return nil
}

func (s *Service) ListElections() ([]string, error) {
	names, err := s.repo.ListElections()
	if err != nil {
		return nil, fmt.Errorf("list elections: %w", err)
	}
	return names, nil
}

func (s *Service) Candidates(name string) ([]string, error) {
	e, err := s.repo.Election(name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("lookup election: %w", err)
	}
	return e.Candidates, nil
}

// RegisteredCandidates lists every candidate of every ballot in
// registration order.
func (s *Service) RegisteredCandidates() ([]string, error) {
	all, err := s.repo.RegisteredCandidates()
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	return all, nil
}

// ---------- Tally ----------

func (s *Service) election(name string) ([]string, error) {
	candidates, err := s.Candidates(name)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrUnknownElection
	}
	return candidates, err
}

// CastVote adds one vote for candidate, who must be on the election's ballot.
func (s *Service) CastVote(election, candidate string) (err error) {
	defer func() { s.metrics.ObserveVote(err) }()

	candidates, err := s.election(election)
	if err != nil {
		return err
	}
	if !slices.Contains(candidates, candidate) {
		return domain.ErrUnknownCandidate
	}

	votes, err := s.repo.IncrementVote(election, candidate)
	if err != nil {
		return fmt.Errorf("increment vote: %w", err)
	}

	s.logger.Debug().
		Str("election", election).
		Str("candidate", candidate).
		Int64("votes", votes).
		Msg("vote cast")
	return nil
}

func (s *Service) ResolveWinner(election string) (domain.Outcome, error) {
	if _, err := s.election(election); err != nil {
		return domain.Outcome{}, err
	}

	t, err := s.repo.Tally(election)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Outcome{}, domain.ErrNoVotes
		}
		return domain.Outcome{}, fmt.Errorf("load tally: %w", err)
	}
	return tally.Resolve(t.Counts)
}

// Results pairs the outcome with per-candidate counts in ballot order.
// Candidates without votes show zero; repeated names appear once.
func (s *Service) Results(election string) (domain.Results, error) {
	candidates, err := s.election(election)
	if err != nil {
		return domain.Results{}, err
	}

	t, err := s.repo.Tally(election)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Results{}, domain.ErrNoVotes
		}
		return domain.Results{}, fmt.Errorf("load tally: %w", err)
	}

	outcome, err := tally.Resolve(t.Counts)
	if err != nil {
		return domain.Results{}, err
	}

	res := domain.Results{Election: election, Outcome: outcome}
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		res.Counts = append(res.Counts, domain.CandidateCount{Candidate: c, Votes: t.Counts[c]})
	}
	return res, nil
}
