package voting

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/fake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/maaaruch/online-voting/internal/domain"
	"github.com/maaaruch/online-voting/internal/metrics"
	"github.com/maaaruch/online-voting/internal/storage"
	"github.com/maaaruch/online-voting/internal/storage/memory"
)

type backend struct {
	name string
	open func(t *testing.T) Repository
}

var backends = []backend{
	{
		name: "memory",
		open: func(t *testing.T) Repository { return memory.New() },
	},
	{
		name: "sqlite",
		open: func(t *testing.T) Repository {
			s, err := storage.Open(filepath.Join(t.TempDir(), "voting.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	},
}

// forEachBackend runs fn once per repository implementation.
func forEachBackend(t *testing.T, fn func(t *testing.T, svc *Service)) {
	t.Helper()
	for _, b := range backends {
		b := b
		t.Run(b.name, func(t *testing.T) {
			fn(t, New(b.open(t), WithBcryptCost(bcrypt.MinCost)))
		})
	}
}

func TestRegisterAuthenticate_RoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *Service) {
		seen := make(map[string]bool)
		for i := 0; i < 10; i++ {
			username := fmt.Sprintf("%s%d", fake.UserName(), i)
			if seen[username] {
				continue
			}
			seen[username] = true
			password := fake.SimplePassword()

			require.NoError(t, svc.Register(username, password))
			assert.NoError(t, svc.Authenticate(username, password))
			assert.ErrorIs(t, svc.Authenticate(username, password+"x"), domain.ErrInvalidCredentials)
		}
	})
}

func TestRegister(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *Service) {
		assert := assert.New(t)

		assert.ErrorIs(svc.Register("", "pw"), domain.ErrEmptyInput)
		assert.ErrorIs(svc.Register("   ", "pw"), domain.ErrEmptyInput)
		assert.ErrorIs(svc.Register("alice", ""), domain.ErrEmptyInput)
		assert.ErrorIs(svc.Register("alice", "  "), domain.ErrEmptyInput)

		require.NoError(t, svc.Register(" alice ", "secret"))
		// the second registration fails whatever the password
		assert.ErrorIs(svc.Register("alice", "secret"), domain.ErrAlreadyExists)
		assert.ErrorIs(svc.Register("alice", "other"), domain.ErrAlreadyExists)

		// stored trimmed
		assert.NoError(svc.Authenticate("alice", "secret"))
	})
}

func TestRegister_AnyPassword(t *testing.T) {
	long := strings.Repeat("p", 73)

	tests := []struct {
		name     string
		password string
	}{
		{"bcrypt_limit", strings.Repeat("x", 72)},
		{"over_bcrypt_limit", long},
		{"very_long", strings.Repeat("correct horse battery staple ", 40)},
		{"cyrillic", "пароль-с-пробелами и ёлкой"},
		{"long_multibyte", strings.Repeat("ж", 50)},
		{"emoji", "🔑🗳️ vote"},
		{"leading_space", " secret"},
	}

	forEachBackend(t, func(t *testing.T, svc *Service) {
		for i, tt := range tests {
			username := fmt.Sprintf("user%d", i)

			require.NoError(t, svc.Register(username, tt.password), tt.name)
			assert.NoError(t, svc.Authenticate(username, tt.password), tt.name)
			assert.ErrorIs(t, svc.Authenticate(username, tt.password+"x"), domain.ErrInvalidCredentials, tt.name)
		}

		// pre-hashing keeps the whole password significant
		require.NoError(t, svc.Register("prefix", long))
		assert.ErrorIs(t, svc.Authenticate("prefix", long[:72]), domain.ErrInvalidCredentials)
	})
}

func TestAuthenticate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *Service) {
		require.NoError(t, svc.Register("alice", "secret"))

		tests := []struct {
			name     string
			username string
			password string
			err      error
		}{
			{"ok", "alice", "secret", nil},
			{"ok_trimmed_username", "  alice", "secret", nil},
			{"empty_username", "", "secret", domain.ErrEmptyInput},
			{"empty_password", "alice", "", domain.ErrEmptyInput},
			{"unknown_user", "bob", "secret", domain.ErrUnknownUser},
			{"wrong_password", "alice", "Secret", domain.ErrInvalidCredentials},
			{"password_not_trimmed", "alice", "secret ", domain.ErrInvalidCredentials},
		}
		for _, tt := range tests {
			err := svc.Authenticate(tt.username, tt.password)
			if tt.err == nil {
				assert.NoError(t, err, tt.name)
			} else {
				assert.ErrorIs(t, err, tt.err, tt.name)
			}
		}
	})
}

func TestLogInLogOut(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *Service) {
		assert := assert.New(t)
		require.NoError(t, svc.Register("alice", "secret"))
		require.NoError(t, svc.Register("bob", "hunter2"))

		_, ok := svc.CurrentUser()
		assert.False(ok)

		assert.ErrorIs(svc.LogIn("alice", "nope"), domain.ErrInvalidCredentials)
		_, ok = svc.CurrentUser()
		assert.False(ok, "failed login must not set the session")

		require.NoError(t, svc.LogIn(" alice ", "secret"))
		user, ok := svc.CurrentUser()
		assert.True(ok)
		assert.Equal("alice", user)

		require.NoError(t, svc.LogIn("bob", "hunter2"))
		user, _ = svc.CurrentUser()
		assert.Equal("bob", user)

		svc.LogOut()
		_, ok = svc.CurrentUser()
		assert.False(ok)
	})
}

func TestCreateElection(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *Service) {
		assert := assert.New(t)

		assert.ErrorIs(svc.CreateElection("E", nil), domain.ErrEmptyCandidateList)
		assert.ErrorIs(svc.CreateElection("E", []string{}), domain.ErrEmptyCandidateList)
		assert.ErrorIs(svc.CreateElection(" ", []string{"A"}), domain.ErrEmptyName)

		require.NoError(t, svc.CreateElection("E", []string{"A", "B"}))
		assert.ErrorIs(svc.CreateElection("E", []string{"C"}), domain.ErrDuplicateName)
		// duplicate name wins over the empty list
		assert.ErrorIs(svc.CreateElection("E", nil), domain.ErrDuplicateName)

		names, err := svc.ListElections()
		require.NoError(t, err)
		assert.Equal([]string{"E"}, names)
	})
}

func TestCandidates_RoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *Service) {
		candidates := []string{fake.FullName(), fake.FullName(), "Dup", "Dup", " padded "}
		in := append([]string(nil), candidates...)

		require.NoError(t, svc.CreateElection("Board", in))
		in[0] = "changed after create"

		got, err := svc.Candidates("Board")
		require.NoError(t, err)
		assert.Equal(t, candidates, got)

		_, err = svc.Candidates("missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestListElections_InsertionOrder(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *Service) {
		var want []string
		for i := 0; i < 5; i++ {
			name := fmt.Sprintf("%d %s", i, fake.WordsN(2))
			want = append(want, name)
			require.NoError(t, svc.CreateElection(name, []string{"A"}))
		}

		got, err := svc.ListElections()
		require.NoError(t, err)
		assert.Equal(t, want, got)

		all, err := svc.RegisteredCandidates()
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "A", "A", "A", "A"}, all)
	})
}

func castN(t *testing.T, svc *Service, election, candidate string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, svc.CastVote(election, candidate))
	}
}

func TestResolveWinner_SingleWinner(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *Service) {
		require.NoError(t, svc.CreateElection("E", []string{"A", "B"}))
		castN(t, svc, "E", "A", 3)
		castN(t, svc, "E", "B", 2)

		outcome, err := svc.ResolveWinner("E")
		require.NoError(t, err)
		assert.Equal(t, domain.Outcome{Kind: domain.SingleWinner, Candidates: []string{"A"}, Votes: 3}, outcome)
	})
}

func TestResolveWinner_Tie(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *Service) {
		require.NoError(t, svc.CreateElection("E", []string{"B", "A", "C"}))
		castN(t, svc, "E", "A", 2)
		castN(t, svc, "E", "B", 2)
		castN(t, svc, "E", "C", 1)

		outcome, err := svc.ResolveWinner("E")
		require.NoError(t, err)
		assert.Equal(t, domain.Tie, outcome.Kind)
		assert.ElementsMatch(t, []string{"A", "B"}, outcome.Candidates)
		assert.Equal(t, int64(2), outcome.Votes)
	})
}

func TestResolveWinner_Errors(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *Service) {
		require.NoError(t, svc.CreateElection("E", []string{"A"}))

		_, err := svc.ResolveWinner("E")
		assert.ErrorIs(t, err, domain.ErrNoVotes)

		_, err = svc.ResolveWinner("missing")
		assert.ErrorIs(t, err, domain.ErrUnknownElection)
	})
}

func TestCastVote_ValidatesMembership(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *Service) {
		require.NoError(t, svc.CreateElection("E", []string{"A", "B"}))
		castN(t, svc, "E", "A", 1)

		assert.ErrorIs(t, svc.CastVote("missing", "A"), domain.ErrUnknownElection)
		assert.ErrorIs(t, svc.CastVote("E", "Z"), domain.ErrUnknownCandidate)
		assert.ErrorIs(t, svc.CastVote("E", "a"), domain.ErrUnknownCandidate)

		res, err := svc.Results("E")
		require.NoError(t, err)
		assert.Equal(t, []domain.CandidateCount{{Candidate: "A", Votes: 1}, {Candidate: "B", Votes: 0}}, res.Counts)
	})
}

func TestResults(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc *Service) {
		require.NoError(t, svc.CreateElection("E", []string{"C", "A", "C", "B"}))

		_, err := svc.Results("E")
		assert.ErrorIs(t, err, domain.ErrNoVotes)
		_, err = svc.Results("missing")
		assert.ErrorIs(t, err, domain.ErrUnknownElection)

		castN(t, svc, "E", "C", 4)
		castN(t, svc, "E", "A", 1)

		res, err := svc.Results("E")
		require.NoError(t, err)
		assert.Equal(t, "E", res.Election)
		assert.Equal(t, []domain.CandidateCount{
			{Candidate: "C", Votes: 4},
			{Candidate: "A", Votes: 1},
			{Candidate: "B", Votes: 0},
		}, res.Counts)
		winner, ok := res.Outcome.Winner()
		assert.True(t, ok)
		assert.Equal(t, "C", winner)
	})
}

func TestService_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New("test", reg)
	svc := New(memory.New(), WithBcryptCost(bcrypt.MinCost), WithMetrics(m))

	require.NoError(t, svc.Register("alice", "pw"))
	_ = svc.Register("alice", "pw")
	_ = svc.Authenticate("alice", "bad")
	require.NoError(t, svc.CreateElection("E", []string{"A"}))
	require.NoError(t, svc.CastVote("E", "A"))
	_ = svc.CastVote("E", "Z")

	out, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 7, out)

	expected := `
# HELP test_tally_votes_cast_total Vote casting attempts by result
# TYPE test_tally_votes_cast_total counter
test_tally_votes_cast_total{result="ok"} 1
test_tally_votes_cast_total{result="unknown_candidate"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_tally_votes_cast_total"))
}

type failingRepo struct {
	Repository
}

var errDisk = errors.New("disk I/O error")

func (failingRepo) Credential(string) (domain.Credential, error) { return domain.Credential{}, errDisk }
func (failingRepo) Election(string) (domain.Election, error)     { return domain.Election{}, errDisk }
func (failingRepo) ListElections() ([]string, error)             { return nil, errDisk }

func TestService_StorageErrorsAreWrapped(t *testing.T) {
	svc := New(failingRepo{Repository: memory.New()})

	err := svc.Register("alice", "pw")
	assert.ErrorIs(t, err, errDisk)
	assert.Equal(t, "internal", domain.Code(err))

	assert.ErrorIs(t, svc.Authenticate("alice", "pw"), errDisk)
	assert.ErrorIs(t, svc.CreateElection("E", []string{"A"}), errDisk)
	assert.ErrorIs(t, svc.CastVote("E", "A"), errDisk)

	_, err = svc.ListElections()
	assert.ErrorIs(t, err, errDisk)
}
