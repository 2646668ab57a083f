package storage

import (
	"database/sql"
	"embed"
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/maaaruch/online-voting/internal/domain"
)

//go:embed schema.sql
var embeddedSchema embed.FS

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// MemoryDSN keeps the whole database in process memory. Pair it with a
// single open connection, otherwise every new connection sees an empty DB.
const MemoryDSN = "file:voting?mode=memory&cache=shared"

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens dsn with the sqlite3 driver, pins the pool to one connection
// and applies the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := New(db)
	if err := s.InitSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) InitSchema() error {
	if _, err := s.db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return err
	}

	b, err := embeddedSchema.ReadFile("schema.sql")
	if err != nil {
		return err
	}

	schema := strings.TrimSpace(string(b))
	_, err = s.db.Exec(schema)
	return err
}

func isConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

// ---------- Credentials ----------

func (s *Store) CreateCredential(c domain.Credential) error {
	_, err := s.db.Exec(`INSERT INTO credentials(username, password_hash) VALUES (?, ?)`, c.Username, c.PasswordHash)
	if err != nil {
		if isConstraint(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) Credential(username string) (domain.Credential, error) {
	row := s.db.QueryRow(`SELECT username, password_hash, created_at FROM credentials WHERE username = ?`, username)
	var c domain.Credential
	if err := row.Scan(&c.Username, &c.PasswordHash, &c.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return domain.Credential{}, ErrNotFound
		}
		return domain.Credential{}, err
	}
	return c, nil
}

// ---------- Elections ----------

func (s *Store) CreateElection(e domain.Election) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`INSERT INTO elections(name) VALUES (?)`, e.Name)
	if err != nil {
		if isConstraint(err) {
			return ErrConflict
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for pos, name := range e.Candidates {
		if _, err := tx.Exec(`INSERT INTO candidates(election_id, position, name) VALUES (?, ?, ?)`, id, pos, name); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) Election(name string) (domain.Election, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM elections WHERE name = ?`, name).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Election{}, ErrNotFound
		}
		return domain.Election{}, err
	}

	rows, err := s.db.Query(`SELECT name FROM candidates WHERE election_id = ? ORDER BY position`, id)
	if err != nil {
		return domain.Election{}, err
	}
	defer rows.Close()

	e := domain.Election{Name: name}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return domain.Election{}, err
		}
		e.Candidates = append(e.Candidates, c)
	}
	if err := rows.Err(); err != nil {
		return domain.Election{}, err
	}
	return e, nil
}

func (s *Store) ListElections() ([]string, error) {
	return s.queryStrings(`SELECT name FROM elections ORDER BY id`)
}

func (s *Store) RegisteredCandidates() ([]string, error) {
	return s.queryStrings(`
SELECT c.name
FROM candidates c
JOIN elections e ON c.election_id = e.id
ORDER BY e.id, c.position
`)
}

func (s *Store) queryStrings(query string, args ...any) ([]string, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ---------- Tallies ----------

func (s *Store) IncrementVote(election, candidate string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`
INSERT INTO tallies(election_id, candidate, votes)
SELECT id, ?, 1 FROM elections WHERE name = ?
ON CONFLICT(election_id, candidate) DO UPDATE SET votes = votes + 1
`, candidate, election)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, ErrNotFound
	}

	var votes int64
	err = tx.QueryRow(`
SELECT t.votes
FROM tallies t
JOIN elections e ON t.election_id = e.id
WHERE e.name = ? AND t.candidate = ?
`, election, candidate).Scan(&votes)
	if err != nil {
		return 0, err
	}
	return votes, tx.Commit()
}

func (s *Store) Tally(election string) (domain.Tally, error) {
	rows, err := s.db.Query(`
SELECT t.candidate, t.votes
FROM tallies t
JOIN elections e ON t.election_id = e.id
WHERE e.name = ?
`, election)
	if err != nil {
		return domain.Tally{}, err
	}
	defer rows.Close()

	t := domain.Tally{Election: election, Counts: make(map[string]int64)}
	for rows.Next() {
		var (
			candidate string
			votes     int64
		)
		if err := rows.Scan(&candidate, &votes); err != nil {
			return domain.Tally{}, err
		}
		t.Counts[candidate] = votes
	}
	if err := rows.Err(); err != nil {
		return domain.Tally{}, err
	}
	if len(t.Counts) == 0 {
		return domain.Tally{}, ErrNotFound
	}
	return t, nil
}
