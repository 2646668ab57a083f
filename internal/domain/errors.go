package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyInput         = errors.New("username and password are required")
	ErrAlreadyExists      = errors.New("username already exists")
	ErrUnknownUser        = errors.New("username does not exist")
	ErrInvalidCredentials = errors.New("invalid password")
	ErrDuplicateName      = errors.New("election name already exists")
	ErrEmptyCandidateList = errors.New("no candidates added to the ballot")
	ErrNotFound           = errors.New("election not found")
	ErrUnknownElection    = errors.New("unknown election")
	ErrUnknownCandidate   = errors.New("candidate is not on the ballot")
	ErrNoVotes            = errors.New("no votes cast in election")
	ErrNotLoggedIn        = errors.New("not logged in")
)

// ErrEmptyName is a blank election name. It matches ErrEmptyInput.
var ErrEmptyName = fmt.Errorf("election name is required: %w", ErrEmptyInput)

var codes = []struct {
	err  error
	code string
}{
	{ErrEmptyName, "empty_name"},
	{ErrEmptyInput, "empty_input"},
	{ErrAlreadyExists, "already_exists"},
	{ErrUnknownUser, "unknown_user"},
	{ErrInvalidCredentials, "invalid_credentials"},
	{ErrDuplicateName, "duplicate_name"},
	{ErrEmptyCandidateList, "empty_candidate_list"},
	{ErrNotFound, "not_found"},
	{ErrUnknownElection, "unknown_election"},
	{ErrUnknownCandidate, "unknown_candidate"},
	{ErrNoVotes, "no_votes"},
	{ErrNotLoggedIn, "not_logged_in"},
}

// Code returns a stable snake_case label for err: "ok" for nil,
// "internal" for anything outside the taxonomy.
func Code(err error) string {
	if err == nil {
		return "ok"
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
