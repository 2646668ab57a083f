package app

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// splitPipeArgs splits s on '|' into at most n parts (all parts when n < 0),
// trimming each and dropping empty ones.
func splitPipeArgs(s string, n int) []string {
	raw := strings.SplitN(s, "|", n)
	out := make([]string, 0, len(raw))
	for _, part := range raw {
		p := strings.TrimSpace(part)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitCredentials takes "username password". The password is everything
// after the first run of spaces, kept as typed.
func splitCredentials(args string) (username, password string) {
	args = strings.TrimLeft(args, " ")
	username, password, _ = strings.Cut(args, " ")
	return username, strings.TrimLeft(password, " ")
}

// parseIndexes parses exactly n non-negative integers separated by ':'.
func parseIndexes(s string, n int) ([]int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != n {
		return nil, fmt.Errorf("want %d indexes, got %q", n, s)
	}
	out := make([]int, 0, n)
	for _, p := range parts {
		i, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		if i < 0 {
			return nil, fmt.Errorf("negative index %d", i)
		}
		out = append(out, i)
	}
	return out, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
