package session

import (
	"errors"
	"fmt"
	"sort"

	"github.com/brianvoe/gofakeit/v7"
)

// ErrMissingKey is matched by every MissingKeyError.
var ErrMissingKey = errors.New("missing session key")

// MissingKeyError is returned when a resolver asks for a key the session
// does not hold.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("missing session key %q", e.Key)
}

// Is makes errors.Is(err, ErrMissingKey) work.
func (e *MissingKeyError) Is(target error) bool {
	return target == ErrMissingKey
}

// Session is the mutable state of one virtual user.
//
// A Session is owned by exactly one user goroutine and is not safe for
// concurrent use.
type Session struct {
	userID int64
	values map[string]Value
	rand   *gofakeit.Faker
}

// New creates an empty session for a user. The random source is derived
// from seed and userID so that two runs with the same non-zero seed produce
// the same values per user. A zero seed picks a random source.
func New(userID int64, seed uint64) *Session {
	return &Session{
		userID: userID,
		values: make(map[string]Value),
		rand:   gofakeit.New(deriveSeed(seed, userID)),
	}
}

func deriveSeed(seed uint64, userID int64) uint64 {
	if seed == 0 {
		return 0
	}
	// splitmix64 step keeps neighbouring user ids far apart
	z := seed + uint64(userID)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31
	if z == 0 {
		z = 1
	}
	return z
}

// UserID returns the id of the owning user.
func (s *Session) UserID() int64 { return s.userID }

// Rand returns the user's seeded random source.
func (s *Session) Rand() *gofakeit.Faker { return s.rand }

// Set stores v under key, replacing any previous value.
func (s *Session) Set(key string, v Value) {
	s.values[key] = v
}

// Get returns the value stored under key.
func (s *Session) Get(key string) (Value, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Lookup is Get with an explicit error for a missing key.
func (s *Session) Lookup(key string) (Value, error) {
	v, ok := s.values[key]
	if !ok {
		return Value{}, &MissingKeyError{Key: key}
	}
	return v, nil
}

// Delete removes key.
func (s *Session) Delete(key string) {
	delete(s.values, key)
}

// Len returns the number of stored keys.
func (s *Session) Len() int { return len(s.values) }

// Keys returns the stored keys in sorted order.
func (s *Session) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a copy of the stored values.
func (s *Session) Snapshot() map[string]Value {
	out := make(map[string]Value, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
