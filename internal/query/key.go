package query

import (
	"strings"
	"time"
)

// Staleness windows per resource.
const (
	StaleCategories      = time.Hour
	StaleMovies          = 5 * time.Minute
	StaleRecommendations = 5 * time.Minute
	StaleProfile         = 0
)

// Key identifies a cache entry. Keys compare element-wise; a shorter key is a
// prefix of every key that starts with the same elements.
type Key []string

// HasPrefix reports whether prefix matches the leading elements of k.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, part := range prefix {
		if k[i] != part {
			return false
		}
	}
	return true
}

// Equal reports element-wise equality.
func (k Key) Equal(other Key) bool {
	return len(k) == len(other) && k.HasPrefix(other)
}

func (k Key) String() string {
	return "[" + strings.Join(k, " ") + "]"
}

func (k Key) id() string {
	return strings.Join(k, "\x00")
}

func (k Key) clone() Key {
	return append(Key(nil), k...)
}

// Status is the lifecycle state of an entry.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}
