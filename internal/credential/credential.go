// Package credential holds the in-memory username/password pair and turns it
// into HTTP Basic authorization material on demand. Nothing here is ever
// written to disk.
package credential

import (
	"encoding/base64"
	"net/http"
	"strings"
	"sync"
	"unicode/utf8"
)

// HeaderName is the header carrying the encoded credential pair.
const HeaderName = "Authorization"

// Store keeps the current credential pair. The zero value is an empty store
// ready for use.
type Store struct {
	mu       sync.RWMutex
	username string
	password string
}

// Set replaces the stored pair.
func (s *Store) Set(username, password string) {
	s.mu.Lock()
	s.username = username
	s.password = password
	s.mu.Unlock()
}

// Clear forgets the stored pair.
func (s *Store) Clear() {
	s.Set("", "")
}

// Username returns the stored username.
func (s *Store) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// Password returns the stored password.
func (s *Store) Password() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.password
}

// Empty reports whether either half of the pair is missing.
func (s *Store) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username == "" || s.password == ""
}

// AuthorizationHeader encodes the stored pair as a Basic authorization header.
// An empty header is returned when the pair cannot be encoded; the request
// then goes out unauthenticated and the server answers 401.
func (s *Store) AuthorizationHeader() http.Header {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Header(s.username, s.password)
}

// Header builds the Basic authorization header for an arbitrary pair.
func Header(username, password string) http.Header {
	h := http.Header{}
	if username == "" && password == "" {
		return h
	}
	token, ok := Encode(username, password)
	if !ok {
		return h
	}
	h.Set(HeaderName, "Basic "+token)
	return h
}

// Encode returns base64(username:password). ok is false when the pair is not
// valid UTF-8, holds control characters, or the username contains a colon
// (RFC 7617 forbids it in the user-id).
func Encode(username, password string) (token string, ok bool) {
	if strings.Contains(username, ":") {
		return "", false
	}
	if !encodable(username) || !encodable(password) {
		return "", false
	}
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password)), true
}

func encodable(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}
