// Package cache provides the request-scoped content store. Actions park
// large payloads here instead of flooding conversation history; the model
// sees a short preview with a retrieval key and pulls the full content back
// through the fetch_from_cache action only when it needs it.
//
// Entries are grouped by scope (normally the request ID) so one request's
// leftovers can be swept without touching concurrent runs.
package cache

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/juniperhq/agentloop/logging"
)

// ErrNotFound is returned by Fetch when the key does not exist in the scope
// or its entry has expired.
var ErrNotFound = errors.New("cache: key not found")

const (
	// DefaultMaxChars caps stored content length. Oversized payloads are
	// clamped, not rejected: a truncated document is more useful to the
	// model than an error.
	DefaultMaxChars = 15000

	// DefaultTTL bounds entry lifetime inside a scope. Requests rarely live
	// this long; the TTL is a backstop against scopes that are never swept.
	DefaultTTL = time.Hour
)

type entry struct {
	content   string
	createdAt time.Time
	ttl       time.Duration
}

func (e entry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.createdAt) > e.ttl
}

// Options configures a Store.
type Options struct {
	// MaxChars clamps stored content length. Zero means DefaultMaxChars.
	MaxChars int
	// PreviewThreshold is the content length above which PutWithPreview
	// caches instead of inlining. Zero means DefaultPreviewThreshold.
	PreviewThreshold int
	// TTL is applied to every entry. Zero means DefaultTTL; negative
	// disables expiry.
	TTL time.Duration
	// Logger receives clamp warnings. Defaults to a no-op logger.
	Logger logging.Logger
}

// Store is an in-memory, scope-partitioned content cache. Safe for
// concurrent use.
type Store struct {
	mu               sync.RWMutex
	scopes           map[string]map[string]entry
	maxChars         int
	previewThreshold int
	ttl              time.Duration
	logger           logging.Logger
	now              func() time.Time
}

// NewStore creates an empty store.
func NewStore(optFns ...func(o *Options)) *Store {
	opts := Options{
		MaxChars: DefaultMaxChars,
		TTL:      DefaultTTL,
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	if opts.PreviewThreshold <= 0 {
		opts.PreviewThreshold = DefaultPreviewThreshold
	}
	if opts.TTL == 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Store{
		scopes:           make(map[string]map[string]entry),
		maxChars:         opts.MaxChars,
		previewThreshold: opts.PreviewThreshold,
		ttl:              opts.TTL,
		logger:           opts.Logger,
		now:              time.Now,
	}
}

// Put stores content under key within scope, clamping it to the configured
// maximum length. It returns the length actually stored.
func (s *Store) Put(scope, key, content string) int {
	if len(content) > s.maxChars {
		s.logger.Warn("cache content clamped",
			"scope", scope, "key", key,
			"original_len", len(content), "max_chars", s.maxChars)
		content = truncateToRune(content, s.maxChars)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	keys, ok := s.scopes[scope]
	if !ok {
		keys = make(map[string]entry)
		s.scopes[scope] = keys
	}
	keys[key] = entry{content: content, createdAt: s.now(), ttl: s.ttl}
	return len(content)
}

// Fetch returns the content stored under key within scope, or ErrNotFound.
// Expired entries are removed on access.
func (s *Store) Fetch(scope, key string) (string, error) {
	s.mu.RLock()
	e, ok := s.scopes[scope][key]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q in scope %q", ErrNotFound, key, scope)
	}
	if e.expired(s.now()) {
		s.mu.Lock()
		delete(s.scopes[scope], key)
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %q in scope %q", ErrNotFound, key, scope)
	}
	return e.content, nil
}

// Keys returns the live keys within scope, sorted.
func (s *Store) Keys(scope string) []string {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.scopes[scope]))
	for k, e := range s.scopes[scope] {
		if !e.expired(now) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// CleanupScope drops every entry within scope. Call when the request that
// owns the scope finishes.
func (s *Store) CleanupScope(scope string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scopes, scope)
}

// truncateToRune cuts s to at most n bytes, backing up so a multi-byte
// rune is never split.
func truncateToRune(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// NewKey builds a fresh cache key: the prefix joined to a short random
// suffix, e.g. "chat_context_req42_1a2b3c4d".
func NewKey(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	if prefix == "" {
		return suffix
	}
	return prefix + "_" + suffix
}
