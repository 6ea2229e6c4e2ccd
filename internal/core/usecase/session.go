package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kirillkom/knowledge-search/internal/core/domain"
	"github.com/kirillkom/knowledge-search/internal/core/ports"
)

const DefaultSessionCapacity = 1024

// SearchSession runs queries with last-query-wins semantics: starting a new
// query cancels the previous one, and a response that is no longer the latest
// is discarded with ErrStaleQuery.
type SearchSession struct {
	searcher ports.SearchService

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

func NewSearchSession(searcher ports.SearchService) *SearchSession {
	return &SearchSession{searcher: searcher}
}

func (s *SearchSession) Search(ctx context.Context, query domain.QuerySpec) (*domain.SearchResponse, error) {
	queryCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.seq++
	id := s.seq
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	resp, err := s.searcher.Search(queryCtx, query)

	s.mu.Lock()
	latest := id == s.seq
	if latest {
		s.cancel = nil
	}
	s.mu.Unlock()

	if !latest {
		slog.Debug("search_discarded_stale", "query_id", id)
		return nil, domain.WrapError(domain.ErrStaleQuery, "search", fmt.Errorf("query %d superseded", id))
	}
	if err != nil {
		return nil, err
	}
	resp.QueryID = id
	return resp, nil
}

// Latest returns the sequence number of the most recently started query.
func (s *SearchSession) Latest() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// SessionRegistry keeps one SearchSession per client key. Least recently used
// sessions are evicted once capacity is reached.
type SessionRegistry struct {
	searcher ports.SearchService

	mu       sync.Mutex
	sessions *lru.Cache[string, *SearchSession]
}

func NewSessionRegistry(searcher ports.SearchService, capacity int) (*SessionRegistry, error) {
	if capacity <= 0 {
		capacity = DefaultSessionCapacity
	}
	sessions, err := lru.New[string, *SearchSession](capacity)
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	return &SessionRegistry{searcher: searcher, sessions: sessions}, nil
}

// SearchInSession runs the query in the session bound to key. An empty key
// bypasses sessions entirely.
func (r *SessionRegistry) SearchInSession(ctx context.Context, key string, query domain.QuerySpec) (*domain.SearchResponse, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return r.searcher.Search(ctx, query)
	}
	return r.session(key).Search(ctx, query)
}

func (r *SessionRegistry) session(key string) *SearchSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions.Get(key); ok {
		return s
	}
	s := NewSearchSession(r.searcher)
	r.sessions.Add(key, s)
	return s
}

func (r *SessionRegistry) Len() int {
	return r.sessions.Len()
}

// IsStale reports whether err means the query was superseded.
func IsStale(err error) bool {
	return errors.Is(err, domain.ErrStaleQuery)
}
