// Package sessions binds issued session tokens to usernames.
//
// Policy: a user may hold any number of concurrent sessions. Every successful
// register or login issues a new token and never revokes older ones. Tokens
// go away on explicit logout (Revoke), on RevokeAll, or when they expire and
// the reaper drops them.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/chatrelay/internal/common"
	"github.com/dmitrijs2005/chatrelay/internal/logging"
	"github.com/dmitrijs2005/chatrelay/internal/server/auth"
	"github.com/dmitrijs2005/chatrelay/internal/server/models"
	"github.com/dmitrijs2005/chatrelay/internal/server/storage"
)

// DocumentKey is the storage key of the sessions document.
const DocumentKey = "sessions"

// idBytes gives 128 bits of entropy per session id.
const idBytes = 16

type Registry struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
	store    storage.Store
	secret   []byte
	ttl      time.Duration
	logger   logging.Logger
	now      func() time.Time
}

// New loads persisted sessions from st, dropping the ones already expired.
func New(ctx context.Context, st storage.Store, secret []byte, ttl time.Duration, logger logging.Logger) (*Registry, error) {
	if len(secret) == 0 {
		return nil, errors.New("session secret is empty")
	}
	if ttl <= 0 {
		return nil, errors.New("session ttl must be positive")
	}

	r := &Registry{
		sessions: make(map[string]models.Session),
		store:    st,
		secret:   secret,
		ttl:      ttl,
		logger:   logger.With("module", "sessions"),
		now:      time.Now,
	}

	data, err := st.Load(ctx, DocumentKey)
	switch {
	case errors.Is(err, common.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load sessions: %w", err)
	default:
		var list []models.Session
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("decode sessions: %w", err)
		}
		now := r.now()
		for _, s := range list {
			if !s.Expired(now) {
				r.sessions[s.ID] = s
			}
		}
	}

	r.logger.Info(ctx, "session registry loaded", "sessions", len(r.sessions))
	return r, nil
}

// persist writes next and, on success, makes it the live set. Callers hold mu.
func (r *Registry) persist(ctx context.Context, next map[string]models.Session) error {
	list := make([]models.Session, 0, len(next))
	for _, s := range next {
		list = append(list, s)
	}

	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}
	if err := r.store.Save(ctx, DocumentKey, data); err != nil {
		r.logger.Error(ctx, "persisting sessions failed", "error", err)
		return fmt.Errorf("save sessions: %w", err)
	}

	r.sessions = next
	return nil
}

// Issue creates a session for username and returns its signed token.
func (r *Registry) Issue(ctx context.Context, username string) (string, error) {
	id, err := common.MakeRandHexString(idBytes)
	if err != nil {
		return "", fmt.Errorf("session id: %w", err)
	}

	now := r.now()
	s := models.Session{
		ID:        id,
		Username:  username,
		CreatedAt: now.UTC(),
		ExpiresAt: now.Add(r.ttl).UTC(),
	}

	token, err := auth.GenerateToken(s.ID, s.Username, r.secret, s.CreatedAt, s.ExpiresAt)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := maps.Clone(r.sessions)
	next[s.ID] = s
	if err := r.persist(ctx, next); err != nil {
		return "", err
	}

	r.logger.Debug(ctx, "session issued", "user", username, "session", id)
	return token, nil
}

// Resolve returns the username bound to token if its signature verifies and
// the session is still registered and unexpired.
func (r *Registry) Resolve(_ context.Context, token string) (string, bool) {
	id, username, err := auth.ParseToken(token, r.secret)
	if err != nil {
		return "", false
	}

	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok || s.Username != username || s.Expired(r.now()) {
		return "", false
	}
	return s.Username, true
}

// Revoke removes the session behind token. Revoking an unknown session is a
// no-op; a token that does not verify yields common.ErrInvalidToken.
func (r *Registry) Revoke(ctx context.Context, token string) error {
	id, _, err := auth.ParseToken(token, r.secret)
	if err != nil {
		return common.ErrInvalidToken
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return nil
	}

	next := maps.Clone(r.sessions)
	delete(next, id)
	return r.persist(ctx, next)
}

// RevokeAll removes every session of username.
func (r *Registry) RevokeAll(ctx context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := maps.Clone(r.sessions)
	maps.DeleteFunc(next, func(_ string, s models.Session) bool {
		return strings.EqualFold(s.Username, username)
	})
	if len(next) == len(r.sessions) {
		return nil
	}
	return r.persist(ctx, next)
}

// Reap drops expired sessions and returns how many were removed.
func (r *Registry) Reap(ctx context.Context) (int, error) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	next := maps.Clone(r.sessions)
	maps.DeleteFunc(next, func(_ string, s models.Session) bool {
		return s.Expired(now)
	})

	removed := len(r.sessions) - len(next)
	if removed == 0 {
		return 0, nil
	}
	if err := r.persist(ctx, next); err != nil {
		return 0, err
	}
	return removed, nil
}

// Run reaps expired sessions every ttl/2 until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	interval := r.ttl / 2
	if interval <= 0 {
		interval = r.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.Reap(ctx)
			if err != nil {
				r.logger.Warn(ctx, "session reap failed", "error", err)
				continue
			}
			if n > 0 {
				r.logger.Info(ctx, "expired sessions reaped", "count", n)
			}
		}
	}
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
