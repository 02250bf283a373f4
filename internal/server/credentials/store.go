// Package credentials is the durable table of registered users. Passwords
// are stored as argon2id hashes keyed with a per-user random salt.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/chatrelay/internal/common"
	"github.com/dmitrijs2005/chatrelay/internal/cryptox"
	"github.com/dmitrijs2005/chatrelay/internal/logging"
	"github.com/dmitrijs2005/chatrelay/internal/server/models"
	"github.com/dmitrijs2005/chatrelay/internal/server/storage"
)

// DocumentKey is the storage key of the users document.
const DocumentKey = "users"

// MaxPasswordLength bounds the bytes fed to the password hash.
const MaxPasswordLength = 1024

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,32}$`)

// ValidateUsername checks the username syntax.
func ValidateUsername(username string) error {
	if !usernameRe.MatchString(username) {
		return common.ErrInvalidUsername
	}
	return nil
}

func key(username string) string {
	return strings.ToLower(username)
}

type Store struct {
	mu     sync.RWMutex
	users  map[string]models.User
	store  storage.Store
	hasher *cryptox.Hasher
	logger logging.Logger
	now    func() time.Time
}

// New loads the users document from st. A missing document means no users.
func New(ctx context.Context, st storage.Store, hasher *cryptox.Hasher, logger logging.Logger) (*Store, error) {
	s := &Store{
		users:  make(map[string]models.User),
		store:  st,
		hasher: hasher,
		logger: logger.With("module", "credentials"),
		now:    time.Now,
	}

	data, err := st.Load(ctx, DocumentKey)
	switch {
	case errors.Is(err, common.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load users: %w", err)
	default:
		if err := json.Unmarshal(data, &s.users); err != nil {
			return nil, fmt.Errorf("decode users: %w", err)
		}
	}

	s.logger.Info(ctx, "credential store loaded", "users", len(s.users))
	return s, nil
}

// Register creates a user. The username must be unused in any letter case.
// The users document is persisted before the new record becomes visible; if
// that fails the table is left unchanged and the error is returned.
func (s *Store) Register(ctx context.Context, username, password string) (*models.User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if password == "" || len(password) > MaxPasswordLength {
		return nil, common.ErrInvalidPassword
	}

	pw := []byte(password)
	salt := cryptox.NewSalt()
	hash := s.hasher.Hash(salt, pw)
	common.WipeByteArray(pw)

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(username)
	if _, ok := s.users[k]; ok {
		return nil, common.ErrAlreadyExists
	}

	user := models.User{
		Username:  username,
		Salt:      salt,
		Hash:      hash,
		CreatedAt: s.now().UTC(),
	}

	next := maps.Clone(s.users)
	if next == nil {
		next = make(map[string]models.User, 1)
	}
	next[k] = user

	data, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("encode users: %w", err)
	}
	if err := s.store.Save(ctx, DocumentKey, data); err != nil {
		s.logger.Error(ctx, "persisting users failed", "error", err)
		return nil, fmt.Errorf("save users: %w", err)
	}

	s.users = next
	s.logger.Info(ctx, "user registered", "user", username)
	return &user, nil
}

// Verify reports whether password matches the stored hash of username. An
// unknown username returns false right away; a known one is always compared
// in full with a constant-time comparison.
func (s *Store) Verify(_ context.Context, username, password string) bool {
	s.mu.RLock()
	user, ok := s.users[key(username)]
	s.mu.RUnlock()

	if !ok {
		return false
	}

	pw := []byte(password)
	defer common.WipeByteArray(pw)

	return s.hasher.Verify(user.Salt, user.Hash, pw)
}

// Lookup returns the username in the form it was registered with.
func (s *Store) Lookup(username string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[key(username)]
	if !ok {
		return "", false
	}
	return user.Username, true
}

// Count returns the number of registered users.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
