// Package messages is the durable append-only chat log.
package messages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/chatrelay/internal/common"
	"github.com/dmitrijs2005/chatrelay/internal/logging"
	"github.com/dmitrijs2005/chatrelay/internal/server/models"
	"github.com/dmitrijs2005/chatrelay/internal/server/storage"
)

// DocumentKey is the storage key of the message log document.
const DocumentKey = "messages"

// Log assigns ids 1..N in append order under a single mutex and persists the
// whole log before an append becomes visible.
type Log struct {
	mu     sync.RWMutex
	msgs   []models.Message
	store  storage.Store
	maxLen int
	logger logging.Logger
	now    func() time.Time
}

// New loads the log from st. maxLen is the maximum message length in runes.
func New(ctx context.Context, st storage.Store, maxLen int, logger logging.Logger) (*Log, error) {
	l := &Log{
		store:  st,
		maxLen: maxLen,
		logger: logger.With("module", "messages"),
		now:    time.Now,
	}

	data, err := st.Load(ctx, DocumentKey)
	switch {
	case errors.Is(err, common.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load messages: %w", err)
	default:
		if err := json.Unmarshal(data, &l.msgs); err != nil {
			return nil, fmt.Errorf("decode messages: %w", err)
		}
		for i, m := range l.msgs {
			if m.ID != int64(i+1) {
				return nil, fmt.Errorf("message log corrupt: position %d has id %d", i+1, m.ID)
			}
		}
	}

	l.logger.Info(ctx, "message log loaded", "messages", len(l.msgs))
	return l, nil
}

// Normalize trims text and checks it against the message rules without
// appending anything.
func (l *Log) Normalize(text string) (string, error) {
	if !utf8.ValidString(text) {
		return "", common.ErrMalformedEnvelope
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", common.ErrEmptyMessage
	}
	if l.maxLen > 0 && utf8.RuneCountInString(text) > l.maxLen {
		return "", common.ErrMessageTooLong
	}
	return text, nil
}

// Append validates text, assigns the next id and a timestamp no earlier than
// the previous message's, and persists the log. On a persistence failure the
// log is unchanged and the error is returned.
func (l *Log) Append(ctx context.Context, sender, text string) (models.Message, error) {
	text, err := l.Normalize(text)
	if err != nil {
		return models.Message{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	msg := models.Message{
		ID:        1,
		From:      sender,
		Text:      text,
		Timestamp: l.now().Unix(),
	}
	if n := len(l.msgs); n > 0 {
		last := l.msgs[n-1]
		msg.ID = last.ID + 1
		msg.Timestamp = max(msg.Timestamp, last.Timestamp)
	}

	next := append(slices.Clip(l.msgs), msg)

	data, err := json.Marshal(next)
	if err != nil {
		return models.Message{}, fmt.Errorf("encode messages: %w", err)
	}
	if err := l.store.Save(ctx, DocumentKey, data); err != nil {
		l.logger.Error(ctx, "persisting messages failed", "error", err)
		return models.Message{}, fmt.Errorf("save messages: %w", err)
	}

	l.msgs = next
	return msg, nil
}

// ReadAll returns a copy of the log, oldest first.
func (l *Log) ReadAll(_ context.Context) []models.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.msgs)
}

// After returns the messages whose id is greater than id, oldest first.
func (l *Log) After(id int64) []models.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i := sort.Search(len(l.msgs), func(i int) bool { return l.msgs[i].ID > id })
	out := make([]models.Message, len(l.msgs)-i)
	copy(out, l.msgs[i:])
	return out
}

// Len returns the number of messages.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.msgs)
}
