// Package storagetest provides storage doubles for tests of the durable
// stores.
package storagetest

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/dmitrijs2005/chatrelay/internal/server/storage"
)

// ErrInjected is returned by a Flaky store while failures are switched on.
var ErrInjected = errors.New("injected storage failure")

// Flaky wraps an in-memory store and can be told to fail every Save.
type Flaky struct {
	*storage.Memory
	failSave atomic.Bool
	saves    atomic.Int64
}

func NewFlaky() *Flaky {
	return &Flaky{Memory: storage.NewMemory()}
}

// FailSaves switches Save failures on or off.
func (f *Flaky) FailSaves(on bool) { f.failSave.Store(on) }

// Saves returns how many Save calls succeeded.
func (f *Flaky) Saves() int64 { return f.saves.Load() }

func (f *Flaky) Save(ctx context.Context, key string, data []byte) error {
	if f.failSave.Load() {
		return ErrInjected
	}
	if err := f.Memory.Save(ctx, key, data); err != nil {
		return err
	}
	f.saves.Add(1)
	return nil
}
