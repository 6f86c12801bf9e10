// Package memory keeps the tracker document in process. It backs local runs
// and tests; nothing survives a restart.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"tally/internal/core"
	ports "tally/internal/sheets"
)

// SeedFile is the document read by NewFromDir.
const SeedFile = "seed.json"

type Store struct {
	mu    sync.RWMutex
	doc   core.Document
	saves int
}

var _ ports.DocumentStore = (*Store)(nil)

// New returns a store holding a copy of doc.
func New(doc core.Document) *Store {
	return &Store{doc: doc.Clone()}
}

// NewFromDir seeds the store from <dir>/seed.json. A missing file gives an
// empty document; a malformed one is an error.
func NewFromDir(dir string) (*Store, error) {
	empty := core.Document{Budgets: []core.BudgetEntry{}, Transactions: []core.Transaction{}}
	if dir == "" {
		return New(empty), nil
	}
	b, err := os.ReadFile(filepath.Join(dir, SeedFile))
	if errors.Is(err, os.ErrNotExist) {
		return New(empty), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var doc core.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode seed %s: %w", SeedFile, err)
	}
	return New(doc), nil
}

func (s *Store) Load(_ context.Context) (core.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone(), nil
}

func (s *Store) Save(_ context.Context, doc core.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc.Clone()
	s.saves++
	return nil
}

// Saves reports how many times Save has been called.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
