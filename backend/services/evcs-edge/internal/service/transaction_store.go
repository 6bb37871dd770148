package service

import (
	"sync"
	"time"
)

// TransactionContext keeps runtime info for a transaction.
type TransactionContext struct {
	ID          int
	StationID   string
	ConnectorID int
	ComponentID string
	IdTag       string
	MeterStart  int64
	StartedAt   time.Time
}

// TransactionStore hands out transaction ids and keeps running transactions.
type TransactionStore struct {
	mu     sync.RWMutex
	nextID int
	data   map[int]TransactionContext
}

// NewTransactionStore returns initialized store.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{
		nextID: 1,
		data:   make(map[int]TransactionContext),
	}
}

// Start assigns an id to ctx and stores it.
func (s *TransactionStore) Start(ctx TransactionContext) TransactionContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx.ID = s.nextID
	s.nextID++
	s.data[ctx.ID] = ctx
	return ctx
}

// Get returns context and bool.
func (s *TransactionStore) Get(txID int) (TransactionContext, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, ok := s.data[txID]
	return ctx, ok
}

// Active returns the running transaction of a connector.
func (s *TransactionStore) Active(stationID string, connectorID int) (TransactionContext, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ctx := range s.data {
		if ctx.StationID == stationID && ctx.ConnectorID == connectorID {
			return ctx, true
		}
	}
	return TransactionContext{}, false
}

// Delete removes transaction context.
func (s *TransactionStore) Delete(txID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, txID)
}
