// Package ledger is the single owner of HoldingRecord state: the durable list
// of held tokens plus the per-run processed set.
package ledger

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/betbot/nadsniper/internal/domain"
)

// Store persists the whole holdings collection.
type Store interface {
	Load() ([]domain.HoldingRecord, error)
	Save(records []domain.HoldingRecord) error
}

// Ledger owns the holding records and the per-run processed set. Safe for concurrent use.
type Ledger struct {
	mu        sync.RWMutex
	store     Store
	records   []domain.HoldingRecord
	processed map[string]struct{}
	log       logrus.FieldLogger
}

// Open loads the existing records. A missing file yields an empty ledger; a
// corrupt one is an error.
func Open(store Store, log logrus.FieldLogger) (*Ledger, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	records, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	for i := range records {
		records[i] = records[i].Canonical()
	}
	return &Ledger{
		store:     store,
		records:   records,
		processed: make(map[string]struct{}),
		log:       log,
	}, nil
}

// Add appends rec unless (contract, wallet) is already held, persists, and
// marks the contract processed. A persist failure is logged and returned but
// the in-memory state keeps the record.
func (l *Ledger) Add(rec domain.HoldingRecord) error {
	rec = rec.Canonical()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.processed[rec.ContractAddress] = struct{}{}
	for _, r := range l.records {
		if r.Matches(rec.ContractAddress, rec.WalletAddress) {
			return nil
		}
	}
	l.records = append(l.records, rec)
	return l.persistLocked()
}

// Remove drops the record for (address, wallet), case-insensitively.
func (l *Ledger) Remove(address, wallet string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.records[:0:0]
	for _, r := range l.records {
		if !r.Matches(address, wallet) {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(l.records) {
		return nil
	}
	l.records = kept
	return l.persistLocked()
}

func (l *Ledger) persistLocked() error {
	snapshot := make([]domain.HoldingRecord, len(l.records))
	copy(snapshot, l.records)
	if err := l.store.Save(snapshot); err != nil {
		l.log.WithError(err).Error("ledger: persist failed, keeping in-memory state")
		return fmt.Errorf("persist ledger: %w", err)
	}
	return nil
}

func (l *Ledger) ByWallet(wallet string) []domain.HoldingRecord {
	w := domain.CanonicalAddress(wallet)
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.HoldingRecord
	for _, r := range l.records {
		if r.WalletAddress == w {
			out = append(out, r)
		}
	}
	return out
}

// Has reports whether any wallet holds address.
func (l *Ledger) Has(address string) bool {
	a := domain.CanonicalAddress(address)
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, r := range l.records {
		if r.ContractAddress == a {
			return true
		}
	}
	return false
}

func (l *Ledger) MarkProcessed(address string) {
	l.mu.Lock()
	l.processed[domain.CanonicalAddress(address)] = struct{}{}
	l.mu.Unlock()
}

func (l *Ledger) IsProcessed(address string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.processed[domain.CanonicalAddress(address)]
	return ok
}

func (l *Ledger) All() []domain.HoldingRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.HoldingRecord, len(l.records))
	copy(out, l.records)
	return out
}

func (l *Ledger) ProcessedCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.processed)
}
