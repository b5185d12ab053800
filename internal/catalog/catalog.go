// Package catalog keeps instrument metadata in memory so the chart core can
// resolve symbol keys without touching the database from its event loop.
package catalog

import (
	"context"
	"fmt"
	"sync"

	"chartWizard/internal/domain"
	"chartWizard/internal/ports"
)

// Catalog is an in-memory instrument index backed by a repository.
// It implements ports.InstrumentResolver.
type Catalog struct {
	mu          sync.RWMutex
	instruments map[string]domain.Instrument
	repo        ports.InstrumentRepository
	logger      ports.Logger
}

// New creates an empty catalog. repo may be nil for a purely in-memory catalog.
func New(repo ports.InstrumentRepository, logger ports.Logger) (*Catalog, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for instrument catalog")
	}
	return &Catalog{
		instruments: make(map[string]domain.Instrument),
		repo:        repo,
		logger:      logger,
	}, nil
}

// Load replaces the in-memory index with the repository contents.
func (c *Catalog) Load(ctx context.Context) error {
	if c.repo == nil {
		return nil
	}
	instruments, err := c.repo.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load instruments: %w", err)
	}

	index := make(map[string]domain.Instrument, len(instruments))
	for _, inst := range instruments {
		index[inst.Key()] = inst
	}

	c.mu.Lock()
	c.instruments = index
	c.mu.Unlock()

	c.logger.Info(ctx, "Instrument catalog loaded", map[string]interface{}{"count": len(index)})
	return nil
}

// Sync pulls the instrument list from src, persists it and refreshes the index.
// It returns the number of instruments received.
func (c *Catalog) Sync(ctx context.Context, src ports.InstrumentSource) (int, error) {
	op := "Sync"
	instruments, err := src.ListInstruments(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to list instruments: %w", op, err)
	}
	if c.repo != nil {
		if err := c.repo.Upsert(ctx, instruments); err != nil {
			return 0, fmt.Errorf("%s: failed to persist instruments: %w", op, err)
		}
	}

	c.mu.Lock()
	for _, inst := range instruments {
		c.instruments[inst.Key()] = inst
	}
	total := len(c.instruments)
	c.mu.Unlock()

	c.logger.Info(ctx, "Instrument catalog synchronized", map[string]interface{}{"received": len(instruments), "total": total})
	return len(instruments), nil
}

// Put adds or replaces a single instrument in memory only.
func (c *Catalog) Put(inst domain.Instrument) {
	c.mu.Lock()
	c.instruments[inst.Key()] = inst
	c.mu.Unlock()
}

// ResolveInstrument returns the instrument registered under symbol.
func (c *Catalog) ResolveInstrument(symbol string) (domain.Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.instruments[symbol]
	return inst, ok
}

// Len returns the number of known instruments.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.instruments)
}
