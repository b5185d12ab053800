package ports

import (
	"context"

	"chartWizard/internal/domain"
)

// InstrumentRepository defines the interface for storing instrument metadata.
type InstrumentRepository interface {
	// Upsert inserts or updates a batch of instruments.
	Upsert(ctx context.Context, instruments []domain.Instrument) error
	// FindByKey returns the instrument for a symbol key, or nil if not found.
	FindByKey(ctx context.Context, key string) (*domain.Instrument, error)
	// All returns every stored instrument.
	All(ctx context.Context) ([]domain.Instrument, error)
}
