// Package csvhistory serves historical bars from CSV files on disk, as
// written by the fetch_bars command.
package csvhistory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"chartWizard/internal/domain"
	"chartWizard/internal/ports"
	"chartWizard/internal/utils"
)

// Source implements ports.BarHistorySource over a directory of bar files.
type Source struct {
	dir    string
	logger ports.Logger
}

// New creates a CSV history source rooted at dir.
func New(dir string, logger ports.Logger) (*Source, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for CSV history source")
	}
	if dir == "" {
		return nil, fmt.Errorf("%w: history directory is empty", ports.ErrConfigurationError)
	}
	return &Source{dir: dir, logger: logger}, nil
}

// FetchBars returns the stored bars of req.Symbol whose bucket starts within [req.Start, req.End].
// A missing file yields no bars.
func (s *Source) FetchBars(ctx context.Context, req domain.HistoryRequest) ([]domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filename := filepath.Join(s.dir, utils.BarFileName(req.Symbol, req.Interval))
	bars, err := utils.ReadBarsFromCSV(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Debug(ctx, "No history file for symbol", map[string]interface{}{"symbol": req.Symbol, "file": filename})
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history for %s: %w", req.Symbol, err)
	}

	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if b.BucketStart.Before(req.Start) || b.BucketStart.After(req.End) {
			continue
		}
		b.Symbol = req.Symbol
		out = append(out, b)
	}
	s.logger.Debug(ctx, "Loaded history from CSV", map[string]interface{}{"symbol": req.Symbol, "file": filename, "bars": len(out)})
	return out, nil
}
