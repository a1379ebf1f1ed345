// Package export writes the per-run output files: stocks.json, stocks.csv
// and metadata.json. Every file is replaced atomically so readers never see
// a partially written snapshot.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/consensus/internal/domain"
	"github.com/aristath/consensus/internal/reconcile"
)

const (
	StocksJSON   = "stocks.json"
	StocksCSV    = "stocks.csv"
	MetadataJSON = "metadata.json"
)

// Document is the content of stocks.json
type Document struct {
	LastUpdated time.Time                  `json:"last_updated"`
	TotalStocks int                        `json:"total_stocks"`
	Stats       reconcile.Stats            `json:"stats"`
	Stocks      []domain.CanonicalSecurity `json:"stocks"`
}

// Metadata is the content of metadata.json
type Metadata struct {
	LastUpdated     time.Time        `json:"last_updated"`
	RunID           string           `json:"run_id"`
	Status          domain.RunStatus `json:"status"`
	TotalStocks     int              `json:"total_stocks"`
	DataromaTickers int              `json:"dataroma_tickers"`
	SubstackTickers int              `json:"substack_tickers"`
	StaleTickers    int              `json:"stale_tickers"`
	MeanAbsMove     float64          `json:"mean_abs_move_pct"`
	MedianAbsMove   float64          `json:"median_abs_move_pct"`
	Alerts          int              `json:"alerts"`
}

// NewDocument sorts the securities by ticker and computes the stats block
func NewDocument(secs []domain.CanonicalSecurity, now time.Time) Document {
	sorted := make([]domain.CanonicalSecurity, len(secs))
	copy(sorted, secs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ticker < sorted[j].Ticker })

	return Document{
		LastUpdated: now.UTC(),
		TotalStocks: len(sorted),
		Stats:       reconcile.Summarize(sorted),
		Stocks:      sorted,
	}
}

// NewMetadata derives the metadata block of a document
func NewMetadata(doc Document, runID string, status domain.RunStatus, alerts int) Metadata {
	return Metadata{
		LastUpdated:     doc.LastUpdated,
		RunID:           runID,
		Status:          status,
		TotalStocks:     doc.TotalStocks,
		DataromaTickers: doc.Stats.HoldingsStocks,
		SubstackTickers: doc.Stats.MentionsStocks,
		StaleTickers:    doc.Stats.Stale,
		MeanAbsMove:     doc.Stats.MeanAbsMove,
		MedianAbsMove:   doc.Stats.MedianAbsMove,
		Alerts:          alerts,
	}
}

// Writer writes output files into a directory
type Writer struct {
	dir string
	log zerolog.Logger
}

// NewWriter creates a writer for dir
func NewWriter(dir string, log zerolog.Logger) *Writer {
	return &Writer{
		dir: dir,
		log: log.With().Str("component", "export").Logger(),
	}
}

// Path returns the location of an output file
func (w *Writer) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// Write replaces all three output files
func (w *Writer) Write(doc Document, meta Metadata) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := writeAtomic(w.Path(StocksJSON), func(out io.Writer) error {
		return encodeJSON(out, doc)
	}); err != nil {
		return fmt.Errorf("failed to write %s: %w", StocksJSON, err)
	}

	if err := writeAtomic(w.Path(StocksCSV), func(out io.Writer) error {
		return WriteCSV(out, doc.Stocks)
	}); err != nil {
		return fmt.Errorf("failed to write %s: %w", StocksCSV, err)
	}

	if err := writeAtomic(w.Path(MetadataJSON), func(out io.Writer) error {
		return encodeJSON(out, meta)
	}); err != nil {
		return fmt.Errorf("failed to write %s: %w", MetadataJSON, err)
	}

	w.log.Info().
		Str("dir", w.dir).
		Int("stocks", doc.TotalStocks).
		Msg("Wrote output files")
	return nil
}

// LoadPrevious reads the last written stocks.json. A missing file returns
// domain.ErrNotFound.
func (w *Writer) LoadPrevious() (*Document, error) {
	data, err := os.ReadFile(w.Path(StocksJSON))
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read previous output: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode previous output: %w", err)
	}
	return &doc, nil
}

func encodeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// writeAtomic writes to a temp file in the target directory and renames it
// over path once fully synced.
func writeAtomic(path string, fill func(io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = fill(tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
