package voucher

import (
	"context"
	"fmt"
	"sync"

	"storefront/internal/model"
	"storefront/internal/repository"

	"github.com/rs/zerolog"
)

// ImportResult summarises one catalogue import.
type ImportResult struct {
	Files    int
	Loaded   int
	Inserted int64
}

// Importer seeds the voucher catalogue from files at start-up.
type Importer struct {
	loader Loader
	repo   repository.VoucherRepository
	logger zerolog.Logger
}

// NewImporter creates an Importer that reads files through loader.
func NewImporter(loader Loader, repo repository.VoucherRepository, logger zerolog.Logger) *Importer {
	return &Importer{
		loader: loader,
		repo:   repo,
		logger: logger.With().Str("component", "voucher-importer").Logger(),
	}
}

// Import loads all files concurrently and inserts vouchers whose code is new.
// Any file failing to load aborts the import before anything is written.
func (im *Importer) Import(ctx context.Context, files []string) (ImportResult, error) {
	im.logger.Info().Int("file_count", len(files)).Msg("importing voucher catalogue")

	type loadResult struct {
		index    int
		vouchers []model.Voucher
		err      error
	}

	resultChan := make(chan loadResult, len(files))
	var wg sync.WaitGroup

	for i, path := range files {
		wg.Add(1)
		go func(index int, path string) {
			defer wg.Done()
			vouchers, err := im.loader.Load(ctx, path)
			resultChan <- loadResult{index: index, vouchers: vouchers, err: err}
		}(i, path)
	}

	wg.Wait()
	close(resultChan)

	results := make([]loadResult, len(files))
	for r := range resultChan {
		results[r.index] = r
	}

	// Later files never override a code seen in an earlier one.
	seen := make(map[string]struct{})
	var all []model.Voucher
	for i, r := range results {
		if r.err != nil {
			im.logger.Error().Err(r.err).Str("file", files[i]).Msg("failed to load voucher file")
			return ImportResult{}, fmt.Errorf("failed to load voucher file %s: %w", files[i], r.err)
		}
		for _, v := range r.vouchers {
			if _, dup := seen[v.Code]; dup {
				continue
			}
			seen[v.Code] = struct{}{}
			all = append(all, v)
		}
	}

	inserted, err := im.repo.InsertVouchers(ctx, all)
	if err != nil {
		return ImportResult{}, fmt.Errorf("failed to store vouchers: %w", err)
	}

	res := ImportResult{Files: len(files), Loaded: len(all), Inserted: inserted}
	im.logger.Info().
		Int("files", res.Files).
		Int("loaded", res.Loaded).
		Int64("inserted", res.Inserted).
		Msg("voucher catalogue imported")
	return res, nil
}
