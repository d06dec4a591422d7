package voucher

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"storefront/internal/model"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// record is one line of a catalogue file.
type record struct {
	Code          string            `json:"code"`
	Type          model.VoucherType `json:"type"`
	Value         decimal.Decimal   `json:"value"`
	Quantity      int               `json:"quantity"`
	MinOrderValue decimal.Decimal   `json:"min_order_value"`
	StartDate     time.Time         `json:"start_date"`
	EndDate       time.Time         `json:"end_date"`
	Disabled      bool              `json:"disabled"`
}

func (r record) validate() error {
	switch {
	case r.Code == "":
		return fmt.Errorf("code is required")
	case r.Type != model.VoucherFixed && r.Type != model.VoucherPercent:
		return fmt.Errorf("unknown type %q", r.Type)
	case r.Value.IsNegative():
		return fmt.Errorf("value must not be negative")
	case r.Type == model.VoucherPercent && r.Value.GreaterThan(decimal.NewFromInt(100)):
		return fmt.Errorf("percent value must not exceed 100")
	case r.Quantity < 0:
		return fmt.Errorf("quantity must not be negative")
	case !r.StartDate.Before(r.EndDate):
		return fmt.Errorf("start_date must be before end_date")
	}
	return nil
}

func (r record) voucher() model.Voucher {
	return model.Voucher{
		Code:              r.Code,
		Type:              r.Type,
		Value:             r.Value,
		AvailableQuantity: r.Quantity,
		MinOrderValue:     r.MinOrderValue,
		StartDate:         r.StartDate.UTC(),
		EndDate:           r.EndDate.UTC(),
		Disabled:          r.Disabled,
	}
}

// decodeCatalogue reads gzipped JSON lines from r. Malformed or invalid lines
// are logged and skipped.
func decodeCatalogue(ctx context.Context, r io.Reader, source string, logger zerolog.Logger) ([]model.Voucher, error) {
	gzipReader, err := gzip.NewReader(r)
	if err != nil {
		logger.Error().Err(err).Str("source", source).Msg("failed to create gzip reader")
		return nil, fmt.Errorf("failed to create gzip reader for %s: %w", source, err)
	}
	defer gzipReader.Close()

	scanner := bufio.NewScanner(gzipReader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		vouchers []model.Voucher
		lineNo   int
		skipped  int
	)
	for scanner.Scan() {
		lineNo++
		if lineNo%10_000 == 0 {
			select {
			case <-ctx.Done():
				logger.Warn().Str("source", source).Msg("voucher loading cancelled")
				return nil, ctx.Err()
			default:
			}
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			skipped++
			logger.Warn().Err(err).Str("source", source).Int("line", lineNo).Msg("skipping malformed voucher line")
			continue
		}
		rec.Code = strings.TrimSpace(rec.Code)
		if err := rec.validate(); err != nil {
			skipped++
			logger.Warn().Err(err).Str("source", source).Int("line", lineNo).Msg("skipping invalid voucher")
			continue
		}
		vouchers = append(vouchers, rec.voucher())
	}

	if err := scanner.Err(); err != nil {
		logger.Error().Err(err).Str("source", source).Msg("error reading voucher file")
		return nil, fmt.Errorf("error reading voucher file %s: %w", source, err)
	}

	logger.Info().
		Str("source", source).
		Int("vouchers_loaded", len(vouchers)).
		Int("skipped", skipped).
		Msg("voucher file loaded successfully")

	return vouchers, nil
}

// fileLoader implements Loader for gzipped catalogue files on local disk.
type fileLoader struct {
	logger zerolog.Logger
}

// NewFileLoader creates a new file-based voucher loader.
func NewFileLoader(logger zerolog.Logger) Loader {
	return &fileLoader{
		logger: logger.With().Str("component", "voucher-loader").Logger(),
	}
}

func (l *fileLoader) Load(ctx context.Context, filePath string) ([]model.Voucher, error) {
	l.logger.Info().Str("file", filePath).Msg("loading voucher file")

	file, err := os.Open(filePath)
	if err != nil {
		l.logger.Error().Err(err).Str("file", filePath).Msg("failed to open voucher file")
		return nil, fmt.Errorf("failed to open voucher file %s: %w", filePath, err)
	}
	defer file.Close()

	return decodeCatalogue(ctx, file, filePath, l.logger)
}
