package voucher

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestImporter_Import(t *testing.T) {
	ctx := context.Background()
	files := map[string][]model.Voucher{
		"a.gz": {{Code: "SAVE10"}, {Code: "MINUS5K"}},
		"b.gz": {{Code: "SAVE10", Disabled: true}, {Code: "FREESHIP"}},
	}
	loader := &mockLoader{
		loadFunc: func(ctx context.Context, filePath string) ([]model.Voucher, error) {
			return files[filePath], nil
		},
	}

	repo := new(MockVoucherRepository)
	repo.On("InsertVouchers", ctx, mock.MatchedBy(func(vs []model.Voucher) bool {
		if len(vs) != 3 {
			return false
		}
		// First occurrence of a code wins.
		return vs[0].Code == "SAVE10" && !vs[0].Disabled && vs[2].Code == "FREESHIP"
	})).Return(int64(2), nil)

	res, err := NewImporter(loader, repo, zerolog.Nop()).Import(ctx, []string{"a.gz", "b.gz"})

	require.NoError(t, err)
	assert.Equal(t, ImportResult{Files: 2, Loaded: 3, Inserted: 2}, res)
	repo.AssertExpectations(t)
}

func TestImporter_Import_LoadFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	loader := &mockLoader{
		loadFunc: func(ctx context.Context, filePath string) ([]model.Voucher, error) {
			if filePath == "broken.gz" {
				return nil, errors.New("unexpected EOF")
			}
			return []model.Voucher{{Code: "SAVE10"}}, nil
		},
	}
	repo := new(MockVoucherRepository)

	_, err := NewImporter(loader, repo, zerolog.Nop()).Import(ctx, []string{"ok.gz", "broken.gz"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.gz")
	repo.AssertNotCalled(t, "InsertVouchers", mock.Anything, mock.Anything)
}

func TestImporter_Import_StoreFailure(t *testing.T) {
	ctx := context.Background()
	loader := &mockLoader{
		loadFunc: func(ctx context.Context, filePath string) ([]model.Voucher, error) {
			return []model.Voucher{{Code: "SAVE10"}}, nil
		},
	}
	repo := new(MockVoucherRepository)
	repo.On("InsertVouchers", ctx, mock.Anything).Return(int64(0), errors.New("batch failed"))

	_, err := NewImporter(loader, repo, zerolog.Nop()).Import(ctx, []string{"a.gz"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to store vouchers")
}
