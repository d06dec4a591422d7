package voucher

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/model"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockVoucherRepository is a mock implementation of repository.VoucherRepository.
type MockVoucherRepository struct {
	mock.Mock
}

func (m *MockVoucherRepository) GetByCode(ctx context.Context, tx pgx.Tx, code string) (*model.Voucher, error) {
	args := m.Called(ctx, tx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Voucher), args.Error(1)
}

func (m *MockVoucherRepository) HasUsage(ctx context.Context, tx pgx.Tx, voucherID, orderID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, tx, voucherID, orderID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockVoucherRepository) RecordUsage(ctx context.Context, tx pgx.Tx, voucherID, orderID, userID uuid.UUID) error {
	args := m.Called(ctx, tx, voucherID, orderID, userID)
	return args.Error(0)
}

func (m *MockVoucherRepository) DecrementQuantity(ctx context.Context, tx pgx.Tx, voucherID uuid.UUID) error {
	args := m.Called(ctx, tx, voucherID)
	return args.Error(0)
}

func (m *MockVoucherRepository) InsertVouchers(ctx context.Context, vouchers []model.Voucher) (int64, error) {
	args := m.Called(ctx, vouchers)
	return args.Get(0).(int64), args.Error(1)
}

var fixedNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func newTestLedger(repo repository.VoucherRepository) *ledger {
	l := NewLedger(repo, zerolog.Nop()).(*ledger)
	l.now = func() time.Time { return fixedNow }
	return l
}

func save10() *model.Voucher {
	return &model.Voucher{
		ID:                uuid.New(),
		Code:              "SAVE10",
		Type:              model.VoucherPercent,
		Value:             decimal.NewFromInt(10),
		AvailableQuantity: 3,
		MinOrderValue:     decimal.NewFromInt(500_000),
		StartDate:         fixedNow.AddDate(0, -1, 0),
		EndDate:           fixedNow.AddDate(0, 1, 0),
	}
}

func TestLedger_Validate(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	orderID := uuid.New()
	total := decimal.NewFromInt(920_000)

	tests := []struct {
		name       string
		mutate     func(v *model.Voucher)
		missing    bool
		used       bool
		total      decimal.Decimal
		wantReason Reason
		wantKind   model.ErrorKind
	}{
		{name: "valid", total: total},
		{name: "not found", missing: true, total: total, wantReason: ReasonNotFound, wantKind: model.KindNotFound},
		{name: "disabled", mutate: func(v *model.Voucher) { v.Disabled = true }, total: total, wantReason: ReasonExpired, wantKind: model.KindUnprocessable},
		{name: "not started", mutate: func(v *model.Voucher) { v.StartDate = fixedNow.Add(time.Hour) }, total: total, wantReason: ReasonExpired, wantKind: model.KindUnprocessable},
		{name: "ended", mutate: func(v *model.Voucher) { v.EndDate = fixedNow.Add(-time.Hour) }, total: total, wantReason: ReasonExpired, wantKind: model.KindUnprocessable},
		{
			name: "inverted window",
			mutate: func(v *model.Voucher) {
				v.StartDate, v.EndDate = v.EndDate, v.StartDate
			},
			total: total, wantReason: ReasonExpired, wantKind: model.KindUnprocessable,
		},
		{name: "already used", used: true, total: total, wantReason: ReasonAlreadyUsed, wantKind: model.KindUnprocessable},
		{name: "exhausted", mutate: func(v *model.Voucher) { v.AvailableQuantity = 0 }, total: total, wantReason: ReasonExhausted, wantKind: model.KindUnprocessable},
		{name: "below minimum", total: decimal.NewFromInt(400_000), wantReason: ReasonBelowMinimum, wantKind: model.KindUnprocessable},
		{name: "equal to minimum", total: decimal.NewFromInt(500_000), wantReason: ReasonBelowMinimum, wantKind: model.KindUnprocessable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockVoucherRepository)
			v := save10()
			if tt.mutate != nil {
				tt.mutate(v)
			}
			if tt.missing {
				repo.On("GetByCode", ctx, mock.Anything, "SAVE10").Return(nil, nil)
			} else {
				repo.On("GetByCode", ctx, mock.Anything, "SAVE10").Return(v, nil)
			}
			repo.On("HasUsage", ctx, mock.Anything, v.ID, orderID, userID).Return(tt.used, nil).Maybe()

			got, err := newTestLedger(repo).Validate(ctx, nil, userID, orderID, "SAVE10", tt.total)

			if tt.wantReason == "" {
				require.NoError(t, err)
				assert.Equal(t, v, got)
				return
			}
			require.Error(t, err)
			assert.Nil(t, got)
			var verr *Error
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.wantReason, verr.Reason)
			assert.Equal(t, "SAVE10", verr.Code)
			assert.Equal(t, tt.wantKind, model.KindOf(err))
		})
	}
}

func TestLedger_Validate_RepositoryError(t *testing.T) {
	ctx := context.Background()
	repo := new(MockVoucherRepository)
	repo.On("GetByCode", ctx, mock.Anything, "SAVE10").Return(nil, errors.New("connection reset"))

	_, err := newTestLedger(repo).Validate(ctx, nil, uuid.New(), uuid.New(), "SAVE10", decimal.NewFromInt(1))

	require.Error(t, err)
	assert.Equal(t, model.KindInternal, model.KindOf(err))
}

func TestLedger_Redeem(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	orderID := uuid.New()

	t.Run("records usage then decrements", func(t *testing.T) {
		v := save10()
		repo := new(MockVoucherRepository)
		repo.On("RecordUsage", ctx, mock.Anything, v.ID, orderID, userID).Return(nil).Once()
		repo.On("DecrementQuantity", ctx, mock.Anything, v.ID).Return(nil).Once()

		require.NoError(t, newTestLedger(repo).Redeem(ctx, nil, userID, orderID, v))
		repo.AssertExpectations(t)
	})

	t.Run("duplicate usage is already used", func(t *testing.T) {
		v := save10()
		repo := new(MockVoucherRepository)
		repo.On("RecordUsage", ctx, mock.Anything, v.ID, orderID, userID).Return(repository.ErrUsageExists)

		err := newTestLedger(repo).Redeem(ctx, nil, userID, orderID, v)

		assert.ErrorIs(t, err, ErrAlreadyUsed)
		repo.AssertNotCalled(t, "DecrementQuantity", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("lost race on quantity is exhausted", func(t *testing.T) {
		v := save10()
		repo := new(MockVoucherRepository)
		repo.On("RecordUsage", ctx, mock.Anything, v.ID, orderID, userID).Return(nil)
		repo.On("DecrementQuantity", ctx, mock.Anything, v.ID).Return(repository.ErrVoucherExhausted)

		err := newTestLedger(repo).Redeem(ctx, nil, userID, orderID, v)

		assert.ErrorIs(t, err, ErrExhausted)
		assert.Equal(t, model.KindUnprocessable, model.KindOf(err))
	})
}
