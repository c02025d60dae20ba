/*
Copyright 2025 Halcyon Pay Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package tako

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/halcyonpay/tako/internal/apierror"
	"github.com/halcyonpay/tako/model"
)

func completedCharge(reference string, amount, refunded int64) *model.Transfer {
	return &model.Transfer{
		TransferID:     model.GenerateUUIDWithSuffix("txn"),
		Reference:      reference,
		Kind:           model.KindCharge,
		Currency:       "USD",
		Status:         model.StatusCompleted,
		Amount:         amount,
		RefundedAmount: refunded,
		Service:        model.ServiceRef{Type: model.ServiceRide, ID: "r_1"},
		Entries: []model.Entry{
			{EntryID: "e1", Reference: reference, WalletID: "wlt_rider", Amount: -amount, Currency: "USD"},
			{EntryID: "e2", Reference: reference, WalletID: "wlt_driver", Amount: amount, Currency: "USD"},
		},
		CreatedAt: time.Now(),
	}
}

func TestReverse_FullReversal(t *testing.T) {
	engine, ds := newTestTako(t)
	ctx := context.Background()

	original := completedCharge("ride_1", 1500, 0)
	rider := testWallet("wlt_rider", 500)
	driver := testWallet("wlt_driver", 1500)

	ds.On("GetTransferByRef", mock.Anything, "ride_1").Return(original, nil)
	ds.On("GetWalletByID", mock.Anything, "wlt_rider").Return(rider, nil)
	ds.On("GetWalletByID", mock.Anything, "wlt_driver").Return(driver, nil)
	ds.On("ApplyReversal", mock.Anything, mock.Anything, original, mock.Anything, mock.Anything).Return(nil)

	result, err := engine.Reverse(ctx, "ride_1", ReverseOptions{Reason: "trip cancelled"})
	require.NoError(t, err)

	assert.Equal(t, model.KindRefund, result.Transfer.Kind)
	assert.Equal(t, "ride_1_rev_0", result.Transfer.Reference)
	assert.Equal(t, int64(2000), rider.Balance.Int64())
	assert.Equal(t, int64(0), driver.Balance.Int64())
	ds.AssertExpectations(t)
}

func TestReverse_PartialThenRemainder(t *testing.T) {
	engine, ds := newTestTako(t)
	ctx := context.Background()

	original := completedCharge("ride_2", 1000, 0)
	ds.On("GetTransferByRef", mock.Anything, "ride_2").Return(original, nil)
	ds.On("GetWalletByID", mock.Anything, "wlt_rider").Return(testWallet("wlt_rider", 0), nil)
	ds.On("GetWalletByID", mock.Anything, "wlt_driver").Return(testWallet("wlt_driver", 1000), nil)
	ds.On("ApplyReversal", mock.Anything, mock.Anything, original, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			refund := args.Get(1).(*model.Transfer)
			original.RefundedAmount += refund.Amount
		}).Return(nil)

	first, err := engine.Reverse(ctx, "ride_2", ReverseOptions{Amount: 400})
	require.NoError(t, err)
	assert.Equal(t, int64(400), first.Transfer.Amount)

	second, err := engine.Reverse(ctx, "ride_2", ReverseOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(600), second.Transfer.Amount)
	assert.Equal(t, "ride_2_rev_400", second.Transfer.Reference)
}

func TestReverse_RejectsDoubleReversal(t *testing.T) {
	engine, ds := newTestTako(t)
	ctx := context.Background()

	original := completedCharge("ride_3", 1000, 1000)
	original.Status = model.StatusReversed
	ds.On("GetTransferByRef", mock.Anything, "ride_3").Return(original, nil)

	_, err := engine.Reverse(ctx, "ride_3", ReverseOptions{})
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.ErrInvalidState))
	ds.AssertNotCalled(t, "ApplyReversal", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReverse_RejectsOverRefund(t *testing.T) {
	engine, ds := newTestTako(t)
	ctx := context.Background()

	original := completedCharge("ride_4", 1000, 800)
	ds.On("GetTransferByRef", mock.Anything, "ride_4").Return(original, nil)

	_, err := engine.Reverse(ctx, "ride_4", ReverseOptions{Amount: 500})
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.ErrInvalidInput))
}

func TestReverse_RejectsPendingTransfer(t *testing.T) {
	engine, ds := newTestTako(t)
	ctx := context.Background()

	original := completedCharge("ride_5", 1000, 0)
	original.Status = model.StatusPending
	ds.On("GetTransferByRef", mock.Anything, "ride_5").Return(original, nil)

	_, err := engine.Reverse(ctx, "ride_5", ReverseOptions{})
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.ErrInvalidState))
}

func TestReverse_AllowsRecipientToGoNegative(t *testing.T) {
	engine, ds := newTestTako(t)
	ctx := context.Background()

	// driver already spent the earnings; the refund still claws them back
	original := completedCharge("ride_6", 1500, 0)
	rider := testWallet("wlt_rider", 0)
	driver := testWallet("wlt_driver", 200)

	ds.On("GetTransferByRef", mock.Anything, "ride_6").Return(original, nil)
	ds.On("GetWalletByID", mock.Anything, "wlt_rider").Return(rider, nil)
	ds.On("GetWalletByID", mock.Anything, "wlt_driver").Return(driver, nil)
	ds.On("ApplyReversal", mock.Anything, mock.Anything, original, mock.Anything, mock.Anything).Return(nil)

	_, err := engine.Reverse(ctx, "ride_6", ReverseOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(-1300), driver.Balance.Int64())
	assert.Equal(t, int64(1500), rider.Balance.Int64())
}
