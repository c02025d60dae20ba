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

func TestAllocateTip_DirectRecipient(t *testing.T) {
	engine, ds := newTestTako(t)
	ctx := context.Background()

	payer := testWallet("wlt_payer", 2000)
	driver := testWallet("wlt_driver", 0)

	ds.On("GetTipByRef", mock.Anything, "tip_1").Return(nil, notFoundErr("tip"))
	ds.On("GetWalletByID", mock.Anything, "wlt_payer").Return(payer, nil)
	ds.On("GetWalletByID", mock.Anything, "wlt_driver").Return(driver, nil)
	ds.On("ApplyTipAllocation", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	allocation, err := engine.AllocateTip(ctx, "tip_1", "USD",
		model.ServiceRef{Type: model.ServiceRide, ID: "r_1"}, "wlt_payer", 500,
		[]model.TipRecipient{
			{RecipientID: "d1", Role: "driver", WalletID: "wlt_driver"},
		})
	require.NoError(t, err)

	require.Len(t, allocation.Shares, 1)
	assert.Equal(t, int64(500), allocation.Shares[0].Amount)
	assert.Equal(t, "tip_1", allocation.Shares[0].TipRef)
	assert.Equal(t, int64(1500), payer.Balance.Int64())
	assert.Equal(t, int64(500), driver.Balance.Int64())
	ds.AssertExpectations(t)
}

func TestAllocateTip_PooledStaffConservesTotal(t *testing.T) {
	engine, ds := newTestTako(t)
	ctx := context.Background()

	payer := testWallet("wlt_payer", 2000)
	s1 := testWallet("wlt_s1", 0)
	s2 := testWallet("wlt_s2", 0)
	s3 := testWallet("wlt_s3", 0)

	ds.On("GetTipByRef", mock.Anything, "tip_2").Return(nil, notFoundErr("tip"))
	ds.On("GetWalletByID", mock.Anything, "wlt_payer").Return(payer, nil)
	ds.On("GetWalletByID", mock.Anything, "wlt_s1").Return(s1, nil)
	ds.On("GetWalletByID", mock.Anything, "wlt_s2").Return(s2, nil)
	ds.On("GetWalletByID", mock.Anything, "wlt_s3").Return(s3, nil)
	ds.On("ApplyTipAllocation", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	allocation, err := engine.AllocateTip(ctx, "tip_2", "USD",
		model.ServiceRef{Type: model.ServiceReservation, ID: "b_1"}, "wlt_payer", 1000,
		[]model.TipRecipient{
			{RecipientID: "s1", Role: "branch_staff", WalletID: "wlt_s1"},
			{RecipientID: "s2", Role: "branch_staff", WalletID: "wlt_s2"},
			{RecipientID: "s3", Role: "branch_staff", WalletID: "wlt_s3"},
		})
	require.NoError(t, err)

	var sum int64
	for _, share := range allocation.Shares {
		sum += share.Amount
	}
	assert.Equal(t, int64(1000), sum)
	assert.Equal(t, int64(1000), payer.Balance.Int64())
	assert.Equal(t, int64(1000), s1.Balance.Int64()+s2.Balance.Int64()+s3.Balance.Int64())
}

func TestAllocateTip_ReplaysExistingReference(t *testing.T) {
	engine, ds := newTestTako(t)
	ctx := context.Background()

	existing := &model.TipAllocation{Reference: "tip_3", TotalAmount: 500, Status: model.StatusCompleted}
	ds.On("GetTipByRef", mock.Anything, "tip_3").Return(existing, nil)

	allocation, err := engine.AllocateTip(ctx, "tip_3", "USD", model.ServiceRef{}, "wlt_payer", 500,
		[]model.TipRecipient{
			{RecipientID: "d1", Role: "driver", WalletID: "wlt_driver"},
		})
	require.NoError(t, err)
	assert.Same(t, existing, allocation)
	ds.AssertNotCalled(t, "ApplyTipAllocation", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAllocateTip_InsufficientFunds(t *testing.T) {
	engine, ds := newTestTako(t)
	ctx := context.Background()

	ds.On("GetTipByRef", mock.Anything, "tip_4").Return(nil, notFoundErr("tip"))
	ds.On("GetWalletByID", mock.Anything, "wlt_payer").Return(testWallet("wlt_payer", 100), nil)
	ds.On("GetWalletByID", mock.Anything, "wlt_driver").Return(testWallet("wlt_driver", 0), nil)

	_, err := engine.AllocateTip(ctx, "tip_4", "USD", model.ServiceRef{}, "wlt_payer", 500,
		[]model.TipRecipient{
			{RecipientID: "d1", Role: "driver", WalletID: "wlt_driver"},
		})
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.ErrInsufficientFunds))
	ds.AssertNotCalled(t, "ApplyTipAllocation", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDisputeTip(t *testing.T) {
	engine, ds := newTestTako(t)
	ctx := context.Background()

	tip := &model.TipAllocation{Reference: "tip_5", DisputeStatus: model.DisputeNone}
	ds.On("GetTipByRef", mock.Anything, "tip_5").Return(tip, nil)
	ds.On("UpdateTipDisputeStatus", mock.Anything, "tip_5", model.DisputeNone, model.DisputePending).Return(nil)

	result, err := engine.DisputeTip(ctx, "tip_5")
	require.NoError(t, err)
	assert.Equal(t, model.DisputePending, result.DisputeStatus)
}

func TestResolveTipDispute_IgnoreKeepsShares(t *testing.T) {
	engine, ds := newTestTako(t)
	ctx := context.Background()

	tip := &model.TipAllocation{Reference: "tip_6", DisputeStatus: model.DisputePending}
	ds.On("GetTipByRef", mock.Anything, "tip_6").Return(tip, nil)
	ds.On("UpdateTipDisputeStatus", mock.Anything, "tip_6", model.DisputePending, model.DisputeIgnored).Return(nil)

	result, err := engine.ResolveTipDispute(ctx, "tip_6", false)
	require.NoError(t, err)
	assert.Equal(t, model.DisputeIgnored, result.DisputeStatus)
	ds.AssertNotCalled(t, "GetTransferByRef", mock.Anything, mock.Anything)
}

func TestResolveTipDispute_ConfirmReversesTip(t *testing.T) {
	engine, ds := newTestTako(t)
	ctx := context.Background()

	tip := &model.TipAllocation{Reference: "tip_7", DisputeStatus: model.DisputePending, TotalAmount: 500, Currency: "USD"}
	ds.On("GetTipByRef", mock.Anything, "tip_7").Return(tip, nil)
	ds.On("UpdateTipDisputeStatus", mock.Anything, "tip_7", model.DisputePending, model.DisputeConfirmed).Return(nil)

	tipTransfer := &model.Transfer{
		Reference: "tip_7",
		Kind:      model.KindTip,
		Currency:  "USD",
		Status:    model.StatusCompleted,
		Amount:    500,
		Entries: []model.Entry{
			{EntryID: "e1", Reference: "tip_7", WalletID: "wlt_payer", Amount: -500, Currency: "USD"},
			{EntryID: "e2", Reference: "tip_7", WalletID: "wlt_driver", Amount: 500, Currency: "USD"},
		},
		CreatedAt: time.Now(),
	}
	ds.On("GetTransferByRef", mock.Anything, "tip_7").Return(tipTransfer, nil)
	ds.On("GetWalletByID", mock.Anything, "wlt_payer").Return(testWallet("wlt_payer", 0), nil)
	ds.On("GetWalletByID", mock.Anything, "wlt_driver").Return(testWallet("wlt_driver", 500), nil)
	ds.On("ApplyReversal", mock.Anything, mock.Anything, tipTransfer, mock.Anything, mock.Anything).Return(nil)
	ds.On("UpdateTipDisputeStatus", mock.Anything, "tip_7", model.DisputeConfirmed, model.DisputeRefunded).Return(nil)

	result, err := engine.ResolveTipDispute(ctx, "tip_7", true)
	require.NoError(t, err)
	assert.Equal(t, model.DisputeRefunded, result.DisputeStatus)
	ds.AssertExpectations(t)
}

func TestDisputeTip_RejectsDoubleDispute(t *testing.T) {
	engine, ds := newTestTako(t)
	ctx := context.Background()

	tip := &model.TipAllocation{Reference: "tip_8", DisputeStatus: model.DisputeRefunded}
	ds.On("GetTipByRef", mock.Anything, "tip_8").Return(tip, nil)

	_, err := engine.DisputeTip(ctx, "tip_8")
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.ErrInvalidState))
}
