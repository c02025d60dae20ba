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

package database

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonpay/tako/internal/apierror"
	"github.com/halcyonpay/tako/model"
)

func chargeTransfer(t *testing.T, reference string) *model.Transfer {
	t.Helper()
	transfer, err := model.NewTransfer(reference, model.KindCharge, "USD",
		model.ServiceRef{Type: model.ServiceRide, ID: "r_1"},
		[]model.Leg{
			{WalletID: "wlt_rider", Amount: -1000},
			{WalletID: "wlt_driver", Amount: 1000},
		})
	require.NoError(t, err)
	transfer.Status = model.StatusCompleted
	return transfer
}

func chargeWallets() map[string]*model.Wallet {
	return map[string]*model.Wallet{
		"wlt_rider":  {WalletID: "wlt_rider", Currency: "USD", Balance: big.NewInt(1500), Version: 2},
		"wlt_driver": {WalletID: "wlt_driver", Currency: "USD", Balance: big.NewInt(1000), Version: 7},
	}
}

// lockedWalletRows builds the FOR UPDATE result set matching chargeWallets.
func lockedWalletRows(riderVersion, driverVersion int64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"wallet_id", "owner_id", "owner_role", "indicator", "currency",
		"allow_overdraft", "balance", "version", "created_at", "meta_data",
	}).AddRow("wlt_rider", "owner_rider", model.RoleCustomer, "", "USD", false, "1500", riderVersion, now, nil).
		AddRow("wlt_driver", "owner_driver", model.RoleCustomer, "", "USD", false, "1000", driverVersion, now, nil)
}

func TestApplyTransfer_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	transfer := chargeTransfer(t, "ride_100")
	wallets := chargeWallets()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM wallets WHERE wallet_id = ANY").
		WillReturnRows(lockedWalletRows(2, 7))
	mock.ExpectExec("INSERT INTO transfers").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectPrepare("INSERT INTO entries")
	mock.ExpectExec("INSERT INTO entries").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO entries").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec("UPDATE wallets").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE wallets").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = ds.ApplyTransfer(context.Background(), transfer, wallets)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	// versions bumped locally after the guarded updates
	assert.Equal(t, int64(3), wallets["wlt_rider"].Version)
	assert.Equal(t, int64(8), wallets["wlt_driver"].Version)
}

func TestApplyTransfer_DuplicateReference(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	transfer := chargeTransfer(t, "ride_100")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM wallets WHERE wallet_id = ANY").
		WillReturnRows(lockedWalletRows(2, 7))
	mock.ExpectExec("INSERT INTO transfers").
		WillReturnError(&pq.Error{Code: "23505", Message: "unique_violation"})
	mock.ExpectRollback()

	err = ds.ApplyTransfer(context.Background(), transfer, chargeWallets())
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.ErrDuplicateReference))
}

func TestApplyTransfer_VersionConflictRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	transfer := chargeTransfer(t, "ride_101")
	wallets := chargeWallets()

	// another writer moved the rider wallet before our lock was granted
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM wallets WHERE wallet_id = ANY").
		WillReturnRows(lockedWalletRows(3, 7))
	mock.ExpectRollback()

	err = ds.ApplyTransfer(context.Background(), transfer, wallets)
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.ErrConflict))

	// nothing was written; the caller reloads and retries
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyReversal_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	original := chargeTransfer(t, "ride_100")
	refund, err := model.NewTransfer("ride_100_rev", model.KindRefund, "USD", original.Service,
		[]model.Leg{
			{WalletID: "wlt_rider", Amount: 1000},
			{WalletID: "wlt_driver", Amount: -1000},
		})
	require.NoError(t, err)
	refund.Status = model.StatusCompleted

	record := &model.RefundRecord{
		RefundID:          model.GenerateUUIDWithSuffix("rfd"),
		OriginalReference: "ride_100",
		RefundReference:   "ride_100_rev",
		Amount:            1000,
		Currency:          "USD",
		Reason:            "trip cancelled",
		CreatedAt:         time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transfers").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectPrepare("INSERT INTO entries")
	mock.ExpectExec("INSERT INTO entries").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO entries").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec("UPDATE wallets").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE wallets").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE transfers").
		WithArgs("ride_100", int64(1000), model.StatusReversed).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO refunds").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = ds.ApplyReversal(context.Background(), refund, original, record, chargeWallets())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyReversal_OverRefundGuard(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	original := chargeTransfer(t, "ride_100")
	refund, err := model.NewTransfer("ride_100_rev2", model.KindRefund, "USD", original.Service,
		[]model.Leg{
			{WalletID: "wlt_rider", Amount: 1000},
			{WalletID: "wlt_driver", Amount: -1000},
		})
	require.NoError(t, err)
	refund.Status = model.StatusCompleted

	record := &model.RefundRecord{
		RefundID:          model.GenerateUUIDWithSuffix("rfd"),
		OriginalReference: "ride_100",
		RefundReference:   "ride_100_rev2",
		Amount:            1000,
		Currency:          "USD",
		CreatedAt:         time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transfers").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectPrepare("INSERT INTO entries")
	mock.ExpectExec("INSERT INTO entries").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO entries").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec("UPDATE wallets").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE wallets").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// a concurrent reversal already consumed the refundable amount
	mock.ExpectExec("UPDATE transfers").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = ds.ApplyReversal(context.Background(), refund, original, record, chargeWallets())
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.ErrConflict))
}

func TestGetTransferByRef_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	now := time.Now()

	mock.ExpectQuery("SELECT .* FROM transfers WHERE reference =").
		WithArgs("ride_100").
		WillReturnRows(sqlmock.NewRows([]string{
			"transfer_id", "reference", "kind", "currency", "status", "amount",
			"refunded_amount", "service_type", "service_id", "meta_data", "created_at",
		}).AddRow("txn_1", "ride_100", model.KindCharge, "USD", model.StatusCompleted, 1000, 0, "ride", "r_1", nil, now))

	mock.ExpectQuery("SELECT .* FROM entries WHERE reference =").
		WithArgs("ride_100").
		WillReturnRows(sqlmock.NewRows([]string{
			"entry_id", "reference", "wallet_id", "amount", "currency", "created_at",
		}).AddRow("ent_1", "ride_100", "wlt_rider", -1000, "USD", now).
			AddRow("ent_2", "ride_100", "wlt_driver", 1000, "USD", now))

	transfer, err := ds.GetTransferByRef(context.Background(), "ride_100")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, transfer.Status)
	assert.Equal(t, model.ServiceRef{Type: "ride", ID: "r_1"}, transfer.Service)
	assert.Len(t, transfer.Entries, 2)
}

func TestTransferExistsByRef(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("ride_100").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := ds.TransferExistsByRef(context.Background(), "ride_100")
	require.NoError(t, err)
	assert.True(t, exists)
}
