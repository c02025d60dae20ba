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
	"github.com/brianvoe/gofakeit/v6"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonpay/tako/internal/apierror"
	"github.com/halcyonpay/tako/model"
)

func walletRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"wallet_id", "owner_id", "owner_role", "indicator", "currency",
		"allow_overdraft", "balance", "version", "created_at", "meta_data",
	})
}

func TestCreateWallet_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	wallet := model.NewWallet(gofakeit.UUID(), model.RoleCustomer, "USD")

	mock.ExpectExec("INSERT INTO wallets").
		WithArgs(wallet.WalletID, wallet.OwnerID, wallet.OwnerRole, nil, wallet.Currency,
			wallet.AllowOverdraft, "0", wallet.CreatedAt, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = ds.CreateWallet(context.Background(), wallet)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWallet_UniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	wallet := model.NewWallet("cust_1", model.RoleCustomer, "USD")

	mock.ExpectExec("INSERT INTO wallets").
		WillReturnError(&pq.Error{Code: "23505", Message: "unique_violation"})

	err = ds.CreateWallet(context.Background(), wallet)
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.ErrConflict))
}

func TestGetWalletByID_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	now := time.Now()
	mock.ExpectQuery("SELECT .* FROM wallets WHERE wallet_id =").
		WithArgs("wlt_1").
		WillReturnRows(walletRows().
			AddRow("wlt_1", "cust_1", model.RoleCustomer, "", "USD", false, "2500", 3, now, []byte(`{"tier":"gold"}`)))

	wallet, err := ds.GetWalletByID(context.Background(), "wlt_1")
	require.NoError(t, err)
	assert.Equal(t, "wlt_1", wallet.WalletID)
	assert.Equal(t, big.NewInt(2500), wallet.Balance)
	assert.Equal(t, int64(3), wallet.Version)
	assert.Equal(t, "gold", wallet.MetaData["tier"])
}

func TestGetWalletByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT .* FROM wallets WHERE wallet_id =").
		WithArgs("wlt_missing").
		WillReturnRows(walletRows())

	_, err = ds.GetWalletByID(context.Background(), "wlt_missing")
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.ErrNotFound))
}

func TestGetWalletByOwner_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT .* FROM wallets WHERE owner_id =").
		WithArgs("cust_1", "USD").
		WillReturnRows(walletRows().
			AddRow("wlt_1", "cust_1", model.RoleCustomer, "", "USD", false, "0", 0, time.Now(), nil))

	wallet, err := ds.GetWalletByOwner(context.Background(), "cust_1", "USD")
	require.NoError(t, err)
	assert.Equal(t, "cust_1", wallet.OwnerID)
	assert.Equal(t, int64(0), wallet.Balance.Int64())
}

func TestGetOrCreateWalletByIndicator_CreatesOnFirstUse(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT .* FROM wallets WHERE indicator =").
		WithArgs("@external_card", "USD").
		WillReturnRows(walletRows())

	mock.ExpectExec("INSERT INTO wallets").
		WillReturnResult(sqlmock.NewResult(1, 1))

	wallet, err := ds.GetOrCreateWalletByIndicator(context.Background(), "@external_card", "USD")
	require.NoError(t, err)
	assert.Equal(t, "@external_card", wallet.Indicator)
	assert.True(t, wallet.AllowOverdraft)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrCreateWalletByIndicator_LosesCreateRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT .* FROM wallets WHERE indicator =").
		WithArgs("@external_card", "USD").
		WillReturnRows(walletRows())

	mock.ExpectExec("INSERT INTO wallets").
		WillReturnError(&pq.Error{Code: "23505", Message: "unique_violation"})

	mock.ExpectQuery("SELECT .* FROM wallets WHERE indicator =").
		WithArgs("@external_card", "USD").
		WillReturnRows(walletRows().
			AddRow("wlt_ext", "@external_card", model.RolePlatform, "@external_card", "USD", true, "-100", 5, time.Now(), nil))

	wallet, err := ds.GetOrCreateWalletByIndicator(context.Background(), "@external_card", "USD")
	require.NoError(t, err)
	assert.Equal(t, "wlt_ext", wallet.WalletID)
}

func TestUpdateWalletMetadata_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE wallets SET meta_data").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = ds.UpdateWalletMetadata(context.Background(), "wlt_missing", map[string]interface{}{"k": "v"})
	require.Error(t, err)
	assert.True(t, apierror.HasCode(err, apierror.ErrNotFound))
}
