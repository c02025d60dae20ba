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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/lib/pq"

	"github.com/halcyonpay/tako/internal/apierror"
	"github.com/halcyonpay/tako/model"
)

const walletColumns = `wallet_id, owner_id, owner_role, COALESCE(indicator, '') as indicator, currency, allow_overdraft, balance, version, created_at, meta_data`

// CreateWallet inserts a new wallet row. Owner and currency are unique
// together, so a second wallet for the same owner and currency is rejected
// as a conflict.
func (d Datasource) CreateWallet(ctx context.Context, wallet *model.Wallet) error {
	wallet.InitializeBalance()
	metaDataJSON, err := json.Marshal(wallet.MetaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	var indicator interface{}
	if wallet.Indicator != "" {
		indicator = wallet.Indicator
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO wallets (wallet_id, owner_id, owner_role, indicator, currency, allow_overdraft, balance, version, created_at, meta_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9)
	`, wallet.WalletID, wallet.OwnerID, wallet.OwnerRole, indicator, wallet.Currency, wallet.AllowOverdraft, wallet.Balance.String(), wallet.CreatedAt, metaDataJSON)
	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok {
			switch pqErr.Code.Name() {
			case "unique_violation":
				return apierror.NewAPIError(apierror.ErrConflict, "Wallet already exists for this owner and currency", err)
			default:
				return apierror.NewAPIError(apierror.ErrInternalServer, "Database error occurred", err)
			}
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create wallet", err)
	}
	return nil
}

// GetWalletByID retrieves a wallet by its wallet ID.
func (d Datasource) GetWalletByID(ctx context.Context, walletID string) (*model.Wallet, error) {
	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM wallets WHERE wallet_id = $1
	`, walletColumns), walletID)
	return scanWallet(row, walletID)
}

// GetWalletByOwner retrieves the wallet an owner holds in a currency.
func (d Datasource) GetWalletByOwner(ctx context.Context, ownerID, currency string) (*model.Wallet, error) {
	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM wallets WHERE owner_id = $1 AND currency = $2
	`, walletColumns), ownerID, currency)
	return scanWallet(row, ownerID)
}

// GetWalletByIndicator retrieves an internal wallet by its "@" indicator.
func (d Datasource) GetWalletByIndicator(ctx context.Context, indicator, currency string) (*model.Wallet, error) {
	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM wallets WHERE indicator = $1 AND currency = $2
	`, walletColumns), indicator, currency)
	return scanWallet(row, indicator)
}

// GetOrCreateWalletByIndicator fetches an internal wallet, creating it on
// first use. Internal wallets allow overdraft so they can absorb external
// funding legs.
func (d Datasource) GetOrCreateWalletByIndicator(ctx context.Context, indicator, currency string) (*model.Wallet, error) {
	wallet, err := d.GetWalletByIndicator(ctx, indicator, currency)
	if err == nil {
		return wallet, nil
	}
	if !apierror.HasCode(err, apierror.ErrNotFound) {
		return nil, err
	}

	wallet = &model.Wallet{
		WalletID:       model.GenerateUUIDWithSuffix("wlt"),
		OwnerID:        indicator,
		OwnerRole:      model.RolePlatform,
		Indicator:      indicator,
		Currency:       currency,
		AllowOverdraft: true,
		Balance:        big.NewInt(0),
		CreatedAt:      time.Now(),
	}
	if err := d.CreateWallet(ctx, wallet); err != nil {
		// lost a create race; the winner's row is the one we want
		if apierror.HasCode(err, apierror.ErrConflict) {
			return d.GetWalletByIndicator(ctx, indicator, currency)
		}
		return nil, err
	}
	return wallet, nil
}

// GetAllWallets retrieves wallets ordered by creation time, newest first.
func (d Datasource) GetAllWallets(ctx context.Context, limit, offset int) ([]model.Wallet, error) {
	rows, err := d.Conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM wallets ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`, walletColumns), limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve wallets", err)
	}
	defer rows.Close()

	var wallets []model.Wallet
	for rows.Next() {
		wallet, err := scanWalletRow(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, *wallet)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating wallets", err)
	}
	return wallets, nil
}

// UpdateWalletMetadata merges new metadata into a wallet's meta_data column.
func (d Datasource) UpdateWalletMetadata(ctx context.Context, walletID string, metadata map[string]interface{}) error {
	metaDataJSON, err := json.Marshal(metadata)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE wallets SET meta_data = COALESCE(meta_data, '{}'::jsonb) || $2::jsonb WHERE wallet_id = $1
	`, walletID, metaDataJSON)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update wallet metadata", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Wallet with ID '%s' not found", walletID), nil)
	}
	return nil
}

// getWalletsForUpdate loads every wallet a transfer touches inside the given
// database transaction, locking the rows for the duration.
func getWalletsForUpdate(ctx context.Context, tx *sql.Tx, walletIDs []string) (map[string]*model.Wallet, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM wallets WHERE wallet_id = ANY($1) FOR UPDATE
	`, walletColumns), pq.Array(walletIDs))
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to lock wallets", err)
	}
	defer rows.Close()

	wallets := make(map[string]*model.Wallet, len(walletIDs))
	for rows.Next() {
		wallet, err := scanWalletRow(rows)
		if err != nil {
			return nil, err
		}
		wallets[wallet.WalletID] = wallet
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating wallets", err)
	}
	for _, id := range walletIDs {
		if _, ok := wallets[id]; !ok {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Wallet with ID '%s' not found", id), nil)
		}
	}
	return wallets, nil
}

// updateWalletBalance writes a wallet's new balance under optimistic locking.
// The version column guards against concurrent writers; zero rows affected
// means another transaction got there first.
func updateWalletBalance(ctx context.Context, tx *sql.Tx, wallet *model.Wallet) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET balance = $2, version = version + 1
		WHERE wallet_id = $1 AND version = $3
	`, wallet.WalletID, wallet.Balance.String(), wallet.Version)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update wallet", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Optimistic locking failure: wallet with ID '%s' was updated by another transaction", wallet.WalletID), nil)
	}
	wallet.Version++
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWalletRow(scanner rowScanner) (*model.Wallet, error) {
	wallet := &model.Wallet{}
	var balanceStr string
	var metaDataJSON []byte
	err := scanner.Scan(&wallet.WalletID, &wallet.OwnerID, &wallet.OwnerRole, &wallet.Indicator,
		&wallet.Currency, &wallet.AllowOverdraft, &balanceStr, &wallet.Version, &wallet.CreatedAt, &metaDataJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan wallet", err)
	}

	balance, ok := new(big.Int).SetString(balanceStr, 10)
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, fmt.Sprintf("Invalid balance value: %s", balanceStr), nil)
	}
	wallet.Balance = balance

	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &wallet.MetaData); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
	}
	return wallet, nil
}

func scanWallet(row *sql.Row, key string) (*model.Wallet, error) {
	wallet, err := scanWalletRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Wallet '%s' not found", key), nil)
		}
		return nil, err
	}
	return wallet, nil
}
