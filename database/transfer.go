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
	"log"
	"time"

	"github.com/lib/pq"

	"github.com/halcyonpay/tako/internal/apierror"
	"github.com/halcyonpay/tako/model"
)

const transferColumns = `transfer_id, reference, kind, currency, status, amount, refunded_amount, COALESCE(service_type, '') as service_type, COALESCE(service_id, '') as service_id, meta_data, created_at`

// GetTransferByRef retrieves a transfer and its entries by reference.
func (d Datasource) GetTransferByRef(ctx context.Context, reference string) (*model.Transfer, error) {
	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM transfers WHERE reference = $1
	`, transferColumns), reference)

	transfer, err := scanTransferRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transfer with reference '%s' not found", reference), nil)
		}
		return nil, err
	}

	entries, err := d.getEntriesForReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	transfer.Entries = entries
	return transfer, nil
}

// TransferExistsByRef checks whether a reference has already been used.
func (d Datasource) TransferExistsByRef(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := d.Conn.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM transfers WHERE reference = $1)
	`, reference).Scan(&exists)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check transfer existence", err)
	}
	return exists, nil
}

// GetTransfersByService retrieves all transfers settled against a business
// object, newest first.
func (d Datasource) GetTransfersByService(ctx context.Context, service model.ServiceRef, limit, offset int) ([]*model.Transfer, error) {
	rows, err := d.Conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM transfers
		WHERE service_type = $1 AND service_id = $2
		ORDER BY created_at DESC LIMIT $3 OFFSET $4
	`, transferColumns), service.Type, service.ID, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transfers", err)
	}
	defer rows.Close()

	var transfers []*model.Transfer
	for rows.Next() {
		transfer, err := scanTransferRow(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, transfer)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating transfers", err)
	}
	return transfers, nil
}

// GetWalletHistory retrieves the entries posted against a wallet, newest
// first. Pages are cached briefly; entries are append-only so a stale page
// only lags the newest postings.
func (d Datasource) GetWalletHistory(ctx context.Context, walletID string, limit, offset int) ([]model.Entry, error) {
	cacheKey := fmt.Sprintf("wallet:history:%s:%d:%d", walletID, limit, offset)

	var cached []model.Entry
	if d.Cache != nil {
		if err := d.Cache.Get(ctx, cacheKey, &cached); err == nil && len(cached) > 0 {
			return cached, nil
		}
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT entry_id, reference, wallet_id, amount, currency, created_at
		FROM entries WHERE wallet_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3
	`, walletID, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve wallet history", err)
	}
	defer rows.Close()

	var entries []model.Entry
	for rows.Next() {
		var e model.Entry
		if err := rows.Scan(&e.EntryID, &e.Reference, &e.WalletID, &e.Amount, &e.Currency, &e.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan entry", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating entries", err)
	}

	if d.Cache != nil && len(entries) > 0 {
		if err := d.Cache.Set(ctx, cacheKey, entries, time.Minute); err != nil {
			log.Printf("Failed to cache wallet history: %v", err)
		}
	}
	return entries, nil
}

// ApplyTransfer writes a transfer, its entries and the new wallet balances
// in one database transaction. The touched wallet rows are locked first so
// concurrent settlements queue up instead of churning the retry budget; a
// snapshot that went stale before the lock was granted fails fast as a
// conflict, and the version-guarded updates catch anything that slips past.
func (d Datasource) ApplyTransfer(ctx context.Context, transfer *model.Transfer, wallets map[string]*model.Wallet) error {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	walletIDs := make([]string, 0, len(wallets))
	for id := range wallets {
		walletIDs = append(walletIDs, id)
	}
	locked, err := getWalletsForUpdate(ctx, tx, walletIDs)
	if err != nil {
		return err
	}
	for id, wallet := range wallets {
		if locked[id].Version != wallet.Version {
			return apierror.NewAPIError(apierror.ErrConflict,
				fmt.Sprintf("Optimistic locking failure: wallet with ID '%s' was updated by another transaction", id), nil)
		}
	}

	if err := insertTransfer(ctx, tx, transfer); err != nil {
		return err
	}
	for _, wallet := range wallets {
		if err := updateWalletBalance(ctx, tx, wallet); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return nil
}

// ApplyReversal writes a refund transfer and its wallet updates, bumps the
// original transfer's refunded_amount and records the refund row, all in one
// database transaction. The refunded_amount update is guarded so two
// concurrent reversals can never over-refund.
func (d Datasource) ApplyReversal(ctx context.Context, refund *model.Transfer, original *model.Transfer, record *model.RefundRecord, wallets map[string]*model.Wallet) error {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := insertTransfer(ctx, tx, refund); err != nil {
		return err
	}
	for _, wallet := range wallets {
		if err := updateWalletBalance(ctx, tx, wallet); err != nil {
			return err
		}
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE transfers
		SET refunded_amount = refunded_amount + $2,
		    status = CASE WHEN refunded_amount + $2 >= amount THEN $3 ELSE status END
		WHERE reference = $1 AND refunded_amount + $2 <= amount
	`, original.Reference, refund.Amount, model.StatusReversed)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update refunded amount", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Reversal of '%s' would exceed its refundable amount", original.Reference), nil)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO refunds (refund_id, original_reference, refund_reference, amount, currency, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, record.RefundID, record.OriginalReference, record.RefundReference, record.Amount, record.Currency, record.Reason, record.CreatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record refund", err)
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return nil
}

// GetRefundsForReference retrieves the refund rows written against a
// transfer.
func (d Datasource) GetRefundsForReference(ctx context.Context, originalReference string) ([]model.RefundRecord, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT refund_id, original_reference, refund_reference, amount, currency, COALESCE(reason, ''), created_at
		FROM refunds WHERE original_reference = $1 ORDER BY created_at
	`, originalReference)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve refunds", err)
	}
	defer rows.Close()

	var records []model.RefundRecord
	for rows.Next() {
		var r model.RefundRecord
		if err := rows.Scan(&r.RefundID, &r.OriginalReference, &r.RefundReference, &r.Amount, &r.Currency, &r.Reason, &r.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan refund", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating refunds", err)
	}
	return records, nil
}

// insertTransfer writes a transfer and its entries inside an open database
// transaction. A duplicate reference surfaces as ErrDuplicateReference so
// the settlement engine can fall back to idempotent replay.
func insertTransfer(ctx context.Context, tx *sql.Tx, transfer *model.Transfer) error {
	metaDataJSON, err := json.Marshal(transfer.MetaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	var serviceType, serviceID interface{}
	if transfer.Service.Type != "" {
		serviceType = transfer.Service.Type
		serviceID = transfer.Service.ID
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transfers (transfer_id, reference, kind, currency, status, amount, refunded_amount, service_type, service_id, meta_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9, $10)
	`, transfer.TransferID, transfer.Reference, transfer.Kind, transfer.Currency, transfer.Status,
		transfer.Amount, serviceType, serviceID, metaDataJSON, transfer.CreatedAt)
	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "unique_violation" {
			return apierror.NewAPIError(apierror.ErrDuplicateReference,
				fmt.Sprintf("Reference '%s' has already been used", transfer.Reference), err)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert transfer", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (entry_id, reference, wallet_id, amount, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to prepare entry insert", err)
	}
	defer stmt.Close()

	for _, entry := range transfer.Entries {
		if _, err := stmt.ExecContext(ctx, entry.EntryID, entry.Reference, entry.WalletID, entry.Amount, entry.Currency, entry.CreatedAt); err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert entry", err)
		}
	}
	return nil
}

func (d Datasource) getEntriesForReference(ctx context.Context, reference string) ([]model.Entry, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT entry_id, reference, wallet_id, amount, currency, created_at
		FROM entries WHERE reference = $1 ORDER BY id
	`, reference)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve entries", err)
	}
	defer rows.Close()

	var entries []model.Entry
	for rows.Next() {
		var e model.Entry
		if err := rows.Scan(&e.EntryID, &e.Reference, &e.WalletID, &e.Amount, &e.Currency, &e.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan entry", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating entries", err)
	}
	return entries, nil
}

func scanTransferRow(scanner rowScanner) (*model.Transfer, error) {
	transfer := &model.Transfer{}
	var metaDataJSON []byte
	err := scanner.Scan(&transfer.TransferID, &transfer.Reference, &transfer.Kind, &transfer.Currency,
		&transfer.Status, &transfer.Amount, &transfer.RefundedAmount,
		&transfer.Service.Type, &transfer.Service.ID, &metaDataJSON, &transfer.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan transfer", err)
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &transfer.MetaData); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
	}
	return transfer, nil
}
