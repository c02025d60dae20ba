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

	"github.com/lib/pq"

	"github.com/halcyonpay/tako/internal/apierror"
	"github.com/halcyonpay/tako/model"
)

const tipColumns = `tip_id, reference, payer_wallet_id, total_amount, currency, status, dispute_status, COALESCE(service_type, '') as service_type, COALESCE(service_id, '') as service_id, meta_data, created_at`

// ApplyTipAllocation persists a tip allocation with its shares and applies
// the tip transfer, all in one database transaction.
func (d Datasource) ApplyTipAllocation(ctx context.Context, allocation *model.TipAllocation, transfer *model.Transfer, wallets map[string]*model.Wallet) error {
	metaDataJSON, err := json.Marshal(allocation.MetaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var serviceType, serviceID interface{}
	if allocation.Service.Type != "" {
		serviceType = allocation.Service.Type
		serviceID = allocation.Service.ID
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tip_allocations (tip_id, reference, payer_wallet_id, total_amount, currency, status, dispute_status, service_type, service_id, meta_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, '', $7, $8, $9, $10)
	`, allocation.TipID, allocation.Reference, allocation.PayerWalletID, allocation.TotalAmount,
		allocation.Currency, allocation.Status, serviceType, serviceID, metaDataJSON, allocation.CreatedAt)
	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "unique_violation" {
			return apierror.NewAPIError(apierror.ErrDuplicateReference,
				fmt.Sprintf("Tip reference '%s' has already been used", allocation.Reference), err)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create tip allocation", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tip_shares (share_id, tip_ref, recipient_id, role, wallet_id, amount, mode)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to prepare share insert", err)
	}
	defer stmt.Close()

	for _, share := range allocation.Shares {
		if _, err := stmt.ExecContext(ctx, share.ShareID, share.TipRef, share.RecipientID, share.Role, share.WalletID, share.Amount, share.Mode); err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert tip share", err)
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

// GetTipByRef retrieves a tip allocation with its shares.
func (d Datasource) GetTipByRef(ctx context.Context, reference string) (*model.TipAllocation, error) {
	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM tip_allocations WHERE reference = $1
	`, tipColumns), reference)

	tip, err := scanTipRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Tip '%s' not found", reference), nil)
		}
		return nil, err
	}

	shares, err := d.getTipShares(ctx, reference)
	if err != nil {
		return nil, err
	}
	tip.Shares = shares
	return tip, nil
}

// GetTipsByRecipient retrieves the tips a worker has received, newest first.
func (d Datasource) GetTipsByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]*model.TipAllocation, error) {
	rows, err := d.Conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM tip_allocations
		WHERE reference IN (SELECT tip_ref FROM tip_shares WHERE recipient_id = $1)
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, tipColumns), recipientID, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve tips", err)
	}
	defer rows.Close()

	var tips []*model.TipAllocation
	for rows.Next() {
		tip, err := scanTipRow(rows)
		if err != nil {
			return nil, err
		}
		tips = append(tips, tip)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating tips", err)
	}

	for _, tip := range tips {
		shares, err := d.getTipShares(ctx, tip.Reference)
		if err != nil {
			return nil, err
		}
		tip.Shares = shares
	}
	return tips, nil
}

// UpdateTipDisputeStatus transitions a tip's dispute state, guarded by the
// expected current state.
func (d Datasource) UpdateTipDisputeStatus(ctx context.Context, reference, from, to string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE tip_allocations SET dispute_status = $3 WHERE reference = $1 AND dispute_status = $2
	`, reference, from, to)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update dispute status", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrInvalidState,
			fmt.Sprintf("Tip '%s' dispute is not in state %q", reference, from), nil)
	}
	return nil
}

func (d Datasource) getTipShares(ctx context.Context, tipRef string) ([]model.TipShare, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT share_id, tip_ref, recipient_id, role, wallet_id, amount, mode
		FROM tip_shares WHERE tip_ref = $1 ORDER BY id
	`, tipRef)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve tip shares", err)
	}
	defer rows.Close()

	var shares []model.TipShare
	for rows.Next() {
		var s model.TipShare
		if err := rows.Scan(&s.ShareID, &s.TipRef, &s.RecipientID, &s.Role, &s.WalletID, &s.Amount, &s.Mode); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan tip share", err)
		}
		shares = append(shares, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating tip shares", err)
	}
	return shares, nil
}

func scanTipRow(scanner rowScanner) (*model.TipAllocation, error) {
	tip := &model.TipAllocation{}
	var metaDataJSON []byte
	err := scanner.Scan(&tip.TipID, &tip.Reference, &tip.PayerWalletID, &tip.TotalAmount, &tip.Currency,
		&tip.Status, &tip.DisputeStatus, &tip.Service.Type, &tip.Service.ID, &metaDataJSON, &tip.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan tip", err)
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &tip.MetaData); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
	}
	return tip, nil
}
