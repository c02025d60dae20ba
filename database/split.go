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
	"time"

	"github.com/lib/pq"

	"github.com/halcyonpay/tako/internal/apierror"
	"github.com/halcyonpay/tako/model"
)

const splitColumns = `split_id, reference, COALESCE(service_type, '') as service_type, COALESCE(service_id, '') as service_id, initiator_id, merchant_wallet_id, total_amount, split_type, currency, status, expires_at, created_at, meta_data`

// CreateSplitRequest inserts a split request with all its participants in
// one database transaction.
func (d Datasource) CreateSplitRequest(ctx context.Context, split *model.SplitRequest) error {
	metaDataJSON, err := json.Marshal(split.MetaData)
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
	if split.Service.Type != "" {
		serviceType = split.Service.Type
		serviceID = split.Service.ID
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO split_requests (split_id, reference, service_type, service_id, initiator_id, merchant_wallet_id, total_amount, split_type, currency, status, expires_at, created_at, meta_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, split.SplitID, split.Reference, serviceType, serviceID, split.InitiatorID, split.MerchantWalletID,
		split.TotalAmount, split.SplitType, split.Currency, split.Status, split.ExpiresAt, split.CreatedAt, metaDataJSON)
	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok {
			switch pqErr.Code.Name() {
			case "unique_violation":
				return apierror.NewAPIError(apierror.ErrDuplicateReference,
					fmt.Sprintf("Split reference '%s' has already been used", split.Reference), err)
			case "foreign_key_violation":
				return apierror.NewAPIError(apierror.ErrBadRequest, "Invalid merchant wallet", err)
			}
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create split request", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO split_participants (participant_id, split_ref, customer_id, wallet_id, amount, percent, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to prepare participant insert", err)
	}
	defer stmt.Close()

	for _, p := range split.Participants {
		if _, err := stmt.ExecContext(ctx, p.ParticipantID, p.SplitRef, p.CustomerID, p.WalletID, p.Amount, p.Percent, p.Status, p.CreatedAt); err != nil {
			pqErr, ok := err.(*pq.Error)
			if ok && pqErr.Code.Name() == "unique_violation" {
				return apierror.NewAPIError(apierror.ErrConflict,
					fmt.Sprintf("Customer '%s' appears more than once on split '%s'", p.CustomerID, split.Reference), err)
			}
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert participant", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return nil
}

// GetSplitRequestByRef retrieves a split request with its participants.
func (d Datasource) GetSplitRequestByRef(ctx context.Context, reference string) (*model.SplitRequest, error) {
	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM split_requests WHERE reference = $1
	`, splitColumns), reference)

	split, err := scanSplitRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Split request '%s' not found", reference), nil)
		}
		return nil, err
	}

	participants, err := d.getParticipants(ctx, d.Conn, reference, false)
	if err != nil {
		return nil, err
	}
	split.Participants = participants
	return split, nil
}

// GetSplitRequestsByInitiator retrieves the split requests a customer has
// opened, newest first.
func (d Datasource) GetSplitRequestsByInitiator(ctx context.Context, initiatorID string, limit, offset int) ([]*model.SplitRequest, error) {
	rows, err := d.Conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM split_requests WHERE initiator_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, splitColumns), initiatorID, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve split requests", err)
	}
	defer rows.Close()

	var splits []*model.SplitRequest
	for rows.Next() {
		split, err := scanSplitRow(rows)
		if err != nil {
			return nil, err
		}
		splits = append(splits, split)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating split requests", err)
	}

	for _, split := range splits {
		participants, err := d.getParticipants(ctx, d.Conn, split.Reference, false)
		if err != nil {
			return nil, err
		}
		split.Participants = participants
	}
	return splits, nil
}

// GetExpiredSplitRequests retrieves open split requests whose expiry has
// passed, for the expiry worker to sweep.
func (d Datasource) GetExpiredSplitRequests(ctx context.Context, asOf time.Time) ([]*model.SplitRequest, error) {
	rows, err := d.Conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM split_requests
		WHERE status IN ($1, $2) AND expires_at <= $3
		ORDER BY expires_at
	`, splitColumns), model.SplitPending, model.SplitPartiallySettled, asOf)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve expired split requests", err)
	}
	defer rows.Close()

	var splits []*model.SplitRequest
	for rows.Next() {
		split, err := scanSplitRow(rows)
		if err != nil {
			return nil, err
		}
		splits = append(splits, split)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating split requests", err)
	}

	for _, split := range splits {
		participants, err := d.getParticipants(ctx, d.Conn, split.Reference, false)
		if err != nil {
			return nil, err
		}
		split.Participants = participants
	}
	return splits, nil
}

// SettleSplitParticipant applies a participant's share transfer and flips
// the participant to PAID in one database transaction. All participant rows
// are locked and re-read inside the transaction so the parent status
// recompute sees a consistent view, and the final payer reliably settles the
// parent.
func (d Datasource) SettleSplitParticipant(ctx context.Context, splitRef, participantID string, transfer *model.Transfer, wallets map[string]*model.Wallet) (*model.SplitRequest, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	split, err := lockSplitRow(ctx, tx, splitRef)
	if err != nil {
		return nil, err
	}
	if !split.IsOpen() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidState,
			fmt.Sprintf("Split '%s' is %s and no longer accepts payments", splitRef, split.Status), nil)
	}

	if err := insertTransfer(ctx, tx, transfer); err != nil {
		return nil, err
	}
	for _, wallet := range wallets {
		if err := updateWalletBalance(ctx, tx, wallet); err != nil {
			return nil, err
		}
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE split_participants SET status = $3, paid_reference = $4
		WHERE split_ref = $1 AND participant_id = $2 AND status = $5
	`, splitRef, participantID, model.ParticipantPaid, transfer.Reference, model.ParticipantPending)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update participant", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidState,
			fmt.Sprintf("Participant '%s' on split '%s' is not pending", participantID, splitRef), nil)
	}

	split.Participants, err = d.getParticipants(ctx, tx, splitRef, true)
	if err != nil {
		return nil, err
	}

	next := split.Recompute()
	if next != split.Status {
		if _, err := tx.ExecContext(ctx, `UPDATE split_requests SET status = $2 WHERE reference = $1`, splitRef, next); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update split status", err)
		}
		split.Status = next
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return split, nil
}

// ResolveSplitParticipant moves a pending participant to a terminal non-paid
// state.
func (d Datasource) ResolveSplitParticipant(ctx context.Context, splitRef, participantID, status string) (*model.SplitRequest, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	split, err := lockSplitRow(ctx, tx, splitRef)
	if err != nil {
		return nil, err
	}
	if !split.IsOpen() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidState,
			fmt.Sprintf("Split '%s' is %s and no longer accepts changes", splitRef, split.Status), nil)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE split_participants SET status = $3
		WHERE split_ref = $1 AND participant_id = $2 AND status = $4
	`, splitRef, participantID, status, model.ParticipantPending)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update participant", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidState,
			fmt.Sprintf("Participant '%s' on split '%s' is not pending", participantID, splitRef), nil)
	}

	split.Participants, err = d.getParticipants(ctx, tx, splitRef, true)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return split, nil
}

// UpdateSplitStatus transitions a split request, guarded by its expected
// current status.
func (d Datasource) UpdateSplitStatus(ctx context.Context, reference, from, to string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE split_requests SET status = $3 WHERE reference = $1 AND status = $2
	`, reference, from, to)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update split status", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrInvalidState,
			fmt.Sprintf("Split '%s' is not in state %s", reference, from), nil)
	}
	return nil
}

func lockSplitRow(ctx context.Context, tx *sql.Tx, reference string) (*model.SplitRequest, error) {
	row := tx.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM split_requests WHERE reference = $1 FOR UPDATE
	`, splitColumns), reference)
	split, err := scanSplitRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Split request '%s' not found", reference), nil)
		}
		return nil, err
	}
	return split, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (d Datasource) getParticipants(ctx context.Context, q queryer, splitRef string, forUpdate bool) ([]model.SplitParticipant, error) {
	query := `
		SELECT participant_id, split_ref, customer_id, wallet_id, amount, percent, status, COALESCE(paid_reference, ''), created_at
		FROM split_participants WHERE split_ref = $1 ORDER BY id`
	if forUpdate {
		query += " FOR UPDATE"
	}

	rows, err := q.QueryContext(ctx, query, splitRef)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve participants", err)
	}
	defer rows.Close()

	var participants []model.SplitParticipant
	for rows.Next() {
		var p model.SplitParticipant
		if err := rows.Scan(&p.ParticipantID, &p.SplitRef, &p.CustomerID, &p.WalletID, &p.Amount, &p.Percent, &p.Status, &p.PaidReference, &p.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan participant", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error iterating participants", err)
	}
	return participants, nil
}

func scanSplitRow(scanner rowScanner) (*model.SplitRequest, error) {
	split := &model.SplitRequest{}
	var metaDataJSON []byte
	err := scanner.Scan(&split.SplitID, &split.Reference, &split.Service.Type, &split.Service.ID,
		&split.InitiatorID, &split.MerchantWalletID, &split.TotalAmount, &split.SplitType,
		&split.Currency, &split.Status, &split.ExpiresAt, &split.CreatedAt, &metaDataJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan split request", err)
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &split.MetaData); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
	}
	return split, nil
}
