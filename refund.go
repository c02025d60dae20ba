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
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/halcyonpay/tako/config"
	"github.com/halcyonpay/tako/internal/apierror"
	redlock "github.com/halcyonpay/tako/internal/lock"
	"github.com/halcyonpay/tako/model"
)

// ReverseOptions tunes a reversal. A zero Amount means a full reversal of
// whatever remains refundable.
type ReverseOptions struct {
	Amount int64
	Reason string
}

// Reverse undoes a completed transfer, in full or in part, by issuing a
// compensating refund transfer. The original rows stay immutable; only its
// refunded_amount and status change. Repeated partial reversals are allowed
// until the gross amount is exhausted, and the database guard makes
// over-refunding impossible even under concurrency.
func (t *Tako) Reverse(ctx context.Context, originalReference string, opts ReverseOptions) (*TransferResult, error) {
	ctx, span := tracer.Start(ctx, "Reverse", trace.WithAttributes(
		attribute.String("transfer.reference", originalReference),
	))
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	// same lock key as forward settlement of this reference, so a reversal
	// can never interleave with a replay of the original
	locker := redlock.NewLocker(t.redis, "settle:"+originalReference, model.GenerateUUIDWithSuffix("loc"))
	lockTTL := time.Duration(cfg.Transfer.LockTTLSeconds) * time.Second
	if err := locker.WaitLock(ctx, lockTTL, lockTTL); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to acquire settlement lock", err)
	}
	defer func() {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Warnf("failed to release settlement lock for %s: %v", originalReference, err)
		}
	}()

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(cfg.Transfer.MaxRetries)), ctx)

	var result *TransferResult
	operation := func() error {
		r, err := t.reverseOnce(ctx, originalReference, opts)
		if err != nil {
			if apierror.HasCode(err, apierror.ErrConflict) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = r
		return nil
	}
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, err
	}

	t.postEvent(EventTransferReversed, result.Transfer.Reference, result.Transfer)
	result.Warnings = t.notifyPorts(ctx, EventTransferReversed, result.Transfer.Reference, result.Transfer)
	return result, nil
}

func (t *Tako) reverseOnce(ctx context.Context, originalReference string, opts ReverseOptions) (*TransferResult, error) {
	original, err := t.datasource.GetTransferByRef(ctx, originalReference)
	if err != nil {
		return nil, err
	}

	amount := opts.Amount
	if amount == 0 {
		amount = original.RemainingRefundable()
	}
	if original.RemainingRefundable() == 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidState,
			fmt.Sprintf("transfer %s has already been fully reversed", originalReference), nil)
	}

	legs, err := original.ReversalLegs(amount)
	if err != nil {
		return nil, err
	}

	refundReference := fmt.Sprintf("%s_rev_%d", originalReference, original.RefundedAmount)
	refund, err := model.NewTransfer(refundReference, model.KindRefund, original.Currency, original.Service, legs)
	if err != nil {
		return nil, err
	}

	wallets := make(map[string]*model.Wallet, len(refund.Entries))
	for _, entry := range refund.Entries {
		wallet, err := t.datasource.GetWalletByID(ctx, entry.WalletID)
		if err != nil {
			return nil, err
		}
		wallets[wallet.WalletID] = wallet
	}

	// refunds may debit spent-down wallets below zero; the money was never
	// theirs to keep
	for _, wallet := range wallets {
		if !wallet.AllowOverdraft {
			wallet.AllowOverdraft = true
			defer func(w *model.Wallet) { w.AllowOverdraft = false }(wallet)
		}
	}
	if err := model.ApplyTransferToWallets(refund, wallets); err != nil {
		return nil, err
	}

	record := &model.RefundRecord{
		RefundID:          model.GenerateUUIDWithSuffix("rfd"),
		OriginalReference: originalReference,
		RefundReference:   refundReference,
		Amount:            amount,
		Currency:          original.Currency,
		Reason:            opts.Reason,
		CreatedAt:         time.Now(),
	}

	refund.Status = model.StatusCompleted
	if err := t.datasource.ApplyReversal(ctx, refund, original, record, wallets); err != nil {
		return nil, err
	}
	return &TransferResult{Transfer: refund}, nil
}

// GetRefunds lists the refund records written against a transfer.
func (t *Tako) GetRefunds(ctx context.Context, originalReference string) ([]model.RefundRecord, error) {
	return t.datasource.GetRefundsForReference(ctx, originalReference)
}
