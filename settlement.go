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
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/halcyonpay/tako/config"
	"github.com/halcyonpay/tako/internal/apierror"
	redlock "github.com/halcyonpay/tako/internal/lock"
	"github.com/halcyonpay/tako/model"
)

var tracer = otel.Tracer("tako.settlement")

// TransferResult is what a settlement call returns. Replayed is set when the
// reference had already settled and the stored outcome was returned instead
// of moving money again. Warnings carry port delivery failures that happened
// after the ledger write committed; the money movement itself stands.
type TransferResult struct {
	Transfer *model.Transfer `json:"transfer"`
	Replayed bool            `json:"replayed"`
	Warnings []string        `json:"warnings,omitempty"`
}

// Transfer atomically moves money across the wallets named in legs. The
// caller-supplied reference is the idempotency key: replaying a completed
// reference returns the stored result, while a failed attempt leaves the
// reference free to retry.
//
// Version conflicts from concurrent settlements touching the same wallets
// are retried with jittered backoff up to the configured attempt budget.
func (t *Tako) Transfer(ctx context.Context, reference, kind, currency string, service model.ServiceRef, legs []model.Leg, metadata map[string]interface{}) (*TransferResult, error) {
	ctx, span := tracer.Start(ctx, "Transfer", trace.WithAttributes(
		attribute.String("transfer.reference", reference),
		attribute.String("transfer.kind", kind),
	))
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	transfer, err := model.NewTransfer(reference, kind, currency, service, legs)
	if err != nil {
		return nil, err
	}
	transfer.MetaData = metadata

	// serialize against reversals and replays of the same reference
	locker := redlock.NewLocker(t.redis, "settle:"+reference, model.GenerateUUIDWithSuffix("loc"))
	lockTTL := time.Duration(cfg.Transfer.LockTTLSeconds) * time.Second
	if err := locker.WaitLock(ctx, lockTTL, lockTTL); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to acquire settlement lock", err)
	}
	defer func() {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Warnf("failed to release settlement lock for %s: %v", reference, err)
		}
	}()

	if replay, err := t.replayCompleted(ctx, reference); replay != nil || err != nil {
		return replay, err
	}

	result, err := t.settleWithRetry(ctx, cfg, transfer)
	if err != nil {
		return nil, err
	}

	t.postEvent(EventTransferCompleted, reference, result.Transfer)
	result.Warnings = t.notifyPorts(ctx, EventTransferCompleted, reference, result.Transfer)
	return result, nil
}

// ChargeWallet settles a simple two-leg charge from a customer wallet into a
// recipient wallet. Convenience wrapper over Transfer for the common case.
func (t *Tako) ChargeWallet(ctx context.Context, reference, currency string, service model.ServiceRef, fromWalletID, toWalletID string, amount int64) (*TransferResult, error) {
	if amount <= 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "charge amount must be positive", nil)
	}
	return t.Transfer(ctx, reference, model.KindCharge, currency, service, []model.Leg{
		{WalletID: fromWalletID, Amount: -amount},
		{WalletID: toWalletID, Amount: amount},
	}, nil)
}

// Deposit funds a wallet from an external source. The external side of the
// movement is absorbed by an internal "@" wallet so the ledger still
// balances to zero.
func (t *Tako) Deposit(ctx context.Context, reference, currency, sourceIndicator, toWalletID string, amount int64) (*TransferResult, error) {
	if amount <= 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "deposit amount must be positive", nil)
	}
	if !model.IsInternalWalletID(sourceIndicator) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "deposit source must be an internal indicator", nil)
	}
	source, err := t.datasource.GetOrCreateWalletByIndicator(ctx, sourceIndicator, currency)
	if err != nil {
		return nil, err
	}
	return t.Transfer(ctx, reference, model.KindDeposit, currency, model.ServiceRef{}, []model.Leg{
		{WalletID: source.WalletID, Amount: -amount},
		{WalletID: toWalletID, Amount: amount},
	}, nil)
}

// Payout moves earned balance out of a worker's wallet to an external
// destination, again via an internal indicator wallet.
func (t *Tako) Payout(ctx context.Context, reference, currency, fromWalletID, destinationIndicator string, amount int64) (*TransferResult, error) {
	if amount <= 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "payout amount must be positive", nil)
	}
	if !model.IsInternalWalletID(destinationIndicator) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "payout destination must be an internal indicator", nil)
	}
	destination, err := t.datasource.GetOrCreateWalletByIndicator(ctx, destinationIndicator, currency)
	if err != nil {
		return nil, err
	}
	return t.Transfer(ctx, reference, model.KindPayout, currency, model.ServiceRef{}, []model.Leg{
		{WalletID: fromWalletID, Amount: -amount},
		{WalletID: destination.WalletID, Amount: amount},
	}, nil)
}

// replayCompleted returns the stored result when the reference has already
// settled. The cheap existence check keeps the common first-attempt path to
// a single indexed lookup; only committed transfers are replayable, failed
// attempts are never persisted.
func (t *Tako) replayCompleted(ctx context.Context, reference string) (*TransferResult, error) {
	exists, err := t.datasource.TransferExistsByRef(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	existing, err := t.datasource.GetTransferByRef(ctx, reference)
	if err != nil {
		return nil, err
	}
	logrus.WithField("reference", reference).Info("replaying already settled transfer")
	return &TransferResult{Transfer: existing, Replayed: true}, nil
}

// settleWithRetry applies a transfer, retrying version conflicts with
// exponential backoff. Terminal errors (validation, insufficient funds,
// duplicate reference) abort immediately.
func (t *Tako) settleWithRetry(ctx context.Context, cfg *config.Configuration, transfer *model.Transfer) (*TransferResult, error) {
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(cfg.Transfer.MaxRetries)), ctx)

	var applied *model.Transfer
	operation := func() error {
		result, err := t.settleOnce(ctx, transfer)
		if err != nil {
			if apierror.HasCode(err, apierror.ErrConflict) {
				// contended wallet; reload and retry
				return err
			}
			return backoff.Permanent(err)
		}
		applied = result
		return nil
	}

	if err := backoff.Retry(operation, bo); err != nil {
		return nil, err
	}
	return &TransferResult{Transfer: applied}, nil
}

// settleOnce loads the touched wallets at their current versions, applies
// the transfer in memory and persists everything in one guarded database
// transaction.
func (t *Tako) settleOnce(ctx context.Context, transfer *model.Transfer) (*model.Transfer, error) {
	wallets := make(map[string]*model.Wallet, len(transfer.Entries))
	for _, entry := range transfer.Entries {
		wallet, err := t.datasource.GetWalletByID(ctx, entry.WalletID)
		if err != nil {
			return nil, err
		}
		wallets[wallet.WalletID] = wallet
	}

	if err := model.ApplyTransferToWallets(transfer, wallets); err != nil {
		return nil, err
	}

	transfer.Status = model.StatusCompleted
	if err := t.datasource.ApplyTransfer(ctx, transfer, wallets); err != nil {
		transfer.Status = model.StatusPending
		return nil, err
	}
	return transfer, nil
}

// postEvent publishes a post-commit event. Delivery is best effort; the
// ledger write has already committed.
func (t *Tako) postEvent(event, reference string, data interface{}) {
	if t.queue == nil {
		return
	}
	if err := t.queue.Enqueue(LedgerEvent{
		Event:     event,
		Reference: reference,
		Data:      data,
		Timestamp: time.Now(),
	}); err != nil {
		logrus.WithField("event", event).WithField("reference", reference).Warnf("failed to enqueue event: %v", err)
	}
}
