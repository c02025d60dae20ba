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

// AllocateTip takes a tip from the payer's wallet and distributes it across
// the recipients according to their roles' configured modes. The allocation,
// its shares and the balance movements commit atomically under the tip's
// reference, which is idempotent like any other settlement reference.
func (t *Tako) AllocateTip(ctx context.Context, reference, currency string, service model.ServiceRef, payerWalletID string, amount int64, recipients []model.TipRecipient) (*model.TipAllocation, error) {
	ctx, span := tracer.Start(ctx, "AllocateTip", trace.WithAttributes(
		attribute.String("tip.reference", reference),
	))
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	if reference == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "reference is required", nil)
	}
	if err := service.Validate(); err != nil {
		return nil, err
	}

	shares, err := model.ComputeTipShares(amount, recipients, cfg.Tips.RoleModes)
	if err != nil {
		return nil, err
	}

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

	if existing, err := t.datasource.GetTipByRef(ctx, reference); err == nil {
		logrus.WithField("reference", reference).Info("replaying already allocated tip")
		return existing, nil
	} else if !apierror.HasCode(err, apierror.ErrNotFound) {
		return nil, err
	}

	allocation := &model.TipAllocation{
		TipID:         model.GenerateUUIDWithSuffix("tip"),
		Reference:     reference,
		PayerWalletID: payerWalletID,
		TotalAmount:   amount,
		Currency:      currency,
		Status:        model.StatusCompleted,
		Service:       service,
		CreatedAt:     time.Now(),
	}
	for i := range shares {
		shares[i].TipRef = reference
	}
	allocation.Shares = shares

	legs := []model.Leg{{WalletID: payerWalletID, Amount: -amount}}
	for _, share := range shares {
		legs = append(legs, model.Leg{WalletID: share.WalletID, Amount: share.Amount})
	}
	transfer, err := model.NewTransfer(reference, model.KindTip, currency, service, legs)
	if err != nil {
		return nil, err
	}
	transfer.Status = model.StatusCompleted

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(cfg.Transfer.MaxRetries)), ctx)
	operation := func() error {
		wallets := make(map[string]*model.Wallet, len(transfer.Entries))
		for _, entry := range transfer.Entries {
			wallet, err := t.datasource.GetWalletByID(ctx, entry.WalletID)
			if err != nil {
				return backoff.Permanent(err)
			}
			wallets[wallet.WalletID] = wallet
		}
		if err := model.ApplyTransferToWallets(transfer, wallets); err != nil {
			return backoff.Permanent(err)
		}
		if err := t.datasource.ApplyTipAllocation(ctx, allocation, transfer, wallets); err != nil {
			if apierror.HasCode(err, apierror.ErrConflict) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, err
	}

	t.postEvent(EventTipAllocated, reference, allocation)
	return allocation, nil
}

// GetTip retrieves a tip allocation by reference.
func (t *Tako) GetTip(ctx context.Context, reference string) (*model.TipAllocation, error) {
	return t.datasource.GetTipByRef(ctx, reference)
}

// GetTipsByRecipient lists the tips a worker has received.
func (t *Tako) GetTipsByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]*model.TipAllocation, error) {
	return t.datasource.GetTipsByRecipient(ctx, recipientID, limit, offset)
}

// DisputeTip opens a dispute on an allocated tip, e.g. a customer claiming
// the tip amount was wrong. The money stays where it landed until the
// dispute resolves.
func (t *Tako) DisputeTip(ctx context.Context, reference string) (*model.TipAllocation, error) {
	tip, err := t.datasource.GetTipByRef(ctx, reference)
	if err != nil {
		return nil, err
	}
	if err := tip.CanTransitionDispute(model.DisputePending); err != nil {
		return nil, err
	}
	if err := t.datasource.UpdateTipDisputeStatus(ctx, reference, tip.DisputeStatus, model.DisputePending); err != nil {
		return nil, err
	}
	tip.DisputeStatus = model.DisputePending

	t.postEvent(EventTipDisputed, reference, tip)
	return tip, nil
}

// ResolveTipDispute closes a pending dispute. Confirming it reverses the tip
// transfer back to the payer; ignoring it leaves the shares in place.
func (t *Tako) ResolveTipDispute(ctx context.Context, reference string, confirm bool) (*model.TipAllocation, error) {
	tip, err := t.datasource.GetTipByRef(ctx, reference)
	if err != nil {
		return nil, err
	}

	next := model.DisputeIgnored
	if confirm {
		next = model.DisputeConfirmed
	}
	if err := tip.CanTransitionDispute(next); err != nil {
		return nil, err
	}
	if err := t.datasource.UpdateTipDisputeStatus(ctx, reference, tip.DisputeStatus, next); err != nil {
		return nil, err
	}
	tip.DisputeStatus = next

	if !confirm {
		return tip, nil
	}

	if _, err := t.Reverse(ctx, reference, ReverseOptions{Reason: fmt.Sprintf("tip dispute confirmed for %s", reference)}); err != nil {
		return nil, err
	}
	if err := t.datasource.UpdateTipDisputeStatus(ctx, reference, model.DisputeConfirmed, model.DisputeRefunded); err != nil {
		return nil, err
	}
	tip.DisputeStatus = model.DisputeRefunded
	return tip, nil
}
