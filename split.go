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

// SplitParticipantSpec declares one participant when opening a split.
type SplitParticipantSpec struct {
	CustomerID string  `json:"customer_id"`
	WalletID   string  `json:"wallet_id"`
	Amount     int64   `json:"amount,omitempty"`
	Percent    float64 `json:"percent,omitempty"`
}

// InitiateSplit opens a payment request dividing a bill across a group of
// customers. Shares are resolved and validated up front; nothing moves until
// each participant pays their own share.
func (t *Tako) InitiateSplit(ctx context.Context, reference, splitType, currency string, service model.ServiceRef, initiatorID, merchantWalletID string, totalAmount int64, specs []SplitParticipantSpec) (*model.SplitRequest, error) {
	ctx, span := tracer.Start(ctx, "InitiateSplit", trace.WithAttributes(
		attribute.String("split.reference", reference),
		attribute.String("split.type", splitType),
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
	if len(specs) > cfg.Split.MaxParticipants {
		return nil, apierror.NewAPIError(apierror.ErrLimitExceeded,
			fmt.Sprintf("split has %d participants, maximum is %d", len(specs), cfg.Split.MaxParticipants), nil)
	}

	shareSpecs := make([]model.ShareSpec, len(specs))
	for i, s := range specs {
		if s.CustomerID == "" || s.WalletID == "" {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "participant customer id and wallet id are required", nil)
		}
		shareSpecs[i] = model.ShareSpec{CustomerID: s.CustomerID, WalletID: s.WalletID, Amount: s.Amount, Percent: s.Percent}
	}
	shares, err := model.ComputeShares(splitType, totalAmount, shareSpecs)
	if err != nil {
		return nil, err
	}
	for _, share := range shares {
		if share < cfg.Split.MinShare || share > cfg.Split.MaxShare {
			return nil, apierror.NewAPIError(apierror.ErrLimitExceeded,
				fmt.Sprintf("share of %d is outside the allowed range [%d, %d]", share, cfg.Split.MinShare, cfg.Split.MaxShare), nil)
		}
	}

	now := time.Now()
	split := &model.SplitRequest{
		SplitID:          model.GenerateUUIDWithSuffix("spl"),
		Reference:        reference,
		Service:          service,
		InitiatorID:      initiatorID,
		MerchantWalletID: merchantWalletID,
		TotalAmount:      totalAmount,
		SplitType:        splitType,
		Currency:         currency,
		Status:           model.SplitPending,
		ExpiresAt:        now.Add(time.Duration(cfg.Split.ExpiryMinutes) * time.Minute),
		CreatedAt:        now,
	}
	for i, s := range specs {
		split.Participants = append(split.Participants, model.SplitParticipant{
			ParticipantID: model.GenerateUUIDWithSuffix("prt"),
			SplitRef:      reference,
			CustomerID:    s.CustomerID,
			WalletID:      s.WalletID,
			Amount:        shares[i],
			Percent:       s.Percent,
			Status:        model.ParticipantPending,
			CreatedAt:     now,
		})
	}

	if err := t.datasource.CreateSplitRequest(ctx, split); err != nil {
		return nil, err
	}

	t.postEvent(EventSplitInitiated, reference, split)
	return split, nil
}

// PayParticipant settles one participant's share from their wallet into the
// merchant wallet. The share transfer uses a deterministic sub-reference so
// a retried payment replays instead of double-charging. When the final
// participant pays, the parent request settles in the same database
// transaction.
func (t *Tako) PayParticipant(ctx context.Context, splitRef, participantID string) (*model.SplitRequest, error) {
	ctx, span := tracer.Start(ctx, "PayParticipant", trace.WithAttributes(
		attribute.String("split.reference", splitRef),
		attribute.String("split.participant", participantID),
	))
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	locker := redlock.NewLocker(t.redis, "split:"+splitRef, model.GenerateUUIDWithSuffix("loc"))
	lockTTL := time.Duration(cfg.Transfer.LockTTLSeconds) * time.Second
	if err := locker.WaitLock(ctx, lockTTL, lockTTL); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to acquire split lock", err)
	}
	defer func() {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Warnf("failed to release split lock for %s: %v", splitRef, err)
		}
	}()

	split, err := t.datasource.GetSplitRequestByRef(ctx, splitRef)
	if err != nil {
		return nil, err
	}
	participant, err := split.FindParticipant(participantID)
	if err != nil {
		return nil, err
	}
	if participant.Status == model.ParticipantPaid {
		logrus.WithField("participant", participantID).Info("participant share already settled")
		return split, nil
	}
	if participant.Status != model.ParticipantPending {
		return nil, apierror.NewAPIError(apierror.ErrInvalidState,
			fmt.Sprintf("participant %s has %s their share", participantID, participant.Status), nil)
	}
	if !split.IsOpen() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidState,
			fmt.Sprintf("split %s is %s and no longer accepts payments", splitRef, split.Status), nil)
	}

	shareReference := fmt.Sprintf("%s_p_%s", splitRef, participantID)
	transfer, err := model.NewTransfer(shareReference, model.KindSplitShare, split.Currency, split.Service, []model.Leg{
		{WalletID: participant.WalletID, Amount: -participant.Amount},
		{WalletID: split.MerchantWalletID, Amount: participant.Amount},
	})
	if err != nil {
		return nil, err
	}
	transfer.Status = model.StatusCompleted

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(cfg.Transfer.MaxRetries)), ctx)

	var settled *model.SplitRequest
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
		result, err := t.datasource.SettleSplitParticipant(ctx, splitRef, participantID, transfer, wallets)
		if err != nil {
			if apierror.HasCode(err, apierror.ErrConflict) {
				return err
			}
			return backoff.Permanent(err)
		}
		settled = result
		return nil
	}
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, err
	}

	t.postEvent(EventParticipantPaid, shareReference, settled)
	if settled.Status == model.SplitSettled {
		t.postEvent(EventSplitSettled, splitRef, settled)
	}
	return settled, nil
}

// DeclineParticipant marks a participant as refusing their share. The split
// can then never fully settle; the initiator decides whether to cancel or
// let it ride to expiry.
func (t *Tako) DeclineParticipant(ctx context.Context, splitRef, participantID string) (*model.SplitRequest, error) {
	split, err := t.datasource.ResolveSplitParticipant(ctx, splitRef, participantID, model.ParticipantDeclined)
	if err != nil {
		return nil, err
	}
	return split, nil
}

// CancelSplit closes an open split request. Shares already paid are
// reversed back to their payers; pending participants are simply released.
func (t *Tako) CancelSplit(ctx context.Context, splitRef string) (*model.SplitRequest, error) {
	return t.closeSplit(ctx, splitRef, model.SplitCancelled, true)
}

// ExpireDueSplits sweeps open split requests past their expiry. Paid shares
// are reversed when the expiry policy says so; otherwise the money stays
// with the merchant and only the request closes.
func (t *Tako) ExpireDueSplits(ctx context.Context) (int, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return 0, err
	}

	due, err := t.datasource.GetExpiredSplitRequests(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, split := range due {
		if _, err := t.closeSplit(ctx, split.Reference, model.SplitExpired, cfg.Split.ReverseOnExpiry); err != nil {
			logrus.WithField("split", split.Reference).Errorf("failed to expire split: %v", err)
			continue
		}
		expired++
	}
	return expired, nil
}

// GetSplit retrieves a split request by reference.
func (t *Tako) GetSplit(ctx context.Context, reference string) (*model.SplitRequest, error) {
	return t.datasource.GetSplitRequestByRef(ctx, reference)
}

// GetSplitsByInitiator lists the split requests a customer has opened.
func (t *Tako) GetSplitsByInitiator(ctx context.Context, initiatorID string, limit, offset int) ([]*model.SplitRequest, error) {
	return t.datasource.GetSplitRequestsByInitiator(ctx, initiatorID, limit, offset)
}

func (t *Tako) closeSplit(ctx context.Context, splitRef, terminalStatus string, reversePaid bool) (*model.SplitRequest, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	locker := redlock.NewLocker(t.redis, "split:"+splitRef, model.GenerateUUIDWithSuffix("loc"))
	lockTTL := time.Duration(cfg.Transfer.LockTTLSeconds) * time.Second
	if err := locker.WaitLock(ctx, lockTTL, lockTTL); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to acquire split lock", err)
	}
	defer func() {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Warnf("failed to release split lock for %s: %v", splitRef, err)
		}
	}()

	split, err := t.datasource.GetSplitRequestByRef(ctx, splitRef)
	if err != nil {
		return nil, err
	}
	if !split.IsOpen() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidState,
			fmt.Sprintf("split %s is already %s", splitRef, split.Status), nil)
	}

	if err := t.datasource.UpdateSplitStatus(ctx, splitRef, split.Status, terminalStatus); err != nil {
		return nil, err
	}
	split.Status = terminalStatus

	if reversePaid {
		for _, p := range split.PaidParticipants() {
			if _, err := t.Reverse(ctx, p.PaidReference, ReverseOptions{
				Reason: fmt.Sprintf("split %s %s", splitRef, terminalStatus),
			}); err != nil && !apierror.HasCode(err, apierror.ErrInvalidState) {
				// already-reversed shares are fine; anything else needs eyes
				logrus.WithField("split", splitRef).Errorf("failed to reverse share %s: %v", p.PaidReference, err)
			}
		}
	}

	event := EventSplitCancelled
	if terminalStatus == model.SplitExpired {
		event = EventSplitExpired
	}
	t.postEvent(event, splitRef, split)
	return split, nil
}
