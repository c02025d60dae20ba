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

package model

import (
	"fmt"
	"time"

	"github.com/halcyonpay/tako/internal/apierror"
)

// Transfer lifecycle states.
const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
	StatusReversed  = "REVERSED"
)

// Transfer kinds. A kind classifies why money moved; the math is identical
// for all of them.
const (
	KindCharge     = "charge"
	KindRefund     = "refund"
	KindTip        = "tip"
	KindPayout     = "payout"
	KindSplitShare = "split_share"
	KindDeposit    = "deposit"
)

var validKinds = map[string]bool{
	KindCharge:     true,
	KindRefund:     true,
	KindTip:        true,
	KindPayout:     true,
	KindSplitShare: true,
	KindDeposit:    true,
}

// Service types the platform settles money for.
const (
	ServiceRide        = "ride"
	ServiceOrder       = "order"
	ServiceReservation = "reservation"
	ServiceParking     = "parking"
	ServiceTicket      = "ticket"
)

var validServiceTypes = map[string]bool{
	ServiceRide:        true,
	ServiceOrder:       true,
	ServiceReservation: true,
	ServiceParking:     true,
	ServiceTicket:      true,
}

// ServiceRef ties a transfer back to the business object it settles.
type ServiceRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (s ServiceRef) Validate() error {
	if s.Type == "" && s.ID == "" {
		return nil
	}
	if !validServiceTypes[s.Type] {
		return apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("unknown service type: %s", s.Type), nil)
	}
	if s.ID == "" {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "service id is required when service type is set", nil)
	}
	return nil
}

func (s ServiceRef) String() string {
	if s.Type == "" {
		return ""
	}
	return s.Type + ":" + s.ID
}

// Leg is one signed movement against a wallet, in minor units. Positive
// credits the wallet, negative debits it. The legs of a transfer must sum to
// zero.
type Leg struct {
	WalletID string `json:"wallet_id"`
	Amount   int64  `json:"amount"`
}

// Entry is a persisted leg. Entries are immutable once written; corrections
// are new transfers.
type Entry struct {
	ID        int64     `json:"-"`
	EntryID   string    `json:"entry_id"`
	Reference string    `json:"reference"`
	WalletID  string    `json:"wallet_id"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

// Transfer is one atomic balance movement across two or more wallets,
// identified by a caller-supplied reference that doubles as the idempotency
// key. Amount is the gross amount moved (the sum of the credit legs).
// RefundedAmount tracks how much of a completed transfer has since been
// reversed.
type Transfer struct {
	ID             int64                  `json:"-"`
	TransferID     string                 `json:"transfer_id"`
	Reference      string                 `json:"reference"`
	Kind           string                 `json:"kind"`
	Currency       string                 `json:"currency"`
	Status         string                 `json:"status"`
	Amount         int64                  `json:"amount"`
	RefundedAmount int64                  `json:"refunded_amount"`
	Service        ServiceRef             `json:"service,omitempty"`
	Entries        []Entry                `json:"entries"`
	MetaData       map[string]interface{} `json:"meta_data,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// NewTransfer validates a set of legs and assembles a pending transfer. Legs
// must be non-zero, reference distinct wallets, and sum to exactly zero.
func NewTransfer(reference, kind, currency string, service ServiceRef, legs []Leg) (*Transfer, error) {
	if reference == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "reference is required", nil)
	}
	if !validKinds[kind] {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("unknown transfer kind: %s", kind), nil)
	}
	if currency == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "currency is required", nil)
	}
	if err := service.Validate(); err != nil {
		return nil, err
	}
	if len(legs) < 2 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "a transfer requires at least two legs", nil)
	}

	var sum, gross int64
	seen := make(map[string]bool, len(legs))
	for _, leg := range legs {
		if leg.WalletID == "" {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "leg wallet id is required", nil)
		}
		if leg.Amount == 0 {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("leg for wallet %s has zero amount", leg.WalletID), nil)
		}
		if seen[leg.WalletID] {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("wallet %s appears in more than one leg", leg.WalletID), nil)
		}
		seen[leg.WalletID] = true
		sum += leg.Amount
		if leg.Amount > 0 {
			gross += leg.Amount
		}
	}
	if sum != 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("legs must sum to zero, got %d", sum), nil)
	}

	transfer := &Transfer{
		TransferID: GenerateUUIDWithSuffix("txn"),
		Reference:  reference,
		Kind:       kind,
		Currency:   currency,
		Status:     StatusPending,
		Amount:     gross,
		Service:    service,
		CreatedAt:  time.Now(),
	}
	for _, leg := range legs {
		transfer.Entries = append(transfer.Entries, Entry{
			EntryID:   GenerateUUIDWithSuffix("ent"),
			Reference: reference,
			WalletID:  leg.WalletID,
			Amount:    leg.Amount,
			Currency:  currency,
			CreatedAt: transfer.CreatedAt,
		})
	}
	return transfer, nil
}

// RemainingRefundable is how much of the transfer's gross amount has not yet
// been reversed.
func (t *Transfer) RemainingRefundable() int64 {
	return t.Amount - t.RefundedAmount
}

// ReversalLegs computes the legs of a refund transfer that undoes `amount`
// of this transfer, proportionally across the original legs. Rounding
// remainders land on the largest leg of each side so both sides still total
// `amount` and the reversal sums to zero.
func (t *Transfer) ReversalLegs(amount int64) ([]Leg, error) {
	if t.Status != StatusCompleted && t.Status != StatusReversed {
		return nil, apierror.NewAPIError(apierror.ErrInvalidState,
			fmt.Sprintf("transfer %s is %s and cannot be reversed", t.Reference, t.Status), nil)
	}
	if amount <= 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "reversal amount must be positive", nil)
	}
	if amount > t.RemainingRefundable() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput,
			fmt.Sprintf("reversal amount %d exceeds remaining refundable %d on %s", amount, t.RemainingRefundable(), t.Reference), nil)
	}

	scale := func(entries []Entry) []Leg {
		var scaled []Leg
		var total int64
		largest := -1
		for _, e := range entries {
			share := magnitude(e.Amount) * amount / t.Amount
			scaled = append(scaled, Leg{WalletID: e.WalletID, Amount: share})
			total += share
			if largest < 0 || magnitude(e.Amount) > magnitude(entries[largest].Amount) {
				largest = len(scaled) - 1
			}
		}
		scaled[largest].Amount += amount - total
		return scaled
	}

	var credits, debits []Entry
	for _, e := range t.Entries {
		if e.Amount > 0 {
			credits = append(credits, e)
		} else {
			debits = append(debits, e)
		}
	}

	var legs []Leg
	// wallets that received money now give it back, and vice versa
	for _, l := range scale(credits) {
		if l.Amount != 0 {
			legs = append(legs, Leg{WalletID: l.WalletID, Amount: -l.Amount})
		}
	}
	for _, l := range scale(debits) {
		if l.Amount != 0 {
			legs = append(legs, Leg{WalletID: l.WalletID, Amount: l.Amount})
		}
	}
	return legs, nil
}

func magnitude(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// RefundRecord is the audit row written alongside every reversal, linking
// the refund transfer back to the transfer it undoes.
type RefundRecord struct {
	ID                int64     `json:"-"`
	RefundID          string    `json:"refund_id"`
	OriginalReference string    `json:"original_reference"`
	RefundReference   string    `json:"refund_reference"`
	Amount            int64     `json:"amount"`
	Currency          string    `json:"currency"`
	Reason            string    `json:"reason,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}
