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
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/halcyonpay/tako/model"
)

// CreateWallet is the request body for opening a wallet.
type CreateWallet struct {
	OwnerID   string                 `json:"owner_id"`
	OwnerRole string                 `json:"owner_role"`
	Currency  string                 `json:"currency"`
	MetaData  map[string]interface{} `json:"meta_data"`
}

func (w *CreateWallet) ValidateCreateWallet() error {
	return validation.ValidateStruct(w,
		validation.Field(&w.OwnerID, validation.Required),
		validation.Field(&w.OwnerRole, validation.Required),
		validation.Field(&w.Currency, validation.Required, validation.Length(3, 3)),
	)
}

// TransferLeg is one wallet movement in a transfer request. Amounts are
// decimal strings in major units; the API converts them to minor units.
type TransferLeg struct {
	WalletID string          `json:"wallet_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// RecordTransfer is the request body for a multi-leg settlement.
type RecordTransfer struct {
	Reference   string                 `json:"reference"`
	Kind        string                 `json:"kind"`
	Currency    string                 `json:"currency"`
	ServiceType string                 `json:"service_type"`
	ServiceID   string                 `json:"service_id"`
	Legs        []TransferLeg          `json:"legs"`
	MetaData    map[string]interface{} `json:"meta_data"`
}

func (t *RecordTransfer) ValidateRecordTransfer() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.Reference, validation.Required),
		validation.Field(&t.Kind, validation.Required),
		validation.Field(&t.Currency, validation.Required, validation.Length(3, 3)),
		validation.Field(&t.Legs, validation.Required, validation.Length(2, 0)),
	)
}

// ToLegs converts the decimal leg amounts into signed minor units.
func (t *RecordTransfer) ToLegs() ([]model.Leg, error) {
	legs := make([]model.Leg, 0, len(t.Legs))
	for _, leg := range t.Legs {
		minor, err := model.ToMinorUnits(leg.Amount, t.Currency)
		if err != nil {
			return nil, err
		}
		legs = append(legs, model.Leg{WalletID: leg.WalletID, Amount: minor})
	}
	return legs, nil
}

// ReverseTransfer is the request body for a reversal. A zero amount means a
// full reversal of whatever remains refundable.
type ReverseTransfer struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

// AllocateTip is the request body for allocating a tip.
type AllocateTip struct {
	Reference     string          `json:"reference"`
	Currency      string          `json:"currency"`
	ServiceType   string          `json:"service_type"`
	ServiceID     string          `json:"service_id"`
	PayerWalletID string          `json:"payer_wallet_id"`
	Amount        decimal.Decimal `json:"amount"`
	Recipients    []TipRecipient  `json:"recipients"`
}

type TipRecipient struct {
	RecipientID string `json:"recipient_id"`
	Role        string `json:"role"`
	WalletID    string `json:"wallet_id"`
}

func (t *AllocateTip) ValidateAllocateTip() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.Reference, validation.Required),
		validation.Field(&t.Currency, validation.Required, validation.Length(3, 3)),
		validation.Field(&t.PayerWalletID, validation.Required),
		validation.Field(&t.Amount, validation.Required, validation.By(positiveAmount)),
		validation.Field(&t.Recipients, validation.Required, validation.Length(1, 0)),
	)
}

func (t *AllocateTip) ToRecipients() []model.TipRecipient {
	recipients := make([]model.TipRecipient, 0, len(t.Recipients))
	for _, r := range t.Recipients {
		recipients = append(recipients, model.TipRecipient{RecipientID: r.RecipientID, Role: r.Role, WalletID: r.WalletID})
	}
	return recipients
}

// InitiateSplit is the request body for opening a split payment request.
type InitiateSplit struct {
	Reference        string             `json:"reference"`
	SplitType        string             `json:"split_type"`
	Currency         string             `json:"currency"`
	ServiceType      string             `json:"service_type"`
	ServiceID        string             `json:"service_id"`
	InitiatorID      string             `json:"initiator_id"`
	MerchantWalletID string             `json:"merchant_wallet_id"`
	TotalAmount      decimal.Decimal    `json:"total_amount"`
	Participants     []SplitParticipant `json:"participants"`
}

type SplitParticipant struct {
	CustomerID string          `json:"customer_id"`
	WalletID   string          `json:"wallet_id"`
	Amount     decimal.Decimal `json:"amount"`
	Percent    float64         `json:"percent"`
}

func (s *InitiateSplit) ValidateInitiateSplit() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Reference, validation.Required),
		validation.Field(&s.SplitType, validation.Required,
			validation.In(model.SplitEqual, model.SplitCustom, model.SplitPercentage, model.SplitItemized)),
		validation.Field(&s.Currency, validation.Required, validation.Length(3, 3)),
		validation.Field(&s.InitiatorID, validation.Required),
		validation.Field(&s.MerchantWalletID, validation.Required),
		validation.Field(&s.TotalAmount, validation.Required, validation.By(positiveAmount)),
		validation.Field(&s.Participants, validation.Required, validation.Length(1, 0)),
	)
}

func positiveAmount(value interface{}) error {
	amount, ok := value.(decimal.Decimal)
	if !ok {
		return errors.New("invalid amount")
	}
	if !amount.IsPositive() {
		return errors.New("amount must be positive")
	}
	return nil
}
