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
	"math"
	"time"

	"github.com/halcyonpay/tako/internal/apierror"
)

// Split request lifecycle states.
const (
	SplitPending          = "PENDING"
	SplitPartiallySettled = "PARTIALLY_SETTLED"
	SplitSettled          = "SETTLED"
	SplitCancelled        = "CANCELLED"
	SplitExpired          = "EXPIRED"
)

// Split participant states.
const (
	ParticipantPending  = "PENDING"
	ParticipantPaid     = "PAID"
	ParticipantDeclined = "DECLINED"
)

// Ways a bill can be divided among participants.
const (
	SplitEqual      = "equal"
	SplitCustom     = "custom"
	SplitPercentage = "percentage"
	SplitItemized   = "itemized"
)

var validSplitTypes = map[string]bool{
	SplitEqual:      true,
	SplitCustom:     true,
	SplitPercentage: true,
	SplitItemized:   true,
}

// shareTolerance is the rounding slack allowed between the sum of shares and
// the bill total, in minor units.
const shareTolerance = 1

// SplitParticipant is one person's share of a split bill.
type SplitParticipant struct {
	ID            int64     `json:"-"`
	ParticipantID string    `json:"participant_id"`
	SplitRef      string    `json:"split_ref"`
	CustomerID    string    `json:"customer_id"`
	WalletID      string    `json:"wallet_id"`
	Amount        int64     `json:"amount"`
	Percent       float64   `json:"percent,omitempty"`
	Status        string    `json:"status"`
	PaidReference string    `json:"paid_reference,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// SplitRequest is a payment request asking a group of customers to cover a
// bill. Each participant settles their share independently; the parent
// request settles only when everyone has paid.
type SplitRequest struct {
	ID               int64                  `json:"-"`
	SplitID          string                 `json:"split_id"`
	Reference        string                 `json:"reference"`
	Service          ServiceRef             `json:"service"`
	InitiatorID      string                 `json:"initiator_id"`
	MerchantWalletID string                 `json:"merchant_wallet_id"`
	TotalAmount      int64                  `json:"total_amount"`
	SplitType        string                 `json:"split_type"`
	Currency         string                 `json:"currency"`
	Status           string                 `json:"status"`
	ExpiresAt        time.Time              `json:"expires_at"`
	CreatedAt        time.Time              `json:"created_at"`
	Participants     []SplitParticipant     `json:"participants"`
	MetaData         map[string]interface{} `json:"meta_data,omitempty"`
}

// ShareSpec is a caller-declared participant share before validation. For
// equal splits only CustomerID and WalletID are required; custom and
// itemized splits set Amount, percentage splits set Percent.
type ShareSpec struct {
	CustomerID string
	WalletID   string
	Amount     int64
	Percent    float64
}

// ComputeEqualShares divides a total evenly across n participants. The
// remainder lands on the first participant, which by convention is the
// initiator.
func ComputeEqualShares(total int64, n int) []int64 {
	shares := make([]int64, n)
	base := total / int64(n)
	for i := range shares {
		shares[i] = base
	}
	shares[0] += total - base*int64(n)
	return shares
}

// ComputeShares resolves the declared shares of a split into concrete
// per-participant amounts and validates them against the bill total.
func ComputeShares(splitType string, total int64, specs []ShareSpec) ([]int64, error) {
	if !validSplitTypes[splitType] {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("unknown split type: %s", splitType), nil)
	}
	if total <= 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "split total must be positive", nil)
	}
	if len(specs) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "a split needs at least one participant", nil)
	}

	switch splitType {
	case SplitEqual:
		return ComputeEqualShares(total, len(specs)), nil

	case SplitCustom, SplitItemized:
		shares := make([]int64, len(specs))
		var sum int64
		for i, s := range specs {
			if s.Amount <= 0 {
				return nil, apierror.NewAPIError(apierror.ErrInvalidInput,
					fmt.Sprintf("share for %s must be positive", s.CustomerID), nil)
			}
			shares[i] = s.Amount
			sum += s.Amount
		}
		if diff := sum - total; diff > shareTolerance || diff < -shareTolerance {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput,
				fmt.Sprintf("shares sum to %d but bill total is %d", sum, total), nil)
		}
		return shares, nil

	case SplitPercentage:
		var pctSum float64
		for _, s := range specs {
			if s.Percent <= 0 {
				return nil, apierror.NewAPIError(apierror.ErrInvalidInput,
					fmt.Sprintf("percentage for %s must be positive", s.CustomerID), nil)
			}
			pctSum += s.Percent
		}
		if math.Abs(pctSum-100) > 0.01 {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput,
				fmt.Sprintf("percentages sum to %.2f, expected 100", pctSum), nil)
		}
		shares := make([]int64, len(specs))
		var sum int64
		for i, s := range specs {
			shares[i] = int64(math.Floor(float64(total) * s.Percent / 100))
			sum += shares[i]
		}
		// floor rounding always leaves the remainder non-negative
		shares[0] += total - sum
		return shares, nil
	}
	return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("unknown split type: %s", splitType), nil)
}

// Recompute derives the parent status from participant states. Terminal
// states are sticky and never recomputed.
func (s *SplitRequest) Recompute() string {
	if s.Status == SplitCancelled || s.Status == SplitExpired {
		return s.Status
	}
	allPaid := len(s.Participants) > 0
	anyPaid := false
	for _, p := range s.Participants {
		switch p.Status {
		case ParticipantPaid:
			anyPaid = true
		default:
			allPaid = false
		}
	}
	switch {
	case allPaid:
		return SplitSettled
	case anyPaid:
		return SplitPartiallySettled
	default:
		return SplitPending
	}
}

// PaidParticipants returns the participants who have settled their share.
func (s *SplitRequest) PaidParticipants() []SplitParticipant {
	var paid []SplitParticipant
	for _, p := range s.Participants {
		if p.Status == ParticipantPaid {
			paid = append(paid, p)
		}
	}
	return paid
}

// FindParticipant looks a participant up by ID.
func (s *SplitRequest) FindParticipant(participantID string) (*SplitParticipant, error) {
	for i := range s.Participants {
		if s.Participants[i].ParticipantID == participantID {
			return &s.Participants[i], nil
		}
	}
	return nil, apierror.NewAPIError(apierror.ErrNotFound,
		fmt.Sprintf("participant %s not found on split %s", participantID, s.Reference), nil)
}

// IsOpen reports whether the split still accepts participant actions.
func (s *SplitRequest) IsOpen() bool {
	return s.Status == SplitPending || s.Status == SplitPartiallySettled
}
