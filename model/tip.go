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

// Tip distribution modes.
const (
	TipModeDirect = "direct"
	TipModePooled = "pooled"
)

// Dispute states a tip can move through after allocation.
const (
	DisputeNone      = ""
	DisputePending   = "PENDING"
	DisputeConfirmed = "CONFIRMED"
	DisputeRefunded  = "REFUNDED"
	DisputeIgnored   = "IGNORED"
)

// TipRecipient is a candidate recipient of a tip: who they are, the role
// they served in, and the wallet their share lands in.
type TipRecipient struct {
	RecipientID string `json:"recipient_id"`
	Role        string `json:"role"`
	WalletID    string `json:"wallet_id"`
}

// TipShare is one recipient's slice of an allocated tip.
type TipShare struct {
	ID          int64  `json:"-"`
	ShareID     string `json:"share_id"`
	TipRef      string `json:"tip_ref"`
	RecipientID string `json:"recipient_id"`
	Role        string `json:"role"`
	WalletID    string `json:"wallet_id"`
	Amount      int64  `json:"amount"`
	Mode        string `json:"mode"`
}

// TipAllocation is a customer tip distributed across one or more service
// workers. The allocation settles atomically with its shares; disputes are
// tracked on the allocation afterwards.
type TipAllocation struct {
	ID            int64                  `json:"-"`
	TipID         string                 `json:"tip_id"`
	Reference     string                 `json:"reference"`
	PayerWalletID string                 `json:"payer_wallet_id"`
	TotalAmount   int64                  `json:"total_amount"`
	Currency      string                 `json:"currency"`
	Status        string                 `json:"status"`
	DisputeStatus string                 `json:"dispute_status,omitempty"`
	Service       ServiceRef             `json:"service"`
	Shares        []TipShare             `json:"shares"`
	MetaData      map[string]interface{} `json:"meta_data,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// ComputeTipShares distributes a tip across its recipients. Recipients whose
// role maps to "pooled" form one group per role and divide that group's cut
// equally; "direct" recipients each form their own group. The total is split
// evenly across groups first, with rounding remainders landing on the first
// group and first member respectively.
func ComputeTipShares(total int64, recipients []TipRecipient, roleModes map[string]string) ([]TipShare, error) {
	if total <= 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "tip amount must be positive", nil)
	}
	if len(recipients) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "a tip needs at least one recipient", nil)
	}

	type group struct {
		mode    string
		members []TipRecipient
	}

	var groups []group
	pooledIdx := make(map[string]int)
	for _, r := range recipients {
		if r.RecipientID == "" || r.WalletID == "" {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "tip recipient id and wallet id are required", nil)
		}
		mode, ok := roleModes[r.Role]
		if !ok {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput,
				fmt.Sprintf("no tip mode configured for role %s", r.Role), nil)
		}
		switch mode {
		case TipModeDirect:
			groups = append(groups, group{mode: mode, members: []TipRecipient{r}})
		case TipModePooled:
			idx, seen := pooledIdx[r.Role]
			if !seen {
				groups = append(groups, group{mode: mode})
				idx = len(groups) - 1
				pooledIdx[r.Role] = idx
			}
			groups[idx].members = append(groups[idx].members, r)
		default:
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput,
				fmt.Sprintf("unknown tip mode %s for role %s", mode, r.Role), nil)
		}
	}

	groupShares := ComputeEqualShares(total, len(groups))

	var shares []TipShare
	for gi, g := range groups {
		memberShares := ComputeEqualShares(groupShares[gi], len(g.members))
		for mi, m := range g.members {
			if memberShares[mi] == 0 {
				continue
			}
			shares = append(shares, TipShare{
				ShareID:     GenerateUUIDWithSuffix("tps"),
				RecipientID: m.RecipientID,
				Role:        m.Role,
				WalletID:    m.WalletID,
				Amount:      memberShares[mi],
				Mode:        g.mode,
			})
		}
	}
	if len(shares) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "tip amount too small to distribute", nil)
	}
	return shares, nil
}

// CanTransitionDispute validates a dispute state change.
func (t *TipAllocation) CanTransitionDispute(next string) error {
	allowed := map[string][]string{
		DisputeNone:    {DisputePending},
		DisputePending: {DisputeConfirmed, DisputeIgnored},
	}
	for _, s := range allowed[t.DisputeStatus] {
		if s == next {
			return nil
		}
	}
	if t.DisputeStatus == DisputeConfirmed && next == DisputeRefunded {
		return nil
	}
	return apierror.NewAPIError(apierror.ErrInvalidState,
		fmt.Sprintf("tip %s dispute cannot move from %q to %q", t.Reference, t.DisputeStatus, next), nil)
}
