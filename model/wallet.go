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
	"math/big"
	"strings"
	"time"

	"github.com/halcyonpay/tako/internal/apierror"
)

// Owner roles recognised across the platform's verticals.
const (
	RoleCustomer    = "customer"
	RoleDriver      = "driver"
	RoleCourier     = "courier"
	RoleMerchant    = "merchant"
	RoleBranchStaff = "branch_staff"
	RoleValet       = "valet"
	RolePlatform    = "platform"
)

// Wallet is a single-currency balance held for an owner. Balances are stored
// in minor units and mutated only through transfer legs; the version column
// drives optimistic concurrency control in the database layer.
type Wallet struct {
	ID             int64                  `json:"-"`
	WalletID       string                 `json:"wallet_id"`
	OwnerID        string                 `json:"owner_id"`
	OwnerRole      string                 `json:"owner_role"`
	Indicator      string                 `json:"indicator,omitempty"`
	Currency       string                 `json:"currency"`
	AllowOverdraft bool                   `json:"allow_overdraft"`
	Balance        *big.Int               `json:"balance"`
	Version        int64                  `json:"-"`
	CreatedAt      time.Time              `json:"created_at"`
	MetaData       map[string]interface{} `json:"meta_data,omitempty"`
}

// NewWallet builds a wallet with a fresh identifier and a zero balance.
func NewWallet(ownerID, ownerRole, currency string) *Wallet {
	return &Wallet{
		WalletID:  GenerateUUIDWithSuffix("wlt"),
		OwnerID:   ownerID,
		OwnerRole: ownerRole,
		Currency:  currency,
		Balance:   big.NewInt(0),
		CreatedAt: time.Now(),
	}
}

// InitializeBalance ensures the balance field is non-nil. Wallets scanned
// from partial rows or constructed by hand call this before any math.
func (w *Wallet) InitializeBalance() {
	if w.Balance == nil {
		w.Balance = big.NewInt(0)
	}
}

// BalanceInt64 returns the balance as an int64 for API responses.
func (w *Wallet) BalanceInt64() int64 {
	w.InitializeBalance()
	return w.Balance.Int64()
}

// IsInternal reports whether the wallet is a platform-internal wallet
// addressed by indicator (e.g. "@external_card") rather than owned by a
// customer. Internal wallets may run negative.
func (w *Wallet) IsInternal() bool {
	return w.Indicator != ""
}

// IsInternalWalletID reports whether a wallet identifier in a transfer leg
// refers to an internal wallet by its "@" indicator.
func IsInternalWalletID(id string) bool {
	return strings.HasPrefix(id, "@")
}

// ApplyTransferToWallets applies every entry of a transfer to the wallets it
// touches, all-or-nothing. Wallets are keyed by wallet ID and must already be
// loaded at their current version. A debit that would take a non-overdraft
// wallet below zero fails the whole transfer with an insufficient-funds error
// naming the offending wallets.
func ApplyTransferToWallets(transfer *Transfer, wallets map[string]*Wallet) error {
	type pending struct {
		wallet  *Wallet
		balance *big.Int
	}

	staged := make([]pending, 0, len(transfer.Entries))
	var short []string

	for _, entry := range transfer.Entries {
		wallet, ok := wallets[entry.WalletID]
		if !ok {
			return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("wallet %s not found", entry.WalletID), nil)
		}
		if wallet.Currency != transfer.Currency {
			return apierror.NewAPIError(apierror.ErrInvalidInput,
				fmt.Sprintf("wallet %s holds %s, transfer is %s", wallet.WalletID, wallet.Currency, transfer.Currency), nil)
		}
		wallet.InitializeBalance()

		next := new(big.Int).Add(wallet.Balance, big.NewInt(entry.Amount))
		if next.Sign() < 0 && !wallet.AllowOverdraft {
			short = append(short, wallet.WalletID)
		}
		staged = append(staged, pending{wallet: wallet, balance: next})
	}

	if len(short) > 0 {
		return apierror.NewAPIError(apierror.ErrInsufficientFunds,
			fmt.Sprintf("insufficient funds in wallet(s): %s", strings.Join(short, ", ")), short)
	}

	for _, p := range staged {
		p.wallet.Balance = p.balance
	}
	return nil
}
