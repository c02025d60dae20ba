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

	"github.com/halcyonpay/tako/internal/apierror"
	"github.com/halcyonpay/tako/model"
)

// CreateWallet opens a wallet for an owner in a currency. One wallet per
// owner and currency; a second create for the same pair is a conflict.
func (t *Tako) CreateWallet(ctx context.Context, ownerID, ownerRole, currency string, metadata map[string]interface{}) (*model.Wallet, error) {
	if ownerID == "" || ownerRole == "" || currency == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "owner id, owner role and currency are required", nil)
	}
	wallet := model.NewWallet(ownerID, ownerRole, currency)
	wallet.MetaData = metadata
	if err := t.datasource.CreateWallet(ctx, wallet); err != nil {
		return nil, err
	}
	t.postEvent(EventWalletCreated, wallet.WalletID, wallet)
	return wallet, nil
}

// GetOrCreateWallet fetches the owner's wallet in a currency, opening it on
// first touch. Service flows use this so a customer's first ride or order
// does not need a separate onboarding step.
func (t *Tako) GetOrCreateWallet(ctx context.Context, ownerID, ownerRole, currency string) (*model.Wallet, error) {
	wallet, err := t.datasource.GetWalletByOwner(ctx, ownerID, currency)
	if err == nil {
		return wallet, nil
	}
	if !apierror.HasCode(err, apierror.ErrNotFound) {
		return nil, err
	}

	created, err := t.CreateWallet(ctx, ownerID, ownerRole, currency, nil)
	if err != nil {
		if apierror.HasCode(err, apierror.ErrConflict) {
			return t.datasource.GetWalletByOwner(ctx, ownerID, currency)
		}
		return nil, err
	}
	return created, nil
}

// GetWallet retrieves a wallet by its ID.
func (t *Tako) GetWallet(ctx context.Context, walletID string) (*model.Wallet, error) {
	return t.datasource.GetWalletByID(ctx, walletID)
}

// GetWallets pages through all wallets, newest first.
func (t *Tako) GetWallets(ctx context.Context, limit, offset int) ([]model.Wallet, error) {
	return t.datasource.GetAllWallets(ctx, limit, offset)
}

// GetWalletHistory pages through the entries posted against a wallet,
// newest first.
func (t *Tako) GetWalletHistory(ctx context.Context, walletID string, limit, offset int) ([]model.Entry, error) {
	if _, err := t.datasource.GetWalletByID(ctx, walletID); err != nil {
		return nil, err
	}
	return t.datasource.GetWalletHistory(ctx, walletID, limit, offset)
}

// GetTransfer retrieves a transfer by its reference.
func (t *Tako) GetTransfer(ctx context.Context, reference string) (*model.Transfer, error) {
	return t.datasource.GetTransferByRef(ctx, reference)
}

// GetTransfersByService lists the transfers settled against a business
// object, e.g. every movement tied to one ride.
func (t *Tako) GetTransfersByService(ctx context.Context, service model.ServiceRef, limit, offset int) ([]*model.Transfer, error) {
	if err := service.Validate(); err != nil {
		return nil, err
	}
	return t.datasource.GetTransfersByService(ctx, service, limit, offset)
}

// UpdateWalletMetadata merges metadata into a wallet.
func (t *Tako) UpdateWalletMetadata(ctx context.Context, walletID string, metadata map[string]interface{}) error {
	return t.datasource.UpdateWalletMetadata(ctx, walletID, metadata)
}
