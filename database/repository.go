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

package database

import (
	"context"
	"time"

	"github.com/halcyonpay/tako/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	wallet
	transfer
	split
	tip
}

// wallet defines methods for wallet storage.
type wallet interface {
	CreateWallet(ctx context.Context, wallet *model.Wallet) error
	GetWalletByID(ctx context.Context, walletID string) (*model.Wallet, error)
	GetWalletByOwner(ctx context.Context, ownerID, currency string) (*model.Wallet, error)
	GetWalletByIndicator(ctx context.Context, indicator, currency string) (*model.Wallet, error)
	GetOrCreateWalletByIndicator(ctx context.Context, indicator, currency string) (*model.Wallet, error)
	GetAllWallets(ctx context.Context, limit, offset int) ([]model.Wallet, error)
	UpdateWalletMetadata(ctx context.Context, walletID string, metadata map[string]interface{}) error
}

// transfer defines methods for the transfer log and atomic settlement.
type transfer interface {
	GetTransferByRef(ctx context.Context, reference string) (*model.Transfer, error)
	TransferExistsByRef(ctx context.Context, reference string) (bool, error)
	GetTransfersByService(ctx context.Context, service model.ServiceRef, limit, offset int) ([]*model.Transfer, error)
	GetWalletHistory(ctx context.Context, walletID string, limit, offset int) ([]model.Entry, error)

	// ApplyTransfer persists a transfer with its entries and writes the new
	// wallet balances, all in one database transaction guarded by each
	// wallet's version.
	ApplyTransfer(ctx context.Context, transfer *model.Transfer, wallets map[string]*model.Wallet) error

	// ApplyReversal persists a refund transfer, bumps the original
	// transfer's refunded_amount (flipping it to REVERSED when fully
	// undone), and records the refund row, atomically with the wallet
	// updates.
	ApplyReversal(ctx context.Context, refund *model.Transfer, original *model.Transfer, record *model.RefundRecord, wallets map[string]*model.Wallet) error

	GetRefundsForReference(ctx context.Context, originalReference string) ([]model.RefundRecord, error)
}

// split defines methods for the bill-split workflow.
type split interface {
	CreateSplitRequest(ctx context.Context, split *model.SplitRequest) error
	GetSplitRequestByRef(ctx context.Context, reference string) (*model.SplitRequest, error)
	GetSplitRequestsByInitiator(ctx context.Context, initiatorID string, limit, offset int) ([]*model.SplitRequest, error)
	GetExpiredSplitRequests(ctx context.Context, asOf time.Time) ([]*model.SplitRequest, error)

	// SettleSplitParticipant applies the participant's share transfer, marks
	// the participant PAID and recomputes the parent status, all in one
	// database transaction so the final participant reliably settles the
	// parent.
	SettleSplitParticipant(ctx context.Context, splitRef, participantID string, transfer *model.Transfer, wallets map[string]*model.Wallet) (*model.SplitRequest, error)

	// ResolveSplitParticipant moves a participant to a non-paid terminal
	// state (declined).
	ResolveSplitParticipant(ctx context.Context, splitRef, participantID, status string) (*model.SplitRequest, error)

	// UpdateSplitStatus transitions the parent request, guarded by the
	// expected current status.
	UpdateSplitStatus(ctx context.Context, reference, from, to string) error
}

// tip defines methods for tip allocations and their disputes.
type tip interface {
	// ApplyTipAllocation persists the allocation with its shares and applies
	// the tip transfer in one database transaction.
	ApplyTipAllocation(ctx context.Context, allocation *model.TipAllocation, transfer *model.Transfer, wallets map[string]*model.Wallet) error

	GetTipByRef(ctx context.Context, reference string) (*model.TipAllocation, error)
	GetTipsByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]*model.TipAllocation, error)

	// UpdateTipDisputeStatus transitions a tip's dispute state, guarded by
	// the expected current state.
	UpdateTipDisputeStatus(ctx context.Context, reference, from, to string) error
}
