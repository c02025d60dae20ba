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
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/halcyonpay/tako/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Wallet methods

func (m *MockDataSource) CreateWallet(ctx context.Context, wallet *model.Wallet) error {
	args := m.Called(ctx, wallet)
	return args.Error(0)
}

func (m *MockDataSource) GetWalletByID(ctx context.Context, walletID string) (*model.Wallet, error) {
	args := m.Called(ctx, walletID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Wallet), args.Error(1)
}

func (m *MockDataSource) GetWalletByOwner(ctx context.Context, ownerID, currency string) (*model.Wallet, error) {
	args := m.Called(ctx, ownerID, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Wallet), args.Error(1)
}

func (m *MockDataSource) GetWalletByIndicator(ctx context.Context, indicator, currency string) (*model.Wallet, error) {
	args := m.Called(ctx, indicator, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Wallet), args.Error(1)
}

func (m *MockDataSource) GetOrCreateWalletByIndicator(ctx context.Context, indicator, currency string) (*model.Wallet, error) {
	args := m.Called(ctx, indicator, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Wallet), args.Error(1)
}

func (m *MockDataSource) GetAllWallets(ctx context.Context, limit, offset int) ([]model.Wallet, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Wallet), args.Error(1)
}

func (m *MockDataSource) UpdateWalletMetadata(ctx context.Context, walletID string, metadata map[string]interface{}) error {
	args := m.Called(ctx, walletID, metadata)
	return args.Error(0)
}

// Transfer methods

func (m *MockDataSource) GetTransferByRef(ctx context.Context, reference string) (*model.Transfer, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transfer), args.Error(1)
}

func (m *MockDataSource) TransferExistsByRef(ctx context.Context, reference string) (bool, error) {
	args := m.Called(ctx, reference)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) GetTransfersByService(ctx context.Context, service model.ServiceRef, limit, offset int) ([]*model.Transfer, error) {
	args := m.Called(ctx, service, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Transfer), args.Error(1)
}

func (m *MockDataSource) GetWalletHistory(ctx context.Context, walletID string, limit, offset int) ([]model.Entry, error) {
	args := m.Called(ctx, walletID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Entry), args.Error(1)
}

func (m *MockDataSource) ApplyTransfer(ctx context.Context, transfer *model.Transfer, wallets map[string]*model.Wallet) error {
	args := m.Called(ctx, transfer, wallets)
	return args.Error(0)
}

func (m *MockDataSource) ApplyReversal(ctx context.Context, refund *model.Transfer, original *model.Transfer, record *model.RefundRecord, wallets map[string]*model.Wallet) error {
	args := m.Called(ctx, refund, original, record, wallets)
	return args.Error(0)
}

func (m *MockDataSource) GetRefundsForReference(ctx context.Context, originalReference string) ([]model.RefundRecord, error) {
	args := m.Called(ctx, originalReference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RefundRecord), args.Error(1)
}

// Split methods

func (m *MockDataSource) CreateSplitRequest(ctx context.Context, split *model.SplitRequest) error {
	args := m.Called(ctx, split)
	return args.Error(0)
}

func (m *MockDataSource) GetSplitRequestByRef(ctx context.Context, reference string) (*model.SplitRequest, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SplitRequest), args.Error(1)
}

func (m *MockDataSource) GetSplitRequestsByInitiator(ctx context.Context, initiatorID string, limit, offset int) ([]*model.SplitRequest, error) {
	args := m.Called(ctx, initiatorID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.SplitRequest), args.Error(1)
}

func (m *MockDataSource) GetExpiredSplitRequests(ctx context.Context, asOf time.Time) ([]*model.SplitRequest, error) {
	args := m.Called(ctx, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.SplitRequest), args.Error(1)
}

func (m *MockDataSource) SettleSplitParticipant(ctx context.Context, splitRef, participantID string, transfer *model.Transfer, wallets map[string]*model.Wallet) (*model.SplitRequest, error) {
	args := m.Called(ctx, splitRef, participantID, transfer, wallets)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SplitRequest), args.Error(1)
}

func (m *MockDataSource) ResolveSplitParticipant(ctx context.Context, splitRef, participantID, status string) (*model.SplitRequest, error) {
	args := m.Called(ctx, splitRef, participantID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SplitRequest), args.Error(1)
}

func (m *MockDataSource) UpdateSplitStatus(ctx context.Context, reference, from, to string) error {
	args := m.Called(ctx, reference, from, to)
	return args.Error(0)
}

// Tip methods

func (m *MockDataSource) ApplyTipAllocation(ctx context.Context, allocation *model.TipAllocation, transfer *model.Transfer, wallets map[string]*model.Wallet) error {
	args := m.Called(ctx, allocation, transfer, wallets)
	return args.Error(0)
}

func (m *MockDataSource) GetTipByRef(ctx context.Context, reference string) (*model.TipAllocation, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TipAllocation), args.Error(1)
}

func (m *MockDataSource) GetTipsByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]*model.TipAllocation, error) {
	args := m.Called(ctx, recipientID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.TipAllocation), args.Error(1)
}

func (m *MockDataSource) UpdateTipDisputeStatus(ctx context.Context, reference, from, to string) error {
	args := m.Called(ctx, reference, from, to)
	return args.Error(0)
}
