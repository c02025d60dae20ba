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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/halcyonpay/tako/model"
)

type fakeAudit struct {
	actors  []string
	actions []string
	fail    bool
}

func (f *fakeAudit) Record(_ context.Context, actorID, action string, _ interface{}) error {
	if f.fail {
		return errors.New("audit store down")
	}
	f.actors = append(f.actors, actorID)
	f.actions = append(f.actions, action)
	return nil
}

type fakeGamification struct {
	awards []string
	fail   bool
}

func (f *fakeGamification) AwardPoints(_ context.Context, userID, action string) error {
	if f.fail {
		return errors.New("points service down")
	}
	f.awards = append(f.awards, userID+":"+action)
	return nil
}

func TestPortSet_DeliversActorFromPayload(t *testing.T) {
	audit := &fakeAudit{}
	set := PortSet{Audit: audit}

	event := LedgerEvent{
		Event:     EventSplitSettled,
		Reference: "split_1",
		Data:      map[string]interface{}{"initiator_id": "cust_9"},
		Timestamp: time.Now(),
	}
	require.NoError(t, set.Deliver(context.Background(), event))

	require.Len(t, audit.actors, 1)
	assert.Equal(t, "cust_9", audit.actors[0])
	assert.Equal(t, EventSplitSettled, audit.actions[0])
}

func TestPortSet_FailuresNeverPropagate(t *testing.T) {
	set := PortSet{Audit: &fakeAudit{fail: true}}

	event := LedgerEvent{Event: EventTransferCompleted, Reference: "ride_1", Timestamp: time.Now()}
	assert.NoError(t, set.Deliver(context.Background(), event))
}

func TestTransfer_PortFailureSurfacesAsWarning(t *testing.T) {
	engine, ds := newTestTako(t)
	engine.AttachPorts(PortSet{Gamification: &fakeGamification{fail: true}})

	ds.On("TransferExistsByRef", mock.Anything, "ride_9").Return(false, nil)
	ds.On("GetWalletByID", mock.Anything, "wlt_rider").Return(testWallet("wlt_rider", 2000), nil)
	ds.On("GetWalletByID", mock.Anything, "wlt_driver").Return(testWallet("wlt_driver", 0), nil)
	ds.On("ApplyTransfer", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	result, err := engine.Transfer(context.Background(), "ride_9", model.KindCharge, "USD", model.ServiceRef{},
		[]model.Leg{
			{WalletID: "wlt_rider", Amount: -500},
			{WalletID: "wlt_driver", Amount: 500},
		}, nil)
	require.NoError(t, err)

	// the settlement committed; the port failure rides along as a warning
	assert.Equal(t, model.StatusCompleted, result.Transfer.Status)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "gamification award failed")
}

func TestPortSet_GamificationOnlyOnRewardableEvents(t *testing.T) {
	gam := &fakeGamification{}
	set := PortSet{Gamification: gam}
	ctx := context.Background()

	require.NoError(t, set.Deliver(ctx, LedgerEvent{Event: EventTransferCompleted, Reference: "ride_1"}))
	require.NoError(t, set.Deliver(ctx, LedgerEvent{Event: EventTransferReversed, Reference: "ride_1"}))
	require.NoError(t, set.Deliver(ctx, LedgerEvent{Event: EventSplitCancelled, Reference: "split_1"}))

	require.Len(t, gam.awards, 1)
	assert.Equal(t, "ride_1:"+EventTransferCompleted, gam.awards[0])
}
