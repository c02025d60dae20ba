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
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonpay/tako/config"
)

type capturePort struct {
	name   string
	events []LedgerEvent
	fail   bool
}

func (p *capturePort) Name() string { return p.name }

func (p *capturePort) Deliver(_ context.Context, event LedgerEvent) error {
	if p.fail {
		return errors.New("port unavailable")
	}
	p.events = append(p.events, event)
	return nil
}

func eventTask(t *testing.T, event LedgerEvent) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return asynq.NewTask(event.Event, payload)
}

func TestEventDispatcher_DeliversToPortsAndWebhook(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	config.MockConfig(&config.Configuration{
		DataSource: config.DataSourceConfig{Dns: "postgres://localhost:5432/tako"},
		Redis:      config.RedisConfig{Dns: "localhost:6379"},
		Notification: config.Notification{
			Webhook: struct {
				Url     string            `json:"url"`
				Headers map[string]string `json:"headers"`
			}{
				Url:     "http://hooks.example.com/ledger",
				Headers: map[string]string{"X-Source": "tako"},
			},
		},
	})

	var received LedgerEvent
	httpmock.RegisterResponder("POST", "http://hooks.example.com/ledger",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "tako", req.Header.Get("X-Source"))
			if err := json.NewDecoder(req.Body).Decode(&received); err != nil {
				return nil, err
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]string{"status": "ok"})
		})

	port := &capturePort{name: "audit"}
	dispatcher := NewEventDispatcher(port)

	event := LedgerEvent{
		Event:     EventTransferCompleted,
		Reference: "ride_42",
		Timestamp: time.Now(),
	}
	err := dispatcher.Handle(context.Background(), eventTask(t, event))
	require.NoError(t, err)

	require.Len(t, port.events, 1)
	assert.Equal(t, "ride_42", port.events[0].Reference)
	assert.Equal(t, EventTransferCompleted, received.Event)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestEventDispatcher_PortFailureDoesNotBlockOthers(t *testing.T) {
	config.MockConfig(&config.Configuration{
		DataSource: config.DataSourceConfig{Dns: "postgres://localhost:5432/tako"},
		Redis:      config.RedisConfig{Dns: "localhost:6379"},
	})

	failing := &capturePort{name: "push", fail: true}
	working := &capturePort{name: "audit"}
	dispatcher := NewEventDispatcher(failing, working)

	event := LedgerEvent{Event: EventSplitSettled, Reference: "split_9", Timestamp: time.Now()}
	err := dispatcher.Handle(context.Background(), eventTask(t, event))
	require.NoError(t, err)

	require.Len(t, working.events, 1)
	assert.Equal(t, "split_9", working.events[0].Reference)
}

func TestEventDispatcher_RejectsMalformedPayload(t *testing.T) {
	dispatcher := NewEventDispatcher()
	err := dispatcher.Handle(context.Background(), asynq.NewTask("bad", []byte("{not json")))
	require.Error(t, err)
}
