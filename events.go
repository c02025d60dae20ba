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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/halcyonpay/tako/config"
	"github.com/halcyonpay/tako/internal/notification"
)

// EventPort receives ledger events after they commit. Downstream surfaces
// (push notifications, audit trail, activity feeds, gamification) implement
// this and register with the dispatcher; a failing port never affects the
// ledger write it observes.
type EventPort interface {
	Name() string
	Deliver(ctx context.Context, event LedgerEvent) error
}

// EventDispatcher fans committed ledger events out to registered ports and
// the configured webhook. It is the asynq handler for the event queue.
type EventDispatcher struct {
	ports []EventPort
}

func NewEventDispatcher(ports ...EventPort) *EventDispatcher {
	return &EventDispatcher{ports: ports}
}

// Handle processes one queued ledger event. Port failures are logged and
// swallowed; only webhook delivery failures are retried by asynq.
func (d *EventDispatcher) Handle(ctx context.Context, task *asynq.Task) error {
	var event LedgerEvent
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		log.Printf("Error unmarshaling event payload: %v", err)
		return err
	}
	logrus.WithField("event", event.Event).WithField("reference", event.Reference).Info("dispatching ledger event")

	for _, port := range d.ports {
		if err := port.Deliver(ctx, event); err != nil {
			logrus.WithField("port", port.Name()).Errorf("event delivery failed: %v", err)
			notification.NotifyError(err)
		}
	}

	return deliverWebhook(event)
}

// deliverWebhook posts the event to the configured webhook URL, if any.
func deliverWebhook(event LedgerEvent) error {
	conf, err := config.Fetch()
	if err != nil {
		log.Println("Error fetching config:", err)
		return err
	}
	if conf.Notification.Webhook.Url == "" {
		return nil
	}

	jsonData, err := json.Marshal(event)
	if err != nil {
		log.Println("Error marshaling event:", err)
		return err
	}
	payload := bytes.NewBuffer(jsonData)

	req, err := http.NewRequest("POST", conf.Notification.Webhook.Url, payload)
	if err != nil {
		log.Println("Error creating request:", err)
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range conf.Notification.Webhook.Headers {
		req.Header.Set(key, value)
	}

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		log.Println("Error sending request:", err)
		notification.NotifyError(err)
		return err
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			logrus.Error(err)
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("Webhook request failed with status code: %d\n", resp.StatusCode)
		return nil
	}
	return nil
}

// LogPort is a minimal EventPort that records events in the service log.
// Deployments without real downstream consumers run with just this one.
type LogPort struct{}

func (LogPort) Name() string { return "log" }

func (LogPort) Deliver(_ context.Context, event LedgerEvent) error {
	logrus.WithField("event", event.Event).WithField("reference", event.Reference).Info("ledger event")
	return nil
}
