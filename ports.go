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
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Platform-facing ports. The ledger never calls these inside a database
// transaction; committed events reach them through the EventDispatcher, so a
// slow or failing consumer can never unwind a settlement.

// NotificationPort pushes a user-facing notification for a ledger event.
type NotificationPort interface {
	Notify(ctx context.Context, userID, eventType string, payload interface{}) error
}

// AuditPort records a ledger action in an external audit trail.
type AuditPort interface {
	Record(ctx context.Context, actorID, action string, details interface{}) error
}

// BroadcastPort publishes a ledger event to a pub/sub topic for activity
// feeds and live dashboards.
type BroadcastPort interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

// GamificationPort awards engagement points for completed money movements.
type GamificationPort interface {
	AwardPoints(ctx context.Context, userID, action string) error
}

// PortSet bundles the platform ports behind one EventPort. Any subset may be
// nil; each delivery is best effort and failures come back as warnings, never
// as errors.
type PortSet struct {
	Notifications NotificationPort
	Audit         AuditPort
	Broadcast     BroadcastPort
	Gamification  GamificationPort
}

func (s PortSet) Name() string { return "platform" }

func (s PortSet) Deliver(ctx context.Context, event LedgerEvent) error {
	for _, warning := range s.deliver(ctx, event) {
		logrus.WithField("event", event.Event).Warn(warning)
	}
	return nil
}

func (s PortSet) deliver(ctx context.Context, event LedgerEvent) []string {
	actor := eventActor(event)

	var warnings []string
	if s.Audit != nil {
		if err := s.Audit.Record(ctx, actor, event.Event, event.Data); err != nil {
			warnings = append(warnings, fmt.Sprintf("audit record failed: %v", err))
		}
	}
	if s.Broadcast != nil {
		if err := s.Broadcast.Publish(ctx, event.Event, event.Data); err != nil {
			warnings = append(warnings, fmt.Sprintf("broadcast failed: %v", err))
		}
	}
	if s.Notifications != nil {
		if err := s.Notifications.Notify(ctx, actor, event.Event, event.Data); err != nil {
			warnings = append(warnings, fmt.Sprintf("notification failed: %v", err))
		}
	}
	if s.Gamification != nil && rewardable(event.Event) {
		if err := s.Gamification.AwardPoints(ctx, actor, event.Event); err != nil {
			warnings = append(warnings, fmt.Sprintf("gamification award failed: %v", err))
		}
	}
	return warnings
}

// notifyPorts pushes a committed event through the attached ports on the
// calling goroutine. The returned warnings ride on the operation result; the
// ledger write has already committed and stands regardless of what the ports
// do with it.
func (t *Tako) notifyPorts(ctx context.Context, event, reference string, data interface{}) []string {
	if t.ports == nil {
		return nil
	}
	return t.ports.deliver(ctx, LedgerEvent{
		Event:     event,
		Reference: reference,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// rewardable marks the events that earn engagement points.
func rewardable(event string) bool {
	switch event {
	case EventTransferCompleted, EventTipAllocated, EventSplitSettled, EventParticipantPaid:
		return true
	}
	return false
}

// eventActor pulls the acting user out of an event payload. Payloads arrive
// as generic maps after the queue's JSON round trip; events without an
// identifiable actor fall back to the ledger reference.
func eventActor(event LedgerEvent) string {
	if data, ok := event.Data.(map[string]interface{}); ok {
		for _, key := range []string{"owner_id", "initiator_id", "payer_wallet_id", "customer_id"} {
			if v, ok := data[key].(string); ok && v != "" {
				return v
			}
		}
	}
	return event.Reference
}
