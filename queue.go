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
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/halcyonpay/tako/config"
	redis_db "github.com/halcyonpay/tako/internal/redis-db"
)

// Queue carries post-commit events to background workers over Redis.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// LedgerEvent is the payload delivered to event workers after a ledger
// operation commits.
type LedgerEvent struct {
	Event     string      `json:"event"`
	Reference string      `json:"reference"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Event names emitted by the engine.
const (
	EventWalletCreated     = "wallet.created"
	EventTransferCompleted = "transfer.completed"
	EventTransferReversed  = "transfer.reversed"
	EventTipAllocated      = "tip.allocated"
	EventTipDisputed       = "tip.disputed"
	EventSplitInitiated    = "split.initiated"
	EventSplitSettled      = "split.settled"
	EventSplitCancelled    = "split.cancelled"
	EventSplitExpired      = "split.expired"
	EventParticipantPaid   = "split.participant_paid"
)

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// Enqueue publishes a ledger event to the configured event queue. Task IDs
// derive from the event and reference so redelivery of the same event is
// deduplicated by asynq.
func (q *Queue) Enqueue(event LedgerEvent) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{
		asynq.TaskID(event.Event + ":" + event.Reference),
		asynq.Queue(cfg.Queue.EventQueue),
		asynq.MaxRetry(5),
	}
	task := asynq.NewTask(cfg.Queue.EventQueue, payload, taskOptions...)
	_, err = q.Client.Enqueue(task)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}
