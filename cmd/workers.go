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

package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/halcyonpay/tako"
	"github.com/halcyonpay/tako/config"
	redis_db "github.com/halcyonpay/tako/internal/redis-db"
)

const splitExpiryInterval = time.Minute

func initializeWorkerServer(conf *config.Configuration) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency: 1,
			Queues: map[string]int{
				conf.Queue.EventQueue: 3,
			},
		},
	), nil
}

// runSplitExpirySweeper closes overdue split requests on a fixed interval.
// Each sweep is independent; a failing run is logged and retried on the next
// tick.
func runSplitExpirySweeper(ctx context.Context, b *takoInstance) {
	ticker := time.NewTicker(splitExpiryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := b.tako.ExpireDueSplits(ctx)
			if err != nil {
				logrus.Errorf("split expiry sweep failed: %v", err)
				continue
			}
			if expired > 0 {
				log.Printf(" [*] Expired %d split requests", expired)
			}
		}
	}
}

// workerCommands defines the "workers" command. Workers drain the ledger
// event queue and run the split expiry sweeper.
func workerCommands(b *takoInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start tako workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			srv, err := initializeWorkerServer(conf)
			if err != nil {
				log.Fatal(err)
			}

			dispatcher := tako.NewEventDispatcher(tako.LogPort{})
			mux := asynq.NewServeMux()
			mux.HandleFunc(conf.Queue.EventQueue, dispatcher.Handle)

			go runSplitExpirySweeper(ctx, b)

			log.Println(" [*] Starting workers")
			if err := srv.Run(mux); err != nil {
				log.Fatal(err)
			}
		},
	}

	return cmd
}
