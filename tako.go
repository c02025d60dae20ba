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
	"embed"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/halcyonpay/tako/config"
	"github.com/halcyonpay/tako/database"
	redis_db "github.com/halcyonpay/tako/internal/redis-db"
)

// Tako is the wallet ledger and settlement engine. All money movement across
// the platform's verticals funnels through it.
type Tako struct {
	datasource database.IDataSource
	redis      redis.UniversalClient
	queue      *Queue
	ports      *PortSet
}

//go:embed sql/*.sql
var SQLFiles embed.FS

// NewTako initializes the engine with the provided datasource. Redis backs
// both the settlement locks and the event queue.
func NewTako(db database.IDataSource) (*Tako, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)}, configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)

	return &Tako{
		datasource: db,
		redis:      redisClient.Client(),
		queue:      newQueue,
	}, nil
}

// AttachPorts registers the platform ports invoked on the calling goroutine
// after each ledger write commits. Port failures surface as warnings on the
// operation result, never as errors.
func (t *Tako) AttachPorts(set PortSet) {
	t.ports = &set
}
