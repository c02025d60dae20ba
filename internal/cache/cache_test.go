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
package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *RedisCache {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c, err := NewCacheWithAddresses([]string{mr.Addr()})
	require.NoError(t, err)
	return c
}

func TestSetAndGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	type walletView struct {
		WalletID string `json:"wallet_id"`
		Balance  int64  `json:"balance"`
	}

	in := walletView{WalletID: "wlt_abc", Balance: 2500}
	require.NoError(t, c.Set(ctx, "wallet:wlt_abc", in, time.Minute))

	var out walletView
	require.NoError(t, c.Get(ctx, "wallet:wlt_abc", &out))
	assert.Equal(t, in, out)
}

func TestGetMissIsNotAnError(t *testing.T) {
	c := newTestCache(t)

	var out string
	err := c.Get(context.Background(), "missing-key", &out)
	assert.NoError(t, err)
	assert.Empty(t, out)
}

func TestDelete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))

	var out string
	require.NoError(t, c.Get(ctx, "k", &out))
	assert.Empty(t, out)
}
