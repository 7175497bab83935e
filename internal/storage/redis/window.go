// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package redis backs the metering dedup window with Redis so dedup
// survives restarts and is shared across replicas.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "adserve:dedup:"

// WindowStore implements metering.WindowStore. SET NX with a TTL makes
// the seen-check and the record one atomic operation.
type WindowStore struct {
	client *redis.Client
}

// New connects a WindowStore and verifies the server is reachable
func New(ctx context.Context, addr, password string, db int) (*WindowStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &WindowStore{client: client}, nil
}

// NewFromClient wraps an existing client
func NewFromClient(client *redis.Client) *WindowStore {
	return &WindowStore{client: client}
}

// SeenAndRecord reports whether key fired inside the window and, when it
// did not, records it for the window's duration
func (w *WindowStore) SeenAndRecord(ctx context.Context, key string, window time.Duration) (bool, error) {
	set, err := w.client.SetNX(ctx, keyPrefix+key, 1, window).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Forget drops a recorded key so the next event with it counts again
func (w *WindowStore) Forget(ctx context.Context, key string) error {
	return w.client.Del(ctx, keyPrefix+key).Err()
}

// Close releases the underlying client
func (w *WindowStore) Close() error {
	return w.client.Close()
}
