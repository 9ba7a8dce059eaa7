/*
Copyright 2024 Blnk Finance Authors.

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

// Package idempotency makes sure each external callback is processed at most
// once within a retention window.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	StatusStarted   = "started"
	StatusSucceeded = "succeeded"

	DefaultTTL = 24 * time.Hour
)

// Store keeps claim markers in Redis.
type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

func New(client redis.UniversalClient, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl, prefix: "dealflow:webhook"}
}

// Key identifies one callback. The brand is optional.
func Key(service, id, brand string) string {
	if brand == "" {
		return fmt.Sprintf("%s:%s", service, id)
	}
	return fmt.Sprintf("%s:%s:%s", service, id, brand)
}

func (s *Store) redisKey(key string) string {
	return s.prefix + ":" + key
}

// Claim marks key as started. It reports false when key was already claimed,
// whether that earlier attempt is still running or finished.
func (s *Store) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.redisKey(key), StatusStarted, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

// Complete records that key was processed. The original TTL is kept.
func (s *Store) Complete(ctx context.Context, key string) error {
	err := s.client.SetArgs(ctx, s.redisKey(key), StatusSucceeded, redis.SetArgs{KeepTTL: true, Mode: "XX"}).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("complete %s: %w", key, err)
	}
	return nil
}

// Release drops a claim after a failed attempt so the sender can retry.
func (s *Store) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

// Status returns the recorded status of key, or "" when unseen.
func (s *Store) Status(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.redisKey(key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("status %s: %w", key, err)
	}
	return v, nil
}
