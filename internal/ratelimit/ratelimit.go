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

// Package ratelimit caps how many calls each brand makes to an external
// service per window. Counters live in Redis so every instance shares them,
// and windows come from an injected clock.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/ownerfi/dealflow/internal/clock"
	"github.com/redis/go-redis/v9"
)

// LimitFunc returns the per-window cap for brand on service.
type LimitFunc func(brand, service string) int

// Limiter is a fixed window counter per (brand, service).
type Limiter struct {
	client redis.UniversalClient
	clock  clock.Clock
	window time.Duration
	limit  LimitFunc
	prefix string
}

func New(client redis.UniversalClient, c clock.Clock, window time.Duration, limit LimitFunc) *Limiter {
	if window <= 0 {
		window = time.Hour
	}
	return &Limiter{client: client, clock: c, window: window, limit: limit, prefix: "dealflow:quota"}
}

// Usage is the state of one counter.
type Usage struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	ResetsAt  time.Time `json:"resets_at"`
	Remaining int       `json:"remaining"`
}

func (l *Limiter) windowStart() time.Time {
	return l.clock.Now().Truncate(l.window)
}

func (l *Limiter) key(brand, service string, start time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%d", l.prefix, brand, service, start.Unix())
}

// incrScript increments the counter unless it reached the cap, so a refused
// call does not consume quota.
var incrScript = redis.NewScript(`
local used = tonumber(redis.call('get', KEYS[1]) or '0')
if used >= tonumber(ARGV[1]) then
	return -1
end
used = redis.call('incr', KEYS[1])
if used == 1 then
	redis.call('pexpire', KEYS[1], ARGV[2])
end
return used
`)

// Take consumes one call from the brand's quota for service. It reports
// false when the quota for the current window is exhausted.
func (l *Limiter) Take(ctx context.Context, brand, service string) (bool, error) {
	limit := l.limit(brand, service)
	if limit <= 0 {
		return false, nil
	}
	start := l.windowStart()
	ttl := start.Add(l.window).Sub(l.clock.Now()) + time.Minute
	res, err := incrScript.Run(ctx, l.client, []string{l.key(brand, service, start)}, limit, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("quota %s/%s: %w", brand, service, err)
	}
	return res >= 0, nil
}

// Allow reports whether a call would be accepted without consuming quota.
func (l *Limiter) Allow(ctx context.Context, brand, service string) (bool, error) {
	u, err := l.Usage(ctx, brand, service)
	if err != nil {
		return false, err
	}
	return u.Remaining > 0, nil
}

func (l *Limiter) Usage(ctx context.Context, brand, service string) (Usage, error) {
	start := l.windowStart()
	limit := l.limit(brand, service)
	used, err := l.client.Get(ctx, l.key(brand, service, start)).Int()
	if err != nil && err != redis.Nil {
		return Usage{}, fmt.Errorf("quota %s/%s: %w", brand, service, err)
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return Usage{Used: used, Limit: limit, ResetsAt: start.Add(l.window), Remaining: remaining}, nil
}
