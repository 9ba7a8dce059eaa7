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

package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ownerfi/dealflow/model"
	"github.com/ownerfi/dealflow/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const hookKeyPrefix = "hooks"

// ErrHookNotFound is returned for an unknown hook ID.
var ErrHookNotFound = errors.New("hook not found")

type redisHookManager struct {
	client redis.UniversalClient
}

// NewHookManager creates a new Redis-based hook manager
func NewHookManager(redisClient redis.UniversalClient) HookManager {
	return &redisHookManager{
		client: redisClient,
	}
}

// RegisterHook registers a new stage trigger
func (m *redisHookManager) RegisterHook(ctx context.Context, hook *Hook) error {
	if hook.ID == "" {
		hook.ID = model.GenerateUUIDWithSuffix("hook")
	}
	hook.CreatedAt = time.Now()

	if err := validateHook(hook); err != nil {
		return err
	}

	data, err := marshalHook(hook)
	if err != nil {
		return err
	}

	pipe := m.client.TxPipeline()
	pipe.Set(ctx, hookKey(hook.ID), data, 0)
	pipe.SAdd(ctx, statusKey(hook.Status), hook.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store hook: %w", err)
	}
	return nil
}

// UpdateHook updates an existing hook
func (m *redisHookManager) UpdateHook(ctx context.Context, hookID string, hook *Hook) error {
	existing, err := m.GetHook(ctx, hookID)
	if err != nil {
		return err
	}

	hook.ID = existing.ID
	hook.CreatedAt = existing.CreatedAt
	hook.LastRun = existing.LastRun
	hook.LastSuccess = existing.LastSuccess
	if err := validateHook(hook); err != nil {
		return err
	}

	data, err := marshalHook(hook)
	if err != nil {
		return err
	}

	pipe := m.client.TxPipeline()
	if existing.Status != hook.Status {
		pipe.SRem(ctx, statusKey(existing.Status), hookID)
		pipe.SAdd(ctx, statusKey(hook.Status), hookID)
	}
	pipe.Set(ctx, hookKey(hookID), data, 0)
	_, err = pipe.Exec(ctx)
	return err
}

// DeleteHook removes a hook
func (m *redisHookManager) DeleteHook(ctx context.Context, hookID string) error {
	hook, err := m.GetHook(ctx, hookID)
	if err != nil {
		return err
	}

	pipe := m.client.TxPipeline()
	pipe.Del(ctx, hookKey(hookID))
	pipe.SRem(ctx, statusKey(hook.Status), hookID)
	_, err = pipe.Exec(ctx)
	return err
}

// GetHook retrieves a hook by ID
func (m *redisHookManager) GetHook(ctx context.Context, hookID string) (*Hook, error) {
	data, err := m.client.Get(ctx, hookKey(hookID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("%w: %s", ErrHookNotFound, hookID)
		}
		return nil, err
	}

	var hook Hook
	if err := json.Unmarshal(data, &hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal hook: %w", err)
	}
	return &hook, nil
}

// ListHooks returns the hooks fired on entry to status.
func (m *redisHookManager) ListHooks(ctx context.Context, status workflow.Status) ([]*Hook, error) {
	hookIDs, err := m.client.SMembers(ctx, statusKey(status)).Result()
	if err != nil {
		return nil, err
	}

	hooks := make([]*Hook, 0, len(hookIDs))
	for _, id := range hookIDs {
		hook, err := m.GetHook(ctx, id)
		if err != nil {
			logrus.Warnf("skipping hook %s: %v", id, err)
			continue
		}
		hooks = append(hooks, hook)
	}
	return hooks, nil
}

// ExecuteStageHooks calls every active hook registered for the payload's
// status and brand. All hooks are attempted; their errors are joined.
func (m *redisHookManager) ExecuteStageHooks(ctx context.Context, payload HookPayload) error {
	hooks, err := m.ListHooks(ctx, payload.Status)
	if err != nil {
		return err
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now()
	}

	var errs []error
	for _, h := range hooks {
		if !h.Active || (h.Brand != "" && h.Brand != payload.Brand) {
			continue
		}
		hookCtx, cancel := context.WithTimeout(ctx, time.Duration(h.Timeout)*time.Second)
		err := m.executeHook(hookCtx, h, payload)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("hook %s: %w", h.ID, err))
		}
	}
	return errors.Join(errs...)
}

func validateHook(hook *Hook) error {
	if hook.URL == "" {
		return fmt.Errorf("hook URL is required")
	}
	if _, err := workflow.ParseStatus(string(hook.Status)); err != nil {
		return fmt.Errorf("invalid hook status: %s", hook.Status)
	}
	if hook.Status == workflow.StatusPending {
		return fmt.Errorf("hooks cannot fire on %s", hook.Status)
	}
	if hook.Timeout <= 0 {
		hook.Timeout = 30
	}
	return nil
}

func marshalHook(hook *Hook) ([]byte, error) {
	data, err := json.Marshal(hook)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal hook: %w", err)
	}
	return data, nil
}

func hookKey(id string) string {
	return fmt.Sprintf("%s:%s", hookKeyPrefix, id)
}

func statusKey(status workflow.Status) string {
	return fmt.Sprintf("%s:status:%s", hookKeyPrefix, status)
}
