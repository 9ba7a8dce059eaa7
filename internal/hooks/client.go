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
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ownerfi/dealflow/internal/request"
	"github.com/sirupsen/logrus"
)

// executeHook posts payload to one hook and records the outcome on it.
// Retries are left to the queue.
func (m *redisHookManager) executeHook(ctx context.Context, hook *Hook, payload HookPayload) error {
	body, err := request.ToJsonReq(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Hook-ID", hook.ID)
	req.Header.Set("X-Workflow-Status", string(payload.Status))

	log := logrus.WithFields(logrus.Fields{
		"hook_id":     hook.ID,
		"hook_url":    hook.URL,
		"workflow_id": payload.WorkflowID,
		"brand":       payload.Brand,
		"status":      payload.Status,
	})
	log.Info("Executing stage trigger")

	client := &http.Client{Timeout: time.Duration(hook.Timeout) * time.Second}
	var reply HookResponse
	resp, callErr := request.CallWith(client, req, &reply)
	err = hookOutcome(resp, reply, callErr)

	if recErr := m.updateHookStatus(context.WithoutCancel(ctx), hook, err == nil); recErr != nil && err == nil {
		return recErr
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	log.WithField("status_code", resp.StatusCode).Info("Stage trigger executed")
	return nil
}

// hookOutcome accepts any 2xx answer unless its body is a HookResponse
// reporting failure. A 2xx body that is not JSON still counts as success.
func hookOutcome(resp *http.Response, reply HookResponse, err error) error {
	var statusErr *request.StatusError
	switch {
	case errors.As(err, &statusErr):
		return fmt.Errorf("hook returned status %d: %s", statusErr.StatusCode, statusErr.Body)
	case err != nil && (resp == nil || resp.StatusCode/100 != 2):
		return fmt.Errorf("failed to execute request: %w", err)
	case err != nil:
		return nil
	case reply.Message != "" && !reply.Success:
		return fmt.Errorf("hook execution failed: %s", reply.Message)
	}
	return nil
}

func (m *redisHookManager) updateHookStatus(ctx context.Context, hook *Hook, success bool) error {
	hook.LastRun = time.Now()
	hook.LastSuccess = success

	data, err := marshalHook(hook)
	if err != nil {
		return err
	}
	return m.client.Set(ctx, hookKey(hook.ID), data, 0).Err()
}
