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
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// NewHookTask wraps payload in an asynq task.
func NewHookTask(payload HookPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal hook payload: %w", err)
	}
	return asynq.NewTask(TaskType, data), nil
}

// ProcessHookTask runs the stage triggers carried by a queued task.
func (m *redisHookManager) ProcessHookTask(ctx context.Context, task *asynq.Task) error {
	var payload HookPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal hook task payload: %v: %w", err, asynq.SkipRetry)
	}

	logrus.WithFields(logrus.Fields{
		"workflow_id": payload.WorkflowID,
		"brand":       payload.Brand,
		"status":      payload.Status,
	}).Info("Processing queued stage trigger")

	return m.ExecuteStageHooks(ctx, payload)
}
