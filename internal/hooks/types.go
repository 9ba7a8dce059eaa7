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

// Package hooks stores the stage trigger endpoints that are called when a
// workflow item enters a new status, and executes them from queued tasks.
package hooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/ownerfi/dealflow/workflow"
)

// TaskType is the asynq task that carries a stage trigger.
const TaskType = "workflow:stage_trigger"

// Hook is a registered stage trigger.
type Hook struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	URL         string          `json:"url"`
	Status      workflow.Status `json:"status"`          // status whose entry fires the hook
	Brand       string          `json:"brand,omitempty"` // empty matches every brand
	Active      bool            `json:"active"`
	Timeout     int             `json:"timeout"` // seconds
	CreatedAt   time.Time       `json:"created_at"`
	LastRun     time.Time       `json:"last_run"`
	LastSuccess bool            `json:"last_success"`
}

// HookPayload is what a trigger endpoint receives.
type HookPayload struct {
	WorkflowID string          `json:"workflow_id"`
	Brand      string          `json:"brand"`
	Status     workflow.Status `json:"status"`
	OutputRef  string          `json:"output_ref,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// HookResponse is the optional JSON answer of a trigger endpoint.
type HookResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type HookManager interface {
	RegisterHook(ctx context.Context, hook *Hook) error
	UpdateHook(ctx context.Context, hookID string, hook *Hook) error
	DeleteHook(ctx context.Context, hookID string) error
	GetHook(ctx context.Context, hookID string) (*Hook, error)
	ListHooks(ctx context.Context, status workflow.Status) ([]*Hook, error)
	ExecuteStageHooks(ctx context.Context, payload HookPayload) error
	ProcessHookTask(ctx context.Context, task *asynq.Task) error
}
