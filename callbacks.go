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

package dealflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ownerfi/dealflow/internal/apierror"
	"github.com/ownerfi/dealflow/internal/idempotency"
	"github.com/ownerfi/dealflow/internal/notification"
	"github.com/ownerfi/dealflow/internal/search"
	"github.com/ownerfi/dealflow/workflow"
	"github.com/sirupsen/logrus"
)

// Callback is a status notification pushed by an external service.
type Callback struct {
	Brand     string `json:"brand"`
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	OutputURL string `json:"output_url"`
	Error     string `json:"error"`
}

// CallbackResult says what a callback did.
type CallbackResult struct {
	Duplicate bool           `json:"duplicate"`
	Action    string         `json:"action"`
	Workflow  *workflow.Item `json:"-"`
}

var callbackStates = map[string]workflow.JobState{
	"completed": workflow.JobCompleted,
	"complete":  workflow.JobCompleted,
	"success":   workflow.JobCompleted,
	"succeeded": workflow.JobCompleted,
	"done":      workflow.JobCompleted,
	"published": workflow.JobCompleted,
	"failed":    workflow.JobFailed,
	"failure":   workflow.JobFailed,
	"error":     workflow.JobFailed,
	"cancelled": workflow.JobFailed,
	"canceled":  workflow.JobFailed,
}

func callbackStatus(cb Callback) workflow.JobStatus {
	state, ok := callbackStates[strings.ToLower(strings.TrimSpace(cb.Status))]
	if !ok {
		state = workflow.JobProcessing
	}
	return workflow.JobStatus{State: state, OutputRef: cb.OutputURL, Error: cb.Error}
}

// HandleCallback applies an external service callback to the item running the
// job. Each (service, job, brand) is applied at most once per retention
// window; a callback that changes nothing, or whose processing failed, does
// not use up the key so the service can send it again.
func (d *Dealflow) HandleCallback(ctx context.Context, service string, cb Callback) (CallbackResult, error) {
	ctx, span := tracer.Start(ctx, "HandleCallback")
	defer span.End()

	stage, ok := d.stages.StageFor(service)
	if !ok {
		return CallbackResult{}, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("unknown service %q", service), nil)
	}
	if cb.JobID == "" || cb.Brand == "" {
		return CallbackResult{}, apierror.NewAPIError(apierror.ErrInvalidInput, "brand and job_id are required", nil)
	}

	key := idempotency.Key(service, cb.JobID, cb.Brand)
	claimed, err := d.idempotency.Claim(ctx, key)
	if err != nil {
		return CallbackResult{}, apierror.NewAPIError(apierror.ErrUnavailable, "idempotency check failed", err)
	}
	if !claimed {
		logrus.WithField("key", key).Info("duplicate callback ignored")
		return CallbackResult{Duplicate: true, Action: workflow.ActionNone.String()}, nil
	}

	result, err := d.applyCallback(ctx, stage, cb)
	switch {
	case err == nil && result.Action != workflow.ActionNone.String():
		if cerr := d.idempotency.Complete(ctx, key); cerr != nil {
			logrus.Warnf("failed to mark callback %s processed: %v", key, cerr)
		}
	case errors.Is(err, workflow.ErrTriggerFailed):
		// the transition is stored; only the next stage trigger is missing
		if cerr := d.idempotency.Complete(ctx, key); cerr != nil {
			logrus.Warnf("failed to mark callback %s processed: %v", key, cerr)
		}
		notification.NotifyError(err)
		return result, nil
	default:
		if rerr := d.idempotency.Release(ctx, key); rerr != nil {
			logrus.Warnf("failed to release callback %s: %v", key, rerr)
		}
	}
	return result, err
}

func (d *Dealflow) applyCallback(ctx context.Context, stage workflow.Stage, cb Callback) (CallbackResult, error) {
	rec, err := d.datasource.FindWorkflowByJobID(ctx, cb.Brand, cb.JobID)
	if err != nil {
		return CallbackResult{}, err
	}
	item, err := workflow.FromRecord(*rec)
	if err != nil {
		return CallbackResult{}, toAPIError(err)
	}
	if current, _ := item.Status().Stage(); current != stage {
		return CallbackResult{}, toAPIError(fmt.Errorf("%w: workflow %s is at %s, callback is for %s", workflow.ErrUnknownJob, item.ID, item.Status(), stage))
	}

	decision, err := workflow.ResolveCallback(item, cb.JobID, callbackStatus(cb))
	if err != nil {
		return CallbackResult{}, toAPIError(err)
	}
	result := CallbackResult{Action: decision.Action.String(), Workflow: &item}
	if decision.Action == workflow.ActionNone {
		return result, nil
	}

	next, err := workflow.Commit(ctx, d.datasource, d, item, decision, d.clock.Now())
	result.Workflow = &next
	if err != nil {
		if errors.Is(err, workflow.ErrTriggerFailed) {
			return result, err
		}
		return CallbackResult{}, toAPIError(err)
	}
	if decision.Action == workflow.ActionFail {
		d.index(ctx, search.CollectionWorkflows, next.ToRecord())
	}
	return result, nil
}
