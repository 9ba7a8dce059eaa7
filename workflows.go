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
	"fmt"

	"github.com/ownerfi/dealflow/database"
	"github.com/ownerfi/dealflow/internal/apierror"
	"github.com/ownerfi/dealflow/internal/hooks"
	"github.com/ownerfi/dealflow/internal/search"
	"github.com/ownerfi/dealflow/model"
	"github.com/ownerfi/dealflow/workflow"
	"github.com/sirupsen/logrus"
)

// EnqueueWorkflow adds a pending item for a source article to a brand's queue.
func (d *Dealflow) EnqueueWorkflow(ctx context.Context, brand, sourceArticleID string, metaData map[string]interface{}) (workflow.Item, error) {
	ctx, span := tracer.Start(ctx, "EnqueueWorkflow")
	defer span.End()

	if !d.knownBrand(brand) {
		return workflow.Item{}, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("unknown brand %q", brand), nil)
	}
	item := workflow.NewItem(brand, "", sourceArticleID, d.clock.Now())
	item.MetaData = metaData

	rec, err := d.datasource.CreateWorkflow(ctx, item.ToRecord())
	if err != nil {
		return workflow.Item{}, err
	}
	created, err := workflow.FromRecord(rec)
	if err != nil {
		return workflow.Item{}, toAPIError(err)
	}
	d.index(ctx, search.CollectionWorkflows, rec)
	return created, nil
}

// GetWorkflow loads one item.
func (d *Dealflow) GetWorkflow(ctx context.Context, brand, id string) (workflow.Item, error) {
	rec, err := d.datasource.GetWorkflow(ctx, brand, id)
	if err != nil {
		return workflow.Item{}, err
	}
	item, err := workflow.FromRecord(*rec)
	if err != nil {
		return workflow.Item{}, toAPIError(err)
	}
	return item, nil
}

// ListWorkflows returns persisted rows matching filter.
func (d *Dealflow) ListWorkflows(ctx context.Context, filter model.WorkflowFilter) ([]model.WorkflowRecord, error) {
	if filter.Status != "" {
		if _, err := workflow.ParseStatus(filter.Status); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
		}
	}
	return d.datasource.ListWorkflows(ctx, filter)
}

// StartGeneration records the generation job of a fresh pending item.
func (d *Dealflow) StartGeneration(ctx context.Context, brand, id, jobID string) (workflow.Item, error) {
	return d.dispatch(ctx, brand, id, jobID, workflow.StageGeneration)
}

// DispatchJob records the job started for whatever stage the item waits on:
// the resume stage of a pending item, or a processing stage still missing its
// job reference.
func (d *Dealflow) DispatchJob(ctx context.Context, brand, id, jobID string) (workflow.Item, error) {
	return d.dispatch(ctx, brand, id, jobID, "")
}

func (d *Dealflow) dispatch(ctx context.Context, brand, id, jobID string, want workflow.Stage) (workflow.Item, error) {
	ctx, span := tracer.Start(ctx, "DispatchJob")
	defer span.End()

	item, err := d.GetWorkflow(ctx, brand, id)
	if err != nil {
		return workflow.Item{}, err
	}
	now := d.clock.Now()
	next, err := workflow.Dispatch(item, jobID, now)
	if err != nil {
		return item, toAPIError(err)
	}
	stage, _ := next.Status().Stage()
	if want != "" && stage != want {
		return item, toAPIError(fmt.Errorf("%w: workflow %s/%s resumes at %s", workflow.ErrInvalidTransition, brand, id, stage))
	}

	if d.limiter != nil {
		ok, err := d.limiter.Take(ctx, brand, string(stage))
		if err != nil {
			return item, apierror.NewAPIError(apierror.ErrUnavailable, "quota check failed", err)
		}
		if !ok {
			return item, apierror.NewAPIError(apierror.ErrTooManyRequests, fmt.Sprintf("%s quota exceeded for %s", stage, brand), ErrQuotaExceeded)
		}
	}

	ok, err := d.datasource.CompareAndSwapWorkflow(ctx, string(item.Status()), next.ToRecord())
	if err != nil {
		return item, err
	}
	if !ok {
		return item, toAPIError(fmt.Errorf("%w: %s/%s", workflow.ErrStaleWrite, brand, id))
	}
	next.Version++

	logrus.WithFields(logrus.Fields{
		"brand":       brand,
		"workflow_id": id,
		"stage":       stage,
		"job_id":      jobID,
	}).Info("workflow job dispatched")
	d.index(ctx, search.CollectionWorkflows, next.ToRecord())
	return next, nil
}

// RetryWorkflow moves a failed item back to pending and unlocks its source article.
func (d *Dealflow) RetryWorkflow(ctx context.Context, brand, id string) (workflow.Item, error) {
	ctx, span := tracer.Start(ctx, "RetryWorkflow")
	defer span.End()

	item, err := d.GetWorkflow(ctx, brand, id)
	if err != nil {
		return workflow.Item{}, err
	}
	next, err := workflow.RetryItem(ctx, d.datasource, d.datasource, item, d.clock.Now())
	if err != nil {
		return item, toAPIError(err)
	}
	d.index(ctx, search.CollectionWorkflows, next.ToRecord())
	return next, nil
}

// AdvanceStage queues the trigger for the status the item just entered. It is
// called after the transition has been committed.
func (d *Dealflow) AdvanceStage(ctx context.Context, item workflow.Item, outputRef string) error {
	d.index(ctx, search.CollectionWorkflows, item.ToRecord())
	if d.queue == nil {
		return nil
	}
	return d.queue.queueStageTrigger(ctx, hooks.HookPayload{
		WorkflowID: item.ID,
		Brand:      item.Brand,
		Status:     item.Status(),
		OutputRef:  outputRef,
		Timestamp:  d.clock.Now(),
	}, item.Version)
}

func (d *Dealflow) knownBrand(brand string) bool {
	for _, b := range d.config.Recovery.Brands {
		if b == brand {
			return true
		}
	}
	return false
}

var _ workflow.StageAdvancer = (*Dealflow)(nil)
var _ workflow.Store = (database.IDataSource)(nil)
