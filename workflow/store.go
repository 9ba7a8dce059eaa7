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

package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/ownerfi/dealflow/model"
	"github.com/sirupsen/logrus"
)

// Store persists workflow rows.
type Store interface {
	ListWorkflows(ctx context.Context, filter model.WorkflowFilter) ([]model.WorkflowRecord, error)
	// CompareAndSwapWorkflow writes rec only if the stored row still has
	// expectedStatus and rec.Version, and reports whether it did.
	CompareAndSwapWorkflow(ctx context.Context, expectedStatus string, rec model.WorkflowRecord) (bool, error)
}

// StageAdvancer fires the side effect that starts the stage after an advance,
// such as the captioning or publish trigger.
type StageAdvancer interface {
	AdvanceStage(ctx context.Context, item Item, outputRef string) error
}

// Commit applies d to item and persists the result with a compare-and-swap on
// the pre-state. The advance side effect runs only after the write won, so two
// passes racing over the same item trigger the next stage once.
func Commit(ctx context.Context, store Store, advancer StageAdvancer, item Item, d Decision, now time.Time) (Item, error) {
	if d.Action != ActionAdvance && d.Action != ActionFail {
		return item, nil
	}
	next, err := Apply(item, d, now)
	if err != nil {
		return item, err
	}
	ok, err := store.CompareAndSwapWorkflow(ctx, string(item.Status()), next.ToRecord())
	if err != nil {
		return item, fmt.Errorf("failed to update workflow %s/%s: %w", item.Brand, item.ID, err)
	}
	if !ok {
		return item, fmt.Errorf("%w: %s/%s expected %s", ErrStaleWrite, item.Brand, item.ID, item.Status())
	}
	next.Version++

	logrus.WithFields(logrus.Fields{
		"brand":       item.Brand,
		"workflow_id": item.ID,
		"from":        item.Status(),
		"to":          next.Status(),
		"reason":      d.Reason,
	}).Info("workflow transition committed")

	if d.Action == ActionAdvance && advancer != nil {
		if err := advancer.AdvanceStage(ctx, next, d.OutputRef); err != nil {
			return next, fmt.Errorf("%w: workflow %s/%s: %w", ErrTriggerFailed, item.Brand, item.ID, err)
		}
	}
	return next, nil
}
