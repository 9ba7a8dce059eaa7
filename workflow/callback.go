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
	"errors"
	"fmt"
)

// ErrUnknownJob is returned for a callback about a job the item is not running.
var ErrUnknownJob = errors.New("job is not the workflow's running job")

// ResolveCallback turns an external service callback into a decision for the
// item. Callbacks for jobs other than the one currently running are rejected
// so a late duplicate cannot move the item twice.
func ResolveCallback(item Item, jobID string, status JobStatus) (Decision, error) {
	if !item.Status().IsProcessing() {
		return Decision{}, fmt.Errorf("%w: workflow %s is %s", ErrUnknownJob, item.ID, item.Status())
	}
	if current := JobID(item.State); current == "" || current != jobID {
		return Decision{}, fmt.Errorf("%w: workflow %s is running %q, callback for %q", ErrUnknownJob, item.ID, current, jobID)
	}
	switch status.State {
	case JobCompleted:
		if status.OutputRef == "" {
			return Decision{}, ErrMissingOutput
		}
		return Decision{Action: ActionAdvance, OutputRef: status.OutputRef, Reason: "callback"}, nil
	case JobFailed:
		reason := status.Error
		if reason == "" {
			reason = "external job failed"
		}
		return Decision{Action: ActionFail, Reason: reason}, nil
	}
	return Decision{Reason: "still processing"}, nil
}
