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
	"errors"
	"fmt"
	"time"
)

// JobState is what an external service says about one of its jobs.
type JobState string

const (
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
)

// JobStatus is the authoritative status of an external job.
type JobStatus struct {
	State     JobState `json:"state"`
	OutputRef string   `json:"output_ref,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// StatusChecker looks up the status of a stage's external job.
type StatusChecker interface {
	CheckStatus(ctx context.Context, stage Stage, jobID string) (JobStatus, error)
}

// Thresholds are the staleness limits recovery works with.
type Thresholds struct {
	// MinAge protects jobs still inside their expected completion window.
	MinAge time.Duration
	// RetryAge is when a job that made no progress is failed for retry.
	RetryAge time.Duration
	// MaxAge is the ceiling after which an item is failed whatever the service says.
	MaxAge time.Duration
	// MissingJobIDAge fails processing items that never got a job reference.
	MissingJobIDAge time.Duration
}

// DefaultThresholds returns 5m / 1h / 24h with a 30m missing job id limit.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinAge:          5 * time.Minute,
		RetryAge:        time.Hour,
		MaxAge:          24 * time.Hour,
		MissingJobIDAge: 30 * time.Minute,
	}
}

// Validate enforces MinAge < RetryAge < MaxAge.
func (t Thresholds) Validate() error {
	if t.MinAge <= 0 || t.RetryAge <= 0 || t.MaxAge <= 0 || t.MissingJobIDAge <= 0 {
		return errors.New("recovery thresholds must be positive")
	}
	if !(t.MinAge < t.RetryAge && t.RetryAge < t.MaxAge) {
		return fmt.Errorf("recovery thresholds must satisfy min < retry < max, got %s / %s / %s", t.MinAge, t.RetryAge, t.MaxAge)
	}
	return nil
}

// Action is what recovery does with an item.
type Action int

const (
	ActionNone Action = iota
	ActionCheck
	ActionAdvance
	ActionFail
)

func (a Action) String() string {
	switch a {
	case ActionCheck:
		return "check"
	case ActionAdvance:
		return "advance"
	case ActionFail:
		return "fail"
	}
	return "none"
}

// Decision is the verdict for one item.
type Decision struct {
	Action    Action
	OutputRef string
	Reason    string
	Retryable bool
	Forced    bool
}

// Triage decides from age alone whether an item needs an external lookup.
func (t Thresholds) Triage(item Item, now time.Time) Decision {
	status := item.Status()
	if !status.IsProcessing() {
		return Decision{Reason: fmt.Sprintf("%s is not a processing status", status)}
	}
	age := item.Age(now)
	if age < t.MinAge {
		return Decision{Reason: "too recent"}
	}
	if age >= t.MaxAge {
		return Decision{
			Action: ActionFail,
			Reason: fmt.Sprintf("stuck in %s for %s", status, age.Truncate(time.Minute)),
			Forced: true,
		}
	}
	if JobID(item.State) == "" {
		stage, _ := status.Stage()
		if age >= t.MissingJobIDAge {
			return Decision{
				Action:    ActionFail,
				Reason:    fmt.Sprintf("no %s job id after %s", stage, age.Truncate(time.Minute)),
				Retryable: true,
			}
		}
		return Decision{Reason: fmt.Sprintf("waiting for %s job id", stage)}
	}
	return Decision{Action: ActionCheck}
}

// Resolve turns the external status of an item's job into a decision.
func (t Thresholds) Resolve(item Item, status JobStatus, now time.Time) Decision {
	switch status.State {
	case JobCompleted:
		if status.OutputRef != "" {
			return Decision{Action: ActionAdvance, OutputRef: status.OutputRef}
		}
	case JobFailed:
		reason := status.Error
		if reason == "" {
			reason = "external job failed"
		}
		return Decision{Action: ActionFail, Reason: reason}
	}

	age := item.Age(now)
	if age >= t.RetryAge {
		return Decision{
			Action:    ActionFail,
			Reason:    fmt.Sprintf("no progress after %s, marked for retry", age.Truncate(time.Minute)),
			Retryable: true,
		}
	}
	return Decision{Reason: "still processing"}
}

// Apply performs the transition a decision calls for.
func Apply(item Item, d Decision, now time.Time) (Item, error) {
	switch d.Action {
	case ActionAdvance:
		return Advance(item, d.OutputRef, now)
	case ActionFail:
		return Fail(item, d.Reason, d.Retryable, now)
	}
	return item, nil
}
