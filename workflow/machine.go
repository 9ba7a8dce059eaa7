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
	"time"
)

var (
	// ErrInvalidTransition is returned for a move the status graph does not allow.
	ErrInvalidTransition = errors.New("invalid workflow transition")
	// ErrAlreadyStarted guards against dispatching a second job for a stage.
	ErrAlreadyStarted = errors.New("workflow stage already has a job")
	// ErrMissingJobID is returned when a dispatch carries no job reference.
	ErrMissingJobID = errors.New("job id is required")
	// ErrMissingOutput is returned when a stage completes without an output reference.
	ErrMissingOutput = errors.New("stage completed without an output reference")
	// ErrStaleWrite is returned when a compare-and-swap update lost the race.
	ErrStaleWrite = errors.New("workflow was modified concurrently")
	// ErrTriggerFailed means the transition was stored but the next stage
	// trigger could not be fired.
	ErrTriggerFailed = errors.New("workflow advanced but next stage trigger failed")
)

// Dispatch records the job started for the stage the item is waiting on.
// A pending item moves to the processing status of its resume stage; an item
// already in that status only gets its missing job reference filled in.
func Dispatch(item Item, jobID string, now time.Time) (Item, error) {
	if jobID == "" {
		return item, ErrMissingJobID
	}
	switch st := item.State.(type) {
	case Pending:
		switch {
		case st.Generated == nil:
			return transition(item, Generating{GenerationID: jobID}, now)
		case st.Captioned == nil:
			return transition(item, Captioning{Generated: *st.Generated, CaptionID: jobID}, now)
		default:
			return transition(item, Posting{Generated: *st.Generated, Captioned: *st.Captioned, PostID: jobID}, now)
		}
	case Generating:
		if st.GenerationID != "" {
			return item, fmt.Errorf("%w: generation job %s", ErrAlreadyStarted, st.GenerationID)
		}
		st.GenerationID = jobID
		return transition(item, st, now)
	case Captioning:
		if st.CaptionID != "" {
			return item, fmt.Errorf("%w: captioning job %s", ErrAlreadyStarted, st.CaptionID)
		}
		st.CaptionID = jobID
		return transition(item, st, now)
	case Posting:
		if st.PostID != "" {
			return item, fmt.Errorf("%w: posting job %s", ErrAlreadyStarted, st.PostID)
		}
		st.PostID = jobID
		return transition(item, st, now)
	}
	return item, fmt.Errorf("%w: cannot dispatch a job from %s", ErrInvalidTransition, item.Status())
}

// Advance completes the running stage with its output reference and moves the
// item to the next stage, or to completed after posting.
func Advance(item Item, outputRef string, now time.Time) (Item, error) {
	if outputRef == "" {
		return item, ErrMissingOutput
	}
	switch st := item.State.(type) {
	case Generating:
		return transition(item, Captioning{
			Generated: Generated{GenerationID: st.GenerationID, VideoURL: outputRef},
		}, now)
	case Captioning:
		if st.CaptionID == "" {
			return item, fmt.Errorf("%w: captioning has no job to complete", ErrInvalidTransition)
		}
		return transition(item, Posting{
			Generated: st.Generated,
			Captioned: Captioned{CaptionID: st.CaptionID, CaptionedURL: outputRef},
		}, now)
	case Posting:
		postID := st.PostID
		if postID == "" {
			postID = outputRef
		}
		return transition(item, Completed{
			Generated:    st.Generated,
			Captioned:    st.Captioned,
			PostID:       postID,
			PublishedURL: outputRef,
			CompletedAt:  now,
		}, now)
	}
	return item, fmt.Errorf("%w: cannot advance from %s", ErrInvalidTransition, item.Status())
}

// Fail moves a pending or processing item to failed, keeping its references.
// Retryable failures are picked up again by the scheduled retry pass.
func Fail(item Item, reason string, retryable bool, now time.Time) (Item, error) {
	from := item.Status()
	if from != StatusPending && !from.IsProcessing() {
		return item, fmt.Errorf("%w: cannot fail a %s workflow", ErrInvalidTransition, from)
	}
	if reason == "" {
		reason = "unknown error"
	}
	return transition(item, Failed{
		Stage:     from,
		Refs:      RefsOf(item.State),
		Error:     reason,
		Retryable: retryable,
		FailedAt:  now,
	}, now)
}

// Retry moves a failed item back to pending. References of the failed stage
// and every later stage are dropped so the pipeline resumes at that stage.
func Retry(item Item, now time.Time) (Item, error) {
	st, ok := item.State.(Failed)
	if !ok {
		return item, fmt.Errorf("%w: only failed workflows can be retried, got %s", ErrInvalidTransition, item.Status())
	}

	next := Pending{}
	refs := st.Refs
	generated := &Generated{GenerationID: refs.GenerationID, VideoURL: refs.VideoURL}
	captioned := &Captioned{CaptionID: refs.CaptionID, CaptionedURL: refs.CaptionedURL}
	switch st.Stage {
	case StatusCaptioning:
		if generated.validate() == nil {
			next.Generated = generated
		}
	case StatusPosting:
		if generated.validate() == nil {
			next.Generated = generated
			if captioned.validate() == nil {
				next.Captioned = captioned
			}
		}
	}

	out, err := transition(item, next, now)
	if err != nil {
		return item, err
	}
	out.Attempts++
	return out, nil
}

// transition validates and applies a state change.
func transition(item Item, next State, now time.Time) (Item, error) {
	from, to := item.Status(), next.Status()
	if from != to && !IsTransitionAllowed(from, to) {
		return item, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if err := next.Validate(); err != nil {
		return item, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	item.State = next
	item.UpdatedAt = now
	if from != to {
		item.StatusChangedAt = now
	}
	return item, nil
}
