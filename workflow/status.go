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

// Package workflow models a content item moving through the external
// generation, captioning and posting services.
//
// Status graph:
//
//	pending ──► stage1_processing ──► stage2_processing ──► posting ──► completed
//	   ▲               │                      │                │
//	   │               └──────────────────────┴────────────────┴──► failed
//	   └──────────────────────────────────────────────────────────────┘ (retry)
//
// A retried item resumes at the stage that failed, so pending may also move
// straight to stage2_processing or posting when earlier outputs are kept.
package workflow

import "fmt"

// Status values are stored verbatim in the workflows table.
type Status string

const (
	StatusPending    Status = "pending"
	StatusGenerating Status = "stage1_processing"
	StatusCaptioning Status = "stage2_processing"
	StatusPosting    Status = "posting"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ProcessingStatuses are the states recovery passes look at.
var ProcessingStatuses = []Status{StatusGenerating, StatusCaptioning, StatusPosting}

// validTransitions lists every allowed (from -> to) pair.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusGenerating, StatusCaptioning, StatusPosting, StatusFailed},
	StatusGenerating: {StatusCaptioning, StatusFailed},
	StatusCaptioning: {StatusPosting, StatusFailed},
	StatusPosting:    {StatusCompleted, StatusFailed},
	StatusFailed:     {StatusPending},
	// completed is terminal
}

// ParseStatus converts a raw string to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusGenerating, StatusCaptioning, StatusPosting, StatusCompleted, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown workflow status %q", s)
}

// IsTransitionAllowed reports whether from -> to is an edge of the graph.
func IsTransitionAllowed(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsProcessing is true while an external job is expected to be running.
func (s Status) IsProcessing() bool {
	return s == StatusGenerating || s == StatusCaptioning || s == StatusPosting
}

// IsTerminal is true for completed and failed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Stage names the external service step behind a processing status.
type Stage string

const (
	StageGeneration Stage = "generation"
	StageCaptioning Stage = "captioning"
	StagePosting    Stage = "posting"
)

// Stages in pipeline order.
var Stages = []Stage{StageGeneration, StageCaptioning, StagePosting}

// Stage returns the pipeline stage for a processing status.
func (s Status) Stage() (Stage, bool) {
	switch s {
	case StatusGenerating:
		return StageGeneration, true
	case StatusCaptioning:
		return StageCaptioning, true
	case StatusPosting:
		return StagePosting, true
	}
	return "", false
}

// Status returns the processing status that runs the stage.
func (s Stage) Status() Status {
	switch s {
	case StageGeneration:
		return StatusGenerating
	case StageCaptioning:
		return StatusCaptioning
	case StagePosting:
		return StatusPosting
	}
	return ""
}

// ParseStage validates a stage name.
func ParseStage(s string) (Stage, error) {
	for _, stage := range Stages {
		if string(stage) == s {
			return stage, nil
		}
	}
	return "", fmt.Errorf("unknown workflow stage %q", s)
}
