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

	"github.com/ownerfi/dealflow/model"
	"github.com/wacul/ptr"
)

// ErrInvalidRecord is returned when a persisted row does not form a legal state.
var ErrInvalidRecord = errors.New("invalid workflow record")

// Item is one content item in a brand's workflow queue.
type Item struct {
	ID              string
	Brand           string
	SourceArticleID string
	State           State
	Attempts        int
	Version         int64
	MetaData        map[string]interface{}
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StatusChangedAt time.Time
}

// NewItem creates a pending item.
func NewItem(brand, id, sourceArticleID string, now time.Time) Item {
	if id == "" {
		id = model.GenerateUUIDWithSuffix("wf")
	}
	return Item{
		ID:              id,
		Brand:           brand,
		SourceArticleID: sourceArticleID,
		State:           Pending{},
		CreatedAt:       now,
		UpdatedAt:       now,
		StatusChangedAt: now,
	}
}

// Status is the status of the item's current state.
func (i Item) Status() Status {
	if i.State == nil {
		return ""
	}
	return i.State.Status()
}

// Age is how long the item has been in its current status. Rows without a
// status change timestamp fall back to their creation time.
func (i Item) Age(now time.Time) time.Duration {
	since := i.StatusChangedAt
	if since.IsZero() {
		since = i.CreatedAt
	}
	return now.Sub(since)
}

// FromRecord converts a persisted row into an Item, rejecting rows whose
// references do not match their status.
func FromRecord(rec model.WorkflowRecord) (Item, error) {
	status, err := ParseStatus(rec.Status)
	if err != nil {
		return Item{}, fmt.Errorf("%w %s/%s: %v", ErrInvalidRecord, rec.Brand, rec.WorkflowID, err)
	}

	refs := References{
		GenerationID: value(rec.ExternalGenerationID),
		VideoURL:     value(rec.VideoURL),
		CaptionID:    value(rec.ExternalCaptionID),
		CaptionedURL: value(rec.CaptionedVideoURL),
		PostID:       value(rec.ExternalPostID),
		PublishedURL: value(rec.PublishedURL),
	}
	generated := Generated{GenerationID: refs.GenerationID, VideoURL: refs.VideoURL}
	captioned := Captioned{CaptionID: refs.CaptionID, CaptionedURL: refs.CaptionedURL}

	var state State
	switch status {
	case StatusPending:
		p := Pending{}
		if refs.GenerationID != "" || refs.VideoURL != "" {
			p.Generated = &generated
		}
		if refs.CaptionID != "" || refs.CaptionedURL != "" {
			p.Captioned = &captioned
		}
		state = p
	case StatusGenerating:
		state = Generating{GenerationID: refs.GenerationID}
	case StatusCaptioning:
		state = Captioning{Generated: generated, CaptionID: refs.CaptionID}
	case StatusPosting:
		state = Posting{Generated: generated, Captioned: captioned, PostID: refs.PostID}
	case StatusCompleted:
		completedAt := rec.UpdatedAt
		if rec.CompletedAt != nil {
			completedAt = *rec.CompletedAt
		}
		state = Completed{
			Generated:    generated,
			Captioned:    captioned,
			PostID:       refs.PostID,
			PublishedURL: refs.PublishedURL,
			CompletedAt:  completedAt,
		}
	case StatusFailed:
		stage := StatusPending
		if s := value(rec.FailedStage); s != "" {
			if stage, err = ParseStatus(s); err != nil {
				return Item{}, fmt.Errorf("%w %s/%s: %v", ErrInvalidRecord, rec.Brand, rec.WorkflowID, err)
			}
		}
		failedAt := rec.UpdatedAt
		if rec.FailedAt != nil {
			failedAt = *rec.FailedAt
		}
		state = Failed{
			Stage:     stage,
			Refs:      refs,
			Error:     value(rec.Error),
			Retryable: rec.Retryable,
			FailedAt:  failedAt,
		}
	}

	if err := state.Validate(); err != nil {
		return Item{}, fmt.Errorf("%w %s/%s: %v", ErrInvalidRecord, rec.Brand, rec.WorkflowID, err)
	}

	return Item{
		ID:              rec.WorkflowID,
		Brand:           rec.Brand,
		SourceArticleID: value(rec.SourceArticleID),
		State:           state,
		Attempts:        rec.Attempts,
		Version:         rec.Version,
		MetaData:        rec.MetaData,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
		StatusChangedAt: rec.StatusChangedAt,
	}, nil
}

// ToRecord flattens the item into its persisted row.
func (i Item) ToRecord() model.WorkflowRecord {
	refs := RefsOf(i.State)
	rec := model.WorkflowRecord{
		WorkflowID:           i.ID,
		Brand:                i.Brand,
		Status:               string(i.Status()),
		SourceArticleID:      optional(i.SourceArticleID),
		ExternalGenerationID: optional(refs.GenerationID),
		VideoURL:             optional(refs.VideoURL),
		ExternalCaptionID:    optional(refs.CaptionID),
		CaptionedVideoURL:    optional(refs.CaptionedURL),
		ExternalPostID:       optional(refs.PostID),
		PublishedURL:         optional(refs.PublishedURL),
		Attempts:             i.Attempts,
		Version:              i.Version,
		MetaData:             i.MetaData,
		CreatedAt:            i.CreatedAt,
		UpdatedAt:            i.UpdatedAt,
		StatusChangedAt:      i.StatusChangedAt,
	}
	switch st := i.State.(type) {
	case Failed:
		rec.FailedStage = optional(string(st.Stage))
		rec.Error = optional(st.Error)
		rec.Retryable = st.Retryable
		rec.FailedAt = ptr.Time(st.FailedAt)
	case Completed:
		rec.CompletedAt = ptr.Time(st.CompletedAt)
	}
	return rec
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return ptr.String(s)
}

func value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
