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

// State is a sealed sum type over the workflow statuses. Each variant carries
// only the references that are meaningful for its status.
type State interface {
	Status() Status
	Validate() error
	isState()
}

// Generated is the output of the generation stage.
type Generated struct {
	GenerationID string
	VideoURL     string
}

// Captioned is the output of the captioning stage.
type Captioned struct {
	CaptionID    string
	CaptionedURL string
}

// Pending waits for a job to be dispatched. After a retry it keeps the outputs
// of the stages that had already finished.
type Pending struct {
	Generated *Generated
	Captioned *Captioned
}

// Generating has a generation job running. GenerationID is empty when the
// row was moved to stage1_processing before the job reference was stored.
type Generating struct {
	GenerationID string
}

// Captioning has a captioning job running, or about to be dispatched while
// CaptionID is still empty.
type Captioning struct {
	Generated Generated
	CaptionID string
}

// Posting is publishing the captioned video. PostID is empty until the
// publish job is dispatched.
type Posting struct {
	Generated Generated
	Captioned Captioned
	PostID    string
}

// Completed has every stage reference populated.
type Completed struct {
	Generated    Generated
	Captioned    Captioned
	PostID       string
	PublishedURL string
	CompletedAt  time.Time
}

// Failed keeps whatever references existed when the item failed.
type Failed struct {
	Stage     Status
	Refs      References
	Error     string
	Retryable bool
	FailedAt  time.Time
}

// References is the flat view of every external reference an item can hold.
type References struct {
	GenerationID string
	VideoURL     string
	CaptionID    string
	CaptionedURL string
	PostID       string
	PublishedURL string
}

func (Pending) Status() Status    { return StatusPending }
func (Generating) Status() Status { return StatusGenerating }
func (Captioning) Status() Status { return StatusCaptioning }
func (Posting) Status() Status    { return StatusPosting }
func (Completed) Status() Status  { return StatusCompleted }
func (Failed) Status() Status     { return StatusFailed }

func (Pending) isState()    {}
func (Generating) isState() {}
func (Captioning) isState() {}
func (Posting) isState()    {}
func (Completed) isState()  {}
func (Failed) isState()     {}

func (g Generated) validate() error {
	if g.GenerationID == "" || g.VideoURL == "" {
		return errors.New("generation output requires a job id and a video url")
	}
	return nil
}

func (c Captioned) validate() error {
	if c.CaptionID == "" || c.CaptionedURL == "" {
		return errors.New("captioning output requires a job id and a captioned url")
	}
	return nil
}

func (p Pending) Validate() error {
	if p.Captioned != nil && p.Generated == nil {
		return errors.New("pending: captioned output without generated output")
	}
	if p.Generated != nil {
		if err := p.Generated.validate(); err != nil {
			return fmt.Errorf("pending: %w", err)
		}
	}
	if p.Captioned != nil {
		if err := p.Captioned.validate(); err != nil {
			return fmt.Errorf("pending: %w", err)
		}
	}
	return nil
}

func (Generating) Validate() error { return nil }

func (c Captioning) Validate() error {
	if err := c.Generated.validate(); err != nil {
		return fmt.Errorf("stage2_processing: %w", err)
	}
	return nil
}

func (p Posting) Validate() error {
	if err := p.Generated.validate(); err != nil {
		return fmt.Errorf("posting: %w", err)
	}
	if err := p.Captioned.validate(); err != nil {
		return fmt.Errorf("posting: %w", err)
	}
	return nil
}

func (c Completed) Validate() error {
	if err := c.Generated.validate(); err != nil {
		return fmt.Errorf("completed: %w", err)
	}
	if err := c.Captioned.validate(); err != nil {
		return fmt.Errorf("completed: %w", err)
	}
	if c.PostID == "" {
		return errors.New("completed requires a post id")
	}
	return nil
}

func (f Failed) Validate() error {
	if f.Error == "" {
		return errors.New("failed requires an error message")
	}
	if f.Stage != StatusPending && !f.Stage.IsProcessing() {
		return fmt.Errorf("failed: %q is not a stage an item can fail in", f.Stage)
	}
	return nil
}

// JobID returns the external job reference of the running stage, or "" when
// the state has no running stage or its job was not dispatched yet.
func JobID(s State) string {
	switch st := s.(type) {
	case Generating:
		return st.GenerationID
	case Captioning:
		return st.CaptionID
	case Posting:
		return st.PostID
	}
	return ""
}

// RefsOf flattens the references held by any state.
func RefsOf(s State) References {
	switch st := s.(type) {
	case Pending:
		var r References
		if st.Generated != nil {
			r.GenerationID, r.VideoURL = st.Generated.GenerationID, st.Generated.VideoURL
		}
		if st.Captioned != nil {
			r.CaptionID, r.CaptionedURL = st.Captioned.CaptionID, st.Captioned.CaptionedURL
		}
		return r
	case Generating:
		return References{GenerationID: st.GenerationID}
	case Captioning:
		return References{
			GenerationID: st.Generated.GenerationID,
			VideoURL:     st.Generated.VideoURL,
			CaptionID:    st.CaptionID,
		}
	case Posting:
		return References{
			GenerationID: st.Generated.GenerationID,
			VideoURL:     st.Generated.VideoURL,
			CaptionID:    st.Captioned.CaptionID,
			CaptionedURL: st.Captioned.CaptionedURL,
			PostID:       st.PostID,
		}
	case Completed:
		return References{
			GenerationID: st.Generated.GenerationID,
			VideoURL:     st.Generated.VideoURL,
			CaptionID:    st.Captioned.CaptionID,
			CaptionedURL: st.Captioned.CaptionedURL,
			PostID:       st.PostID,
			PublishedURL: st.PublishedURL,
		}
	case Failed:
		return st.Refs
	}
	return References{}
}
