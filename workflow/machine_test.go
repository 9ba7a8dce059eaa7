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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func runToPosting(t *testing.T) Item {
	t.Helper()
	item := NewItem("carz", "wf_1", "article_1", t0)
	var err error
	item, err = Dispatch(item, "gen_1", t0.Add(time.Minute))
	require.NoError(t, err)
	item, err = Advance(item, "https://cdn.example.com/video.mp4", t0.Add(10*time.Minute))
	require.NoError(t, err)
	item, err = Dispatch(item, "cap_1", t0.Add(11*time.Minute))
	require.NoError(t, err)
	item, err = Advance(item, "https://cdn.example.com/captioned.mp4", t0.Add(20*time.Minute))
	require.NoError(t, err)
	return item
}

func TestHappyPath(t *testing.T) {
	item := NewItem("carz", "wf_1", "article_1", t0)
	assert.Equal(t, StatusPending, item.Status())

	item, err := Dispatch(item, "gen_1", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusGenerating, item.Status())
	assert.Equal(t, t0.Add(time.Minute), item.StatusChangedAt)

	item, err = Advance(item, "https://cdn.example.com/video.mp4", t0.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusCaptioning, item.Status())
	assert.Empty(t, JobID(item.State))

	item, err = Dispatch(item, "cap_1", t0.Add(11*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusCaptioning, item.Status())
	assert.Equal(t, "cap_1", JobID(item.State))
	// filling in the job id is not a status change
	assert.Equal(t, t0.Add(10*time.Minute), item.StatusChangedAt)

	item, err = Advance(item, "https://cdn.example.com/captioned.mp4", t0.Add(20*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusPosting, item.Status())

	item, err = Dispatch(item, "post_1", t0.Add(21*time.Minute))
	require.NoError(t, err)
	item, err = Advance(item, "https://social.example.com/p/1", t0.Add(25*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, item.Status())

	done := item.State.(Completed)
	assert.Equal(t, "gen_1", done.Generated.GenerationID)
	assert.Equal(t, "cap_1", done.Captioned.CaptionID)
	assert.Equal(t, "post_1", done.PostID)
	assert.Equal(t, "https://social.example.com/p/1", done.PublishedURL)
	assert.Equal(t, t0.Add(25*time.Minute), done.CompletedAt)
	assert.NoError(t, done.Validate())
}

func TestDispatchGuards(t *testing.T) {
	item := NewItem("carz", "wf_1", "", t0)

	_, err := Dispatch(item, "", t0)
	assert.ErrorIs(t, err, ErrMissingJobID)

	started, err := Dispatch(item, "gen_1", t0)
	require.NoError(t, err)

	again, err := Dispatch(started, "gen_2", t0.Add(time.Minute))
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	assert.Equal(t, "gen_1", JobID(again.State))

	posting := runToPosting(t)
	posting, err = Dispatch(posting, "post_1", t0)
	require.NoError(t, err)
	_, err = Dispatch(posting, "post_2", t0)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestAdvanceGuards(t *testing.T) {
	item := NewItem("carz", "wf_1", "", t0)
	_, err := Advance(item, "https://cdn.example.com/video.mp4", t0)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	item, err = Dispatch(item, "gen_1", t0)
	require.NoError(t, err)
	_, err = Advance(item, "", t0)
	assert.ErrorIs(t, err, ErrMissingOutput)

	captioning, err := Advance(item, "https://cdn.example.com/video.mp4", t0)
	require.NoError(t, err)
	_, err = Advance(captioning, "https://cdn.example.com/captioned.mp4", t0)
	assert.ErrorIs(t, err, ErrInvalidTransition, "captioning cannot complete before its job exists")
}

func TestPostingWithoutJobUsesOutputAsPostID(t *testing.T) {
	item := runToPosting(t)
	done, err := Advance(item, "late_post_9", t0.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "late_post_9", done.State.(Completed).PostID)
}

func TestTerminalStatesCannotFail(t *testing.T) {
	item := runToPosting(t)
	item, err := Advance(item, "post_1", t0.Add(30*time.Minute))
	require.NoError(t, err)

	_, err = Fail(item, "boom", true, t0.Add(31*time.Minute))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	failed, err := Fail(runToPosting(t), "publish rejected", false, t0.Add(31*time.Minute))
	require.NoError(t, err)
	_, err = Fail(failed, "again", false, t0.Add(32*time.Minute))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestFailKeepsReferences(t *testing.T) {
	failed, err := Fail(runToPosting(t), "publish rejected", false, t0.Add(31*time.Minute))
	require.NoError(t, err)

	st := failed.State.(Failed)
	assert.Equal(t, StatusPosting, st.Stage)
	assert.Equal(t, "gen_1", st.Refs.GenerationID)
	assert.Equal(t, "cap_1", st.Refs.CaptionID)
	assert.Equal(t, "publish rejected", st.Error)
	assert.False(t, st.Retryable)
}

func TestRetryResumesAtFailedStage(t *testing.T) {
	t.Run("generation", func(t *testing.T) {
		item, err := Dispatch(NewItem("carz", "wf_1", "", t0), "gen_1", t0)
		require.NoError(t, err)
		item, err = Fail(item, "avatar error", true, t0.Add(time.Hour))
		require.NoError(t, err)

		item, err = Retry(item, t0.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, Pending{}, item.State)
		assert.Equal(t, 1, item.Attempts)

		item, err = Dispatch(item, "gen_2", t0.Add(3*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, Generating{GenerationID: "gen_2"}, item.State)
	})

	t.Run("captioning", func(t *testing.T) {
		item, err := Dispatch(NewItem("carz", "wf_1", "", t0), "gen_1", t0)
		require.NoError(t, err)
		item, err = Advance(item, "https://cdn.example.com/video.mp4", t0)
		require.NoError(t, err)
		item, err = Dispatch(item, "cap_1", t0)
		require.NoError(t, err)
		item, err = Fail(item, "caption timeout", true, t0.Add(time.Hour))
		require.NoError(t, err)

		item, err = Retry(item, t0.Add(2*time.Hour))
		require.NoError(t, err)
		pending := item.State.(Pending)
		require.NotNil(t, pending.Generated)
		assert.Equal(t, "gen_1", pending.Generated.GenerationID)
		assert.Nil(t, pending.Captioned)
		assert.Empty(t, RefsOf(item.State).CaptionID)

		item, err = Dispatch(item, "cap_2", t0.Add(3*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, StatusCaptioning, item.Status())
		assert.Equal(t, "cap_2", JobID(item.State))
	})

	t.Run("posting", func(t *testing.T) {
		item, err := Dispatch(runToPosting(t), "post_1", t0)
		require.NoError(t, err)
		item, err = Fail(item, "rate limited by network", true, t0.Add(time.Hour))
		require.NoError(t, err)

		item, err = Retry(item, t0.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, RefsOf(item.State).PostID)

		item, err = Dispatch(item, "post_2", t0.Add(3*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, StatusPosting, item.Status())
		assert.Equal(t, "post_2", JobID(item.State))
	})

	t.Run("only failed items", func(t *testing.T) {
		_, err := Retry(NewItem("carz", "wf_1", "", t0), t0)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestStatusGraph(t *testing.T) {
	assert.True(t, IsTransitionAllowed(StatusPending, StatusGenerating))
	assert.True(t, IsTransitionAllowed(StatusGenerating, StatusCaptioning))
	assert.True(t, IsTransitionAllowed(StatusCaptioning, StatusPosting))
	assert.True(t, IsTransitionAllowed(StatusPosting, StatusCompleted))
	assert.True(t, IsTransitionAllowed(StatusFailed, StatusPending))

	assert.False(t, IsTransitionAllowed(StatusGenerating, StatusPosting))
	assert.False(t, IsTransitionAllowed(StatusCompleted, StatusFailed))
	assert.False(t, IsTransitionAllowed(StatusCompleted, StatusPending))
	assert.False(t, IsTransitionAllowed(StatusFailed, StatusCompleted))

	_, err := ParseStatus("stage3_processing")
	assert.Error(t, err)
	st, err := ParseStatus("posting")
	require.NoError(t, err)
	assert.True(t, st.IsProcessing())
	assert.True(t, StatusFailed.IsTerminal())

	stage, ok := StatusCaptioning.Stage()
	assert.True(t, ok)
	assert.Equal(t, StageCaptioning, stage)
	assert.Equal(t, StatusPosting, StagePosting.Status())
}
