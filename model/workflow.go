package model

import "time"

// WorkflowRecord is the persisted, flat form of a workflow item.
// Which reference columns may be set depends on Status; the workflow
// package validates that when converting to its typed states.
type WorkflowRecord struct {
	WorkflowID      string  `json:"workflow_id"`
	Brand           string  `json:"brand"`
	Status          string  `json:"status"`
	SourceArticleID *string `json:"source_article_id,omitempty"`

	ExternalGenerationID *string `json:"external_generation_id,omitempty"`
	VideoURL             *string `json:"video_url,omitempty"`
	ExternalCaptionID    *string `json:"external_caption_id,omitempty"`
	CaptionedVideoURL    *string `json:"captioned_video_url,omitempty"`
	ExternalPostID       *string `json:"external_post_id,omitempty"`
	PublishedURL         *string `json:"published_url,omitempty"`

	FailedStage *string `json:"failed_stage,omitempty"`
	Error       *string `json:"error,omitempty"`
	Retryable   bool    `json:"retryable"`
	Attempts    int     `json:"attempts"`
	Version     int64   `json:"version"`

	MetaData        map[string]interface{} `json:"meta_data,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	StatusChangedAt time.Time              `json:"status_changed_at"`
	FailedAt        *time.Time             `json:"failed_at,omitempty"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
}

// WorkflowFilter narrows workflow queries. Zero values are ignored.
type WorkflowFilter struct {
	Brand         string
	Status        string
	ChangedBefore time.Time
	Limit         int
	Offset        int
}
