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

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/ownerfi/dealflow/internal/apierror"
	"github.com/ownerfi/dealflow/model"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const workflowColumns = `workflow_id, brand, status, source_article_id,
	external_generation_id, video_url, external_caption_id, captioned_video_url,
	external_post_id, published_url, failed_stage, error, retryable, attempts, version,
	meta_data, created_at, updated_at, status_changed_at, failed_at, completed_at`

func (d Datasource) CreateWorkflow(ctx context.Context, rec model.WorkflowRecord) (model.WorkflowRecord, error) {
	ctx, span := tracer.Start(ctx, "Creating workflow")
	defer span.End()

	metaDataJSON, err := json.Marshal(rec.MetaData)
	if err != nil {
		return model.WorkflowRecord{}, errors.Wrap(err, "failed to marshal metadata")
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO dealflow.workflows (`+workflowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`, rec.WorkflowID, rec.Brand, rec.Status, rec.SourceArticleID,
		rec.ExternalGenerationID, rec.VideoURL, rec.ExternalCaptionID, rec.CaptionedVideoURL,
		rec.ExternalPostID, rec.PublishedURL, rec.FailedStage, rec.Error, rec.Retryable, rec.Attempts, rec.Version,
		metaDataJSON, rec.CreatedAt, rec.UpdatedAt, rec.StatusChangedAt, rec.FailedAt, rec.CompletedAt)
	if err != nil {
		span.RecordError(err)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return model.WorkflowRecord{}, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Workflow %s/%s already exists", rec.Brand, rec.WorkflowID), err)
		}
		return model.WorkflowRecord{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create workflow", err)
	}
	return rec, nil
}

func (d Datasource) GetWorkflow(ctx context.Context, brand, workflowID string) (*model.WorkflowRecord, error) {
	ctx, span := tracer.Start(ctx, "Fetching workflow")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+workflowColumns+`
		FROM dealflow.workflows
		WHERE brand = $1 AND workflow_id = $2
	`, brand, workflowID)

	rec, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Workflow %s/%s not found", brand, workflowID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve workflow", err)
	}
	return rec, nil
}

// FindWorkflowByJobID finds the item of a brand that references jobID at any
// stage. Webhooks only carry the external job ID.
func (d Datasource) FindWorkflowByJobID(ctx context.Context, brand, jobID string) (*model.WorkflowRecord, error) {
	ctx, span := tracer.Start(ctx, "Fetching workflow by job id")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+workflowColumns+`
		FROM dealflow.workflows
		WHERE brand = $1 AND (external_generation_id = $2 OR external_caption_id = $2 OR external_post_id = $2)
		ORDER BY updated_at DESC
		LIMIT 1
	`, brand, jobID)

	rec, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("No %s workflow references job %s", brand, jobID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve workflow", err)
	}
	return rec, nil
}

// ListWorkflows returns items oldest status change first, which is the order
// recovery wants them in.
func (d Datasource) ListWorkflows(ctx context.Context, filter model.WorkflowFilter) ([]model.WorkflowRecord, error) {
	ctx, span := tracer.Start(ctx, "Listing workflows")
	defer span.End()
	span.SetAttributes(attribute.String("workflow.brand", filter.Brand), attribute.String("workflow.status", filter.Status))

	var (
		conditions []string
		args       []interface{}
	)
	if filter.Brand != "" {
		args = append(args, filter.Brand)
		conditions = append(conditions, fmt.Sprintf("brand = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if !filter.ChangedBefore.IsZero() {
		args = append(args, filter.ChangedBefore)
		conditions = append(conditions, fmt.Sprintf("status_changed_at < $%d", len(args)))
	}

	var query strings.Builder
	query.WriteString("SELECT " + workflowColumns + " FROM dealflow.workflows")
	if len(conditions) > 0 {
		query.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	args = append(args, pageSize(filter.Limit), filter.Offset)
	query.WriteString(fmt.Sprintf(" ORDER BY status_changed_at ASC LIMIT $%d OFFSET $%d", len(args)-1, len(args)))

	rows, err := d.Conn.QueryContext(ctx, query.String(), args...)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve workflows", err)
	}
	defer rows.Close()

	records := []model.WorkflowRecord{}
	for rows.Next() {
		rec, err := scanWorkflow(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan workflow data", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over workflows", err)
	}
	return records, nil
}

// CompareAndSwapWorkflow writes rec only when the stored row still has
// expectedStatus and rec.Version. The stored version is bumped by one. It
// reports false, without error, when another writer got there first.
func (d Datasource) CompareAndSwapWorkflow(ctx context.Context, expectedStatus string, rec model.WorkflowRecord) (bool, error) {
	ctx, span := tracer.Start(ctx, "Compare and swap workflow")
	defer span.End()
	span.SetAttributes(
		attribute.String("workflow.id", rec.WorkflowID),
		attribute.String("workflow.from", expectedStatus),
		attribute.String("workflow.to", rec.Status),
	)

	metaDataJSON, err := json.Marshal(rec.MetaData)
	if err != nil {
		return false, errors.Wrap(err, "failed to marshal metadata")
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE dealflow.workflows
		SET status = $1,
			external_generation_id = $2,
			video_url = $3,
			external_caption_id = $4,
			captioned_video_url = $5,
			external_post_id = $6,
			published_url = $7,
			failed_stage = $8,
			error = $9,
			retryable = $10,
			attempts = $11,
			meta_data = $12,
			updated_at = $13,
			status_changed_at = $14,
			failed_at = $15,
			completed_at = $16,
			version = version + 1
		WHERE brand = $17 AND workflow_id = $18 AND status = $19 AND version = $20
	`, rec.Status, rec.ExternalGenerationID, rec.VideoURL, rec.ExternalCaptionID, rec.CaptionedVideoURL,
		rec.ExternalPostID, rec.PublishedURL, rec.FailedStage, rec.Error, rec.Retryable, rec.Attempts,
		metaDataJSON, time.Now().UTC(), rec.StatusChangedAt, rec.FailedAt, rec.CompletedAt,
		rec.Brand, rec.WorkflowID, expectedStatus, rec.Version)
	if err != nil {
		span.RecordError(err)
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update workflow", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	span.SetAttributes(attribute.Bool("workflow.swapped", n == 1))
	return n == 1, nil
}

func scanWorkflow(row rowScanner) (*model.WorkflowRecord, error) {
	var (
		rec          model.WorkflowRecord
		metaDataJSON []byte
	)
	err := row.Scan(&rec.WorkflowID, &rec.Brand, &rec.Status, &rec.SourceArticleID,
		&rec.ExternalGenerationID, &rec.VideoURL, &rec.ExternalCaptionID, &rec.CaptionedVideoURL,
		&rec.ExternalPostID, &rec.PublishedURL, &rec.FailedStage, &rec.Error, &rec.Retryable,
		&rec.Attempts, &rec.Version, &metaDataJSON, &rec.CreatedAt, &rec.UpdatedAt,
		&rec.StatusChangedAt, &rec.FailedAt, &rec.CompletedAt)
	if err != nil {
		return nil, err
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &rec.MetaData); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal metadata of workflow %s", rec.WorkflowID)
		}
	}
	return &rec, nil
}
