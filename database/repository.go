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

	"github.com/ownerfi/dealflow/model"
)

// IDataSource groups the datasource operations.
type IDataSource interface {
	listing
	workflow
	sourceArticle
}

type listing interface {
	UpsertListing(ctx context.Context, listing *model.Listing) (*model.Listing, error)
	GetListing(ctx context.Context, listingID string) (*model.Listing, error)
	ListListings(ctx context.Context, filter model.ListingFilter) ([]model.Listing, error)
}

type workflow interface {
	CreateWorkflow(ctx context.Context, rec model.WorkflowRecord) (model.WorkflowRecord, error)
	GetWorkflow(ctx context.Context, brand, workflowID string) (*model.WorkflowRecord, error)
	FindWorkflowByJobID(ctx context.Context, brand, jobID string) (*model.WorkflowRecord, error)
	ListWorkflows(ctx context.Context, filter model.WorkflowFilter) ([]model.WorkflowRecord, error)
	CompareAndSwapWorkflow(ctx context.Context, expectedStatus string, rec model.WorkflowRecord) (bool, error)
}

type sourceArticle interface {
	UnlockSource(ctx context.Context, brand, sourceArticleID string) error
}
