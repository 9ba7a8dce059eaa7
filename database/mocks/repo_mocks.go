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
package mocks

import (
	"context"

	"github.com/ownerfi/dealflow/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Listing methods

func (m *MockDataSource) UpsertListing(ctx context.Context, listing *model.Listing) (*model.Listing, error) {
	args := m.Called(ctx, listing)
	if l, ok := args.Get(0).(*model.Listing); ok {
		return l, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataSource) GetListing(ctx context.Context, listingID string) (*model.Listing, error) {
	args := m.Called(ctx, listingID)
	if l, ok := args.Get(0).(*model.Listing); ok {
		return l, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataSource) ListListings(ctx context.Context, filter model.ListingFilter) ([]model.Listing, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]model.Listing), args.Error(1)
}

// Workflow methods

func (m *MockDataSource) CreateWorkflow(ctx context.Context, rec model.WorkflowRecord) (model.WorkflowRecord, error) {
	args := m.Called(ctx, rec)
	return args.Get(0).(model.WorkflowRecord), args.Error(1)
}

func (m *MockDataSource) GetWorkflow(ctx context.Context, brand, workflowID string) (*model.WorkflowRecord, error) {
	args := m.Called(ctx, brand, workflowID)
	if rec, ok := args.Get(0).(*model.WorkflowRecord); ok {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataSource) FindWorkflowByJobID(ctx context.Context, brand, jobID string) (*model.WorkflowRecord, error) {
	args := m.Called(ctx, brand, jobID)
	if rec, ok := args.Get(0).(*model.WorkflowRecord); ok {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataSource) ListWorkflows(ctx context.Context, filter model.WorkflowFilter) ([]model.WorkflowRecord, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]model.WorkflowRecord), args.Error(1)
}

func (m *MockDataSource) CompareAndSwapWorkflow(ctx context.Context, expectedStatus string, rec model.WorkflowRecord) (bool, error) {
	args := m.Called(ctx, expectedStatus, rec)
	return args.Bool(0), args.Error(1)
}

// Source article methods

func (m *MockDataSource) UnlockSource(ctx context.Context, brand, sourceArticleID string) error {
	args := m.Called(ctx, brand, sourceArticleID)
	return args.Error(0)
}
