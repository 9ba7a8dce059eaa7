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

package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ownerfi/dealflow/classify"
	"github.com/ownerfi/dealflow/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/typesense/typesense-go/typesense/api"
	"github.com/wacul/ptr"
)

var t0 = time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

func savedListing() model.Listing {
	ft := classify.FinancingType("Owner Finance")
	reason := classify.CashDealReason("discount")
	estimate := 250000.0
	return model.Listing{
		ListingID:   "zillow_123",
		Source:      "zillow",
		Address:     "1 Main St",
		City:        "Houston",
		State:       "TX",
		Price:       150000,
		Estimate:    &estimate,
		Description: "Owner financing available",
		Result: classify.Result{
			IsOwnerFinance:        true,
			FinancingType:         &ft,
			FinancingDisplayLabel: "Owner Finance",
			IsCashDeal:            true,
			CashDealReason:        &reason,
			DealTypes:             []classify.DealType{classify.DealTypeOwnerFinance, classify.DealTypeCashDeal},
			ShouldSave:            true,
		},
		CreatedAt: t0,
		UpdatedAt: t0.Add(time.Hour),
	}
}

func TestSchemasCoverTimeFields(t *testing.T) {
	for name, config := range collectionConfigs {
		fields := map[string]string{}
		for _, f := range config.Schema.Fields {
			fields[f.Name] = f.Type
		}
		assert.Equal(t, "string", fields[config.IDField], name)
		for _, tf := range config.TimeFields {
			assert.Equal(t, "int64", fields[tf], "%s.%s", name, tf)
		}
		require.NotNil(t, config.Schema.DefaultSortingField)
		assert.Contains(t, fields, *config.Schema.DefaultSortingField)
	}
}

func TestListingDocument(t *testing.T) {
	doc, err := ListingDocument(savedListing())
	require.NoError(t, err)
	normalizeTimeFields(collectionConfigs[CollectionListings], doc)
	ensureSchemaFields(collectionConfigs[CollectionListings], doc)

	assert.Equal(t, "zillow_123", doc["listing_id"])
	assert.Equal(t, "Owner Finance", doc["financing_type"])
	assert.Equal(t, "discount", doc["cash_deal_reason"])
	assert.Equal(t, t0.Unix(), doc["created_at"])
	assert.Equal(t, t0.Add(time.Hour).Unix(), doc["updated_at"])
	assert.ElementsMatch(t, []interface{}{"owner_finance", "cash_deal"}, doc["deal_types"])
	assert.NotContains(t, doc, "discount_percentage")
	assert.NotContains(t, doc, "negative_financing")
	assert.Equal(t, "", doc["zip_code"])
}

func TestWorkflowDocument(t *testing.T) {
	rec := model.WorkflowRecord{
		WorkflowID:      "wf_1",
		Brand:           "carz",
		Status:          "failed",
		FailedStage:     ptr.String("stage2_processing"),
		Error:           ptr.String("captioning failed"),
		CreatedAt:       t0,
		UpdatedAt:       t0,
		StatusChangedAt: t0.Add(time.Minute),
		FailedAt:        ptr.Time(t0),
	}
	doc, err := WorkflowDocument(rec)
	require.NoError(t, err)

	assert.Equal(t, "carz:wf_1", doc["workflow_key"])
	assert.Equal(t, "stage2_processing", doc["failed_stage"])
	assert.NotContains(t, doc, "failed_at")
	assert.NotContains(t, doc, "video_url")
}

func TestIndexListingUpserts(t *testing.T) {
	var path, action string
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		action = r.URL.Query().Get("action")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"zillow_123"}`))
	}))
	defer server.Close()

	client := NewTypesenseClient("test-key", []string{server.URL})
	require.NoError(t, client.IndexListing(context.Background(), savedListing()))

	assert.Equal(t, "/collections/listings/documents", path)
	assert.Equal(t, "upsert", action)
	assert.Equal(t, "zillow_123", body["id"])
	assert.Equal(t, float64(t0.Unix()), body["created_at"])
}

func TestHandleNotificationUnknownCollection(t *testing.T) {
	client := NewTypesenseClient("k", []string{"http://localhost:1"})
	err := client.HandleNotification(context.Background(), "agents", map[string]interface{}{})
	assert.ErrorContains(t, err, "unknown collection")
}

func TestCompareSchemas(t *testing.T) {
	old := &api.CollectionSchema{Fields: []api.Field{{Name: "listing_id"}, {Name: "price"}}}
	added := compareSchemas(old, getListingSchema())
	names := make([]string, 0, len(added))
	for _, f := range added {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "deal_types")
	assert.NotContains(t, names, "price")
}

type mockSource struct{ mock.Mock }

func (m *mockSource) ListListings(ctx context.Context, f model.ListingFilter) ([]model.Listing, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]model.Listing), args.Error(1)
}

func (m *mockSource) ListWorkflows(ctx context.Context, f model.WorkflowFilter) ([]model.WorkflowRecord, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]model.WorkflowRecord), args.Error(1)
}

type mockIndexer struct{ mock.Mock }

func (m *mockIndexer) DropAllCollections(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockIndexer) EnsureCollectionsExist(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockIndexer) IndexListing(ctx context.Context, l model.Listing) error {
	return m.Called(ctx, l).Error(0)
}

func (m *mockIndexer) IndexWorkflow(ctx context.Context, rec model.WorkflowRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func TestStartReindex(t *testing.T) {
	src := new(mockSource)
	idx := new(mockIndexer)
	ctx := context.Background()

	page1 := []model.Listing{{ListingID: "a"}, {ListingID: "b"}}
	page2 := []model.Listing{{ListingID: "c"}}
	src.On("ListListings", ctx, model.ListingFilter{Limit: 2, Offset: 0}).Return(page1, nil)
	src.On("ListListings", ctx, model.ListingFilter{Limit: 2, Offset: 2}).Return(page2, nil)
	src.On("ListWorkflows", ctx, model.WorkflowFilter{Brand: "carz", Limit: 2}).
		Return([]model.WorkflowRecord{{Brand: "carz", WorkflowID: "wf_1"}}, nil)

	idx.On("DropAllCollections", ctx).Return(nil)
	idx.On("EnsureCollectionsExist", ctx).Return(nil)
	idx.On("IndexListing", ctx, mock.MatchedBy(func(l model.Listing) bool { return l.ListingID != "b" })).Return(nil)
	idx.On("IndexListing", ctx, model.Listing{ListingID: "b"}).Return(errors.New("bad document"))
	idx.On("IndexWorkflow", ctx, mock.Anything).Return(nil)

	svc := NewReindexService(idx, src, ReindexConfig{BatchSize: 2, Brands: []string{"carz"}})
	progress, err := svc.StartReindex(ctx)
	require.NoError(t, err)

	assert.Equal(t, "completed", progress.Status)
	assert.Equal(t, int64(3), progress.ProcessedRecords)
	require.Len(t, progress.Errors, 1)
	assert.Contains(t, progress.Errors[0], "listing b")
	src.AssertExpectations(t)
	idx.AssertExpectations(t)
}

func TestStartReindexFailsOnDrop(t *testing.T) {
	idx := new(mockIndexer)
	idx.On("DropAllCollections", mock.Anything).Return(errors.New("typesense down"))

	svc := NewReindexService(idx, new(mockSource), ReindexConfig{})
	progress, err := svc.StartReindex(context.Background())
	require.Error(t, err)
	assert.Equal(t, "failed", progress.Status)
	assert.Equal(t, "drop_collections", progress.Phase)
}
