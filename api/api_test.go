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

package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/gin-gonic/gin"
	"github.com/ownerfi/dealflow"
	"github.com/ownerfi/dealflow/config"
	"github.com/ownerfi/dealflow/database"
	"github.com/ownerfi/dealflow/database/mocks"
	"github.com/ownerfi/dealflow/internal/clock"
	"github.com/ownerfi/dealflow/internal/hooks"
	"github.com/ownerfi/dealflow/internal/idempotency"
	"github.com/ownerfi/dealflow/model"
	"github.com/ownerfi/dealflow/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wacul/ptr"
)

var now = time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)

type TestRequest struct {
	Payload  io.Reader
	Router   *gin.Engine
	Response interface{}
	Method   string
	Route    string
	Header   map[string]string
}

func SetUpTestRequest(s TestRequest) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(s.Method, s.Route, s.Payload)
	for key, value := range s.Header {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	s.Router.ServeHTTP(resp, req)

	if s.Response != nil {
		if err := json.NewDecoder(bytes.NewReader(resp.Body.Bytes())).Decode(s.Response); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

type stageMap map[string]workflow.Stage

func (s stageMap) StageFor(service string) (workflow.Stage, bool) {
	st, ok := s[service]
	return st, ok
}

func setupRouter(t *testing.T) (*gin.Engine, *mocks.MockDataSource, *miniredis.Miniredis) {
	t.Helper()
	cfg := &config.Configuration{
		Recovery: config.RecoveryConfig{
			MinAgeSec: 300, RetryAgeSec: 3600, MaxAgeSec: 86400, MissingJobIDAgeSec: 1800,
			BatchSize: 50, MaxRetryAttempts: 3, LockTTLSec: 60,
			Brands: []string{"carz", "ownerfi"},
		},
	}
	config.MockConfig(cfg)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ds := new(mocks.MockDataSource)
	d := dealflow.New(cfg, dealflow.Dependencies{
		Datasource:  ds,
		Redis:       client,
		Stages:      stageMap{"heygen": workflow.StageGeneration, "submagic": workflow.StageCaptioning},
		Idempotency: idempotency.New(client, 0),
		Hooks:       hooks.NewHookManager(client),
		Clock:       clock.NewFake(now),
	})
	a := NewAPI(d)
	require.NotNil(t, a)
	return a.Router(), ds, mr
}

func payload(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func TestClassifyListing(t *testing.T) {
	router, _, _ := setupRouter(t)
	var result map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{
		Router:   router,
		Method:   http.MethodPost,
		Route:    "/listings/classify",
		Payload:  payload(t, map[string]interface{}{"description": "Seller will consider owner financing. Fixer upper.", "price": 100000, "estimate": 150000}),
		Response: &result,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, true, result["is_owner_finance"])
	assert.Equal(t, true, result["is_cash_deal"])
	assert.Equal(t, true, result["needs_work"])
	assert.Equal(t, true, result["should_save"])
}

func TestCreateListing(t *testing.T) {
	router, ds, _ := setupRouter(t)
	ds.On("UpsertListing", mock.Anything, mock.AnythingOfType("*model.Listing")).Return(&model.Listing{ListingID: "zillow_1"}, nil)

	resp, err := SetUpTestRequest(TestRequest{
		Router: router,
		Method: http.MethodPost,
		Route:  "/listings",
		Payload: payload(t, map[string]interface{}{
			"listing_id":  "zillow_1",
			"address":     gofakeit.Street(),
			"city":        gofakeit.City(),
			"state":       "tx",
			"price":       120000,
			"estimate":    200000,
			"description": "Owner will carry. Bring offers.",
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Code)

	resp, err = SetUpTestRequest(TestRequest{
		Router:  router,
		Method:  http.MethodPost,
		Route:   "/listings",
		Payload: payload(t, map[string]interface{}{"listing_id": "zillow_2", "price": 300000, "estimate": 310000, "description": "Beautiful home"}),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)

	resp, err = SetUpTestRequest(TestRequest{
		Router:  router,
		Method:  http.MethodPost,
		Route:   "/listings",
		Payload: payload(t, map[string]interface{}{"price": 10}),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	ds.AssertNumberOfCalls(t, "UpsertListing", 1)
}

func TestGetListingNotFound(t *testing.T) {
	router, ds, _ := setupRouter(t)
	ds.On("GetListing", mock.Anything, "missing").Return(nil, database.ErrNotFound)

	resp, err := SetUpTestRequest(TestRequest{Router: router, Method: http.MethodGet, Route: "/listings/missing"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestGetAllListingsRejectsBadQuery(t *testing.T) {
	router, _, _ := setupRouter(t)
	resp, err := SetUpTestRequest(TestRequest{Router: router, Method: http.MethodGet, Route: "/listings?deal_type=flip"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp, err = SetUpTestRequest(TestRequest{Router: router, Method: http.MethodGet, Route: "/listings?limit=-4"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestEnqueueWorkflow(t *testing.T) {
	router, ds, _ := setupRouter(t)
	ds.On("CreateWorkflow", mock.Anything, mock.AnythingOfType("model.WorkflowRecord")).
		Return(model.WorkflowRecord{WorkflowID: "wf_1", Brand: "carz", Status: "pending", SourceArticleID: ptr.String("art_1"), CreatedAt: now}, nil)

	var rec model.WorkflowRecord
	resp, err := SetUpTestRequest(TestRequest{
		Router:   router,
		Method:   http.MethodPost,
		Route:    "/workflows",
		Payload:  payload(t, map[string]string{"brand": "carz", "source_article_id": "art_1"}),
		Response: &rec,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "wf_1", rec.WorkflowID)
	assert.Equal(t, "pending", rec.Status)

	resp, err = SetUpTestRequest(TestRequest{
		Router:  router,
		Method:  http.MethodPost,
		Route:   "/workflows",
		Payload: payload(t, map[string]string{"brand": "unknown", "source_article_id": "art_1"}),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestStartGenerationConflict(t *testing.T) {
	router, ds, _ := setupRouter(t)
	ds.On("GetWorkflow", mock.Anything, "carz", "wf_1").Return(&model.WorkflowRecord{
		WorkflowID: "wf_1", Brand: "carz", Status: "stage1_processing",
		ExternalGenerationID: ptr.String("vid_1"), CreatedAt: now,
	}, nil)

	resp, err := SetUpTestRequest(TestRequest{
		Router:  router,
		Method:  http.MethodPost,
		Route:   "/workflows/carz/wf_1/start",
		Payload: payload(t, map[string]string{"job_id": "vid_2"}),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestStartGeneration(t *testing.T) {
	router, ds, _ := setupRouter(t)
	ds.On("GetWorkflow", mock.Anything, "carz", "wf_1").Return(&model.WorkflowRecord{WorkflowID: "wf_1", Brand: "carz", Status: "pending", CreatedAt: now}, nil)
	ds.On("CompareAndSwapWorkflow", mock.Anything, "pending", mock.AnythingOfType("model.WorkflowRecord")).Return(true, nil)

	var rec model.WorkflowRecord
	resp, err := SetUpTestRequest(TestRequest{
		Router:   router,
		Method:   http.MethodPost,
		Route:    "/workflows/carz/wf_1/start",
		Payload:  payload(t, map[string]string{"job_id": "vid_1"}),
		Response: &rec,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "stage1_processing", rec.Status)
	assert.Equal(t, "vid_1", *rec.ExternalGenerationID)
}

func TestHandleCallbackDuplicate(t *testing.T) {
	router, ds, _ := setupRouter(t)
	ds.On("FindWorkflowByJobID", mock.Anything, "carz", "vid_1").Return(&model.WorkflowRecord{
		WorkflowID: "wf_1", Brand: "carz", Status: "stage1_processing",
		ExternalGenerationID: ptr.String("vid_1"), Version: 1, CreatedAt: now, StatusChangedAt: now,
	}, nil)
	ds.On("CompareAndSwapWorkflow", mock.Anything, "stage1_processing", mock.AnythingOfType("model.WorkflowRecord")).Return(true, nil)

	body := map[string]string{"brand": "carz", "job_id": "vid_1", "status": "completed", "output_url": "https://cdn.example.com/v1.mp4"}
	var first map[string]interface{}
	resp, err := SetUpTestRequest(TestRequest{Router: router, Method: http.MethodPost, Route: "/webhooks/heygen", Payload: payload(t, body), Response: &first})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "advance", first["action"])
	assert.Equal(t, false, first["duplicate"])

	var second map[string]interface{}
	resp, err = SetUpTestRequest(TestRequest{Router: router, Method: http.MethodPost, Route: "/webhooks/heygen", Payload: payload(t, body), Response: &second})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, true, second["duplicate"])
	ds.AssertNumberOfCalls(t, "CompareAndSwapWorkflow", 1)
}

func TestHandleCallbackUnknownService(t *testing.T) {
	router, _, _ := setupRouter(t)
	resp, err := SetUpTestRequest(TestRequest{
		Router:  router,
		Method:  http.MethodPost,
		Route:   "/webhooks/tiktok",
		Payload: payload(t, map[string]string{"brand": "carz", "job_id": "x", "status": "completed"}),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestRecoverStuckWorkflowsLeaseHeld(t *testing.T) {
	router, _, mr := setupRouter(t)
	require.NoError(t, mr.Set("dealflow:lease:recover_stuck_workflows", "other"))

	resp, err := SetUpTestRequest(TestRequest{Router: router, Method: http.MethodPost, Route: "/admin/recover"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestRetryFailedWorkflows(t *testing.T) {
	router, ds, _ := setupRouter(t)
	ds.On("ListWorkflows", mock.Anything, mock.AnythingOfType("model.WorkflowFilter")).Return([]model.WorkflowRecord{}, nil)

	var report workflow.Report
	resp, err := SetUpTestRequest(TestRequest{
		Router:   router,
		Method:   http.MethodPost,
		Route:    "/admin/retry",
		Payload:  payload(t, map[string][]string{"brands": {"carz"}}),
		Response: &report,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 0, report.Retried)
	ds.AssertNumberOfCalls(t, "ListWorkflows", 1)
}

func TestHooksCRUD(t *testing.T) {
	router, _, _ := setupRouter(t)

	var created hooks.Hook
	resp, err := SetUpTestRequest(TestRequest{
		Router:   router,
		Method:   http.MethodPost,
		Route:    "/hooks",
		Payload:  payload(t, map[string]interface{}{"name": "captioner", "url": "https://captions.example.com/start", "status": "stage2_processing", "active": true}),
		Response: &created,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Code)
	require.NotEmpty(t, created.ID)

	var list []hooks.Hook
	resp, err = SetUpTestRequest(TestRequest{Router: router, Method: http.MethodGet, Route: "/hooks?status=stage2_processing", Response: &list})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, list, 1)

	resp, err = SetUpTestRequest(TestRequest{Router: router, Method: http.MethodGet, Route: "/hooks?status=bogus"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp, err = SetUpTestRequest(TestRequest{Router: router, Method: http.MethodDelete, Route: "/hooks/" + created.ID})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)

	resp, err = SetUpTestRequest(TestRequest{Router: router, Method: http.MethodGet, Route: "/hooks/" + created.ID})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSearchDisabled(t *testing.T) {
	router, _, _ := setupRouter(t)
	resp, err := SetUpTestRequest(TestRequest{
		Router:  router,
		Method:  http.MethodPost,
		Route:   "/search/listings",
		Payload: payload(t, map[string]string{"q": "austin"}),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestReindexWithoutSearch(t *testing.T) {
	router, _, _ := setupRouter(t)
	resp, err := SetUpTestRequest(TestRequest{Router: router, Method: http.MethodPost, Route: "/admin/reindex"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestReindexProgressBeforeAnyRun(t *testing.T) {
	router, _, _ := setupRouter(t)

	resp, err := SetUpTestRequest(TestRequest{Router: router, Method: http.MethodPost, Route: "/admin/reindex"})
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)

	resp, err = SetUpTestRequest(TestRequest{Router: router, Method: http.MethodGet, Route: "/admin/reindex"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
