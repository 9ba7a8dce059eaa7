package provider

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jarcoal/httpmock"
	"github.com/ownerfi/dealflow/internal/cache"
	"github.com/ownerfi/dealflow/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func loadTestRegistry(t *testing.T) *Registry {
	t.Helper()
	os.Setenv("HEYGEN_API_KEY", "test-heygen-key")
	t.Cleanup(func() { os.Unsetenv("HEYGEN_API_KEY") })

	r := NewRegistry()
	require.NoError(t, r.LoadProvidersFromConfig("testdata/providers.yaml"))
	return r
}

// activate routes the adapter's HTTP client through httpmock.
func activate(t *testing.T, r *Registry, name string) *configurableAdapter {
	t.Helper()
	a, ok := r.byName[name].(*configurableAdapter)
	require.True(t, ok, "provider %s not loaded", name)
	httpmock.ActivateNonDefault(a.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return a
}

func TestLoadProviders(t *testing.T) {
	r := loadTestRegistry(t)

	assert.Equal(t, []string{"heygen", "late", "submagic"}, r.Names())

	stage, ok := r.StageFor("submagic")
	assert.True(t, ok)
	assert.Equal(t, workflow.StageCaptioning, stage)

	_, ok = r.StageFor("legacy-captions")
	assert.False(t, ok, "disabled providers are skipped")
	_, ok = r.StageFor("broken")
	assert.False(t, ok, "providers with an unknown stage are skipped")

	assert.Equal(t, "test-heygen-key", r.byName["heygen"].(*configurableAdapter).config.APIKey)
}

func TestCheckStatusCompleted(t *testing.T) {
	r := loadTestRegistry(t)
	activate(t, r, "heygen")

	httpmock.RegisterResponder(http.MethodGet, "https://api.heygen.com/v1/video_status.get?video_id=gen_1",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "test-heygen-key", req.Header.Get("X-Api-Key"))
			return httpmock.NewJsonResponse(200, map[string]interface{}{
				"data": map[string]interface{}{"status": "completed", "video_url": "https://cdn.example.com/v.mp4"},
			})
		})

	status, err := r.CheckStatus(context.Background(), workflow.StageGeneration, "gen_1")
	require.NoError(t, err)
	assert.Equal(t, workflow.JobStatus{State: workflow.JobCompleted, OutputRef: "https://cdn.example.com/v.mp4"}, status)
}

func TestCheckStatusOutputFallbackFields(t *testing.T) {
	r := loadTestRegistry(t)
	activate(t, r, "submagic")

	httpmock.RegisterResponder(http.MethodGet, "https://api.submagic.co/v1/projects/proj_1",
		httpmock.NewStringResponder(200, `{"status":"ready","downloadUrl":"https://submagic.example.com/out.mp4"}`))

	status, err := r.CheckStatus(context.Background(), workflow.StageCaptioning, "proj_1")
	require.NoError(t, err)
	assert.Equal(t, workflow.JobCompleted, status.State)
	assert.Equal(t, "https://submagic.example.com/out.mp4", status.OutputRef)
}

func TestCheckStatusFailedAndProcessing(t *testing.T) {
	r := loadTestRegistry(t)
	activate(t, r, "late")

	httpmock.RegisterResponder(http.MethodGet, "https://getlate.dev/api/v1/posts/post_bad",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer test-late-key", req.Header.Get("Authorization"))
			return httpmock.NewStringResponse(200, `{"post":{"status":"failed","error":{"message":"token expired"}}}`), nil
		})
	httpmock.RegisterResponder(http.MethodGet, "https://getlate.dev/api/v1/posts/post_wait",
		httpmock.NewStringResponder(200, `{"post":{"status":"scheduled"}}`))
	httpmock.RegisterResponder(http.MethodGet, "https://getlate.dev/api/v1/posts/post_odd",
		httpmock.NewStringResponder(200, `{"post":{"status":"in_review"}}`))

	status, err := r.CheckStatus(context.Background(), workflow.StagePosting, "post_bad")
	require.NoError(t, err)
	assert.Equal(t, workflow.JobStatus{State: workflow.JobFailed, Error: "token expired"}, status)

	status, err = r.CheckStatus(context.Background(), workflow.StagePosting, "post_wait")
	require.NoError(t, err)
	assert.Equal(t, workflow.JobProcessing, status.State)

	status, err = r.CheckStatus(context.Background(), workflow.StagePosting, "post_odd")
	require.NoError(t, err)
	assert.Equal(t, workflow.JobProcessing, status.State, "unknown statuses never move an item")
}

func TestCheckStatusErrors(t *testing.T) {
	r := loadTestRegistry(t)
	activate(t, r, "submagic")

	httpmock.RegisterResponder(http.MethodGet, "https://api.submagic.co/v1/projects/missing",
		httpmock.NewStringResponder(404, `{"error":"not found"}`))
	httpmock.RegisterResponder(http.MethodGet, "https://api.submagic.co/v1/projects/flaky",
		httpmock.NewStringResponder(502, `bad gateway`))

	_, err := r.CheckStatus(context.Background(), workflow.StageCaptioning, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, 1, httpmock.GetCallCountInfo()["GET https://api.submagic.co/v1/projects/missing"], "4xx is not retried")

	_, err = r.CheckStatus(context.Background(), workflow.StageCaptioning, "flaky")
	require.Error(t, err)
	assert.Equal(t, 2, httpmock.GetCallCountInfo()["GET https://api.submagic.co/v1/projects/flaky"], "5xx is retried max_retries times")

	_, err = r.CheckStatus(context.Background(), workflow.StageCaptioning, "")
	assert.Error(t, err)
}

func TestCheckStatusUnknownStage(t *testing.T) {
	_, err := NewRegistry().CheckStatus(context.Background(), workflow.StageGeneration, "gen_1")
	assert.Error(t, err)
}

type mockChecker struct{ mock.Mock }

func (m *mockChecker) CheckStatus(ctx context.Context, stage workflow.Stage, jobID string) (workflow.JobStatus, error) {
	args := m.Called(ctx, stage, jobID)
	return args.Get(0).(workflow.JobStatus), args.Error(1)
}

func TestCachedCheckerCachesTerminalStatuses(t *testing.T) {
	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	next := new(mockChecker)
	done := workflow.JobStatus{State: workflow.JobCompleted, OutputRef: "https://cdn.example.com/v.mp4"}
	next.On("CheckStatus", mock.Anything, workflow.StageGeneration, "gen_done").Return(done, nil).Once()
	next.On("CheckStatus", mock.Anything, workflow.StageGeneration, "gen_busy").
		Return(workflow.JobStatus{State: workflow.JobProcessing}, nil).Twice()

	checker := NewCachedChecker(next, c)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		status, err := checker.CheckStatus(ctx, workflow.StageGeneration, "gen_done")
		require.NoError(t, err)
		assert.Equal(t, done, status)

		status, err = checker.CheckStatus(ctx, workflow.StageGeneration, "gen_busy")
		require.NoError(t, err)
		assert.Equal(t, workflow.JobProcessing, status.State)
	}
	next.AssertExpectations(t)

	ttl := mr.TTL("job_status:generation:gen_done")
	assert.InDelta(t, float64(24*time.Hour), float64(ttl), float64(time.Minute))
	assert.False(t, mr.Exists("job_status:generation:gen_busy"))
}
