package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ownerfi/dealflow/workflow"
	"github.com/sirupsen/logrus"
)

// Checker looks up one job at one external service.
type Checker interface {
	Name() string
	Stage() workflow.Stage
	CheckStatus(ctx context.Context, jobID string) (workflow.JobStatus, error)
}

type configurableAdapter struct {
	config     ProviderConfig
	httpClient *http.Client
}

func newConfigurableAdapter(config ProviderConfig) Checker {
	return &configurableAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.timeout(),
		},
	}
}

func (p *configurableAdapter) Name() string {
	return p.config.Name
}

func (p *configurableAdapter) Stage() workflow.Stage {
	return p.config.Stage
}

// CheckStatus fetches the job status. Transport errors and 5xx responses are
// retried with exponential backoff; 4xx responses are not.
func (p *configurableAdapter) CheckStatus(ctx context.Context, jobID string) (workflow.JobStatus, error) {
	if jobID == "" {
		return workflow.JobStatus{}, fmt.Errorf("%s: empty job id", p.config.Name)
	}
	endpoint := strings.ReplaceAll(p.config.Endpoints.GetStatus, "{job_id}", url.PathEscape(jobID))
	target := strings.TrimRight(p.config.BaseURL, "/") + endpoint

	var data map[string]interface{}
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		p.addAuth(req)
		req.Header.Set("Accept", "application/json")

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err = p.parseResponse(resp)
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(p.backOff(), ctx)); err != nil {
		return workflow.JobStatus{}, fmt.Errorf("%s: %w", p.config.Name, err)
	}
	return p.mapResponse(data), nil
}

func (p *configurableAdapter) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = p.config.timeout()
	retries := p.config.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return backoff.WithMaxRetries(b, uint64(retries))
}

func (p *configurableAdapter) addAuth(req *http.Request) {
	switch strings.ToLower(p.config.AuthType) {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	case "basic":
		auth := base64.StdEncoding.EncodeToString([]byte(p.config.APIKey + ":" + p.config.APISecret))
		req.Header.Set("Authorization", "Basic "+auth)
	case "header":
		header := p.config.AuthHeader
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, p.config.APIKey)
	default:
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}
}

func (p *configurableAdapter) parseResponse(resp *http.Response) (map[string]interface{}, error) {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("provider returned error status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	if resp.StatusCode >= 400 {
		return nil, backoff.Permanent(fmt.Errorf("provider returned error status %d: %s", resp.StatusCode, string(bodyBytes)))
	}

	var data map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &data); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to parse response JSON: %w", err))
	}
	return data, nil
}

func (p *configurableAdapter) mapResponse(data map[string]interface{}) workflow.JobStatus {
	mapping := p.config.ResponseMapping
	statusStr, _ := getNestedValue(data, mapping.StatusField).(string)

	status := workflow.JobStatus{State: p.mapStatus(statusStr)}
	switch status.State {
	case workflow.JobCompleted:
		for _, field := range mapping.OutputFields {
			if ref, _ := getNestedValue(data, field).(string); ref != "" {
				status.OutputRef = ref
				break
			}
		}
	case workflow.JobFailed:
		if mapping.ErrorField != "" {
			switch v := getNestedValue(data, mapping.ErrorField).(type) {
			case string:
				status.Error = v
			case map[string]interface{}:
				if msg, ok := v["message"].(string); ok {
					status.Error = msg
				}
			}
		}
		if status.Error == "" {
			status.Error = fmt.Sprintf("%s reported status %q", p.config.Name, statusStr)
		}
	}
	return status
}

func getNestedValue(data map[string]interface{}, path string) interface{} {
	parts := strings.Split(path, ".")
	current := interface{}(data)

	for _, part := range parts {
		if m, ok := current.(map[string]interface{}); ok {
			current = m[part]
		} else {
			return nil
		}
	}

	return current
}

// mapStatus maps a provider status onto a job state. Unknown values count as
// processing so an unfamiliar status never fails or advances an item.
func (p *configurableAdapter) mapStatus(status string) workflow.JobState {
	statusLower := strings.ToLower(status)

	for _, v := range p.config.ResponseMapping.CompletedValues {
		if strings.ToLower(v) == statusLower {
			return workflow.JobCompleted
		}
	}

	for _, v := range p.config.ResponseMapping.FailedValues {
		if strings.ToLower(v) == statusLower {
			return workflow.JobFailed
		}
	}

	known := false
	for _, v := range p.config.ResponseMapping.ProcessingValues {
		if strings.ToLower(v) == statusLower {
			known = true
			break
		}
	}
	if !known {
		logrus.Warnf("%s returned unmapped status %q, treating it as processing", p.config.Name, status)
	}
	return workflow.JobProcessing
}
