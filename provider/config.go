package provider

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ownerfi/dealflow/workflow"
	"gopkg.in/yaml.v3"
)

type ProviderConfig struct {
	Name            string          `yaml:"name"`
	Stage           workflow.Stage  `yaml:"stage"`
	Enabled         bool            `yaml:"enabled"`
	APIKey          string          `yaml:"api_key"`
	APISecret       string          `yaml:"api_secret,omitempty"`
	AuthType        string          `yaml:"auth_type"`
	AuthHeader      string          `yaml:"auth_header"`
	BaseURL         string          `yaml:"base_url"`
	Endpoints       EndpointsConfig `yaml:"endpoints"`
	TimeoutSec      int             `yaml:"timeout_sec,omitempty"`
	MaxRetries      int             `yaml:"max_retries,omitempty"`
	ResponseMapping ResponseMapping `yaml:"response_mapping"`
}

type EndpointsConfig struct {
	GetStatus string `yaml:"get_status"`
}

// ResponseMapping tells the adapter where a provider keeps the job status,
// output reference and error message in its status response. Field paths are
// dot separated; the first non-empty output field wins.
type ResponseMapping struct {
	StatusField      string   `yaml:"status_field"`
	OutputFields     []string `yaml:"output_fields"`
	ErrorField       string   `yaml:"error_field,omitempty"`
	CompletedValues  []string `yaml:"completed_values"`
	FailedValues     []string `yaml:"failed_values"`
	ProcessingValues []string `yaml:"processing_values"`
}

type ProvidersConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
}

func (p ProviderConfig) timeout() time.Duration {
	if p.TimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.TimeoutSec) * time.Second
}

func LoadConfig(filepath string) (*ProvidersConfig, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return LoadConfigFromBytes(data)
}

func LoadConfigFromBytes(data []byte) (*ProvidersConfig, error) {
	var config ProvidersConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

func expandEnvVar(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		envName := value[2 : len(value)-1]
		if envValue := os.Getenv(envName); envValue != "" {
			return envValue
		}
	}
	return value
}

func validateProviderConfig(config ProviderConfig) error {
	if config.Name == "" {
		return fmt.Errorf("provider name is required")
	}
	if _, err := workflow.ParseStage(string(config.Stage)); err != nil {
		return fmt.Errorf("provider %s: %w", config.Name, err)
	}
	if config.APIKey == "" {
		return fmt.Errorf("api_key is required")
	}
	if config.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if config.Endpoints.GetStatus == "" {
		return fmt.Errorf("endpoints.get_status is required")
	}
	if config.ResponseMapping.StatusField == "" {
		return fmt.Errorf("response_mapping.status_field is required")
	}
	if len(config.ResponseMapping.OutputFields) == 0 {
		return fmt.Errorf("response_mapping.output_fields is required")
	}
	return nil
}
