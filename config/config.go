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

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5001"

	DEFAULT_DISCOUNT_RATIO = 0.8
)

var ConfigStore atomic.Value

// DefaultBrands are the content brands whose workflow queues are reconciled when
// the configuration does not name any.
var DefaultBrands = []string{"carz", "ownerfi", "vassdistro", "benefit", "abdullah", "personal", "property", "property-spanish", "podcast"}

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"DEALFLOW_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"DEALFLOW_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"DEALFLOW_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"DEALFLOW_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"DEALFLOW_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"DEALFLOW_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns             string        `json:"dns" envconfig:"DEALFLOW_DATA_SOURCE_DNS"`
	MaxOpenConns    int           `json:"max_open_conns" envconfig:"DEALFLOW_DATA_SOURCE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" envconfig:"DEALFLOW_DATA_SOURCE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" envconfig:"DEALFLOW_DATA_SOURCE_CONN_MAX_LIFETIME"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" envconfig:"DEALFLOW_DATA_SOURCE_CONN_MAX_IDLE_TIME"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"DEALFLOW_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"DEALFLOW_REDIS_SKIP_TLS_VERIFY"`
}

type TypeSenseConfig struct {
	Dns string `json:"dns" envconfig:"DEALFLOW_TYPESENSE_DNS"`
	Key string `json:"key" envconfig:"DEALFLOW_TYPESENSE_KEY"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"DEALFLOW_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"DEALFLOW_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"DEALFLOW_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

// ClassificationConfig controls the listing classifier.
type ClassificationConfig struct {
	DiscountRatio float64 `json:"discount_ratio" envconfig:"DEALFLOW_DISCOUNT_RATIO"`
	KeywordsFile  string  `json:"keywords_file" envconfig:"DEALFLOW_KEYWORDS_FILE"`
	WatchKeywords bool    `json:"watch_keywords" envconfig:"DEALFLOW_WATCH_KEYWORDS"`
}

// RecoveryConfig holds the stuck workflow thresholds. Every script that used to
// carry its own copy of these numbers reads them from here.
type RecoveryConfig struct {
	MinAgeSec          int      `json:"min_age_sec" envconfig:"DEALFLOW_RECOVERY_MIN_AGE_SEC"`
	RetryAgeSec        int      `json:"retry_age_sec" envconfig:"DEALFLOW_RECOVERY_RETRY_AGE_SEC"`
	MaxAgeSec          int      `json:"max_age_sec" envconfig:"DEALFLOW_RECOVERY_MAX_AGE_SEC"`
	MissingJobIDAgeSec int      `json:"missing_job_id_age_sec" envconfig:"DEALFLOW_RECOVERY_MISSING_JOB_ID_AGE_SEC"`
	CheckDelayMs       *int     `json:"check_delay_ms" envconfig:"DEALFLOW_RECOVERY_CHECK_DELAY_MS"`
	BatchSize          int      `json:"batch_size" envconfig:"DEALFLOW_RECOVERY_BATCH_SIZE"`
	Schedule           string   `json:"schedule" envconfig:"DEALFLOW_RECOVERY_SCHEDULE"`
	RetrySchedule      string   `json:"retry_schedule" envconfig:"DEALFLOW_RECOVERY_RETRY_SCHEDULE"`
	MaxRetryAttempts   int      `json:"max_retry_attempts" envconfig:"DEALFLOW_RECOVERY_MAX_RETRY_ATTEMPTS"`
	LockTTLSec         int      `json:"lock_ttl_sec" envconfig:"DEALFLOW_RECOVERY_LOCK_TTL_SEC"`
	Brands             []string `json:"brands" envconfig:"DEALFLOW_RECOVERY_BRANDS"`
}

func (r RecoveryConfig) MinAge() time.Duration   { return time.Duration(r.MinAgeSec) * time.Second }
func (r RecoveryConfig) RetryAge() time.Duration { return time.Duration(r.RetryAgeSec) * time.Second }
func (r RecoveryConfig) MaxAge() time.Duration   { return time.Duration(r.MaxAgeSec) * time.Second }
func (r RecoveryConfig) LockTTL() time.Duration  { return time.Duration(r.LockTTLSec) * time.Second }

func (r RecoveryConfig) MissingJobIDAge() time.Duration {
	return time.Duration(r.MissingJobIDAgeSec) * time.Second
}

// CheckDelay is the pause between two consecutive external status checks.
func (r RecoveryConfig) CheckDelay() time.Duration {
	if r.CheckDelayMs == nil {
		return 0
	}
	return time.Duration(*r.CheckDelayMs) * time.Millisecond
}

// ServiceLimitConfig caps how many calls a brand may make to an external service per window.
type ServiceLimitConfig struct {
	WindowSec int                       `json:"window_sec" envconfig:"DEALFLOW_SERVICE_LIMIT_WINDOW_SEC"`
	Limits    map[string]map[string]int `json:"limits" ignored:"true"`
	Default   int                       `json:"default" envconfig:"DEALFLOW_SERVICE_LIMIT_DEFAULT"`
}

func (s ServiceLimitConfig) Window() time.Duration { return time.Duration(s.WindowSec) * time.Second }

type QueueConfig struct {
	StageQueue      string `json:"stage_queue" envconfig:"DEALFLOW_QUEUE_STAGE"`
	IndexQueue      string `json:"index_queue" envconfig:"DEALFLOW_QUEUE_INDEX"`
	MaxRetryAttempt int    `json:"max_retry_attempt" envconfig:"DEALFLOW_QUEUE_MAX_RETRY"`
	MonitoringPort  string `json:"monitoring_port" envconfig:"DEALFLOW_QUEUE_MONITORING_PORT"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"DEALFLOW_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	ProjectName     string               `json:"project_name" envconfig:"DEALFLOW_PROJECT_NAME"`
	EnableTelemetry bool                 `json:"enable_telemetry" envconfig:"DEALFLOW_ENABLE_TELEMETRY"`
	Server          ServerConfig         `json:"server"`
	DataSource      DataSourceConfig     `json:"data_source"`
	Redis           RedisConfig          `json:"redis"`
	TypeSense       TypeSenseConfig      `json:"typesense"`
	RateLimit       RateLimitConfig      `json:"rate_limit"`
	Classification  ClassificationConfig `json:"classification"`
	Recovery        RecoveryConfig       `json:"recovery"`
	ServiceLimits   ServiceLimitConfig   `json:"service_limits"`
	ProvidersFile   string               `json:"providers_file" envconfig:"DEALFLOW_PROVIDERS_FILE"`
	Queue           QueueConfig          `json:"queue"`
	Notification    Notification         `json:"notification"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// .env is optional; a missing file is not an error
	_ = godotenv.Load()

	// override config from environment variables
	err = envconfig.Process("dealflow", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return nil
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called dealflow.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		cnf.ProjectName = "Dealflow"
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	if cnf.DataSource.MaxOpenConns <= 0 {
		cnf.DataSource.MaxOpenConns = 25
	}
	if cnf.DataSource.MaxIdleConns <= 0 {
		cnf.DataSource.MaxIdleConns = 10
	}
	if cnf.DataSource.ConnMaxLifetime <= 0 {
		cnf.DataSource.ConnMaxLifetime = 30 * time.Minute
	}
	if cnf.DataSource.ConnMaxIdleTime <= 0 {
		cnf.DataSource.ConnMaxIdleTime = 5 * time.Minute
	}

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	cnf.applyClassificationDefaults()
	cnf.applyQueueDefaults()
	cnf.applyServiceLimitDefaults()
	return cnf.applyRecoveryDefaults()
}

func (cnf *Configuration) applyClassificationDefaults() {
	if cnf.Classification.DiscountRatio <= 0 || cnf.Classification.DiscountRatio >= 1 {
		cnf.Classification.DiscountRatio = DEFAULT_DISCOUNT_RATIO
	}
}

func (cnf *Configuration) applyQueueDefaults() {
	if cnf.Queue.StageQueue == "" {
		cnf.Queue.StageQueue = "workflow_stages"
	}
	if cnf.Queue.IndexQueue == "" {
		cnf.Queue.IndexQueue = "listing_index"
	}
	if cnf.Queue.MaxRetryAttempt <= 0 {
		cnf.Queue.MaxRetryAttempt = 5
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5004"
	}
}

func (cnf *Configuration) applyServiceLimitDefaults() {
	if cnf.ServiceLimits.WindowSec <= 0 {
		cnf.ServiceLimits.WindowSec = 3600
	}
	if cnf.ServiceLimits.Default <= 0 {
		cnf.ServiceLimits.Default = 100
	}
}

// applyRecoveryDefaults fills the staleness thresholds and rejects an ordering
// that would let an item be force-failed before it is even eligible for a retry.
func (cnf *Configuration) applyRecoveryDefaults() error {
	r := &cnf.Recovery
	if r.MinAgeSec <= 0 {
		r.MinAgeSec = 5 * 60
	}
	if r.RetryAgeSec <= 0 {
		r.RetryAgeSec = 60 * 60
	}
	if r.MaxAgeSec <= 0 {
		r.MaxAgeSec = 24 * 60 * 60
	}
	if r.MissingJobIDAgeSec <= 0 {
		r.MissingJobIDAgeSec = 30 * 60
	}
	if r.CheckDelayMs == nil {
		defaultDelay := 2000
		r.CheckDelayMs = &defaultDelay
	}
	if r.BatchSize <= 0 {
		r.BatchSize = 50
	}
	if r.Schedule == "" {
		r.Schedule = "@every 30m"
	}
	if r.RetrySchedule == "" {
		r.RetrySchedule = "@every 1h"
	}
	if r.MaxRetryAttempts <= 0 {
		r.MaxRetryAttempts = 3
	}
	if r.LockTTLSec <= 0 {
		r.LockTTLSec = 10 * 60
	}
	if len(r.Brands) == 0 {
		r.Brands = append([]string(nil), DefaultBrands...)
	}

	if !(r.MinAgeSec < r.RetryAgeSec && r.RetryAgeSec < r.MaxAgeSec) {
		return fmt.Errorf("recovery thresholds must satisfy min_age < retry_age < max_age (got %ds, %ds, %ds)", r.MinAgeSec, r.RetryAgeSec, r.MaxAgeSec)
	}
	return nil
}

// ServiceLimit returns the per-window call cap for a brand on a service.
func (cnf *Configuration) ServiceLimit(brand, service string) int {
	if perService, ok := cnf.ServiceLimits.Limits[brand]; ok {
		if limit, ok := perService[service]; ok && limit > 0 {
			return limit
		}
	}
	return cnf.ServiceLimits.Default
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
