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

// Package dealflow ties the listing classifier and the content workflow
// state machine to their stores, queues and external services.
package dealflow

import (
	"context"
	"embed"
	"errors"

	"github.com/ownerfi/dealflow/classify"
	"github.com/ownerfi/dealflow/config"
	"github.com/ownerfi/dealflow/database"
	"github.com/ownerfi/dealflow/internal/cache"
	"github.com/ownerfi/dealflow/internal/clock"
	"github.com/ownerfi/dealflow/internal/hooks"
	"github.com/ownerfi/dealflow/internal/idempotency"
	"github.com/ownerfi/dealflow/internal/ratelimit"
	redis_db "github.com/ownerfi/dealflow/internal/redis-db"
	"github.com/ownerfi/dealflow/internal/search"
	"github.com/ownerfi/dealflow/model"
	"github.com/ownerfi/dealflow/provider"
	"github.com/ownerfi/dealflow/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/typesense/typesense-go/typesense/api"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

// ErrSearchDisabled is returned by search operations when no Typesense
// server is configured.
var ErrSearchDisabled = errors.New("search is not configured")

// StageResolver maps an external service name to the stage it runs.
type StageResolver interface {
	StageFor(service string) (workflow.Stage, bool)
}

// Searcher indexes and queries listings and workflows.
type Searcher interface {
	IndexListing(ctx context.Context, l model.Listing) error
	IndexWorkflow(ctx context.Context, rec model.WorkflowRecord) error
	Search(ctx context.Context, collection string, params *api.SearchCollectionParams) (*api.SearchResult, error)
}

// Dependencies are the collaborators of a Dealflow. Search may be nil.
type Dependencies struct {
	Datasource  database.IDataSource
	Classifier  *classify.Classifier
	Queue       *Queue
	Redis       redis.UniversalClient
	Checker     workflow.StatusChecker
	Stages      StageResolver
	Limiter     workflow.Limiter
	Idempotency *idempotency.Store
	Search      Searcher
	Hooks       hooks.HookManager
	Clock       clock.Clock
}

// Dealflow is the application service behind the API and the workers.
type Dealflow struct {
	datasource  database.IDataSource
	classifier  *classify.Classifier
	queue       *Queue
	redis       redis.UniversalClient
	checker     workflow.StatusChecker
	stages      StageResolver
	limiter     workflow.Limiter
	idempotency *idempotency.Store
	search      Searcher
	hooks       hooks.HookManager
	clock       clock.Clock
	config      *config.Configuration
}

// NewDealflow wires a Dealflow from the loaded configuration.
func NewDealflow(db database.IDataSource) (*Dealflow, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	redisClient, err := redis_db.NewRedisClient(redis_db.SplitAddresses(cfg.Redis.Dns), cfg.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	client := redisClient.Client()

	tables := classify.DefaultTables()
	if cfg.Classification.KeywordsFile != "" {
		tables, err = classify.LoadTables(cfg.Classification.KeywordsFile)
		if err != nil {
			return nil, err
		}
	}

	registry := provider.NewRegistry()
	if cfg.ProvidersFile != "" {
		if err := registry.LoadProvidersFromConfig(cfg.ProvidersFile); err != nil {
			return nil, err
		}
	}

	queue, err := NewQueue(cfg)
	if err != nil {
		return nil, err
	}

	var searcher Searcher
	if cfg.TypeSense.Dns != "" {
		searcher = search.NewTypesenseClient(cfg.TypeSense.Key, []string{cfg.TypeSense.Dns})
	}

	return New(cfg, Dependencies{
		Datasource:  db,
		Classifier:  classify.New(tables, cfg.Classification.DiscountRatio),
		Queue:       queue,
		Redis:       client,
		Checker:     provider.NewCachedChecker(registry, cache.NewWithClient(client)),
		Stages:      registry,
		Limiter:     ratelimit.New(client, clock.Real{}, cfg.ServiceLimits.Window(), cfg.ServiceLimit),
		Idempotency: idempotency.New(client, idempotency.DefaultTTL),
		Search:      searcher,
		Hooks:       hooks.NewHookManager(client),
		Clock:       clock.Real{},
	}), nil
}

// New builds a Dealflow from explicit dependencies.
func New(cfg *config.Configuration, deps Dependencies) *Dealflow {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Classifier == nil {
		deps.Classifier = classify.Default()
	}
	return &Dealflow{
		datasource:  deps.Datasource,
		classifier:  deps.Classifier,
		queue:       deps.Queue,
		redis:       deps.Redis,
		checker:     deps.Checker,
		stages:      deps.Stages,
		limiter:     deps.Limiter,
		idempotency: deps.Idempotency,
		search:      deps.Search,
		hooks:       deps.Hooks,
		clock:       deps.Clock,
		config:      cfg,
	}
}

// Classifier exposes the classifier so its tables can be hot reloaded.
func (d *Dealflow) Classifier() *classify.Classifier {
	return d.classifier
}

// Hooks returns the stage trigger registry.
func (d *Dealflow) Hooks() hooks.HookManager {
	return d.hooks
}

// Redis returns the shared redis client.
func (d *Dealflow) Redis() redis.UniversalClient {
	return d.redis
}

// Datasource exposes the underlying store.
func (d *Dealflow) Datasource() database.IDataSource {
	return d.datasource
}

func (d *Dealflow) thresholds() workflow.Thresholds {
	r := d.config.Recovery
	return workflow.Thresholds{
		MinAge:          r.MinAge(),
		RetryAge:        r.RetryAge(),
		MaxAge:          r.MaxAge(),
		MissingJobIDAge: r.MissingJobIDAge(),
	}
}
