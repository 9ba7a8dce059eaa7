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
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ownerfi/dealflow/model"
	"github.com/sirupsen/logrus"
)

// Source is the read side the reindexer pages through.
type Source interface {
	ListListings(ctx context.Context, filter model.ListingFilter) ([]model.Listing, error)
	ListWorkflows(ctx context.Context, filter model.WorkflowFilter) ([]model.WorkflowRecord, error)
}

// Indexer is the write side the reindexer feeds.
type Indexer interface {
	DropAllCollections(ctx context.Context) error
	EnsureCollectionsExist(ctx context.Context) error
	IndexListing(ctx context.Context, l model.Listing) error
	IndexWorkflow(ctx context.Context, rec model.WorkflowRecord) error
}

// ReindexProgress tracks the progress of a reindex operation.
type ReindexProgress struct {
	Status           string     `json:"status"` // "in_progress", "completed", "failed"
	Phase            string     `json:"phase"`
	ProcessedRecords int64      `json:"processed_records"`
	Errors           []string   `json:"errors,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// ReindexConfig holds configuration for reindexing.
type ReindexConfig struct {
	BatchSize int
	Brands    []string
}

// ReindexService rebuilds the search collections from Postgres.
type ReindexService struct {
	index    Indexer
	source   Source
	config   ReindexConfig
	progress *ReindexProgress
	mu       sync.RWMutex
}

func NewReindexService(index Indexer, source Source, config ReindexConfig) *ReindexService {
	if config.BatchSize <= 0 || config.BatchSize > 100 {
		config.BatchSize = 100
	}
	return &ReindexService{
		index:    index,
		source:   source,
		config:   config,
		progress: &ReindexProgress{Status: "pending"},
	}
}

// GetProgress returns a copy of the current progress.
func (r *ReindexService) GetProgress() ReindexProgress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p := *r.progress
	p.Errors = append([]string(nil), r.progress.Errors...)
	return p
}

func (r *ReindexService) setPhase(phase string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.Phase = phase
}

func (r *ReindexService) processed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.ProcessedRecords++
}

func (r *ReindexService) addError(err string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.Errors = append(r.progress.Errors, err)
}

// StartReindex drops and recreates the collections, then indexes listings
// followed by the workflows of every configured brand. Per-document failures
// are recorded and do not stop the run.
func (r *ReindexService) StartReindex(ctx context.Context) (ReindexProgress, error) {
	r.mu.Lock()
	r.progress = &ReindexProgress{Status: "in_progress", Phase: "starting", StartedAt: time.Now()}
	r.mu.Unlock()

	logrus.Info("Starting reindex operation")

	steps := []struct {
		phase string
		run   func(context.Context) error
	}{
		{"drop_collections", r.index.DropAllCollections},
		{"create_collections", r.index.EnsureCollectionsExist},
		{"indexing_listings", r.indexListings},
		{"indexing_workflows", r.indexWorkflows},
	}
	for _, step := range steps {
		r.setPhase(step.phase)
		if err := step.run(ctx); err != nil {
			return r.failWithError(err, step.phase)
		}
	}

	r.mu.Lock()
	now := time.Now()
	r.progress.Status = "completed"
	r.progress.Phase = "done"
	r.progress.CompletedAt = &now
	r.mu.Unlock()

	p := r.GetProgress()
	logrus.WithFields(logrus.Fields{
		"processed_records": p.ProcessedRecords,
		"errors":            len(p.Errors),
		"duration":          time.Since(p.StartedAt).String(),
	}).Info("Reindex operation completed")
	return p, nil
}

func (r *ReindexService) failWithError(err error, phase string) (ReindexProgress, error) {
	r.mu.Lock()
	now := time.Now()
	r.progress.Status = "failed"
	r.progress.Phase = phase
	r.progress.CompletedAt = &now
	r.progress.Errors = append(r.progress.Errors, err.Error())
	r.mu.Unlock()

	logrus.WithError(err).WithField("phase", phase).Error("Reindex operation failed")
	return r.GetProgress(), err
}

func (r *ReindexService) indexListings(ctx context.Context) error {
	offset := 0
	for {
		listings, err := r.source.ListListings(ctx, model.ListingFilter{Limit: r.config.BatchSize, Offset: offset})
		if err != nil {
			return err
		}
		for _, l := range listings {
			if err := r.index.IndexListing(ctx, l); err != nil {
				r.addError("listing " + l.ListingID + ": " + err.Error())
				continue
			}
			r.processed()
		}
		if len(listings) < r.config.BatchSize {
			return nil
		}
		offset += len(listings)
	}
}

func (r *ReindexService) indexWorkflows(ctx context.Context) error {
	for _, brand := range r.config.Brands {
		offset := 0
		for {
			recs, err := r.source.ListWorkflows(ctx, model.WorkflowFilter{Brand: brand, Limit: r.config.BatchSize, Offset: offset})
			if err != nil {
				return fmt.Errorf("brand %s: %w", brand, err)
			}
			for _, rec := range recs {
				if err := r.index.IndexWorkflow(ctx, rec); err != nil {
					r.addError("workflow " + rec.Brand + "/" + rec.WorkflowID + ": " + err.Error())
					continue
				}
				r.processed()
			}
			if len(recs) < r.config.BatchSize {
				break
			}
			offset += len(recs)
		}
	}
	return nil
}

// DropCollection deletes a collection from Typesense.
func (t *TypesenseClient) DropCollection(ctx context.Context, collectionName string) error {
	_, err := t.Client.Collection(collectionName).Delete(ctx)
	if err != nil && !strings.Contains(err.Error(), "not found") && !strings.Contains(err.Error(), "Not Found") {
		return err
	}
	return nil
}

// DropAllCollections drops all known collections from Typesense.
func (t *TypesenseClient) DropAllCollections(ctx context.Context) error {
	for _, c := range []string{CollectionListings, CollectionWorkflows} {
		logrus.WithField("collection", c).Debug("Dropping collection")
		if err := t.DropCollection(ctx, c); err != nil {
			return err
		}
	}
	return nil
}
