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
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/ownerfi/dealflow"
	"github.com/ownerfi/dealflow/internal/search"
	"github.com/sirupsen/logrus"
)

const defaultReindexBatch = 100

// ReindexRequest is the optional body of POST /admin/reindex.
type ReindexRequest struct {
	BatchSize int `json:"batch_size"`
}

// reindexJob tracks the one reindex a server runs at a time.
type reindexJob struct {
	mu      sync.Mutex
	current *search.ReindexService
}

// start launches svc unless a previous run is still going. It returns the
// running service when it refuses.
func (j *reindexJob) start(svc func() (*search.ReindexService, error)) (*search.ReindexService, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.current != nil && j.current.GetProgress().Status == "in_progress" {
		return j.current, false, nil
	}
	next, err := svc()
	if err != nil {
		return nil, false, err
	}
	j.current = next

	go func() {
		if _, err := next.StartReindex(context.Background()); err != nil {
			logrus.Errorf("reindex failed: %v", err)
		}
	}()
	return next, true, nil
}

func (j *reindexJob) progress() (search.ReindexProgress, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.current == nil {
		return search.ReindexProgress{}, false
	}
	return j.current.GetProgress(), true
}

// StartReindex drops and rebuilds the listings and workflows collections in
// the background. 202 when started, 409 while another run is in progress,
// 503 when search is not configured.
func (a Api) StartReindex(c *gin.Context) {
	var req ReindexRequest
	_ = c.ShouldBindJSON(&req)
	if req.BatchSize <= 0 {
		req.BatchSize = defaultReindexBatch
	}

	svc, started, err := a.reindex.start(func() (*search.ReindexService, error) {
		return a.dealflow.Reindexer(req.BatchSize)
	})
	switch {
	case errors.Is(err, dealflow.ErrSearchDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	case !started:
		c.JSON(http.StatusConflict, gin.H{
			"error":    "a reindex is already in progress",
			"progress": svc.GetProgress(),
		})
	default:
		c.JSON(http.StatusAccepted, gin.H{"progress": svc.GetProgress()})
	}
}

// GetReindexProgress reports the latest reindex run, 404 when none ran yet.
func (a Api) GetReindexProgress(c *gin.Context) {
	progress, ok := a.reindex.progress()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no reindex has been started"})
		return
	}
	c.JSON(http.StatusOK, progress)
}
