package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/ownerfi/dealflow/internal/cache"
	"github.com/ownerfi/dealflow/workflow"
	"github.com/sirupsen/logrus"
)

const terminalStatusTTL = 24 * time.Hour

// CachedChecker remembers terminal job statuses so repeated recovery passes
// and duplicate webhooks do not call the external service again for a job
// whose outcome cannot change. Processing results are never cached.
type CachedChecker struct {
	next  workflow.StatusChecker
	cache cache.Cache
}

func NewCachedChecker(next workflow.StatusChecker, c cache.Cache) *CachedChecker {
	return &CachedChecker{next: next, cache: c}
}

func statusCacheKey(stage workflow.Stage, jobID string) string {
	return fmt.Sprintf("job_status:%s:%s", stage, jobID)
}

func (c *CachedChecker) CheckStatus(ctx context.Context, stage workflow.Stage, jobID string) (workflow.JobStatus, error) {
	key := statusCacheKey(stage, jobID)

	var cached workflow.JobStatus
	if err := c.cache.Get(ctx, key, &cached); err != nil {
		logrus.Warnf("job status cache read failed for %s: %v", key, err)
	} else if cached.State != "" {
		return cached, nil
	}

	status, err := c.next.CheckStatus(ctx, stage, jobID)
	if err != nil {
		return status, err
	}
	if status.State != workflow.JobProcessing {
		if err := c.cache.Set(ctx, key, status, terminalStatusTTL); err != nil {
			logrus.Warnf("job status cache write failed for %s: %v", key, err)
		}
	}
	return status, nil
}
