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

package dealflow

import (
	"context"
	"fmt"

	redlock "github.com/ownerfi/dealflow/internal/lock"
	"github.com/ownerfi/dealflow/internal/notification"
	"github.com/ownerfi/dealflow/workflow"
	"github.com/sirupsen/logrus"
)

const (
	recoveryLockKey = "dealflow:lease:recover_stuck_workflows"
	retryLockKey    = "dealflow:lease:retry_failed_workflows"
)

func (d *Dealflow) reconciler() *workflow.Reconciler {
	r := d.config.Recovery
	return workflow.NewReconciler(d.datasource, d.checker,
		workflow.WithAdvancer(d),
		workflow.WithLimiter(d.limiter),
		workflow.WithUnlocker(d.datasource),
		workflow.WithClock(d.clock),
		workflow.WithThresholds(d.thresholds()),
		workflow.WithCheckDelay(r.CheckDelay()),
		workflow.WithBatchSize(r.BatchSize),
	)
}

// RecoverStuckWorkflows runs one recovery pass over the given brands, or all
// configured brands when none are given. Only one pass runs at a time across
// processes; a concurrent call fails with a conflict.
func (d *Dealflow) RecoverStuckWorkflows(ctx context.Context, brands ...string) (*workflow.Report, error) {
	if len(brands) == 0 {
		brands = d.config.Recovery.Brands
	}
	var report *workflow.Report
	err := d.withLease(ctx, recoveryLockKey, func(ctx context.Context) error {
		var err error
		report, err = d.reconciler().Recover(ctx, brands)
		return err
	})
	if err != nil {
		return report, toAPIError(err)
	}
	logReport("recovery", report)
	if report.Advanced+report.Failed+report.ForceFailed+report.LookupErrors+len(report.Errors) > 0 {
		notifyReport("Stuck workflow recovery", report)
	}
	return report, nil
}

// RetryFailedWorkflows moves retryable failures back to pending.
func (d *Dealflow) RetryFailedWorkflows(ctx context.Context, brands ...string) (*workflow.Report, error) {
	if len(brands) == 0 {
		brands = d.config.Recovery.Brands
	}
	var report *workflow.Report
	err := d.withLease(ctx, retryLockKey, func(ctx context.Context) error {
		var err error
		report, err = d.reconciler().RetryFailed(ctx, brands, d.config.Recovery.MaxRetryAttempts)
		return err
	})
	if err != nil {
		return report, toAPIError(err)
	}
	logReport("retry", report)
	if report.Retried+len(report.Errors) > 0 {
		notifyReport("Failed workflow retry", report)
	}
	return report, nil
}

func (d *Dealflow) withLease(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	locker := redlock.NewLocker(d.redis, key, redlock.OwnerID())
	return locker.WithLock(ctx, d.config.Recovery.LockTTL(), fn)
}

func logReport(pass string, r *workflow.Report) {
	logrus.WithFields(logrus.Fields{
		"pass":          pass,
		"scanned":       r.Scanned,
		"checked":       r.Checked,
		"advanced":      r.Advanced,
		"failed":        r.Failed,
		"force_failed":  r.ForceFailed,
		"unchanged":     r.Unchanged,
		"skipped":       r.Skipped,
		"rate_limited":  r.RateLimited,
		"conflicts":     r.Conflicts,
		"lookup_errors": r.LookupErrors,
		"retried":       r.Retried,
		"errors":        len(r.Errors),
		"duration":      r.FinishedAt.Sub(r.StartedAt).String(),
	}).Info("workflow pass finished")
}

func notifyReport(title string, r *workflow.Report) {
	problems := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		if e.WorkflowID == "" {
			problems = append(problems, fmt.Sprintf("%s: %s", e.Brand, e.Error))
			continue
		}
		problems = append(problems, fmt.Sprintf("%s/%s (%s): %s", e.Brand, e.WorkflowID, e.Status, e.Error))
	}
	notification.NotifySummary(title, map[string]int{
		"advanced":      r.Advanced,
		"failed":        r.Failed,
		"force failed":  r.ForceFailed,
		"lookup errors": r.LookupErrors,
		"rate limited":  r.RateLimited,
		"retried":       r.Retried,
	}, problems)
}
