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

package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ownerfi/dealflow/internal/clock"
	"github.com/ownerfi/dealflow/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("dealflow.workflow")

// Limiter rations calls to a brand's external services.
type Limiter interface {
	Take(ctx context.Context, brand, service string) (bool, error)
}

// SourceUnlocker releases the source article of a retried item so it can be
// selected again.
type SourceUnlocker interface {
	UnlockSource(ctx context.Context, brand, sourceArticleID string) error
}

// ItemError records a per-item problem without aborting the pass.
type ItemError struct {
	Brand      string `json:"brand"`
	WorkflowID string `json:"workflow_id,omitempty"`
	Status     Status `json:"status,omitempty"`
	Error      string `json:"error"`
}

// Report aggregates one recovery or retry pass.
type Report struct {
	Scanned      int         `json:"scanned"`
	Checked      int         `json:"checked"`
	Advanced     int         `json:"advanced"`
	Failed       int         `json:"failed"`
	ForceFailed  int         `json:"force_failed"`
	Unchanged    int         `json:"unchanged"`
	Skipped      int         `json:"skipped"`
	RateLimited  int         `json:"rate_limited"`
	Conflicts    int         `json:"conflicts"`
	LookupErrors int         `json:"lookup_errors"`
	Retried      int         `json:"retried"`
	Errors       []ItemError `json:"errors"`
	StartedAt    time.Time   `json:"started_at"`
	FinishedAt   time.Time   `json:"finished_at"`
}

func (r *Report) addError(brand string, item *Item, err error) {
	e := ItemError{Brand: brand, Error: err.Error()}
	if item != nil {
		e.WorkflowID = item.ID
		e.Status = item.Status()
	}
	r.Errors = append(r.Errors, e)
}

// Reconciler finds stuck workflow items and reconciles them with the
// authoritative status of their external jobs. External lookups run one at a
// time with a fixed delay between them.
type Reconciler struct {
	store      Store
	checker    StatusChecker
	advancer   StageAdvancer
	limiter    Limiter
	unlocker   SourceUnlocker
	clock      clock.Clock
	thresholds Thresholds
	delay      time.Duration
	batchSize  int
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures a Reconciler.
type Option func(*Reconciler)

func WithAdvancer(a StageAdvancer) Option   { return func(r *Reconciler) { r.advancer = a } }
func WithLimiter(l Limiter) Option          { return func(r *Reconciler) { r.limiter = l } }
func WithUnlocker(u SourceUnlocker) Option  { return func(r *Reconciler) { r.unlocker = u } }
func WithClock(c clock.Clock) Option        { return func(r *Reconciler) { r.clock = c } }
func WithThresholds(t Thresholds) Option    { return func(r *Reconciler) { r.thresholds = t } }
func WithCheckDelay(d time.Duration) Option { return func(r *Reconciler) { r.delay = d } }
func WithBatchSize(n int) Option            { return func(r *Reconciler) { r.batchSize = n } }
func withSleep(f func(context.Context, time.Duration) error) Option {
	return func(r *Reconciler) { r.sleep = f }
}

// NewReconciler builds a Reconciler with the default thresholds, a 2s check
// delay and batches of 50.
func NewReconciler(store Store, checker StatusChecker, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:      store,
		checker:    checker,
		clock:      clock.Real{},
		thresholds: DefaultThresholds(),
		delay:      2 * time.Second,
		batchSize:  50,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Recover runs one recovery pass over the processing items of every brand.
// Per-item problems are counted in the report; only cancellation aborts.
func (r *Reconciler) Recover(ctx context.Context, brands []string) (*Report, error) {
	ctx, span := tracer.Start(ctx, "Recovering stuck workflows")
	defer span.End()

	report := &Report{StartedAt: r.clock.Now()}
	checks := 0
	for _, brand := range brands {
		for _, status := range ProcessingStatuses {
			items, err := r.list(ctx, brand, status, r.clock.Now().Add(-r.thresholds.MinAge), report)
			if err != nil {
				report.addError(brand, nil, err)
				continue
			}
			for i := range items {
				if err := ctx.Err(); err != nil {
					report.FinishedAt = r.clock.Now()
					return report, err
				}
				if err := r.reconcile(ctx, &items[i], report, &checks); err != nil {
					report.FinishedAt = r.clock.Now()
					span.RecordError(err)
					return report, err
				}
			}
		}
	}
	report.FinishedAt = r.clock.Now()
	span.SetAttributes(
		attribute.Int("workflows.scanned", report.Scanned),
		attribute.Int("workflows.advanced", report.Advanced),
		attribute.Int("workflows.failed", report.Failed+report.ForceFailed),
		attribute.Int("workflows.lookup_errors", report.LookupErrors),
	)
	return report, nil
}

func (r *Reconciler) list(ctx context.Context, brand string, status Status, changedBefore time.Time, report *Report) ([]Item, error) {
	recs, err := r.store.ListWorkflows(ctx, model.WorkflowFilter{
		Brand:         brand,
		Status:        string(status),
		ChangedBefore: changedBefore,
		Limit:         r.batchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s workflows for %s: %w", status, brand, err)
	}
	items := make([]Item, 0, len(recs))
	for _, rec := range recs {
		report.Scanned++
		item, err := FromRecord(rec)
		if err != nil {
			report.addError(brand, nil, err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// reconcile handles one item. It returns an error only when ctx is done.
func (r *Reconciler) reconcile(ctx context.Context, item *Item, report *Report, checks *int) error {
	log := logrus.WithFields(logrus.Fields{
		"brand":       item.Brand,
		"workflow_id": item.ID,
		"status":      item.Status(),
	})

	d := r.thresholds.Triage(*item, r.clock.Now())
	if d.Action == ActionNone {
		report.Skipped++
		return nil
	}

	if d.Action == ActionCheck {
		stage, _ := item.Status().Stage()
		if r.limiter != nil {
			ok, err := r.limiter.Take(ctx, item.Brand, string(stage))
			if err != nil {
				report.addError(item.Brand, item, fmt.Errorf("rate limiter: %w", err))
				return nil
			}
			if !ok {
				report.RateLimited++
				log.Warnf("%s quota exhausted, leaving item for the next pass", stage)
				return nil
			}
		}
		if *checks > 0 {
			if err := r.sleep(ctx, r.delay); err != nil {
				return err
			}
		}
		*checks++
		report.Checked++

		status, err := r.checker.CheckStatus(ctx, stage, JobID(item.State))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			report.LookupErrors++
			report.addError(item.Brand, item, fmt.Errorf("status lookup for %s job %s: %w", stage, JobID(item.State), err))
			log.WithError(err).Warn("status lookup failed, skipping item")
			return nil
		}
		d = r.thresholds.Resolve(*item, status, r.clock.Now())
		if d.Action == ActionNone {
			report.Unchanged++
			return nil
		}
	}

	if _, err := Commit(ctx, r.store, r.advancer, *item, d, r.clock.Now()); err != nil {
		if errors.Is(err, ErrStaleWrite) {
			report.Conflicts++
			log.Info("workflow changed during recovery, leaving it to the other writer")
			return nil
		}
		report.addError(item.Brand, item, err)
		if !errors.Is(err, ErrTriggerFailed) {
			return nil
		}
	}

	switch {
	case d.Action == ActionAdvance:
		report.Advanced++
	case d.Forced:
		report.ForceFailed++
	default:
		report.Failed++
	}
	return nil
}

// RetryFailed moves retryable failed items with fewer than maxAttempts
// attempts back to pending.
func (r *Reconciler) RetryFailed(ctx context.Context, brands []string, maxAttempts int) (*Report, error) {
	ctx, span := tracer.Start(ctx, "Retrying failed workflows")
	defer span.End()

	report := &Report{StartedAt: r.clock.Now()}
	for _, brand := range brands {
		items, err := r.list(ctx, brand, StatusFailed, time.Time{}, report)
		if err != nil {
			report.addError(brand, nil, err)
			continue
		}
		for i := range items {
			if err := ctx.Err(); err != nil {
				report.FinishedAt = r.clock.Now()
				return report, err
			}
			item := items[i]
			failed, ok := item.State.(Failed)
			if !ok || !failed.Retryable || item.Attempts >= maxAttempts {
				report.Skipped++
				continue
			}
			if _, err := RetryItem(ctx, r.store, r.unlocker, item, r.clock.Now()); err != nil {
				if errors.Is(err, ErrStaleWrite) {
					report.Conflicts++
					continue
				}
				report.addError(brand, &item, err)
				continue
			}
			report.Retried++
		}
	}
	report.FinishedAt = r.clock.Now()
	return report, nil
}

// RetryItem resets a failed item to pending through a compare-and-swap and
// unlocks its source article when an unlocker is given.
func RetryItem(ctx context.Context, store Store, unlocker SourceUnlocker, item Item, now time.Time) (Item, error) {
	next, err := Retry(item, now)
	if err != nil {
		return item, err
	}
	ok, err := store.CompareAndSwapWorkflow(ctx, string(item.Status()), next.ToRecord())
	if err != nil {
		return item, fmt.Errorf("failed to update workflow %s/%s: %w", item.Brand, item.ID, err)
	}
	if !ok {
		return item, fmt.Errorf("%w: %s/%s expected %s", ErrStaleWrite, item.Brand, item.ID, item.Status())
	}
	next.Version++
	if unlocker != nil && item.SourceArticleID != "" {
		if err := unlocker.UnlockSource(ctx, item.Brand, item.SourceArticleID); err != nil {
			logrus.Warnf("workflow %s/%s retried but source %s stayed locked: %v", item.Brand, item.ID, item.SourceArticleID, err)
		}
	}
	return next, nil
}
