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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/ownerfi/dealflow/config"
	"github.com/ownerfi/dealflow/internal/hooks"
	redis_db "github.com/ownerfi/dealflow/internal/redis-db"
	"github.com/ownerfi/dealflow/internal/search"
	"github.com/ownerfi/dealflow/model"
	"github.com/sirupsen/logrus"
)

// TypeIndexDocument is the task that pushes a document to the search index.
const TypeIndexDocument = "search:index"

// Enqueuer is the part of *asynq.Client the queue uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue sends stage triggers and index updates to the workers.
type Queue struct {
	Client     Enqueuer
	Inspector  *asynq.Inspector
	stageQueue string
	indexQueue string
	maxRetry   int
}

// IndexPayload carries one document for a search collection.
type IndexPayload struct {
	Collection string          `json:"collection"`
	Payload    json.RawMessage `json:"payload"`
}

// RedisClientOpt converts the configured Redis DNS into asynq options.
func RedisClientOpt(conf *config.Configuration) (asynq.RedisClientOpt, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("error parsing Redis URL: %w", err)
	}
	return asynq.RedisClientOpt{Addr: redisOption.Addr, Username: redisOption.Username, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}, nil
}

// NewQueue builds a Queue on the configured Redis.
func NewQueue(conf *config.Configuration) (*Queue, error) {
	opt, err := RedisClientOpt(conf)
	if err != nil {
		return nil, err
	}
	q := NewQueueWithClient(asynq.NewClient(opt), conf.Queue)
	q.Inspector = asynq.NewInspector(opt)
	return q, nil
}

// NewQueueWithClient builds a Queue on an existing enqueuer.
func NewQueueWithClient(client Enqueuer, conf config.QueueConfig) *Queue {
	return &Queue{
		Client:     client,
		stageQueue: conf.StageQueue,
		indexQueue: conf.IndexQueue,
		maxRetry:   conf.MaxRetryAttempt,
	}
}

// queueStageTrigger enqueues the trigger for the status an item just entered.
// The task ID is derived from the transition, so the same transition is
// queued once even if it is reported twice.
func (q *Queue) queueStageTrigger(ctx context.Context, payload hooks.HookPayload, version int64) error {
	task, err := hooks.NewHookTask(payload)
	if err != nil {
		return err
	}
	taskID := fmt.Sprintf("%s:%s:%s:%d", payload.Brand, payload.WorkflowID, payload.Status, version)
	_, err = q.Client.EnqueueContext(ctx, task,
		asynq.TaskID(taskID),
		asynq.Queue(q.stageQueue),
		asynq.MaxRetry(q.maxRetry),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		logrus.Debugf("stage trigger %s already queued", taskID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue stage trigger %s: %w", taskID, err)
	}
	logrus.Infof(" [*] Successfully enqueued stage trigger: %s", taskID)
	return nil
}

// queueIndexData enqueues a document for the search index.
func (q *Queue) queueIndexData(ctx context.Context, collection string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	body, err := json.Marshal(IndexPayload{Collection: collection, Payload: raw})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeIndexDocument, body)
	if _, err := q.Client.EnqueueContext(ctx, task, asynq.Queue(q.indexQueue), asynq.MaxRetry(q.maxRetry)); err != nil {
		return fmt.Errorf("failed to enqueue index task: %w", err)
	}
	return nil
}

// ProcessIndexTask indexes the document carried by an index task.
func (d *Dealflow) ProcessIndexTask(ctx context.Context, task *asynq.Task) error {
	if d.search == nil {
		return nil
	}
	var payload IndexPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid index payload: %v: %w", err, asynq.SkipRetry)
	}
	switch payload.Collection {
	case search.CollectionListings:
		var l model.Listing
		if err := json.Unmarshal(payload.Payload, &l); err != nil {
			return fmt.Errorf("invalid listing document: %v: %w", err, asynq.SkipRetry)
		}
		return d.search.IndexListing(ctx, l)
	case search.CollectionWorkflows:
		var rec model.WorkflowRecord
		if err := json.Unmarshal(payload.Payload, &rec); err != nil {
			return fmt.Errorf("invalid workflow document: %v: %w", err, asynq.SkipRetry)
		}
		return d.search.IndexWorkflow(ctx, rec)
	}
	return fmt.Errorf("unknown collection %q: %w", payload.Collection, asynq.SkipRetry)
}
