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

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/ownerfi/dealflow"
	"github.com/ownerfi/dealflow/config"
	"github.com/ownerfi/dealflow/internal/hooks"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

func initializeQueues(conf *config.Configuration) map[string]int {
	return map[string]int{
		conf.Queue.StageQueue: 3,
		conf.Queue.IndexQueue: 1,
	}
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	opt, err := dealflow.RedisClientOpt(conf)
	if err != nil {
		return nil, err
	}
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: 4,
		Queues:      queues,
		Logger:      logrus.StandardLogger(),
	}), nil
}

func initializeTaskHandlers(d *dealflowInstance, mux *asynq.ServeMux) {
	mux.HandleFunc(hooks.TaskType, d.dealflow.Hooks().ProcessHookTask)
	mux.HandleFunc(dealflow.TypeIndexDocument, d.dealflow.ProcessIndexTask)
}

// startMonitoring serves the asynqmon dashboard under /monitoring.
func startMonitoring(conf *config.Configuration) error {
	opt, err := dealflow.RedisClientOpt(conf)
	if err != nil {
		return err
	}
	h := asynqmon.New(asynqmon.Options{
		RootPath:     "/monitoring",
		RedisConnOpt: opt,
	})

	go func() {
		addr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
		log.Printf("Asynqmon server listening on %s/monitoring", addr)
		if err := http.ListenAndServe(addr, h); err != nil {
			log.Fatalf("could not start asynqmon server: %v", err)
		}
	}()
	return nil
}

// initializeScheduler registers the recovery and retry passes. A pass that
// finds another process holding its lease just logs and waits for the next tick.
func initializeScheduler(ctx context.Context, d *dealflowInstance) (*cron.Cron, error) {
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(logrus.StandardLogger())))
	rec := d.cnf.Recovery

	if rec.Schedule != "" {
		if _, err := c.AddFunc(rec.Schedule, func() {
			if _, err := d.dealflow.RecoverStuckWorkflows(ctx); err != nil {
				logrus.Warnf("recovery pass: %v", err)
			}
		}); err != nil {
			return nil, err
		}
	}
	if rec.RetrySchedule != "" {
		if _, err := c.AddFunc(rec.RetrySchedule, func() {
			if _, err := d.dealflow.RetryFailedWorkflows(ctx); err != nil {
				logrus.Warnf("retry pass: %v", err)
			}
		}); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// workerCommands defines the "workers" command: the stage trigger and index
// queues plus the scheduled recovery passes.
func workerCommands(d *dealflowInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start dealflow workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdown := initializeTracing(ctx, d.cnf, "dealflow-workers")
			defer func() { _ = shutdown(context.Background()) }()

			srv, err := initializeWorkerServer(d.cnf, initializeQueues(d.cnf))
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(d, mux)

			if err := startMonitoring(d.cnf); err != nil {
				logrus.Errorf("queue monitoring disabled: %v", err)
			}

			scheduler, err := initializeScheduler(ctx, d)
			if err != nil {
				log.Fatalf("invalid recovery schedule: %v", err)
			}
			scheduler.Start()
			defer scheduler.Stop()

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}
	return cmd
}
