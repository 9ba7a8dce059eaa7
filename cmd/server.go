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

	"github.com/caddyserver/certmagic"
	"github.com/gin-gonic/gin"
	"github.com/ownerfi/dealflow/api"
	"github.com/ownerfi/dealflow/classify"
	"github.com/ownerfi/dealflow/config"
	"github.com/ownerfi/dealflow/internal/search"
	"github.com/ownerfi/dealflow/internal/trace"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

/*
serveTLS starts an HTTPS server with certificates managed by CertMagic.
If no domain is specified, the server defaults to localhost.
*/
func serveTLS(r *gin.Engine, conf config.ServerConfig) error {
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = conf.Email
	cfg := certmagic.NewDefault()
	cfg.Storage = &certmagic.FileStorage{Path: "certmagic"}

	domains := []string{conf.Domain}
	if conf.Domain == "" {
		log.Println("No domain specified, defaulting to localhost")
		domains = []string{"localhost"}
	}

	if err := cfg.ManageSync(context.Background(), domains); err != nil {
		return err
	}

	server := &http.Server{
		Addr:      ":" + conf.Port,
		Handler:   r,
		TLSConfig: cfg.TLSConfig(),
	}

	log.Printf("Starting HTTPS server on %s\n", conf.Port)
	if err := server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start HTTPS server: %v", err)
	}
	return nil
}

// migrateTypeSenseSchema adds fields introduced since the collections were created.
func migrateTypeSenseSchema(ctx context.Context, t *search.TypesenseClient) error {
	for _, c := range []string{search.CollectionListings, search.CollectionWorkflows} {
		if err := t.MigrateTypeSenseSchema(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func initializeTypeSense(ctx context.Context, cfg *config.Configuration) (*search.TypesenseClient, error) {
	if cfg.TypeSense.Dns == "" {
		return nil, nil
	}
	newSearch := search.NewTypesenseClient(cfg.TypeSense.Key, []string{cfg.TypeSense.Dns})
	if err := newSearch.EnsureCollectionsExist(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure collections exist: %v", err)
	}
	if err := migrateTypeSenseSchema(ctx, newSearch); err != nil {
		return nil, fmt.Errorf("failed to migrate typesense schema: %v", err)
	}
	return newSearch, nil
}

// initializeTracing is a no-op unless telemetry is enabled.
func initializeTracing(ctx context.Context, cfg *config.Configuration, service string) func(context.Context) error {
	noop := func(context.Context) error { return nil }
	if !cfg.EnableTelemetry {
		return noop
	}
	shutdown, err := trace.SetupOTelSDK(ctx, service)
	if err != nil {
		logrus.Errorf("error setting up OTel SDK: %v", err)
		return noop
	}
	return shutdown
}

func initializeRouter(d *dealflowInstance) *gin.Engine {
	return api.NewAPI(d.dealflow).Router()
}

func startServer(router *gin.Engine, cfg config.ServerConfig) error {
	if cfg.SSL {
		return serveTLS(router, cfg)
	}
	log.Printf("Starting server on http://localhost:%s", cfg.Port)
	return router.Run(":" + cfg.Port)
}

// watchKeywordTables reloads the classifier when its keyword file changes.
func watchKeywordTables(ctx context.Context, d *dealflowInstance) {
	cls := d.cnf.Classification
	if !cls.WatchKeywords || cls.KeywordsFile == "" {
		return
	}
	if err := classify.Watch(ctx, cls.KeywordsFile, d.dealflow.Classifier()); err != nil {
		logrus.Errorf("keyword tables will not hot reload: %v", err)
		return
	}
	logrus.Infof("watching keyword tables at %s", cls.KeywordsFile)
}

// serverCommands returns the command that starts the HTTP API.
func serverCommands(d *dealflowInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start dealflow server",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			shutdown := initializeTracing(ctx, d.cnf, "dealflow-api")
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logrus.Errorf("error shutting down tracer: %v", err)
				}
			}()

			router := initializeRouter(d)

			if _, err := initializeTypeSense(ctx, d.cnf); err != nil {
				log.Printf("TypeSense initialization error: %v", err)
			}

			watchKeywordTables(ctx, d)

			if err := startServer(router, d.cnf.Server); err != nil {
				log.Fatal(err)
			}
		},
	}
	return cmd
}
