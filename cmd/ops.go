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
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/ownerfi/dealflow/model"
	"github.com/spf13/cobra"
)

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		log.Fatalf("Error printing result: %v\n", err)
	}
	fmt.Println(string(data))
}

// classifyCommands classifies one description from flags, or saves a JSON
// array of listings from a file and prints the batch statistics.
func classifyCommands(d *dealflowInstance) *cobra.Command {
	var (
		description string
		price       float64
		estimate    float64
		file        string
	)
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "classify a listing description or save a batch of listings",
		Run: func(cmd *cobra.Command, args []string) {
			if file == "" {
				printJSON(d.dealflow.ClassifyListing(description, price, estimate))
				return
			}

			data, err := os.ReadFile(file)
			if err != nil {
				log.Fatalf("Error reading listings: %v", err)
			}
			var listings []*model.Listing
			if err := json.Unmarshal(data, &listings); err != nil {
				log.Fatalf("Error parsing listings: %v", err)
			}
			stats, failed, err := d.dealflow.SaveListings(context.Background(), listings)
			if err != nil {
				log.Fatal(err)
			}
			printJSON(map[string]interface{}{"stats": stats, "failed": failed})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "listing description")
	cmd.Flags().Float64Var(&price, "price", 0, "asking price")
	cmd.Flags().Float64Var(&estimate, "estimate", 0, "estimated market value")
	cmd.Flags().StringVar(&file, "file", "", "JSON file with an array of listings to save")
	return cmd
}

// recoverCommands runs one stuck workflow recovery pass and prints its report.
func recoverCommands(d *dealflowInstance) *cobra.Command {
	var brands []string
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "recover workflows stuck in a processing stage",
		Run: func(cmd *cobra.Command, args []string) {
			report, err := d.dealflow.RecoverStuckWorkflows(context.Background(), brands...)
			if err != nil {
				log.Fatal(err)
			}
			printJSON(report)
		},
	}
	cmd.Flags().StringSliceVar(&brands, "brand", nil, "brands to recover (default all configured brands)")
	return cmd
}

// retryCommands moves retryable failed workflows back to pending.
func retryCommands(d *dealflowInstance) *cobra.Command {
	var brands []string
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "retry failed workflows",
		Run: func(cmd *cobra.Command, args []string) {
			report, err := d.dealflow.RetryFailedWorkflows(context.Background(), brands...)
			if err != nil {
				log.Fatal(err)
			}
			printJSON(report)
		},
	}
	cmd.Flags().StringSliceVar(&brands, "brand", nil, "brands to retry (default all configured brands)")
	return cmd
}

// reindexCommands rebuilds the search collections from the database.
func reindexCommands(d *dealflowInstance) *cobra.Command {
	var batchSize int
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "rebuild the search index from the database",
		Run: func(cmd *cobra.Command, args []string) {
			svc, err := d.dealflow.Reindexer(batchSize)
			if err != nil {
				log.Fatal(err)
			}
			progress, err := svc.StartReindex(context.Background())
			printJSON(progress)
			if err != nil {
				log.Fatal(err)
			}
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 100, "rows fetched per page")
	return cmd
}
