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
	"strings"

	"github.com/ownerfi/dealflow/classify"
	"github.com/ownerfi/dealflow/internal/apierror"
	"github.com/ownerfi/dealflow/internal/search"
	"github.com/ownerfi/dealflow/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("dealflow")

// ClassifyListing runs the classifier without storing anything.
func (d *Dealflow) ClassifyListing(description string, price, estimate float64) classify.Result {
	return d.classifier.Classify(description, price, estimate)
}

// SaveListing classifies a listing and stores it when it qualifies for at
// least one deal collection. It reports whether the listing was saved.
func (d *Dealflow) SaveListing(ctx context.Context, listing *model.Listing) (*model.Listing, bool, error) {
	ctx, span := tracer.Start(ctx, "SaveListing")
	defer span.End()

	if strings.TrimSpace(listing.ListingID) == "" {
		return nil, false, apierror.NewAPIError(apierror.ErrInvalidInput, "listing_id is required", nil)
	}

	listing.Result = d.classifier.Classify(listing.Description, listing.Price, listing.EstimateValue())
	listing.TablesVersion = d.classifier.Tables().Version()
	if !listing.ShouldSave {
		return listing, false, nil
	}

	saved, err := d.datasource.UpsertListing(ctx, listing)
	if err != nil {
		return nil, false, err
	}
	d.index(ctx, search.CollectionListings, saved)
	return saved, true, nil
}

// SaveListings classifies and stores a batch, returning the batch statistics.
// A failed write is logged and counted, and the rest of the batch continues.
func (d *Dealflow) SaveListings(ctx context.Context, listings []*model.Listing) (*classify.Stats, int, error) {
	stats := classify.NewStats()
	failed := 0
	for _, l := range listings {
		saved, _, err := d.SaveListing(ctx, l)
		if err != nil {
			failed++
			logrus.WithField("listing_id", l.ListingID).Errorf("failed to save listing: %v", err)
			continue
		}
		stats.Add(saved.Result)
	}
	stats.Log("save_listings")
	if failed == len(listings) && failed > 0 {
		return stats, failed, fmt.Errorf("all %d listings failed to save", failed)
	}
	return stats, failed, nil
}

func (d *Dealflow) GetListing(ctx context.Context, listingID string) (*model.Listing, error) {
	return d.datasource.GetListing(ctx, listingID)
}

func (d *Dealflow) ListListings(ctx context.Context, filter model.ListingFilter) ([]model.Listing, error) {
	return d.datasource.ListListings(ctx, filter)
}

// index queues a search update. Indexing is best effort.
func (d *Dealflow) index(ctx context.Context, collection string, doc interface{}) {
	if d.search == nil || d.queue == nil {
		return
	}
	if err := d.queue.queueIndexData(ctx, collection, doc); err != nil {
		logrus.Warnf("failed to queue %s index update: %v", collection, err)
	}
}
