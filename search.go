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

	"github.com/ownerfi/dealflow/internal/search"
	"github.com/typesense/typesense-go/typesense/api"
)

// Search runs a query against the listings or workflows collection.
func (d *Dealflow) Search(ctx context.Context, collection string, query *api.SearchCollectionParams) (*api.SearchResult, error) {
	if d.search == nil {
		return nil, ErrSearchDisabled
	}
	switch collection {
	case search.CollectionListings, search.CollectionWorkflows:
	default:
		return nil, fmt.Errorf("unknown collection %q", collection)
	}
	return d.search.Search(ctx, collection, query)
}

// Reindexer returns a service that rebuilds both collections from the
// database.
func (d *Dealflow) Reindexer(batchSize int) (*search.ReindexService, error) {
	indexer, ok := d.search.(search.Indexer)
	if !ok {
		return nil, ErrSearchDisabled
	}
	return search.NewReindexService(indexer, d.datasource, search.ReindexConfig{
		BatchSize: batchSize,
		Brands:    d.config.Recovery.Brands,
	}), nil
}
