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

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/ownerfi/dealflow/classify"
	"github.com/ownerfi/dealflow/internal/apierror"
	"github.com/ownerfi/dealflow/model"
	"github.com/pkg/errors"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func pageSize(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

const listingColumns = `listing_id, source, address, city, state, zip_code, price, estimate,
	description, url, classification, tables_version, meta_data, created_at, updated_at`

// UpsertListing inserts a listing or replaces the stored copy with the same
// listing ID. Classification columns are rewritten on every upsert.
func (d Datasource) UpsertListing(ctx context.Context, listing *model.Listing) (*model.Listing, error) {
	ctx, span := tracer.Start(ctx, "Upserting listing")
	defer span.End()

	classification, err := json.Marshal(listing.Result)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal classification")
	}
	metaDataJSON, err := json.Marshal(listing.MetaData)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal metadata")
	}
	dealTypes := make([]string, 0, len(listing.DealTypes))
	for _, dt := range listing.DealTypes {
		dealTypes = append(dealTypes, string(dt))
	}
	var financingType sql.NullString
	if listing.FinancingType != nil {
		financingType = sql.NullString{String: string(*listing.FinancingType), Valid: true}
	}
	var estimate sql.NullFloat64
	if listing.Estimate != nil {
		estimate = sql.NullFloat64{Float64: *listing.Estimate, Valid: true}
	}

	now := time.Now().UTC()
	err = d.Conn.QueryRowContext(ctx, `
		INSERT INTO dealflow.listings (
			listing_id, source, address, city, state, zip_code, price, estimate, description, url,
			is_owner_finance, is_cash_deal, needs_work, financing_type, deal_types, classification,
			tables_version, meta_data, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $19)
		ON CONFLICT (listing_id) DO UPDATE SET
			source = EXCLUDED.source,
			address = EXCLUDED.address,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			zip_code = EXCLUDED.zip_code,
			price = EXCLUDED.price,
			estimate = EXCLUDED.estimate,
			description = EXCLUDED.description,
			url = EXCLUDED.url,
			is_owner_finance = EXCLUDED.is_owner_finance,
			is_cash_deal = EXCLUDED.is_cash_deal,
			needs_work = EXCLUDED.needs_work,
			financing_type = EXCLUDED.financing_type,
			deal_types = EXCLUDED.deal_types,
			classification = EXCLUDED.classification,
			tables_version = EXCLUDED.tables_version,
			meta_data = EXCLUDED.meta_data,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at
	`, listing.ListingID, listing.Source, listing.Address, listing.City, listing.State, listing.ZipCode,
		listing.Price, estimate, listing.Description, listing.URL,
		listing.IsOwnerFinance, listing.IsCashDeal, listing.NeedsWork, financingType, pq.Array(dealTypes),
		classification, listing.TablesVersion, metaDataJSON, now,
	).Scan(&listing.CreatedAt, &listing.UpdatedAt)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to save listing", err)
	}
	return listing, nil
}

func (d Datasource) GetListing(ctx context.Context, listingID string) (*model.Listing, error) {
	ctx, span := tracer.Start(ctx, "Fetching listing")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+listingColumns+`
		FROM dealflow.listings
		WHERE listing_id = $1
	`, listingID)

	listing, err := scanListing(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Listing with ID '%s' not found", listingID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve listing", err)
	}
	return listing, nil
}

// ListListings returns listings newest first. A deal type filter matches
// listings tagged with that type.
func (d Datasource) ListListings(ctx context.Context, filter model.ListingFilter) ([]model.Listing, error) {
	ctx, span := tracer.Start(ctx, "Listing listings")
	defer span.End()

	var (
		conditions []string
		args       []interface{}
	)
	if filter.DealType != "" {
		args = append(args, string(filter.DealType))
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(deal_types)", len(args)))
	}
	if filter.State != "" {
		args = append(args, strings.ToUpper(filter.State))
		conditions = append(conditions, fmt.Sprintf("UPPER(state) = $%d", len(args)))
	}
	if filter.City != "" {
		args = append(args, strings.ToLower(filter.City))
		conditions = append(conditions, fmt.Sprintf("LOWER(city) = $%d", len(args)))
	}

	var query strings.Builder
	query.WriteString("SELECT " + listingColumns + " FROM dealflow.listings")
	if len(conditions) > 0 {
		query.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	args = append(args, pageSize(filter.Limit), filter.Offset)
	query.WriteString(fmt.Sprintf(" ORDER BY updated_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)))

	rows, err := d.Conn.QueryContext(ctx, query.String(), args...)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve listings", err)
	}
	defer rows.Close()

	listings := []model.Listing{}
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan listing data", err)
		}
		listings = append(listings, *listing)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over listings", err)
	}
	return listings, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanListing(row rowScanner) (*model.Listing, error) {
	var (
		listing        model.Listing
		address        sql.NullString
		city           sql.NullString
		state          sql.NullString
		zipCode        sql.NullString
		estimate       sql.NullFloat64
		description    sql.NullString
		url            sql.NullString
		tablesVersion  sql.NullString
		classification []byte
		metaDataJSON   []byte
	)
	err := row.Scan(&listing.ListingID, &listing.Source, &address, &city, &state, &zipCode,
		&listing.Price, &estimate, &description, &url, &classification, &tablesVersion,
		&metaDataJSON, &listing.CreatedAt, &listing.UpdatedAt)
	if err != nil {
		return nil, err
	}

	listing.Address = address.String
	listing.City = city.String
	listing.State = state.String
	listing.ZipCode = zipCode.String
	listing.Description = description.String
	listing.URL = url.String
	listing.TablesVersion = tablesVersion.String
	if estimate.Valid {
		v := estimate.Float64
		listing.Estimate = &v
	}

	if len(classification) > 0 {
		if err := json.Unmarshal(classification, &listing.Result); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal classification of %s", listing.ListingID)
		}
	}
	normalizeResult(&listing.Result)
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &listing.MetaData); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal metadata of %s", listing.ListingID)
		}
	}
	return &listing, nil
}

// normalizeResult restores the empty slices a stored classification may
// have lost.
func normalizeResult(r *classify.Result) {
	if r.OwnerFinanceKeywords == nil {
		r.OwnerFinanceKeywords = []string{}
	}
	if r.AllFinancingTypes == nil {
		r.AllFinancingTypes = []classify.FinancingType{}
	}
	if r.NeedsWorkKeywords == nil {
		r.NeedsWorkKeywords = []string{}
	}
	if r.DealTypes == nil {
		r.DealTypes = []classify.DealType{}
	}
}
