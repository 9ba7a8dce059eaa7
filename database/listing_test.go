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
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/ownerfi/dealflow/classify"
	"github.com/ownerfi/dealflow/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var listingRowColumns = []string{"listing_id", "source", "address", "city", "state", "zip_code", "price", "estimate",
	"description", "url", "classification", "tables_version", "meta_data", "created_at", "updated_at"}

func fakeListing() *model.Listing {
	estimate := 250000.0
	description := "Owner financing available with low down payment. Fixer upper."
	return &model.Listing{
		ListingID:   model.ListingIDFromSource("zpid", gofakeit.Numerify("#######")),
		Source:      "zillow",
		Address:     gofakeit.Street(),
		City:        "Houston",
		State:       "TX",
		ZipCode:     gofakeit.Zip(),
		Price:       180000,
		Estimate:    &estimate,
		Description: description,
		Result:      classify.Classify(description, 180000, estimate),
	}
}

func TestUpsertListing_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	listing := fakeListing()
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO dealflow.listings").
		WithArgs(listing.ListingID, "zillow", listing.Address, "Houston", "TX", listing.ZipCode,
			180000.0, 250000.0, listing.Description, "",
			true, true, true, "Owner Finance", sqlmock.AnyArg(),
			sqlmock.AnyArg(), "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(created, created))

	saved, err := ds.UpsertListing(context.Background(), listing)
	require.NoError(t, err)
	assert.Equal(t, created, saved.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertListing_DBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	mock.ExpectQuery("INSERT INTO dealflow.listings").WillReturnError(errors.New("connection reset"))

	_, err = ds.UpsertListing(context.Background(), fakeListing())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to save listing")
}

func TestGetListing_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	listing := fakeListing()
	classification, err := json.Marshal(listing.Result)
	require.NoError(t, err)
	now := time.Now().UTC().Truncate(time.Second)

	mock.ExpectQuery("SELECT .* FROM dealflow.listings WHERE listing_id = \\$1").
		WithArgs(listing.ListingID).
		WillReturnRows(sqlmock.NewRows(listingRowColumns).AddRow(
			listing.ListingID, "zillow", listing.Address, "Houston", "TX", listing.ZipCode,
			180000.0, 250000.0, listing.Description, nil, classification, "2025.06.2",
			[]byte(`{"scraper":"apify"}`), now, now))

	got, err := ds.GetListing(context.Background(), listing.ListingID)
	require.NoError(t, err)
	assert.Equal(t, listing.ListingID, got.ListingID)
	require.NotNil(t, got.Estimate)
	assert.Equal(t, 250000.0, *got.Estimate)
	assert.Equal(t, "", got.URL)
	assert.Equal(t, listing.Result, got.Result)
	assert.True(t, got.HasDealType(classify.DealTypeOwnerFinance))
	assert.Equal(t, "apify", got.MetaData["scraper"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetListing_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	mock.ExpectQuery("SELECT .* FROM dealflow.listings").
		WithArgs("zpid_missing").
		WillReturnRows(sqlmock.NewRows(listingRowColumns))

	_, err = ds.GetListing(context.Background(), "zpid_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListListings_Filters(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .* FROM dealflow.listings WHERE \\$1 = ANY\\(deal_types\\) AND UPPER\\(state\\) = \\$2 ORDER BY updated_at DESC LIMIT \\$3 OFFSET \\$4").
		WithArgs("cash_deal", "TX", 100, 10).
		WillReturnRows(sqlmock.NewRows(listingRowColumns).
			AddRow("zpid_1", "zillow", nil, nil, "TX", nil, 60000.0, 100000.0, nil, nil, []byte(`{}`), nil, nil, now, now).
			AddRow("zpid_2", "zillow", nil, nil, "TX", nil, 70000.0, nil, nil, nil, nil, nil, nil, now, now))

	listings, err := ds.ListListings(context.Background(), model.ListingFilter{
		DealType: classify.DealTypeCashDeal,
		State:    "tx",
		Limit:    500,
		Offset:   10,
	})
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Nil(t, listings[1].Estimate)
	assert.NotNil(t, listings[1].DealTypes, "empty slices survive a round trip")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListListings_DefaultPage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	mock.ExpectQuery("SELECT .* FROM dealflow.listings ORDER BY updated_at DESC LIMIT \\$1 OFFSET \\$2").
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows(listingRowColumns))

	listings, err := ds.ListListings(context.Background(), model.ListingFilter{})
	require.NoError(t, err)
	assert.Empty(t, listings)
	assert.NotNil(t, listings)
}
