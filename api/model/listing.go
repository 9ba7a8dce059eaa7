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

package model

// ClassifyListing asks for a classification without saving anything.
type ClassifyListing struct {
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Estimate    *float64 `json:"estimate"`
}

type CreateListing struct {
	ListingID   string                 `json:"listing_id"`
	Source      string                 `json:"source"`
	Address     string                 `json:"address"`
	City        string                 `json:"city"`
	State       string                 `json:"state"`
	ZipCode     string                 `json:"zip_code"`
	Price       float64                `json:"price"`
	Estimate    *float64               `json:"estimate"`
	Description string                 `json:"description"`
	URL         string                 `json:"url"`
	MetaData    map[string]interface{} `json:"meta_data"`
}

// CreateListings is a scraper batch.
type CreateListings struct {
	Listings []CreateListing `json:"listings"`
}
