package model

import (
	"time"

	"github.com/ownerfi/dealflow/classify"
)

// Listing is one scraped property listing keyed by its natural external ID.
// The embedded classification fields are written by the classifier only.
type Listing struct {
	ListingID   string   `json:"listing_id"`
	Source      string   `json:"source"`
	Address     string   `json:"address"`
	City        string   `json:"city"`
	State       string   `json:"state"`
	ZipCode     string   `json:"zip_code"`
	Price       float64  `json:"price"`
	Estimate    *float64 `json:"estimate,omitempty"`
	Description string   `json:"description"`
	URL         string   `json:"url,omitempty"`

	classify.Result
	TablesVersion string `json:"tables_version"`

	MetaData  map[string]interface{} `json:"meta_data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// EstimateValue returns the estimate or zero when it is absent.
func (l *Listing) EstimateValue() float64 {
	if l.Estimate == nil {
		return 0
	}
	return *l.Estimate
}

// ListingFilter narrows listing queries.
type ListingFilter struct {
	DealType classify.DealType
	State    string
	City     string
	Limit    int
	Offset   int
}
