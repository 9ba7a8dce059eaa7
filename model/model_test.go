package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateUUIDWithSuffix(t *testing.T) {
	module := "wf"
	id := GenerateUUIDWithSuffix(module)
	assert.Contains(t, id, module+"_")
	assert.NotEqual(t, id, GenerateUUIDWithSuffix(module))
}

func TestListingIDFromSource(t *testing.T) {
	assert.Equal(t, "zpid_12345", ListingIDFromSource("zpid", "12345"))
	assert.Equal(t, "zpid_12345", ListingIDFromSource("ZPID", " 12345 "))
	assert.Equal(t, "zpid_12345", ListingIDFromSource("zpid", "zpid_12345"))
	assert.Equal(t, "12345", ListingIDFromSource("", "12345"))
	assert.Equal(t, "", ListingIDFromSource("zpid", "  "))
}

func TestListingEstimateValue(t *testing.T) {
	l := &Listing{}
	assert.Equal(t, 0.0, l.EstimateValue())

	est := 150000.0
	l.Estimate = &est
	assert.Equal(t, 150000.0, l.EstimateValue())
}
