package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a suffix.
// This is useful for creating unique identifiers with context-specific prefixes.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}

// ListingIDFromSource builds the natural key of a listing from its source and the
// source's own identifier, e.g. ("zpid", "12345") -> "zpid_12345".
// An empty source ID yields an empty key so callers can reject the listing.
func ListingIDFromSource(source, sourceID string) string {
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return ""
	}
	source = strings.ToLower(strings.TrimSpace(source))
	if source == "" {
		return sourceID
	}
	if strings.HasPrefix(sourceID, source+"_") {
		return sourceID
	}
	return fmt.Sprintf("%s_%s", source, sourceID)
}
