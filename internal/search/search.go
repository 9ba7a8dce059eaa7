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

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ownerfi/dealflow/model"
	"github.com/sirupsen/logrus"
	"github.com/typesense/typesense-go/typesense"
	"github.com/typesense/typesense-go/typesense/api"
)

const (
	CollectionListings  = "listings"
	CollectionWorkflows = "workflows"
)

// CollectionConfig holds configuration for a specific collection.
type CollectionConfig struct {
	Schema     *api.CollectionSchema
	IDField    string
	TimeFields []string
}

var collectionConfigs map[string]CollectionConfig

func init() {
	collectionConfigs = map[string]CollectionConfig{
		CollectionListings: {
			Schema:     getListingSchema(),
			IDField:    "listing_id",
			TimeFields: []string{"created_at", "updated_at"},
		},
		CollectionWorkflows: {
			Schema:     getWorkflowSchema(),
			IDField:    "workflow_key",
			TimeFields: []string{"created_at", "updated_at", "status_changed_at"},
		},
	}
}

// TypesenseClient wraps the Typesense client and provides methods to interact with it.
type TypesenseClient struct {
	Client *typesense.Client
}

// NewTypesenseClient initializes and returns a new Typesense client instance.
func NewTypesenseClient(apiKey string, hosts []string) *TypesenseClient {
	client := typesense.NewClient(
		typesense.WithServer(hosts[0]),
		typesense.WithAPIKey(apiKey),
		typesense.WithConnectionTimeout(5*time.Second),
		typesense.WithCircuitBreakerMaxRequests(50),
		typesense.WithCircuitBreakerInterval(2*time.Minute),
		typesense.WithCircuitBreakerTimeout(1*time.Minute),
	)
	return &TypesenseClient{Client: client}
}

// EnsureCollectionsExist creates any missing collection from the latest schema.
func (t *TypesenseClient) EnsureCollectionsExist(ctx context.Context) error {
	for name, config := range collectionConfigs {
		if _, err := t.CreateCollection(ctx, config.Schema); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
	}
	return nil
}

// CreateCollection creates a collection in Typesense based on the provided schema.
// If the collection already exists, it will return without error.
func (t *TypesenseClient) CreateCollection(ctx context.Context, schema *api.CollectionSchema) (*api.CollectionResponse, error) {
	resp, err := t.Client.Collections().Create(ctx, schema)
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return nil, nil
		}
		return nil, err
	}
	return resp, nil
}

// Search performs a search query on a specific collection with the provided search parameters.
func (t *TypesenseClient) Search(ctx context.Context, collection string, searchParams *api.SearchCollectionParams) (*api.SearchResult, error) {
	if _, ok := collectionConfigs[collection]; !ok {
		return nil, fmt.Errorf("unknown collection: %s", collection)
	}
	return t.Client.Collection(collection).Documents().Search(ctx, searchParams)
}

// IndexListing upserts a saved listing.
func (t *TypesenseClient) IndexListing(ctx context.Context, l model.Listing) error {
	data, err := ListingDocument(l)
	if err != nil {
		return err
	}
	return t.HandleNotification(ctx, CollectionListings, data)
}

// IndexWorkflow upserts a workflow row.
func (t *TypesenseClient) IndexWorkflow(ctx context.Context, rec model.WorkflowRecord) error {
	data, err := WorkflowDocument(rec)
	if err != nil {
		return err
	}
	return t.HandleNotification(ctx, CollectionWorkflows, data)
}

// HandleNotification normalizes data for the collection's schema and upserts it.
func (t *TypesenseClient) HandleNotification(ctx context.Context, collection string, data map[string]interface{}) error {
	config, ok := collectionConfigs[collection]
	if !ok {
		return fmt.Errorf("unknown collection: %s", collection)
	}

	if err := processMetadata(data); err != nil {
		return err
	}
	ensureSchemaFields(config, data)
	normalizeTimeFields(config, data)

	return t.upsertDocument(ctx, collection, config.IDField, data)
}

// ListingDocument flattens a listing into its search document.
func ListingDocument(l model.Listing) (map[string]interface{}, error) {
	data, err := toMap(l)
	if err != nil {
		return nil, err
	}
	data["created_at"] = l.CreatedAt
	data["updated_at"] = l.UpdatedAt
	if l.Estimate == nil {
		delete(data, "estimate")
	}
	if l.FinancingType != nil {
		data["financing_type"] = string(*l.FinancingType)
	}
	for _, k := range []string{"negative_financing", "owner_finance_keywords", "needs_work_keywords", "all_financing_types", "primary_owner_finance_keyword"} {
		delete(data, k)
	}
	for k, v := range data {
		if v == nil {
			delete(data, k)
		}
	}
	return data, nil
}

// WorkflowDocument flattens a workflow row. Workflow IDs are only unique per
// brand, so the document ID combines both.
func WorkflowDocument(rec model.WorkflowRecord) (map[string]interface{}, error) {
	data, err := toMap(rec)
	if err != nil {
		return nil, err
	}
	data["workflow_key"] = rec.Brand + ":" + rec.WorkflowID
	data["created_at"] = rec.CreatedAt
	data["updated_at"] = rec.UpdatedAt
	data["status_changed_at"] = rec.StatusChangedAt
	delete(data, "failed_at")
	delete(data, "completed_at")
	for k, v := range data {
		if v == nil {
			delete(data, k)
		}
	}
	return data, nil
}

func toMap(v interface{}) (map[string]interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var data map[string]interface{}
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// processMetadata handles metadata field normalization for object schemas
func processMetadata(data map[string]interface{}) error {
	if metaData, ok := data["meta_data"]; ok {
		if metaData == nil {
			data["meta_data"] = make(map[string]interface{})
		} else if _, ok := metaData.(map[string]interface{}); !ok {
			jsonString, err := json.Marshal(metaData)
			if err != nil {
				return fmt.Errorf("failed to marshal meta_data: %w", err)
			}
			data["meta_data"] = map[string]interface{}{"value": string(jsonString)}
		}
	}
	return nil
}

// ensureSchemaFields ensures all required schema fields are present with default values
func ensureSchemaFields(config CollectionConfig, data map[string]interface{}) {
	optionalFieldMap := make(map[string]bool)
	for _, field := range config.Schema.Fields {
		if field.Optional != nil && *field.Optional {
			optionalFieldMap[field.Name] = true
		}
	}

	for _, field := range config.Schema.Fields {
		if _, ok := data[field.Name]; !ok && !optionalFieldMap[field.Name] {
			data[field.Name] = getDefaultValue(field.Type)
		}
	}

	for key, value := range data {
		if optionalFieldMap[key] {
			if strVal, ok := value.(string); ok && strVal == "" {
				delete(data, key)
			}
		}
	}
}

// normalizeTimeFields converts time fields to Unix timestamps
func normalizeTimeFields(config CollectionConfig, data map[string]interface{}) {
	for _, field := range config.TimeFields {
		fieldValue, ok := data[field]
		if !ok {
			continue
		}
		switch v := fieldValue.(type) {
		case time.Time:
			data[field] = v.Unix()
		case string:
			if parsed, err := time.Parse(time.RFC3339Nano, v); err == nil {
				data[field] = parsed.Unix()
			} else {
				data[field] = int64(0)
			}
		case int64:
		case float64:
			data[field] = int64(v)
		default:
			data[field] = int64(0)
		}
	}
}

func (t *TypesenseClient) upsertDocument(ctx context.Context, collection, idField string, data map[string]interface{}) error {
	id, ok := data[idField].(string)
	if !ok || id == "" {
		return fmt.Errorf("document for %s has no %s", collection, idField)
	}
	data["id"] = id
	if _, err := t.Client.Collection(collection).Documents().Upsert(ctx, data); err != nil {
		return fmt.Errorf("failed to upsert document in Typesense: %w", err)
	}
	return nil
}

// MigrateTypeSenseSchema adds fields that exist in the latest schema but not
// in the deployed collection.
func (t *TypesenseClient) MigrateTypeSenseSchema(ctx context.Context, collectionName string) error {
	config, ok := collectionConfigs[collectionName]
	if !ok {
		return fmt.Errorf("unknown collection: %s", collectionName)
	}

	collection := t.Client.Collection(collectionName)
	current, err := collection.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve current schema: %w", err)
	}

	newFields := compareSchemas(&api.CollectionSchema{Name: current.Name, Fields: current.Fields}, config.Schema)
	for _, field := range newFields {
		if _, err := collection.Update(ctx, &api.CollectionUpdateSchema{Fields: []api.Field{field}}); err != nil {
			return fmt.Errorf("failed to add field %s: %w", field.Name, err)
		}
		logrus.Infof("Added new field %s to collection %s", field.Name, collectionName)
	}
	return nil
}

// compareSchemas returns the fields of newSchema missing from oldSchema.
func compareSchemas(oldSchema, newSchema *api.CollectionSchema) []api.Field {
	var newFields []api.Field
	oldFieldMap := make(map[string]bool)
	for _, field := range oldSchema.Fields {
		oldFieldMap[field.Name] = true
	}
	for _, field := range newSchema.Fields {
		if !oldFieldMap[field.Name] {
			newFields = append(newFields, field)
		}
	}
	return newFields
}

// getDefaultValue returns the default value for a given field type in Typesense.
func getDefaultValue(fieldType string) interface{} {
	switch fieldType {
	case "string":
		return ""
	case "int32", "int64":
		return int64(0)
	case "float":
		return float64(0)
	case "bool":
		return false
	case "string[]":
		return []string{}
	default:
		return nil
	}
}

func getListingSchema() *api.CollectionSchema {
	facet := true
	optional := true
	sortBy := "updated_at"
	return &api.CollectionSchema{
		Name: CollectionListings,
		Fields: []api.Field{
			{Name: "listing_id", Type: "string"},
			{Name: "source", Type: "string", Facet: &facet},
			{Name: "address", Type: "string"},
			{Name: "city", Type: "string", Facet: &facet},
			{Name: "state", Type: "string", Facet: &facet},
			{Name: "zip_code", Type: "string", Facet: &facet},
			{Name: "price", Type: "float"},
			{Name: "estimate", Type: "float", Optional: &optional},
			{Name: "description", Type: "string"},
			{Name: "deal_types", Type: "string[]", Facet: &facet},
			{Name: "is_owner_finance", Type: "bool", Facet: &facet},
			{Name: "is_cash_deal", Type: "bool", Facet: &facet},
			{Name: "needs_work", Type: "bool", Facet: &facet},
			{Name: "financing_type", Type: "string", Facet: &facet, Optional: &optional},
			{Name: "financing_display_label", Type: "string", Facet: &facet},
			{Name: "cash_deal_reason", Type: "string", Facet: &facet, Optional: &optional},
			{Name: "discount_percentage", Type: "float", Optional: &optional},
			{Name: "tables_version", Type: "string", Facet: &facet},
			{Name: "created_at", Type: "int64"},
			{Name: "updated_at", Type: "int64"},
			{Name: "meta_data", Type: "object", Optional: &optional},
		},
		DefaultSortingField: &sortBy,
		EnableNestedFields:  &optional,
	}
}

func getWorkflowSchema() *api.CollectionSchema {
	facet := true
	optional := true
	sortBy := "status_changed_at"
	return &api.CollectionSchema{
		Name: CollectionWorkflows,
		Fields: []api.Field{
			{Name: "workflow_key", Type: "string"},
			{Name: "workflow_id", Type: "string"},
			{Name: "brand", Type: "string", Facet: &facet},
			{Name: "status", Type: "string", Facet: &facet},
			{Name: "failed_stage", Type: "string", Facet: &facet, Optional: &optional},
			{Name: "error", Type: "string", Optional: &optional},
			{Name: "retryable", Type: "bool", Facet: &facet},
			{Name: "attempts", Type: "int32", Facet: &facet},
			{Name: "created_at", Type: "int64"},
			{Name: "updated_at", Type: "int64"},
			{Name: "status_changed_at", Type: "int64"},
			{Name: "meta_data", Type: "object", Optional: &optional},
		},
		DefaultSortingField: &sortBy,
		EnableNestedFields:  &optional,
	}
}
