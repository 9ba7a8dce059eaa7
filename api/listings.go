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

package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	model2 "github.com/ownerfi/dealflow/api/model"
	"github.com/ownerfi/dealflow/classify"
	"github.com/ownerfi/dealflow/model"
)

// ClassifyListing runs the classifier on a description without saving.
func (a Api) ClassifyListing(c *gin.Context) {
	var req model2.ClassifyListing
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateClassifyListing(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	var estimate float64
	if req.Estimate != nil {
		estimate = *req.Estimate
	}
	c.JSON(http.StatusOK, a.dealflow.ClassifyListing(req.Description, req.Price, estimate))
}

// CreateListing classifies a listing and saves it when it qualifies.
//
// Responses:
// - 201 Created: the listing qualified and was saved.
// - 200 OK: the listing did not qualify; the classification is returned.
func (a Api) CreateListing(c *gin.Context) {
	var req model2.CreateListing
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateCreateListing(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	listing, saved, err := a.dealflow.SaveListing(c.Request.Context(), req.ToListing())
	if err != nil {
		respondWithError(c, err)
		return
	}
	if !saved {
		c.JSON(http.StatusOK, listing)
		return
	}
	c.JSON(http.StatusCreated, listing)
}

// CreateListings saves a scraper batch and returns its filter statistics.
func (a Api) CreateListings(c *gin.Context) {
	var req model2.CreateListings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateCreateListings(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	listings := make([]*model.Listing, 0, len(req.Listings))
	for i := range req.Listings {
		listings = append(listings, req.Listings[i].ToListing())
	}
	stats, failed, err := a.dealflow.SaveListings(c.Request.Context(), listings)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats, "failed": failed})
}

func (a Api) GetListing(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.dealflow.GetListing(c.Request.Context(), id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetAllListings lists saved listings, optionally narrowed by deal_type,
// state and city.
func (a Api) GetAllListings(c *gin.Context) {
	limit, offset, err := pagination(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	filter := model.ListingFilter{
		DealType: classify.DealType(c.Query("deal_type")),
		State:    c.Query("state"),
		City:     c.Query("city"),
		Limit:    limit,
		Offset:   offset,
	}
	switch filter.DealType {
	case "", classify.DealTypeOwnerFinance, classify.DealTypeCashDeal:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "deal_type must be owner_finance or cash_deal"})
		return
	}

	resp, err := a.dealflow.ListListings(c.Request.Context(), filter)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func pagination(c *gin.Context) (int, int, error) {
	limit, offset := 20, 0
	var err error
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit <= 0 {
			return 0, 0, errInvalidQuery("limit")
		}
	}
	if v := c.Query("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, errInvalidQuery("offset")
		}
	}
	return limit, offset, nil
}

type errInvalidQuery string

func (e errInvalidQuery) Error() string {
	return "invalid " + string(e) + " query parameter"
}
