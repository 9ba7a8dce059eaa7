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
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ownerfi/dealflow"
	"github.com/ownerfi/dealflow/api/middleware"
	"github.com/ownerfi/dealflow/config"
	"github.com/ownerfi/dealflow/internal/apierror"
	"github.com/typesense/typesense-go/typesense/api"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Api struct {
	dealflow *dealflow.Dealflow
	router   *gin.Engine
	reindex  *reindexJob
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/listings/classify", a.ClassifyListing)
	router.POST("/listings", a.CreateListing)
	router.POST("/listings/bulk", a.CreateListings)
	router.GET("/listings", a.GetAllListings)
	router.GET("/listings/:id", a.GetListing)

	router.POST("/workflows", a.EnqueueWorkflow)
	router.GET("/workflows", a.GetAllWorkflows)
	router.GET("/workflows/:brand/:id", a.GetWorkflow)
	router.POST("/workflows/:brand/:id/start", a.StartGeneration)
	router.POST("/workflows/:brand/:id/dispatch", a.DispatchJob)
	router.POST("/workflows/:brand/:id/retry", a.RetryWorkflow)

	router.POST("/webhooks/:service", a.HandleCallback)

	router.POST("/admin/recover", a.RecoverStuckWorkflows)
	router.POST("/admin/retry", a.RetryFailedWorkflows)
	router.POST("/admin/reindex", a.StartReindex)
	router.GET("/admin/reindex", a.GetReindexProgress)

	router.POST("/hooks", a.RegisterHook)
	router.GET("/hooks", a.ListHooks)
	router.GET("/hooks/:id", a.GetHook)
	router.PUT("/hooks/:id", a.UpdateHook)
	router.DELETE("/hooks/:id", a.DeleteHook)

	router.POST("/search/:collection", a.Search)
	return a.router
}

func NewAPI(d *dealflow.Dealflow) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(otelgin.Middleware("dealflow"))
	r.Use(middleware.RateLimit(conf.RateLimit))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuth(conf.Server.SecretKey, "/webhooks/"))
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{dealflow: d, router: r, reindex: &reindexJob{}}
}

// respondWithError writes err with the status its API error code maps to.
func respondWithError(c *gin.Context, err error) {
	c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
}

func (a Api) Search(c *gin.Context) {
	collection, passed := c.Params.Get("collection")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "collection is required. pass id in the route /:collection"})
		return
	}

	var query api.SearchCollectionParams
	if err := c.ShouldBindJSON(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := a.dealflow.Search(c.Request.Context(), collection, &query)
	if err != nil {
		if errors.Is(err, dealflow.ErrSearchDisabled) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}
