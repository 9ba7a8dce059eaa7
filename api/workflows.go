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
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	model2 "github.com/ownerfi/dealflow/api/model"
	"github.com/ownerfi/dealflow/model"
	"github.com/ownerfi/dealflow/workflow"
)

func (a Api) EnqueueWorkflow(c *gin.Context) {
	var req model2.CreateWorkflow
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateCreateWorkflow(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	item, err := a.dealflow.EnqueueWorkflow(c.Request.Context(), req.Brand, req.SourceArticleID, req.MetaData)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item.ToRecord())
}

func (a Api) GetWorkflow(c *gin.Context) {
	item, err := a.dealflow.GetWorkflow(c.Request.Context(), c.Param("brand"), c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, item.ToRecord())
}

// GetAllWorkflows lists workflow items, optionally narrowed by brand and status.
func (a Api) GetAllWorkflows(c *gin.Context) {
	limit, offset, err := pagination(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := a.dealflow.ListWorkflows(c.Request.Context(), model.WorkflowFilter{
		Brand:  c.Query("brand"),
		Status: c.Query("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// StartGeneration records the generation job of a pending workflow.
//
// Responses:
// - 200 OK: the workflow is now in stage1_processing.
// - 409 Conflict: a generation job already exists or the workflow moved on.
// - 429 Too Many Requests: the brand used up its generation quota.
func (a Api) StartGeneration(c *gin.Context) {
	a.dispatch(c, a.dealflow.StartGeneration)
}

// DispatchJob records the job started for the stage the workflow waits on.
func (a Api) DispatchJob(c *gin.Context) {
	a.dispatch(c, a.dealflow.DispatchJob)
}

type dispatchFunc func(ctx context.Context, brand, id, jobID string) (workflow.Item, error)

func (a Api) dispatch(c *gin.Context, fn dispatchFunc) {
	var req model2.DispatchJob
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateDispatchJob(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	item, err := fn(c.Request.Context(), c.Param("brand"), c.Param("id"), req.JobID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, item.ToRecord())
}

// RetryWorkflow moves a failed workflow back to pending.
func (a Api) RetryWorkflow(c *gin.Context) {
	item, err := a.dealflow.RetryWorkflow(c.Request.Context(), c.Param("brand"), c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, item.ToRecord())
}

// HandleCallback applies a job status notification from an external service.
// Duplicates are acknowledged with 200 so the sender stops retrying.
func (a Api) HandleCallback(c *gin.Context) {
	var req model2.Callback
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateCallback(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	result, err := a.dealflow.HandleCallback(c.Request.Context(), c.Param("service"), req.ToCallback())
	if err != nil {
		respondWithError(c, err)
		return
	}
	resp := gin.H{"duplicate": result.Duplicate, "action": result.Action}
	if result.Workflow != nil {
		resp["workflow"] = result.Workflow.ToRecord()
	}
	c.JSON(http.StatusOK, resp)
}
