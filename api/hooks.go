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

	"github.com/gin-gonic/gin"
	"github.com/ownerfi/dealflow/internal/apierror"
	"github.com/ownerfi/dealflow/internal/hooks"
	"github.com/ownerfi/dealflow/workflow"
)

// RegisterHook registers a trigger fired when a workflow enters a status.
func (a Api) RegisterHook(c *gin.Context) {
	var hook hooks.Hook
	if err := c.ShouldBindJSON(&hook); err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrInvalidInput, "invalid hook data", err.Error()))
		return
	}

	if err := a.dealflow.Hooks().RegisterHook(c.Request.Context(), &hook); err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrInvalidInput, "failed to register hook", err.Error()))
		return
	}

	c.JSON(http.StatusCreated, hook)
}

// UpdateHook replaces an existing trigger.
func (a Api) UpdateHook(c *gin.Context) {
	hookID := c.Param("id")
	var hook hooks.Hook
	if err := c.ShouldBindJSON(&hook); err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrInvalidInput, "invalid hook data", err.Error()))
		return
	}

	if err := a.dealflow.Hooks().UpdateHook(c.Request.Context(), hookID, &hook); err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrInvalidInput, "failed to update hook", err.Error()))
		return
	}

	c.JSON(http.StatusOK, hook)
}

// GetHook retrieves a trigger by ID.
func (a Api) GetHook(c *gin.Context) {
	hookID := c.Param("id")
	hook, err := a.dealflow.Hooks().GetHook(c.Request.Context(), hookID)
	if err != nil {
		c.JSON(http.StatusNotFound, apierror.NewAPIError(apierror.ErrNotFound, "hook not found", err.Error()))
		return
	}

	c.JSON(http.StatusOK, hook)
}

// ListHooks retrieves the triggers registered for a status.
func (a Api) ListHooks(c *gin.Context) {
	status, err := workflow.ParseStatus(c.Query("status"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrInvalidInput, "status query parameter is required", err.Error()))
		return
	}
	hooks, err := a.dealflow.Hooks().ListHooks(c.Request.Context(), status)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrInvalidInput, "failed to list hooks", err.Error()))
		return
	}

	c.JSON(http.StatusOK, hooks)
}

// DeleteHook removes a trigger by ID.
func (a Api) DeleteHook(c *gin.Context) {
	hookID := c.Param("id")
	if err := a.dealflow.Hooks().DeleteHook(c.Request.Context(), hookID); err != nil {
		c.JSON(http.StatusBadRequest, apierror.NewAPIError(apierror.ErrInvalidInput, "failed to delete hook", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "hook deleted successfully"})
}
