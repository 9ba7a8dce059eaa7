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
	model2 "github.com/ownerfi/dealflow/api/model"
)

// RecoverStuckWorkflows runs a recovery pass now instead of waiting for the
// scheduled one. A pass already running elsewhere answers 409.
func (a Api) RecoverStuckWorkflows(c *gin.Context) {
	var req model2.RunPass
	_ = c.ShouldBindJSON(&req)

	report, err := a.dealflow.RecoverStuckWorkflows(c.Request.Context(), req.Brands...)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// RetryFailedWorkflows moves retryable failed workflows back to pending.
func (a Api) RetryFailedWorkflows(c *gin.Context) {
	var req model2.RunPass
	_ = c.ShouldBindJSON(&req)

	report, err := a.dealflow.RetryFailedWorkflows(c.Request.Context(), req.Brands...)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
