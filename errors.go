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

package dealflow

import (
	"errors"

	"github.com/ownerfi/dealflow/internal/apierror"
	redlock "github.com/ownerfi/dealflow/internal/lock"
	"github.com/ownerfi/dealflow/workflow"
)

var (
	// ErrQuotaExceeded is returned when a brand used up its calls to a service.
	ErrQuotaExceeded = apierror.APIError{Code: apierror.ErrTooManyRequests, Message: "service quota exceeded"}
	// ErrPassRunning is returned when another process holds the pass lease.
	ErrPassRunning = apierror.APIError{Code: apierror.ErrConflict, Message: "a pass is already running"}
)

// toAPIError maps workflow and lock errors to API errors. The original error
// stays reachable through errors.Is.
func toAPIError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr apierror.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	switch {
	case errors.Is(err, workflow.ErrMissingJobID), errors.Is(err, workflow.ErrMissingOutput), errors.Is(err, workflow.ErrInvalidRecord):
		return apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	case errors.Is(err, workflow.ErrInvalidTransition), errors.Is(err, workflow.ErrAlreadyStarted),
		errors.Is(err, workflow.ErrStaleWrite), errors.Is(err, workflow.ErrUnknownJob):
		return apierror.NewAPIError(apierror.ErrConflict, err.Error(), err)
	case errors.Is(err, redlock.ErrLockHeld):
		return apierror.NewAPIError(apierror.ErrConflict, ErrPassRunning.Message, err)
	}
	return apierror.NewAPIError(apierror.ErrInternalServer, "internal error", err)
}
