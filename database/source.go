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

package database

import (
	"context"
	"fmt"

	"github.com/ownerfi/dealflow/internal/apierror"
)

// UnlockSource marks a source article as unprocessed so the article picker
// can select it again. An unknown article is not an error.
func (d Datasource) UnlockSource(ctx context.Context, brand, sourceArticleID string) error {
	ctx, span := tracer.Start(ctx, "Unlocking source article")
	defer span.End()

	_, err := d.Conn.ExecContext(ctx, `
		UPDATE dealflow.source_articles
		SET processed = FALSE, workflow_id = NULL, updated_at = NOW()
		WHERE brand = $1 AND article_id = $2
	`, brand, sourceArticleID)
	if err != nil {
		span.RecordError(err)
		return apierror.NewAPIError(apierror.ErrInternalServer, fmt.Sprintf("Failed to unlock source article %s", sourceArticleID), err)
	}
	return nil
}
