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

package model

type CreateWorkflow struct {
	Brand           string                 `json:"brand"`
	SourceArticleID string                 `json:"source_article_id"`
	MetaData        map[string]interface{} `json:"meta_data"`
}

// DispatchJob carries the external job started for a workflow stage.
type DispatchJob struct {
	JobID string `json:"job_id"`
}

// Callback is the body external services post to /webhooks/:service.
type Callback struct {
	Brand     string `json:"brand"`
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	OutputURL string `json:"output_url"`
	Error     string `json:"error"`
}

// RunPass selects the brands a recovery or retry pass covers. Empty means all.
type RunPass struct {
	Brands []string `json:"brands"`
}
