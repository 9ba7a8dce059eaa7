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

package notification

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ownerfi/dealflow/config"
	"github.com/ownerfi/dealflow/internal/request"
	"github.com/sirupsen/logrus"
)

// Field is one labelled line of a Slack message.
type Field struct {
	Label string
	Value string
}

func slackMessage(title string, fields []Field, at time.Time) map[string]interface{} {
	blocks := []interface{}{
		map[string]interface{}{
			"type": "header",
			"text": map[string]interface{}{"type": "plain_text", "text": title, "emoji": true},
		},
	}
	for _, f := range fields {
		blocks = append(blocks, map[string]interface{}{
			"type": "section",
			"fields": []interface{}{
				map[string]interface{}{"type": "mrkdwn", "text": fmt.Sprintf("*%s:*\n%s", f.Label, f.Value)},
			},
		})
	}
	blocks = append(blocks, map[string]interface{}{
		"type": "context",
		"elements": []interface{}{
			map[string]interface{}{"type": "mrkdwn", "text": at.Format(time.RFC822)},
		},
	})
	return map[string]interface{}{"blocks": blocks}
}

// Send posts a message to the Slack webhook at url.
func Send(ctx context.Context, url, title string, fields []Field) error {
	_, err := request.PostJSON(ctx, url, slackMessage(title, fields, time.Now()), nil, nil)
	return err
}

func webhookURL() string {
	conf, err := config.Fetch()
	if err != nil {
		return ""
	}
	return conf.Notification.Slack.WebhookUrl
}

// SlackNotification reports err to the configured Slack webhook.
func SlackNotification(err error) {
	url := webhookURL()
	if url == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if sendErr := Send(ctx, url, "Error From Dealflow 🐞", []Field{{Label: "Error", Value: err.Error()}}); sendErr != nil {
		logrus.Warnf("slack notification failed: %v", sendErr)
	}
}

// NotifyError logs systemError and forwards it to Slack without blocking the caller.
func NotifyError(systemError error) {
	logrus.Error(systemError)
	if webhookURL() == "" {
		return
	}
	go SlackNotification(systemError)
}

// NotifySummary posts a titled set of counters, such as the outcome of a
// recovery pass. Zero counters are left out.
func NotifySummary(title string, counts map[string]int, problems []string) {
	url := webhookURL()
	if url == "" {
		return
	}
	fields := SummaryFields(counts, problems)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := Send(ctx, url, title, fields); err != nil {
			logrus.Warnf("slack summary failed: %v", err)
		}
	}()
}

// SummaryFields renders counters in a stable order followed by at most ten problems.
func SummaryFields(counts map[string]int, problems []string) []Field {
	keys := make([]string, 0, len(counts))
	for k, v := range counts {
		if v != 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	fields := make([]Field, 0, len(keys)+1)
	for _, k := range keys {
		fields = append(fields, Field{Label: k, Value: fmt.Sprint(counts[k])})
	}
	if len(problems) > 0 {
		shown := problems
		if len(shown) > 10 {
			shown = shown[:10]
		}
		value := ""
		for _, p := range shown {
			value += "• " + p + "\n"
		}
		if more := len(problems) - len(shown); more > 0 {
			value += fmt.Sprintf("… and %d more", more)
		}
		fields = append(fields, Field{Label: "Problems", Value: value})
	}
	return fields
}
