// Package loki pushes log lines to Grafana Loki. The alert worker uses it as the sink
// for security alert notifications.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// PushRequest is the Loki push API v1 request body.
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is one label set with its log entries.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // each entry is [timestamp_ns, log_line]
}

// labelSanitize strips characters Loki label values cannot carry.
var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// alertFields picks the label-worthy fields out of a serialized security alert.
type alertFields struct {
	AlertType string `json:"alert_type"`
	Severity  string `json:"severity"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// PushAlertJSON parses an alert JSON payload (the Kafka message value), derives stream
// labels and the event timestamp from it, and pushes the raw line to Loki. A payload that
// does not parse is still pushed, with the current time and no extra labels.
func PushAlertJSON(ctx context.Context, baseURL string, rawJSON []byte) error {
	line := string(rawJSON)
	labels := map[string]string{}
	ts := time.Now().UTC()
	var fields alertFields
	if err := json.Unmarshal(rawJSON, &fields); err == nil {
		if fields.AlertType != "" {
			labels["alert_type"] = fields.AlertType
		}
		if fields.Severity != "" {
			labels["severity"] = fields.Severity
		}
		if fields.Status != "" {
			labels["status"] = fields.Status
		}
		if fields.CreatedAt != "" {
			if t, err := time.Parse(time.RFC3339Nano, fields.CreatedAt); err == nil {
				ts = t
			} else if t, err := time.Parse(time.RFC3339, fields.CreatedAt); err == nil {
				ts = t
			}
		}
	}
	return Push(ctx, baseURL, ts, line, labels)
}

// Push sends one log line to Loki at baseURL (e.g. http://localhost:3100). labels join
// the fixed job label on the stream. Returns an error on transport failure or a non-2xx
// response.
func Push(ctx context.Context, baseURL string, timestamp time.Time, line string, labels map[string]string) error {
	if baseURL == "" {
		return fmt.Errorf("loki: base URL is empty")
	}
	streamLabels := make(map[string]string, len(labels)+1)
	streamLabels["job"] = "sessionguard"
	for k, v := range labels {
		sanitized := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_")
		if sanitized != "" {
			streamLabels[k] = sanitized
		}
	}
	body := PushRequest{
		Streams: []Stream{{
			Stream: streamLabels,
			Values: [][]string{{fmt.Sprintf("%d", timestamp.UnixNano()), line}},
		}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := strings.TrimSuffix(baseURL, "/") + "/loki/api/v1/push"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}
