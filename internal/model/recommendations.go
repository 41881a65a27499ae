package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ParseRecommendations decodes the stored recommendations payload: a JSON
// array whose items are either {title, description} objects or plain
// strings. Empty payloads and non-array JSON yield no recommendations.
func ParseRecommendations(raw string) ([]Recommendation, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		var other any
		if json.Unmarshal([]byte(raw), &other) == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("parse recommendations: %w", err)
	}
	out := make([]Recommendation, 0, len(items))
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '{' {
			var rec Recommendation
			if err := json.Unmarshal(item, &rec); err != nil {
				return nil, fmt.Errorf("parse recommendation: %w", err)
			}
			if rec.Description == "" {
				rec.Description = string(item)
			}
			out = append(out, rec)
			continue
		}
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			s = string(item)
		}
		out = append(out, Recommendation{Description: s})
	}
	return out, nil
}
