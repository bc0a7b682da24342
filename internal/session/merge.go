package session

import (
	"encoding/json"
	"fmt"

	"genstudio/internal/models"
)

// mergeProfile overlays the JSON object in patch onto base. Keys missing
// from patch, or set to null, keep their current value; nested objects are
// merged key by key. base is not modified.
func mergeProfile(base *models.UserProfile, patch json.RawMessage) (*models.UserProfile, error) {
	dst := map[string]interface{}{}
	if base != nil {
		raw, err := json.Marshal(base)
		if err != nil {
			return nil, fmt.Errorf("failed to encode profile: %w", err)
		}
		if err := json.Unmarshal(raw, &dst); err != nil {
			return nil, fmt.Errorf("failed to decode profile: %w", err)
		}
	}

	src := map[string]interface{}{}
	if len(patch) > 0 && string(patch) != "null" {
		if err := json.Unmarshal(patch, &src); err != nil {
			return nil, fmt.Errorf("failed to decode profile update: %w", err)
		}
	}
	src = unwrapUser(src)

	deepMerge(dst, src)

	raw, err := json.Marshal(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to encode merged profile: %w", err)
	}
	var merged models.UserProfile
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, fmt.Errorf("failed to decode merged profile: %w", err)
	}
	return &merged, nil
}

// unwrapUser accepts both a bare profile and {"user": {...}}.
func unwrapUser(src map[string]interface{}) map[string]interface{} {
	if len(src) != 1 {
		return src
	}
	if inner, ok := src["user"].(map[string]interface{}); ok {
		return inner
	}
	return src
}

func deepMerge(dst, src map[string]interface{}) {
	for k, v := range src {
		if v == nil {
			continue
		}
		srcMap, srcIsMap := v.(map[string]interface{})
		dstMap, dstIsMap := dst[k].(map[string]interface{})
		if srcIsMap && dstIsMap {
			deepMerge(dstMap, srcMap)
			continue
		}
		dst[k] = v
	}
}
