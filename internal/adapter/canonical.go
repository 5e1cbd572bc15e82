package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"reelforge/internal/segment"
)

const (
	// DefaultSpanSeconds is used when a tool reports no usable end time.
	DefaultSpanSeconds = 10.0
	// DefaultScore is assigned when a tool reports neither score nor relevanceScore.
	DefaultScore = 0.8
	// UnknownStrategy tags segments whose tool did not name a strategy.
	UnknownStrategy = "unknown"
)

// Keys that tools use to wrap their item lists, in lookup order.
var listKeys = []string{"segments", "highlights", "clips", "cuts", "results", "items", "data"}

// Canonicalizer maps raw tool output into segments.
type Canonicalizer struct {
	DefaultSpan float64
}

// Canonicalize decodes raw and maps every object item into a Segment. It
// fails when raw is not valid JSON or an item's times cannot form a range.
func (c Canonicalizer) Canonicalize(raw json.RawMessage) ([]segment.Segment, error) {
	items, err := rawItems(raw)
	if err != nil {
		return nil, err
	}
	out := make([]segment.Segment, 0, len(items))
	for idx, item := range items {
		seg, err := c.normalize(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", idx, err)
		}
		out = append(out, seg)
	}
	return out, nil
}

func (c Canonicalizer) span() float64 {
	if c.DefaultSpan > 0 && !math.IsInf(c.DefaultSpan, 0) {
		return c.DefaultSpan
	}
	return DefaultSpanSeconds
}

func (c Canonicalizer) normalize(item map[string]any) (segment.Segment, error) {
	start, ok := firstNumber(item, "startTime", "start")
	if !ok || start < 0 {
		start = 0
	}
	end, ok := firstNumber(item, "endTime", "end")
	if !ok || end <= start {
		end = start + c.span()
	}
	if end <= start {
		end = math.Nextafter(start, math.Inf(1))
	}
	score, ok := firstNumber(item, "score", "relevanceScore")
	if !ok {
		score = DefaultScore
	}
	strategy, ok := firstString(item, "strategy", "strategyTag")
	if !ok || strings.TrimSpace(strategy) == "" {
		strategy = UnknownStrategy
	}
	path, _ := firstString(item, "filePath", "outputPath")
	return segment.New(strings.TrimSpace(path), start, end, score, strategy)
}

// rawItems extracts the list of object items from raw. Arrays are used as-is,
// objects are searched for a known list key, and a single object carrying a
// path is treated as a one-item list.
func rawItems(raw json.RawMessage) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("decode tool output: %w", err)
	}
	return collectItems(value, 0), nil
}

func collectItems(value any, depth int) []map[string]any {
	switch typed := value.(type) {
	case []any:
		out := make([]map[string]any, 0, len(typed))
		for _, entry := range typed {
			if obj, ok := entry.(map[string]any); ok {
				out = append(out, obj)
			}
		}
		return out
	case map[string]any:
		for _, key := range listKeys {
			if list, ok := typed[key].([]any); ok {
				return collectItems(list, depth)
			}
		}
		if _, ok := firstString(typed, "filePath", "outputPath"); ok {
			return []map[string]any{typed}
		}
		if depth == 0 {
			if nested, ok := typed["result"]; ok {
				return collectItems(nested, depth+1)
			}
		}
	}
	return nil
}

// firstNumber returns the first key whose value is non-null. Numeric strings
// are accepted; a present but non-numeric value counts as missing.
func firstNumber(item map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		value, ok := item[key]
		if !ok || value == nil {
			continue
		}
		return toFloat(value)
	}
	return 0, false
}

func toFloat(value any) (float64, bool) {
	var (
		f   float64
		err error
	)
	switch typed := value.(type) {
	case json.Number:
		f, err = strconv.ParseFloat(typed.String(), 64)
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(typed), 64)
	case float64:
		f = typed
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// firstString returns the first key whose value is a non-null string.
func firstString(item map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		value, ok := item[key]
		if !ok || value == nil {
			continue
		}
		if s, ok := value.(string); ok {
			return s, true
		}
	}
	return "", false
}

// DeliverableURL extracts the published location of a rendered video.
func DeliverableURL(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", false
	}
	var value any
	if err := json.Unmarshal(trimmed, &value); err != nil {
		return "", false
	}
	return deliverableFrom(value, 0)
}

func deliverableFrom(value any, depth int) (string, bool) {
	switch typed := value.(type) {
	case string:
		s := strings.TrimSpace(typed)
		return s, usableLocation(s)
	case map[string]any:
		for _, key := range []string{"deliverableUrl", "url", "outputUrl", "cdnUrl", "publicUrl", "outputPath", "filePath"} {
			if s, ok := typed[key].(string); ok && usableLocation(strings.TrimSpace(s)) {
				return strings.TrimSpace(s), true
			}
		}
		if depth == 0 {
			if nested, ok := typed["result"]; ok {
				return deliverableFrom(nested, depth+1)
			}
		}
	}
	return "", false
}

func usableLocation(s string) bool {
	switch strings.ToLower(s) {
	case "", "undefined", "null":
		return false
	default:
		return true
	}
}
