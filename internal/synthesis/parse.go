package synthesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Analysis labels, in rendering order.
var analysisSections = []struct {
	key   string
	label string
}{
	{"overall", "Overall Analysis :"},
	{"pace", "\nPace Analysis :"},
	{"heartRate", "\n Heart Rate Analysis"},
	{"caloriesBurned", "\n Calories Burned Analysis :"},
}

var (
	leadingFence  = regexp.MustCompile("^```(?i:json)?\\s*")
	trailingFence = regexp.MustCompile("\\s*```$")
)

// decodeJSON parses the first JSON value in text, keeping numbers as
// json.Number. Anything after that value is ignored.
func decodeJSON(text string) (any, int64, bool) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, 0, false
	}
	return v, dec.InputOffset(), true
}

// decodeDocument parses text as exactly one JSON value.
func decodeDocument(text string) (any, bool) {
	v, end, ok := decodeJSON(text)
	if !ok || strings.TrimSpace(text[end:]) != "" {
		return nil, false
	}
	return v, true
}

// extractEnvelopeText pulls candidates[0].content.parts[0].text out of a
// generateContent response. ok is false when raw is not JSON or the text is absent or null.
func extractEnvelopeText(raw string) (string, bool, error) {
	root, ok := decodeDocument(raw)
	if !ok {
		return "", false, fmt.Errorf("envelope is not valid JSON")
	}
	node, found := lookup(root, "candidates", 0, "content", "parts", 0, "text")
	if !found || node == nil {
		return "", false, nil
	}
	text, scalar := scalarText(node)
	if !scalar {
		return "", false, nil
	}
	return text, true, nil
}

// stripCodeFence removes a leading ``` or ```json fence and a trailing ``` fence.
func stripCodeFence(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = leadingFence.ReplaceAllString(cleaned, "")
	cleaned = trailingFence.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// parsePayload decodes the model's own JSON output. Models sometimes append
// prose after the object, so trailing content is ignored.
func parsePayload(cleaned string) (any, bool) {
	if cleaned == "" {
		return nil, false
	}
	v, _, ok := decodeJSON(cleaned)
	return v, ok
}

type payloadFields struct {
	Analysis     string
	Improvements []string
	Suggestions  []string
	Safety       []string
}

// mapPayload converts a decoded payload into recommendation fields. Missing or
// mistyped sections become empty text or empty lists.
func mapPayload(payload any) payloadFields {
	var analysis strings.Builder
	section, _ := lookup(payload, "analysis")
	for _, s := range analysisSections {
		analysis.WriteString(s.label)
		analysis.WriteString(textAt(section, s.key))
	}

	improvements := []string{}
	eachElement(payload, "improvements", func(item any) {
		improvements = append(improvements, fmt.Sprintf("%s : %s", textAt(item, "area"), textAt(item, "recommendation")))
	})

	suggestions := []string{}
	eachElement(payload, "suggestions", func(item any) {
		suggestions = append(suggestions, fmt.Sprintf("%s : %s", textAt(item, "workout"), textAt(item, "description")))
	})

	safety := []string{}
	eachElement(payload, "safety", func(item any) {
		switch v := item.(type) {
		case string:
			safety = append(safety, v)
		case map[string]any:
			if node, ok := v["text"]; ok && node != nil {
				if text, scalar := scalarText(node); scalar {
					safety = append(safety, text)
				}
			}
		}
	})

	return payloadFields{
		Analysis:     analysis.String(),
		Improvements: improvements,
		Suggestions:  suggestions,
		Safety:       safety,
	}
}

func eachElement(payload any, key string, fn func(any)) {
	node, _ := lookup(payload, key)
	items, ok := node.([]any)
	if !ok {
		return
	}
	for _, item := range items {
		fn(item)
	}
}

// lookup walks object keys (string) and array indexes (int).
func lookup(node any, path ...any) (any, bool) {
	current := node
	for _, step := range path {
		switch key := step.(type) {
		case string:
			obj, ok := current.(map[string]any)
			if !ok {
				return nil, false
			}
			next, found := obj[key]
			if !found {
				return nil, false
			}
			current = next
		case int:
			arr, ok := current.([]any)
			if !ok || key < 0 || key >= len(arr) {
				return nil, false
			}
			current = arr[key]
		default:
			return nil, false
		}
	}
	return current, true
}

// textAt returns the scalar text at key, or "" when missing, null or structured.
func textAt(node any, key string) string {
	value, ok := lookup(node, key)
	if !ok {
		return ""
	}
	text, _ := scalarText(value)
	return text
}

func scalarText(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}

// compact is used in logs to keep multi-line payloads on one line.
func compact(text string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(text)); err != nil {
		return text
	}
	return buf.String()
}
