package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dtroode/storefront-client/internal/model"
)

const fallbackMessage = "Request failed."

func statusError(status int, path string, body []byte) error {
	switch {
	case status == http.StatusUnauthorized && !IsPublicPath(path):
		return model.ErrAuthExpired
	case status >= 500:
		return &model.ServerError{Status: status, Message: errorMessage(body, http.StatusText(status))}
	default:
		fields := fieldErrors(body)
		return &model.ValidationError{
			Status:  status,
			Message: errorMessage(body, fallbackMessage),
			Fields:  fields,
		}
	}
}

// errorMessage picks detail, then error, then the first field error.
func errorMessage(body []byte, fallback string) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return fallback
	}

	var text string
	if json.Unmarshal(trimmed, &text) == nil && strings.TrimSpace(text) != "" {
		return strings.TrimSpace(text)
	}

	keys, values, ok := orderedObject(trimmed)
	if !ok {
		return fallback
	}

	for _, name := range []string{"detail", "error"} {
		for i, k := range keys {
			if k != name {
				continue
			}
			if msg := firstString(values[i]); msg != "" {
				return msg
			}
		}
	}

	for i, k := range keys {
		msg := firstString(values[i])
		if msg == "" {
			continue
		}
		if k == "non_field_errors" {
			return msg
		}
		return k + ": " + msg
	}

	return fallback
}

// fieldErrors collects every field whose value is a string or list of strings.
func fieldErrors(body []byte) map[string][]string {
	keys, values, ok := orderedObject(bytes.TrimSpace(body))
	if !ok {
		return nil
	}

	fields := make(map[string][]string)
	for i, k := range keys {
		if k == "detail" || k == "error" {
			continue
		}
		var list []string
		if json.Unmarshal(values[i], &list) == nil && len(list) > 0 {
			fields[k] = list
			continue
		}
		var one string
		if json.Unmarshal(values[i], &one) == nil && one != "" {
			fields[k] = []string{one}
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// orderedObject decodes a JSON object keeping key order.
func orderedObject(data []byte) ([]string, []json.RawMessage, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, false
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, false
	}

	var (
		keys   []string
		values []json.RawMessage
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, false
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, false
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, false
		}
		keys = append(keys, key)
		values = append(values, raw)
	}
	return keys, values, true
}

// firstString returns a string value, the first element of a list, or the
// first message nested one object deep.
func firstString(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}

	var list []json.RawMessage
	if json.Unmarshal(raw, &list) == nil {
		for _, item := range list {
			if msg := firstString(item); msg != "" {
				return msg
			}
		}
		return ""
	}

	if keys, values, ok := orderedObject(raw); ok {
		for i := range keys {
			if msg := firstString(values[i]); msg != "" {
				return fmt.Sprintf("%s: %s", keys[i], msg)
			}
		}
	}
	return ""
}
