package inference

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NormalizeChunk maps one raw upstream chunk to at most one token.
//
// Recognized shapes, after unwrapping an optional "output" envelope:
//
//	{"choices":[{"tokens":["a","b"]}]}      -> "ab"
//	{"choices":[{"delta":{"content":"x"}}]} -> "x"
//	{"choices":[{"text":"x"}]}              -> "x"
//	{"text":"x"}                            -> "x"
//	"x" (string payload)                    -> "x"
//
// Anything else yields nothing. A non-nil error means the chunk was
// malformed; callers skip it and keep reading.
func NormalizeChunk(chunk any) (string, bool, error) {
	data, err := decodeChunk(chunk)
	if err != nil {
		return "", false, err
	}
	if obj, ok := data.(map[string]any); ok {
		if out, has := obj["output"]; has {
			data = out
		}
	}

	switch v := data.(type) {
	case string:
		return v, v != "", nil
	case map[string]any:
		return fromObject(v)
	default:
		return "", false, nil
	}
}

func fromObject(obj map[string]any) (string, bool, error) {
	if raw, has := obj["choices"]; has && raw != nil {
		choices, ok := raw.([]any)
		if !ok {
			return "", false, fmt.Errorf("choices: expected list, got %T", raw)
		}
		if len(choices) > 0 {
			choice, ok := choices[0].(map[string]any)
			if !ok {
				return "", false, fmt.Errorf("choices[0]: expected object, got %T", choices[0])
			}
			if tok, matched, err := joinTokens(choice["tokens"]); err != nil || matched {
				return tok, tok != "", err
			}
			if delta, ok := choice["delta"].(map[string]any); ok {
				if s, _ := delta["content"].(string); s != "" {
					return s, true, nil
				}
			}
			if s, _ := choice["text"].(string); s != "" {
				return s, true, nil
			}
		}
	}
	if s, ok := obj["text"].(string); ok && s != "" {
		return s, true, nil
	}
	return "", false, nil
}

// joinTokens reports matched=true for a non-empty tokens list.
func joinTokens(raw any) (string, bool, error) {
	if raw == nil {
		return "", false, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return "", false, fmt.Errorf("tokens: expected list, got %T", raw)
	}
	if len(list) == 0 {
		return "", false, nil
	}
	var sb strings.Builder
	for i, t := range list {
		s, ok := t.(string)
		if !ok {
			return "", false, fmt.Errorf("tokens[%d]: expected string, got %T", i, t)
		}
		sb.WriteString(s)
	}
	return sb.String(), true, nil
}

func decodeChunk(chunk any) (any, error) {
	var raw []byte
	switch v := chunk.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		return chunk, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode chunk: %w", err)
	}
	return out, nil
}
