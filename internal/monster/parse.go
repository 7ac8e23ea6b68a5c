package monster

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// reasoningBlock matches the chain-of-thought preamble emitted by reasoning
// models such as deepseek-r1.
var reasoningBlock = regexp.MustCompile(`(?is)<think>.*?</think>`)

// StripReasoning removes <think>…</think> blocks and surrounding whitespace
// from a model reply. An unterminated <think> drops everything after it.
func StripReasoning(text string) string {
	text = reasoningBlock.ReplaceAllString(text, "")
	if i := strings.Index(strings.ToLower(text), "<think>"); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

// ParseResponse extracts the JSON object from a model reply and decodes it
// into a loosely-typed tree suitable for [Validate]. Reasoning blocks, Markdown
// code fences and prose before or after the object are ignored. Numbers are
// decoded as json.Number.
//
// The reply is not repaired: a truncated or otherwise malformed object is a
// [*ValidationError] on the "response" field.
func ParseResponse(text string) (any, error) {
	text = StripReasoning(text)
	if text == "" {
		return nil, invalid("response", Empty, "model returned no content")
	}

	// Candidates start at a '{'. A candidate that does not decode is skipped
	// as a whole, so braces in leading prose are passed over but a nested
	// object is never taken out of a broken outer one.
	var lastErr error
	for off := 0; off < len(text); {
		i := strings.IndexByte(text[off:], '{')
		if i < 0 {
			break
		}
		start := off + i
		tree, err := decodeTree([]byte(text[start:]))
		if err == nil {
			return tree, nil
		}
		lastErr = err
		off = objectEnd(text, start)
	}

	if lastErr != nil {
		return nil, invalid("response", WrongType, "no decodable JSON object: %v", lastErr)
	}
	return nil, invalid("response", WrongType, "no JSON object found")
}

// objectEnd returns the offset just past the '}' balancing the '{' at start,
// or len(text) when the braces never balance. Braces inside JSON strings are
// ignored.
func objectEnd(text string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(text)
}

// decodeTree decodes the first JSON value in data, ignoring anything after it.
func decodeTree(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
