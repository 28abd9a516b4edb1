// ABOUTME: Extracts an embedded command from semi-structured assistant text.
// ABOUTME: Tagged blocks win, then loose JSON objects, then nested payload fields.

package command

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// knownTags is the tag vocabulary of the embedded protocol, in priority order.
// Assistants have emitted both the bare and the JSON-prefixed forms.
var knownTags = []string{
	"API",
	"RESERVA", "DISPONIBLE", "MODIFICAR", "CANCELAR", "CONFIRMAR",
	"JSON-RESERVA", "JSON-DISPONIBLE", "JSON-MODIFICAR", "JSON-CANCELAR", "JSON-CONFIRMAR",
}

var tagPatterns = buildTagPatterns()

func buildTagPatterns() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(knownTags))
	for _, tag := range knownTags {
		m[tag] = regexp.MustCompile(fmt.Sprintf(`(?s)\[%s\](.*?)\[/%s\]`, regexp.QuoteMeta(tag), regexp.QuoteMeta(tag)))
	}
	return m
}

// stripPattern matches any known tagged block for removal before user delivery.
var stripPattern = regexp.MustCompile(`(?s)\[(?:JSON-)?(?:API|RESERVA|DISPONIBLE|MODIFICAR|CANCELAR|CONFIRMAR)\].*?\[/(?:JSON-)?(?:API|RESERVA|DISPONIBLE|MODIFICAR|CANCELAR|CONFIRMAR)\]`)

// Extract returns the first recognized command embedded in text.
// Priority: tagged block, then any balanced JSON object in the text.
// Malformed JSON inside a tag is a non-match and falls through; it is
// never surfaced as an error.
func Extract(text string) (*Command, bool) {
	for _, tag := range knownTags {
		for _, m := range tagPatterns[tag].FindAllStringSubmatch(text, -1) {
			if cmd, ok := parsePayload(m[1]); ok {
				return cmd, true
			}
		}
	}

	for _, block := range balancedBraceBlocks(text) {
		if cmd, ok := parsePayload(block); ok {
			return cmd, true
		}
	}

	return nil, false
}

// ExtractAny extracts from an arbitrary decoded payload: strings go through
// Extract, containers are searched depth first, first match wins. Assistant
// providers have been seen nesting the reply text inside response wrappers.
func ExtractAny(v any) (*Command, bool) {
	switch val := v.(type) {
	case string:
		return Extract(val)
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if cmd, ok := ExtractAny(val[k]); ok {
				return cmd, true
			}
		}
	case []any:
		for _, item := range val {
			if cmd, ok := ExtractAny(item); ok {
				return cmd, true
			}
		}
	}
	return nil, false
}

// StripBlocks removes every known tagged block from text. Tag markers must
// never leak to the end user verbatim.
func StripBlocks(text string) string {
	return stripPattern.ReplaceAllString(text, "")
}

// parsePayload decodes a candidate JSON object and accepts it only when its
// "type" field is a recognized kind.
func parsePayload(raw string) (*Command, bool) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &fields); err != nil {
		return nil, false
	}
	kindStr, _ := fields["type"].(string)
	kind := Kind(strings.TrimSpace(kindStr))
	if !Recognized(kind) {
		return nil, false
	}
	return &Command{Kind: kind, Fields: fields}, true
}

// balancedBraceBlocks returns every top-level balanced {...} substring of
// text in the order found. Braces inside JSON strings are skipped.
func balancedBraceBlocks(text string) []string {
	var blocks []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					blocks = append(blocks, text[start:i+1])
					start = -1
				}
			}
		}
	}
	return blocks
}
