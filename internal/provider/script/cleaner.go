// Package script provides response-cleaning and content-policy validation
// for script-adapter output, shared by both the stub and real ScriptAdapter
// implementations.
package script

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Cleaner sanitizes a script model's raw text response into parseable JSON,
// tolerating markdown fences and minor formatting mistakes.
type Cleaner struct{}

// NewCleaner constructs a response cleaner.
func NewCleaner() *Cleaner { return &Cleaner{} }

// Clean removes markdown fences, fixes common JSON formatting mistakes, and
// extracts the first balanced JSON object from mixed content.
func (c *Cleaner) Clean(response string) string {
	response = c.removeMarkdownBlocks(response)
	response = c.fixFormatting(response)
	return c.extractJSONObject(response)
}

func (c *Cleaner) removeMarkdownBlocks(response string) string {
	response = strings.TrimPrefix(strings.TrimSpace(response), "```json")
	response = strings.TrimPrefix(strings.TrimSpace(response), "```")
	response = strings.TrimSuffix(strings.TrimSpace(response), "```")
	return strings.TrimSpace(response)
}

var boldRe = regexp.MustCompile(`\*\*([^*]+)\*\*`)
var trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)

func (c *Cleaner) fixFormatting(response string) string {
	response = strings.ReplaceAll(response, "`", "\"")
	response = boldRe.ReplaceAllString(response, "$1")
	response = trailingCommaRe.ReplaceAllString(response, "$1")
	return response
}

func (c *Cleaner) extractJSONObject(response string) string {
	start := strings.Index(response, "{")
	if start == -1 {
		return response
	}
	depth := 0
	for i := start; i < len(response); i++ {
		switch response[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}
	return response[start:]
}

// IsValidJSON reports whether s parses as JSON.
func (c *Cleaner) IsValidJSON(s string) bool {
	var v any
	return json.Unmarshal([]byte(s), &v) == nil
}
