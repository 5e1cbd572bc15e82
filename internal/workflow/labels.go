package workflow

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// stepLabel turns a tool name like "smart_cuts" into "Smart Cuts".
func stepLabel(toolName string) string {
	words := strings.ReplaceAll(strings.TrimSpace(toolName), "_", " ")
	if words == "" {
		return "Workflow"
	}
	// Casers carry state and are not safe for concurrent use.
	return cases.Title(language.English).String(words)
}
