package cli

import (
	"fmt"
	"strings"

	"github.com/gxp-audit/gxa/pkg/color"
)

// suggestEntityTypes returns a hint when name is not one of the known
// entity types, or "" when it is.
func suggestEntityTypes(name string, known []string) string {
	if len(known) == 0 {
		return ""
	}
	name = strings.ToLower(name)
	for _, k := range known {
		if k == name {
			return ""
		}
	}

	var matches []string
	for _, k := range known {
		if strings.HasPrefix(k, name) || strings.HasPrefix(name, k) {
			matches = append(matches, color.Success(k))
		}
	}
	// If no prefix matches, try substring
	if len(matches) == 0 {
		for _, k := range known {
			if strings.Contains(k, name) {
				matches = append(matches, color.Success(k))
			}
		}
	}

	if len(matches) > 0 {
		hint := "Did you mean"
		if len(matches) > 1 {
			hint += " one of"
		}
		return fmt.Sprintf("%s: %s?", hint, strings.Join(matches, ", "))
	}

	names := make([]string, len(known))
	for i, k := range known {
		names[i] = color.Success(k)
	}
	return fmt.Sprintf("Known entity types: %s", strings.Join(names, ", "))
}

// formatEntryNotFoundError formats an unknown audit entry id with a hint.
func formatEntryNotFoundError(id string) string {
	var sb strings.Builder
	sb.WriteString(color.Error(fmt.Sprintf("audit entry '%s' not found", id)))
	sb.WriteString("\n")
	sb.WriteString(color.Dim("  Run 'gxa history <entity-type> <entity-id>' to list entry ids."))
	return sb.String()
}
