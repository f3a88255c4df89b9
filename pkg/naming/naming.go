// Package naming validates entity type names and entity identifiers.
package naming

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/gxp-audit/gxa/pkg/errclass"
)

var entityTypeRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

const maxEntityIDLen = 128

// ValidateEntityType checks that name is a usable entity type such as
// "machines" or "quality_records".
func ValidateEntityType(name string) error {
	if name == "" {
		return errclass.ErrNameInvalid.WithMessage("entity type must not be empty")
	}
	if !norm.NFC.IsNormalString(name) {
		return errclass.ErrNameInvalid.WithMessagef("entity type must be NFC normalized: %q", name)
	}
	if !entityTypeRegex.MatchString(name) {
		return errclass.ErrNameInvalid.WithMessagef("entity type must match [a-z][a-z0-9_]*: %s", name)
	}
	return nil
}

// NormalizeEntityType folds user input ("Machines ") into the stored form.
func NormalizeEntityType(name string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(name)))
}

// ValidateEntityID checks an entity primary key in its string form.
func ValidateEntityID(id string) error {
	if id == "" {
		return errclass.ErrNameInvalid.WithMessage("entity id must not be empty")
	}
	if len(id) > maxEntityIDLen {
		return errclass.ErrNameInvalid.WithMessagef("entity id longer than %d bytes", maxEntityIDLen)
	}
	if strings.ContainsAny(id, "/\\") {
		return errclass.ErrNameInvalid.WithMessagef("entity id must not contain separators: %s", id)
	}
	for _, r := range id {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return errclass.ErrNameInvalid.WithMessagef("entity id must not contain whitespace or control characters: %q", id)
		}
	}
	return nil
}
