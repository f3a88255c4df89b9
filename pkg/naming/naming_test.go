package naming_test

import (
	"strings"
	"testing"

	"github.com/gxp-audit/gxa/pkg/errclass"
	"github.com/gxp-audit/gxa/pkg/naming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEntityType_Valid(t *testing.T) {
	for _, name := range []string{"machines", "assets", "quality_records", "p2"} {
		assert.NoError(t, naming.ValidateEntityType(name), "should accept: %s", name)
	}
}

func TestValidateEntityType_Invalid(t *testing.T) {
	for _, name := range []string{"", "Machines", "2parts", "a-b", "a/b", "../x", "é"} {
		err := naming.ValidateEntityType(name)
		require.ErrorIs(t, err, errclass.ErrNameInvalid, "should reject: %q", name)
	}
}

func TestNormalizeEntityType(t *testing.T) {
	assert.Equal(t, "machines", naming.NormalizeEntityType("  Machines "))
}

func TestValidateEntityID(t *testing.T) {
	assert.NoError(t, naming.ValidateEntityID("42"))
	assert.NoError(t, naming.ValidateEntityID("PRESS-07"))

	for _, id := range []string{"", "a b", "a/b", "a\\b", "x\n", strings.Repeat("9", 129)} {
		assert.ErrorIs(t, naming.ValidateEntityID(id), errclass.ErrNameInvalid, "should reject: %q", id)
	}
}
