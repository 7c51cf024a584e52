package engineerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temoto-action-engine/actionengine/pkg/engineerr"
)

func TestValidationCarriesA400Problem(t *testing.T) {
	err := engineerr.Validation("graph %q already exists", "dup")

	assert.Equal(t, engineerr.KindValidation, err.Kind)
	assert.Equal(t, 400, err.Problem.Status)
	assert.Contains(t, err.Error(), "dup")
}

func TestLoadLinkCarriesA502Problem(t *testing.T) {
	cause := errors.New("plugin.Open failed")
	err := engineerr.LoadLink(cause, "root_0")

	assert.Equal(t, engineerr.KindLoadLink, err.Kind)
	assert.Equal(t, 502, err.Problem.Status)
	assert.ErrorIs(t, err, cause)
}

func TestExecutionCarriesA500Problem(t *testing.T) {
	cause := errors.New("boom")
	err := engineerr.Execution(cause, "middle_0")

	assert.Equal(t, engineerr.KindExecution, err.Kind)
	assert.Equal(t, 500, err.Problem.Status)
	assert.ErrorIs(t, err, cause)
}

func TestStructuralUpdateCarriesA409Problem(t *testing.T) {
	err := engineerr.StructuralUpdate("expected %d nodes, got %d", 2, 3)

	assert.Equal(t, engineerr.KindStructuralUpdate, err.Kind)
	assert.Equal(t, 409, err.Problem.Status)
}

func TestInternalCarriesA500Problem(t *testing.T) {
	cause := errors.New("invariant violated")
	err := engineerr.Internal(cause)

	assert.Equal(t, engineerr.KindInternal, err.Kind)
	assert.Equal(t, 500, err.Problem.Status)
	assert.ErrorIs(t, err, cause)
}

func TestWrapPrependsALayerWithoutLosingTheUnderlyingKind(t *testing.T) {
	wrapped := engineerr.Wrap("modify_graph", engineerr.Validation("bad diff"))

	var engineErr *engineerr.EngineError

	require.True(t, errors.As(wrapped, &engineErr))
	assert.Equal(t, engineerr.KindValidation, engineErr.Kind)
	assert.Contains(t, wrapped.Error(), "modify_graph")
}
