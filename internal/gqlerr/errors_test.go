package gqlerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertagql/gqlsql/internal/gqlerr"
)

func TestErrorStringWithAndWithoutPath(t *testing.T) {
	e := gqlerr.New(gqlerr.KindInvalidInput, gqlerr.CodeInvalidFilter, "orders=>items", "bad filter")
	assert.Equal(t, "invalid-filter: bad filter (at orders=>items)", e.Error())

	e2 := gqlerr.New(gqlerr.KindInternal, "internal", "", "unreachable")
	assert.Equal(t, "internal: unreachable", e2.Error())
}

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	e := gqlerr.Wrap(gqlerr.KindDriverFailure, gqlerr.CodeStatementFailed, "users", cause)
	assert.Equal(t, cause, errors.Unwrap(e))
	assert.True(t, errors.Is(e, cause))
	assert.Contains(t, e.Error(), "connection refused")
}

func TestDriverBuildsStatementFailedCode(t *testing.T) {
	cause := errors.New("syntax error")
	e := gqlerr.Driver("orders", cause)
	assert.Equal(t, gqlerr.KindDriverFailure, e.Kind)
	assert.Equal(t, gqlerr.CodeStatementFailed, e.Code)
	assert.Equal(t, "orders", e.Path)
	require.NotNil(t, e.Cause)
}

func TestInvalidAndPolicyConstructors(t *testing.T) {
	inv := gqlerr.Invalid(gqlerr.CodeUnresolvedLink, "a=>b", "no such link")
	assert.Equal(t, gqlerr.KindInvalidInput, inv.Kind)

	pol := gqlerr.Policy(gqlerr.CodeTenantRequired, "", "tenant claim missing")
	assert.Equal(t, gqlerr.KindPolicyViolation, pol.Kind)
	assert.Equal(t, gqlerr.CodeTenantRequired, pol.Code)
}
