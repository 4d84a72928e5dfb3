package analyses

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(Validationf("bad")))
	assert.Equal(t, KindNotFound, KindOf(NotFoundf("gone")))
	assert.Equal(t, KindForbidden, KindOf(Forbiddenf("no")))
	assert.Equal(t, KindConflict, KindOf(Conflictf("busy")))
	assert.Equal(t, KindUnauthorized, KindOf(Unauthorizedf("who")))
	assert.Equal(t, KindDependency, KindOf(Dependencyf("down")))
}

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("outer: %w", NotFoundf("analysis x not found"))
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestKindOfUnknownDefaultsToDependency(t *testing.T) {
	assert.Equal(t, KindDependency, KindOf(errors.New("plain")))
}
