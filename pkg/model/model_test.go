package model_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/boundcheck/pkg/model"
)

func TestViolationError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `property "safety" violated`, (&model.Violation{Property: "safety"}).Error())
	assert.Equal(t, `property "safety" violated: x=2`,
		(&model.Violation{Property: "safety", Detail: "x=2"}).Error())
}

func TestAsViolation(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("step 3: %w", &model.Violation{Property: "p"})

	v, ok := model.AsViolation(wrapped)
	require.True(t, ok)
	assert.Equal(t, "p", v.Property)

	_, ok = model.AsViolation(errors.New("plain"))
	assert.False(t, ok)
}

func TestEntryPointNames(t *testing.T) {
	t.Parallel()

	m := model.Model{Name: "m", EntryPoints: []model.EntryPoint{{Name: "b"}, {Name: "a"}}}
	assert.Equal(t, []string{"b", "a"}, m.EntryPointNames())
}
