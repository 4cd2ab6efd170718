package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"phaseline/internal/domain"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultHistoryLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultHistoryLimit, NormalizeLimit(-3))
	assert.Equal(t, 7, NormalizeLimit(7))
	assert.Equal(t, MaxHistoryLimit, NormalizeLimit(10_000))
}

func TestAppendRequiresProject(t *testing.T) {
	_, err := Recorder{}.Append(context.Background(), domain.TransitionRecord{Outcome: domain.OutcomeBlocked})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
