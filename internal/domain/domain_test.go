package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseOrderIsLinear(t *testing.T) {
	var walked []Phase
	p := PhasePrep
	for {
		walked = append(walked, p)
		next, ok := p.Next()
		if !ok {
			break
		}
		assert.Equal(t, p.Index()+1, next.Index())
		p = next
	}
	assert.Equal(t, Phases(), walked)
	assert.True(t, p.Terminal())

	_, ok := Phase("intermission").Next()
	assert.False(t, ok)
}

func TestParsers(t *testing.T) {
	p, err := ParsePhase("post_show")
	require.NoError(t, err)
	assert.Equal(t, PhasePostShow, p)
	_, err = ParsePhase("Post_Show")
	var verr ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "phase", verr.Field)

	_, err = ParseTrigger("cron")
	assert.ErrorIs(t, err, ErrValidation)

	c, err := ParseCategory("talent")
	require.NoError(t, err)
	assert.Equal(t, CategoryTalent, c)
	_, err = ParseCategory("props")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBlockerActionItems(t *testing.T) {
	for _, c := range Categories() {
		b := NotFinalizedBlocker(c)
		assert.Equal(t, c, b.Category())
		assert.NotEqual(t, string(b), b.Description(), "%s has a description", b)
	}
	item := BlockerShowNotEnded.ActionItem()
	assert.Empty(t, item.Category)
	assert.Equal(t, BlockerShowNotEnded, item.Code)
	assert.Equal(t, "mystery", Blocker("mystery").Description())
}

func TestErrorSentinels(t *testing.T) {
	assert.ErrorIs(t, NotFoundError{Kind: "project", ID: "x"}, ErrNotFound)
	cause := errors.New("timeout")
	err := CollaboratorError{Source: "timecards", Err: cause}
	assert.ErrorIs(t, err, ErrCollaboratorUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "invalid timezone: required", ValidationError{Field: "timezone", Reason: "required"}.Error())
}
