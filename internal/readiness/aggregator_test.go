package readiness

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phaseline/internal/domain"
)

func TestCategoryStatus(t *testing.T) {
	cases := []struct {
		name    string
		in      domain.CategoryInput
		minimum int
		want    domain.CategoryStatus
	}{
		{"empty", domain.CategoryInput{}, 0, domain.StatusNone},
		{"some records", domain.CategoryInput{Count: 2}, 0, domain.StatusPartial},
		{"below minimum", domain.CategoryInput{Count: 2}, 3, domain.StatusPartial},
		{"at minimum", domain.CategoryInput{Count: 3}, 3, domain.StatusConfigured},
		{"finalized without records", domain.CategoryInput{Finalized: true}, 0, domain.StatusFinalized},
		{"finalized wins over minimum", domain.CategoryInput{Count: 9, Finalized: true}, 3, domain.StatusFinalized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CategoryStatus(tc.in, tc.minimum))
		})
	}
}

func TestOverall(t *testing.T) {
	fin := domain.CategoryInput{Count: 1, Finalized: true}
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	snap := Derive(domain.ReadinessInputs{Locations: fin, Roles: fin}, nil, at)
	assert.Equal(t, domain.OverallGettingStarted, snap.Overall)

	snap = Derive(domain.ReadinessInputs{Locations: fin, Team: domain.CategoryInput{Count: 1}, Talent: domain.CategoryInput{Count: 2}}, nil, at)
	assert.Equal(t, domain.OverallOperational, snap.Overall)

	snap = Derive(domain.ReadinessInputs{Locations: fin, Roles: fin, Team: fin, Talent: fin}, nil, at)
	assert.Equal(t, domain.OverallProductionReady, snap.Overall)
	assert.Equal(t, at, snap.ComputedAt)
}

type stubSource struct {
	in  domain.ReadinessInputs
	err error
}

func (s stubSource) ReadinessInputs(context.Context, string) (domain.ReadinessInputs, error) {
	return s.in, s.err
}

type captureStore struct{ saved []domain.ReadinessSnapshot }

func (c *captureStore) ReplaceSnapshot(_ context.Context, s domain.ReadinessSnapshot) error {
	c.saved = append(c.saved, s)
	return nil
}

func TestRefreshStoresSnapshot(t *testing.T) {
	store := &captureStore{}
	a := Aggregator{
		Source:   stubSource{in: domain.ReadinessInputs{Roles: domain.CategoryInput{Count: 4}}},
		Store:    store,
		Minimums: map[domain.Category]int{domain.CategoryRoles: 4},
	}
	snap, err := a.Refresh(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", snap.ProjectID)
	assert.Equal(t, domain.StatusConfigured, snap.Roles.Status)
	require.Len(t, store.saved, 1)
	assert.Equal(t, snap, store.saved[0])
}

func TestRefreshWrapsSourceFailure(t *testing.T) {
	store := &captureStore{}
	a := Aggregator{Source: stubSource{err: errors.New("disk gone")}, Store: store}
	_, err := a.Refresh(context.Background(), "p1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCollaboratorUnavailable)
	assert.Empty(t, store.saved)
}
