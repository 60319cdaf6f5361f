package concurrency

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/siddhantprateek/reefline/internal/dbtest"
	"github.com/siddhantprateek/reefline/internal/state"
	"github.com/siddhantprateek/reefline/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession() *models.Session {
	return &models.Session{
		ID:            uuid.NewString(),
		FlowID:        uuid.NewString(),
		SessionToken:  uuid.NewString(),
		CurrentNodeID: "n1",
		State:         models.JSONMap{},
		Info:          models.JSONMap{},
		Status:        models.SessionActive,
		Revision:      1,
	}
}

// TestApplyWithRevisionUserWinsOverStaleBackgroundUpdate is spec §8
// scenario 4: a background (non-user-initiated) update carrying a stale
// expected_revision is rejected with ErrConcurrentModification, leaving
// the session untouched; a subsequent user-initiated update with the
// same stale expected_revision overrides it anyway, bumping the
// revision and applying the new state.
func TestApplyWithRevisionUserWinsOverStaleBackgroundUpdate(t *testing.T) {
	db := dbtest.Open(t)
	c := New(db, 0, 0)

	sess := newTestSession()
	require.NoError(t, db.Create(sess).Error)

	// Someone else bumps the revision first (simulating the user's own
	// interaction racing ahead of a background task).
	staleExpected := sess.Revision
	res := c.ApplyWithRevision(context.Background(), sess.ID, &staleExpected, state.Bag{"a": 1}, "", true)
	require.True(t, res.OK)
	assert.Equal(t, 2, res.Session.Revision)

	// A background job still holding the original (now stale) revision
	// number must be rejected, not silently overwrite the user's change.
	bgResult := c.ApplyWithRevision(context.Background(), sess.ID, &staleExpected, state.Bag{"from": "background"}, "", false)
	assert.False(t, bgResult.OK)
	assert.Equal(t, ErrConcurrentModification, bgResult.Error)

	var reloaded models.Session
	require.NoError(t, db.Where("id = ?", sess.ID).First(&reloaded).Error)
	assert.Equal(t, 2, reloaded.Revision)
	assert.Equal(t, float64(1), reloaded.State["a"])

	// A user-initiated update carrying that same stale revision wins
	// anyway — "user wins" overrides the optimistic-concurrency check.
	userResult := c.ApplyWithRevision(context.Background(), sess.ID, &staleExpected, state.Bag{"from": "user"}, "", true)
	require.True(t, userResult.OK)
	assert.Equal(t, 3, userResult.Session.Revision)
	assert.Equal(t, "user", userResult.Session.State["from"])
}

// TestApplyWithRevisionMatchingExpectedRevisionAlwaysApplies covers the
// common, non-conflicting path: expected_revision equal to the stored
// revision applies regardless of userInitiated.
func TestApplyWithRevisionMatchingExpectedRevisionAlwaysApplies(t *testing.T) {
	db := dbtest.Open(t)
	c := New(db, 0, 0)

	sess := newTestSession()
	require.NoError(t, db.Create(sess).Error)

	expected := sess.Revision
	res := c.ApplyWithRevision(context.Background(), sess.ID, &expected, state.Bag{"x": "y"}, "n2", false)

	require.True(t, res.OK)
	assert.Equal(t, 2, res.Session.Revision)
	assert.Equal(t, "n2", res.Session.CurrentNodeID)
}

// TestApplyWithRevisionNilExpectedSkipsConflictCheck covers callers that
// don't carry an optimistic-concurrency token at all (e.g. the runtime's
// own tick loop, which always holds the session's advisory lock).
func TestApplyWithRevisionNilExpectedSkipsConflictCheck(t *testing.T) {
	db := dbtest.Open(t)
	c := New(db, 0, 0)

	sess := newTestSession()
	sess.Revision = 7
	require.NoError(t, db.Create(sess).Error)

	res := c.ApplyWithRevision(context.Background(), sess.ID, nil, state.Bag{"z": 1}, "", false)

	require.True(t, res.OK)
	assert.Equal(t, 8, res.Session.Revision)
}

func TestApplyWithRevisionUnknownSessionFails(t *testing.T) {
	db := dbtest.Open(t)
	c := New(db, 0, 0)

	res := c.ApplyWithRevision(context.Background(), uuid.NewString(), nil, state.Bag{}, "", true)

	assert.False(t, res.OK)
}
