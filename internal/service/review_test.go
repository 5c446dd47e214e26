package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-curator/internal/domain"
	"github.com/phrazzld/scry-curator/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func (f *curationFixture) reviewService(t *testing.T) ReviewService {
	t.Helper()
	svc, err := NewReviewService(f.db, f.reviews, nil)
	require.NoError(t, err)
	return svc
}

func TestReviewEnqueueReturnsActiveEntry(t *testing.T) {
	t.Parallel()
	f := newCurationFixture(t)
	svc := f.reviewService(t)
	itemID := uuid.New()

	existing, err := domain.NewReviewEntry(itemID, domain.KindUtterance, 1, "first")
	require.NoError(t, err)
	f.reviews.On("Enqueue", mock.Anything, mock.Anything).Return(existing, false, nil)

	got, err := svc.Enqueue(context.Background(), itemID, domain.KindUtterance, 9, "second")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, got.ID)
	assert.Equal(t, 1, got.Priority)
	f.assertExpectations(t)
}

func TestReviewEnqueueRejectsBadKind(t *testing.T) {
	t.Parallel()
	f := newCurationFixture(t)
	svc := f.reviewService(t)

	_, err := svc.Enqueue(context.Background(), uuid.New(), domain.ContentKind("poem"), 1, "")
	assert.ErrorIs(t, err, domain.ErrInvalidKind)
}

func TestReviewAssign(t *testing.T) {
	t.Parallel()
	f := newCurationFixture(t)
	svc := f.reviewService(t)
	itemID, operator := uuid.New(), uuid.New()

	entry, err := domain.NewReviewEntry(itemID, domain.KindRule, 3, "")
	require.NoError(t, err)
	entry.AssignedTo = &operator
	f.reviews.On("Assign", mock.Anything, itemID, operator, mock.AnythingOfType("time.Time")).Return(entry, nil)

	got, err := svc.Assign(context.Background(), itemID, operator)
	require.NoError(t, err)
	assert.Equal(t, operator, *got.AssignedTo)

	missing := uuid.New()
	f.reviews.On("Assign", mock.Anything, missing, operator, mock.Anything).Return(nil, store.ErrReviewEntryNotFound)
	_, err = svc.Assign(context.Background(), missing, operator)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Assign(context.Background(), itemID, uuid.Nil)
	assert.Error(t, err)
	f.assertExpectations(t)
}

func TestReviewResolve(t *testing.T) {
	t.Parallel()

	t.Run("resolves the active entry", func(t *testing.T) {
		t.Parallel()
		f := newCurationFixture(t)
		svc := f.reviewService(t)
		itemID := uuid.New()

		resolved, err := domain.NewReviewEntry(itemID, domain.KindRule, 3, "")
		require.NoError(t, err)
		require.NoError(t, resolved.Resolve(domain.ReviewApprove, "fine", time.Now()))

		f.sql.ExpectBegin()
		f.sql.ExpectCommit()
		f.reviews.On("Resolve", mock.Anything, itemID, domain.ReviewApprove, "fine", mock.Anything).
			Return(resolved, nil)

		got, err := svc.Resolve(context.Background(), itemID, domain.ReviewApprove, "fine")
		require.NoError(t, err)
		assert.True(t, got.Resolved())
		f.assertExpectations(t)
	})

	t.Run("second resolution is already resolved", func(t *testing.T) {
		t.Parallel()
		f := newCurationFixture(t)
		svc := f.reviewService(t)
		itemID := uuid.New()

		f.sql.ExpectBegin()
		f.sql.ExpectRollback()
		f.reviews.On("Resolve", mock.Anything, itemID, domain.ReviewReject, "", mock.Anything).
			Return(nil, store.ErrReviewEntryNotFound)
		f.reviews.On("HasResolved", mock.Anything, itemID).Return(true, nil)

		_, err := svc.Resolve(context.Background(), itemID, domain.ReviewReject, "")
		assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
		f.assertExpectations(t)
	})

	t.Run("never queued is not found", func(t *testing.T) {
		t.Parallel()
		f := newCurationFixture(t)
		svc := f.reviewService(t)
		itemID := uuid.New()

		f.sql.ExpectBegin()
		f.sql.ExpectRollback()
		f.reviews.On("Resolve", mock.Anything, itemID, domain.ReviewRevise, "", mock.Anything).
			Return(nil, store.ErrReviewEntryNotFound)
		f.reviews.On("HasResolved", mock.Anything, itemID).Return(false, nil)

		_, err := svc.Resolve(context.Background(), itemID, domain.ReviewRevise, "")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		f.assertExpectations(t)
	})

	t.Run("unknown decision", func(t *testing.T) {
		t.Parallel()
		f := newCurationFixture(t)
		svc := f.reviewService(t)

		_, err := svc.Resolve(context.Background(), uuid.New(), domain.ReviewDecision("maybe"), "")
		assert.ErrorIs(t, err, domain.ErrInvalidDecision)
		f.assertExpectations(t)
	})
}

func TestReviewListPending(t *testing.T) {
	t.Parallel()
	f := newCurationFixture(t)
	svc := f.reviewService(t)

	entries := []*domain.ReviewEntry{{ID: uuid.New(), Priority: 1}, {ID: uuid.New(), Priority: 4}}
	f.reviews.On("ListPending", mock.Anything, 10, 0).Return(entries, nil)

	got, err := svc.ListPending(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	f.assertExpectations(t)
}
