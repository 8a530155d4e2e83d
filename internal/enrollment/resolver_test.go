package enrollment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/vedalearn/backend/pkg/cache"
)

type fakeLayer struct {
	result bool
	err    error
	calls  int
}

func (f *fakeLayer) check(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	f.calls++
	return f.result, f.err
}

func (f *fakeLayer) HasPaidCourseOrder(ctx context.Context, u, c uuid.UUID) (bool, error) {
	return f.check(ctx, u, c)
}
func (f *fakeLayer) HasEnrollment(ctx context.Context, u, c uuid.UUID) (bool, error) {
	return f.check(ctx, u, c)
}
func (f *fakeLayer) HasSnapshotEnrollment(ctx context.Context, u, c uuid.UUID) (bool, error) {
	return f.check(ctx, u, c)
}

func TestIsEnrolledShortCircuitsOnPaidOrder(t *testing.T) {
	orders := &fakeLayer{result: true}
	profiles := &fakeLayer{}
	snapshot := &fakeLayer{}
	r := NewResolver(orders, profiles, snapshot, nil, nil)

	assert.True(t, r.IsEnrolled(context.Background(), uuid.New(), uuid.New()))
	assert.Equal(t, 1, orders.calls)
	assert.Zero(t, profiles.calls)
	assert.Zero(t, snapshot.calls)
}

func TestIsEnrolledFallsThroughLayers(t *testing.T) {
	orders := &fakeLayer{}
	profiles := &fakeLayer{}
	snapshot := &fakeLayer{result: true}
	r := NewResolver(orders, profiles, snapshot, nil, nil)

	assert.True(t, r.IsEnrolled(context.Background(), uuid.New(), uuid.New()))
	assert.Equal(t, 1, orders.calls)
	assert.Equal(t, 1, profiles.calls)
	assert.Equal(t, 1, snapshot.calls)
}

func TestIsEnrolledLayerErrorIsSkippedNotFatal(t *testing.T) {
	orders := &fakeLayer{err: errors.New("db down")}
	profiles := &fakeLayer{result: true}
	r := NewResolver(orders, profiles, &fakeLayer{}, nil, nil)

	assert.True(t, r.IsEnrolled(context.Background(), uuid.New(), uuid.New()))
}

func TestIsEnrolledAllLayersMiss(t *testing.T) {
	r := NewResolver(&fakeLayer{}, &fakeLayer{}, &fakeLayer{}, nil, nil)
	assert.False(t, r.IsEnrolled(context.Background(), uuid.New(), uuid.New()))
}

func TestIsEnrolledAllLayersError(t *testing.T) {
	boom := errors.New("boom")
	r := NewResolver(&fakeLayer{err: boom}, &fakeLayer{err: boom}, &fakeLayer{err: boom}, nil, nil)
	assert.False(t, r.IsEnrolled(context.Background(), uuid.New(), uuid.New()))
}

func TestIsEnrolledCachesPositiveResult(t *testing.T) {
	orders := &fakeLayer{result: true}
	c := cache.New(time.Minute, 10)
	r := NewResolver(orders, &fakeLayer{}, &fakeLayer{}, c, nil)

	userID, courseID := uuid.New(), uuid.New()
	assert.True(t, r.IsEnrolled(context.Background(), userID, courseID))
	assert.True(t, r.IsEnrolled(context.Background(), userID, courseID))
	assert.Equal(t, 1, orders.calls, "second call served from cache")
}

func TestIsEnrolledDoesNotCacheNegative(t *testing.T) {
	orders := &fakeLayer{}
	c := cache.New(time.Minute, 10)
	r := NewResolver(orders, &fakeLayer{}, &fakeLayer{}, c, nil)

	userID, courseID := uuid.New(), uuid.New()
	assert.False(t, r.IsEnrolled(context.Background(), userID, courseID))
	assert.False(t, r.IsEnrolled(context.Background(), userID, courseID))
	assert.Equal(t, 2, orders.calls, "negative results are re-resolved")
}
