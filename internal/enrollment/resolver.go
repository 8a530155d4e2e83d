// Package enrollment decides whether a user may access a course's sessions.
package enrollment

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vedalearn/backend/pkg/cache"
)

// OrderStore checks the paid-order enrollment source.
type OrderStore interface {
	HasPaidCourseOrder(ctx context.Context, userID, courseID uuid.UUID) (bool, error)
}

// ProfileStore checks the direct-grant enrollment source on the user profile.
type ProfileStore interface {
	HasEnrollment(ctx context.Context, userID, courseID uuid.UUID) (bool, error)
}

// SnapshotStore checks the session-level enrolled-students snapshot
// (pre-seeded/demo sessions with no corresponding order).
type SnapshotStore interface {
	HasSnapshotEnrollment(ctx context.Context, userID, courseID uuid.UUID) (bool, error)
}

// Resolver answers enrollment queries with layered fallback: paid order, then
// profile grant, then session snapshot. A layer's lookup failure is logged and
// skipped, never propagated; only after all layers miss is the user considered
// not enrolled. Positive results are cached.
type Resolver struct {
	orders   OrderStore
	profiles ProfileStore
	snapshot SnapshotStore
	cache    *cache.Cache // may be nil
	logger   *zap.Logger
}

// NewResolver creates an enrollment resolver. c may be nil to disable caching.
func NewResolver(orders OrderStore, profiles ProfileStore, snapshot SnapshotStore, c *cache.Cache, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{orders: orders, profiles: profiles, snapshot: snapshot, cache: c, logger: logger}
}

// IsEnrolled reports whether the user may access the course's sessions.
func (r *Resolver) IsEnrolled(ctx context.Context, userID, courseID uuid.UUID) bool {
	key := userID.String() + ":" + courseID.String()
	if r.cache != nil {
		if _, ok := r.cache.Get(key); ok {
			return true
		}
	}

	enrolled := r.resolve(ctx, userID, courseID)
	if enrolled && r.cache != nil {
		r.cache.Set(key, struct{}{})
	}
	return enrolled
}

func (r *Resolver) resolve(ctx context.Context, userID, courseID uuid.UUID) bool {
	ok, err := r.orders.HasPaidCourseOrder(ctx, userID, courseID)
	if err != nil {
		r.logger.Warn("order enrollment lookup failed", zap.Error(err),
			zap.String("user_id", userID.String()), zap.String("course_id", courseID.String()))
	} else if ok {
		return true
	}

	ok, err = r.profiles.HasEnrollment(ctx, userID, courseID)
	if err != nil {
		r.logger.Warn("profile enrollment lookup failed", zap.Error(err),
			zap.String("user_id", userID.String()), zap.String("course_id", courseID.String()))
	} else if ok {
		return true
	}

	ok, err = r.snapshot.HasSnapshotEnrollment(ctx, userID, courseID)
	if err != nil {
		r.logger.Warn("snapshot enrollment lookup failed", zap.Error(err),
			zap.String("user_id", userID.String()), zap.String("course_id", courseID.String()))
	} else if ok {
		return true
	}

	return false
}
