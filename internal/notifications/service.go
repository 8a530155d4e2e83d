package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vedalearn/backend/internal/models"
	"github.com/vedalearn/backend/pkg/queue"
)

// Session event sub-types.
const (
	SessionCreated            = "session_created"
	SessionUpdated            = "session_updated"
	SessionStarted            = "session_started"
	SessionRecordingAvailable = "session_recording_available"
	SessionCancelled          = "session_cancelled"
	SessionReminder           = "session_reminder"
)

// Order event sub-types.
const (
	OrderPending   = "order_pending"
	OrderPaid      = "order_paid"
	OrderAccepted  = "order_accepted"
	OrderDeclined  = "order_declined"
	OrderCompleted = "order_completed"
	OrderCancelled = "order_cancelled"
	OrderNew       = "order_new" // admin-facing: a new order arrived
)

// Store persists notification documents.
type Store interface {
	Create(ctx context.Context, n *models.Notification) error
	CreateBulk(ctx context.Context, ns []models.Notification) (int, error)
}

// Recipient is one member of a notification audience. Email may be empty; such
// recipients still get an in-app notification but no email job.
type Recipient struct {
	ID    uuid.UUID
	Email string
}

// AudienceStore resolves the enrolled-user audience of a course.
type AudienceStore interface {
	ListEnrolledRecipients(ctx context.Context, courseID uuid.UUID) ([]Recipient, error)
}

// AdminStore resolves the admin user set for admin-facing order events.
type AdminStore interface {
	ListAdminIDs(ctx context.Context) ([]uuid.UUID, error)
}

// EmailQueue enqueues best-effort email jobs for high-priority notifications.
// May be nil.
type EmailQueue interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// SessionEvent describes a session lifecycle fact to fan out.
type SessionEvent struct {
	Type            string
	Session         *models.Session
	CourseTitle     string
	Reason          string // cancellation reason, free text
	ScheduleChanged bool   // escalates priority for update events
}

// OrderEvent describes an order lifecycle fact to fan out.
type OrderEvent struct {
	Type  string
	Order *models.Order
}

type template struct {
	title    string
	message  string // fmt.Sprintf with course title (session) or order id (order)
	priority models.NotificationPriority
}

var sessionTemplates = map[string]template{
	SessionCreated:            {"New live session scheduled", "A new live session has been scheduled for %s.", models.PriorityMedium},
	SessionUpdated:            {"Live session updated", "A live session for %s has been updated.", models.PriorityMedium},
	SessionStarted:            {"Live session started", "Your live session for %s has started. Join now!", models.PriorityHigh},
	SessionRecordingAvailable: {"Recording available", "The recording for a %s session is now available.", models.PriorityLow},
	SessionCancelled:          {"Live session cancelled", "A live session for %s has been cancelled.", models.PriorityHigh},
	SessionReminder:           {"Live session starting soon", "Your live session for %s starts soon.", models.PriorityHigh},
}

var orderTemplates = map[string]template{
	OrderPending:   {"Order received", "Your order %s is pending confirmation.", models.PriorityMedium},
	OrderPaid:      {"Payment received", "Payment for your order %s has been received.", models.PriorityMedium},
	OrderAccepted:  {"Order accepted", "Your order %s has been accepted.", models.PriorityMedium},
	OrderDeclined:  {"Order declined", "Your order %s was declined.", models.PriorityHigh},
	OrderCompleted: {"Order completed", "Your order %s is complete.", models.PriorityMedium},
	OrderCancelled: {"Order cancelled", "Your order %s has been cancelled.", models.PriorityMedium},
	OrderNew:       {"New order", "A new order %s has been placed.", models.PriorityMedium},
}

// genericTemplate backs unrecognized sub-types; fan-out never fails on an
// unknown event name.
var genericTemplate = template{"Notification", "You have a new notification about %s.", models.PriorityMedium}

// Service computes audiences and writes one notification row per recipient.
// All errors here are expected to be caught and logged by the triggering
// operation — fan-out must never fail the state transition that caused it.
type Service struct {
	store    Store
	audience AudienceStore
	admins   AdminStore
	emails   EmailQueue
	logger   *zap.Logger
}

// NewService creates a notification fan-out service. emails may be nil.
func NewService(store Store, audience AudienceStore, admins AdminStore, emails EmailQueue, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, audience: audience, admins: admins, emails: emails, logger: logger}
}

// NotifySession fans a session event out to every user enrolled in the
// session's course. An empty audience is success with count 0.
func (s *Service) NotifySession(ctx context.Context, ev SessionEvent) (int, error) {
	tpl, ok := sessionTemplates[ev.Type]
	if !ok {
		s.logger.Warn("unknown session event sub-type, using generic template", zap.String("type", ev.Type))
		tpl = genericTemplate
	}
	if ev.Type == SessionUpdated && ev.ScheduleChanged {
		tpl.priority = models.PriorityHigh
	}

	audience, err := s.audience.ListEnrolledRecipients(ctx, ev.Session.CourseID)
	if err != nil {
		return 0, fmt.Errorf("resolve audience: %w", err)
	}
	if len(audience) == 0 {
		return 0, nil
	}

	message := fmt.Sprintf(tpl.message, ev.CourseTitle)
	if ev.Type == SessionCancelled && ev.Reason != "" {
		message += " Reason: " + ev.Reason
	}
	meta, _ := json.Marshal(map[string]string{
		"event":      ev.Type,
		"session_id": ev.Session.ID.String(),
		"course_id":  ev.Session.CourseID.String(),
	})
	link := "/courses/" + ev.Session.CourseID.String() + "/sessions/" + ev.Session.ID.String()

	ns := make([]models.Notification, 0, len(audience))
	for _, r := range audience {
		ns = append(ns, models.Notification{
			UserID:   r.ID,
			Title:    tpl.title,
			Message:  message,
			Link:     link,
			Category: models.CategorySession,
			Priority: tpl.priority,
			Metadata: meta,
		})
	}
	count, err := s.store.CreateBulk(ctx, ns)
	if err != nil {
		return 0, fmt.Errorf("bulk insert: %w", err)
	}

	if s.emails != nil && tpl.priority == models.PriorityHigh {
		for _, r := range audience {
			if r.Email == "" {
				s.logger.Warn("recipient has no email, skipping email job", zap.String("user_id", r.ID.String()))
				continue
			}
			payload := queue.EmailPayload{
				EmailType:      ev.Type,
				UserID:         r.ID,
				RecipientEmail: r.Email,
				Subject:        tpl.title,
				BodyHTML:       message,
				SessionID:      ev.Session.ID,
				CourseID:       ev.Session.CourseID,
			}
			if err := s.emails.EnqueueEmail(ctx, payload); err != nil {
				s.logger.Warn("email enqueue failed", zap.Error(err), zap.String("user_id", r.ID.String()))
			}
		}
	}
	return count, nil
}

// NotifyOrder fans an order event out to its audience: the order owner for
// status changes, or the admin set for new-order events.
func (s *Service) NotifyOrder(ctx context.Context, ev OrderEvent) (int, error) {
	tpl, ok := orderTemplates[ev.Type]
	if !ok {
		s.logger.Warn("unknown order event sub-type, using generic template", zap.String("type", ev.Type))
		tpl = genericTemplate
	}

	var audience []uuid.UUID
	if ev.Type == OrderNew {
		ids, err := s.admins.ListAdminIDs(ctx)
		if err != nil {
			return 0, fmt.Errorf("resolve admin audience: %w", err)
		}
		audience = ids
	} else {
		audience = []uuid.UUID{ev.Order.UserID}
	}
	if len(audience) == 0 {
		return 0, nil
	}

	shortID := ev.Order.ID.String()[:8]
	message := fmt.Sprintf(tpl.message, shortID)
	meta, _ := json.Marshal(map[string]string{
		"event":    ev.Type,
		"order_id": ev.Order.ID.String(),
	})

	if len(audience) == 1 {
		n := models.Notification{
			UserID:   audience[0],
			Title:    tpl.title,
			Message:  message,
			Link:     "/orders/" + ev.Order.ID.String(),
			Category: models.CategoryOrder,
			Priority: tpl.priority,
			Metadata: meta,
		}
		if err := s.store.Create(ctx, &n); err != nil {
			return 0, fmt.Errorf("insert: %w", err)
		}
		return 1, nil
	}

	ns := make([]models.Notification, 0, len(audience))
	for _, userID := range audience {
		ns = append(ns, models.Notification{
			UserID:   userID,
			Title:    tpl.title,
			Message:  message,
			Link:     "/orders/" + ev.Order.ID.String(),
			Category: models.CategoryOrder,
			Priority: tpl.priority,
			Metadata: meta,
		})
	}
	count, err := s.store.CreateBulk(ctx, ns)
	if err != nil {
		return 0, fmt.Errorf("bulk insert: %w", err)
	}
	return count, nil
}
