package orders

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vedalearn/backend/internal/models"
	"github.com/vedalearn/backend/internal/notifications"
)

type fakeOrderStore struct {
	orders map[uuid.UUID]*models.Order
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: map[uuid.UUID]*models.Order{}}
}

func (f *fakeOrderStore) Create(_ context.Context, o *models.Order) error {
	o.ID = uuid.New()
	f.orders[o.ID] = o
	return nil
}

func (f *fakeOrderStore) GetByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, assert.AnError
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrderStore) UpdateStatus(_ context.Context, id uuid.UUID, status models.OrderStatus) (bool, error) {
	o, ok := f.orders[id]
	if !ok {
		return false, nil
	}
	o.Status = status
	return true, nil
}

type enrollKey struct{ user, course uuid.UUID }

type fakeEnroller struct {
	granted []enrollKey
}

func (f *fakeEnroller) Enroll(_ context.Context, userID, courseID uuid.UUID) error {
	f.granted = append(f.granted, enrollKey{userID, courseID})
	return nil
}

type fakeOrderNotifier struct {
	events []notifications.OrderEvent
}

func (f *fakeOrderNotifier) NotifyOrder(_ context.Context, ev notifications.OrderEvent) (int, error) {
	f.events = append(f.events, ev)
	return 1, nil
}

func statusContext(t *testing.T, orderID uuid.UUID, status string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPut, "/admin/orders/"+orderID.String()+"/status",
		strings.NewReader(`{"status":"`+status+`"}`))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: orderID.String()}}
	return c, w
}

func seedCourseOrder(store *fakeOrderStore) *models.Order {
	order := &models.Order{
		UserID: uuid.New(),
		Status: models.OrderStatusPending,
		Items: []models.OrderItem{
			{ItemType: models.OrderItemCourse, ItemID: uuid.New(), Quantity: 1},
			{ItemType: models.OrderItemProduct, ItemID: uuid.New(), Quantity: 1},
		},
	}
	_ = store.Create(context.Background(), order)
	return order
}

func TestPaidOrderEnrollsBuyerIntoCourseItems(t *testing.T) {
	store := newFakeOrderStore()
	enroller := &fakeEnroller{}
	notifier := &fakeOrderNotifier{}
	h := NewHandler(store, enroller, notifier, zap.NewNop())
	order := seedCourseOrder(store)

	c, w := statusContext(t, order.ID, "paid")
	h.UpdateStatus(c)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, enroller.granted, 1, "course items only, not products")
	assert.Equal(t, order.UserID, enroller.granted[0].user)
	assert.Equal(t, order.Items[0].ItemID, enroller.granted[0].course)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, notifications.OrderPaid, notifier.events[0].Type)
}

func TestDeclinedOrderDoesNotEnroll(t *testing.T) {
	store := newFakeOrderStore()
	enroller := &fakeEnroller{}
	h := NewHandler(store, enroller, &fakeOrderNotifier{}, zap.NewNop())
	order := seedCourseOrder(store)

	c, w := statusContext(t, order.ID, "declined")
	h.UpdateStatus(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, enroller.granted)
}

func TestCompletedOrderAlsoEnrolls(t *testing.T) {
	store := newFakeOrderStore()
	enroller := &fakeEnroller{}
	h := NewHandler(store, enroller, &fakeOrderNotifier{}, zap.NewNop())
	order := seedCourseOrder(store)

	c, _ := statusContext(t, order.ID, "completed")
	h.UpdateStatus(c)

	require.Len(t, enroller.granted, 1)
	assert.Equal(t, order.Items[0].ItemID, enroller.granted[0].course)
}
