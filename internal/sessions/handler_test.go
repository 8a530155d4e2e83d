package sessions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vedalearn/backend/internal/errs"
	"github.com/vedalearn/backend/internal/middleware"
	"github.com/vedalearn/backend/internal/models"
)

func newTestContext(t *testing.T, method, target string, user *models.User) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, nil)
	if user != nil {
		c.Set(middleware.ContextUserID, user.ID)
		c.Set(middleware.ContextUserRole, user.Role)
	}
	return c, w
}

func TestGetByIDNeverExposesSigningToken(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, time.Now().Add(5*time.Minute))
	_, err := f.svc.Start(context.Background(), sess.ID)
	require.NoError(t, err)

	// the stored host token exists but must stay server-side on reads
	stored, err := f.svc.GetByID(context.Background(), sess.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Token)

	outsider := &models.User{ID: uuid.New(), FullName: "Kiran Pillai", Role: models.RoleStudent}
	f.users.users[outsider.ID] = outsider
	_, err = f.svc.Join(context.Background(), sess.ID, outsider)
	require.ErrorIs(t, err, errs.ErrForbidden, "outsider cannot join")

	h := NewHandler(f.svc, f.users, nil, zap.NewNop())
	c, w := newTestContext(t, http.MethodGet, "/sessions/"+sess.ID.String(), outsider)
	c.Params = gin.Params{{Key: "id", Value: sess.ID.String()}}
	h.GetByID(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "channel_name")
	assert.NotContains(t, w.Body.String(), `"token"`)
	assert.NotContains(t, w.Body.String(), *stored.Token)
}

func TestListByCourseNeverExposesSigningToken(t *testing.T) {
	f := newFixture(t)
	sess := f.createSession(t, time.Now().Add(5*time.Minute))
	_, err := f.svc.Start(context.Background(), sess.ID)
	require.NoError(t, err)

	h := NewHandler(f.svc, f.users, nil, zap.NewNop())
	c, w := newTestContext(t, http.MethodGet, "/courses/"+f.courseID.String()+"/sessions", f.student)
	c.Params = gin.Params{{Key: "id", Value: f.courseID.String()}}
	h.ListByCourse(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"token"`)
}
