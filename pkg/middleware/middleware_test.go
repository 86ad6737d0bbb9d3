package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"fitcoach-controlplane/pkg/actor"
	"fitcoach-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

type conflictErr struct{}

func (conflictErr) Error() string              { return "cannot move from approved to rejected" }
func (conflictErr) Status() errutil.CoreStatus { return errutil.StatusConflict }
func (conflictErr) Details() []errutil.Detail {
	return []errutil.Detail{{Field: "current_status", Message: "approved"}}
}

func newEngine(h gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(Error(), Tenant(), Actor())
	r.GET("/x", h)
	return r
}

func do(r *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTenantHeaderRequired(t *testing.T) {
	r := newEngine(func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := do(r, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, map[string]string{TenantHeader: "t1"})
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestActorAndTenantOnContext(t *testing.T) {
	var got actor.Ref
	var tenant string
	r := newEngine(func(c *gin.Context) {
		got, _ = CurrentActor(c)
		tenant = TenantID(c)
		c.Status(http.StatusOK)
	})

	do(r, map[string]string{TenantHeader: "t1", ActorIDHeader: "ai_writer", ActorNameHeader: "Writer"})
	require.Equal(t, "t1", tenant)
	require.Equal(t, actor.AI, got.Kind)
	require.Equal(t, "Writer", got.Name)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{errutil.NotFound("assignment not found", nil), http.StatusNotFound},
		{errutil.ValidationFailed("notes are required", nil), http.StatusUnprocessableEntity},
		{conflictErr{}, http.StatusConflict},
		{errors.New("db down"), http.StatusInternalServerError},
		{&json.SyntaxError{Offset: 1}, http.StatusBadRequest},
	}

	for _, tc := range cases {
		r := newEngine(func(c *gin.Context) { _ = c.Error(tc.err) })
		w := do(r, map[string]string{TenantHeader: "t1"})
		require.Equal(t, tc.code, w.Code, tc.err.Error())
	}
}

func TestInternalErrorIsNotLeaked(t *testing.T) {
	r := newEngine(func(c *gin.Context) { _ = c.Error(errors.New("password=hunter2")) })
	w := do(r, map[string]string{TenantHeader: "t1"})
	require.NotContains(t, w.Body.String(), "hunter2")
}
