package approval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fitcoach-controlplane/pkg/authz"
	"fitcoach-controlplane/pkg/config"
	"fitcoach-controlplane/pkg/httpapi"
	"fitcoach-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type fakeContent struct {
	existing  map[string]bool
	activated map[string]bool
	rejected  map[string]bool
}

func newFakeContent(ids ...string) *fakeContent {
	f := &fakeContent{existing: map[string]bool{}, activated: map[string]bool{}, rejected: map[string]bool{}}
	for _, id := range ids {
		f.existing[id] = true
	}
	return f
}

func (f *fakeContent) Exists(_ context.Context, _ string, _ EntityType, id string) (bool, error) {
	return f.existing[id], nil
}

func (f *fakeContent) Activate(_ context.Context, a Activation) (bool, error) {
	f.activated[a.EntityID] = true
	return true, nil
}

func (f *fakeContent) MarkRejected(_ context.Context, a Activation) error {
	f.rejected[a.EntityID] = true
	return nil
}

func newTestEngine(t *testing.T, content *fakeContent) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	enforcer, err := authz.NewDefaultEnforcer()
	require.NoError(t, err)
	cfg := &config.Config{}
	cfg.AccessControl.Grants = []string{"reviewer-1,reviewer,t1"}
	a, err := authz.NewAuthorizer(enforcer, cfg)
	require.NoError(t, err)

	engine := gin.New()
	RegisterRoutes(httpapi.NewAPI(engine), NewHandler(HandlerParams{
		Service:    newTestService(t),
		Lookup:     content,
		Activator:  content,
		Authorizer: a,
	}))
	return engine
}

func call(engine *gin.Engine, method, path, actorID, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(middleware.TenantHeader, "t1")
	if actorID != "" {
		req.Header.Set(middleware.ActorIDHeader, actorID)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestApproveThenActivate(t *testing.T) {
	content := newFakeContent("plan-1")
	engine := newTestEngine(t, content)

	w := call(engine, http.MethodPost, "/v1/approvals", "ai_generator",
		`{"entity_type":"nutrition","entity_id":"plan-1","metadata":`+nutritionMeta+`}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created Workflow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Equal(t, StatusPending, created.Status)

	w = call(engine, http.MethodPost, "/v1/approvals/"+created.ID+"/approve", "reviewer-1", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Approval  Workflow `json:"approval"`
		Activated bool     `json:"activated"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, StatusApproved, resp.Approval.Status)
	require.Equal(t, "reviewer-1", *resp.Approval.ReviewedByID)
	require.NotNil(t, resp.Approval.ReviewedAt)
	require.True(t, resp.Activated)
	require.True(t, content.activated["plan-1"])

	w = call(engine, http.MethodPost, "/v1/approvals/"+created.ID+"/reject", "reviewer-1", `{"notes":"too late"}`)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), "current_status")
}

func TestRejectEndpoint(t *testing.T) {
	content := newFakeContent("ex-1")
	engine := newTestEngine(t, content)

	w := call(engine, http.MethodPost, "/v1/approvals", "ai_generator",
		`{"entity_type":"exercise","entity_id":"ex-1","metadata":{"name":"Squat","muscle_groups":["quads"]}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created Workflow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = call(engine, http.MethodPost, "/v1/approvals/"+created.ID+"/reject", "reviewer-1", `{"notes":"   "}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = call(engine, http.MethodPost, "/v1/approvals/"+created.ID+"/reject", "reviewer-1", `{"notes":"needs revision"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "needs revision")
	require.True(t, content.rejected["ex-1"])
}

func TestSubmitUnknownEntity(t *testing.T) {
	engine := newTestEngine(t, newFakeContent())

	w := call(engine, http.MethodPost, "/v1/approvals", "ai_generator",
		`{"entity_type":"exercise","entity_id":"missing","metadata":{"name":"Squat","muscle_groups":["quads"]}}`)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = call(engine, http.MethodPost, "/v1/approvals", "ai_generator",
		`{"entity_type":"recipe","entity_id":"x"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestReviewRequiresRole(t *testing.T) {
	engine := newTestEngine(t, newFakeContent("plan-1"))

	w := call(engine, http.MethodPost, "/v1/approvals", "ai_generator",
		`{"entity_type":"nutrition","entity_id":"plan-1","metadata":`+nutritionMeta+`}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created Workflow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = call(engine, http.MethodPost, "/v1/approvals/"+created.ID+"/approve", "ai_generator", "")
	require.Equal(t, http.StatusForbidden, w.Code)

	w = call(engine, http.MethodPost, "/v1/approvals/"+created.ID+"/approve", "", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListAndStatsEndpoints(t *testing.T) {
	engine := newTestEngine(t, newFakeContent("plan-1"))

	w := call(engine, http.MethodPost, "/v1/approvals", "ai_generator",
		`{"entity_type":"nutrition","entity_id":"plan-1","metadata":`+nutritionMeta+`}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = call(engine, http.MethodGet, "/v1/approvals?status=pending&search=lean", "reviewer-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Approvals []Workflow `json:"approvals"`
		PageInfo  struct {
			NextCursor string `json:"next_cursor"`
			HasMore    bool   `json:"has_more"`
		} `json:"page_info"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Approvals, 1)
	require.False(t, list.PageInfo.HasMore)
	require.Contains(t, w.Body.String(), `"page_info":{"has_more":false}`)

	w = call(engine, http.MethodGet, "/v1/approvals?cursor=@@@", "reviewer-1", "")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = call(engine, http.MethodGet, "/v1/approvals?status=archived", "reviewer-1", "")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = call(engine, http.MethodGet, "/v1/approvals/stats", "reviewer-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"stats":[]`)

	w = call(engine, http.MethodGet, "/v1/approvals/stats?from=yesterday", "reviewer-1", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}
