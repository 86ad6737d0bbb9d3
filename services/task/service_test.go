package task

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fitcoach-controlplane/pkg/authz"
	"fitcoach-controlplane/pkg/config"
	"fitcoach-controlplane/pkg/errutil"
	"fitcoach-controlplane/pkg/httpapi"
	"fitcoach-controlplane/pkg/middleware"
	pkgtask "fitcoach-controlplane/pkg/task"
	"fitcoach-controlplane/pkg/taskname"
	"fitcoach-controlplane/services/delivery"
	"fitcoach-controlplane/services/testutil"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

type recordingEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, t *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.tasks = append(r.tasks, t)
	return &asynq.TaskInfo{ID: "task-1", Type: t.Type()}, nil
}

type fakeDeliverer struct {
	DeliverPlanFn   func(ctx context.Context, req delivery.Request) (*delivery.Result, error)
	RetryDeliveryFn func(ctx context.Context, req delivery.Request) (*delivery.Result, error)
	DeliverBatchFn  func(ctx context.Context, req delivery.BatchRequest) ([]*delivery.Result, error)
}

func (f *fakeDeliverer) DeliverPlan(ctx context.Context, req delivery.Request) (*delivery.Result, error) {
	return f.DeliverPlanFn(ctx, req)
}

func (f *fakeDeliverer) RetryDelivery(ctx context.Context, req delivery.Request) (*delivery.Result, error) {
	return f.RetryDeliveryFn(ctx, req)
}

func (f *fakeDeliverer) DeliverBatch(ctx context.Context, req delivery.BatchRequest) ([]*delivery.Result, error) {
	return f.DeliverBatchFn(ctx, req)
}

func newTestService(t *testing.T, enq pkgtask.Enqueuer, d Deliverer) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, &Job{})
	return NewService(Params{DB: db, Node: testutil.NewNode(t), Enqueuer: enq, Deliverer: d}), db
}

func TestEnqueueDelivery(t *testing.T) {
	enq := &recordingEnqueuer{}
	svc, _ := newTestService(t, enq, nil)
	ctx := context.Background()

	job, err := svc.EnqueueDelivery(ctx, "t1", "assign-1", true)
	require.NoError(t, err)
	require.Equal(t, JobPending, job.Status)
	require.Equal(t, KindDeliveryPlan, job.Kind)
	require.Equal(t, taskname.QueueCritical, job.Queue)

	require.Len(t, enq.tasks, 1)
	require.Equal(t, taskname.DeliveryPlan, enq.tasks[0].Type())

	var p taskname.DeliveryPlanPayload
	require.NoError(t, pkgtask.DecodePayload(enq.tasks[0], &p))
	require.Equal(t, job.ID, p.JobID)
	require.Equal(t, "assign-1", p.AssignmentID)
	require.True(t, p.Retry)

	got, err := svc.GetJob(ctx, "t1", job.ID)
	require.NoError(t, err)
	require.Equal(t, JobPending, got.Status)

	_, err = svc.GetJob(ctx, "t2", job.ID)
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}

func TestEnqueueValidates(t *testing.T) {
	svc, _ := newTestService(t, &recordingEnqueuer{}, nil)
	ctx := context.Background()

	_, err := svc.EnqueueDelivery(ctx, "t1", " ", false)
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	_, err = svc.EnqueueBatch(ctx, "t1", nil)
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))
}

func TestEnqueueFailureMarksJobFailed(t *testing.T) {
	svc, db := newTestService(t, &recordingEnqueuer{err: errors.New("redis down")}, nil)

	_, err := svc.EnqueueBatch(context.Background(), "t1", []string{"a1", "a2"})
	require.True(t, errutil.Is(err, errutil.StatusBadGateway))

	var jobs []Job
	require.NoError(t, db.Find(&jobs).Error)
	require.Len(t, jobs, 1)
	require.Equal(t, JobFailed, jobs[0].Status)
	require.Equal(t, KindDeliveryBatch, jobs[0].Kind)
}

func TestEnqueueWithoutClient(t *testing.T) {
	svc, _ := newTestService(t, nil, nil)

	_, err := svc.EnqueueDelivery(context.Background(), "t1", "assign-1", false)
	require.True(t, errutil.Is(err, errutil.StatusNotImplemented))
}

func TestHandleDeliveryPlan(t *testing.T) {
	enq := &recordingEnqueuer{}
	var got delivery.Request
	d := &fakeDeliverer{
		RetryDeliveryFn: func(_ context.Context, req delivery.Request) (*delivery.Result, error) {
			got = req
			return &delivery.Result{AssignmentID: req.AssignmentID, Success: true, PDFURL: "https://cdn.test/p.pdf"}, nil
		},
	}
	svc, _ := newTestService(t, enq, d)
	ctx := context.Background()

	job, err := svc.EnqueueDelivery(ctx, "t1", "assign-1", true)
	require.NoError(t, err)

	require.NoError(t, svc.HandleDeliveryPlan(ctx, enq.tasks[0]))
	require.Equal(t, delivery.Request{TenantID: "t1", AssignmentID: "assign-1"}, got)

	done, err := svc.GetJob(ctx, "t1", job.ID)
	require.NoError(t, err)
	require.Equal(t, JobSuccess, done.Status)
	require.NotNil(t, done.StartedAt)
	require.NotNil(t, done.CompletedAt)
	require.Contains(t, string(done.Result), "https://cdn.test/p.pdf")
}

func TestHandleDeliveryPlanRecordsFailure(t *testing.T) {
	enq := &recordingEnqueuer{}
	d := &fakeDeliverer{
		DeliverPlanFn: func(_ context.Context, req delivery.Request) (*delivery.Result, error) {
			return &delivery.Result{AssignmentID: req.AssignmentID, Error: "client phone number not found"}, nil
		},
	}
	svc, _ := newTestService(t, enq, d)
	ctx := context.Background()

	job, err := svc.EnqueueDelivery(ctx, "t1", "assign-1", false)
	require.NoError(t, err)
	require.NoError(t, svc.HandleDeliveryPlan(ctx, enq.tasks[0]))

	done, err := svc.GetJob(ctx, "t1", job.ID)
	require.NoError(t, err)
	require.Equal(t, JobFailed, done.Status)
	require.Equal(t, "client phone number not found", done.ErrorMsg)
}

func TestHandleDeliveryPlanStoreFaultIsRetried(t *testing.T) {
	enq := &recordingEnqueuer{}
	d := &fakeDeliverer{
		DeliverPlanFn: func(context.Context, delivery.Request) (*delivery.Result, error) {
			return nil, errutil.Internal("failed to load assignment", errors.New("conn refused"))
		},
	}
	svc, _ := newTestService(t, enq, d)

	_, err := svc.EnqueueDelivery(context.Background(), "t1", "assign-1", false)
	require.NoError(t, err)

	err = svc.HandleDeliveryPlan(context.Background(), enq.tasks[0])
	require.Error(t, err)
	require.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleMissingJobSkipsRetry(t *testing.T) {
	svc, _ := newTestService(t, nil, &fakeDeliverer{})

	task, err := pkgtask.NewJSONTask(taskname.DeliveryPlan, taskname.DeliveryPlanPayload{JobID: "gone", TenantID: "t1", AssignmentID: "a1"})
	require.NoError(t, err)

	err = svc.HandleDeliveryPlan(context.Background(), task)
	require.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleDeliveryBatch(t *testing.T) {
	enq := &recordingEnqueuer{}
	d := &fakeDeliverer{
		DeliverBatchFn: func(_ context.Context, req delivery.BatchRequest) ([]*delivery.Result, error) {
			out := make([]*delivery.Result, 0, len(req.AssignmentIDs))
			for _, id := range req.AssignmentIDs {
				out = append(out, &delivery.Result{AssignmentID: id, Success: id != "a2"})
			}
			return out, nil
		},
	}
	svc, _ := newTestService(t, enq, d)
	ctx := context.Background()

	job, err := svc.EnqueueBatch(ctx, "t1", []string{"a1", "a2"})
	require.NoError(t, err)
	require.NoError(t, svc.HandleDeliveryBatch(ctx, enq.tasks[0]))

	done, err := svc.GetJob(ctx, "t1", job.ID)
	require.NoError(t, err)
	require.Equal(t, JobSuccess, done.Status)

	var result struct {
		Results []delivery.Result `json:"results"`
	}
	require.NoError(t, json.Unmarshal(done.Result, &result))
	require.Len(t, result.Results, 2)
	require.False(t, result.Results[1].Success)
}

func TestFailStaleJobs(t *testing.T) {
	svc, db := newTestService(t, nil, nil)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	old := now.Add(-2 * time.Hour)
	recent := now.Add(-time.Minute)
	require.NoError(t, db.Create(&Job{ID: "j1", TenantID: "t1", Kind: KindDeliveryPlan, Status: JobRunning, StartedAt: &old}).Error)
	require.NoError(t, db.Create(&Job{ID: "j2", TenantID: "t1", Kind: KindDeliveryPlan, Status: JobRunning, StartedAt: &recent}).Error)

	n, err := svc.FailStaleJobs(context.Background(), time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	j1, err := svc.GetJob(context.Background(), "t1", "j1")
	require.NoError(t, err)
	require.Equal(t, JobFailed, j1.Status)
	require.Equal(t, "worker lost", j1.ErrorMsg)
}

func TestNextRunTime(t *testing.T) {
	loc := time.UTC
	before := time.Date(2026, 3, 2, 0, 30, 0, 0, loc)
	require.Equal(t, time.Date(2026, 3, 2, 1, 0, 0, 0, loc), nextRunTime(before, 1, 0))

	after := time.Date(2026, 3, 2, 5, 0, 0, 0, loc)
	require.Equal(t, time.Date(2026, 3, 3, 1, 0, 0, 0, loc), nextRunTime(after, 1, 0))
}

func TestJobRoutes(t *testing.T) {
	enq := &recordingEnqueuer{}
	svc, _ := newTestService(t, enq, nil)

	enforcer, err := authz.NewDefaultEnforcer()
	require.NoError(t, err)
	cfg := &config.Config{}
	cfg.AccessControl.Grants = []string{"coach-1,trainer,t1"}
	a, err := authz.NewAuthorizer(enforcer, cfg)
	require.NoError(t, err)

	engine := gin.New()
	RegisterRoutes(httpapi.NewAPI(engine), NewHandler(svc, a))

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.TenantHeader, "t1")
		req.Header.Set(middleware.ActorIDHeader, "coach-1")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w
	}

	w := do(http.MethodPost, "/v1/delivery-jobs", `{"assignment_id":"assign-1"}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var job Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	require.Equal(t, JobPending, job.Status)

	w = do(http.MethodGet, "/v1/delivery-jobs/"+job.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"kind":"delivery_plan"`)

	w = do(http.MethodPost, "/v1/delivery-jobs", `{"assignment_ids":["a1","a2"]}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, enq.tasks, 2)
	require.Equal(t, taskname.DeliveryBatch, enq.tasks[1].Type())

	w = do(http.MethodPost, "/v1/delivery-jobs", `{}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(http.MethodGet, "/v1/delivery-jobs/missing", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}
