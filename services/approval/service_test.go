package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"fitcoach-controlplane/pkg/actor"
	"fitcoach-controlplane/pkg/errutil"
	"fitcoach-controlplane/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var (
	reviewer = actor.New("reviewer-1", "Rita Reviewer", actor.Human)
	aiWriter = actor.New("ai_generator", "Plan Generator", "")
)

const nutritionMeta = `{"name":"Lean Bulk","description":"High protein plan","source":"ai_generated","confidence_score":0.92,"meals":[{"name":"Breakfast","foods":[{"name":"Oats"}]}]}`

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := testutil.NewTestDB(t, &Workflow{})
	return NewService(ServiceParams{Repository: NewRepository(db), Node: testutil.NewNode(t)})
}

func submit(t *testing.T, svc *Service, tenantID string, et EntityType, entityID, meta string) *Workflow {
	t.Helper()
	w, err := svc.Submit(context.Background(), SubmitRequest{
		TenantID:   tenantID,
		EntityType: et,
		EntityID:   entityID,
		Submitter:  &aiWriter,
		Metadata:   json.RawMessage(meta),
	})
	require.NoError(t, err)
	return w
}

func TestSubmitCreatesPendingWorkflow(t *testing.T) {
	svc := newTestService(t)

	w := submit(t, svc, "t1", EntityNutrition, "plan-1", nutritionMeta)
	require.Equal(t, StatusPending, w.Status)
	require.Equal(t, "Lean Bulk", w.Title)
	require.Nil(t, w.ReviewedAt)
	require.Nil(t, w.ReviewedByID)
	require.Equal(t, actor.AI, w.Submitter().Kind)

	meta, err := w.Details()
	require.NoError(t, err)
	nm, ok := meta.(NutritionMetadata)
	require.True(t, ok)
	require.Len(t, nm.Meals, 1)
	require.InDelta(t, 0.92, *nm.ConfidenceScore, 0.0001)
}

func TestSubmitWithoutSubmitter(t *testing.T) {
	svc := newTestService(t)
	w, err := svc.Submit(context.Background(), SubmitRequest{
		TenantID:   "t1",
		EntityType: EntityWorkout,
		EntityID:   "w-1",
		Metadata:   json.RawMessage(`{"name":"Push Day","exercises":[{"name":"Bench Press","sets":4}]}`),
	})
	require.NoError(t, err)
	require.Nil(t, w.Submitter())
}

func TestSubmitValidatesMetadataPerEntityType(t *testing.T) {
	svc := newTestService(t)

	cases := []struct {
		name  string
		et    EntityType
		meta  string
		field string
	}{
		{"unknown type", EntityType("recipe"), `{"name":"x"}`, "entity_type"},
		{"exercise needs muscle groups", EntityExercise, `{"name":"Squat","muscle_groups":[" "]}`, "metadata.muscle_groups"},
		{"nutrition needs meals", EntityNutrition, `{"name":"Cut"}`, "metadata.meals"},
		{"workout needs exercises", EntityWorkout, `{"name":"Legs","exercises":[]}`, "metadata.exercises"},
		{"name required", EntityExercise, `{"muscle_groups":["quads"]}`, "metadata.name"},
		{"confidence bounds", EntityExercise, `{"name":"Squat","muscle_groups":["quads"],"confidence_score":1.5}`, "metadata.confidence_score"},
		{"malformed", EntityExercise, `{"name":1}`, "metadata"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), SubmitRequest{
				TenantID:   "t1",
				EntityType: tc.et,
				EntityID:   "e-1",
				Metadata:   json.RawMessage(tc.meta),
			})
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))
			require.Equal(t, tc.field, verr.Fields[0].Field)
		})
	}
}

func TestStateMachineTotality(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	w := submit(t, svc, "t1", EntityExercise, "ex-1", `{"name":"Squat","muscle_groups":["quads"]}`)
	approved, activation, err := svc.Approve(ctx, "t1", w.ID, reviewer, nil)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, EntityExercise, activation.EntityType)
	require.Equal(t, "ex-1", activation.EntityID)

	_, err = svc.Reject(ctx, "t1", w.ID, reviewer, "changed my mind")
	var stateErr *InvalidStateTransitionError
	require.ErrorAs(t, err, &stateErr)
	require.Equal(t, StatusApproved, stateErr.Current)
	require.Equal(t, StatusRejected, stateErr.Target)

	_, _, err = svc.Approve(ctx, "t1", w.ID, reviewer, nil)
	require.ErrorAs(t, err, &stateErr)
	require.Equal(t, errutil.StatusConflict, errutil.StatusOf(err))

	w2 := submit(t, svc, "t1", EntityExercise, "ex-2", `{"name":"Lunge","muscle_groups":["glutes"]}`)
	_, err = svc.Reject(ctx, "t1", w2.ID, reviewer, "form cues missing")
	require.NoError(t, err)
	_, _, err = svc.Approve(ctx, "t1", w2.ID, reviewer, nil)
	require.ErrorAs(t, err, &stateErr)
	require.Equal(t, StatusRejected, stateErr.Current)
}

func TestRejectRequiresNotes(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	w := submit(t, svc, "t1", EntityNutrition, "plan-1", nutritionMeta)

	for _, notes := range []string{"", "   ", "\n\t"} {
		_, err := svc.Reject(ctx, "t1", w.ID, reviewer, notes)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		require.Equal(t, "notes", verr.Fields[0].Field)
	}

	rejected, err := svc.Reject(ctx, "t1", w.ID, reviewer, "  needs revision  ")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.Equal(t, "needs revision", *rejected.Notes)
}

func TestRejectValidatesBeforeStoreAccess(t *testing.T) {
	svc := &Service{repo: nil, now: time.Now}
	_, err := svc.Reject(context.Background(), "t1", "missing", reviewer, " ")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestApproveNotesOptional(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	w := submit(t, svc, "t1", EntityNutrition, "plan-1", nutritionMeta)
	approved, _, err := svc.Approve(ctx, "t1", w.ID, reviewer, nil)
	require.NoError(t, err)
	require.Nil(t, approved.Notes)
	require.Equal(t, "reviewer-1", *approved.ReviewedByID)
	require.NotNil(t, approved.ReviewedAt)

	blank := "  "
	w2 := submit(t, svc, "t1", EntityNutrition, "plan-2", nutritionMeta)
	approved, _, err = svc.Approve(ctx, "t1", w2.ID, reviewer, &blank)
	require.NoError(t, err)
	require.Nil(t, approved.Notes)

	notes := "great macros"
	w3 := submit(t, svc, "t1", EntityNutrition, "plan-3", nutritionMeta)
	approved, _, err = svc.Approve(ctx, "t1", w3.ID, reviewer, &notes)
	require.NoError(t, err)
	require.Equal(t, "great macros", *approved.Notes)
}

func TestApproveRequiresReviewer(t *testing.T) {
	svc := newTestService(t)
	w := submit(t, svc, "t1", EntityNutrition, "plan-1", nutritionMeta)

	_, _, err := svc.Approve(context.Background(), "t1", w.ID, actor.Ref{}, nil)
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))
}

func TestTenantIsolation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	wb := submit(t, svc, "tenant-b", EntityNutrition, "plan-b", nutritionMeta)
	submit(t, svc, "tenant-a", EntityNutrition, "plan-a", nutritionMeta)

	list, _, err := svc.List(ctx, "tenant-a", Filters{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "tenant-a", list[0].TenantID)

	_, err = svc.Get(ctx, "tenant-a", wb.ID)
	require.True(t, errutil.Is(err, errutil.StatusNotFound))

	_, _, err = svc.Approve(ctx, "tenant-a", wb.ID, reviewer, nil)
	require.True(t, errutil.Is(err, errutil.StatusNotFound))

	still, err := svc.Get(ctx, "tenant-b", wb.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, still.Status)
}

func TestConcurrentReviewersOnlyOneWins(t *testing.T) {
	svc := newTestService(t)
	w := submit(t, svc, "t1", EntityNutrition, "plan-1", nutritionMeta)

	const reviewers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, _, err = svc.Approve(context.Background(), "t1", w.ID, reviewer, nil)
			} else {
				_, err = svc.Reject(context.Background(), "t1", w.ID, reviewer, "no")
			}

			mu.Lock()
			defer mu.Unlock()
			var stateErr *InvalidStateTransitionError
			switch {
			case err == nil:
				wins++
			case errors.As(err, &stateErr):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, wins)
	require.Equal(t, reviewers-1, conflicts)
}

func TestListFiltersAndOrdering(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := base
	svc.now = func() time.Time { return clock }

	first := submit(t, svc, "t1", EntityExercise, "ex-1", `{"name":"Goblet Squat","muscle_groups":["quads"]}`)
	time.Sleep(5 * time.Millisecond)
	second := submit(t, svc, "t1", EntityNutrition, "plan-1", `{"name":"Cutting Plan","description":"Low carb squat day fuel","meals":[{"name":"Lunch"}]}`)
	time.Sleep(5 * time.Millisecond)
	third := submit(t, svc, "t1", EntityExercise, "ex-2", `{"name":"Deadlift","muscle_groups":["back"]}`)

	list, _, err := svc.List(ctx, "t1", Filters{})
	require.NoError(t, err)
	require.Equal(t, []string{third.ID, second.ID, first.ID}, ids(list))

	list, _, err = svc.List(ctx, "t1", Filters{Search: "SQUAT"})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{first.ID, second.ID}, ids(list))

	list, _, err = svc.List(ctx, "t1", Filters{Search: "generator"})
	require.NoError(t, err)
	require.Len(t, list, 3, "search matches submitter display name")

	list, _, err = svc.List(ctx, "t1", Filters{EntityType: EntityExercise, Search: "squat"})
	require.NoError(t, err)
	require.Equal(t, []string{first.ID}, ids(list))

	// review oldest first, so reviewed_at order is the reverse of created_at
	clock = base.Add(time.Hour)
	_, _, err = svc.Approve(ctx, "t1", first.ID, reviewer, nil)
	require.NoError(t, err)
	clock = base.Add(2 * time.Hour)
	_, err = svc.Reject(ctx, "t1", second.ID, reviewer, "too low carb")
	require.NoError(t, err)

	list, _, err = svc.List(ctx, "t1", Filters{Status: StatusReviewed})
	require.NoError(t, err)
	require.Equal(t, []string{second.ID, first.ID}, ids(list))

	list, _, err = svc.List(ctx, "t1", Filters{Status: StatusPending})
	require.NoError(t, err)
	require.Equal(t, []string{third.ID}, ids(list))

	list, page, err := svc.List(ctx, "t1", Filters{Limit: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.True(t, page.HasMore)

	_, _, err = svc.List(ctx, "t1", Filters{Status: "archived"})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	_, _, err = svc.List(ctx, "t1", Filters{Cursor: "not-a-cursor"})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))
}

func TestListWalksPagesWithCursor(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := base
	svc.now = func() time.Time { return clock }

	var submitted []*Workflow
	for i := 0; i < 5; i++ {
		submitted = append(submitted, submit(t, svc, "t1", EntityExercise, fmt.Sprintf("ex-%d", i), `{"name":"Row","muscle_groups":["back"]}`))
	}

	walk := func(f Filters) []string {
		var seen []string
		for pages := 0; ; pages++ {
			require.Less(t, pages, 10)
			list, page, err := svc.List(ctx, "t1", f)
			require.NoError(t, err)
			require.LessOrEqual(t, len(list), 2)
			seen = append(seen, ids(list)...)
			if !page.HasMore {
				require.Empty(t, page.NextCursor)
				return seen
			}
			f.Cursor = page.NextCursor
		}
	}

	all, _, err := svc.List(ctx, "t1", Filters{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	require.Equal(t, ids(all), walk(Filters{Limit: 2}))

	// every review shares one reviewed_at, so only the id breaks ties
	clock = base.Add(time.Hour)
	for _, w := range submitted[:3] {
		_, _, err := svc.Approve(ctx, "t1", w.ID, reviewer, nil)
		require.NoError(t, err)
	}

	reviewed, _, err := svc.List(ctx, "t1", Filters{Status: StatusReviewed})
	require.NoError(t, err)
	require.Len(t, reviewed, 3)
	require.Equal(t, ids(reviewed), walk(Filters{Status: StatusReviewed, Limit: 2}))
	require.Len(t, walk(Filters{Status: StatusPending, Limit: 2}), 2)
}

func TestStatsAndAudit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	day := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return day }

	stats, err := svc.Stats(ctx, "t1", DateRange{From: day.Add(-time.Hour), To: day.Add(time.Hour)})
	require.NoError(t, err)
	require.NotNil(t, stats)
	require.Empty(t, stats)

	ex1 := submit(t, svc, "t1", EntityExercise, "ex-1", `{"name":"Squat","muscle_groups":["quads"]}`)
	ex2 := submit(t, svc, "t1", EntityExercise, "ex-2", `{"name":"Row","muscle_groups":["back"]}`)
	n1 := submit(t, svc, "t1", EntityNutrition, "plan-1", nutritionMeta)
	submit(t, svc, "t1", EntityNutrition, "plan-2", nutritionMeta)
	other := submit(t, svc, "t2", EntityNutrition, "plan-x", nutritionMeta)

	_, _, err = svc.Approve(ctx, "t1", ex1.ID, reviewer, nil)
	require.NoError(t, err)
	_, err = svc.Reject(ctx, "t1", ex2.ID, reviewer, "duplicate")
	require.NoError(t, err)
	_, _, err = svc.Approve(ctx, "t1", n1.ID, reviewer, nil)
	require.NoError(t, err)
	_, _, err = svc.Approve(ctx, "t2", other.ID, reviewer, nil)
	require.NoError(t, err)

	stats, err = svc.Stats(ctx, "t1", DateRange{From: day.Add(-time.Hour), To: day.Add(time.Hour)})
	require.NoError(t, err)
	require.Equal(t, []EntityTypeStats{
		{EntityType: EntityExercise, Total: 2, Approved: 1, Rejected: 1},
		{EntityType: EntityNutrition, Total: 1, Approved: 1, Rejected: 0},
	}, stats)

	stats, err = svc.Stats(ctx, "t1", DateRange{From: day.Add(time.Hour), To: day.Add(2 * time.Hour)})
	require.NoError(t, err)
	require.Empty(t, stats)

	_, err = svc.Stats(ctx, "t1", DateRange{From: day, To: day.Add(-time.Hour)})
	require.True(t, errutil.Is(err, errutil.StatusValidationFailed))

	report, err := svc.Audit(ctx, "t1", AuditFilters{})
	require.NoError(t, err)
	require.Len(t, report.Workflows, 3)
	require.Equal(t, int64(3), report.Summary.Total)
	require.Equal(t, int64(2), report.Summary.Approved)
	require.Equal(t, int64(1), report.Summary.Rejected)
	require.Equal(t, int64(2), report.Summary.ByEntityType[EntityExercise])

	report, err = svc.Audit(ctx, "t1", AuditFilters{EntityType: EntityNutrition, ReviewedBy: "reviewer-1"})
	require.NoError(t, err)
	require.Len(t, report.Workflows, 1)
	require.Equal(t, n1.ID, report.Workflows[0].ID)
}

func ids(list []*Workflow) []string {
	out := make([]string, 0, len(list))
	for _, w := range list {
		out = append(out, w.ID)
	}
	return out
}

func TestApproveWithUndecodableMetadataStillApproves(t *testing.T) {
	db := testutil.NewTestDB(t, &Workflow{})
	svc := NewService(ServiceParams{Repository: NewRepository(db), Node: testutil.NewNode(t)})
	ctx := context.Background()

	w := submit(t, svc, "t1", EntityNutrition, "plan-1", nutritionMeta)
	require.NoError(t, db.Exec("UPDATE approval_workflows SET metadata = ? WHERE id = ?", "{not json", w.ID).Error)

	approved, activation, err := svc.Approve(ctx, "t1", w.ID, reviewer, nil)
	require.NoError(t, err)
	require.Nil(t, activation)
	require.Equal(t, StatusApproved, approved.Status)

	got, err := svc.Get(ctx, "t1", w.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, got.Status)
}
