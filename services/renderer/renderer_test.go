package renderer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fitcoach-controlplane/pkg/errutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeConverter struct {
	html []byte
	err  error
}

func (f *fakeConverter) Convert(_ context.Context, html []byte) ([]byte, error) {
	f.html = html
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.7 fake"), nil
}

type fakeStore struct {
	objects map[string][]byte
	putErr  error
}

func (f *fakeStore) Put(_ context.Context, key string, body []byte, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[key] = body
	return nil
}

func (f *fakeStore) URL(_ context.Context, key string) (string, error) {
	return "https://cdn.test/" + key, nil
}

type fakeSeq struct {
	code string
	err  error
}

func (f fakeSeq) NextTenantCode(context.Context) (string, error)         { return "T001", nil }
func (f fakeSeq) NextClientCode(context.Context, string) (string, error) { return "C-001", nil }
func (f fakeSeq) NextArtifactCode(context.Context, string) (string, error) {
	return f.code, f.err
}

func trainingPlan() TrainingPlan {
	return TrainingPlan{
		Header: Header{
			TenantID:    "tenant-1",
			ReferenceID: "plan-1",
			Title:       "Strength Block",
			ClientName:  "Jane Doe",
			ClientCode:  "CL 001",
		},
		DurationWeeks:   8,
		WorkoutsPerWeek: 3,
		Exercises: []Exercise{
			{Name: "Back Squat", Sets: 5, Reps: "5", Tempo: "3-1-1", RestSeconds: 180},
		},
	}
}

func TestTemplatesApplyDefaults(t *testing.T) {
	tpl, err := NewTemplates()
	require.NoError(t, err)

	html, err := tpl.HTML(trainingPlan())
	require.NoError(t, err)

	out := string(html)
	require.Contains(t, out, DefaultCompanyName)
	require.Contains(t, out, DefaultPrimaryColor)
	require.Contains(t, out, "Prepared by: "+DefaultTrainerName)
	require.Contains(t, out, "Back Squat")
	require.Contains(t, out, "180s")
	require.Contains(t, out, "8 weeks")
}

func TestTemplatesEscapeContent(t *testing.T) {
	tpl, err := NewTemplates()
	require.NoError(t, err)

	doc := trainingPlan()
	doc.ClientName = "<script>alert(1)</script>"
	doc.Branding.PrimaryColor = "red;}</style><script>"

	html, err := tpl.HTML(doc)
	require.NoError(t, err)
	require.NotContains(t, string(html), "<script>")
	require.Contains(t, string(html), DefaultPrimaryColor)
}

func TestTemplatesEveryKind(t *testing.T) {
	tpl, err := NewTemplates()
	require.NoError(t, err)

	head := Header{TenantID: "t1", ReferenceID: "r1", Title: "Doc", ClientName: "Sam"}
	docs := []Document{
		NutritionPlan{Header: head, Meals: []Meal{{Name: "Breakfast", Time: "07:00", TotalCalories: 450.5}}, Macros: &MacroSummary{TotalCalories: 2200, ProteinPercent: 30}},
		ProgressReport{Header: head, Rounds: []CheckInRound{{RoundNumber: 1, WeightKg: 80.2}}},
		Invoice{Header: head, Number: "INV-1", Currency: "USD", Items: []LineItem{{Description: "Coaching", Quantity: 2, UnitPrice: 49.5}}},
	}

	for _, doc := range docs {
		html, err := tpl.HTML(doc)
		require.NoError(t, err, doc.Kind())
		require.NotEmpty(t, html)
	}

	html, err := tpl.HTML(docs[2])
	require.NoError(t, err)
	require.Contains(t, string(html), "USD 99.00")
}

func TestRenderStoresArtifact(t *testing.T) {
	tpl, err := NewTemplates()
	require.NoError(t, err)

	conv := &fakeConverter{}
	store := &fakeStore{}
	r := NewPDFRenderer(tpl, conv, store, fakeSeq{code: "PDF-250304-001AB"})

	art, err := r.Render(context.Background(), trainingPlan())
	require.NoError(t, err)
	require.Equal(t, "plans/tenant-1/cl-001_plan-1_PDF-250304-001AB.pdf", art.ObjectKey)
	require.Equal(t, "https://cdn.test/"+art.ObjectKey, art.URL)
	require.Equal(t, contentTypePDF, art.ContentType)
	require.Contains(t, store.objects, art.ObjectKey)
	require.NotEmpty(t, conv.html)
}

func TestRenderFallsBackWhenSequenceFails(t *testing.T) {
	tpl, err := NewTemplates()
	require.NoError(t, err)

	r := NewPDFRenderer(tpl, &fakeConverter{}, &fakeStore{}, fakeSeq{err: errors.New("redis down")})
	r.now = func() time.Time { return time.UnixMilli(1700000000000) }

	art, err := r.Render(context.Background(), trainingPlan())
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(art.ObjectKey, "_1700000000000.pdf"))
}

func TestRenderConverterFailure(t *testing.T) {
	tpl, err := NewTemplates()
	require.NoError(t, err)

	store := &fakeStore{}
	r := NewPDFRenderer(tpl, &fakeConverter{err: errutil.BadGateway("pdf converter unavailable", nil)}, store, fakeSeq{code: "X"})

	_, err = r.Render(context.Background(), trainingPlan())
	require.Error(t, err)
	require.Equal(t, errutil.StatusBadGateway, errutil.StatusOf(err))
	require.Empty(t, store.objects)
}

func TestGotenbergConverter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/forms/chromium/convert/html", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, header, err := r.FormFile("files")
		require.NoError(t, err)
		require.Equal(t, "index.html", header.Filename)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	pdf, err := NewGotenbergConverter(srv.URL, 5*time.Second).Convert(context.Background(), []byte("<html></html>"))
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.7", string(pdf))
}

func TestGotenbergConverterError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "chromium crashed", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewGotenbergConverter(srv.URL, 5*time.Second).Convert(context.Background(), []byte("<html></html>"))
	require.Error(t, err)
	require.Equal(t, errutil.StatusBadGateway, errutil.StatusOf(err))
}

func TestObjectKey(t *testing.T) {
	require.Equal(t, "plans/t1/client_p1_c1.pdf", ObjectKey("t1", "", "p1", "c1"))
	require.Equal(t, "plans/t1/jane-doe_p1_c1.pdf", ObjectKey("t1", "Jane Doe", "p1", "c1"))
}
