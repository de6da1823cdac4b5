package dataset

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/fakeyudi/chemvis/internal/logging"
	"github.com/fakeyudi/chemvis/internal/session"
	"github.com/fakeyudi/chemvis/internal/testutil"
	"github.com/fakeyudi/chemvis/internal/transport"
)

// recordingOpener remembers the URLs it was asked to open.
type recordingOpener struct {
	mu   sync.Mutex
	urls []string
}

func (o *recordingOpener) Open(u string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.urls = append(o.urls, u)
	return nil
}

type fixture struct {
	api    *testutil.FakeAPI
	sess   *session.Controller
	ctrl   *Controller
	opener *recordingOpener
}

// loggedIn returns a dataset controller whose session is logged in as
// admin/admin against a fresh fake API.
func loggedIn(t *testing.T, api *testutil.FakeAPI) *fixture {
	t.Helper()
	return loggedInAt(t, api, api.Start(t))
}

// loggedInAt is loggedIn against an already started fake at base.
func loggedInAt(t *testing.T, api *testutil.FakeAPI, base string) *fixture {
	t.Helper()
	client, err := transport.New(base, transport.WithLogger(logging.Discard()))
	require.NoError(t, err)
	sess := session.NewController(client, session.WithLogger(logging.Discard()))
	require.NoError(t, sess.Login(context.Background(), "admin", "admin"))
	opener := &recordingOpener{}
	ctrl := NewController(client, sess, WithLogger(logging.Discard()), WithOpener(opener))
	return &fixture{api: api, sess: sess, ctrl: ctrl, opener: opener}
}

func TestOnLoginFetchesHistoryOnce(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.Seed(testutil.EquipmentRecord())
	f := loggedIn(t, api)
	probes := api.Hits("history")

	require.NoError(t, f.ctrl.OnLogin(context.Background()))
	assert.Equal(t, probes+1, api.Hits("history"))
	hist := f.ctrl.History()
	require.Len(t, hist, 1)
	assert.Equal(t, 7, hist[0].ID)
}

func TestUploadEquipmentScenario(t *testing.T) {
	api := testutil.NewFakeAPI()
	f := loggedIn(t, api)
	api.NextUpload(testutil.EquipmentRecord())
	path := testutil.WriteCSV(t, t.TempDir(), "equipment.csv", testutil.SampleCSV)
	before := api.Hits("history")

	sum, err := f.ctrl.UploadFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 7, sum.ID)
	assert.Equal(t, "equipment.csv", sum.Filename)
	assert.Equal(t, 12, sum.TotalCount)
	assert.InDelta(t, 34.5, sum.AvgFlowrate, 1e-9)
	assert.InDelta(t, 2.1, sum.AvgPressure, 1e-9)
	assert.InDelta(t, 80.0, sum.AvgTemperature, 1e-9)
	assert.True(t, sum.Timestamp.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, []Slice{{Name: "pump", Value: 5}, {Name: "valve", Value: 7}}, sum.Breakdown())

	st := f.ctrl.Snapshot()
	require.NotNil(t, st.Current)
	assert.Equal(t, *sum, *st.Current)
	assert.False(t, st.Uploading)
	assert.Empty(t, st.Selection)
	assert.Empty(t, st.APIError)

	assert.Equal(t, before+1, api.Hits("history"), "history must be re-fetched exactly once")
	require.Len(t, st.History, 1)
	assert.Equal(t, 7, st.History[0].ID)
}

func TestUploadNoFileIsValidationError(t *testing.T) {
	api := testutil.NewFakeAPI()
	f := loggedIn(t, api)

	_, err := f.ctrl.UploadFile(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoFile)
	assert.Zero(t, api.Hits("upload"))
	assert.False(t, f.ctrl.Snapshot().Uploading)
}

func TestUploadServerErrorKeepsCurrent(t *testing.T) {
	api := testutil.NewFakeAPI()
	f := loggedIn(t, api)
	dir := t.TempDir()

	good := testutil.WriteCSV(t, dir, "good.csv", testutil.SampleCSV)
	first, err := f.ctrl.UploadFile(context.Background(), good)
	require.NoError(t, err)

	bad := testutil.WriteCSV(t, dir, "bad.csv", "Equipment Name,Flowrate\nP-1,3\n")
	f.ctrl.SelectFile(bad)
	historyBefore := api.Hits("history")
	_, err = f.ctrl.UploadFile(context.Background(), bad)
	require.Error(t, err)

	st := f.ctrl.Snapshot()
	require.NotNil(t, st.Current)
	assert.Equal(t, first.ID, st.Current.ID, "failed upload must not replace the current dataset")
	assert.Equal(t, "Missing required column: Type", st.APIError)
	assert.False(t, st.Uploading)
	assert.Empty(t, st.Selection)
	assert.Equal(t, historyBefore, api.Hits("history"), "failed upload must not refetch history")
}

func TestUploadGenericFailureMessage(t *testing.T) {
	api := testutil.NewFakeAPI()
	f := loggedIn(t, api)
	api.Fail("upload", http.StatusBadGateway, "")

	path := testutil.WriteCSV(t, t.TempDir(), "x.csv", testutil.SampleCSV)
	_, err := f.ctrl.UploadFile(context.Background(), path)
	require.Error(t, err)
	assert.Equal(t, MsgUploadFailed, f.ctrl.Snapshot().APIError)
	assert.Nil(t, f.ctrl.Current())
}

func TestUploadMissingLocalFile(t *testing.T) {
	api := testutil.NewFakeAPI()
	f := loggedIn(t, api)

	_, err := f.ctrl.UploadFile(context.Background(), filepath.Join(t.TempDir(), "gone.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.True(t, strings.HasPrefix(f.ctrl.Snapshot().APIError, MsgUploadFailed+":"))
	assert.Zero(t, api.Hits("upload"))
}

func TestUnauthorizedForcesLogout(t *testing.T) {
	for _, route := range []string{"history", "upload"} {
		t.Run(route, func(t *testing.T) {
			api := testutil.NewFakeAPI()
			f := loggedIn(t, api)
			api.Fail(route, http.StatusUnauthorized, `{"detail": "Invalid username/password."}`)

			var err error
			if route == "history" {
				err = f.ctrl.FetchHistory(context.Background())
			} else {
				path := testutil.WriteCSV(t, t.TempDir(), "x.csv", testutil.SampleCSV)
				_, err = f.ctrl.UploadFile(context.Background(), path)
			}
			assert.True(t, transport.IsUnauthorized(err))

			s := f.sess.Snapshot()
			assert.Equal(t, session.LoggedOut, s.State)
			assert.Empty(t, s.Username)
			assert.Empty(t, s.Password)
			assert.Equal(t, session.MsgSessionExpired, s.Notice)
			assert.Equal(t, session.MsgSessionExpired, f.ctrl.Snapshot().APIError)
		})
	}
}

func TestHistoryAcceptsNaiveTimestamps(t *testing.T) {
	api := testutil.NewFakeAPI()
	rec := testutil.EquipmentRecord()
	rec.Timestamp = "2024-01-01T00:00:00.123456"
	api.Seed(rec)
	f := loggedIn(t, api)

	require.NoError(t, f.ctrl.FetchHistory(context.Background()))
	st := f.ctrl.Snapshot()
	assert.Empty(t, st.APIError)
	require.Len(t, st.History, 1)
	assert.True(t, st.History[0].Timestamp.Equal(time.Date(2024, 1, 1, 0, 0, 0, 123456000, time.UTC)))
}

func TestFailedFetchKeepsHistory(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.Seed(testutil.EquipmentRecord())
	f := loggedIn(t, api)
	require.NoError(t, f.ctrl.FetchHistory(context.Background()))

	api.Fail("history", http.StatusInternalServerError, `{"error": "database is locked"}`)
	err := f.ctrl.FetchHistory(context.Background())
	require.Error(t, err)

	st := f.ctrl.Snapshot()
	assert.Len(t, st.History, 1)
	assert.Equal(t, "database is locked", st.APIError)

	api.Recover("history")
	require.NoError(t, f.ctrl.FetchHistory(context.Background()))
	assert.Empty(t, f.ctrl.Snapshot().APIError, "a new attempt clears the previous error")
}

// Feature: chemvis, Property 4: History stays bounded and failed fetches never shrink it
func TestHistoryBoundedProperty(t *testing.T) {
	api := testutil.NewFakeAPI()
	f := loggedIn(t, api)

	rapid.Check(t, func(rt *rapid.T) {
		uploads := rapid.IntRange(0, 8).Draw(rt, "uploads")
		for i := 0; i < uploads; i++ {
			api.Seed(testutil.Record{Filename: "seed.csv", TypeDistribution: map[string]int{}, Timestamp: "2024-01-01T00:00:00Z"})
		}
		failing := rapid.Bool().Draw(rt, "failing")
		before := len(f.ctrl.History())

		if failing {
			api.Fail("history", http.StatusServiceUnavailable, "")
		}
		err := f.ctrl.FetchHistory(context.Background())
		api.Recover("history")

		got := len(f.ctrl.History())
		if failing {
			if err == nil {
				rt.Fatal("expected the fetch to fail")
			}
			if got != before {
				rt.Fatalf("failed fetch changed history length %d -> %d", before, got)
			}
			return
		}
		if err != nil {
			rt.Fatalf("FetchHistory: %v", err)
		}
		if got > HistoryLimit {
			rt.Fatalf("history length %d exceeds %d", got, HistoryLimit)
		}
	})
}

// Feature: chemvis, Property 5: Failed uploads leave the current dataset untouched
func TestFailedUploadProperty(t *testing.T) {
	api := testutil.NewFakeAPI()
	f := loggedIn(t, api)
	dir := t.TempDir()
	seed := testutil.WriteCSV(t, dir, "seed.csv", testutil.SampleCSV)
	_, err := f.ctrl.UploadFile(context.Background(), seed)
	require.NoError(t, err)

	rapid.Check(t, func(rt *rapid.T) {
		status := rapid.SampledFrom([]int{400, 413, 415, 500, 502, 503}).Draw(rt, "status")
		withMessage := rapid.Bool().Draw(rt, "with_message")
		body := ""
		if withMessage {
			body = `{"error": "rejected"}`
		}
		before := f.ctrl.Current()

		api.Fail("upload", status, body)
		f.ctrl.SelectFile(seed)
		_, err := f.ctrl.UploadFile(context.Background(), seed)
		api.Recover("upload")

		if err == nil {
			rt.Fatal("expected the upload to fail")
		}
		st := f.ctrl.Snapshot()
		if st.Current == nil || st.Current.ID != before.ID {
			rt.Fatalf("current dataset changed: %+v -> %+v", before, st.Current)
		}
		if st.Uploading || st.Selection != "" {
			rt.Fatalf("transient state not reset: %+v", st)
		}
		want := MsgUploadFailed
		if withMessage {
			want = "rejected"
		}
		if st.APIError != want {
			rt.Fatalf("APIError = %q, want %q", st.APIError, want)
		}
	})
}

func TestReportURLAndDownload(t *testing.T) {
	api := testutil.NewFakeAPI()
	f := loggedIn(t, api)

	u, err := f.ctrl.ReportURL(7)
	require.NoError(t, err)
	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(parsed.Path, "/api/report/7/"))
	assert.Equal(t, "admin", parsed.Query().Get("username"))
	assert.Equal(t, "admin", parsed.Query().Get("password"))

	require.NoError(t, f.ctrl.DownloadReport(7))
	assert.Equal(t, []string{u}, f.opener.urls)
	assert.Zero(t, api.Hits("report"), "opening the link is not tracked by the controller")

	f.sess.Logout()
	_, err = f.ctrl.ReportURL(7)
	assert.ErrorIs(t, err, session.ErrNotLoggedIn)
}

func TestSaveReport(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.Seed(testutil.EquipmentRecord())
	f := loggedIn(t, api)
	dir := filepath.Join(t.TempDir(), "reports")

	path, err := f.ctrl.SaveReport(context.Background(), 7, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report_7.pdf"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))

	_, err = f.ctrl.SaveReport(context.Background(), 99, dir)
	require.Error(t, err)
	assert.Equal(t, "Record not found", f.ctrl.Snapshot().APIError)
	assert.Equal(t, session.LoggedIn, f.sess.State())
}

func TestSaveReportNegotiatesLikeServer(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.Seed(testutil.EquipmentRecord())
	base := api.Start(t)

	// The backend renders only JSON and HTML; a PDF-only Accept is refused
	// before the view runs.
	req, err := http.NewRequest(http.MethodGet, base+"/report/7/?username=admin&password=admin", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/pdf")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotAcceptable, resp.StatusCode)

	f := loggedInAt(t, api, base)
	path, err := f.ctrl.SaveReport(context.Background(), 7, t.TempDir())
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.True(t, testutil.Acceptable(api.LastHeader("report").Get("Accept")))
}

func TestSaveReportUnauthorizedForcesLogout(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.Seed(testutil.EquipmentRecord())
	f := loggedIn(t, api)
	api.Fail("report", http.StatusUnauthorized, `{"error":"Unauthorized"}`)

	_, err := f.ctrl.SaveReport(context.Background(), 7, t.TempDir())
	require.Error(t, err)
	assert.True(t, transport.IsUnauthorized(err))
	assert.Equal(t, session.LoggedOut, f.sess.State())
	assert.Equal(t, session.MsgSessionExpired, f.ctrl.Snapshot().APIError)
}

// gatedAPI holds each request until the test releases it.
type gatedAPI struct {
	started chan chan gatedReply
}

type gatedReply struct {
	resp *transport.Response
	err  error
}

func (g *gatedAPI) Do(ctx context.Context, req transport.Request) (*transport.Response, error) {
	reply := make(chan gatedReply, 1)
	g.started <- reply
	r := <-reply
	return r.resp, r.err
}

func (g *gatedAPI) URL(path string, query url.Values) string {
	return "http://api.invalid" + path
}

type stubSession struct{ forced int }

func (s *stubSession) Authorized() (http.Header, error) {
	return http.Header{"Authorization": {"Basic YWRtaW46YWRtaW4="}}, nil
}
func (s *stubSession) Credentials() (string, string, bool) { return "admin", "admin", true }
func (s *stubSession) ForceLogout() bool                   { s.forced++; return true }

func TestStaleHistoryResponseDiscarded(t *testing.T) {
	g := &gatedAPI{started: make(chan chan gatedReply)}
	c := NewController(g, &stubSession{}, WithLogger(logging.Discard()))
	errs := make(chan error, 2)

	go func() { errs <- c.FetchHistory(context.Background()) }()
	older := <-g.started
	go func() { errs <- c.FetchHistory(context.Background()) }()
	newer := <-g.started

	newer <- gatedReply{resp: &transport.Response{Status: 200, Body: []byte(`[{"id": 2, "filename": "new.csv"}]`)}}
	require.NoError(t, <-errs)
	older <- gatedReply{resp: &transport.Response{Status: 200, Body: []byte(`[{"id": 1, "filename": "old.csv"}]`)}}
	require.NoError(t, <-errs)

	hist := c.History()
	require.Len(t, hist, 1)
	assert.Equal(t, "new.csv", hist[0].Filename)
}

func TestSnapshotIsACopy(t *testing.T) {
	g := &gatedAPI{started: make(chan chan gatedReply, 1)}
	c := NewController(g, &stubSession{}, WithLogger(logging.Discard()))
	done := make(chan error, 1)
	go func() { done <- c.FetchHistory(context.Background()) }()
	(<-g.started) <- gatedReply{resp: &transport.Response{Status: 200, Body: []byte(`[{"id": 1, "type_distribution": {"pump": 1}}]`)}}
	require.NoError(t, <-done)

	st := c.Snapshot()
	st.History[0].TypeDistribution["pump"] = 99
	assert.Equal(t, 1, c.History()[0].TypeDistribution["pump"])
}

func TestNotLoggedInFetch(t *testing.T) {
	client, err := transport.New("http://127.0.0.1:1/api", transport.WithLogger(logging.Discard()))
	require.NoError(t, err)
	sess := session.NewController(client, session.WithLogger(logging.Discard()))
	c := NewController(client, sess, WithLogger(logging.Discard()))

	err = c.FetchHistory(context.Background())
	assert.True(t, errors.Is(err, session.ErrNotLoggedIn))
}
