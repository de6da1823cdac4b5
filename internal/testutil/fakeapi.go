// Package testutil provides an in-process stand-in for the equipment API so
// controller and command tests can run against real HTTP.
package testutil

import (
	"encoding/base64"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

// Retention mirrors the server's "keep the last five uploads" policy.
const Retention = 5

// Record is the JSON shape the API returns for one processed dataset.
type Record struct {
	ID               int            `json:"id"`
	Filename         string         `json:"filename"`
	TotalCount       int            `json:"total_count"`
	AvgFlowrate      float64        `json:"avg_flowrate"`
	AvgPressure      float64        `json:"avg_pressure"`
	AvgTemperature   float64        `json:"avg_temperature"`
	TypeDistribution map[string]int `json:"type_distribution"`
	Timestamp        string         `json:"timestamp"`
}

// failure is a canned response for one route.
type failure struct {
	status int
	body   string
}

// FakeAPI is a configurable fake of the history/upload/report endpoints.
type FakeAPI struct {
	mu         sync.Mutex
	users      map[string]string
	records    []Record // most recent first
	nextID     int
	hits       map[string]int
	failures   map[string]failure
	delays     map[string]time.Duration
	nextUpload *Record
	headers    map[string]http.Header // last request headers per route
	server     *httptest.Server
}

// NewFakeAPI returns a fake that accepts admin/admin.
func NewFakeAPI() *FakeAPI {
	return &FakeAPI{
		users:    map[string]string{"admin": "admin"},
		nextID:   1,
		hits:     map[string]int{},
		failures: map[string]failure{},
		delays:   map[string]time.Duration{},
		headers:  map[string]http.Header{},
	}
}

// Start serves the fake over httptest and returns the API base URL. The
// server is closed when the test ends.
func (f *FakeAPI) Start(t testing.TB) string {
	t.Helper()
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(negotiate)
	e.GET("/api/history/", f.handleHistory)
	e.POST("/api/upload/", f.handleUpload)
	e.GET("/api/report/:id/", f.handleReport)

	f.server = httptest.NewServer(e)
	t.Cleanup(f.server.Close)
	return f.server.URL + "/api"
}

// AddUser registers another accepted credential pair.
func (f *FakeAPI) AddUser(username, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[username] = password
}

// Seed prepends records as if they had been uploaded, oldest first.
func (f *FakeAPI) Seed(recs ...Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range recs {
		if r.ID == 0 {
			r.ID = f.nextID
		}
		if r.ID >= f.nextID {
			f.nextID = r.ID + 1
		}
		f.records = append([]Record{r}, f.records...)
	}
	if len(f.records) > Retention {
		f.records = f.records[:Retention]
	}
}

// Fail makes every request to route ("history", "upload", "report") answer
// with status and a raw body until Recover is called.
func (f *FakeAPI) Fail(route string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[route] = failure{status: status, body: body}
}

// Recover removes a canned failure.
func (f *FakeAPI) Recover(route string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failures, route)
}

// Delay holds responses on route for d (or until the client goes away).
func (f *FakeAPI) Delay(route string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays[route] = d
}

// NextUpload makes the next successful upload return rec (ID and filename
// are kept as given).
func (f *FakeAPI) NextUpload(rec Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextUpload = &rec
}

// Hits returns how many requests reached route.
func (f *FakeAPI) Hits(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[route]
}

// LastHeader returns the headers of the most recent request to route.
func (f *FakeAPI) LastHeader(route string) http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headers[route].Clone()
}

// Records returns a copy of the stored history.
func (f *FakeAPI) Records() []Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Record(nil), f.records...)
}

// begin counts the hit, applies any delay, and reports a canned failure.
func (f *FakeAPI) begin(c echo.Context, route string) (handled bool, err error) {
	f.mu.Lock()
	f.hits[route]++
	f.headers[route] = c.Request().Header.Clone()
	d := f.delays[route]
	fail, failing := f.failures[route]
	f.mu.Unlock()

	if d > 0 {
		select {
		case <-time.After(d):
		case <-c.Request().Context().Done():
			return true, nil
		}
	}
	if failing {
		return true, c.Blob(fail.status, echo.MIMEApplicationJSON, []byte(fail.body))
	}
	return false, nil
}

// negotiate answers 406 when the Accept header rules out every renderer the
// backend has (JSON and the browsable HTML page). It runs before
// authentication, as on the real server.
func negotiate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !Acceptable(c.Request().Header.Get(echo.HeaderAccept)) {
			return c.JSON(http.StatusNotAcceptable, map[string]string{"detail": "Could not satisfy the request Accept header."})
		}
		return next(c)
	}
}

// Acceptable reports whether an Accept header admits a JSON or HTML response.
func Acceptable(accept string) bool {
	if strings.TrimSpace(accept) == "" {
		return true
	}
	for _, part := range strings.Split(accept, ",") {
		mt, _, _ := strings.Cut(part, ";")
		switch strings.ToLower(strings.TrimSpace(mt)) {
		case "*/*", "application/*", "application/json", "text/*", "text/html":
			return true
		}
	}
	return false
}

// authorized checks the Basic header against the user table.
func (f *FakeAPI) authorized(c echo.Context) bool {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(h, "Basic ") {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(h, "Basic "))
	if err != nil {
		return false
	}
	user, pass, ok := strings.Cut(string(raw), ":")
	return ok && f.valid(user, pass)
}

func (f *FakeAPI) valid(user, pass string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	want, ok := f.users[user]
	return ok && want == pass
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{"detail": "Invalid username/password."})
}

func (f *FakeAPI) handleHistory(c echo.Context) error {
	if done, err := f.begin(c, "history"); done {
		return err
	}
	if !f.authorized(c) {
		return unauthorized(c)
	}
	return c.JSON(http.StatusOK, f.Records())
}

func (f *FakeAPI) handleUpload(c echo.Context) error {
	if done, err := f.begin(c, "upload"); done {
		return err
	}
	if !f.authorized(c) {
		return unauthorized(c)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No file provided"})
	}

	f.mu.Lock()
	preset := f.nextUpload
	f.nextUpload = nil
	f.mu.Unlock()

	var rec Record
	if preset != nil {
		rec = *preset
	} else {
		src, err := fh.Open()
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		defer src.Close()
		rows, err := csv.NewReader(src).ReadAll()
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		rec, err = summarize(rows)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		rec.Filename = fh.Filename
	}

	f.mu.Lock()
	if rec.ID == 0 {
		rec.ID = f.nextID
	}
	if rec.ID >= f.nextID {
		f.nextID = rec.ID + 1
	}
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	f.records = append([]Record{rec}, f.records...)
	if len(f.records) > Retention {
		f.records = f.records[:Retention]
	}
	f.mu.Unlock()

	return c.JSON(http.StatusCreated, rec)
}

func (f *FakeAPI) handleReport(c echo.Context) error {
	if done, err := f.begin(c, "report"); done {
		return err
	}
	if !f.valid(c.QueryParam("username"), c.QueryParam("password")) {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Record not found"})
	}
	for _, r := range f.Records() {
		if r.ID == id {
			c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="report_%d.pdf"`, id))
			return c.Blob(http.StatusOK, "application/pdf", []byte(fmt.Sprintf("%%PDF-1.4\n%% report %d for %s\n", id, r.Filename)))
		}
	}
	return c.JSON(http.StatusNotFound, map[string]string{"error": "Record not found"})
}

var requiredColumns = []string{"Equipment Name", "Type", "Flowrate", "Pressure", "Temperature"}

// summarize computes the same aggregates the real backend does.
func summarize(rows [][]string) (Record, error) {
	if len(rows) == 0 {
		return Record{}, errors.New("The CSV file is empty.")
	}
	idx := map[string]int{}
	for i, h := range rows[0] {
		idx[strings.TrimSpace(h)] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return Record{}, fmt.Errorf("Missing required column: %s", col)
		}
	}
	data := rows[1:]
	if len(data) == 0 {
		return Record{}, errors.New("The CSV file is empty.")
	}
	rec := Record{TotalCount: len(data), TypeDistribution: map[string]int{}}
	for _, row := range data {
		rec.TypeDistribution[row[idx["Type"]]]++
		for col, dst := range map[string]*float64{
			"Flowrate":    &rec.AvgFlowrate,
			"Pressure":    &rec.AvgPressure,
			"Temperature": &rec.AvgTemperature,
		} {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[idx[col]]), 64)
			if err != nil {
				return Record{}, fmt.Errorf("invalid %s value %q", col, row[idx[col]])
			}
			*dst += v
		}
	}
	n := float64(len(data))
	rec.AvgFlowrate /= n
	rec.AvgPressure /= n
	rec.AvgTemperature /= n
	return rec, nil
}
