package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/breez/txsync/catalog"
	"github.com/breez/txsync/config"
	"github.com/breez/txsync/globalize"
	"github.com/breez/txsync/middleware"
	"github.com/breez/txsync/store"
	"github.com/breez/txsync/store/sqlite"
	"github.com/breez/txsync/telemetry"
	"github.com/breez/txsync/transifex"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "s3cret"
	testProject  = "my-project"
	testResource = "foo-resource"
	testHookURL  = "http://example.org/transifex"
)

const fooDDL = `CREATE TABLE foo (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	foo_id INTEGER NOT NULL,
	locale TEXT NOT NULL,
	name TEXT
)`

type fakeSource struct {
	mu       sync.Mutex
	content  []byte
	err      error
	requests []string
}

func (s *fakeSource) Download(ctx context.Context, resource transifex.Resource, language string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, resource.ProjectSlug+"/"+resource.ResourceSlug+"/"+language)
	if s.err != nil {
		return nil, s.err
	}
	return s.content, nil
}

func (s *fakeSource) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

type recordingWriter struct {
	mu       sync.Mutex
	requests []globalize.WriteRequest
}

func (w *recordingWriter) WriteContent(ctx context.Context, req globalize.WriteRequest) (globalize.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.requests = append(w.requests, req)
	return globalize.Result{Inserted: len(req.Entries)}, nil
}

func (w *recordingWriter) calls() []globalize.WriteRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]globalize.WriteRequest(nil), w.requests...)
}

type hookFixture struct {
	server   *httptest.Server
	source   *fakeSource
	registry *catalog.Registry
	metrics  *telemetry.Metrics
}

func newHookFixture(t *testing.T, writer ContentWriter) *hookFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(uuid.NewString(), "-", ""))
	cat, err := catalog.Parse([]byte(fmt.Sprintf(`
databases:
  - name: foos
    dsn: %q
    transifex:
      project_slug: %s
      webhook_secret: %s
    tables:
      - name: foo
        resource_slug: %s
`, dsn, testProject, testSecret, testResource)))
	require.NoError(t, err, "failed to parse catalog")

	registry := catalog.NewRegistry(cat, func(ctx context.Context, cfg *catalog.DatabaseConfig) (store.Database, error) {
		db, err := sqlite.NewSQLiteDatabase(cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := db.Exec(ctx, fooDDL); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	})
	t.Cleanup(func() { registry.Close() })

	source := &fakeSource{content: []byte("foo:\n  \"1\":\n    name: sprocket\n")}
	metrics := telemetry.NewMetrics()
	hookServer := NewHookServer(registry, source, writer, middleware.NewAuthenticator(5*time.Minute), metrics)
	server := httptest.NewServer(CreateServer(&config.Config{}, hookServer, metrics).Handler)
	t.Cleanup(server.Close)

	return &hookFixture{
		server:   server,
		source:   source,
		registry: registry,
		metrics:  metrics,
	}
}

func hookBody(project, resource, language string) string {
	form := url.Values{}
	form.Set("project", project)
	form.Set("resource", resource)
	form.Set("language", language)
	form.Set("translated", "100")
	return form.Encode()
}

func (f *hookFixture) post(t *testing.T, body, secret string, date time.Time) (int, string) {
	t.Helper()
	dateHeader := date.UTC().Format(http.TimeFormat)
	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/transifex", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(middleware.DateHeader, dateHeader)
	req.Header.Set(middleware.URLHeader, testHookURL)
	req.Header.Set(middleware.SignatureHeader, middleware.ComputeSignature(middleware.SignatureInput{
		HTTPVerb: http.MethodPost,
		URL:      testHookURL,
		Date:     dateHeader,
		Content:  []byte(body),
		Secret:   secret,
	}))

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, string(data)
}

func TestHookWritesTranslation(t *testing.T) {
	writer := &recordingWriter{}
	f := newHookFixture(t, writer)

	status, body := f.post(t, hookBody(testProject, testResource, "de"), testSecret, time.Now())
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "{}", body)

	require.Equal(t, []string{testProject + "/" + testResource + "/de"}, f.source.calls())
	calls := writer.calls()
	require.Len(t, calls, 1)
	require.Equal(t, "de", calls[0].Locale)
	require.Equal(t, testProject, calls[0].ProjectSlug)
	require.Equal(t, testResource, calls[0].ResourceSlug)
	require.Equal(t, "foo", calls[0].Table.Name())
	require.Equal(t, globalize.Section{"1": {"name": "sprocket"}}, calls[0].Entries)
	require.Equal(t, float64(1), testutil.ToFloat64(f.metrics.HookRequests.WithLabelValues("succeeded")))
}

func TestHookBadSignature(t *testing.T) {
	writer := &recordingWriter{}
	f := newHookFixture(t, writer)

	status, body := f.post(t, hookBody(testProject, testResource, "de"), "wrong", time.Now())
	require.Equal(t, http.StatusUnauthorized, status)
	require.JSONEq(t, `[{"error":"Unauthorized"}]`, body)
	require.Empty(t, f.source.calls())
	require.Empty(t, writer.calls())
	require.Equal(t, float64(1), testutil.ToFloat64(f.metrics.HookRequests.WithLabelValues("rejected")))
}

func TestHookStaleDate(t *testing.T) {
	writer := &recordingWriter{}
	f := newHookFixture(t, writer)

	status, body := f.post(t, hookBody(testProject, testResource, "de"), testSecret, time.Now().Add(-time.Hour))
	require.Equal(t, http.StatusUnauthorized, status)
	require.JSONEq(t, `[{"error":"Unauthorized"}]`, body)
	require.Empty(t, f.source.calls())
}

func TestHookUnknownProject(t *testing.T) {
	writer := &recordingWriter{}
	f := newHookFixture(t, writer)

	status, _ := f.post(t, hookBody("other-project", testResource, "de"), testSecret, time.Now())
	require.Equal(t, http.StatusUnauthorized, status)
	require.Empty(t, f.source.calls())
}

func TestHookDownloadFailure(t *testing.T) {
	writer := &recordingWriter{}
	f := newHookFixture(t, writer)
	f.source.err = errors.New("jelly beans")

	status, body := f.post(t, hookBody(testProject, testResource, "de"), testSecret, time.Now())
	require.Equal(t, http.StatusInternalServerError, status)
	require.JSONEq(t, `[{"error":"Internal server error: jelly beans"}]`, body)
	require.Empty(t, writer.calls())
	require.Equal(t, float64(1), testutil.ToFloat64(f.metrics.HookRequests.WithLabelValues("failed")))
}

func TestHookUnknownResource(t *testing.T) {
	writer := &recordingWriter{}
	f := newHookFixture(t, writer)

	status, body := f.post(t, hookBody(testProject, "nope", "de"), testSecret, time.Now())
	require.Equal(t, http.StatusInternalServerError, status)
	require.Contains(t, body, "unknown resource")
	require.Empty(t, f.source.calls())
}

func TestHookMissingLanguage(t *testing.T) {
	writer := &recordingWriter{}
	f := newHookFixture(t, writer)

	status, body := f.post(t, hookBody(testProject, testResource, ""), testSecret, time.Now())
	require.Equal(t, http.StatusInternalServerError, status)
	require.Contains(t, body, "language is required")
	require.Empty(t, f.source.calls())
}

func TestHookSkipsSourceLocale(t *testing.T) {
	writer := &recordingWriter{}
	f := newHookFixture(t, writer)

	status, body := f.post(t, hookBody(testProject, testResource, "en"), testSecret, time.Now())
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "{}", body)
	require.Empty(t, f.source.calls())
	require.Empty(t, writer.calls())
}

func TestHookUnlistedTable(t *testing.T) {
	writer := &recordingWriter{}
	f := newHookFixture(t, writer)
	f.source.content = []byte("bar:\n  \"1\":\n    name: sprocket\n")

	status, body := f.post(t, hookBody(testProject, testResource, "de"), testSecret, time.Now())
	require.Equal(t, http.StatusInternalServerError, status)
	require.Contains(t, body, "unknown table")
	require.Empty(t, writer.calls())
}

func TestHookEndToEnd(t *testing.T) {
	f := newHookFixture(t, globalize.NewWriter())

	status, _ := f.post(t, hookBody(testProject, testResource, "de"), testSecret, time.Now())
	require.Equal(t, http.StatusOK, status)

	db, err := f.registry.Open(context.Background(), "foos")
	require.NoError(t, err)
	table, err := db.Table(context.Background(), "foo")
	require.NoError(t, err)
	rows, err := table.Select(context.Background(), store.Query{OrderBy: "id"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(1), rows[0]["foo_id"])
	require.Equal(t, "de", rows[0]["locale"])
	require.Equal(t, "sprocket", rows[0]["name"])

	// a second notification for the same locale updates in place
	f.source.content = []byte("foo:\n  \"1\":\n    name: widget\n")
	status, _ = f.post(t, hookBody(testProject, testResource, "de"), testSecret, time.Now())
	require.Equal(t, http.StatusOK, status)
	rows, err = table.Select(context.Background(), store.Query{OrderBy: "id"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "widget", rows[0]["name"])
}

func TestHealthz(t *testing.T) {
	f := newHookFixture(t, &recordingWriter{})

	res, err := http.Get(f.server.URL + "/healthz")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(f.server.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Contains(t, string(data), "txsync_hook_duration_seconds")
}
