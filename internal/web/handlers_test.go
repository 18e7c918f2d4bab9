package web

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/sheetmerge/sheetmerge/internal/config"
	"github.com/sheetmerge/sheetmerge/internal/core"
	"github.com/sheetmerge/sheetmerge/internal/merge"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := testServerConfig()
	return NewServer(core.NewService(cfg), cfg)
}

func testServerConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			RequestTimeout: time.Minute,
		},
		Upload: config.UploadConfig{
			MaxFileSize: 10 << 20,
			MinFiles:    2,
		},
		Merge: config.MergeConfig{
			Workers:       2,
			MaxConcurrent: 2,
			MaxWaitTime:   time.Second,
			Timeout:       time.Minute,
		},
		Cache: config.CacheConfig{
			TTL:        time.Minute,
			MaxEntries: 4,
		},
	}
}

// testWorkbook builds a one-sheet .xlsx with a header and n data rows.
func testWorkbook(t *testing.T, sheet string, n int) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", sheet))

	header := []any{"ID", "Amount"}
	require.NoError(t, f.SetSheetRow(sheet, "A1", &header))
	for i := 0; i < n; i++ {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		row := []any{i, float64(i) * 10}
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

type uploadFile struct {
	name string
	data []byte
}

// multipartRequest builds a POST /api/merge request carrying the given files.
func multipartRequest(t *testing.T, files []uploadFile) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := writer.CreateFormFile("files", f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/merge", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func doRequest(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

// startMergeJob uploads the given files and returns the accepted job ID.
func startMergeJob(t *testing.T, s *Server, files []uploadFile) string {
	t.Helper()

	rec := doRequest(s, multipartRequest(t, files))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var accepted map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted["job_id"])
	return accepted["job_id"]
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestMergeEndToEnd(t *testing.T) {
	s := newTestServer(t)

	jobID := startMergeJob(t, s, []uploadFile{
		{name: "a.xlsx", data: testWorkbook(t, "Sales", 3)},
		{name: "b.xlsx", data: testWorkbook(t, "Sales", 2)},
	})

	// Result blocks until the job completes.
	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/merge/"+jobID+"/result", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result core.JobResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, jobID, result.JobID)
	assert.Empty(t, result.Error)
	require.Len(t, result.Sheets, 1)
	assert.Equal(t, "Sales", result.Sheets[0].Name)
	assert.Equal(t, 5, result.Sheets[0].Rows)

	// Download returns a workbook that actually opens.
	rec = doRequest(s, httptest.NewRequest(http.MethodGet, "/api/merge/"+jobID+"/download", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "merged_data.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "Sales")
}

func TestMergeRejectsTooFewFiles(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, multipartRequest(t, []uploadFile{
		{name: "a.xlsx", data: testWorkbook(t, "Sales", 1)},
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "at least 2 files")
}

func TestMergeAcceptsCompressedUpload(t *testing.T) {
	s := newTestServer(t)

	var gzipped bytes.Buffer
	gw := gzip.NewWriter(&gzipped)
	_, err := gw.Write(testWorkbook(t, "Sales", 2))
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	jobID := startMergeJob(t, s, []uploadFile{
		{name: "a.xlsx.gz", data: gzipped.Bytes()},
		{name: "b.xlsx", data: testWorkbook(t, "Sales", 3)},
	})

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/merge/"+jobID+"/result", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var result core.JobResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Empty(t, result.Error)
	require.Len(t, result.Sheets, 1)
	assert.Equal(t, 5, result.Sheets[0].Rows)
}

func TestMergeRejectsCorruptCompressedUpload(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, multipartRequest(t, []uploadFile{
		{name: "a.xlsx.gz", data: []byte("not gzip at all")},
		{name: "b.xlsx", data: testWorkbook(t, "Sales", 1)},
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "a.xlsx.gz")
}

func TestUnknownJobReturns404(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{
		"/api/merge/unknown/result",
		"/api/merge/unknown/download",
		"/api/merge/unknown/progress",
	} {
		rec := doRequest(s, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}

	rec := doRequest(s, httptest.NewRequest(http.MethodPost, "/api/merge/unknown/cancel", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProgressStreamForFinishedJob(t *testing.T) {
	s := newTestServer(t)

	jobID := startMergeJob(t, s, []uploadFile{
		{name: "a.xlsx", data: testWorkbook(t, "Sales", 2)},
		{name: "b.xlsx", data: testWorkbook(t, "Sales", 2)},
	})

	// Wait for completion so the stream terminates on its own.
	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/merge/"+jobID+"/result", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, httptest.NewRequest(http.MethodGet, "/api/merge/"+jobID+"/progress", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: progress")
	assert.Contains(t, body, fmt.Sprintf(`"phase":%q`, core.PhaseComplete))
	assert.Contains(t, body, "event: complete")
}

func TestCacheEndpoints(t *testing.T) {
	s := newTestServer(t)

	jobID := startMergeJob(t, s, []uploadFile{
		{name: "a.xlsx", data: testWorkbook(t, "Sales", 2)},
		{name: "b.xlsx", data: testWorkbook(t, "Sales", 2)},
	})
	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/merge/"+jobID+"/result", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var result core.JobResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotEmpty(t, result.Fingerprint)

	rec = doRequest(s, httptest.NewRequest(http.MethodDelete, "/api/cache/"+result.Fingerprint, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"invalidated":true}`, rec.Body.String())

	// Second delete of the same entry reports nothing to remove.
	rec = doRequest(s, httptest.NewRequest(http.MethodDelete, "/api/cache/"+result.Fingerprint, nil))
	assert.JSONEq(t, `{"invalidated":false}`, rec.Body.String())

	rec = doRequest(s, httptest.NewRequest(http.MethodDelete, "/api/cache", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"purged":0}`, rec.Body.String())
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status core.LimiterStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 0, status.Active)
	assert.Equal(t, 2, status.MaxConcurrent)
	assert.Equal(t, 2, status.Available)
}

func TestRateLimiterAllows(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)

	assert.True(t, rl.allow("10.0.0.1"))
	assert.True(t, rl.allow("10.0.0.1"))
	assert.False(t, rl.allow("10.0.0.1"))

	// Other clients are tracked independently.
	assert.True(t, rl.allow("10.0.0.2"))
}

func TestMergeRejectsOversizedDecompressedUpload(t *testing.T) {
	cfg := testServerConfig()
	cfg.Upload.MaxFileSize = 64 << 10
	s := NewServer(core.NewService(cfg), cfg)

	// A tiny compressed upload inflating well past the file-size limit.
	var bomb bytes.Buffer
	gw := gzip.NewWriter(&bomb)
	_, err := gw.Write(make([]byte, 256<<10))
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	rec := doRequest(s, multipartRequest(t, []uploadFile{
		{name: "bomb.xlsx.gz", data: bomb.Bytes()},
		{name: "b.xlsx", data: testWorkbook(t, "Sales", 1)},
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "bomb.xlsx.gz")
}

func TestBlockingRoutesOutliveRequestTimeout(t *testing.T) {
	cfg := testServerConfig()
	cfg.Server.RequestTimeout = time.Nanosecond
	s := NewServer(core.NewService(cfg), cfg)

	sources := []merge.Source{
		{Name: "a.xlsx", Data: testWorkbook(t, "Sales", 2)},
		{Name: "b.xlsx", Data: testWorkbook(t, "Sales", 2)},
	}
	jobID, err := s.service.StartMerge(context.Background(), sources)
	require.NoError(t, err)

	// Result, download, and progress wait on the merge, not the timeout.
	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/merge/"+jobID+"/result", nil))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(s, httptest.NewRequest(http.MethodGet, "/api/merge/"+jobID+"/download", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, httptest.NewRequest(http.MethodGet, "/api/merge/"+jobID+"/progress", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "event: complete")
}
