package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/hearthkeep/hearth/internal/blob"
	"github.com/hearthkeep/hearth/internal/manuals"
)

type stubManuals struct {
	candidates []manuals.Candidate
	fetch      *manuals.FetchResult
	download   *manuals.DownloadResult
	docs       []manuals.Document
}

func (s *stubManuals) SearchRepositories(_ context.Context, _, _ string) ([]manuals.Candidate, error) {
	return s.candidates, nil
}

func (s *stubManuals) SearchAI(_ context.Context, _, _ string) ([]manuals.Candidate, error) {
	return s.candidates, nil
}

func (s *stubManuals) SearchWeb(_ context.Context, _, _ string) ([]manuals.Candidate, error) {
	return s.candidates, nil
}

func (s *stubManuals) Download(_ context.Context, _ manuals.DownloadRequest) (*manuals.DownloadResult, error) {
	return s.download, nil
}

func (s *stubManuals) Fetch(_ context.Context, _, _ string) (*manuals.FetchResult, error) {
	return s.fetch, nil
}

func (s *stubManuals) List(_ context.Context, _, _ string) ([]manuals.Document, error) {
	return s.docs, nil
}

func newManualsContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func TestSearchWebReturnsCandidates(t *testing.T) {
	h := &ManualsHandler{Service: &stubManuals{candidates: []manuals.Candidate{
		{URL: "https://carrier.example/m.pdf", Source: manuals.SourceWeb, Label: "Official manual"},
	}}}

	c, rec := newManualsContext(http.MethodGet, "/api/manuals/search/web?make=Carrier&model=24ACC636", "")
	if err := h.searchWeb(c); err != nil {
		t.Fatalf("search web: %v", err)
	}
	var out struct {
		URLs        []string             `json:"urls"`
		Count       int                  `json:"count"`
		Candidates  []manuals.Candidate  `json:"candidates"`
		SearchLinks []manuals.SearchLink `json:"search_links"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if out.Count != 1 || len(out.URLs) != 1 || out.URLs[0] != "https://carrier.example/m.pdf" {
		t.Errorf("urls = %+v, count = %d", out.URLs, out.Count)
	}
	if len(out.Candidates) != 1 || out.Candidates[0].Source != manuals.SourceWeb {
		t.Errorf("candidates = %+v", out.Candidates)
	}
	if len(out.SearchLinks) == 0 {
		t.Error("expected search links alongside web results")
	}
}

func TestSearchRequiresProduct(t *testing.T) {
	h := &ManualsHandler{Service: &stubManuals{}}

	c, _ := newManualsContext(http.MethodGet, "/api/manuals/search/repositories", "")
	err := h.searchRepositories(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400", err)
	}
}

func TestDownloadRequiresURL(t *testing.T) {
	h := &ManualsHandler{Service: &stubManuals{}}

	c, _ := newManualsContext(http.MethodPost, "/api/manuals/download", `{"make":"Carrier","model":"24ACC636"}`)
	err := h.download(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400", err)
	}
}

func TestDownloadReportsFailureWithoutHTTPError(t *testing.T) {
	// A candidate that fails the document checks is a 200 with the
	// reason, not an HTTP error: the caller may try the next one.
	h := &ManualsHandler{Service: &stubManuals{download: &manuals.DownloadResult{Reason: "not a pdf"}}}

	c, rec := newManualsContext(http.MethodPost, "/api/manuals/download", `{"url":"https://x.example/m.pdf"}`)
	if err := h.download(c); err != nil {
		t.Fatalf("download: %v", err)
	}
	var out struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if out.Success || out.Message != "not a pdf" {
		t.Errorf("result = %+v", out)
	}
}

func TestFetchReturnsFallbackLinks(t *testing.T) {
	h := &ManualsHandler{Service: &stubManuals{fetch: &manuals.FetchResult{
		Links: []manuals.SearchLink{{URL: "https://www.google.com/search?q=Carrier+manual", Label: "Search Google"}},
	}}}

	c, rec := newManualsContext(http.MethodPost, "/api/manuals/fetch", `{"make":"Carrier","model":"24ACC636"}`)
	if err := h.fetch(c); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	var out struct {
		Success     bool                 `json:"success"`
		Message     string               `json:"message"`
		SearchLinks []manuals.SearchLink `json:"search_links"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if out.Success || len(out.SearchLinks) != 1 || out.Message == "" {
		t.Errorf("result = %+v", out)
	}
}

func TestListReturnsEmptyArray(t *testing.T) {
	h := &ManualsHandler{Service: &stubManuals{}}

	c, rec := newManualsContext(http.MethodGet, "/api/manuals", "")
	if err := h.list(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"documents":[]`) {
		t.Errorf("body = %s, want an empty documents array", rec.Body.String())
	}
}

func TestFileNotFound(t *testing.T) {
	blobs, err := blob.New(t.TempDir())
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	h := &ManualsHandler{Service: &stubManuals{}, Blobs: blobs}

	c, _ := newManualsContext(http.MethodGet, "/api/manuals/file/missing.pdf", "")
	c.SetParamNames("file_id")
	c.SetParamValues("missing.pdf")

	err = h.file(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("err = %v, want 404", err)
	}
}
