package manuals

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hearthkeep/hearth/config"
	"github.com/hearthkeep/hearth/tools/web_search/models"
)

type memStore struct {
	docs    []Document
	listErr error
}

func (m *memStore) SaveDocument(_ context.Context, d Document) error {
	m.docs = append(m.docs, d)
	return nil
}

func (m *memStore) ListDocuments(_ context.Context, _, _ string) ([]Document, error) {
	return m.docs, m.listErr
}

type memBlobs struct {
	saved int
}

func (m *memBlobs) Save(_ []byte, _ string) (string, error) {
	m.saved++
	return fmt.Sprintf("file-%d", m.saved), nil
}

type stubSuggester struct {
	text string
	err  error
}

func (s *stubSuggester) Generate(_ context.Context, _ string) (string, error) {
	return s.text, s.err
}

type stubSearcher struct {
	results []models.Result
	err     error
}

func (s *stubSearcher) Discover(_ context.Context, _ string, _ int, _ []string) ([]models.Result, error) {
	return s.results, s.err
}

func newTestService(t *testing.T, cfg config.ManualsConfig, opts func(*Service)) (*Service, *memStore, *memBlobs) {
	t.Helper()
	index, err := OpenIndex("")
	if err != nil {
		t.Fatalf("opening index: %v", err)
	}
	t.Cleanup(func() { index.Close() })

	docs := &memStore{}
	blobs := &memBlobs{}
	svc := NewService(cfg, nil, nil, nil, index, docs, blobs, nil)
	if opts != nil {
		opts(svc)
	}
	return svc, docs, blobs
}

func pdfBody() []byte {
	return append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), 64)...)
}

func TestDedupCandidatesKeepsFirstOccurrence(t *testing.T) {
	in := []Candidate{
		{URL: "https://a.example/m.pdf", Source: SourceRepository},
		{URL: "https://b.example/m.pdf", Source: SourceAI},
		{URL: "https://a.example/m.pdf", Source: SourceWeb},
		{URL: "https://c.example/m.pdf", Source: SourceWeb},
	}

	out := dedupCandidates(in)
	if len(out) != 3 {
		t.Fatalf("got %d candidates, want 3", len(out))
	}
	if out[0].URL != "https://a.example/m.pdf" || out[0].Source != SourceRepository {
		t.Errorf("first occurrence not preserved: %+v", out[0])
	}
	if out[1].URL != "https://b.example/m.pdf" || out[2].URL != "https://c.example/m.pdf" {
		t.Errorf("order not preserved: %+v", out)
	}
}

func TestCheckDocument(t *testing.T) {
	cases := []struct {
		name        string
		data        []byte
		contentType string
		wantOK      bool
	}{
		{"pdf by magic bytes", pdfBody(), "application/octet-stream", true},
		{"pdf by content type", bytes.Repeat([]byte("x"), 64), "application/pdf", true},
		{"html error page", []byte("<html><body>Not Found</body></html>" + strings.Repeat("x", 64)), "text/html", false},
		{"too small", []byte("%PDF-"), "application/pdf", false},
	}
	for _, tc := range cases {
		reason := checkDocument(tc.data, tc.contentType, 32)
		if ok := reason == ""; ok != tc.wantOK {
			t.Errorf("%s: reason = %q, want ok=%v", tc.name, reason, tc.wantOK)
		}
	}
}

func TestDownloadArchivesDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(pdfBody())
	}))
	defer srv.Close()

	svc, docs, blobs := newTestService(t, config.ManualsConfig{MinDocumentSize: 32}, nil)

	result, err := svc.Download(context.Background(), DownloadRequest{
		Make: "Carrier", Model: "24ACC636", URL: srv.URL + "/manual.pdf", Source: SourceRepository,
	})
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if !result.Success {
		t.Fatalf("download failed: %s", result.Reason)
	}
	if result.Document == nil || result.Document.FileID == "" {
		t.Fatalf("document not populated: %+v", result.Document)
	}
	if len(docs.docs) != 1 {
		t.Errorf("store has %d documents, want 1", len(docs.docs))
	}
	if blobs.saved != 1 {
		t.Errorf("blob store has %d saves, want 1", blobs.saved)
	}

	hits, err := svc.index.Search("Carrier", "24ACC636", 10)
	if err != nil {
		t.Fatalf("index search: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("index has %d hits, want 1", len(hits))
	}
}

func TestDownloadRejectsHTMLErrorPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body>manual moved</body></html>", strings.Repeat("x", 64))
	}))
	defer srv.Close()

	svc, docs, _ := newTestService(t, config.ManualsConfig{MinDocumentSize: 32}, nil)

	result, err := svc.Download(context.Background(), DownloadRequest{
		Make: "Carrier", Model: "24ACC636", URL: srv.URL + "/manual.pdf",
	})
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if result.Success {
		t.Fatal("HTML error page must not count as a successful download")
	}
	if result.Reason == "" {
		t.Error("expected a reason for the rejection")
	}
	if len(docs.docs) != 0 {
		t.Errorf("store has %d documents, want 0", len(docs.docs))
	}
}

func TestSearchRepositoriesScrapesLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="/files/owner-manual.pdf">Owner's Manual</a>
			<a href="/about">About us</a>
			<a href="#top">Back to top</a>
			<a href="javascript:void(0)">Menu</a>
		</body></html>`)
	}))
	defer srv.Close()

	cfg := config.ManualsConfig{
		Repositories: []config.ManualRepository{
			{Name: "manualslib", SearchURL: srv.URL + "/search?q=%s"},
		},
	}
	svc, _, _ := newTestService(t, cfg, nil)

	cands, err := svc.SearchRepositories(context.Background(), "Carrier", "24ACC636")
	if err != nil {
		t.Fatalf("search repositories: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1: %+v", len(cands), cands)
	}
	if want := srv.URL + "/files/owner-manual.pdf"; cands[0].URL != want {
		t.Errorf("url = %q, want %q", cands[0].URL, want)
	}
	if cands[0].Source != SourceRepository {
		t.Errorf("source = %q, want repository", cands[0].Source)
	}
	if !strings.Contains(cands[0].Label, "manualslib") {
		t.Errorf("label %q missing repository name", cands[0].Label)
	}
}

func TestSearchRepositoriesSkipsFailingRepo(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/m.pdf">Manual</a></body></html>`)
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	cfg := config.ManualsConfig{
		Repositories: []config.ManualRepository{
			{Name: "broken", SearchURL: bad.URL + "/search?q=%s"},
			{Name: "working", SearchURL: good.URL + "/search?q=%s"},
		},
	}
	svc, _, _ := newTestService(t, cfg, nil)

	cands, err := svc.SearchRepositories(context.Background(), "LG", "LRFVS3006S")
	if err != nil {
		t.Fatalf("search repositories: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("got %d candidates, want 1 from the working repo", len(cands))
	}
}

func TestSearchAIParsesSuggestions(t *testing.T) {
	svc, _, _ := newTestService(t, config.ManualsConfig{}, func(s *Service) {
		s.suggester = &stubSuggester{text: `Likely locations:
["https://carrier.com/manuals/24acc636.pdf", "ftp://old.example/x.pdf", "https://manualslib.example/carrier.pdf"]`}
	})

	cands, err := svc.SearchAI(context.Background(), "Carrier", "24ACC636")
	if err != nil {
		t.Fatalf("search ai: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("got %d candidates, want 2 http(s) URLs: %+v", len(cands), cands)
	}
	for _, c := range cands {
		if c.Source != SourceAI {
			t.Errorf("source = %q, want ai", c.Source)
		}
	}
}

func TestSearchAIWithoutAgent(t *testing.T) {
	svc, _, _ := newTestService(t, config.ManualsConfig{}, nil)
	if _, err := svc.SearchAI(context.Background(), "Carrier", "24ACC636"); err == nil {
		t.Fatal("expected an error when no suggestion agent is configured")
	}
}

func TestFetchReturnsArchivedDocumentFirst(t *testing.T) {
	svc, docs, _ := newTestService(t, config.ManualsConfig{}, nil)
	docs.docs = []Document{{ID: "existing", Make: "Carrier", Model: "24ACC636", FileID: "file-1"}}

	result, err := svc.Fetch(context.Background(), "Carrier", "24ACC636")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !result.Success || result.Document == nil || result.Document.ID != "existing" {
		t.Fatalf("expected the archived document, got %+v", result)
	}
	if len(result.Attempts) != 0 {
		t.Errorf("expected no download attempts, got %d", len(result.Attempts))
	}
}

func TestFetchFallsBackToSearchLinks(t *testing.T) {
	// No repositories, no suggester, no web searcher: every phase is empty.
	svc, _, _ := newTestService(t, config.ManualsConfig{}, nil)

	result, err := svc.Fetch(context.Background(), "Carrier", "24ACC636")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if result.Success {
		t.Fatal("fetch must not succeed with no candidates")
	}
	if len(result.Links) != 2 {
		t.Fatalf("got %d fallback links, want 2 generic search pages", len(result.Links))
	}
	for _, link := range result.Links {
		if !strings.Contains(link.URL, "Carrier") && !strings.Contains(link.URL, "carrier") {
			t.Errorf("link %q does not target the product", link.URL)
		}
	}
}

func TestFetchDownloadsFirstSurvivingCandidate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/broken.pdf", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/good.pdf", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(pdfBody())
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	svc, _, _ := newTestService(t, config.ManualsConfig{MinDocumentSize: 32}, func(s *Service) {
		s.searcher = &stubSearcher{results: []models.Result{
			{Title: "Broken mirror", URL: srv.URL + "/broken.pdf"},
			{Title: "Official manual", URL: srv.URL + "/good.pdf"},
		}}
	})

	result, err := svc.Fetch(context.Background(), "Carrier", "24ACC636")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !result.Success {
		t.Fatalf("fetch failed: %+v", result.Attempts)
	}
	if result.Document.URL != srv.URL+"/good.pdf" {
		t.Errorf("document url = %q, want the surviving candidate", result.Document.URL)
	}
	if len(result.Attempts) != 2 {
		t.Errorf("got %d attempts, want 2", len(result.Attempts))
	}
	if result.Attempts[0].Reason == "" {
		t.Error("first attempt should record its failure reason")
	}
}

func TestFetchTriesEveryCandidate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/good.pdf", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(pdfBody())
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	// Only the tenth candidate survives; the loop must get that far.
	var results []models.Result
	for i := 0; i < 9; i++ {
		results = append(results, models.Result{URL: fmt.Sprintf("%s/dead-%d.pdf", srv.URL, i)})
	}
	results = append(results, models.Result{Title: "Official manual", URL: srv.URL + "/good.pdf"})

	svc, _, _ := newTestService(t, config.ManualsConfig{MinDocumentSize: 32}, func(s *Service) {
		s.searcher = &stubSearcher{results: results}
	})

	result, err := svc.Fetch(context.Background(), "Carrier", "24ACC636")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !result.Success {
		t.Fatalf("fetch failed after %d attempts: %+v", len(result.Attempts), result.Attempts)
	}
	if result.Document.URL != srv.URL+"/good.pdf" {
		t.Errorf("document url = %q, want the last candidate", result.Document.URL)
	}
	if len(result.Attempts) != 10 {
		t.Errorf("got %d attempts, want all 10 candidates tried", len(result.Attempts))
	}
}

func TestFallbackLinks(t *testing.T) {
	leads := []Candidate{
		{URL: "https://a.example/m.pdf", Source: SourceWeb, Label: "Mirror A"},
		{URL: "https://b.example/m.pdf", Source: SourceWeb, Label: "Mirror B"},
	}

	links := FallbackLinks("Carrier", "24ACC636", leads)
	if len(links) != 2 {
		t.Fatalf("got %d links, want the 2 web leads: %+v", len(links), links)
	}
	for _, link := range links {
		if strings.Contains(link.URL, "google.com") || strings.Contains(link.URL, "bing.com") {
			t.Errorf("generic search page %q emitted despite web leads", link.URL)
		}
	}

	links = FallbackLinks("Carrier", "24ACC636", nil)
	if len(links) != 2 {
		t.Fatalf("got %d links, want 2 generic search pages", len(links))
	}
	for _, link := range links {
		if !strings.Contains(link.URL, "Carrier") {
			t.Errorf("link %q does not target the product", link.URL)
		}
	}
}

func TestFetchRequiresProduct(t *testing.T) {
	svc, _, _ := newTestService(t, config.ManualsConfig{}, nil)
	if _, err := svc.Fetch(context.Background(), "  ", ""); err == nil {
		t.Fatal("expected an error for an empty product")
	}
}
