package manuals

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hearthkeep/hearth/config"
	"github.com/hearthkeep/hearth/internal/telemetry"
	"github.com/hearthkeep/hearth/tools/web_search"
	"github.com/hearthkeep/hearth/utils"
)

// DocumentStore persists archived document metadata.
type DocumentStore interface {
	SaveDocument(ctx context.Context, d Document) error
	ListDocuments(ctx context.Context, mk, mdl string) ([]Document, error)
}

// BlobStore keeps the document bytes and hands back a file id.
type BlobStore interface {
	Save(data []byte, contentType string) (string, error)
}

// Suggester is a text-capable agent asked for likely manual URLs.
type Suggester interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Service runs document discovery in three phases (curated repositories,
// AI suggestions, web search) and archives whatever survives download.
type Service struct {
	cfg       config.ManualsConfig
	searcher  web_search.WebSearcher // nil when no provider key is set
	suggester Suggester              // nil when no suggestion agent is set
	cache     *redis.Client          // nil disables suggestion caching
	index     *Index
	docs      DocumentStore
	blobs     BlobStore
	http      *http.Client
	logger    *log.Logger
	telemetry *telemetry.Telemetry
}

func NewService(cfg config.ManualsConfig, searcher web_search.WebSearcher, suggester Suggester,
	cache *redis.Client, index *Index, docs DocumentStore, blobs BlobStore, tele *telemetry.Telemetry) *Service {
	timeout := cfg.DownloadTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		cfg:       cfg,
		searcher:  searcher,
		suggester: suggester,
		cache:     cache,
		index:     index,
		docs:      docs,
		blobs:     blobs,
		http:      &http.Client{Timeout: timeout},
		logger:    log.New(log.Writer(), "[MANUALS] ", log.LstdFlags),
		telemetry: tele,
	}
}

// SearchRepositories surfaces already-archived documents plus anything a
// curated repository's search page links to. A repository that errors is
// logged and skipped, never fatal.
func (s *Service) SearchRepositories(ctx context.Context, mk, mdl string) ([]Candidate, error) {
	var out []Candidate
	if s.index != nil {
		hits, err := s.index.Search(mk, mdl, 10)
		if err != nil {
			s.logger.Printf("local index search: %v", err)
		} else {
			out = append(out, hits...)
		}
	}

	q := strings.TrimSpace(mk + " " + mdl)
	for _, repo := range s.cfg.Repositories {
		cands, err := s.scrapeRepository(ctx, repo, q)
		if err != nil {
			s.logger.Printf("repository %s: %v", repo.Name, err)
			continue
		}
		out = append(out, cands...)
	}

	out = dedupCandidates(out)
	s.telemetry.RecordDiscovery("repositories", len(out))
	return out, nil
}

func (s *Service) scrapeRepository(ctx context.Context, repo config.ManualRepository, q string) ([]Candidate, error) {
	searchURL := fmt.Sprintf(repo.SearchURL, url.QueryEscape(q))
	req, err := http.NewRequestWithContext(ctx, "GET", searchURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	base := resp.Request.URL
	var out []Candidate
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if !looksLikeManualLink(href) {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		label := strings.TrimSpace(sel.Text())
		if label == "" {
			label = repo.Name
		}
		out = append(out, Candidate{
			URL:    base.ResolveReference(ref).String(),
			Source: SourceRepository,
			Label:  repo.Name + ": " + label,
		})
	})
	return out, nil
}

func looksLikeManualLink(href string) bool {
	h := strings.ToLower(strings.TrimSpace(href))
	if h == "" || strings.HasPrefix(h, "#") || strings.HasPrefix(h, "javascript:") || strings.HasPrefix(h, "mailto:") {
		return false
	}
	path := h
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return strings.HasSuffix(path, ".pdf") || strings.Contains(h, "manual")
}

// SearchAI asks the suggestion agent for likely manual URLs. Answers are
// cached per normalized make/model so repeat lookups skip the provider.
func (s *Service) SearchAI(ctx context.Context, mk, mdl string) ([]Candidate, error) {
	if s.suggester == nil {
		return nil, fmt.Errorf("no suggestion agent configured")
	}

	key := suggestionCacheKey(mk, mdl)
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, key).Result()
		if err == nil {
			var cached []Candidate
			if json.Unmarshal([]byte(raw), &cached) == nil {
				return cached, nil
			}
		} else if err != redis.Nil {
			s.logger.Printf("suggestion cache get: %v", err)
		}
	}

	raw, err := s.suggester.Generate(ctx, suggestionPrompt(mk, mdl))
	if err != nil {
		return nil, fmt.Errorf("suggestion agent: %w", err)
	}
	var urls []string
	if err := json.Unmarshal([]byte(utils.ExtractFirstJSONArray(raw)), &urls); err != nil {
		return nil, fmt.Errorf("parsing suggestions: %w", err)
	}

	var out []Candidate
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			continue
		}
		out = append(out, Candidate{URL: u, Source: SourceAI, Label: "suggested"})
	}
	out = dedupCandidates(out)

	if s.cache != nil {
		if body, err := json.Marshal(out); err == nil {
			ttl := s.cfg.SuggestionTTL
			if ttl <= 0 {
				ttl = 24 * time.Hour
			}
			if err := s.cache.Set(ctx, key, body, ttl).Err(); err != nil {
				s.logger.Printf("suggestion cache set: %v", err)
			}
		}
	}

	s.telemetry.RecordDiscovery("ai", len(out))
	return out, nil
}

func suggestionCacheKey(mk, mdl string) string {
	return "manuals:suggest:" + utils.NormalizeField(mk) + ":" + utils.NormalizeField(mdl)
}

func suggestionPrompt(mk, mdl string) string {
	return fmt.Sprintf(`List direct download URLs for the owner's manual or user guide of this product:

Make: %s
Model: %s

Prefer the manufacturer's own site, then well-known manual archives.
Respond ONLY with a strict JSON array of URL strings, most likely first,
at most 5 entries. Respond with [] if you know none.`, mk, mdl)
}

// SearchWeb queries the configured search provider for manual PDFs.
func (s *Service) SearchWeb(ctx context.Context, mk, mdl string) ([]Candidate, error) {
	if s.searcher == nil {
		return nil, fmt.Errorf("no web search provider configured")
	}

	q := fmt.Sprintf("%q owner's manual filetype:pdf", strings.TrimSpace(mk+" "+mdl))
	k := s.cfg.WebSearch.MaxResults
	if k <= 0 {
		k = 10
	}
	results, err := s.searcher.Discover(ctx, q, k, nil)
	if err != nil {
		return nil, err
	}

	var out []Candidate
	for _, r := range results {
		out = append(out, Candidate{URL: r.URL, Source: SourceWeb, Label: r.Title})
	}
	out = dedupCandidates(out)
	s.telemetry.RecordDiscovery("web", len(out))
	return out, nil
}

// Download fetches one URL, checks it actually looks like a document,
// and archives it. Failing the checks is not an error: the reason comes
// back in the result so callers can try the next candidate.
func (s *Service) Download(ctx context.Context, req DownloadRequest) (*DownloadResult, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	source := req.Source
	if source == "" {
		source = SourceWeb
	}

	data, contentType, reason := s.fetchDocument(ctx, req.URL)
	if reason != "" {
		s.telemetry.RecordDownload(string(source), false)
		return &DownloadResult{Reason: reason}, nil
	}

	fileID, err := s.blobs.Save(data, contentType)
	if err != nil {
		return nil, fmt.Errorf("storing document: %w", err)
	}
	doc := Document{
		ID:          uuid.NewString(),
		Make:        req.Make,
		Model:       req.Model,
		URL:         req.URL,
		Source:      source,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		FileID:      fileID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.docs.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("recording document: %w", err)
	}
	if s.index != nil {
		if err := s.index.Add(doc); err != nil {
			s.logger.Printf("indexing document %s: %v", doc.ID, err)
		}
	}

	s.telemetry.RecordDownload(string(source), true)
	s.logger.Printf("archived %s for %s %s (%d bytes, %s)", req.URL, req.Make, req.Model, doc.SizeBytes, source)
	return &DownloadResult{Success: true, Document: &doc}, nil
}

func (s *Service) fetchDocument(ctx context.Context, rawURL string) (data []byte, contentType, reason string) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, "", fmt.Sprintf("bad url: %v", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, "", err.Error()
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Sprintf("status %d", resp.StatusCode)
	}

	max := s.cfg.MaxDocumentSize
	if max <= 0 {
		max = 50 << 20
	}
	data, err = io.ReadAll(io.LimitReader(resp.Body, max+1))
	if err != nil {
		return nil, "", fmt.Sprintf("reading body: %v", err)
	}
	if int64(len(data)) > max {
		return nil, "", fmt.Sprintf("document exceeds %d bytes", max)
	}

	contentType = resp.Header.Get("Content-Type")
	if reason := checkDocument(data, contentType, s.cfg.MinDocumentSize); reason != "" {
		return nil, "", reason
	}
	return data, contentType, ""
}

// checkDocument rejects bodies that are clearly not a manual: too small
// to be a real document, or an HTML error page served with a 200.
func checkDocument(data []byte, contentType string, minSize int64) string {
	if minSize <= 0 {
		minSize = 10 << 10
	}
	if int64(len(data)) < minSize {
		return fmt.Sprintf("document too small (%d bytes)", len(data))
	}
	if strings.Contains(contentType, "pdf") || bytes.HasPrefix(data, []byte("%PDF-")) {
		return ""
	}
	return fmt.Sprintf("not a pdf (content-type %q)", contentType)
}

// Fetch is the full pipeline: return an already-archived document if one
// exists, otherwise run the discovery phases in order and download the
// first candidate that survives the checks. When nothing survives, the
// result carries manual search links instead.
func (s *Service) Fetch(ctx context.Context, mk, mdl string) (*FetchResult, error) {
	if strings.TrimSpace(mk) == "" && strings.TrimSpace(mdl) == "" {
		return nil, fmt.Errorf("make or model is required")
	}

	if docs, err := s.docs.ListDocuments(ctx, mk, mdl); err != nil {
		s.logger.Printf("listing archived documents: %v", err)
	} else if len(docs) > 0 {
		return &FetchResult{Success: true, Document: &docs[0]}, nil
	}

	var candidates []Candidate
	if cands, err := s.SearchRepositories(ctx, mk, mdl); err != nil {
		s.logger.Printf("repository phase: %v", err)
	} else {
		candidates = append(candidates, cands...)
	}
	if s.suggester != nil {
		if cands, err := s.SearchAI(ctx, mk, mdl); err != nil {
			s.logger.Printf("ai phase: %v", err)
		} else {
			candidates = append(candidates, cands...)
		}
	}
	var webCandidates []Candidate
	if s.searcher != nil {
		if cands, err := s.SearchWeb(ctx, mk, mdl); err != nil {
			s.logger.Printf("web phase: %v", err)
		} else {
			webCandidates = cands
			candidates = append(candidates, cands...)
		}
	}
	candidates = dedupCandidates(candidates)

	// Every candidate gets its turn, in discovery order; failure is
	// reported only after the whole list is exhausted.
	result := &FetchResult{}
	for _, cand := range candidates {
		dr, err := s.Download(ctx, DownloadRequest{Make: mk, Model: mdl, URL: cand.URL, Source: cand.Source})
		if err != nil {
			return nil, err
		}
		result.Attempts = append(result.Attempts, Attempt{URL: cand.URL, Source: cand.Source, Reason: dr.Reason})
		if dr.Success {
			result.Success = true
			result.Document = dr.Document
			return result, nil
		}
	}

	result.Links = FallbackLinks(mk, mdl, webCandidates)
	return result, nil
}

// List returns the archived documents for a product, newest first.
func (s *Service) List(ctx context.Context, mk, mdl string) ([]Document, error) {
	return s.docs.ListDocuments(ctx, mk, mdl)
}

// FallbackLinks builds the manual-search fallback: the top web hits as
// leads, or generic search pages when the web phase produced nothing.
func FallbackLinks(mk, mdl string, webCandidates []Candidate) []SearchLink {
	var links []SearchLink
	for i, c := range webCandidates {
		if i >= 3 {
			break
		}
		links = append(links, SearchLink{URL: c.URL, Label: c.Label})
	}
	if len(links) > 0 {
		return links
	}
	q := utils.UrlQuery(strings.TrimSpace(mk + " " + mdl + " manual"))
	return []SearchLink{
		{URL: "https://www.google.com/search?q=" + q, Label: "Search Google"},
		{URL: "https://www.bing.com/search?q=" + q, Label: "Search Bing"},
	}
}

// dedupCandidates keeps the first occurrence of each URL, preserving
// discovery order so earlier phases win.
func dedupCandidates(in []Candidate) []Candidate {
	seen := make(map[string]bool, len(in))
	var out []Candidate
	for _, c := range in {
		if c.URL == "" || seen[c.URL] {
			continue
		}
		seen[c.URL] = true
		out = append(out, c)
	}
	return out
}
