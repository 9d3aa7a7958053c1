package manuals

import "time"

// Document is one archived manual or datasheet.
type Document struct {
	ID          string    `json:"id"`
	Make        string    `json:"make"`
	Model       string    `json:"model"`
	URL         string    `json:"url"`
	Source      Source    `json:"source"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	FileID      string    `json:"file_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Source names which discovery phase produced a candidate URL.
type Source string

const (
	SourceLibrary    Source = "library"
	SourceRepository Source = "repository"
	SourceAI         Source = "ai"
	SourceWeb        Source = "web"
)

// Candidate is one document URL worth trying, in discovery order.
type Candidate struct {
	URL    string `json:"url"`
	Source Source `json:"source"`
	Label  string `json:"label,omitempty"`
}

// SearchLink is a manual-search page handed to the user when automatic
// retrieval fails.
type SearchLink struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

// DownloadRequest asks for one URL to be fetched and archived.
type DownloadRequest struct {
	Make   string `json:"make"`
	Model  string `json:"model"`
	URL    string `json:"url"`
	Source Source `json:"source,omitempty"`
}

// DownloadResult reports one download attempt. A failed attempt carries
// the reason instead of an error so callers can move on to the next
// candidate.
type DownloadResult struct {
	Success  bool      `json:"success"`
	Reason   string    `json:"reason,omitempty"`
	Document *Document `json:"document,omitempty"`
}

// Attempt records one candidate tried during a fetch run.
type Attempt struct {
	URL    string `json:"url"`
	Source Source `json:"source"`
	Reason string `json:"reason,omitempty"`
}

// FetchResult is the outcome of the full discovery pipeline for one
// product. When no candidate survives download, Links carries manual
// search pages as the fallback.
type FetchResult struct {
	Success  bool         `json:"success"`
	Document *Document    `json:"document,omitempty"`
	Attempts []Attempt    `json:"attempts,omitempty"`
	Links    []SearchLink `json:"links,omitempty"`
}
