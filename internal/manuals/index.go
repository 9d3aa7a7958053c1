package manuals

import (
	"fmt"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/search/query"

	"github.com/hearthkeep/hearth/utils"
)

// Index is the local full-text index over archived documents. It lets
// the repository phase surface manuals already on disk before any
// network call is made.
type Index struct {
	idx bleve.Index
}

// OpenIndex opens the index at path, creating it on first use. An empty
// path yields an in-memory index.
func OpenIndex(path string) (*Index, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("creating in-memory index: %w", err)
		}
		return &Index{idx: idx}, nil
	}
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, bleve.NewIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("opening index %s: %w", path, err)
	}
	return &Index{idx: idx}, nil
}

func (ix *Index) Add(d Document) error {
	return ix.idx.Index(d.ID, map[string]interface{}{
		"make":    utils.NormalizeField(d.Make),
		"model":   utils.NormalizeField(d.Model),
		"url":     d.URL,
		"file_id": d.FileID,
		"source":  string(d.Source),
	})
}

// Search returns candidates already archived for the given product.
func (ix *Index) Search(mk, mdl string, limit int) ([]Candidate, error) {
	var clauses []query.Query
	if v := utils.NormalizeField(mk); v != "" {
		mq := bleve.NewMatchQuery(v)
		mq.SetField("make")
		clauses = append(clauses, mq)
	}
	if v := utils.NormalizeField(mdl); v != "" {
		mq := bleve.NewMatchQuery(v)
		mq.SetField("model")
		clauses = append(clauses, mq)
	}
	if len(clauses) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(clauses...), limit, 0, false)
	req.Fields = []string{"url", "file_id"}
	res, err := ix.idx.Search(req)
	if err != nil {
		return nil, err
	}

	var out []Candidate
	for _, hit := range res.Hits {
		url, _ := hit.Fields["url"].(string)
		if url == "" {
			continue
		}
		out = append(out, Candidate{URL: url, Source: SourceLibrary, Label: "already archived"})
	}
	return out, nil
}

func (ix *Index) Close() error {
	return ix.idx.Close()
}
