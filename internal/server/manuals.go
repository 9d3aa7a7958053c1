package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hearthkeep/hearth/internal/blob"
	"github.com/hearthkeep/hearth/internal/manuals"
)

// manualsService is the discovery surface the handler needs.
type manualsService interface {
	SearchRepositories(ctx context.Context, mk, mdl string) ([]manuals.Candidate, error)
	SearchAI(ctx context.Context, mk, mdl string) ([]manuals.Candidate, error)
	SearchWeb(ctx context.Context, mk, mdl string) ([]manuals.Candidate, error)
	Download(ctx context.Context, req manuals.DownloadRequest) (*manuals.DownloadResult, error)
	Fetch(ctx context.Context, mk, mdl string) (*manuals.FetchResult, error)
	List(ctx context.Context, mk, mdl string) ([]manuals.Document, error)
}

type ManualsHandler struct {
	Service manualsService
	Blobs   *blob.Store
}

func (h *ManualsHandler) Register(g *echo.Group) {
	g.GET("", h.list)
	g.GET("/search/repositories", h.searchRepositories)
	g.GET("/search/ai", h.searchAI)
	g.GET("/search/web", h.searchWeb)
	g.POST("/download", h.download)
	g.POST("/fetch", h.fetch)
	g.GET("/file/:file_id", h.file)
}

func product(c echo.Context) (string, string, error) {
	mk := strings.TrimSpace(c.QueryParam("make"))
	mdl := strings.TrimSpace(c.QueryParam("model"))
	if mk == "" && mdl == "" {
		return "", "", echo.NewHTTPError(http.StatusBadRequest, "make or model is required")
	}
	return mk, mdl, nil
}

func (h *ManualsHandler) searchRepositories(c echo.Context) error {
	return h.search(c, h.Service.SearchRepositories)
}

func (h *ManualsHandler) searchAI(c echo.Context) error {
	return h.search(c, h.Service.SearchAI)
}

// searchWeb additionally hands back manual search pages, so a client can
// offer them even when it will not auto-download anything.
func (h *ManualsHandler) searchWeb(c echo.Context) error {
	mk, mdl, err := product(c)
	if err != nil {
		return err
	}
	cands, err := h.Service.SearchWeb(c.Request().Context(), mk, mdl)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	if cands == nil {
		cands = []manuals.Candidate{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"urls":         candidateURLs(cands),
		"count":        len(cands),
		"candidates":   cands,
		"search_links": manuals.FallbackLinks(mk, mdl, cands),
	})
}

func (h *ManualsHandler) search(c echo.Context, phase func(context.Context, string, string) ([]manuals.Candidate, error)) error {
	mk, mdl, err := product(c)
	if err != nil {
		return err
	}
	cands, err := phase(c.Request().Context(), mk, mdl)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	if cands == nil {
		cands = []manuals.Candidate{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"urls":       candidateURLs(cands),
		"count":      len(cands),
		"candidates": cands,
	})
}

// candidateURLs flattens candidates to plain strings: clients decode
// "urls" as []string, the full objects ride alongside in "candidates".
func candidateURLs(cands []manuals.Candidate) []string {
	urls := make([]string, len(cands))
	for i, c := range cands {
		urls[i] = c.URL
	}
	return urls
}

func (h *ManualsHandler) download(c echo.Context) error {
	var req manuals.DownloadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.URL) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url is required")
	}
	result, err := h.Service.Download(c.Request().Context(), req)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := map[string]interface{}{"success": result.Success}
	if result.Success {
		out["message"] = "document archived"
		out["file_id"] = result.Document.FileID
		out["document"] = result.Document
	} else {
		out["message"] = result.Reason
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ManualsHandler) fetch(c echo.Context) error {
	var req struct {
		Make  string `json:"make"`
		Model string `json:"model"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Make) == "" && strings.TrimSpace(req.Model) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "make or model is required")
	}
	result, err := h.Service.Fetch(c.Request().Context(), req.Make, req.Model)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := map[string]interface{}{"success": result.Success, "attempts": result.Attempts}
	if result.Success {
		out["message"] = "document archived"
		out["url"] = result.Document.URL
		out["file_id"] = result.Document.FileID
		out["document"] = result.Document
	} else {
		out["message"] = "no document could be retrieved automatically"
		out["search_links"] = result.Links
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ManualsHandler) list(c echo.Context) error {
	mk := strings.TrimSpace(c.QueryParam("make"))
	mdl := strings.TrimSpace(c.QueryParam("model"))
	docs, err := h.Service.List(c.Request().Context(), mk, mdl)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if docs == nil {
		docs = []manuals.Document{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"documents": docs})
}

func (h *ManualsHandler) file(c echo.Context) error {
	path, err := h.Blobs.Path(c.Param("file_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}
	return c.File(path)
}
