package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hearthkeep/hearth/internal/identify"
)

// identifier is the engine surface the handler needs.
type identifier interface {
	Identify(ctx context.Context, req identify.Request) <-chan identify.Event
	AgentNames() []string
}

// agentLabels maps agent identifiers to user-facing display names.
var agentLabels = map[string]string{
	"openai":    "GPT Vision",
	"anthropic": "Claude Vision",
	"gemini":    "Gemini Vision",
}

func agentLabel(name string) string {
	if label, ok := agentLabels[name]; ok {
		return label
	}
	return name
}

const maxImageSize = 10 << 20

type IdentifyHandler struct {
	Engine identifier
}

func (h *IdentifyHandler) Register(g *echo.Group) {
	g.POST("/stream", h.stream)
	g.GET("/agents", h.agents)
}

func (h *IdentifyHandler) agents(c echo.Context) error {
	type agentInfo struct {
		Name  string `json:"name"`
		Label string `json:"label"`
	}
	out := []agentInfo{}
	for _, name := range h.Engine.AgentNames() {
		out = append(out, agentInfo{Name: name, Label: agentLabel(name)})
	}
	return c.JSON(http.StatusOK, out)
}

// stream runs one identification and relays its progress events as SSE.
// The run always finishes: when the client goes away the remaining
// events are drained without being written.
func (h *IdentifyHandler) stream(c echo.Context) error {
	req, err := parseIdentifyRequest(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	resp := c.Response()
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		// Checked before any header write so the 503 can still go out.
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	// Deliberately not the request context: a dropped client must not
	// cancel the in-flight provider calls.
	events := h.Engine.Identify(context.Background(), req)
	clientGone := false
	for ev := range events {
		if clientGone {
			continue
		}
		data, err := json.Marshal(ev.Payload)
		if err != nil {
			continue
		}
		if _, err := resp.Write([]byte("event: " + string(ev.Type) + "\n")); err != nil {
			clientGone = true
			continue
		}
		if _, err := resp.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
			clientGone = true
			continue
		}
		flusher.Flush()
	}
	return nil
}

func parseIdentifyRequest(c echo.Context) (identify.Request, error) {
	req := identify.Request{Query: strings.TrimSpace(c.FormValue("query"))}
	if cats := strings.TrimSpace(c.FormValue("categories")); cats != "" {
		// Accepts a JSON array or a comma-separated list.
		var list []string
		if strings.HasPrefix(cats, "[") {
			if err := json.Unmarshal([]byte(cats), &list); err != nil {
				return req, fmt.Errorf("parsing categories: %w", err)
			}
		} else {
			list = strings.Split(cats, ",")
		}
		for _, cat := range list {
			if cat = strings.TrimSpace(cat); cat != "" {
				req.Categories = append(req.Categories, cat)
			}
		}
	}

	if file, err := c.FormFile("image"); err == nil {
		f, err := file.Open()
		if err != nil {
			return req, fmt.Errorf("opening image: %w", err)
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, maxImageSize+1))
		if err != nil {
			return req, fmt.Errorf("reading image: %w", err)
		}
		if len(data) > maxImageSize {
			return req, fmt.Errorf("image exceeds %d bytes", maxImageSize)
		}
		req.Image = data
		req.ImageMIME = file.Header.Get("Content-Type")
		if req.ImageMIME == "" {
			req.ImageMIME = http.DetectContentType(data)
		}
	}

	if !req.HasImage() && !req.HasText() {
		return req, fmt.Errorf("an image or a query is required")
	}
	return req, nil
}
