package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/docqd/internal/agent"
	"github.com/fyrsmithlabs/docqd/internal/extract"
	"github.com/fyrsmithlabs/docqd/internal/ingest"
	"github.com/fyrsmithlabs/docqd/internal/notes"
	"github.com/fyrsmithlabs/docqd/internal/planner"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ChatRequest is the request body for POST /chat and /chat/stream.
type ChatRequest struct {
	Message   string `json:"message" form:"message"`
	SessionID string `json:"session_id" form:"session_id"`
	TopK      int    `json:"top_k" form:"top_k"`

	// InlineDocument is ephemeral document text for this exchange.
	// Multipart callers send a user_pdf file instead; its extracted
	// text lands here.
	InlineDocument string `json:"inline_document" form:"-"`
}

// NotesRequest is the request body for POST /notes.
type NotesRequest struct {
	Topics     []string `json:"topics"`
	BasePrompt string   `json:"base_prompt"`
	BatchSize  int      `json:"batch_size"`
}

// NotesResponse is the response body for POST /notes.
type NotesResponse struct {
	Markdown string `json:"markdown"`
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status       string `json:"status"`
	IndexedPages int    `json:"indexed_pages"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:       "ok",
		IndexedPages: s.deps.Index.Count(),
	})
}

// bindChatRequest accepts either a JSON body or a multipart form with an
// optional user_pdf attachment. The attachment is extracted in memory
// and never touches the index.
func (s *Server) bindChatRequest(c echo.Context) (ChatRequest, error) {
	var req ChatRequest

	contentType := c.Request().Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(contentType, echo.MIMEMultipartForm) {
		if err := c.Bind(&req); err != nil {
			return ChatRequest{}, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		return req, nil
	}

	req.Message = c.FormValue("message")
	req.SessionID = c.FormValue("session_id")
	if v := c.FormValue("top_k"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil {
			return ChatRequest{}, echo.NewHTTPError(http.StatusBadRequest, "top_k must be an integer")
		}
		req.TopK = k
	}

	fh, err := c.FormFile("user_pdf")
	if err != nil {
		// No attachment is fine.
		return req, nil
	}
	if s.deps.Extractor == nil {
		return ChatRequest{}, echo.NewHTTPError(http.StatusBadRequest, "pdf attachments are not supported")
	}

	f, err := fh.Open()
	if err != nil {
		return ChatRequest{}, echo.NewHTTPError(http.StatusBadRequest, "unreadable user_pdf attachment")
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		return ChatRequest{}, echo.NewHTTPError(http.StatusBadRequest, "unreadable user_pdf attachment")
	}

	pages, err := s.deps.Extractor.ExtractPages(c.Request().Context(), raw)
	if err != nil {
		s.logger.Warn("inline pdf extraction failed",
			zap.String("filename", fh.Filename), zap.Error(err))
		return ChatRequest{}, echo.NewHTTPError(http.StatusBadRequest, "could not extract text from user_pdf")
	}
	req.InlineDocument = joinPages(pages)
	return req, nil
}

func joinPages(pages []extract.Page) string {
	texts := make([]string, 0, len(pages))
	for _, p := range pages {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n\n")
}

func (s *Server) handleChat(c echo.Context) error {
	req, err := s.bindChatRequest(c)
	if err != nil {
		return err
	}

	resp, err := s.deps.Agent.Answer(c.Request().Context(), agent.Request{
		Message:        req.Message,
		SessionID:      req.SessionID,
		InlineDocument: req.InlineDocument,
		TopK:           req.TopK,
	})
	if err != nil {
		if errors.Is(err, agent.ErrEmptyMessage) {
			return echo.NewHTTPError(http.StatusBadRequest, "message is required")
		}
		s.logger.Error("chat exchange failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "chat exchange failed")
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleChatStream(c echo.Context) error {
	req, err := s.bindChatRequest(c)
	if err != nil {
		return err
	}

	events, err := s.deps.Agent.Stream(c.Request().Context(), agent.Request{
		Message:        req.Message,
		SessionID:      req.SessionID,
		InlineDocument: req.InlineDocument,
		TopK:           req.TopK,
	})
	if err != nil {
		if errors.Is(err, agent.ErrEmptyMessage) {
			return echo.NewHTTPError(http.StatusBadRequest, "message is required")
		}
		s.logger.Error("chat stream failed to start", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "chat stream failed")
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("encode stream event failed", zap.Error(err))
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
		w.Flush()
	}
	return nil
}

func (s *Server) handleIngest(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "a file attachment is required")
	}

	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable file attachment")
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable file attachment")
	}

	res, err := s.deps.Ingest.Ingest(c.Request().Context(), raw, fh.Filename)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrNotPDF):
			return echo.NewHTTPError(http.StatusBadRequest, "only PDF uploads are accepted")
		case errors.Is(err, ingest.ErrNoPages):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "no extractable text in the PDF")
		default:
			s.logger.Error("ingest failed", zap.String("filename", fh.Filename), zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "ingest failed")
		}
	}

	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleNotes(c echo.Context) error {
	var req NotesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	md, err := s.deps.Notes.GenerateNotes(c.Request().Context(), req.Topics, req.BasePrompt, req.BatchSize)
	if err != nil {
		switch {
		case errors.Is(err, notes.ErrNoTopics):
			return echo.NewHTTPError(http.StatusBadRequest, "at least one topic is required")
		case errors.Is(err, planner.ErrPlanParse):
			return echo.NewHTTPError(http.StatusBadGateway, "query planning failed, retry the request")
		default:
			s.logger.Error("notes generation failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "notes generation failed")
		}
	}

	return c.JSON(http.StatusOK, NotesResponse{Markdown: md})
}
