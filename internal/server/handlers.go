package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pdf_rag/internal/app"
)

const (
	msgMissingQuery = "Query tidak ditemukan di body permintaan."
	msgAnswer       = "Berikut adalah potongan dokumen yang relevan."
	msgHome         = "API berjalan. Gunakan endpoint /ask untuk mengirim pertanyaan."
)

type askRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type source struct {
	SourceFile string `json:"sumber_file"`
	Page       int    `json:"halaman"`
	Content    string `json:"konten"`
}

type askResponse struct {
	Query   string   `json:"query"`
	Answer  string   `json:"answer"`
	Sources []source `json:"sources"`
}

func (s *Server) handleAsk(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgMissingQuery})
		return
	}

	status, results, err := s.service.FindRelevant(c.Request.Context(), req.Query, req.TopK)
	if err != nil {
		s.logger.Error().Err(err).Str("query", req.Query).Msg("Query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": app.StatusNotReady})
		return
	}

	resp := askResponse{
		Query:   req.Query,
		Answer:  status,
		Sources: make([]source, 0, len(results)),
	}
	for _, r := range results {
		resp.Sources = append(resp.Sources, source{SourceFile: r.SourceFile, Page: r.Page, Content: r.Content})
	}
	if len(resp.Sources) > 0 {
		resp.Answer = msgAnswer
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHome(c *gin.Context) {
	c.String(http.StatusOK, msgHome)
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.service.Ready(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "rows": s.service.Rows()})
}
