package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ibeckermayer/trendteller/internal/dataset"
	"github.com/ibeckermayer/trendteller/internal/ingest"
	"github.com/ibeckermayer/trendteller/internal/report"
	"github.com/ibeckermayer/trendteller/internal/scraper"
	"github.com/ibeckermayer/trendteller/internal/stock"
	"github.com/ibeckermayer/trendteller/internal/types"
)

type handlers struct {
	svc Service
}

type newsRequest struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

type stockRequest struct {
	Ticker string     `json:"ticker"`
	Start  types.Date `json:"start"`
	End    types.Date `json:"end"`
}

// status maps pipeline errors onto HTTP codes
func status(err error) int {
	var schemaErr *dataset.SchemaError
	switch {
	case errors.As(err, &schemaErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, scraper.ErrEmptyQuery), errors.Is(err, stock.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, stock.ErrNoData):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(status(err), gin.H{"error": err.Error()})
}

// ingested writes an ingestion result. ErrNoData is a warning, not a failure.
func ingested(c *gin.Context, res *ingest.Result, err error) {
	if errors.Is(err, ingest.ErrNoData) {
		if res == nil {
			res = &ingest.Result{}
		}
		res.Warnings = append(res.Warnings, err.Error())
		c.JSON(http.StatusOK, res)
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) scrapeNews(c *gin.Context) {
	var req newsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	res, err := h.svc.ScrapeNews(c.Request.Context(), req.Query, req.Count)
	ingested(c, res, err)
}

func (h *handlers) uploadComments(c *gin.Context) {
	ticker := c.PostForm("ticker")
	if ticker == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ticker is required"})
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, err)
		return
	}
	defer f.Close()

	res, err := h.svc.UploadComments(c.Request.Context(), f, fh.Filename, ticker)
	ingested(c, res, err)
}

func (h *handlers) fetchStock(c *gin.Context) {
	var req stockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Ticker == "" || req.Start.IsZero() || req.End.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ticker, start and end are required"})
		return
	}
	res, err := h.svc.FetchStock(c.Request.Context(), req.Ticker, req.Start, req.End)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) sync(c *gin.Context) {
	rep, err := h.svc.UpdateDatabase(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *handlers) buildReport(c *gin.Context) (*report.Report, bool) {
	var req report.Request
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	r, err := h.svc.BuildReport(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return nil, false
	}
	return r, true
}

func (h *handlers) reportJSON(c *gin.Context) {
	if r, ok := h.buildReport(c); ok {
		c.JSON(http.StatusOK, r)
	}
}

func (h *handlers) reportPage(c *gin.Context) {
	r, ok := h.buildReport(c)
	if !ok {
		return
	}
	page, err := h.svc.RenderReport(r)
	if err != nil {
		fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}
