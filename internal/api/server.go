// Package api exposes the pipeline actions over HTTP.
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ibeckermayer/trendteller/internal/app"
	"github.com/ibeckermayer/trendteller/internal/ingest"
	"github.com/ibeckermayer/trendteller/internal/report"
	"github.com/ibeckermayer/trendteller/internal/store"
	"github.com/ibeckermayer/trendteller/internal/types"
)

// Service is the set of user actions the server exposes. *app.App satisfies it.
type Service interface {
	ScrapeNews(ctx context.Context, query string, count int) (*ingest.Result, error)
	UploadComments(ctx context.Context, r io.Reader, name, ticker string) (*ingest.Result, error)
	FetchStock(ctx context.Context, ticker string, start, end types.Date) (*app.StockResult, error)
	UpdateDatabase(ctx context.Context) (*store.SyncReport, error)
	BuildReport(ctx context.Context, req report.Request) (*report.Report, error)
	RenderReport(r *report.Report) ([]byte, error)
}

// maxUploadBytes caps multipart uploads
const maxUploadBytes = 32 << 20

// NewServer builds the router and an http.Server listening on addr
func NewServer(addr string, svc Service) (*gin.Engine, *http.Server) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.MaxMultipartMemory = maxUploadBytes

	h := &handlers{svc: svc}
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/report", h.reportPage)

	api := r.Group("/api")
	api.POST("/news", h.scrapeNews)
	api.POST("/comments", h.uploadComments)
	api.POST("/stock", h.fetchStock)
	api.POST("/sync", h.sync)
	api.GET("/report", h.reportJSON)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return r, srv
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start).Round(time.Millisecond),
		)
	}
}
