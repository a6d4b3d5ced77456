// Package handlers exposes the HTTP trigger surface: each route selects an
// orchestrator entry point and reports a textual status.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	apierrors "github.com/ashenomo/tomigaya/internal/errors"
	"github.com/ashenomo/tomigaya/internal/models"
	"github.com/ashenomo/tomigaya/internal/services"
)

// Runner is the orchestrator surface the trigger routes drive.
type Runner interface {
	RunRescan(ctx context.Context, path, sheet string) error
	RunCrawl(ctx context.Context, sheet string) error
	RunScrapeDB(ctx context.Context, path string) (map[string]int, error)
}

// RunnerFactory builds a Runner scraping the given host. Runs are
// constructed per request because each carries its own cache index and
// timestamp.
type RunnerFactory func(ctx context.Context, host string) (Runner, error)

// ScrapeHandler handles the scrape trigger routes.
type ScrapeHandler struct {
	factory      RunnerFactory
	defaultHost  string
	defaultPath  string
	defaultSheet string
}

// NewScrapeHandler creates a ScrapeHandler with the configured defaults.
func NewScrapeHandler(factory RunnerFactory, defaultHost, defaultPath, defaultSheet string) *ScrapeHandler {
	return &ScrapeHandler{
		factory:      factory,
		defaultHost:  defaultHost,
		defaultPath:  defaultPath,
		defaultSheet: defaultSheet,
	}
}

// hostPathURI binds the /:host/*path route parameters.
type hostPathURI struct {
	Host string `uri:"host" binding:"required,hostname"`
	Path string `uri:"path"`
}

// hostURI binds the /:host route parameter.
type hostURI struct {
	Host string `uri:"host" binding:"required,hostname"`
}

// Rescan handles GET /. It rescans the configured start page into the
// default sheet.
func (h *ScrapeHandler) Rescan(c *gin.Context) {
	runner, err := h.factory(c.Request.Context(), h.defaultHost)
	if err != nil {
		apierrors.RunFailure(c, apierrors.ErrInternalServer, "Failed to initialize scraper", err)
		return
	}
	if err := runner.RunRescan(c.Request.Context(), h.defaultPath, h.defaultSheet); err != nil {
		failRun(c, err)
		return
	}
	c.String(http.StatusOK, "Updated!")
}

// Custom handles GET /custom/:host/*path. It rescans an arbitrary start
// page into a freshly created timestamped sheet.
func (h *ScrapeHandler) Custom(c *gin.Context) {
	var uri hostPathURI
	if !bindURI(c, &uri) {
		return
	}
	runner, err := h.factory(c.Request.Context(), uri.Host)
	if err != nil {
		apierrors.RunFailure(c, apierrors.ErrInternalServer, "Failed to initialize scraper", err)
		return
	}
	sheet := time.Now().Format("2006-01-02 15:04:05") + " " + uri.Host + uri.Path
	if err := runner.RunRescan(c.Request.Context(), uri.Path, sheet); err != nil {
		failRun(c, err)
		return
	}
	c.String(http.StatusOK, "Done customing")
}

// Crawl handles GET /crawl/:host. It rescans every site map path into one
// timestamped sheet.
func (h *ScrapeHandler) Crawl(c *gin.Context) {
	var uri hostURI
	if !bindURI(c, &uri) {
		return
	}
	runner, err := h.factory(c.Request.Context(), uri.Host)
	if err != nil {
		apierrors.RunFailure(c, apierrors.ErrInternalServer, "Failed to initialize scraper", err)
		return
	}
	sheet := time.Now().Format("01-02 15:04:05") + " " + uri.Host + " crawl"
	if err := runner.RunCrawl(c.Request.Context(), sheet); err != nil {
		failRun(c, err)
		return
	}
	c.String(http.StatusOK, "Done crawling")
}

// ScrapeDB handles GET /scrape-db/:host/*path. It reconciles the database
// sheet for the path and reports the run counters.
func (h *ScrapeHandler) ScrapeDB(c *gin.Context) {
	var uri hostPathURI
	if !bindURI(c, &uri) {
		return
	}
	runner, err := h.factory(c.Request.Context(), uri.Host)
	if err != nil {
		apierrors.RunFailure(c, apierrors.ErrInternalServer, "Failed to initialize scraper", err)
		return
	}
	counters, err := runner.RunScrapeDB(c.Request.Context(), uri.Path)
	if err != nil {
		failRun(c, err)
		return
	}
	c.String(http.StatusOK, "<pre>Done. Counters:\n%s</pre>", formatCounters(counters))
}

// bindURI binds and validates route parameters, reporting a client error on
// failure.
func bindURI(c *gin.Context, uri interface{}) bool {
	if err := c.ShouldBindUri(uri); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			apierrors.ValidationError(c, validationErrors)
			return false
		}
		apierrors.BadRequest(c, "Invalid path parameters", nil)
		return false
	}
	return true
}

// failRun maps run errors to the error envelope codes.
func failRun(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidLink), errors.Is(err, models.ErrMissingLink):
		apierrors.BadRequest(c, err.Error(), nil)
	case errors.Is(err, services.ErrExportFailed):
		apierrors.RunFailure(c, apierrors.ErrExportFailure, "Spreadsheet export failed", err)
	case errors.Is(err, services.ErrFetchFailed):
		apierrors.RunFailure(c, apierrors.ErrFetchFailure, "Fetching the target site failed", err)
	default:
		apierrors.RunFailure(c, apierrors.ErrInternalServer, "Scrape run failed", err)
	}
}

func formatCounters(counters map[string]int) string {
	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("%30s %6d", name, counters[name]))
	}
	return strings.Join(lines, "\n")
}
