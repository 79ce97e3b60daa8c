package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/efbdata/impact_dashboard/config"
	"github.com/efbdata/impact_dashboard/ingest"
	"github.com/efbdata/impact_dashboard/models"
	"github.com/efbdata/impact_dashboard/projector"
	"github.com/efbdata/impact_dashboard/store"
	"github.com/gin-gonic/gin"
)

// storeStatus maps store errors to HTTP status codes.
func storeStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidRecord):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrSectionInUse):
		return http.StatusConflict
	case errors.Is(err, store.ErrSchemaAbsent):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *App) fail(c *gin.Context, funcName string, err error) {
	status := storeStatus(err)
	if status >= http.StatusInternalServerError {
		config.LogError(a.Logger, "handlers.go", funcName, c.Request.URL.Path, nil, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (a *App) listMetrics(c *gin.Context) {
	records, err := a.Client.GetAll(c.Request.Context())
	if err != nil {
		a.fail(c, "listMetrics", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}

func (a *App) listSectionMetrics(c *gin.Context) {
	records, err := a.Client.GetBySection(c.Request.Context(), a.Keys.SectionKey(c.Param("section")))
	if err != nil {
		a.fail(c, "listSectionMetrics", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}

// decodeRecords accepts a single record or an array of records.
func decodeRecords(body []byte) ([]models.MetricRecord, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("request body is empty")
	}
	if body[0] == '[' {
		var records []models.MetricRecord
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, err
		}
		return records, nil
	}
	var record models.MetricRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, err
	}
	return []models.MetricRecord{record}, nil
}

func (a *App) upsertMetrics(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	records, err := decodeRecords(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	var problems []string
	for i := range records {
		r := &records[i]
		r.SectionKey = a.Keys.SectionKey(r.SectionKey)
		if r.MetricKey == "" {
			r.MetricKey = a.Keys.MetricKey(r.MetricName)
		}
		if r.MetricName == "" {
			r.MetricName = r.MetricKey
		}
		if err := ingest.Validate(a.Pipeline.Validate, *r); err != nil {
			problems = append(problems, fmt.Sprintf("record %d: %v", i, err))
		}
	}
	if len(problems) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": problems})
		return
	}

	res, err := a.Client.UpsertMany(c.Request.Context(), records)
	if err != nil {
		a.fail(c, "upsertMetrics", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"shape":     res.Shape,
		"inserted":  res.Inserted,
		"updated":   res.Updated,
		"unchanged": res.Unchanged,
	})
}

func (a *App) deleteMetric(c *gin.Context) {
	deleted, err := a.Client.DeleteOne(c.Request.Context(), a.Keys.SectionKey(c.Param("section")), c.Param("metric"))
	if err != nil {
		a.fail(c, "deleteMetric", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (a *App) listSections(c *gin.Context) {
	sections, err := a.Client.Sections(c.Request.Context())
	if err != nil {
		a.fail(c, "listSections", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sections})
}

func (a *App) upsertSection(c *gin.Context) {
	var section models.DashboardSection
	if err := c.ShouldBindJSON(&section); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if section.SectionKey == "" && section.SectionName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "section_key or section_name is required"})
		return
	}
	if section.SectionKey == "" {
		section.SectionKey = section.SectionName
	}
	saved, err := a.Client.UpsertSection(c.Request.Context(), section)
	if err != nil {
		a.fail(c, "upsertSection", err)
		return
	}
	a.invalidateDashboard(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"data": saved})
}

func (a *App) deleteSection(c *gin.Context) {
	deleted, err := a.Client.DeleteSection(c.Request.Context(), c.Param("section"))
	if err != nil {
		a.fail(c, "deleteSection", err)
		return
	}
	a.invalidateDashboard(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (a *App) dashboard(c *gin.Context) {
	ctx := c.Request.Context()
	var gen int64
	if a.Cache != nil {
		var cached projector.Dashboard
		hit, err := a.Cache.Load(ctx, &cached)
		if err != nil {
			config.LogError(a.Logger, "handlers.go", "dashboard", "read cache", nil, err)
		} else if hit {
			c.JSON(http.StatusOK, cached)
			return
		}
		if gen, err = a.Cache.Generation(ctx); err != nil {
			config.LogError(a.Logger, "handlers.go", "dashboard", "read cache generation", nil, err)
		}
	}

	metrics, err := a.Client.GetAll(ctx)
	if err != nil {
		a.fail(c, "dashboard", err)
		return
	}
	sections, err := a.Client.Sections(ctx)
	if err != nil {
		a.fail(c, "dashboard", err)
		return
	}
	d := projector.Project(metrics, sections, a.Keys)
	if a.Cache != nil {
		if _, err := a.Cache.Store(ctx, gen, d); err != nil {
			config.LogError(a.Logger, "handlers.go", "dashboard", "write cache", nil, err)
		}
	}
	c.JSON(http.StatusOK, d)
}

func (a *App) invalidateDashboard(ctx context.Context) {
	if a.Cache == nil {
		return
	}
	if err := a.Cache.Invalidate(ctx); err != nil {
		config.LogError(a.Logger, "handlers.go", "invalidateDashboard", dashboardCacheKey, nil, err)
	}
}

func (a *App) listChanges(c *gin.Context) {
	limit := queryLimit(c, 100, 1000)
	entries, err := a.Client.AuditEntries(c.Request.Context(), c.Query("record_id"), limit)
	if err != nil {
		a.fail(c, "listChanges", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

func (a *App) export(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	if format != "csv" && format != "xlsx" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be csv or xlsx"})
		return
	}
	var buf bytes.Buffer
	if err := ingest.Export(c.Request.Context(), a.Client, &buf, format); err != nil {
		a.fail(c, "export", err)
		return
	}
	filename := fmt.Sprintf("dashboard-metrics-%s.%s", time.Now().UTC().Format("20060102"), format)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, ingest.ContentType(format), buf.Bytes())
}

func queryLimit(c *gin.Context, def, ceiling int) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, ceiling)
}
