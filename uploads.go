package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/efbdata/impact_dashboard/config"
	"github.com/efbdata/impact_dashboard/ingest"
	"github.com/efbdata/impact_dashboard/parser"
	"github.com/efbdata/impact_dashboard/store"
	"github.com/efbdata/impact_dashboard/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const maxUploadSizeBytes int64 = 10 * 1024 * 1024

var uploadExtensions = map[string]bool{
	".csv":  true,
	".tsv":  true,
	".xlsx": true,
	".xlsm": true,
}

// readUpload returns the multipart "file" field after checking its size and extension.
func readUpload(c *gin.Context) (string, []byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSizeBytes+1<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		return "", nil, fmt.Errorf("file is required: %w", err)
	}
	if fh.Size > maxUploadSizeBytes {
		return "", nil, fmt.Errorf("file exceeds %d bytes", maxUploadSizeBytes)
	}
	name := filepath.Base(fh.Filename)
	if !uploadExtensions[strings.ToLower(filepath.Ext(name))] {
		return "", nil, fmt.Errorf("unsupported file type %q", filepath.Ext(name))
	}
	f, err := fh.Open()
	if err != nil {
		return "", nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", nil, err
	}
	return name, data, nil
}

// createUpload ingests a spreadsheet. With ?async=true the file is stored and
// queued, and the PENDING job is returned with 202.
func (a *App) createUpload(c *gin.Context) {
	ctx := c.Request.Context()
	name, data, err := readUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, _ := utils.GetUsernameFromContext(ctx)
	fields := logrus.Fields{"field": "createUpload", "filename": name, "size": len(data)}

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		if a.Dispatcher == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "asynchronous uploads are not configured"})
			return
		}
		job, err := a.Dispatcher.Dispatch(ctx, name, data, user)
		if err != nil {
			config.LogError(a.Logger, "uploads.go", "createUpload", "dispatch", fields, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "job": job})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"job": job})
		return
	}

	job, err := a.Pipeline.Run(ctx, ingest.Input{Filename: name, Data: data, UploadedBy: user})
	var headerErr *parser.HeaderError
	switch {
	case errors.As(err, &headerErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "job": job})
	case err != nil:
		config.LogError(a.Logger, "uploads.go", "createUpload", "ingest", fields, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "job": job})
	default:
		a.Logger.WithFields(fields).Info("upload processed")
		c.JSON(http.StatusOK, gin.H{"job": job})
	}
}

func (a *App) listUploads(c *gin.Context) {
	jobs, err := a.Jobs.List(c.Request.Context(), queryLimit(c, 50, 500))
	if err != nil {
		a.fail(c, "listUploads", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": jobs})
}

func (a *App) getUpload(c *gin.Context) {
	job, err := a.Jobs.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "upload not found"})
		return
	}
	if err != nil {
		a.fail(c, "getUpload", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": job})
}
