package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/efbdata/impact_dashboard/config"
	"github.com/efbdata/impact_dashboard/models"
	"github.com/efbdata/impact_dashboard/parser"
	"github.com/efbdata/impact_dashboard/store"
	"github.com/efbdata/impact_dashboard/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ObjectStore holds uploaded source files between dispatch and processing.
// utils.GCSObjects implements it.
type ObjectStore interface {
	Put(ctx context.Context, name string, data []byte, contentType string) error
	Get(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
}

// Message is the queued request to process one upload job.
type Message struct {
	JobID         string `json:"job_id"`
	Filename      string `json:"filename"`
	Object        string `json:"object"`
	UploadedBy    string `json:"uploaded_by"`
	CorrelationID string `json:"correlation_id"`
}

// Queue hands a Message to the asynchronous worker.
type Queue interface {
	Enqueue(ctx context.Context, msg Message) error
}

// PubSubQueue publishes messages to a Pub/Sub topic whose push
// subscription targets PushHandler.
type PubSubQueue struct {
	Topic string
}

func (q PubSubQueue) Enqueue(ctx context.Context, msg Message) error {
	_, err := config.PublishJSON(ctx, q.Topic, msg)
	return err
}

// Dispatcher stores an upload and queues it instead of ingesting inline.
type Dispatcher struct {
	Jobs    *JobStore
	Objects ObjectStore
	Queue   Queue
	Now     func() time.Time
}

func NewDispatcher(jobs *JobStore, objects ObjectStore, queue Queue) *Dispatcher {
	return &Dispatcher{Jobs: jobs, Objects: objects, Queue: queue, Now: func() time.Time { return time.Now().UTC() }}
}

// Dispatch returns the PENDING job created for the upload.
func (d *Dispatcher) Dispatch(ctx context.Context, filename string, data []byte, uploadedBy string) (models.UploadJob, error) {
	if uploadedBy == "" {
		uploadedBy = "system"
	}
	job := models.UploadJob{
		ID:         uuid.NewString(),
		Filename:   filename,
		FileSize:   int64(len(data)),
		Status:     models.UploadStatusPending,
		UploadedBy: uploadedBy,
		UploadedAt: d.Now(),
	}
	job.SourceObject = path.Join("uploads", job.ID, path.Base(filename))

	if err := d.Objects.Put(ctx, job.SourceObject, data, contentTypeFor(filename)); err != nil {
		return job, fmt.Errorf("store upload: %w", err)
	}
	if err := d.Jobs.Create(ctx, job); err != nil {
		return job, fmt.Errorf("create upload job: %w", err)
	}
	correlationID, _ := utils.GetCorrelationIdFromContext(ctx)
	err := d.Queue.Enqueue(ctx, Message{
		JobID:         job.ID,
		Filename:      filename,
		Object:        job.SourceObject,
		UploadedBy:    uploadedBy,
		CorrelationID: correlationID,
	})
	if err != nil {
		now := d.Now()
		job.Status = models.UploadStatusFailed
		job.ErrorDetails = []string{"could not queue upload: " + err.Error()}
		job.CompletedAt = &now
		if derr := d.Objects.Delete(context.WithoutCancel(ctx), job.SourceObject); derr != nil {
			config.LogError(config.GetLogger(), "ingest", "Dispatch", "delete unqueued upload", job.SourceObject, derr)
		}
		if serr := d.Jobs.Save(context.WithoutCancel(ctx), job); serr != nil {
			return job, errors.Join(err, serr)
		}
		return job, fmt.Errorf("queue upload: %w", err)
	}
	return job, nil
}

func contentTypeFor(filename string) string {
	if parser.FormatXLSX == detectByName(filename) {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

func detectByName(filename string) parser.Format {
	switch strings.ToLower(path.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return parser.FormatXLSX
	}
	return parser.FormatCSV
}

// PushEnvelope is the body of a Pub/Sub push request.
type PushEnvelope struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// PushHandler processes queued uploads delivered by a Pub/Sub push
// subscription. Malformed or stale messages are acked with 204; failures
// worth retrying answer 5xx.
func PushHandler(p *Pipeline, objects ObjectStore, locker *redislock.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := p.Logger

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(logger, "ingest", "PushHandler", "io.ReadAll", nil, err)
			c.Status(http.StatusNoContent)
			return
		}
		var env PushEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			config.LogError(logger, "ingest", "PushHandler", "Unmarshal body", string(body), err)
			c.Status(http.StatusNoContent)
			return
		}
		var msg Message
		if err := json.Unmarshal(env.Message.Data, &msg); err != nil {
			config.LogError(logger, "ingest", "PushHandler", "Unmarshal pubsub message", string(env.Message.Data), err)
			c.Status(http.StatusNoContent)
			return
		}
		if msg.JobID == "" || msg.Object == "" {
			config.LogError(logger, "ingest", "PushHandler", "Invalid pubsub message (missing required fields)", msg, errors.New("job_id/object required"))
			c.Status(http.StatusNoContent)
			return
		}

		fields := logrus.Fields{
			"field":      "ingest.PushHandler",
			"upload_id":  msg.JobID,
			"message_id": env.Message.ID,
		}
		ctx := c.Request.Context()

		job, err := p.Jobs.Get(ctx, msg.JobID)
		if errors.Is(err, store.ErrRecordNotFound) {
			logger.WithFields(fields).Warn("upload job not found; dropping message")
			c.Status(http.StatusNoContent)
			return
		}
		if err != nil {
			config.LogError(logger, "ingest", "PushHandler", "load upload job", msg.JobID, err)
			c.Status(http.StatusInternalServerError)
			return
		}
		if job.Status.Terminal() {
			c.Status(http.StatusNoContent)
			return
		}

		// The lock keeps duplicate deliveries from running the same job
		// concurrently. Without Redis the job still runs.
		var lock *redislock.Lock
		if locker == nil {
			logger.WithFields(fields).Warn("redis lock not ready; proceeding without redis lock")
		} else {
			lock, err = locker.Obtain(ctx, "lock:upload:"+msg.JobID, 10*time.Minute, nil)
			if errors.Is(err, redislock.ErrNotObtained) {
				logger.WithFields(fields).Warn("upload already being processed; asking for redelivery")
				c.Status(http.StatusServiceUnavailable)
				return
			} else if err != nil {
				logger.WithFields(fields).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
				lock = nil
			}
		}
		defer func() {
			if lock == nil {
				return
			}
			if releaseErr := lock.Release(context.WithoutCancel(ctx)); releaseErr != nil {
				logger.WithFields(fields).Warn("failed to release redis lock: " + releaseErr.Error())
			}
		}()

		data, err := objects.Get(ctx, msg.Object)
		if err != nil {
			config.LogError(logger, "ingest", "PushHandler", "download upload", msg.Object, err)
			if errors.Is(err, utils.ErrorObjectNotFound) {
				p.Abort(ctx, job, "source file missing: "+msg.Object)
				c.Status(http.StatusNoContent)
				return
			}
			c.Status(http.StatusInternalServerError)
			return
		}

		correlationID := msg.CorrelationID
		if correlationID == "" {
			correlationID = env.Message.ID
		}
		ctx = utils.SetCorrelationIdInContext(ctx, correlationID)
		ctx = utils.SetUsernameInContext(ctx, msg.UploadedBy)
		ctx = utils.SetUploadIdInContext(ctx, msg.JobID)

		done, err := p.Run(ctx, Input{
			JobID:        msg.JobID,
			Filename:     msg.Filename,
			Data:         data,
			UploadedBy:   msg.UploadedBy,
			SourceObject: msg.Object,
		})
		// the source file is kept while a retry could still need it
		if done.Status.Terminal() {
			if derr := objects.Delete(context.WithoutCancel(ctx), msg.Object); derr != nil {
				logger.WithFields(fields).Warn("failed to delete processed upload: " + derr.Error())
			}
		}
		var headerErr *parser.HeaderError
		if err != nil && !errors.As(err, &headerErr) {
			logger.WithFields(fields).Error("upload processing failed: " + err.Error())
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
