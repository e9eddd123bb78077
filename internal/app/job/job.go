package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"job-queue-worker/internal/app/callback"
	"job-queue-worker/internal/app/worker"
	"job-queue-worker/internal/pkg/cache"
	"job-queue-worker/internal/pkg/logger"
	"job-queue-worker/internal/pkg/utils"
)

const (
	TypeCallback = "callback"
	TypeStop     = "stop"
)

// Message is the JSON document carried by every job body.
type Message struct {
	ID      string          `json:"id" validate:"required"`
	Type    string          `json:"type" validate:"required,oneof=callback stop"`
	URL     string          `json:"url,omitempty" validate:"omitempty,url"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Poster delivers callbacks. *callback.CallbackClient implements it.
type Poster interface {
	Post(ctx context.Context, url string, body *callback.RequestBody) error
}

// Handler turns job bodies into callbacks.
type Handler struct {
	Callback Poster
	// Records remembers delivered job ids for RecordTTL so a redelivered
	// message does not trigger a second callback. Nil disables the check.
	Records   cache.Client
	RecordTTL time.Duration

	validate *validator.Validate
}

func NewHandler(poster Poster) *Handler {
	return &Handler{
		Callback: poster,
		validate: validator.New(),
	}
}

// Parse decodes and validates a job body.
func (h *Handler) Parse(body string) (*Message, error) {
	var msg Message
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job message: %w", err)
	}
	if err := h.validate.Struct(msg); err != nil {
		return nil, fmt.Errorf("job message validation failed: %w", err)
	}
	if msg.Type == TypeCallback && msg.URL == "" {
		return nil, errors.New("job message validation failed: url is required for callback jobs")
	}
	return &msg, nil
}

// Manage delivers the callback of a job. Undecodable bodies and rejected
// callbacks are reported as failed jobs.
func (h *Handler) Manage(ctx context.Context, body string) error {
	msg, err := h.Parse(body)
	if err != nil {
		return fmt.Errorf("%w: %s", worker.ErrJobFailed, err)
	}

	ctx = logger.WithSpanID(ctx, msg.ID)

	if h.delivered(ctx, msg.ID) {
		logger.WarnCtx(ctx, "job %s has been executed, skipping", msg.ID)
		return nil
	}

	logger.InfoCtx(ctx, "delivering callback for job %s", msg.ID)
	err = h.Callback.Post(ctx, msg.URL, &callback.RequestBody{
		ID:      msg.ID,
		Payload: msg.Payload,
	})
	if errors.Is(err, callback.ErrRejected) {
		return fmt.Errorf("%w: %s", worker.ErrJobFailed, err)
	}
	if err != nil {
		return err
	}

	h.record(ctx, msg.ID)
	return nil
}

func (h *Handler) delivered(ctx context.Context, id string) bool {
	if h.Records == nil {
		return false
	}
	_, err := h.Records.Get(ctx, id)
	if err != nil && !errors.Is(err, cache.ErrNotFound) {
		logger.WarnCtx(ctx, "unable to check job record %s: %v", id, err)
	}
	return err == nil
}

func (h *Handler) record(ctx context.Context, id string) {
	if h.Records == nil {
		return
	}
	_, err := utils.Retry(ctx, 2, time.Second, func() (struct{}, error) {
		return struct{}{}, h.Records.Set(ctx, id, time.Now().UTC().Format(time.RFC3339), h.RecordTTL)
	})
	if err != nil {
		logger.WarnCtx(ctx, "unable to store job record %s: %v", id, err)
	}
}

// IsStopJob reports a well-formed message of type stop.
func (h *Handler) IsStopJob(body string) bool {
	msg, err := h.Parse(body)
	return err == nil && msg.Type == TypeStop
}
