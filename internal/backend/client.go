package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/ayurflow/clinic-api/internal/model"
	"github.com/ayurflow/clinic-api/pkg/circuitbreaker"
	apperrors "github.com/ayurflow/clinic-api/pkg/errors"
	"github.com/ayurflow/clinic-api/pkg/logger"
	"github.com/ayurflow/clinic-api/pkg/metrics"
)

// ErrEmptyQueue is returned by CallNext when no eligible patient is waiting.
// It is a normal outcome, not a failure.
var ErrEmptyQueue = errors.New("no patient available")

// Store is the external persistence backend. It owns durable state, row
// versioning, and the atomicity of the call-next dequeue.
type Store interface {
	CreateAppointment(ctx context.Context, apt *model.Appointment) (*model.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
	UpdateAppointment(ctx context.Context, id uuid.UUID, patch map[string]interface{}, fromVersion int64) (*model.Appointment, error)
	ListAppointments(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, int, error)
	GetDoctorAvailability(ctx context.Context, doctorID uuid.UUID, date string) (*model.DoctorAvailability, error)

	ListQueue(ctx context.Context, queueType model.QueueType) ([]*model.QueueEntry, error)
	ListQueueHistory(ctx context.Context, since time.Time) ([]*model.QueueEntry, error)
	CreateQueueEntry(ctx context.Context, entry *model.QueueEntry) (*model.QueueEntry, error)
	CallNext(ctx context.Context, queueType model.QueueType) (*model.QueueEntry, error)
}

type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
}

// Client talks to the backend REST API. Transient failures on idempotent
// calls are retried with a fixed delay up to RetryAttempts; repeated failures
// trip the circuit breaker. Creates and the call-next dequeue are issued
// exactly once.
type Client struct {
	baseURL string
	http    *http.Client
	cb      *circuitbreaker.CircuitBreaker
	retries int
	delay   time.Duration
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewClient(cfg Config, log *logger.Logger, m *metrics.Metrics) *Client {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		cb: circuitbreaker.New(circuitbreaker.Settings{
			Name:             "backend-api",
			FailureThreshold: 5,
			Cooldown:         15 * time.Second,
		}),
		retries: cfg.RetryAttempts,
		delay:   cfg.RetryDelay,
		logger:  log.WithComponent("backend"),
		metrics: m,
	}
}

// CreateAppointment is never retried: a create whose response was lost may
// still have committed, and a replay would book the patient twice. The caller
// decides whether to reissue.
func (c *Client) CreateAppointment(ctx context.Context, apt *model.Appointment) (*model.Appointment, error) {
	var out model.Appointment
	if _, err := c.once(ctx, "create_appointment", http.MethodPost, "/appointments", apt, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var out model.Appointment
	if err := c.do(ctx, "get_appointment", http.MethodGet, "/appointments/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateAppointment patches an appointment with compare-and-swap semantics:
// the backend rejects the write with 409 if the row moved past fromVersion.
func (c *Client) UpdateAppointment(ctx context.Context, id uuid.UUID, patch map[string]interface{}, fromVersion int64) (*model.Appointment, error) {
	path := fmt.Sprintf("/appointments/%s?from_version=%d", id, fromVersion)
	var out model.Appointment
	if err := c.do(ctx, "update_appointment", http.MethodPatch, path, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListAppointments(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, int, error) {
	q := url.Values{}
	if filters.PatientID != nil {
		q.Set("patient_id", filters.PatientID.String())
	}
	if filters.DoctorID != nil {
		q.Set("doctor_id", filters.DoctorID.String())
	}
	if filters.Status != "" {
		q.Set("status", string(filters.Status))
	}
	if filters.DateFrom != "" {
		q.Set("date_from", filters.DateFrom)
	}
	if filters.DateTo != "" {
		q.Set("date_to", filters.DateTo)
	}
	if filters.Page > 0 {
		q.Set("page", fmt.Sprint(filters.Page))
		q.Set("page_size", fmt.Sprint(filters.PageSize))
	}

	var out struct {
		Appointments []*model.Appointment `json:"appointments"`
		Total        int                  `json:"total"`
	}
	if err := c.do(ctx, "list_appointments", http.MethodGet, "/appointments?"+q.Encode(), nil, &out); err != nil {
		return nil, 0, err
	}
	return out.Appointments, out.Total, nil
}

func (c *Client) GetDoctorAvailability(ctx context.Context, doctorID uuid.UUID, date string) (*model.DoctorAvailability, error) {
	path := fmt.Sprintf("/doctors/%s/availability?date=%s", doctorID, url.QueryEscape(date))
	var out model.DoctorAvailability
	if err := c.do(ctx, "get_availability", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListQueue(ctx context.Context, queueType model.QueueType) ([]*model.QueueEntry, error) {
	var out []*model.QueueEntry
	if err := c.do(ctx, "list_queue", http.MethodGet, "/queue/"+string(queueType), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListQueueHistory(ctx context.Context, since time.Time) ([]*model.QueueEntry, error) {
	path := "/queue/history?since=" + url.QueryEscape(since.Format(time.RFC3339))
	var out []*model.QueueEntry
	if err := c.do(ctx, "list_queue_history", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateQueueEntry is never retried for the same reason as CreateAppointment:
// a lost response does not mean the entry was not enqueued.
func (c *Client) CreateQueueEntry(ctx context.Context, entry *model.QueueEntry) (*model.QueueEntry, error) {
	var out model.QueueEntry
	if _, err := c.once(ctx, "create_queue_entry", http.MethodPost, "/queue", entry, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CallNext asks the backend for its atomic dequeue. A 204 means the queue has
// no eligible entry. Call-next is never retried here: a timed-out dequeue may
// have landed, so the caller must reissue deliberately.
func (c *Client) CallNext(ctx context.Context, queueType model.QueueType) (*model.QueueEntry, error) {
	var out model.QueueEntry
	status, err := c.once(ctx, "call_next", http.MethodPost, "/queue/"+string(queueType)+"/next", nil, &out)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, ErrEmptyQueue
	}
	return &out, nil
}

// do retries transient failures. Only idempotent operations may go through
// it: reads, and the CAS update whose from_version turns a replay into a 409.
func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return apperrors.NewNetwork(ctx.Err())
			case <-time.After(c.delay):
			}
		}
		_, err := c.once(ctx, op, method, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !apperrors.From(err).Retryable() {
			return err
		}
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, op, method, path string, body, out interface{}) (int, error) {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	var resp *http.Response
	cbErr := c.cb.Execute(func() error {
		var doErr error
		resp, doErr = c.http.Do(req)
		return doErr
	})
	c.metrics.BackendLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if cbErr != nil {
		c.metrics.BackendOperations.WithLabelValues(op, "error").Inc()
		return 0, apperrors.NewNetwork(cbErr)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		c.metrics.BackendOperations.WithLabelValues(op, "success").Inc()
		return resp.StatusCode, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.metrics.BackendOperations.WithLabelValues(op, "success").Inc()
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return resp.StatusCode, nil
	case resp.StatusCode == http.StatusNotFound:
		c.metrics.BackendOperations.WithLabelValues(op, "not_found").Inc()
		return resp.StatusCode, apperrors.NewNotFound(apperrors.CodeAppointmentNotFound, "resource")
	case resp.StatusCode == http.StatusConflict:
		c.metrics.BackendOperations.WithLabelValues(op, "conflict").Inc()
		return resp.StatusCode, apperrors.NewConflict("resource", readAPIError(resp.Body))
	case resp.StatusCode >= 500:
		c.metrics.BackendOperations.WithLabelValues(op, "error").Inc()
		return resp.StatusCode, apperrors.NewNetwork(fmt.Errorf("backend returned %d", resp.StatusCode))
	default:
		c.metrics.BackendOperations.WithLabelValues(op, "error").Inc()
		return resp.StatusCode, fmt.Errorf("backend returned %d: %w", resp.StatusCode, readAPIError(resp.Body))
	}
}

func readAPIError(r io.Reader) error {
	var apiErr struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(r).Decode(&apiErr); err != nil || apiErr.Error == "" {
		return errors.New("no error detail")
	}
	return errors.New(apiErr.Error)
}

var _ Store = (*Client)(nil)
