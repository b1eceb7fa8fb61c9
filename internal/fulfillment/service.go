// Package fulfillment is the operator's view onto the request store: find
// outstanding requests, claim them and record diagram code.
package fulfillment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kre8/diagram-relay/internal/logging"
	"github.com/kre8/diagram-relay/internal/metrics"
	"github.com/kre8/diagram-relay/internal/model"
	"github.com/kre8/diagram-relay/internal/notify"
	"github.com/kre8/diagram-relay/internal/repository"
)

// Service wraps the repository with input validation and change-feed
// publishing.
type Service struct {
	repo      *repository.RequestRepository
	publisher notify.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher announces submitted responses on a change feed.
func WithPublisher(p notify.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics purges are counted on.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates a new fulfillment service.
func NewService(repo *repository.RequestRepository, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		publisher: notify.Nop{},
		logger:    logging.NewNop(),
		metrics:   metrics.NewUnregistered(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListPending returns requests awaiting fulfillment, oldest first.
func (s *Service) ListPending(ctx context.Context) ([]*model.Request, error) {
	return s.repo.ListPending(ctx)
}

// LatestPending returns the newest pending request, or nil if there is none.
func (s *Service) LatestPending(ctx context.Context) (*model.Request, error) {
	return s.repo.LatestPending(ctx)
}

// GetRequest returns a request in any state.
func (s *Service) GetRequest(ctx context.Context, id int64) (*model.Request, error) {
	return s.repo.GetByID(ctx, id)
}

// GetOutstanding returns a request that still needs an answer.
func (s *Service) GetOutstanding(ctx context.Context, id int64) (*model.Request, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status.IsTerminal() {
		return nil, fmt.Errorf("request %d: %w", id, model.ErrRequestCompleted)
	}
	return req, nil
}

// Claim marks a pending request as being worked on.
func (s *Service) Claim(ctx context.Context, id int64) (*model.Request, error) {
	if err := s.repo.MarkProcessing(ctx, id); err != nil {
		return nil, err
	}
	s.logger.Info("request claimed", "request", id)
	return s.repo.GetByID(ctx, id)
}

// Submit records diagram code for a request and completes it. Publishing to
// the change feed is best effort; watchers fall back to polling.
func (s *Service) Submit(ctx context.Context, id int64, code string) (*model.Response, error) {
	if strings.TrimSpace(code) == "" {
		return nil, model.ErrCodeRequired
	}

	resp, err := s.repo.AddResponse(ctx, id, code)
	if err != nil {
		return nil, err
	}
	s.logger.Info("response submitted", "request", id, "response", resp.ID, "bytes", len(code))

	if err := s.publisher.Publish(ctx, id); err != nil {
		s.logger.Warn("failed to publish response signal", "request", id, "error", err)
	}
	return resp, nil
}

// LatestResponse returns the newest response for a request, or nil if it has
// not been answered.
func (s *Service) LatestResponse(ctx context.Context, id int64) (*model.Response, error) {
	exists, err := s.repo.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, model.ErrRequestNotFound
	}
	return s.repo.GetLatestResponse(ctx, id)
}

// Purge deletes requests older than days along with their responses.
func (s *Service) Purge(ctx context.Context, days int) (model.PurgeResult, error) {
	result, err := s.repo.PurgeOlderThan(ctx, days)
	if err != nil {
		return result, err
	}
	s.metrics.PurgedRequests.Add(float64(result.Requests))
	s.logger.Info("purged old requests", "days", days, "requests", result.Requests, "responses", result.Responses)
	return result, nil
}

// Stats holds request counts by status.
type Stats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Total      int `json:"total"`
}

// Stats returns request counts by status.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	st := &Stats{
		Pending:    counts[model.RequestStatusPending],
		Processing: counts[model.RequestStatusProcessing],
		Completed:  counts[model.RequestStatusCompleted],
	}
	st.Total = st.Pending + st.Processing + st.Completed
	return st, nil
}
