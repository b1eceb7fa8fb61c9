// Package relay turns inbound session frames into durable requests and pushes
// each request's eventual answer back to the session that asked for it.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kre8/diagram-relay/internal/logging"
	"github.com/kre8/diagram-relay/internal/metrics"
	"github.com/kre8/diagram-relay/internal/model"
	"github.com/kre8/diagram-relay/internal/notify"
	"github.com/kre8/diagram-relay/internal/ws"
	"golang.org/x/sync/semaphore"
)

// Store is the part of the durable store the relay needs. The relay creates
// requests and reads responses; it never changes request status.
type Store interface {
	CreateRequest(ctx context.Context, req *model.NewRequest) (int64, error)
	GetLatestResponse(ctx context.Context, id int64) (*model.Response, error)
}

// Deliverer pushes a message to one session.
type Deliverer interface {
	Deliver(client *ws.Client, msg *ws.Message) bool
}

// Config holds configuration for the relay engine.
type Config struct {
	PollInterval time.Duration
	Timeout      time.Duration
	// MaxWatchers caps concurrently running watchers. Zero means no cap.
	MaxWatchers int
}

// Engine handles inbound diagram requests and runs their watchers.
type Engine struct {
	store     Store
	deliverer Deliverer
	config    Config
	logger    *slog.Logger
	metrics   *metrics.Metrics

	subscriber notify.Subscriber
	slots      *semaphore.Weighted

	mu     sync.Mutex
	wakers map[int64][]chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics sets the engine metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithSubscriber lets watchers re-poll as soon as a response is announced.
func WithSubscriber(s notify.Subscriber) Option {
	return func(e *Engine) {
		e.subscriber = s
	}
}

// NewEngine creates a new relay engine.
func NewEngine(store Store, deliverer Deliverer, config Config, opts ...Option) *Engine {
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 300 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:     store,
		deliverer: deliverer,
		config:    config,
		logger:    logging.NewNop(),
		metrics:   metrics.NewUnregistered(),
		wakers:    make(map[int64][]chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	if config.MaxWatchers > 0 {
		e.slots = semaphore.NewWeighted(int64(config.MaxWatchers))
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start subscribes to the change feed, if one is configured. Watchers work
// without it; signals only cut the wait between polls.
func (e *Engine) Start() error {
	if e.subscriber == nil {
		return nil
	}

	signals, err := e.subscriber.Subscribe(e.ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to change feed: %w", err)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for id := range signals {
			e.wake(id)
		}
	}()
	return nil
}

// HandleMessage processes one inbound frame from a session. It persists valid
// requests and returns as soon as the watcher has been started.
func (e *Engine) HandleMessage(client *ws.Client, data []byte) {
	var in ws.InboundMessage
	if err := json.Unmarshal(data, &in); err != nil {
		e.rejectProtocol(client, fmt.Sprintf("Invalid message: %v", err))
		return
	}

	switch in.Type {
	case ws.MessageTypeGenerate, ws.MessageTypeModify:
		e.handleGenerate(client, &in)
	default:
		e.rejectProtocol(client, fmt.Sprintf("Unknown message type: %s", in.Type))
	}
}

func (e *Engine) handleGenerate(client *ws.Client, in *ws.InboundMessage) {
	req := &model.NewRequest{Message: in.Message}
	if in.Context != nil {
		req.DiagramType = in.Context.DiagramType
		req.Format = in.Context.Format
		req.CurrentCode = in.Context.CurrentCode
	}
	if err := req.Validate(); err != nil {
		e.rejectProtocol(client, err.Error())
		return
	}

	if e.slots != nil && !e.slots.TryAcquire(1) {
		e.logger.Warn("watcher limit reached", "client", client.ID(), "limit", e.config.MaxWatchers)
		e.deliverer.Deliver(client, ws.NewErrorMessage(
			fmt.Sprintf("Too many outstanding requests (limit %d), try again later", e.config.MaxWatchers)))
		return
	}

	id, err := e.store.CreateRequest(e.ctx, req)
	if err != nil {
		e.releaseSlot()
		e.logger.Error("failed to save request", "client", client.ID(), "error", err)
		e.deliverer.Deliver(client, ws.NewErrorMessage(fmt.Sprintf("Failed to save request: %v", err)))
		return
	}

	e.metrics.RequestsCreated.Inc()
	e.logger.Info("request saved",
		"request", id,
		"client", client.ID(),
		"diagram_type", req.DiagramType,
		"format", req.Format,
	)

	ack := ws.NewInfoMessage(fmt.Sprintf("Request #%d saved, awaiting fulfillment", id))
	ack.RequestID = id
	e.deliverer.Deliver(client, ack)

	e.startWatcher(client, id)
}

func (e *Engine) rejectProtocol(client *ws.Client, text string) {
	e.metrics.ProtocolErrors.Inc()
	e.logger.Debug("rejected inbound message", "client", client.ID(), "reason", text)
	e.deliverer.Deliver(client, ws.NewErrorMessage(text))
}

func (e *Engine) releaseSlot() {
	if e.slots != nil {
		e.slots.Release(1)
	}
}

// Close stops all watchers and waits for them to exit. It is meant for process
// shutdown; there is no per-request cancellation.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
}

// ActiveWatchers returns the number of watchers still waiting for an answer.
func (e *Engine) ActiveWatchers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, chans := range e.wakers {
		n += len(chans)
	}
	return n
}

func (e *Engine) addWaker(id int64) chan struct{} {
	ch := make(chan struct{}, 1)
	e.mu.Lock()
	e.wakers[id] = append(e.wakers[id], ch)
	e.mu.Unlock()
	return ch
}

func (e *Engine) removeWaker(id int64, ch chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	chans := e.wakers[id]
	for i, c := range chans {
		if c == ch {
			chans = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(chans) == 0 {
		delete(e.wakers, id)
	} else {
		e.wakers[id] = chans
	}
}

func (e *Engine) wake(id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.wakers[id] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
