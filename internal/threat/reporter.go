// Package threat delivers threat reports to the governance service in the
// background. Reporting is best effort: a report that cannot be queued or
// delivered is logged and dropped, and never affects the decision that
// raised it.
package threat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/torkjacobs/tork-guardian/internal/client"
	"github.com/torkjacobs/tork-guardian/internal/redact"
)

const (
	defaultQueueSize   = 64
	defaultSendTimeout = 10 * time.Second
)

type Type string

const (
	PortHijacking Type = "port_hijacking"
	ReverseShell  Type = "reverse_shell"
	RawIPUsage    Type = "raw_ip_usage"
)

type Threat struct {
	ID        string    `json:"id"`
	SkillID   string    `json:"skill_id"`
	Type      Type      `json:"type"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// Message is the text submitted to the governance endpoint.
func (t Threat) Message() string {
	return fmt.Sprintf("[THREAT] skill=%s type=%s detail=%s", t.SkillID, t.Type, t.Detail)
}

// Governor is the subset of client.Client the reporter needs.
type Governor interface {
	Govern(ctx context.Context, content string, opts *client.Options) client.GovernResponse
}

// Reporter queues threats and submits them from a single worker goroutine.
type Reporter struct {
	governor    Governor
	queue       chan Threat
	logger      *slog.Logger
	sendTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

type Option func(*Reporter)

func WithQueueSize(n int) Option {
	return func(r *Reporter) {
		if n > 0 {
			r.queue = make(chan Threat, n)
		}
	}
}

func WithSendTimeout(d time.Duration) Option {
	return func(r *Reporter) {
		if d > 0 {
			r.sendTimeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Reporter) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewReporter starts the delivery worker. Call Close to stop it.
func NewReporter(g Governor, opts ...Option) *Reporter {
	r := &Reporter{
		governor:    g,
		queue:       make(chan Threat, defaultQueueSize),
		logger:      slog.Default(),
		sendTimeout: defaultSendTimeout,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.run()
	return r
}

// Report enqueues a threat without blocking. It returns false when the
// report was dropped.
func (r *Reporter) Report(skillID string, kind Type, detail string) bool {
	t := Threat{
		ID:        uuid.NewString(),
		SkillID:   skillID,
		Type:      kind,
		Detail:    redact.Redact(detail),
		Timestamp: time.Now().UTC(),
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.logger.Warn("threat reporter closed, dropping report", "skill", skillID, "type", kind)
		return false
	}

	select {
	case r.queue <- t:
		return true
	default:
		r.logger.Warn("threat queue full, dropping report", "skill", skillID, "type", kind)
		return false
	}
}

// Close stops accepting reports, drains the queue and waits for the worker.
func (r *Reporter) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *Reporter) run() {
	defer close(r.done)
	for t := range r.queue {
		r.send(t)
	}
}

func (r *Reporter) send(t Threat) {
	ctx, cancel := context.WithTimeout(context.Background(), r.sendTimeout)
	defer cancel()

	resp := r.governor.Govern(ctx, t.Message(), &client.Options{SkillID: t.SkillID})
	if resp.FailedOpen() {
		r.logger.Warn("threat report not delivered", "id", t.ID, "skill", t.SkillID, "type", t.Type)
		return
	}
	r.logger.Debug("threat reported", "id", t.ID, "skill", t.SkillID, "type", t.Type)
}
