// Package webhook delivers audit events to HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gxp-audit/gxa/pkg/logging"
	"github.com/gxp-audit/gxa/pkg/model"
	"github.com/gxp-audit/gxa/pkg/tracing"
)

// EventType names an event a hook can subscribe to.
type EventType string

const (
	EventEntityCreated     EventType = "entity.created"
	EventEntityUpdated     EventType = "entity.updated"
	EventEntityDeleted     EventType = "entity.deleted"
	EventAuditExported     EventType = "audit.exported"
	EventRollbackCompleted EventType = "rollback.completed"
	EventAll               EventType = "*"
)

// EventTypeFor maps an audit action to the event it raises.
func EventTypeFor(action model.Action) EventType {
	switch action {
	case model.ActionCreate:
		return EventEntityCreated
	case model.ActionUpdate:
		return EventEntityUpdated
	case model.ActionDelete:
		return EventEntityDeleted
	case model.ActionExport:
		return EventAuditExported
	case model.ActionRollback:
		return EventRollbackCompleted
	}
	return EventType("audit." + strings.ToLower(string(action)))
}

// Event is the JSON body posted to a hook. Snapshots and signature values
// are not included.
type Event struct {
	Event      EventType `json:"event"`
	Timestamp  string    `json:"timestamp"`
	EntryID    string    `json:"entry_id"`
	EntityType string    `json:"entity_type,omitempty"`
	EntityID   string    `json:"entity_id,omitempty"`
	Action     string    `json:"action"`
	ActorID    string    `json:"actor_id,omitempty"`
	OccurredAt string    `json:"occurred_at"`
	Note       string    `json:"note,omitempty"`
}

// EventFromEntry builds the payload for a committed audit entry.
func EventFromEntry(e *model.AuditEntry) Event {
	return Event{
		Event:      EventTypeFor(e.Action),
		EntryID:    e.ID.String(),
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Action:     string(e.Action),
		ActorID:    e.ActorID,
		OccurredAt: e.OccurredAt.UTC().Format(time.RFC3339Nano),
		Note:       e.Note,
	}
}

// HookConfig is a single webhook endpoint.
type HookConfig struct {
	URL     string        `yaml:"url" json:"url"`
	Secret  string        `yaml:"secret,omitempty" json:"secret,omitempty"`
	Events  []EventType   `yaml:"events" json:"events"`
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Enabled bool          `yaml:"enabled" json:"enabled"`
}

// Config is the webhooks section of gxa.yaml.
type Config struct {
	Hooks          []HookConfig  `yaml:"hooks,omitempty" json:"hooks,omitempty"`
	Enabled        bool          `yaml:"enabled" json:"enabled"`
	MaxRetries     int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay" json:"retry_delay"`
	AsyncQueueSize int           `yaml:"async_queue_size" json:"async_queue_size"`
}

// DefaultConfig returns the default webhook configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:        true,
		MaxRetries:     3,
		RetryDelay:     5 * time.Second,
		AsyncQueueSize: 100,
	}
}

const defaultHookTimeout = 30 * time.Second

// Client sends webhook notifications, synchronously or through a bounded
// background queue.
type Client struct {
	config *Config
	http   *http.Client
	logger *logging.Logger
	queue  chan *job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	closed sync.Once
}

type job struct {
	event Event
	hook  HookConfig
}

// NewClient creates a client and starts its worker when enabled.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	size := cfg.AsyncQueueSize
	if size <= 0 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		config: cfg,
		http:   tracing.WrapClient(&http.Client{}),
		logger: logging.WithFields(map[string]any{"component": "webhook"}),
		queue:  make(chan *job, size),
		ctx:    ctx,
		cancel: cancel,
	}
	if cfg.Enabled {
		c.once.Do(func() {
			c.wg.Add(1)
			go c.worker()
		})
	}
	return c
}

func (c *Client) worker() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			for {
				select {
				case j := <-c.queue:
					c.deliver(j)
				default:
					return
				}
			}
		case j := <-c.queue:
			c.deliver(j)
		}
	}
}

// Send delivers event to every enabled hook subscribed to its type. Async
// sends are queued and dropped with a warning when the queue is full.
func (c *Client) Send(event Event, async bool) error {
	if !c.config.Enabled {
		return nil
	}
	var hooks []HookConfig
	for _, hook := range c.config.Hooks {
		if hook.Enabled && matchesEvent(hook, event.Event) {
			hooks = append(hooks, hook)
		}
	}
	if len(hooks) == 0 {
		return nil
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	if async {
		for _, hook := range hooks {
			select {
			case c.queue <- &job{event: event, hook: hook}:
			default:
				c.logger.Warn("webhook queue full, dropping event", map[string]any{
					"event": string(event.Event),
					"url":   hook.URL,
				})
			}
		}
		return nil
	}

	var lastErr error
	for _, hook := range hooks {
		if err := c.sendSync(&job{event: event, hook: hook}); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// SendEntry queues the event for a committed audit entry.
func (c *Client) SendEntry(e *model.AuditEntry) {
	_ = c.Send(EventFromEntry(e), true)
}

func (c *Client) deliver(j *job) {
	if err := c.sendSync(j); err != nil {
		c.logger.ErrorErr("webhook delivery failed", err, map[string]any{
			"event": string(j.event.Event),
			"url":   j.hook.URL,
		})
	}
}

func (c *Client) sendSync(j *job) error {
	payload, err := json.Marshal(j.event)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-c.ctx.Done():
				return c.ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}
		lastErr = c.post(j, payload)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (c *Client) post(j *job, payload []byte) error {
	timeout := j.hook.Timeout
	if timeout <= 0 {
		timeout = defaultHookTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.hook.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "GXA-Webhook/1.0")
	req.Header.Set("X-GXA-Event", string(j.event.Event))
	if j.hook.Secret != "" {
		req.Header.Set("X-GXA-Signature", Sign(payload, j.hook.Secret))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// Sign returns the X-GXA-Signature value for payload: "sha256=" followed by
// the hex HMAC-SHA256 under secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func matchesEvent(hook HookConfig, event EventType) bool {
	for _, e := range hook.Events {
		if e == event || e == EventAll {
			return true
		}
	}
	return false
}

// Close drains the queue and stops the worker.
func (c *Client) Close() error {
	c.closed.Do(func() {
		c.cancel()
		c.wg.Wait()
	})
	return nil
}
