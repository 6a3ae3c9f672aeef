package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Endpoint is one registered webhook destination for a workspace.
type Endpoint struct {
	WorkspaceID string
	URL         string
	Secret      string
}

// event is the delivered body: the same shape the audit trail records.
type event struct {
	EventType   string         `json:"event_type"`
	WorkspaceID string         `json:"workspace_id"`
	Payload     map[string]any `json:"payload"`
}

const signatureHeader = "X-Treasury-Signature"

// Dispatcher delivers signed events to registered endpoints. Delivery is
// fire-and-forget: it runs on its own goroutine with bounded retries and a
// per-endpoint circuit breaker, and a failing endpoint never affects the
// operation that emitted the event.
type Dispatcher struct {
	endpoints map[string][]*target
	client    *http.Client
	log       *zap.Logger
	attempts  int
	backoff   time.Duration
	wg        sync.WaitGroup
}

type target struct {
	Endpoint
	breaker *gobreaker.CircuitBreaker
}

func NewDispatcher(endpoints []Endpoint, log *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		endpoints: make(map[string][]*target),
		client:    &http.Client{Timeout: 10 * time.Second},
		log:       log,
		attempts:  3,
		backoff:   500 * time.Millisecond,
	}
	for _, ep := range endpoints {
		d.endpoints[ep.WorkspaceID] = append(d.endpoints[ep.WorkspaceID], &target{
			Endpoint: ep,
			breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:    ep.URL,
				Timeout: 30 * time.Second,
			}),
		})
	}
	return d
}

// Dispatch queues the event for every endpoint registered to the
// workspace. Returns immediately.
func (d *Dispatcher) Dispatch(eventType, workspaceID string, payload map[string]any) {
	targets := d.endpoints[workspaceID]
	if len(targets) == 0 {
		return
	}

	body, err := json.Marshal(event{EventType: eventType, WorkspaceID: workspaceID, Payload: payload})
	if err != nil {
		d.log.Warn("webhook payload not serializable",
			zap.String("event_type", eventType), zap.Error(err))
		return
	}

	for _, t := range targets {
		d.wg.Add(1)
		go func(t *target) {
			defer d.wg.Done()
			d.deliver(t, eventType, body)
		}(t)
	}
}

func (d *Dispatcher) deliver(t *target, eventType string, body []byte) {
	var lastErr error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		_, err := t.breaker.Execute(func() (any, error) {
			return nil, d.post(t, body)
		})
		if err == nil {
			return
		}
		lastErr = err
		if err == gobreaker.ErrOpenState {
			break
		}
		if attempt < d.attempts {
			time.Sleep(d.backoff * time.Duration(1<<(attempt-1)))
		}
	}
	d.log.Warn("webhook delivery failed",
		zap.String("event_type", eventType),
		zap.String("url", t.URL),
		zap.Error(lastErr),
	)
}

func (d *Dispatcher) post(t *target, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, t.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeader, "sha256="+Sign(t.Secret, body))

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Wait blocks until in-flight deliveries finish. Used on shutdown and in
// tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
