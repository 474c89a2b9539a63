package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Delivery is one status-change notification. Receivers get at-least-once
// delivery and must order by the embedded At timestamp.
type Delivery struct {
	URL     string
	Payload Payload
}

type Payload struct {
	Event   string `json:"event"`
	ClaimID string `json:"claim_id"`
	From    string `json:"from"`
	To      string `json:"to"`
	At      string `json:"at"`
}

const (
	EventStatusChanged = "attestation.status_changed"

	deliveryTimeout = 10 * time.Second
	maxAttempts     = 5
	backoffBase     = time.Second
	backoffFactor   = 2
	jitterFraction  = 0.2
	queueDepth      = 256
)

// Dispatcher delivers webhooks on its own worker pool, separate from the
// attestation pipeline. Retries cover connection errors, 5xx, 408 and
// 429; other 4xx statuses terminate immediately; exhausted deliveries
// are dropped with an error log.
type Dispatcher struct {
	client *http.Client
	log    *logrus.Entry
	sleep  func(time.Duration)

	queue chan Delivery
	wg    sync.WaitGroup
	once  sync.Once
}

func NewDispatcher(workers int, log *logrus.Entry) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	d := &Dispatcher{
		client: &http.Client{Timeout: deliveryTimeout},
		log:    log,
		sleep:  time.Sleep,
		queue:  make(chan Delivery, queueDepth),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Enqueue never blocks the pipeline: when the queue is full the delivery
// is dropped with an error log.
func (d *Dispatcher) Enqueue(delivery Delivery) {
	select {
	case d.queue <- delivery:
	default:
		d.logger().WithField("claim_id", delivery.Payload.ClaimID).
			Error("webhook queue full, dropping delivery")
	}
}

// Close stops accepting deliveries and waits for in-flight ones.
func (d *Dispatcher) Close() {
	d.once.Do(func() { close(d.queue) })
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for delivery := range d.queue {
		d.deliver(delivery)
	}
}

func (d *Dispatcher) deliver(delivery Delivery) {
	body, err := json.Marshal(delivery.Payload)
	if err != nil {
		d.logger().WithField("claim_id", delivery.Payload.ClaimID).
			WithError(err).Error("webhook payload not serializable")
		return
	}

	delay := backoffBase
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retryable, err := d.post(delivery.URL, body)
		if err == nil {
			return
		}
		if !retryable || attempt == maxAttempts {
			d.logger().WithFields(logrus.Fields{
				"claim_id": delivery.Payload.ClaimID,
				"url":      delivery.URL,
				"attempt":  attempt,
			}).WithError(err).Error("webhook delivery abandoned")
			return
		}
		d.sleep(jitter(delay))
		delay *= backoffFactor
	}
}

func (d *Dispatcher) post(url string, body []byte) (retryable bool, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "zkpad-webhook/1.1")

	resp, err := d.client.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 500,
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests:
		return true, &statusError{resp.StatusCode}
	default:
		return false, &statusError{resp.StatusCode}
	}
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return http.StatusText(e.code)
}

func jitter(d time.Duration) time.Duration {
	spread := float64(d) * jitterFraction
	offset := (rand.Float64()*2 - 1) * spread
	return time.Duration(float64(d) + offset)
}

func (d *Dispatcher) logger() *logrus.Entry {
	if d.log != nil {
		return d.log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}
