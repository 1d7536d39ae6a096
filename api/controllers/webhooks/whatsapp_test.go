package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/angelmondragon/wabaledger/internal/failedwebhooks"
	"github.com/angelmondragon/wabaledger/internal/ingress"
	"github.com/angelmondragon/wabaledger/pkg/config"
	"github.com/angelmondragon/wabaledger/pkg/metrics"
)

const acceptedBody = `{"data":{"status":"accepted"}}`

type failedEntry struct {
	reason  string
	payload string
}

type fakeFailedLog struct {
	mu      sync.Mutex
	entries []failedEntry
}

func (f *fakeFailedLog) Record(ctx context.Context, provider, reason string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, failedEntry{reason: reason, payload: string(payload)})
	return nil
}

func postWebhook(handler http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/whatsapp", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestWhatsAppWebhookEnqueuesAndAcknowledges(t *testing.T) {
	queue := ingress.NewQueue(4, nil)
	failed := &fakeFailedLog{}
	handler := WhatsAppWebhook(queue, failed, config.WhatsAppConfig{}, nil, nil)

	body := `{"object":"whatsapp_business_account","entry":[]}`
	rec := postWebhook(handler, body, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != acceptedBody {
		t.Fatalf("unexpected body %s", got)
	}
	if queue.Depth() != 1 {
		t.Fatalf("expected one queued envelope, got %d", queue.Depth())
	}
	env, err := queue.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if string(env.Body) != body {
		t.Fatalf("body not preserved: %s", env.Body)
	}
	if env.ID == "" || env.ReceivedAt.IsZero() {
		t.Fatalf("envelope not stamped: %+v", env)
	}
	if len(failed.entries) != 0 {
		t.Fatalf("unexpected failed log entries %+v", failed.entries)
	}
}

func TestWhatsAppWebhookQueueFullStillAcknowledges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewIngressMetrics(reg)
	queue := ingress.NewQueue(1, m)
	failed := &fakeFailedLog{}
	handler := WhatsAppWebhook(queue, failed, config.WhatsAppConfig{}, m, nil)

	postWebhook(handler, `{"entry":[{"id":"1"}]}`, nil)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- postWebhook(handler, `{"entry":[{"id":"2"}]}`, nil) }()

	var rec *httptest.ResponseRecorder
	select {
	case rec = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("receiver blocked on a full queue")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on overflow, got %d", rec.Code)
	}
	if len(failed.entries) != 1 || failed.entries[0].reason != failedwebhooks.ReasonQueueFull {
		t.Fatalf("expected queue_full capture, got %+v", failed.entries)
	}
	if failed.entries[0].payload != `{"entry":[{"id":"2"}]}` {
		t.Fatalf("raw body not captured: %s", failed.entries[0].payload)
	}
	if queue.Depth() != 1 {
		t.Fatalf("expected depth 1, got %d", queue.Depth())
	}
	expected := `
# HELP wabaledger_ingress_rejected_total Webhook deliveries acknowledged but not enqueued, by reason.
# TYPE wabaledger_ingress_rejected_total counter
wabaledger_ingress_rejected_total{reason="queue_full"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "wabaledger_ingress_rejected_total"); err != nil {
		t.Fatalf("rejection counter: %v", err)
	}
}

func TestWhatsAppWebhookSignature(t *testing.T) {
	cfg := config.WhatsAppConfig{AppSecret: "s3cret"}
	body := `{"entry":[]}`

	cases := []struct {
		name      string
		header    string
		wantQueue int
	}{
		{name: "valid", header: sign("s3cret", body), wantQueue: 1},
		{name: "wrong secret", header: sign("other", body), wantQueue: 0},
		{name: "missing", header: "", wantQueue: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			queue := ingress.NewQueue(4, nil)
			failed := &fakeFailedLog{}
			handler := WhatsAppWebhook(queue, failed, cfg, nil, nil)

			rec := postWebhook(handler, body, map[string]string{signatureHeader: tc.header})

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			if queue.Depth() != tc.wantQueue {
				t.Fatalf("expected depth %d, got %d", tc.wantQueue, queue.Depth())
			}
			if tc.wantQueue == 0 {
				if len(failed.entries) != 1 || failed.entries[0].reason != failedwebhooks.ReasonInvalidSignature {
					t.Fatalf("expected invalid_signature capture, got %+v", failed.entries)
				}
			}
		})
	}
}

func TestWhatsAppVerify(t *testing.T) {
	handler := WhatsAppVerify(config.WhatsAppConfig{VerifyToken: "tok"}, nil)

	cases := []struct {
		name  string
		query string
		want  int
		body  string
	}{
		{name: "match", query: "hub.mode=subscribe&hub.verify_token=tok&hub.challenge=1158201444", want: http.StatusOK, body: "1158201444"},
		{name: "wrong token", query: "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=1", want: http.StatusForbidden},
		{name: "wrong mode", query: "hub.mode=unsubscribe&hub.verify_token=tok&hub.challenge=1", want: http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/webhooks/whatsapp?"+tc.query, nil))
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
			if tc.body != "" && rec.Body.String() != tc.body {
				t.Fatalf("expected challenge echo, got %q", rec.Body.String())
			}
		})
	}
}

func TestWhatsAppVerifyRejectsWhenUnconfigured(t *testing.T) {
	rec := httptest.NewRecorder()
	WhatsAppVerify(config.WhatsAppConfig{}, nil).ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/api/v1/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=&hub.challenge=1", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestWhatsAppWebhookWithoutQueueStillAcknowledges(t *testing.T) {
	failed := &fakeFailedLog{}
	handler := WhatsAppWebhook(nil, failed, config.WhatsAppConfig{}, nil, nil)

	body := `{"object":"whatsapp_business_account","entry":[]}`
	rec := postWebhook(handler, body, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != acceptedBody {
		t.Fatalf("unexpected body %s", got)
	}
	if len(failed.entries) != 1 {
		t.Fatalf("expected one failed log entry, got %d", len(failed.entries))
	}
	if failed.entries[0].reason != failedwebhooks.ReasonQueueUnavailable || failed.entries[0].payload != body {
		t.Fatalf("unexpected capture %+v", failed.entries[0])
	}
}
