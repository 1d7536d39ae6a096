package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/wabaledger/api/responses"
	"github.com/angelmondragon/wabaledger/internal/failedwebhooks"
	"github.com/angelmondragon/wabaledger/internal/ingress"
	"github.com/angelmondragon/wabaledger/pkg/config"
	pkgerrors "github.com/angelmondragon/wabaledger/pkg/errors"
	"github.com/angelmondragon/wabaledger/pkg/logger"
	"github.com/angelmondragon/wabaledger/pkg/metrics"
)

const (
	signatureHeader = "X-Hub-Signature-256"
	signaturePrefix = "sha256="
	maxWebhookBody  = 4 << 20
	failedLogWrite  = 5 * time.Second
)

// EnvelopeQueue accepts raw deliveries without blocking.
type EnvelopeQueue interface {
	Enqueue(env ingress.Envelope) error
}

// FailedRecorder captures deliveries that never reach the queue.
type FailedRecorder interface {
	Record(ctx context.Context, provider, reason string, payload []byte) error
}

// WhatsAppVerify answers the subscription handshake by echoing hub.challenge.
func WhatsAppVerify(cfg config.WhatsAppConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		token := q.Get("hub.verify_token")
		if q.Get("hub.mode") != "subscribe" || cfg.VerifyToken == "" ||
			!hmac.Equal([]byte(token), []byte(cfg.VerifyToken)) {
			responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeForbidden, "verification failed"))
			if logg != nil {
				logg.Warn(r.Context(), "whatsapp.verify.rejected")
			}
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, q.Get("hub.challenge"))
	}
}

// WhatsAppWebhook acknowledges every delivery with 200 and hands the raw body
// to the ingress queue. Deliveries that cannot be queued are captured in the
// failed webhook log instead.
func WhatsAppWebhook(queue EnvelopeQueue, failed FailedRecorder, cfg config.WhatsAppConfig, m *metrics.IngressMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		receivedAt := time.Now()

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			reject(ctx, failed, m, logg, failedwebhooks.ReasonUnreadableBody, body, err)
			accepted(w)
			return
		}

		if queue == nil {
			reject(ctx, failed, m, logg, failedwebhooks.ReasonQueueUnavailable, body, nil)
			accepted(w)
			return
		}

		if cfg.AppSecret != "" && !validSignature(cfg.AppSecret, r.Header.Get(signatureHeader), body) {
			reject(ctx, failed, m, logg, failedwebhooks.ReasonInvalidSignature, body, nil)
			accepted(w)
			return
		}

		if err := queue.Enqueue(ingress.NewEnvelope(body, receivedAt)); err != nil {
			if !errors.Is(err, ingress.ErrQueueFull) && logg != nil {
				logg.Error(ctx, "whatsapp.webhook.enqueue_failed", err)
			}
			reject(ctx, failed, m, logg, failedwebhooks.ReasonQueueFull, body, err)
		}
		accepted(w)
	}
}

func accepted(w http.ResponseWriter) {
	responses.WriteSuccess(w, map[string]string{"status": "accepted"})
}

func reject(ctx context.Context, failed FailedRecorder, m *metrics.IngressMetrics, logg *logger.Logger, reason string, body []byte, cause error) {
	m.IncRejected(reason)
	if logg != nil {
		fields := map[string]any{"reason": reason, "body_bytes": len(body)}
		if cause != nil {
			fields["error"] = cause.Error()
		}
		logg.Warn(logg.WithFields(ctx, fields), "whatsapp.webhook.rejected")
	}
	if failed == nil {
		return
	}
	// the request context ends with the response; the capture must outlive it
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failedLogWrite)
	defer cancel()
	if err := failed.Record(writeCtx, "", reason, body); err != nil && logg != nil {
		logg.Error(ctx, "whatsapp.webhook.failed_log_write", err)
	}
}

func validSignature(secret, header string, body []byte) bool {
	got := strings.TrimPrefix(strings.TrimSpace(header), signaturePrefix)
	if got == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(got)), []byte(want))
}
