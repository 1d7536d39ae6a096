package controllers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/wabaledger/api/responses"
	"github.com/angelmondragon/wabaledger/api/validators"
	"github.com/angelmondragon/wabaledger/internal/ledger"
	pkgerrors "github.com/angelmondragon/wabaledger/pkg/errors"
	"github.com/angelmondragon/wabaledger/pkg/logger"
)

// SendResponseIngester records the provider's synchronous answer to a send.
type SendResponseIngester interface {
	IngestFromSendResponse(ctx context.Context, businessID, messageID uuid.UUID, provider string, raw []byte) ledger.IngestResult
}

type sendResponseRequest struct {
	BusinessID string          `json:"business_id" validate:"required,uuid"`
	MessageID  string          `json:"message_id" validate:"required,uuid"`
	Provider   string          `json:"provider" validate:"required,max=64"`
	Response   json.RawMessage `json:"response" validate:"required"`
}

// SendResponses accepts send-path callbacks from the messaging engine.
func SendResponses(svc SendResponseIngester, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}

		var req sendResponseRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		businessID, _ := uuid.Parse(req.BusinessID)
		messageID, _ := uuid.Parse(req.MessageID)
		if logg != nil {
			ctx = logg.WithBusinessID(ctx, businessID.String())
			ctx = logg.WithProvider(ctx, req.Provider)
		}

		res := svc.IngestFromSendResponse(context.WithoutCancel(ctx), businessID, messageID, req.Provider, req.Response)
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]any{
			"status":     "accepted",
			"written":    res.Written,
			"duplicates": res.Duplicates,
			"skipped":    res.Skipped,
		})
	}
}
