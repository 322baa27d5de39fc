package payments_http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/djamrezki/instant-payment-service/internal/app/transfers"
	"github.com/djamrezki/instant-payment-service/internal/domain"
)

const idempotencyKeyHeader = "Idempotency-Key"

type PaymentHandler struct {
	service transfers.TransferService
	logger  *zap.Logger
}

func NewPaymentHandler(s transfers.TransferService, l *zap.Logger) *PaymentHandler {
	return &PaymentHandler{service: s, logger: l}
}

type SendPaymentRequest struct {
	DebtorIBAN   string           `json:"debtor_iban"`
	CreditorIBAN string           `json:"creditor_iban"`
	Currency     string           `json:"currency"`
	Amount       *decimal.Decimal `json:"amount"`
	Memo         string           `json:"memo"`
}

type PaymentResponse struct {
	PaymentID *uuid.UUID `json:"payment_id"`
	Status    string     `json:"status"`
	Reason    string     `json:"reason,omitempty"`
	Message   string     `json:"message"`
}

type PaymentDetailsResponse struct {
	ID             uuid.UUID       `json:"id"`
	IdempotencyKey string          `json:"idempotency_key"`
	DebtorIBAN     string          `json:"debtor_iban"`
	CreditorIBAN   string          `json:"creditor_iban"`
	Currency       string          `json:"currency"`
	Amount         decimal.Decimal `json:"amount"`
	Memo           string          `json:"memo,omitempty"`
	Status         string          `json:"status"`
	FailureReason  string          `json:"failure_reason,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

type LedgerEntryResponse struct {
	ID           uuid.UUID       `json:"id"`
	AccountID    uuid.UUID       `json:"account_id"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	CreatedAt    time.Time       `json:"created_at"`
}

type AccountResponse struct {
	ID        uuid.UUID       `json:"id"`
	IBAN      string          `json:"iban"`
	Balance   decimal.Decimal `json:"balance"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (h *PaymentHandler) SendPaymentHandler(w http.ResponseWriter, r *http.Request) {
	idempotencyKey := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	if idempotencyKey == "" {
		h.problem(w, r, http.StatusBadRequest, typeBadRequest, "Missing header",
			"Required header 'Idempotency-Key' is not present.", map[string]any{"header": idempotencyKeyHeader})
		return
	}
	if utf8.RuneCountInString(idempotencyKey) > transfers.MaxIdempotencyKeyLength {
		h.problem(w, r, http.StatusBadRequest, typeBadRequest, "Invalid header",
			"Idempotency-Key must be at most 255 characters.", map[string]any{"header": idempotencyKeyHeader})
		return
	}

	var req SendPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Malformed payment request body", zap.String("idempotency_key", idempotencyKey), zap.Error(err))
		h.problem(w, r, http.StatusBadRequest, typeBadRequest, "Malformed JSON", "Request body could not be parsed.", nil)
		return
	}
	req.DebtorIBAN = domain.NormalizeIBAN(req.DebtorIBAN)
	req.CreditorIBAN = domain.NormalizeIBAN(req.CreditorIBAN)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))

	if fields := req.validate(); len(fields) > 0 {
		h.problem(w, r, http.StatusBadRequest, typeValidation, "Validation failed",
			"Request body contains invalid fields.", map[string]any{"fields": fields})
		return
	}

	result, err := h.service.Send(r.Context(), transfers.SendCommand{
		IdempotencyKey: idempotencyKey,
		DebtorIBAN:     req.DebtorIBAN,
		CreditorIBAN:   req.CreditorIBAN,
		Currency:       req.Currency,
		Amount:         *req.Amount,
		Memo:           req.Memo,
	})
	if err != nil {
		var rejection *domain.RejectionError
		switch {
		case errors.Is(err, domain.ErrAccountNotFound):
			h.problem(w, r, http.StatusNotFound, typeNotFound, "Account not found", result.Message, nil)
		case errors.As(err, &rejection):
			h.writeJSON(w, http.StatusUnprocessableEntity, toPaymentResponse(result))
		case errors.Is(err, domain.ErrInvalidCommand):
			h.problem(w, r, http.StatusBadRequest, typeValidation, "Validation failed", err.Error(), nil)
		default:
			h.logger.Error("Failed to send payment", zap.String("idempotency_key", idempotencyKey), zap.Error(err))
			h.internalError(w, r)
		}
		return
	}

	status := http.StatusUnprocessableEntity
	switch result.Status {
	case domain.PaymentStatusCompleted:
		status = http.StatusCreated
		if result.Replayed {
			status = http.StatusOK
		}
	case domain.PaymentStatusCreated:
		status = http.StatusAccepted
	}
	h.writeJSON(w, status, toPaymentResponse(result))
}

func (h *PaymentHandler) GetPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.paymentID(w, r)
	if !ok {
		return
	}

	payment, err := h.service.GetPayment(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			h.problem(w, r, http.StatusNotFound, typeNotFound, "Payment not found", "Payment "+id.String()+" does not exist.", nil)
			return
		}
		h.logger.Error("Failed to get payment", zap.String("payment_id", id.String()), zap.Error(err))
		h.internalError(w, r)
		return
	}

	h.writeJSON(w, http.StatusOK, PaymentDetailsResponse{
		ID:             payment.ID,
		IdempotencyKey: payment.IdempotencyKey,
		DebtorIBAN:     payment.DebtorIBAN,
		CreditorIBAN:   payment.CreditorIBAN,
		Currency:       payment.Currency,
		Amount:         payment.Amount,
		Memo:           payment.Memo,
		Status:         string(payment.Status),
		FailureReason:  string(payment.FailureReason),
		CreatedAt:      payment.CreatedAt,
		CompletedAt:    payment.CompletedAt,
	})
}

func (h *PaymentHandler) GetPaymentEntriesHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.paymentID(w, r)
	if !ok {
		return
	}

	entries, err := h.service.LedgerEntries(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			h.problem(w, r, http.StatusNotFound, typeNotFound, "Payment not found", "Payment "+id.String()+" does not exist.", nil)
			return
		}
		h.logger.Error("Failed to list ledger entries", zap.String("payment_id", id.String()), zap.Error(err))
		h.internalError(w, r)
		return
	}

	resp := make([]LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, LedgerEntryResponse{
			ID:           e.ID,
			AccountID:    e.AccountID,
			Amount:       e.Amount,
			BalanceAfter: e.BalanceAfter,
			CreatedAt:    e.CreatedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *PaymentHandler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	iban := domain.NormalizeIBAN(chi.URLParam(r, "iban"))
	if !domain.ValidIBAN(iban) {
		h.problem(w, r, http.StatusBadRequest, typeValidation, "Constraint violation",
			"Request parameters are invalid.", map[string]any{"violations": map[string]string{"iban": "must be a valid IBAN"}})
		return
	}

	account, err := h.service.GetAccount(r.Context(), iban)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			h.problem(w, r, http.StatusNotFound, typeNotFound, "Account not found", "Account not found: "+iban, nil)
			return
		}
		h.logger.Error("Failed to get account", zap.String("iban", iban), zap.Error(err))
		h.internalError(w, r)
		return
	}

	h.writeJSON(w, http.StatusOK, AccountResponse{
		ID:        account.ID,
		IBAN:      account.IBAN,
		Balance:   account.Balance,
		Version:   account.Version,
		UpdatedAt: account.UpdatedAt,
	})
}

func (h *PaymentHandler) paymentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		h.problem(w, r, http.StatusBadRequest, typeBadRequest, "Parameter type mismatch",
			"A request parameter has the wrong type.", map[string]any{"parameter": "id", "requiredType": "UUID", "value": raw})
		return uuid.Nil, false
	}
	return id, true
}

func (req SendPaymentRequest) validate() map[string]string {
	fields := make(map[string]string)
	if req.DebtorIBAN == "" {
		fields["debtor_iban"] = "must not be blank"
	} else if !domain.ValidIBAN(req.DebtorIBAN) {
		fields["debtor_iban"] = "must be a valid IBAN"
	}
	if req.CreditorIBAN == "" {
		fields["creditor_iban"] = "must not be blank"
	} else if !domain.ValidIBAN(req.CreditorIBAN) {
		fields["creditor_iban"] = "must be a valid IBAN"
	}
	if !transfers.IsCurrencyCode(req.Currency) {
		fields["currency"] = "must be a 3-letter ISO 4217 code"
	}
	if req.Amount == nil {
		fields["amount"] = "must not be null"
	} else if !req.Amount.Equal(req.Amount.Truncate(4)) {
		fields["amount"] = "must have at most 4 fractional digits"
	}
	if utf8.RuneCountInString(req.Memo) > transfers.MaxMemoLength {
		fields["memo"] = "size must be between 0 and 140"
	}
	return fields
}

func toPaymentResponse(result transfers.Result) PaymentResponse {
	return PaymentResponse{
		PaymentID: result.PaymentID,
		Status:    string(result.Status),
		Reason:    string(result.Reason),
		Message:   result.Message,
	}
}

func (h *PaymentHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to write JSON response", zap.Error(err))
	}
}

func requestID(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return r.Header.Get(middleware.RequestIDHeader)
}
