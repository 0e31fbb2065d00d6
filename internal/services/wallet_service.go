package services

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"
)

// WalletService is the HTTP surface over the transfer engine and the
// ledger. Request bodies are size-capped and strictly decoded; every
// failure goes out as the shared error envelope.
type WalletService struct {
	ledger     *LedgerService
	transfers  *TransferEngine
	validation *ValidationHelper
}

func NewWalletService(ledger *LedgerService, transfers *TransferEngine) *WalletService {
	return &WalletService{
		ledger:     ledger,
		transfers:  transfers,
		validation: NewValidationHelper(),
	}
}

func (s *WalletService) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1048576)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	if err := s.validation.ValidateStruct(dst); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return "", false
	}
	return userID, true
}

type giftRequest struct {
	RecipientID string `json:"recipientId" validate:"required"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Message     string `json:"message" validate:"max=500"`
}

// SendGift transfers a gift from the caller to another member.
// @Summary Send a gift
// @Description Transfer a gift amount to another member, net of the platform fee
// @Tags wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body giftRequest true "Gift details"
// @Success 200 {object} TransferResult
// @Failure 400 {object} ErrorResponse
// @Failure 402 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /wallet/gifts [post]
func (s *WalletService) SendGift(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req giftRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	result, err := s.transfers.SendGift(r.Context(), userID, req.RecipientID, req.Amount, req.Message)
	if err != nil {
		log.Printf("[WALLET] Gift from %s to %s failed: %v", userID, req.RecipientID, err)
		SendErrorResponse(w, err.Error(), statusForError(err), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

type unlockMessageRequest struct {
	RecipientID string `json:"recipientId" validate:"required"`
	Message     string `json:"message" validate:"required,max=2000"`
}

// UnlockMessage pays the unlock price and opens a direct message thread.
// @Summary Unlock direct messaging
// @Description Pay the fixed unlock price and send the first message to a member
// @Tags wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body unlockMessageRequest true "Recipient and first message"
// @Success 200 {object} TransferResult
// @Failure 400 {object} ErrorResponse
// @Failure 402 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /wallet/messages/unlock [post]
func (s *WalletService) UnlockMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req unlockMessageRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	result, err := s.transfers.UnlockDirectMessage(r.Context(), userID, req.RecipientID, req.Message)
	if err != nil {
		log.Printf("[WALLET] Message unlock from %s to %s failed: %v", userID, req.RecipientID, err)
		SendErrorResponse(w, err.Error(), statusForError(err), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

type withdrawalRequestBody struct {
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Provider    string `json:"provider" validate:"required"`
	Destination string `json:"destination" validate:"required"`
}

// RequestWithdrawal reserves funds for an external payout.
// @Summary Request withdrawal
// @Description Reserve a wallet amount for payout through a configured provider
// @Tags wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body withdrawalRequestBody true "Withdrawal details"
// @Success 201 {object} WithdrawalResult
// @Failure 400 {object} ErrorResponse
// @Failure 402 {object} ErrorResponse
// @Router /wallet/withdrawals [post]
func (s *WalletService) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req withdrawalRequestBody
	if !s.decodeBody(w, r, &req) {
		return
	}

	result, err := s.transfers.RequestWithdrawal(r.Context(), userID, req.Amount, req.Provider, req.Destination)
	if err != nil {
		log.Printf("[WALLET] Withdrawal request by %s failed: %v", userID, err)
		SendErrorResponse(w, err.Error(), statusForError(err), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

// GetBalance returns the caller's current wallet balance.
// @Summary Get balance
// @Description Get the caller's current wallet balance
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]any
// @Failure 404 {object} ErrorResponse
// @Router /wallet/balance [get]
func (s *WalletService) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	balance, err := s.ledger.GetBalance(r.Context(), userID)
	if err != nil {
		SendErrorResponse(w, err.Error(), statusForError(err), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"accountId": userID,
		"balance":   balance,
	})
}

// GetTransactions returns the caller's recent ledger entries.
// @Summary List transactions
// @Description Get the caller's most recent wallet transactions
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum rows to return" default(50)
// @Success 200 {array} models.WalletTransaction
// @Failure 500 {object} ErrorResponse
// @Router /wallet/transactions [get]
func (s *WalletService) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	transactions, err := s.ledger.GetTransactions(r.Context(), userID, limit)
	if err != nil {
		log.Printf("[WALLET] Transaction listing failed for %s: %v", userID, err)
		SendErrorResponse(w, "Failed to load transactions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// GetEarningsReport sums platform revenue since an optional cutoff.
// @Summary Platform earnings report
// @Description Total platform revenue recorded since the given date
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param since query string false "Cutoff date (RFC 3339)"
// @Success 200 {object} map[string]any
// @Failure 400 {object} ErrorResponse
// @Router /admin/earnings [get]
func (s *WalletService) GetEarningsReport(w http.ResponseWriter, r *http.Request) {
	since := time.Time{}
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			SendErrorResponse(w, "Invalid 'since' date, expected RFC 3339", http.StatusBadRequest, nil)
			return
		}
		since = parsed
	}

	total, err := s.ledger.TotalEarnings(r.Context(), since)
	if err != nil {
		log.Printf("[WALLET] Earnings report failed: %v", err)
		SendErrorResponse(w, "Failed to compute earnings", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"totalEarnings": total,
		"since":         since,
		"currency":      "minor_units",
	})
}
