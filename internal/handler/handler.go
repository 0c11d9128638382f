package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/lightlabcreation/big-pos-backend/internal/infrastructure/auth"
	"github.com/lightlabcreation/big-pos-backend/internal/ledger"
	"github.com/lightlabcreation/big-pos-backend/internal/models"
	service "github.com/lightlabcreation/big-pos-backend/internal/services"
	pkgerrors "github.com/lightlabcreation/big-pos-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

type Handler struct {
	auth    service.AuthService
	wallets service.WalletService
	orders  service.OrderService
	gas     service.GasService
	loans   service.LoanService
}

func NewHandler(
	authSvc service.AuthService,
	wallets service.WalletService,
	orders service.OrderService,
	gas service.GasService,
	loans service.LoanService,
) *Handler {
	return &Handler{auth: authSvc, wallets: wallets, orders: orders, gas: gas, loans: loans}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeServiceError maps service errors onto HTTP statuses. Anything not
// recognised is reported as a bare 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pkgerrors.ErrInsufficientFunds),
		errors.Is(err, pkgerrors.ErrInvalidAmount),
		errors.Is(err, pkgerrors.ErrInvalidInput),
		errors.Is(err, pkgerrors.ErrInvalidWalletKind),
		errors.Is(err, pkgerrors.ErrInvalidTransactionType),
		errors.Is(err, pkgerrors.ErrRepaymentExceedsOutstanding),
		errors.Is(err, pkgerrors.ErrInsufficientRewards):
		h.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, pkgerrors.ErrInvalidCredentials):
		h.writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, pkgerrors.ErrForbidden):
		h.writeError(w, http.StatusForbidden, err)
	case errors.Is(err, pkgerrors.ErrWalletResolutionFailed),
		errors.Is(err, pkgerrors.ErrWalletNotFound),
		errors.Is(err, pkgerrors.ErrTransactionNotFound),
		errors.Is(err, pkgerrors.ErrLoanNotFound),
		errors.Is(err, pkgerrors.ErrProductNotFound),
		errors.Is(err, pkgerrors.ErrOrderNotFound),
		errors.Is(err, pkgerrors.ErrProfileNotFound):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, pkgerrors.ErrRequestAlreadyProcessed),
		errors.Is(err, pkgerrors.ErrUsernameExists),
		errors.Is(err, pkgerrors.ErrInvalidLoanState),
		errors.Is(err, pkgerrors.ErrInvalidTransactionState),
		errors.Is(err, pkgerrors.ErrStorageConflict):
		h.writeError(w, http.StatusConflict, err)
	case errors.Is(err, pkgerrors.ErrStorageUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, err)
	default:
		slog.Error("unhandled service error", "error", err)
		h.writeError(w, http.StatusInternalServerError, pkgerrors.ErrInternal)
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (string, models.Role, bool) {
	userID, role, ok := auth.Identity(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("user not authenticated"))
	}
	return userID, role, ok
}

func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/login", h.Login).Methods(http.MethodPost)
}

func (h *Handler) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)

	r.HandleFunc("/wallets", h.ListWallets).Methods(http.MethodGet)
	r.HandleFunc("/wallets/transactions", h.GetTransactionHistory).Methods(http.MethodGet)
	r.HandleFunc("/wallets/topup", h.Topup).Methods(http.MethodPost)
	r.HandleFunc("/wallets/{kind}/balance", h.GetBalance).Methods(http.MethodGet)

	r.HandleFunc("/refunds", h.RequestRefund).Methods(http.MethodPost)
	r.HandleFunc("/rewards", h.GetRewards).Methods(http.MethodGet)
	r.HandleFunc("/rewards/redeem", h.RedeemRewards).Methods(http.MethodPost)

	r.HandleFunc("/orders", h.CreateOrder).Methods(http.MethodPost)
	r.HandleFunc("/orders/{id}", h.GetOrder).Methods(http.MethodGet)
	r.HandleFunc("/gas/topups", h.BuyGas).Methods(http.MethodPost)

	r.HandleFunc("/loans", h.RequestLoan).Methods(http.MethodPost)
	r.HandleFunc("/loans", h.ListLoans).Methods(http.MethodGet)
	r.HandleFunc("/loans/{id}/repay", h.RepayLoan).Methods(http.MethodPost)
	r.HandleFunc("/loans/{id}/ledger", h.GetLoanLedger).Methods(http.MethodGet)
}

// RegisterAdminRoutes expects r to already be restricted to admins.
func (h *Handler) RegisterAdminRoutes(r *mux.Router) {
	r.HandleFunc("/refunds/{id}/settle", h.SettleRefund).Methods(http.MethodPost)
	r.HandleFunc("/loans/{id}/approve", h.ApproveLoan).Methods(http.MethodPost)
	r.HandleFunc("/loans/{id}/reject", h.RejectLoan).Methods(http.MethodPost)
	r.HandleFunc("/loans/{id}/default", h.MarkDefaulted).Methods(http.MethodPost)
	r.HandleFunc("/loans/{id}/settle", h.SettleLoan).Methods(http.MethodPost)
	r.HandleFunc("/admin/wallets/{id}/reconcile", h.Reconcile).Methods(http.MethodGet)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string      `json:"username"`
		Password string      `json:"password"`
		Role     models.Role `json:"role"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	profile, err := h.auth.Register(r.Context(), req.Username, req.Password, req.Role)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, profile)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	token, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.identity(w, r)
	if !ok {
		return
	}
	if err := h.auth.Logout(r.Context(), userID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListWallets(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.identity(w, r)
	if !ok {
		return
	}
	wallets, err := h.wallets.ListWallets(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, wallets)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.identity(w, r)
	if !ok {
		return
	}
	kind := models.WalletKind(mux.Vars(r)["kind"])

	balance, err := h.wallets.GetBalance(r.Context(), userID, kind)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "balance": balance})
}

// GetTransactionHistory accepts ?types=a,b&offset=n&limit=n.
func (h *Handler) GetTransactionHistory(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.identity(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var filter ledger.HistoryFilter
	if raw := q.Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			filter.Types = append(filter.Types, models.TransactionType(strings.TrimSpace(t)))
		}
	}
	var err error
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	txs, err := h.wallets.GetTransactionHistory(r.Context(), userID, filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, txs)
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func (h *Handler) Topup(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount    decimal.Decimal `json:"amount"`
		RequestID string          `json:"request_id"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if req.RequestID == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("request_id is required"))
		return
	}

	res, err := h.wallets.Topup(r.Context(), userID, req.Amount, req.RequestID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) RequestRefund(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount decimal.Decimal `json:"amount"`
		Reason string          `json:"reason"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.wallets.RequestRefund(r.Context(), userID, req.Amount, req.Reason)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, res)
}

func (h *Handler) SettleRefund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Approve bool `json:"approve"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.wallets.SettleRefund(r.Context(), mux.Vars(r)["id"], req.Approve)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) GetRewards(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.identity(w, r)
	if !ok {
		return
	}
	reward, err := h.gas.GetRewards(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, reward)
}

func (h *Handler) RedeemRewards(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req struct {
		Units decimal.Decimal `json:"units"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.wallets.RedeemRewards(r.Context(), userID, req.Units)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, role, ok := h.identity(w, r)
	if !ok {
		return
	}
	if role != models.RoleConsumer {
		h.writeError(w, http.StatusForbidden, pkgerrors.ErrForbidden)
		return
	}
	var req service.CreateOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), userID, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, order)
}

// GetOrder is visible to both parties of the order and to admins.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, role, ok := h.identity(w, r)
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if role != models.RoleAdmin && order.ConsumerID != userID && order.RetailerID != userID {
		h.writeError(w, http.StatusForbidden, pkgerrors.ErrForbidden)
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) BuyGas(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req struct {
		MeterNumber string          `json:"meter_number"`
		Amount      decimal.Decimal `json:"amount"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	purchase, err := h.gas.BuyGas(r.Context(), userID, req.MeterNumber, req.Amount)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, purchase)
}

func (h *Handler) RequestLoan(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req struct {
		Principal decimal.Decimal `json:"principal"`
		DueDate   *time.Time      `json:"due_date"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	var due time.Time
	if req.DueDate != nil {
		due = *req.DueDate
	}

	loan, err := h.loans.RequestLoan(r.Context(), userID, req.Principal, due)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, loan)
}

func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.identity(w, r)
	if !ok {
		return
	}
	loans, err := h.loans.ListLoans(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if loans == nil {
		loans = []models.Loan{}
	}
	h.writeJSON(w, http.StatusOK, loans)
}

func (h *Handler) ApproveLoan(w http.ResponseWriter, r *http.Request) {
	loan, disbursement, err := h.loans.ApproveLoan(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"loan": loan, "disbursement": disbursement})
}

func (h *Handler) RejectLoan(w http.ResponseWriter, r *http.Request) {
	loan, err := h.loans.RejectLoan(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, loan)
}

func (h *Handler) MarkDefaulted(w http.ResponseWriter, r *http.Request) {
	loan, err := h.loans.MarkDefaulted(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, loan)
}

func (h *Handler) SettleLoan(w http.ResponseWriter, r *http.Request) {
	loan, err := h.loans.SettleLoan(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, loan)
}

func (h *Handler) RepayLoan(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	rep, err := h.loans.RepayLoan(r.Context(), userID, mux.Vars(r)["id"], req.Amount)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) GetLoanLedger(w http.ResponseWriter, r *http.Request) {
	userID, role, ok := h.identity(w, r)
	if !ok {
		return
	}
	ll, err := h.loans.GetLoanLedger(r.Context(), userID, role, mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ll)
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	rec, err := h.wallets.Reconcile(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}
