package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/atmsys/atm-backend/internal/api/httpx"
	"github.com/atmsys/atm-backend/internal/config"
	"github.com/atmsys/atm-backend/internal/metrics"
	"github.com/atmsys/atm-backend/internal/middleware"
	"github.com/atmsys/atm-backend/internal/models"
	"github.com/atmsys/atm-backend/internal/money"
	"github.com/atmsys/atm-backend/internal/services"
)

type RouterDeps struct {
	Cfg         config.Config
	Auth        *middleware.AuthMiddleware
	AuthSvc     *services.AuthService
	LedgerSvc   *services.LedgerService
	OperatorSvc *services.OperatorService
}

type txnDTO struct {
	ID           int64  `json:"id"`
	AccountID    int64  `json:"account_id"`
	Type         string `json:"type"`
	Amount       string `json:"amount"`
	BalanceAfter string `json:"balance_after"`
	Reference    string `json:"reference"`
	CreatedAt    string `json:"created_at"`
}

func toTxnDTO(t models.Transaction) txnDTO {
	return txnDTO{
		ID:           t.ID,
		AccountID:    t.AccountID,
		Type:         t.Type,
		Amount:       money.Format(t.Amount),
		BalanceAfter: money.Format(t.BalanceAfter),
		Reference:    t.Reference,
		CreatedAt:    t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toTxnDTOs(ts []models.Transaction) []txnDTO {
	out := make([]txnDTO, 0, len(ts))
	for _, t := range ts {
		out = append(out, toTxnDTO(t))
	}
	return out
}

// parseAmount turns a decimal-string body field into cents, rejecting
// anything non-positive.
func parseAmount(s string) (int64, bool) {
	cents, err := money.Parse(s)
	if err != nil || cents <= 0 {
		return 0, false
	}
	return cents, true
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func queryTime(r *http.Request, name string) *time.Time {
	if v := r.URL.Query().Get(name); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return &t
		}
	}
	return nil
}

func queryInt(r *http.Request, name string) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover, middleware.HTTPMetrics, middleware.RateLimit(d.Cfg.RateRPS))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	// health & metrics
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// ---------- auth ----------
		r.Post("/auth/login", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				CardNumber string `json:"card_number"`
				Pin        string `json:"pin"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CardNumber == "" || req.Pin == "" {
				httpx.WriteError(w, http.StatusBadRequest, "validation_error", "card_number and pin are required", nil)
				return
			}
			sess, err := d.AuthSvc.Login(r.Context(), req.CardNumber, req.Pin)
			if err != nil {
				// one undifferentiated 401 regardless of the cause
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid card or PIN", nil)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, map[string]any{
				"token":      sess.Token,
				"expires_at": sess.ExpiresAt.UTC().Format(time.RFC3339),
			})
		})

		r.Post("/auth/operator/login", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
				httpx.WriteError(w, http.StatusBadRequest, "validation_error", "username and password are required", nil)
				return
			}
			sess, err := d.AuthSvc.OperatorLogin(r.Context(), req.Username, req.Password)
			if err != nil {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials", nil)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, map[string]any{
				"token":      sess.Token,
				"expires_at": sess.ExpiresAt.UTC().Format(time.RFC3339),
			})
		})

		// ---------- cardholder ----------
		r.Group(func(r chi.Router) {
			r.Use(d.Auth.Auth, middleware.RequireRole(models.CardholderRole))

			r.Post("/auth/change-pin", func(w http.ResponseWriter, r *http.Request) {
				claims, _ := middleware.GetClaims(r.Context())
				var req struct {
					CurrentPin string `json:"current_pin"`
					NewPin     string `json:"new_pin"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "validation_error", "bad request", nil)
					return
				}
				if err := d.AuthSvc.ChangePin(r.Context(), claims.CardID, req.CurrentPin, req.NewPin); err != nil {
					httpx.WriteKind(w, err)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			})

			r.Get("/accounts/{id}/balance", func(w http.ResponseWriter, r *http.Request) {
				claims, _ := middleware.GetClaims(r.Context())
				id, ok := pathID(r, "id")
				if !ok {
					httpx.WriteError(w, http.StatusBadRequest, "validation_error", "invalid account id", nil)
					return
				}
				acc, err := d.LedgerSvc.GetBalance(r.Context(), id, claims.CustomerID)
				if err != nil {
					httpx.WriteKind(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, map[string]any{
					"account_id": acc.ID,
					"type":       acc.Type,
					"balance":    money.Format(acc.Balance),
				})
			})

			r.Post("/accounts/{id}/withdraw", func(w http.ResponseWriter, r *http.Request) {
				claims, _ := middleware.GetClaims(r.Context())
				id, ok := pathID(r, "id")
				if !ok {
					httpx.WriteError(w, http.StatusBadRequest, "validation_error", "invalid account id", nil)
					return
				}
				var req struct {
					Amount string `json:"amount"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "validation_error", "bad request", nil)
					return
				}
				amount, ok := parseAmount(req.Amount)
				if !ok {
					httpx.WriteError(w, http.StatusBadRequest, "validation_error", "amount must be a positive decimal", nil)
					return
				}
				txn, err := d.LedgerSvc.Withdraw(r.Context(), services.WithdrawRequest{
					AccountID:  id,
					Amount:     amount,
					CardID:     claims.CardID,
					CustomerID: claims.CustomerID,
				})
				if err != nil {
					httpx.WriteKind(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusCreated, toTxnDTO(txn))
			})

			r.Post("/accounts/{id}/deposit", func(w http.ResponseWriter, r *http.Request) {
				claims, _ := middleware.GetClaims(r.Context())
				id, ok := pathID(r, "id")
				if !ok {
					httpx.WriteError(w, http.StatusBadRequest, "validation_error", "invalid account id", nil)
					return
				}
				var req struct {
					Amount string `json:"amount"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "validation_error", "bad request", nil)
					return
				}
				amount, ok := parseAmount(req.Amount)
				if !ok {
					httpx.WriteError(w, http.StatusBadRequest, "validation_error", "amount must be a positive decimal", nil)
					return
				}
				txn, err := d.LedgerSvc.Deposit(r.Context(), services.DepositRequest{
					AccountID:  id,
					Amount:     amount,
					CardID:     claims.CardID,
					CustomerID: claims.CustomerID,
				})
				if err != nil {
					httpx.WriteKind(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusCreated, toTxnDTO(txn))
			})

			r.Post("/accounts/transfer", func(w http.ResponseWriter, r *http.Request) {
				claims, _ := middleware.GetClaims(r.Context())
				var req struct {
					FromAccountID int64  `json:"from_account_id"`
					ToAccountID   int64  `json:"to_account_id"`
					Amount        string `json:"amount"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "validation_error", "bad request", nil)
					return
				}
				amount, ok := parseAmount(req.Amount)
				if !ok {
					httpx.WriteError(w, http.StatusBadRequest, "validation_error", "amount must be a positive decimal", nil)
					return
				}
				txn, err := d.LedgerSvc.Transfer(r.Context(), services.TransferRequest{
					FromAccountID: req.FromAccountID,
					ToAccountID:   req.ToAccountID,
					Amount:        amount,
					CardID:        claims.CardID,
					CustomerID:    claims.CustomerID,
				})
				if err != nil {
					httpx.WriteKind(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusCreated, toTxnDTO(txn))
			})

			r.Get("/accounts/{id}/statement", func(w http.ResponseWriter, r *http.Request) {
				claims, _ := middleware.GetClaims(r.Context())
				id, ok := pathID(r, "id")
				if !ok {
					httpx.WriteError(w, http.StatusBadRequest, "validation_error", "invalid account id", nil)
					return
				}
				// ownership gate; foreign accounts look missing
				if _, err := d.LedgerSvc.GetBalance(r.Context(), id, claims.CustomerID); err != nil {
					httpx.WriteKind(w, err)
					return
				}
				txns, err := d.LedgerSvc.MiniStatement(r.Context(), id, queryInt(r, "count"))
				if err != nil {
					httpx.WriteKind(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, toTxnDTOs(txns))
			})
		})

		// ---------- operator ----------
		r.Route("/operator", func(r chi.Router) {
			r.Use(d.Auth.Auth, middleware.RequireRole(models.OperatorRole))

			cardAction := func(do func(r *http.Request, cardID, opID int64, reason string) error) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					claims, _ := middleware.GetClaims(r.Context())
					id, ok := pathID(r, "id")
					if !ok {
						httpx.WriteError(w, http.StatusBadRequest, "validation_error", "invalid card id", nil)
						return
					}
					var req struct {
						Reason string `json:"reason"`
					}
					_ = json.NewDecoder(r.Body).Decode(&req)
					if err := do(r, id, claims.OperatorID, req.Reason); err != nil {
						httpx.WriteKind(w, err)
						return
					}
					w.WriteHeader(http.StatusNoContent)
				}
			}

			r.Post("/cards/{id}/lock", cardAction(func(r *http.Request, cardID, opID int64, reason string) error {
				return d.OperatorSvc.LockCard(r.Context(), cardID, opID, reason)
			}))
			r.Post("/cards/{id}/unlock", cardAction(func(r *http.Request, cardID, opID int64, reason string) error {
				return d.OperatorSvc.UnlockCard(r.Context(), cardID, opID, reason)
			}))
			r.Post("/cards/{id}/reset-retries", cardAction(func(r *http.Request, cardID, opID int64, _ string) error {
				return d.OperatorSvc.ResetPinRetries(r.Context(), cardID, opID)
			}))

			r.Post("/reconcile", func(w http.ResponseWriter, r *http.Request) {
				claims, _ := middleware.GetClaims(r.Context())
				var req struct {
					AtmID       int64  `json:"atm_id"`
					CountedCash string `json:"counted_cash"`
					Notes       string `json:"notes"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "validation_error", "bad request", nil)
					return
				}
				counted, err := money.Parse(req.CountedCash)
				if err != nil || counted < 0 {
					httpx.WriteError(w, http.StatusBadRequest, "validation_error", "counted_cash must be a non-negative decimal", nil)
					return
				}
				rec, err := d.OperatorSvc.Reconcile(r.Context(), services.ReconcileRequest{
					AtmID:       req.AtmID,
					CountedCash: counted,
					Notes:       req.Notes,
				}, claims.OperatorID)
				if err != nil {
					httpx.WriteKind(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusCreated, map[string]any{
					"id":                 rec.ID,
					"atm_id":             rec.AtmID,
					"counted_cash":       money.Format(rec.CountedCash),
					"system_cash_before": money.Format(rec.SystemCashBefore),
					"difference":         money.Format(rec.Difference),
					"notes":              rec.Notes,
					"created_at":         rec.CreatedAt.UTC().Format(time.RFC3339),
				})
			})

			r.Post("/customers", func(w http.ResponseWriter, r *http.Request) {
				claims, _ := middleware.GetClaims(r.Context())
				var req struct {
					Name     string `json:"name"`
					Accounts []struct {
						Type           string `json:"type"`
						InitialBalance string `json:"initial_balance"`
					} `json:"accounts"`
					CardNumber     string `json:"card_number"`
					Pin            string `json:"pin"`
					CardDailyLimit string `json:"card_daily_limit"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					httpx.WriteError(w, http.StatusBadRequest, "validation_error", "bad request", nil)
					return
				}
				seed := services.SeedRequest{
					CustomerName: req.Name,
					CardNumber:   req.CardNumber,
					Pin:          req.Pin,
				}
				for _, a := range req.Accounts {
					bal := int64(0)
					if a.InitialBalance != "" {
						v, err := money.Parse(a.InitialBalance)
						if err != nil || v < 0 {
							httpx.WriteError(w, http.StatusBadRequest, "validation_error", "initial_balance must be a non-negative decimal", nil)
							return
						}
						bal = v
					}
					seed.Accounts = append(seed.Accounts, services.SeedAccount{Type: a.Type, InitialBalance: bal})
				}
				if req.CardDailyLimit != "" {
					v, err := money.Parse(req.CardDailyLimit)
					if err != nil || v < 0 {
						httpx.WriteError(w, http.StatusBadRequest, "validation_error", "card_daily_limit must be a non-negative decimal", nil)
						return
					}
					seed.CardDailyLimit = v
				}
				result, err := d.OperatorSvc.SeedCustomer(r.Context(), seed, claims.OperatorID)
				if err != nil {
					httpx.WriteKind(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusCreated, result)
			})

			txnQuery := func(r *http.Request) services.TransactionQuery {
				q := services.TransactionQuery{
					From:  queryTime(r, "from"),
					To:    queryTime(r, "to"),
					Type:  r.URL.Query().Get("type"),
					Limit: queryInt(r, "limit"),
				}
				if v := r.URL.Query().Get("account_id"); v != "" {
					if id, err := strconv.ParseInt(v, 10, 64); err == nil {
						q.AccountID = &id
					}
				}
				return q
			}
			logQuery := func(r *http.Request) services.SecurityLogQuery {
				q := services.SecurityLogQuery{
					From:  queryTime(r, "from"),
					To:    queryTime(r, "to"),
					Limit: queryInt(r, "limit"),
				}
				if v := r.URL.Query().Get("card_id"); v != "" {
					if id, err := strconv.ParseInt(v, 10, 64); err == nil {
						q.CardID = &id
					}
				}
				return q
			}

			r.Get("/transactions", func(w http.ResponseWriter, r *http.Request) {
				txns, err := d.OperatorSvc.ListTransactions(r.Context(), txnQuery(r))
				if err != nil {
					httpx.WriteKind(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, toTxnDTOs(txns))
			})

			r.Get("/security-logs", func(w http.ResponseWriter, r *http.Request) {
				logs, err := d.OperatorSvc.ListSecurityLogs(r.Context(), logQuery(r))
				if err != nil {
					httpx.WriteKind(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, logs)
			})

			r.Get("/cashout-events", func(w http.ResponseWriter, r *http.Request) {
				events, err := d.OperatorSvc.CashOutEvents(r.Context(), queryTime(r, "from"), queryTime(r, "to"))
				if err != nil {
					httpx.WriteKind(w, err)
					return
				}
				httpx.WriteJSON(w, http.StatusOK, events)
			})

			r.Get("/export/transactions.csv", func(w http.ResponseWriter, r *http.Request) {
				data, err := d.OperatorSvc.ExportTransactionsCSV(r.Context(), txnQuery(r))
				if err != nil {
					httpx.WriteKind(w, err)
					return
				}
				w.Header().Set("Content-Type", "text/csv; charset=utf-8")
				w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)
				_, _ = w.Write(data)
			})

			r.Get("/export/security-logs.csv", func(w http.ResponseWriter, r *http.Request) {
				data, err := d.OperatorSvc.ExportSecurityLogsCSV(r.Context(), logQuery(r))
				if err != nil {
					httpx.WriteKind(w, err)
					return
				}
				w.Header().Set("Content-Type", "text/csv; charset=utf-8")
				w.Header().Set("Content-Disposition", `attachment; filename="security-logs.csv"`)
				_, _ = w.Write(data)
			})
		})
	})

	return r
}
