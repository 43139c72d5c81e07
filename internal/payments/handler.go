package payments

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mason-erp/mason-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the payments module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a payments handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers payments routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/accounts", h.createAccount)
	r.Get("/accounts", h.listAccounts)
	r.Get("/accounts/{id}", h.getAccount)
	r.Get("/accounts/{id}/balance", h.getBalance)
	r.Get("/accounts/{id}/entries", h.listEntries)
	r.Post("/accounts/{id}/in", h.recordIn)
	r.Post("/accounts/{id}/out", h.recordOut)
	r.Post("/transfers", h.transfer)
	r.Get("/projects/{projectID}/entries", h.listProjectEntries)
}

type createAccountPayload struct {
	Name           string  `json:"name" validate:"required"`
	InitialBalance float64 `json:"initialBalance" validate:"gte=0"`
	ActorID        int64   `json:"actorId"`
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.CreateAccount(r.Context(), req.Name, req.InitialBalance, req.ActorID)
	if err != nil {
		h.logger.Warn("create account", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func accountIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

type entryPayload struct {
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	Remark      string  `json:"remark"`
	ProjectID   int64   `json:"projectId"`
	Category    string  `json:"category"`
	SubmittedBy int64   `json:"submittedBy"`
	Date        string  `json:"date"`
}

func (p entryPayload) toInput() (EntryInput, error) {
	input := EntryInput{
		Amount:      p.Amount,
		Remark:      p.Remark,
		ProjectID:   p.ProjectID,
		Category:    p.Category,
		SubmittedBy: p.SubmittedBy,
	}
	if p.Date != "" {
		date, err := time.Parse("2006-01-02", p.Date)
		if err != nil {
			return EntryInput{}, err
		}
		input.Date = date
	}
	return input, nil
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request, direction Direction) {
	id, err := accountIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "account id must be an integer")
		return
	}
	var req entryPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := req.toInput()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}
	var entry Entry
	if direction == DirectionIn {
		entry, err = h.service.RecordIn(r.Context(), id, input)
	} else {
		entry, err = h.service.RecordOut(r.Context(), id, input)
	}
	if err != nil {
		h.logger.Warn("record payment", slog.String("direction", string(direction)), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) recordIn(w http.ResponseWriter, r *http.Request) {
	h.record(w, r, DirectionIn)
}

func (h *Handler) recordOut(w http.ResponseWriter, r *http.Request) {
	h.record(w, r, DirectionOut)
}

type transferPayload struct {
	FromAccountID int64   `json:"fromAccountId" validate:"required,gt=0"`
	ToAccountID   int64   `json:"toAccountId" validate:"required,gt=0"`
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	Remark        string  `json:"remark"`
	SubmittedBy   int64   `json:"submittedBy"`
	Date          string  `json:"date"`
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	var req transferPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := TransferInput{
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount,
		Remark:        req.Remark,
		SubmittedBy:   req.SubmittedBy,
	}
	if req.Date != "" {
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
			return
		}
		input.Date = date
	}
	result, err := h.service.Transfer(r.Context(), input)
	if err != nil {
		h.logger.Warn("transfer", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id, err := accountIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "account id must be an integer")
		return
	}
	account, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	id, err := accountIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "account id must be an integer")
		return
	}
	balance, err := h.service.GetBalance(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]float64{"balance": balance})
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	id, err := accountIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "account id must be an integer")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.ListEntries(r.Context(), id, Direction(r.URL.Query().Get("direction")), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) listProjectEntries(w http.ResponseWriter, r *http.Request) {
	projectID, err := strconv.ParseInt(chi.URLParam(r, "projectID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "project id must be an integer")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.ListProjectEntries(r.Context(), projectID, limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}
