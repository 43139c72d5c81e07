package materials

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mason-erp/mason-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the materials module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a materials handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers materials routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/requests", h.createRequest)
	r.Get("/requests/{requestID}", h.getRequest)
	r.Post("/requests/{requestID}/decisions", h.decideItems)
	r.Put("/requests/{requestID}/items/{index}", h.editItem)
	r.Delete("/requests/{requestID}/items/{index}", h.deleteItem)

	r.Post("/receipts", h.createReceipt)

	r.Post("/usages", h.createUsage)
	r.Get("/usages/{usageID}", h.getUsage)
	r.Put("/usages/{usageID}/items/{itemID}", h.editUsageItem)
	r.Delete("/usages/{usageID}/items/{itemID}", h.deleteUsageItem)

	r.Get("/usage-items/{itemID}/comments", h.listComments)
	r.Post("/usage-items/{itemID}/comments", h.addComment)
	r.Put("/comments/{commentID}", h.updateComment)
	r.Delete("/comments/{commentID}", h.deleteComment)

	r.Get("/projects/{projectID}/requests", h.listRequests)
	r.Get("/projects/{projectID}/receipts", h.listReceipts)
	r.Get("/projects/{projectID}/usages", h.listUsages)
	r.Get("/projects/{projectID}/inventory", h.inventory)
	r.Get("/projects/{projectID}/availability/{code}", h.availability)
	r.Get("/projects/{projectID}/outstanding/{code}", h.outstanding)
}

type requestLinePayload struct {
	MaterialCode string  `json:"materialCode" validate:"required"`
	Quantity     float64 `json:"quantity" validate:"required,gt=0"`
}

type createRequestPayload struct {
	ProjectID    int64                `json:"projectId" validate:"required,gt=0"`
	SupervisorID int64                `json:"supervisorId" validate:"required,gt=0"`
	Date         string               `json:"date"`
	Items        []requestLinePayload `json:"items" validate:"required,min=1,dive"`
	ActorID      int64                `json:"actorId"`
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", raw)
}

func (h *Handler) createRequest(w http.ResponseWriter, r *http.Request) {
	var req createRequestPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}
	input := CreateRequestInput{
		ProjectID:    req.ProjectID,
		SupervisorID: req.SupervisorID,
		Date:         date,
		ActorID:      req.ActorID,
	}
	for _, line := range req.Items {
		input.Items = append(input.Items, RequestLineInput{MaterialCode: line.MaterialCode, Quantity: line.Quantity})
	}
	created, err := h.service.CreateRequest(r.Context(), input)
	if err != nil {
		h.logger.Warn("create material request", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) getRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.service.GetRequest(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

type decisionPayload struct {
	MaterialCode string  `json:"materialCode" validate:"required"`
	ApprovedQty  float64 `json:"approvedQty" validate:"gte=0"`
	RejectedQty  float64 `json:"rejectedQty" validate:"gte=0"`
	Status       string  `json:"status" validate:"required,oneof=Approved 'Partially Approved' Rejected"`
}

type decideItemsPayload struct {
	Decisions []decisionPayload `json:"decisions" validate:"required,min=1,dive"`
	ActorID   int64             `json:"actorId"`
}

func (h *Handler) decideItems(w http.ResponseWriter, r *http.Request) {
	var req decideItemsPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	decisions := make([]Decision, 0, len(req.Decisions))
	for _, d := range req.Decisions {
		decisions = append(decisions, Decision{
			MaterialCode: d.MaterialCode,
			ApprovedQty:  d.ApprovedQty,
			RejectedQty:  d.RejectedQty,
			Status:       ItemStatus(d.Status),
		})
	}
	updated, err := h.service.DecideItems(r.Context(), chi.URLParam(r, "requestID"), decisions, req.ActorID)
	if err != nil {
		var batch *DecisionErrors
		if errors.As(err, &batch) {
			httpx.ProblemWithErrors(w, http.StatusBadRequest, "Decision Rejected", batch.Errors)
			return
		}
		h.logger.Warn("decide material request", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

type editItemPayload struct {
	MaterialCode string  `json:"materialCode"`
	Quantity     float64 `json:"quantity" validate:"required,gt=0"`
	ActorID      int64   `json:"actorId"`
}

func (h *Handler) editItem(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item index must be an integer")
		return
	}
	var req editItemPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	updated, err := h.service.EditItem(r.Context(), EditItemInput{
		RequestID:    chi.URLParam(r, "requestID"),
		LineIndex:    index,
		MaterialCode: req.MaterialCode,
		Quantity:     req.Quantity,
		ActorID:      req.ActorID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item index must be an integer")
		return
	}
	updated, err := h.service.DeleteItem(r.Context(), chi.URLParam(r, "requestID"), index, actorFromQuery(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

type createReceiptPayload struct {
	ProjectID    int64                `json:"projectId" validate:"required,gt=0"`
	SupervisorID int64                `json:"supervisorId" validate:"required,gt=0"`
	Date         string               `json:"date"`
	Items        []requestLinePayload `json:"items" validate:"required,min=1,dive"`
	ActorID      int64                `json:"actorId"`
}

func (h *Handler) createReceipt(w http.ResponseWriter, r *http.Request) {
	var req createReceiptPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}
	input := CreateReceiptInput{
		ProjectID:    req.ProjectID,
		SupervisorID: req.SupervisorID,
		Date:         date,
		ActorID:      req.ActorID,
	}
	for _, line := range req.Items {
		input.Items = append(input.Items, ReceiptLineInput{MaterialCode: line.MaterialCode, Quantity: line.Quantity})
	}
	created, err := h.service.CreateReceipt(r.Context(), input)
	if err != nil {
		h.logger.Warn("create material receipt", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

type createUsagePayload struct {
	ProjectID    int64                `json:"projectId" validate:"required,gt=0"`
	SupervisorID int64                `json:"supervisorId" validate:"required,gt=0"`
	Date         string               `json:"date"`
	Items        []requestLinePayload `json:"items" validate:"required,min=1,dive"`
	ActorID      int64                `json:"actorId"`
}

func (h *Handler) createUsage(w http.ResponseWriter, r *http.Request) {
	var req createUsagePayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}
	input := CreateUsageInput{
		ProjectID:    req.ProjectID,
		SupervisorID: req.SupervisorID,
		Date:         date,
		ActorID:      req.ActorID,
	}
	for _, line := range req.Items {
		input.Items = append(input.Items, UsageLineInput{MaterialCode: line.MaterialCode, Quantity: line.Quantity})
	}
	created, err := h.service.CreateUsage(r.Context(), input)
	if err != nil {
		h.logger.Warn("create material usage", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) getUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.service.GetUsage(r.Context(), chi.URLParam(r, "usageID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, usage)
}

type editUsageItemPayload struct {
	Quantity float64 `json:"quantity" validate:"required,gt=0"`
	ActorID  int64   `json:"actorId"`
}

func (h *Handler) editUsageItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item id must be an integer")
		return
	}
	var req editUsageItemPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	updated, err := h.service.EditUsageItemQty(r.Context(), chi.URLParam(r, "usageID"), itemID, req.Quantity, req.ActorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteUsageItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item id must be an integer")
		return
	}
	updated, err := h.service.DeleteUsageItem(r.Context(), chi.URLParam(r, "usageID"), itemID, actorFromQuery(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

type commentPayload struct {
	Text     string `json:"text" validate:"required"`
	AuthorID int64  `json:"authorId"`
}

func (h *Handler) addComment(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item id must be an integer")
		return
	}
	var req commentPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.AddComment(r.Context(), itemID, req.AuthorID, req.Text)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateComment(w http.ResponseWriter, r *http.Request) {
	commentID, err := strconv.ParseInt(chi.URLParam(r, "commentID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "comment id must be an integer")
		return
	}
	var req commentPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.UpdateComment(r.Context(), commentID, req.Text); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) deleteComment(w http.ResponseWriter, r *http.Request) {
	commentID, err := strconv.ParseInt(chi.URLParam(r, "commentID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "comment id must be an integer")
		return
	}
	if err := h.service.DeleteComment(r.Context(), commentID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) listComments(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item id must be an integer")
		return
	}
	comments, err := h.service.ListComments(r.Context(), itemID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, comments)
}

func projectIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "projectID"), 10, 64)
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request) {
	projectID, err := projectIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "project id must be an integer")
		return
	}
	requests, err := h.service.ListRequests(r.Context(), projectID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, requests)
}

func (h *Handler) listReceipts(w http.ResponseWriter, r *http.Request) {
	projectID, err := projectIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "project id must be an integer")
		return
	}
	receipts, err := h.service.ListReceipts(r.Context(), projectID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, receipts)
}

func (h *Handler) listUsages(w http.ResponseWriter, r *http.Request) {
	projectID, err := projectIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "project id must be an integer")
		return
	}
	var date *time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
			return
		}
		date = &parsed
	}
	usages, err := h.service.ListUsages(r.Context(), projectID, date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, usages)
}

func (h *Handler) inventory(w http.ResponseWriter, r *http.Request) {
	projectID, err := projectIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "project id must be an integer")
		return
	}
	entries, err := h.service.ProjectInventory(r.Context(), projectID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	projectID, err := projectIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "project id must be an integer")
		return
	}
	available, err := h.service.ProjectAvailable(r.Context(), projectID, chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]float64{"available": available})
}

func (h *Handler) outstanding(w http.ResponseWriter, r *http.Request) {
	projectID, err := projectIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "project id must be an integer")
		return
	}
	outstanding, err := h.service.OutstandingApproved(r.Context(), projectID, chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]float64{"outstanding": outstanding})
}

func actorFromQuery(r *http.Request) int64 {
	actor, _ := strconv.ParseInt(r.URL.Query().Get("actorId"), 10, 64)
	return actor
}
