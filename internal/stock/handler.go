package stock

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mason-erp/mason-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the stock module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a stock handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/items", h.createItem)
	r.Get("/items", h.listItems)
	r.Get("/items/{code}", h.getItem)
	r.Get("/items/{code}/available", h.getAvailable)
	r.Get("/items/{code}/movements", h.listMovements)
	r.Post("/items/{code}/adjust", h.adjust)
}

type createItemRequest struct {
	Code         string `json:"code" validate:"required"`
	Name         string `json:"name" validate:"required"`
	Kind         string `json:"kind" validate:"required,oneof=PRODUCT MATERIAL"`
	PurchaseUnit string `json:"purchaseUnit"`
	SalesUnit    string `json:"salesUnit"`
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	item, err := h.service.CreateItem(r.Context(), CreateItemInput{
		Code:         req.Code,
		Name:         req.Name,
		Kind:         ItemKind(req.Kind),
		PurchaseUnit: req.PurchaseUnit,
		SalesUnit:    req.SalesUnit,
	})
	if err != nil {
		h.logger.Warn("create stock item", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListItems(r.Context(), ItemKind(r.URL.Query().Get("kind")), r.URL.Query().Get("q"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.GetItem(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) getAvailable(w http.ResponseWriter, r *http.Request) {
	qty, err := h.service.GetAvailable(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]float64{"available": qty})
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	movements, err := h.service.ListMovements(r.Context(), chi.URLParam(r, "code"), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}

type adjustRequest struct {
	Delta   float64 `json:"delta" validate:"required"`
	Note    string  `json:"note"`
	ActorID int64   `json:"actorId"`
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	item, err := h.service.ApplyDelta(r.Context(), DeltaInput{
		Code:      chi.URLParam(r, "code"),
		Delta:     req.Delta,
		RefModule: "stock",
		Note:      req.Note,
		ActorID:   req.ActorID,
	})
	if err != nil {
		h.logger.Warn("adjust stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}
