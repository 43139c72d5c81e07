package billing

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mason-erp/mason-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the billing module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a billing handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/invoices", h.createInvoice)
	r.Get("/invoices", h.listInvoices)
	r.Get("/invoices/suggestions", h.suggestions)
	r.Get("/invoices/{id}", h.getInvoice)
	r.Put("/invoices/{id}", h.editInvoice)
	r.Delete("/invoices/{id}", h.deleteInvoice)
	r.Post("/invoices/{id}/expenses", h.addExpenses)
	r.Put("/invoices/{id}/delivery", h.updateDelivery)
	r.Get("/invoices/by-number/{no}", h.getByNumber)
	r.Get("/products/{code}/total-sold", h.totalSold)
}

type itemPayload struct {
	ProductCode string  `json:"productCode" validate:"required"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
	Rate        float64 `json:"rate" validate:"gte=0"`
}

type paymentPayload struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
	Method string  `json:"method"`
	Date   string  `json:"date"`
}

type invoicePayload struct {
	InvoiceNo     string          `json:"invoiceNo"`
	CustomerName  string          `json:"customerName" validate:"required"`
	CustomerPhone string          `json:"customerPhone"`
	Date          string          `json:"date"`
	BillingAmount float64         `json:"billingAmount" validate:"required,gt=0"`
	Discount      float64         `json:"discount" validate:"gte=0"`
	Items         []itemPayload   `json:"items" validate:"required,min=1,dive"`
	Payment       *paymentPayload `json:"payment"`
	ActorID       int64           `json:"actorId"`
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", raw)
}

func (p invoicePayload) toItems() []ItemInput {
	items := make([]ItemInput, 0, len(p.Items))
	for _, line := range p.Items {
		items = append(items, ItemInput{ProductCode: line.ProductCode, Quantity: line.Quantity, Rate: line.Rate})
	}
	return items
}

func (p *paymentPayload) toInput() (*PaymentInput, error) {
	if p == nil {
		return nil, nil
	}
	date, err := parseDate(p.Date)
	if err != nil {
		return nil, err
	}
	return &PaymentInput{Amount: p.Amount, Method: p.Method, Date: date}, nil
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoicePayload
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
	payment, err := req.Payment.toInput()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "payment date must be YYYY-MM-DD")
		return
	}
	created, err := h.service.CreateInvoice(r.Context(), CreateInvoiceInput{
		InvoiceNo:     req.InvoiceNo,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Date:          date,
		BillingAmount: req.BillingAmount,
		Discount:      req.Discount,
		Items:         req.toItems(),
		Payment:       payment,
		ActorID:       req.ActorID,
	})
	if err != nil {
		h.logger.Warn("create invoice", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func invoiceIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *Handler) editInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invoice id must be an integer")
		return
	}
	var req invoicePayload
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
	payment, err := req.Payment.toInput()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "payment date must be YYYY-MM-DD")
		return
	}
	updated, err := h.service.EditInvoice(r.Context(), id, EditInvoiceInput{
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Date:          date,
		BillingAmount: req.BillingAmount,
		Discount:      req.Discount,
		Items:         req.toItems(),
		Payment:       payment,
		ActorID:       req.ActorID,
	})
	if err != nil {
		h.logger.Warn("edit invoice", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invoice id must be an integer")
		return
	}
	actorID, _ := strconv.ParseInt(r.URL.Query().Get("actorId"), 10, 64)
	if err := h.service.DeleteInvoice(r.Context(), id, actorID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type expensesPayload struct {
	FuelCharge float64 `json:"fuelCharge" validate:"gte=0"`
	Entries    []struct {
		Label  string  `json:"label"`
		Amount float64 `json:"amount"`
	} `json:"otherExpenses"`
	ActorID int64 `json:"actorId"`
}

func (h *Handler) addExpenses(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invoice id must be an integer")
		return
	}
	var req expensesPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entries := make([]ExpenseInput, 0, len(req.Entries))
	for _, e := range req.Entries {
		entries = append(entries, ExpenseInput{Label: e.Label, Amount: e.Amount})
	}
	updated, err := h.service.AddExpenses(r.Context(), id, req.FuelCharge, entries, req.ActorID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

type deliveryPayload struct {
	Status  string `json:"status" validate:"required"`
	ActorID int64  `json:"actorId"`
}

func (h *Handler) updateDelivery(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invoice id must be an integer")
		return
	}
	var req deliveryPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.UpdateDeliveryStatus(r.Context(), id, DeliveryStatus(req.Status), req.ActorID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invoice id must be an integer")
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) getByNumber(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.GetByNumber(r.Context(), chi.URLParam(r, "no"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	invoices, err := h.service.ListInvoices(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoices)
}

func (h *Handler) suggestions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := h.service.Suggestions(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) totalSold(w http.ResponseWriter, r *http.Request) {
	total, err := h.service.TotalQuantitySold(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]float64{"totalQuantitySold": total})
}
