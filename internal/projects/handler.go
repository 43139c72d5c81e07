package projects

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mason-erp/mason-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for project collaboration.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a projects handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers project routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createProject)
	r.Get("/", h.listProjects)
	r.Get("/{projectID}", h.getProject)
	r.Put("/{projectID}/supervisor", h.assignSupervisor)
	r.Get("/{projectID}/snapshot", h.snapshot)

	r.Post("/{projectID}/workers", h.addWorker)
	r.Get("/{projectID}/workers", h.listWorkers)
	r.Post("/worker-categories", h.addWorkerCategory)
	r.Get("/worker-categories", h.listWorkerCategories)

	r.Get("/{projectID}/attendance", h.getAttendance)
	r.Put("/{projectID}/attendance", h.recordAttendance)

	r.Post("/{projectID}/messages", h.postMessage)
	r.Get("/{projectID}/messages", h.listMessages)

	r.Post("/{projectID}/progress", h.addProgressItem)
	r.Get("/{projectID}/progress", h.listProgress)
	r.Put("/progress/{itemID}/percentage", h.setPercentage)
	r.Delete("/progress/{itemID}", h.removeProgressItem)
	r.Post("/progress/{itemID}/comments", h.addProgressComment)
	r.Get("/progress/{itemID}/comments", h.listProgressComments)

	r.Post("/payment-categories", h.addPaymentCategory)
	r.Get("/payment-categories", h.listPaymentCategories)
}

func projectIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "projectID"), 10, 64)
}

func itemIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
}

type createProjectPayload struct {
	Name         string `json:"name" validate:"required"`
	Location     string `json:"location"`
	SupervisorID int64  `json:"supervisorId"`
	StartDate    string `json:"startDate"`
}

func (h *Handler) createProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	project := Project{Name: req.Name, Location: req.Location, SupervisorID: req.SupervisorID}
	if req.StartDate != "" {
		date, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "startDate must be YYYY-MM-DD")
			return
		}
		project.StartDate = date
	}
	created, err := h.service.CreateProject(r.Context(), project)
	if err != nil {
		h.logger.Warn("create project", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.service.ListProjects(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, projects)
}

func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "project id must be an integer")
		return
	}
	project, err := h.service.GetProject(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, project)
}

func (h *Handler) assignSupervisor(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "project id must be an integer")
		return
	}
	var req struct {
		SupervisorID int64 `json:"supervisorId" validate:"required,gt=0"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.AssignSupervisor(r.Context(), id, req.SupervisorID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "project id must be an integer")
		return
	}
	snap, err := h.service.BuildSnapshot(r.Context(), id)
	if err != nil {
		h.logger.Warn("project snapshot", slog.Int64("projectId", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

type workerPayload struct {
	Name      string  `json:"name" validate:"required"`
	Category  string  `json:"category"`
	Phone     string  `json:"phone"`
	DailyWage float64 `json:"dailyWage" validate:"gte=0"`
}

func (h *Handler) addWorker(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "project id must be an integer")
		return
	}
	var req workerPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	worker, err := h.service.AddWorker(r.Context(), Worker{
		ProjectID: id,
		Name:      req.Name,
		Category:  req.Category,
		Phone:     req.Phone,
		DailyWage: req.DailyWage,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, worker)
}

func (h *Handler) listWorkers(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "project id must be an integer")
		return
	}
	workers, err := h.service.ListWorkers(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, workers)
}

func (h *Handler) addWorkerCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name" validate:"required"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.AddWorkerCategory(r.Context(), req.Name); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"name": req.Name})
}

func (h *Handler) listWorkerCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListWorkerCategories(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, categories)
}

func (h *Handler) getAttendance(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "project id must be an integer")
		return
	}
	date := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		if date, err = time.Parse("2006-01-02", raw); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
			return
		}
	}
	records, err := h.service.GetAttendance(r.Context(), id, date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, records)
}

type attendancePayload struct {
	WorkerID      int64   `json:"workerId" validate:"required,gt=0"`
	Date          string  `json:"date" validate:"required"`
	Present       bool    `json:"present"`
	Shifts        float64 `json:"shifts" validate:"gte=0"`
	OvertimeHours float64 `json:"overtimeHours" validate:"gte=0"`
}

func (h *Handler) recordAttendance(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "project id must be an integer")
		return
	}
	var req attendancePayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}
	rec, err := h.service.RecordAttendance(r.Context(), AttendanceRecord{
		ProjectID:     id,
		WorkerID:      req.WorkerID,
		Date:          date,
		Present:       req.Present,
		Shifts:        req.Shifts,
		OvertimeHours: req.OvertimeHours,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

type messagePayload struct {
	SenderID    int64  `json:"senderId" validate:"required,gt=0"`
	RecipientID int64  `json:"recipientId"`
	Body        string `json:"body" validate:"required"`
}

func (h *Handler) postMessage(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "project id must be an integer")
		return
	}
	var req messagePayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	msg, err := h.service.PostMessage(r.Context(), id, req.SenderID, req.RecipientID, req.Body)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, msg)
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "project id must be an integer")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	memberA, _ := strconv.ParseInt(r.URL.Query().Get("memberA"), 10, 64)
	memberB, _ := strconv.ParseInt(r.URL.Query().Get("memberB"), 10, 64)
	var (
		messages []ChatMessage
	)
	if memberA > 0 && memberB > 0 {
		messages, err = h.service.ListPrivateMessages(r.Context(), id, memberA, memberB, limit)
	} else {
		messages, err = h.service.ListGroupMessages(r.Context(), id, limit)
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, messages)
}

type progressItemPayload struct {
	ParentID int64  `json:"parentId"`
	Title    string `json:"title" validate:"required"`
}

func (h *Handler) addProgressItem(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "project id must be an integer")
		return
	}
	var req progressItemPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	item, err := h.service.AddProgressItem(r.Context(), id, req.ParentID, req.Title)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) listProgress(w http.ResponseWriter, r *http.Request) {
	id, err := projectIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "project id must be an integer")
		return
	}
	items, err := h.service.ListProgress(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) setPercentage(w http.ResponseWriter, r *http.Request) {
	id, err := itemIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item id must be an integer")
		return
	}
	var req struct {
		Percentage float64 `json:"percentage" validate:"gte=0,lte=100"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.SetProgressPercentage(r.Context(), id, req.Percentage); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) removeProgressItem(w http.ResponseWriter, r *http.Request) {
	id, err := itemIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item id must be an integer")
		return
	}
	if err := h.service.RemoveProgressItem(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type progressCommentPayload struct {
	AuthorID int64  `json:"authorId" validate:"required,gt=0"`
	Body     string `json:"body" validate:"required"`
}

func (h *Handler) addProgressComment(w http.ResponseWriter, r *http.Request) {
	id, err := itemIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item id must be an integer")
		return
	}
	var req progressCommentPayload
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	comment, err := h.service.AddProgressComment(r.Context(), id, req.AuthorID, req.Body)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, comment)
}

func (h *Handler) listProgressComments(w http.ResponseWriter, r *http.Request) {
	id, err := itemIDParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item id must be an integer")
		return
	}
	comments, err := h.service.ListProgressComments(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, comments)
}

func (h *Handler) addPaymentCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name" validate:"required"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.AddPaymentCategory(r.Context(), req.Name); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"name": req.Name})
}

func (h *Handler) listPaymentCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListPaymentCategories(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, categories)
}
