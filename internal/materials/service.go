package materials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mason-erp/mason-erp/internal/shared"
)

// SequencePort hands out business identifiers.
type SequencePort interface {
	NextID(ctx context.Context, prefix string) (string, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

const (
	prefixRequest = "MR"
	prefixReceipt = "RC"
	prefixUsage   = "MU"
)

// Service drives the request, receipt and usage pipeline for a project.
type Service struct {
	repo   RepositoryPort
	seq    SequencePort
	audit  AuditPort
	cache  *InventoryCache
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, seq SequencePort, audit AuditPort, cache *InventoryCache, logger *slog.Logger) *Service {
	return &Service{repo: repo, seq: seq, audit: audit, cache: cache, logger: logger}
}

// RequestLineInput is one requested line at creation time.
type RequestLineInput struct {
	MaterialCode string
	Quantity     float64
}

// CreateRequestInput describes a new material request.
type CreateRequestInput struct {
	ProjectID    int64
	SupervisorID int64
	Date         time.Time
	Items        []RequestLineInput
	ActorID      int64
}

// CreateRequest records a new request with every line Pending.
func (s *Service) CreateRequest(ctx context.Context, input CreateRequestInput) (Request, error) {
	if input.ProjectID <= 0 || input.SupervisorID <= 0 {
		return Request{}, fmt.Errorf("project and supervisor required: %w", ErrValidation)
	}
	if len(input.Items) == 0 {
		return Request{}, fmt.Errorf("at least one line required: %w", ErrValidation)
	}
	for _, line := range input.Items {
		if line.MaterialCode == "" {
			return Request{}, fmt.Errorf("material code required: %w", ErrValidation)
		}
		if line.Quantity <= 0 {
			return Request{}, fmt.Errorf("quantity for %s must be positive: %w", line.MaterialCode, ErrValidation)
		}
	}
	if input.Date.IsZero() {
		input.Date = time.Now().UTC().Truncate(24 * time.Hour)
	}

	requestID, err := s.seq.NextID(ctx, prefixRequest)
	if err != nil {
		return Request{}, err
	}
	req := Request{
		RequestID:    requestID,
		ProjectID:    input.ProjectID,
		SupervisorID: input.SupervisorID,
		Date:         input.Date,
		Status:       StatusPending,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, line := range input.Items {
			// A request may only name known materials.
			if err := tx.LockMaterial(ctx, line.MaterialCode); err != nil {
				return err
			}
		}
		rowID, err := tx.InsertRequest(ctx, req)
		if err != nil {
			return err
		}
		req.ID = rowID
		for i, line := range input.Items {
			item := RequestItem{
				RequestRowID: rowID,
				LineNo:       i,
				MaterialCode: line.MaterialCode,
				Quantity:     line.Quantity,
				Status:       StatusPending,
			}
			itemID, err := tx.InsertRequestItem(ctx, item)
			if err != nil {
				return err
			}
			item.ID = itemID
			req.Items = append(req.Items, item)
		}
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	s.recordAudit(ctx, input.ActorID, "MATERIAL_REQUEST_CREATE", requestID, map[string]any{"project": input.ProjectID, "lines": len(input.Items)})
	return req, nil
}

// DecideItems applies approval verdicts to request lines. The batch is
// all-or-nothing: when any line fails validation, every failure is
// collected into DecisionErrors and nothing is persisted.
func (s *Service) DecideItems(ctx context.Context, requestID string, decisions []Decision, actorID int64) (Request, error) {
	if len(decisions) == 0 {
		return Request{}, fmt.Errorf("at least one decision required: %w", ErrValidation)
	}
	var updated Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		byCode := make(map[string]*RequestItem, len(req.Items))
		for i := range req.Items {
			byCode[req.Items[i].MaterialCode] = &req.Items[i]
		}

		var failures []string
		for _, d := range decisions {
			item, ok := byCode[d.MaterialCode]
			if !ok {
				failures = append(failures, fmt.Sprintf("%s: no such line", d.MaterialCode))
				continue
			}
			if item.Decided() {
				failures = append(failures, fmt.Sprintf("%s: already decided", d.MaterialCode))
				continue
			}
			switch d.Status {
			case StatusApproved, StatusPartiallyApproved, StatusRejected:
			default:
				failures = append(failures, fmt.Sprintf("%s: status %q is not a decision", d.MaterialCode, d.Status))
				continue
			}
			if d.ApprovedQty < 0 || d.RejectedQty < 0 {
				failures = append(failures, fmt.Sprintf("%s: negative quantity", d.MaterialCode))
				continue
			}
			if d.ApprovedQty+d.RejectedQty != item.Quantity {
				failures = append(failures, fmt.Sprintf("%s: approved %.2f plus rejected %.2f must equal requested %.2f",
					d.MaterialCode, d.ApprovedQty, d.RejectedQty, item.Quantity))
			}
		}
		if len(failures) > 0 {
			return &DecisionErrors{Errors: failures}
		}

		for _, d := range decisions {
			item := byCode[d.MaterialCode]
			approved := d.ApprovedQty
			item.ApprovedQty = &approved
			item.RejectedQty = d.RejectedQty
		}
		deriveStatuses(&req)
		for i := range req.Items {
			if err := tx.UpdateRequestItem(ctx, req.Items[i]); err != nil {
				return err
			}
		}
		if err := tx.UpdateRequestStatus(ctx, req.ID, req.Status); err != nil {
			return err
		}
		updated = req
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	s.recordAudit(ctx, actorID, "MATERIAL_REQUEST_DECIDE", requestID, map[string]any{"decisions": len(decisions)})
	return updated, nil
}

// EditItemInput changes one undecided request line, addressed by its
// position in the stored line order.
type EditItemInput struct {
	RequestID    string
	LineIndex    int
	MaterialCode string
	Quantity     float64
	ActorID      int64
}

// EditItem rewrites a request line. Decided lines are frozen.
func (s *Service) EditItem(ctx context.Context, input EditItemInput) (Request, error) {
	if input.Quantity <= 0 {
		return Request{}, fmt.Errorf("quantity must be positive: %w", ErrValidation)
	}
	var updated Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetRequestForUpdate(ctx, input.RequestID)
		if err != nil {
			return err
		}
		if input.LineIndex < 0 || input.LineIndex >= len(req.Items) {
			return ErrItemNotFound
		}
		item := &req.Items[input.LineIndex]
		if item.Decided() {
			return fmt.Errorf("line %d already decided: %w", input.LineIndex, ErrValidation)
		}
		if input.MaterialCode != "" && input.MaterialCode != item.MaterialCode {
			if err := tx.LockMaterial(ctx, input.MaterialCode); err != nil {
				return err
			}
			item.MaterialCode = input.MaterialCode
		}
		item.Quantity = input.Quantity
		deriveStatuses(&req)
		if err := tx.UpdateRequestItem(ctx, *item); err != nil {
			return err
		}
		if err := tx.UpdateRequestStatus(ctx, req.ID, req.Status); err != nil {
			return err
		}
		updated = req
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	s.recordAudit(ctx, input.ActorID, "MATERIAL_REQUEST_EDIT_ITEM", input.RequestID, map[string]any{"line": input.LineIndex})
	return updated, nil
}

// DeleteItem removes an undecided request line.
func (s *Service) DeleteItem(ctx context.Context, requestID string, lineIndex int, actorID int64) (Request, error) {
	var updated Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if lineIndex < 0 || lineIndex >= len(req.Items) {
			return ErrItemNotFound
		}
		item := req.Items[lineIndex]
		if item.Decided() {
			return fmt.Errorf("line %d already decided: %w", lineIndex, ErrValidation)
		}
		if err := tx.DeleteRequestItem(ctx, item.ID); err != nil {
			return err
		}
		req.Items = append(req.Items[:lineIndex], req.Items[lineIndex+1:]...)
		deriveStatuses(&req)
		if err := tx.UpdateRequestStatus(ctx, req.ID, req.Status); err != nil {
			return err
		}
		updated = req
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	s.recordAudit(ctx, actorID, "MATERIAL_REQUEST_DELETE_ITEM", requestID, map[string]any{"line": lineIndex})
	return updated, nil
}

// GetRequest returns one request.
func (s *Service) GetRequest(ctx context.Context, requestID string) (Request, error) {
	return s.repo.GetRequest(ctx, requestID)
}

// ListRequests returns a project's requests.
func (s *Service) ListRequests(ctx context.Context, projectID int64) ([]Request, error) {
	return s.repo.ListRequests(ctx, projectID)
}

// OutstandingApproved returns approved-but-unreceived quantity for one
// material across the project.
func (s *Service) OutstandingApproved(ctx context.Context, projectID int64, materialCode string) (float64, error) {
	return s.repo.OutstandingApproved(ctx, projectID, materialCode)
}

// ReceiptLineInput is one received material line.
type ReceiptLineInput struct {
	MaterialCode string
	Quantity     float64
}

// CreateReceiptInput describes a delivery arriving on site.
type CreateReceiptInput struct {
	ProjectID    int64
	SupervisorID int64
	Date         time.Time
	Items        []ReceiptLineInput
	ActorID      int64
}

// CreateReceipt records a delivery and allocates each line against the
// project's outstanding approved request lines, oldest request first,
// line order within a request. Quantity beyond all outstanding approval
// is kept on the receipt line as unallocated; it still counts toward
// project availability. Lines whose material has nothing outstanding at
// all are skipped.
func (s *Service) CreateReceipt(ctx context.Context, input CreateReceiptInput) (Receipt, error) {
	if input.ProjectID <= 0 || input.SupervisorID <= 0 {
		return Receipt{}, fmt.Errorf("project and supervisor required: %w", ErrValidation)
	}
	if len(input.Items) == 0 {
		return Receipt{}, fmt.Errorf("at least one line required: %w", ErrValidation)
	}
	for _, line := range input.Items {
		if line.MaterialCode == "" || line.Quantity <= 0 {
			return Receipt{}, fmt.Errorf("every line needs a material and a positive quantity: %w", ErrValidation)
		}
	}
	if input.Date.IsZero() {
		input.Date = time.Now().UTC().Truncate(24 * time.Hour)
	}

	receiptID, err := s.seq.NextID(ctx, prefixReceipt)
	if err != nil {
		return Receipt{}, err
	}
	receipt := Receipt{
		ReceiptID:    receiptID,
		ProjectID:    input.ProjectID,
		SupervisorID: input.SupervisorID,
		Date:         input.Date,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		touched := make(map[int64]*Request)
		var accepted []ReceiptItem

		for _, line := range input.Items {
			if err := tx.LockMaterial(ctx, line.MaterialCode); err != nil {
				return err
			}
			outstanding, err := tx.ListOutstandingForUpdate(ctx, input.ProjectID, line.MaterialCode)
			if err != nil {
				return err
			}
			remaining := line.Quantity
			allocatedAny := false
			for ri := range outstanding {
				req := outstanding[ri]
				kept, ok := touched[req.ID]
				if !ok {
					clone := req
					touched[req.ID] = &clone
					kept = &clone
				}
				for ii := range kept.Items {
					if remaining <= 0 {
						break
					}
					item := &kept.Items[ii]
					if item.MaterialCode != line.MaterialCode {
						continue
					}
					pending := item.PendingQty()
					if pending <= 0 {
						continue
					}
					take := pending
					if remaining < take {
						take = remaining
					}
					item.ReceivedQty += take
					remaining -= take
					allocatedAny = true
				}
				if remaining <= 0 {
					break
				}
			}
			if !allocatedAny {
				// Nothing outstanding for this material; the line is
				// dropped rather than failing the whole delivery.
				s.logger.WarnContext(ctx, "receipt line skipped, nothing outstanding",
					slog.String("material", line.MaterialCode),
					slog.Int64("project", input.ProjectID))
				continue
			}
			accepted = append(accepted, ReceiptItem{
				MaterialCode: line.MaterialCode,
				Quantity:     line.Quantity,
				Unallocated:  remaining,
			})
		}
		if len(accepted) == 0 {
			return fmt.Errorf("no line matches an outstanding approved request: %w", ErrValidation)
		}

		rowID, err := tx.InsertReceipt(ctx, receipt)
		if err != nil {
			return err
		}
		receipt.ID = rowID
		for _, item := range accepted {
			if err := tx.InsertReceiptItem(ctx, rowID, item); err != nil {
				return err
			}
			if err := tx.ApplyMaterialStockDelta(ctx, item.MaterialCode, item.Quantity, "MATERIAL_RECEIPT", receiptID); err != nil {
				return err
			}
		}
		receipt.Items = accepted

		for _, req := range touched {
			deriveStatuses(req)
			for i := range req.Items {
				if err := tx.UpdateRequestItem(ctx, req.Items[i]); err != nil {
					return err
				}
			}
			if err := tx.UpdateRequestStatus(ctx, req.ID, req.Status); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	s.bumpInventory(ctx)
	s.recordAudit(ctx, input.ActorID, "MATERIAL_RECEIPT_CREATE", receiptID, map[string]any{"project": input.ProjectID, "lines": len(receipt.Items)})
	return receipt, nil
}

// ListReceipts returns a project's receipts.
func (s *Service) ListReceipts(ctx context.Context, projectID int64) ([]Receipt, error) {
	return s.repo.ListReceipts(ctx, projectID)
}

// UsageLineInput is one consumed material line.
type UsageLineInput struct {
	MaterialCode string
	Quantity     float64
}

// CreateUsageInput describes materials consumed on site for one date.
type CreateUsageInput struct {
	ProjectID    int64
	SupervisorID int64
	Date         time.Time
	Items        []UsageLineInput
	ActorID      int64
}

// CreateUsage records consumption against project availability. A
// project holds at most one usage record per date; further entries for
// the same date merge into it, adding to an existing line when the
// material repeats. Every line is checked against received-minus-used
// availability under a per-material lock.
func (s *Service) CreateUsage(ctx context.Context, input CreateUsageInput) (Usage, error) {
	if input.ProjectID <= 0 || input.SupervisorID <= 0 {
		return Usage{}, fmt.Errorf("project and supervisor required: %w", ErrValidation)
	}
	if len(input.Items) == 0 {
		return Usage{}, fmt.Errorf("at least one line required: %w", ErrValidation)
	}
	for _, line := range input.Items {
		if line.MaterialCode == "" || line.Quantity <= 0 {
			return Usage{}, fmt.Errorf("every line needs a material and a positive quantity: %w", ErrValidation)
		}
	}
	if input.Date.IsZero() {
		input.Date = time.Now().UTC()
	}
	day := input.Date.UTC().Truncate(24 * time.Hour)

	// A material may repeat across lines; the availability check runs
	// against the per-material total, not each line alone.
	totals := map[string]float64{}
	var codes []string
	for _, line := range input.Items {
		if _, seen := totals[line.MaterialCode]; !seen {
			codes = append(codes, line.MaterialCode)
		}
		totals[line.MaterialCode] += line.Quantity
	}

	var result Usage
	var createdID string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, code := range codes {
			if err := tx.LockMaterial(ctx, code); err != nil {
				return err
			}
			available, err := tx.ProjectAvailability(ctx, input.ProjectID, code)
			if err != nil {
				return err
			}
			if totals[code] > available {
				return fmt.Errorf("%w: %s has %.2f available, need %.2f",
					ErrInsufficientStock, code, available, totals[code])
			}
		}

		usage, err := tx.GetUsageByProjectDateForUpdate(ctx, input.ProjectID, day)
		switch {
		case errors.Is(err, ErrUsageNotFound):
			usageID, seqErr := s.seq.NextID(ctx, prefixUsage)
			if seqErr != nil {
				return seqErr
			}
			createdID = usageID
			usage = Usage{
				UsageID:      usageID,
				ProjectID:    input.ProjectID,
				SupervisorID: input.SupervisorID,
				Date:         day,
			}
			usage.ID, err = tx.InsertUsage(ctx, usage)
			if err != nil {
				return err
			}
		case err != nil:
			return err
		}

		for _, line := range input.Items {
			merged := false
			for i := range usage.Items {
				if usage.Items[i].MaterialCode != line.MaterialCode {
					continue
				}
				usage.Items[i].Quantity += line.Quantity
				if err := tx.UpdateUsageItemQty(ctx, usage.Items[i].ID, usage.Items[i].Quantity); err != nil {
					return err
				}
				merged = true
				break
			}
			if !merged {
				item := UsageItem{MaterialCode: line.MaterialCode, Quantity: line.Quantity}
				item.ID, err = tx.InsertUsageItem(ctx, usage.ID, item)
				if err != nil {
					return err
				}
				usage.Items = append(usage.Items, item)
			}
			if err := tx.ApplyMaterialStockDelta(ctx, line.MaterialCode, -line.Quantity, "MATERIAL_USAGE", usage.UsageID); err != nil {
				return err
			}
		}
		result = usage
		return nil
	})
	if err != nil {
		return Usage{}, err
	}
	s.bumpInventory(ctx)
	action := "MATERIAL_USAGE_APPEND"
	if createdID != "" {
		action = "MATERIAL_USAGE_CREATE"
	}
	s.recordAudit(ctx, input.ActorID, action, result.UsageID, map[string]any{"project": input.ProjectID, "lines": len(input.Items)})
	return result, nil
}

// GetUsage returns one usage record.
func (s *Service) GetUsage(ctx context.Context, usageID string) (Usage, error) {
	return s.repo.GetUsage(ctx, usageID)
}

// ListUsages returns a project's usage records, optionally for one date.
func (s *Service) ListUsages(ctx context.Context, projectID int64, date *time.Time) ([]Usage, error) {
	return s.repo.ListUsages(ctx, projectID, date)
}

// EditUsageItemQty changes a consumed quantity. Increases are checked
// against availability; the global counter follows the difference.
func (s *Service) EditUsageItemQty(ctx context.Context, usageID string, itemID int64, qty float64, actorID int64) (Usage, error) {
	if qty <= 0 {
		return Usage{}, fmt.Errorf("quantity must be positive: %w", ErrValidation)
	}
	var updated Usage
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		usage, err := tx.GetUsageForUpdate(ctx, usageID)
		if err != nil {
			return err
		}
		var item *UsageItem
		for i := range usage.Items {
			if usage.Items[i].ID == itemID {
				item = &usage.Items[i]
				break
			}
		}
		if item == nil {
			return ErrItemNotFound
		}
		delta := qty - item.Quantity
		if delta > 0 {
			if err := tx.LockMaterial(ctx, item.MaterialCode); err != nil {
				return err
			}
			available, err := tx.ProjectAvailability(ctx, usage.ProjectID, item.MaterialCode)
			if err != nil {
				return err
			}
			if delta > available {
				return fmt.Errorf("%w: %s has %.2f available, need %.2f more",
					ErrInsufficientStock, item.MaterialCode, available, delta)
			}
		}
		if err := tx.UpdateUsageItemQty(ctx, itemID, qty); err != nil {
			return err
		}
		if delta != 0 {
			if err := tx.ApplyMaterialStockDelta(ctx, item.MaterialCode, -delta, "MATERIAL_USAGE_EDIT", usageID); err != nil {
				return err
			}
		}
		item.Quantity = qty
		updated = usage
		return nil
	})
	if err != nil {
		return Usage{}, err
	}
	s.bumpInventory(ctx)
	s.recordAudit(ctx, actorID, "MATERIAL_USAGE_EDIT_ITEM", usageID, map[string]any{"item": itemID, "qty": qty})
	return updated, nil
}

// DeleteUsageItem removes a consumed line and returns its quantity to
// project availability.
func (s *Service) DeleteUsageItem(ctx context.Context, usageID string, itemID int64, actorID int64) (Usage, error) {
	var updated Usage
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		usage, err := tx.GetUsageForUpdate(ctx, usageID)
		if err != nil {
			return err
		}
		idx := -1
		for i := range usage.Items {
			if usage.Items[i].ID == itemID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ErrItemNotFound
		}
		item := usage.Items[idx]
		if err := tx.DeleteUsageItem(ctx, itemID); err != nil {
			return err
		}
		if err := tx.ApplyMaterialStockDelta(ctx, item.MaterialCode, item.Quantity, "MATERIAL_USAGE_DELETE", usageID); err != nil {
			return err
		}
		usage.Items = append(usage.Items[:idx], usage.Items[idx+1:]...)
		updated = usage
		return nil
	})
	if err != nil {
		return Usage{}, err
	}
	s.bumpInventory(ctx)
	s.recordAudit(ctx, actorID, "MATERIAL_USAGE_DELETE_ITEM", usageID, map[string]any{"item": itemID})
	return updated, nil
}

// ProjectInventory returns received-minus-used per material, cached.
func (s *Service) ProjectInventory(ctx context.Context, projectID int64) ([]InventoryEntry, error) {
	return s.cache.FetchInventory(ctx, projectID, func(ctx context.Context) ([]InventoryEntry, error) {
		return s.repo.ProjectInventory(ctx, projectID)
	})
}

// ProjectAvailable returns received-minus-used for one material.
func (s *Service) ProjectAvailable(ctx context.Context, projectID int64, materialCode string) (float64, error) {
	return s.repo.ProjectAvailability(ctx, projectID, materialCode)
}

// AddComment attaches a note to a usage line.
func (s *Service) AddComment(ctx context.Context, usageItemID, authorID int64, text string) (UsageComment, error) {
	if text == "" {
		return UsageComment{}, fmt.Errorf("comment text required: %w", ErrValidation)
	}
	var created UsageComment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertComment(ctx, UsageComment{UsageItemID: usageItemID, AuthorID: authorID, Text: text})
		return err
	})
	return created, err
}

// UpdateComment rewrites a comment's text.
func (s *Service) UpdateComment(ctx context.Context, commentID int64, text string) error {
	if text == "" {
		return fmt.Errorf("comment text required: %w", ErrValidation)
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateComment(ctx, commentID, text)
	})
}

// DeleteComment removes a comment.
func (s *Service) DeleteComment(ctx context.Context, commentID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteComment(ctx, commentID)
	})
}

// ListComments returns comments on a usage line, oldest first.
func (s *Service) ListComments(ctx context.Context, usageItemID int64) ([]UsageComment, error) {
	return s.repo.ListComments(ctx, usageItemID)
}

func (s *Service) bumpInventory(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.WarnContext(ctx, "inventory cache bump failed", slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "materials",
		EntityID: entityID,
		Meta:     meta,
	}); err != nil {
		s.logger.WarnContext(ctx, "audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
