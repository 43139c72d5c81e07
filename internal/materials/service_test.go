package materials

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mason-erp/mason-erp/internal/shared"
)

type memoryMatRepo struct {
	requests  []*Request
	receipts  []*Receipt
	usages    []*Usage
	comments  map[int64]*UsageComment
	materials map[string]float64
	nextID    int64
	baseTime  time.Time
}

type memoryMatTx struct {
	repo *memoryMatRepo
}

func newMemoryMatRepo(materials ...string) *memoryMatRepo {
	repo := &memoryMatRepo{
		comments:  make(map[int64]*UsageComment),
		materials: make(map[string]float64),
		baseTime:  time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	for _, code := range materials {
		repo.materials[code] = 0
	}
	return repo
}

func (r *memoryMatRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryMatRepo) now() time.Time {
	return r.baseTime.Add(time.Duration(r.nextID) * time.Second)
}

func cloneRequest(req *Request) Request {
	out := *req
	out.Items = append([]RequestItem(nil), req.Items...)
	for i := range out.Items {
		if req.Items[i].ApprovedQty != nil {
			v := *req.Items[i].ApprovedQty
			out.Items[i].ApprovedQty = &v
		}
	}
	return out
}

func cloneUsage(usage *Usage) Usage {
	out := *usage
	out.Items = append([]UsageItem(nil), usage.Items...)
	return out
}

func (r *memoryMatRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryMatTx{repo: r})
}

func (r *memoryMatRepo) findRequest(requestID string) *Request {
	for _, req := range r.requests {
		if req.RequestID == requestID {
			return req
		}
	}
	return nil
}

func (r *memoryMatRepo) GetRequest(ctx context.Context, requestID string) (Request, error) {
	req := r.findRequest(requestID)
	if req == nil {
		return Request{}, ErrRequestNotFound
	}
	return cloneRequest(req), nil
}

func (r *memoryMatRepo) ListRequests(ctx context.Context, projectID int64) ([]Request, error) {
	var out []Request
	for _, req := range r.requests {
		if req.ProjectID == projectID {
			out = append(out, cloneRequest(req))
		}
	}
	return out, nil
}

func (r *memoryMatRepo) OutstandingApproved(ctx context.Context, projectID int64, code string) (float64, error) {
	var total float64
	for _, req := range r.requests {
		if req.ProjectID != projectID {
			continue
		}
		for _, item := range req.Items {
			if item.MaterialCode != code {
				continue
			}
			if item.ApprovedQty != nil && item.Status != StatusRejected {
				total += item.PendingQty()
			}
		}
	}
	return total, nil
}

func (r *memoryMatRepo) ListReceipts(ctx context.Context, projectID int64) ([]Receipt, error) {
	var out []Receipt
	for _, receipt := range r.receipts {
		if receipt.ProjectID == projectID {
			copied := *receipt
			copied.Items = append([]ReceiptItem(nil), receipt.Items...)
			out = append(out, copied)
		}
	}
	return out, nil
}

func (r *memoryMatRepo) findUsage(usageID string) *Usage {
	for _, usage := range r.usages {
		if usage.UsageID == usageID {
			return usage
		}
	}
	return nil
}

func (r *memoryMatRepo) GetUsage(ctx context.Context, usageID string) (Usage, error) {
	usage := r.findUsage(usageID)
	if usage == nil {
		return Usage{}, ErrUsageNotFound
	}
	return cloneUsage(usage), nil
}

func (r *memoryMatRepo) ListUsages(ctx context.Context, projectID int64, date *time.Time) ([]Usage, error) {
	var out []Usage
	for _, usage := range r.usages {
		if usage.ProjectID != projectID {
			continue
		}
		if date != nil && !usage.Date.Equal(date.Truncate(24*time.Hour)) {
			continue
		}
		out = append(out, cloneUsage(usage))
	}
	return out, nil
}

func (r *memoryMatRepo) availability(projectID int64, code string) float64 {
	var total float64
	for _, receipt := range r.receipts {
		if receipt.ProjectID != projectID {
			continue
		}
		for _, item := range receipt.Items {
			if item.MaterialCode == code {
				total += item.Quantity
			}
		}
	}
	for _, usage := range r.usages {
		if usage.ProjectID != projectID {
			continue
		}
		for _, item := range usage.Items {
			if item.MaterialCode == code {
				total -= item.Quantity
			}
		}
	}
	return total
}

func (r *memoryMatRepo) ProjectInventory(ctx context.Context, projectID int64) ([]InventoryEntry, error) {
	totals := make(map[string]float64)
	for _, receipt := range r.receipts {
		if receipt.ProjectID != projectID {
			continue
		}
		for _, item := range receipt.Items {
			totals[item.MaterialCode] += item.Quantity
		}
	}
	for _, usage := range r.usages {
		if usage.ProjectID != projectID {
			continue
		}
		for _, item := range usage.Items {
			totals[item.MaterialCode] -= item.Quantity
		}
	}
	var out []InventoryEntry
	for code, qty := range totals {
		if qty > 0 {
			out = append(out, InventoryEntry{MaterialCode: code, Quantity: qty})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MaterialCode < out[j].MaterialCode })
	return out, nil
}

func (r *memoryMatRepo) ProjectAvailability(ctx context.Context, projectID int64, code string) (float64, error) {
	return r.availability(projectID, code), nil
}

func (r *memoryMatRepo) ListComments(ctx context.Context, usageItemID int64) ([]UsageComment, error) {
	var out []UsageComment
	for _, c := range r.comments {
		if c.UsageItemID == usageItemID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memoryMatTx) InsertRequest(ctx context.Context, req Request) (int64, error) {
	req.ID = tx.repo.id()
	req.CreatedAt = tx.repo.now()
	stored := req
	stored.Items = nil
	tx.repo.requests = append(tx.repo.requests, &stored)
	return stored.ID, nil
}

func (tx *memoryMatTx) InsertRequestItem(ctx context.Context, item RequestItem) (int64, error) {
	for _, req := range tx.repo.requests {
		if req.ID == item.RequestRowID {
			item.ID = tx.repo.id()
			req.Items = append(req.Items, item)
			return item.ID, nil
		}
	}
	return 0, ErrRequestNotFound
}

func (tx *memoryMatTx) UpdateRequestItem(ctx context.Context, item RequestItem) error {
	for _, req := range tx.repo.requests {
		for i := range req.Items {
			if req.Items[i].ID == item.ID {
				req.Items[i] = item
				return nil
			}
		}
	}
	return ErrItemNotFound
}

func (tx *memoryMatTx) DeleteRequestItem(ctx context.Context, itemID int64) error {
	for _, req := range tx.repo.requests {
		for i := range req.Items {
			if req.Items[i].ID == itemID {
				req.Items = append(req.Items[:i], req.Items[i+1:]...)
				return nil
			}
		}
	}
	return ErrItemNotFound
}

func (tx *memoryMatTx) UpdateRequestStatus(ctx context.Context, requestRowID int64, status ItemStatus) error {
	for _, req := range tx.repo.requests {
		if req.ID == requestRowID {
			req.Status = status
			return nil
		}
	}
	return ErrRequestNotFound
}

func (tx *memoryMatTx) GetRequestForUpdate(ctx context.Context, requestID string) (Request, error) {
	return tx.repo.GetRequest(ctx, requestID)
}

func (tx *memoryMatTx) ListOutstandingForUpdate(ctx context.Context, projectID int64, code string) ([]Request, error) {
	var out []Request
	for _, req := range tx.repo.requests {
		if req.ProjectID != projectID {
			continue
		}
		for _, item := range req.Items {
			if item.MaterialCode == code && (item.Status == StatusApproved || item.Status == StatusPartiallyApproved) {
				out = append(out, cloneRequest(req))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (tx *memoryMatTx) InsertReceipt(ctx context.Context, receipt Receipt) (int64, error) {
	receipt.ID = tx.repo.id()
	receipt.CreatedAt = tx.repo.now()
	stored := receipt
	stored.Items = nil
	tx.repo.receipts = append(tx.repo.receipts, &stored)
	return stored.ID, nil
}

func (tx *memoryMatTx) InsertReceiptItem(ctx context.Context, receiptRowID int64, item ReceiptItem) error {
	for _, receipt := range tx.repo.receipts {
		if receipt.ID == receiptRowID {
			item.ID = tx.repo.id()
			receipt.Items = append(receipt.Items, item)
			return nil
		}
	}
	return ErrItemNotFound
}

func (tx *memoryMatTx) InsertUsage(ctx context.Context, usage Usage) (int64, error) {
	usage.ID = tx.repo.id()
	usage.CreatedAt = tx.repo.now()
	stored := usage
	stored.Items = nil
	tx.repo.usages = append(tx.repo.usages, &stored)
	return stored.ID, nil
}

func (tx *memoryMatTx) GetUsageByProjectDateForUpdate(ctx context.Context, projectID int64, date time.Time) (Usage, error) {
	for _, usage := range tx.repo.usages {
		if usage.ProjectID == projectID && usage.Date.Equal(date) {
			return cloneUsage(usage), nil
		}
	}
	return Usage{}, ErrUsageNotFound
}

func (tx *memoryMatTx) GetUsageForUpdate(ctx context.Context, usageID string) (Usage, error) {
	return tx.repo.GetUsage(ctx, usageID)
}

func (tx *memoryMatTx) InsertUsageItem(ctx context.Context, usageRowID int64, item UsageItem) (int64, error) {
	for _, usage := range tx.repo.usages {
		if usage.ID == usageRowID {
			item.ID = tx.repo.id()
			usage.Items = append(usage.Items, item)
			return item.ID, nil
		}
	}
	return 0, ErrUsageNotFound
}

func (tx *memoryMatTx) UpdateUsageItemQty(ctx context.Context, itemID int64, qty float64) error {
	for _, usage := range tx.repo.usages {
		for i := range usage.Items {
			if usage.Items[i].ID == itemID {
				usage.Items[i].Quantity = qty
				return nil
			}
		}
	}
	return ErrItemNotFound
}

func (tx *memoryMatTx) DeleteUsageItem(ctx context.Context, itemID int64) error {
	for _, usage := range tx.repo.usages {
		for i := range usage.Items {
			if usage.Items[i].ID == itemID {
				usage.Items = append(usage.Items[:i], usage.Items[i+1:]...)
				return nil
			}
		}
	}
	return ErrItemNotFound
}

func (tx *memoryMatTx) LockMaterial(ctx context.Context, code string) error {
	if _, ok := tx.repo.materials[code]; !ok {
		return ErrMaterialNotFound
	}
	return nil
}

func (tx *memoryMatTx) ProjectAvailability(ctx context.Context, projectID int64, code string) (float64, error) {
	return tx.repo.availability(projectID, code), nil
}

func (tx *memoryMatTx) ApplyMaterialStockDelta(ctx context.Context, code string, delta float64, refModule, refID string) error {
	if _, ok := tx.repo.materials[code]; !ok {
		return ErrMaterialNotFound
	}
	tx.repo.materials[code] += delta
	return nil
}

func (tx *memoryMatTx) InsertComment(ctx context.Context, c UsageComment) (UsageComment, error) {
	c.ID = tx.repo.id()
	c.CreatedAt = tx.repo.now()
	c.UpdatedAt = c.CreatedAt
	tx.repo.comments[c.ID] = &c
	return c, nil
}

func (tx *memoryMatTx) UpdateComment(ctx context.Context, commentID int64, text string) error {
	c, ok := tx.repo.comments[commentID]
	if !ok {
		return ErrCommentNotFound
	}
	c.Text = text
	c.UpdatedAt = tx.repo.now()
	return nil
}

func (tx *memoryMatTx) DeleteComment(ctx context.Context, commentID int64) error {
	if _, ok := tx.repo.comments[commentID]; !ok {
		return ErrCommentNotFound
	}
	delete(tx.repo.comments, commentID)
	return nil
}

type seqFake struct {
	counters map[string]int64
}

func (s *seqFake) NextID(ctx context.Context, prefix string) (string, error) {
	if s.counters == nil {
		s.counters = make(map[string]int64)
	}
	s.counters[prefix]++
	return shared.FormatID(prefix, s.counters[prefix]), nil
}

func newTestService(materials ...string) (*Service, *memoryMatRepo) {
	repo := newMemoryMatRepo(materials...)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, &seqFake{}, nil, nil, logger), repo
}

func createDecidedRequest(t *testing.T, svc *Service, projectID int64, code string, qty, approved float64) Request {
	t.Helper()
	req, err := svc.CreateRequest(context.Background(), CreateRequestInput{
		ProjectID:    projectID,
		SupervisorID: 1,
		Items:        []RequestLineInput{{MaterialCode: code, Quantity: qty}},
	})
	require.NoError(t, err)
	status := StatusApproved
	switch {
	case approved == 0:
		status = StatusRejected
	case approved < qty:
		status = StatusPartiallyApproved
	}
	req, err = svc.DecideItems(context.Background(), req.RequestID, []Decision{
		{MaterialCode: code, ApprovedQty: approved, RejectedQty: qty - approved, Status: status},
	}, 1)
	require.NoError(t, err)
	return req
}

func TestCreateRequestValidation(t *testing.T) {
	svc, _ := newTestService("CEM")
	ctx := context.Background()

	_, err := svc.CreateRequest(ctx, CreateRequestInput{SupervisorID: 1, Items: []RequestLineInput{{MaterialCode: "CEM", Quantity: 1}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateRequest(ctx, CreateRequestInput{ProjectID: 1, SupervisorID: 1})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateRequest(ctx, CreateRequestInput{ProjectID: 1, SupervisorID: 1, Items: []RequestLineInput{{MaterialCode: "CEM", Quantity: -2}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateRequest(ctx, CreateRequestInput{ProjectID: 1, SupervisorID: 1, Items: []RequestLineInput{{MaterialCode: "NOPE", Quantity: 2}}})
	require.ErrorIs(t, err, shared.ErrNotFound)

	req, err := svc.CreateRequest(ctx, CreateRequestInput{ProjectID: 1, SupervisorID: 1, Items: []RequestLineInput{{MaterialCode: "CEM", Quantity: 2}}})
	require.NoError(t, err)
	require.Equal(t, "MR001", req.RequestID)
	require.Equal(t, StatusPending, req.Status)
	require.Len(t, req.Items, 1)
	require.Equal(t, StatusPending, req.Items[0].Status)
}

func TestDecideItemsAllOrNothing(t *testing.T) {
	svc, repo := newTestService("CEM", "SAND")
	ctx := context.Background()

	req, err := svc.CreateRequest(ctx, CreateRequestInput{
		ProjectID:    1,
		SupervisorID: 1,
		Items: []RequestLineInput{
			{MaterialCode: "CEM", Quantity: 10},
			{MaterialCode: "SAND", Quantity: 6},
		},
	})
	require.NoError(t, err)

	_, err = svc.DecideItems(ctx, req.RequestID, []Decision{
		{MaterialCode: "CEM", ApprovedQty: 10, RejectedQty: 0, Status: StatusApproved},
		{MaterialCode: "SAND", ApprovedQty: 4, RejectedQty: 1, Status: StatusPartiallyApproved},
	}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)
	var batch *DecisionErrors
	require.ErrorAs(t, err, &batch)
	require.Len(t, batch.Errors, 1)

	// The valid CEM decision must not have been applied.
	stored, err := repo.GetRequest(ctx, req.RequestID)
	require.NoError(t, err)
	for _, item := range stored.Items {
		require.False(t, item.Decided())
		require.Equal(t, StatusPending, item.Status)
	}

	updated, err := svc.DecideItems(ctx, req.RequestID, []Decision{
		{MaterialCode: "CEM", ApprovedQty: 10, RejectedQty: 0, Status: StatusApproved},
		{MaterialCode: "SAND", ApprovedQty: 0, RejectedQty: 6, Status: StatusRejected},
	}, 1)
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyApproved, updated.Status)
	require.Equal(t, StatusApproved, updated.Items[0].Status)
	require.Equal(t, StatusRejected, updated.Items[1].Status)

	// Decisions are final.
	_, err = svc.DecideItems(ctx, req.RequestID, []Decision{
		{MaterialCode: "CEM", ApprovedQty: 5, RejectedQty: 5, Status: StatusPartiallyApproved},
	}, 1)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDecideItemsRejectsUnknownStatus(t *testing.T) {
	svc, repo := newTestService("CEM")
	ctx := context.Background()

	req, err := svc.CreateRequest(ctx, CreateRequestInput{
		ProjectID:    1,
		SupervisorID: 1,
		Items:        []RequestLineInput{{MaterialCode: "CEM", Quantity: 10}},
	})
	require.NoError(t, err)

	for _, status := range []ItemStatus{StatusPending, StatusReceived, "Accepted", ""} {
		_, err = svc.DecideItems(ctx, req.RequestID, []Decision{
			{MaterialCode: "CEM", ApprovedQty: 10, RejectedQty: 0, Status: status},
		}, 1)
		require.ErrorIs(t, err, shared.ErrValidation)
	}

	stored, err := repo.GetRequest(ctx, req.RequestID)
	require.NoError(t, err)
	require.False(t, stored.Items[0].Decided())
}

func TestEditAndDeleteItemFrozenAfterDecision(t *testing.T) {
	svc, _ := newTestService("CEM")
	ctx := context.Background()

	req, err := svc.CreateRequest(ctx, CreateRequestInput{
		ProjectID:    1,
		SupervisorID: 1,
		Items:        []RequestLineInput{{MaterialCode: "CEM", Quantity: 10}},
	})
	require.NoError(t, err)

	updated, err := svc.EditItem(ctx, EditItemInput{RequestID: req.RequestID, LineIndex: 0, Quantity: 8})
	require.NoError(t, err)
	require.Equal(t, 8.0, updated.Items[0].Quantity)

	_, err = svc.DecideItems(ctx, req.RequestID, []Decision{{MaterialCode: "CEM", ApprovedQty: 8, RejectedQty: 0, Status: StatusApproved}}, 1)
	require.NoError(t, err)

	_, err = svc.EditItem(ctx, EditItemInput{RequestID: req.RequestID, LineIndex: 0, Quantity: 5})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.DeleteItem(ctx, req.RequestID, 0, 1)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.EditItem(ctx, EditItemInput{RequestID: req.RequestID, LineIndex: 3, Quantity: 5})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReceiptAllocatesOldestRequestFirst(t *testing.T) {
	svc, repo := newTestService("CEM")
	ctx := context.Background()

	first := createDecidedRequest(t, svc, 1, "CEM", 5, 5)
	second := createDecidedRequest(t, svc, 1, "CEM", 4, 4)

	receipt, err := svc.CreateReceipt(ctx, CreateReceiptInput{
		ProjectID:    1,
		SupervisorID: 1,
		Items:        []ReceiptLineInput{{MaterialCode: "CEM", Quantity: 6}},
	})
	require.NoError(t, err)
	require.Equal(t, "RC001", receipt.ReceiptID)
	require.Equal(t, 0.0, receipt.Items[0].Unallocated)

	got, err := repo.GetRequest(ctx, first.RequestID)
	require.NoError(t, err)
	require.Equal(t, 5.0, got.Items[0].ReceivedQty)
	require.Equal(t, StatusReceived, got.Status)

	got, err = repo.GetRequest(ctx, second.RequestID)
	require.NoError(t, err)
	require.Equal(t, 1.0, got.Items[0].ReceivedQty)
	require.Equal(t, StatusPartiallyReceived, got.Status)

	require.Equal(t, 6.0, repo.materials["CEM"])

	outstanding, err := svc.OutstandingApproved(ctx, 1, "CEM")
	require.NoError(t, err)
	require.Equal(t, 3.0, outstanding)
}

func TestReceiptSurplusStaysUnallocated(t *testing.T) {
	svc, repo := newTestService("CEM")
	ctx := context.Background()

	createDecidedRequest(t, svc, 1, "CEM", 5, 5)

	receipt, err := svc.CreateReceipt(ctx, CreateReceiptInput{
		ProjectID:    1,
		SupervisorID: 1,
		Items:        []ReceiptLineInput{{MaterialCode: "CEM", Quantity: 8}},
	})
	require.NoError(t, err)
	require.Equal(t, 3.0, receipt.Items[0].Unallocated)

	// The surplus still counts toward project availability.
	available, err := svc.ProjectAvailable(ctx, 1, "CEM")
	require.NoError(t, err)
	require.Equal(t, 8.0, available)
	require.Equal(t, 8.0, repo.materials["CEM"])
}

func TestReceiptSkipsLinesWithNothingOutstanding(t *testing.T) {
	svc, _ := newTestService("CEM", "SAND")
	ctx := context.Background()

	createDecidedRequest(t, svc, 1, "CEM", 5, 5)

	receipt, err := svc.CreateReceipt(ctx, CreateReceiptInput{
		ProjectID:    1,
		SupervisorID: 1,
		Items: []ReceiptLineInput{
			{MaterialCode: "CEM", Quantity: 5},
			{MaterialCode: "SAND", Quantity: 9},
		},
	})
	require.NoError(t, err)
	require.Len(t, receipt.Items, 1)
	require.Equal(t, "CEM", receipt.Items[0].MaterialCode)

	_, err = svc.CreateReceipt(ctx, CreateReceiptInput{
		ProjectID:    1,
		SupervisorID: 1,
		Items:        []ReceiptLineInput{{MaterialCode: "SAND", Quantity: 2}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUsageChecksAvailability(t *testing.T) {
	svc, repo := newTestService("CEM")
	ctx := context.Background()

	createDecidedRequest(t, svc, 1, "CEM", 10, 10)
	_, err := svc.CreateReceipt(ctx, CreateReceiptInput{
		ProjectID:    1,
		SupervisorID: 1,
		Items:        []ReceiptLineInput{{MaterialCode: "CEM", Quantity: 10}},
	})
	require.NoError(t, err)

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	usage, err := svc.CreateUsage(ctx, CreateUsageInput{
		ProjectID:    1,
		SupervisorID: 1,
		Date:         day,
		Items:        []UsageLineInput{{MaterialCode: "CEM", Quantity: 4}},
	})
	require.NoError(t, err)
	require.Equal(t, "MU001", usage.UsageID)

	// Same project and date merges into the existing record and line.
	usage, err = svc.CreateUsage(ctx, CreateUsageInput{
		ProjectID:    1,
		SupervisorID: 1,
		Date:         day,
		Items:        []UsageLineInput{{MaterialCode: "CEM", Quantity: 3}},
	})
	require.NoError(t, err)
	require.Equal(t, "MU001", usage.UsageID)
	require.Len(t, usage.Items, 1)
	require.Equal(t, 7.0, usage.Items[0].Quantity)

	available, err := svc.ProjectAvailable(ctx, 1, "CEM")
	require.NoError(t, err)
	require.Equal(t, 3.0, available)
	require.Equal(t, 3.0, repo.materials["CEM"])

	_, err = svc.CreateUsage(ctx, CreateUsageInput{
		ProjectID:    1,
		SupervisorID: 1,
		Date:         day,
		Items:        []UsageLineInput{{MaterialCode: "CEM", Quantity: 4}},
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
}

func TestUsageRepeatedLineCannotOverdraw(t *testing.T) {
	svc, repo := newTestService("CEM")
	ctx := context.Background()

	createDecidedRequest(t, svc, 1, "CEM", 10, 10)
	_, err := svc.CreateReceipt(ctx, CreateReceiptInput{
		ProjectID:    1,
		SupervisorID: 1,
		Items:        []ReceiptLineInput{{MaterialCode: "CEM", Quantity: 10}},
	})
	require.NoError(t, err)

	// Two lines for the same material are checked as one total.
	_, err = svc.CreateUsage(ctx, CreateUsageInput{
		ProjectID:    1,
		SupervisorID: 1,
		Items: []UsageLineInput{
			{MaterialCode: "CEM", Quantity: 7},
			{MaterialCode: "CEM", Quantity: 7},
		},
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	available, err := svc.ProjectAvailable(ctx, 1, "CEM")
	require.NoError(t, err)
	require.Equal(t, 10.0, available)
	require.Empty(t, repo.usages)

	usage, err := svc.CreateUsage(ctx, CreateUsageInput{
		ProjectID:    1,
		SupervisorID: 1,
		Items: []UsageLineInput{
			{MaterialCode: "CEM", Quantity: 6},
			{MaterialCode: "CEM", Quantity: 4},
		},
	})
	require.NoError(t, err)
	require.Len(t, usage.Items, 1)
	require.Equal(t, 10.0, usage.Items[0].Quantity)
}

func TestUsageEditAndDelete(t *testing.T) {
	svc, repo := newTestService("CEM")
	ctx := context.Background()

	createDecidedRequest(t, svc, 1, "CEM", 10, 10)
	_, err := svc.CreateReceipt(ctx, CreateReceiptInput{
		ProjectID:    1,
		SupervisorID: 1,
		Items:        []ReceiptLineInput{{MaterialCode: "CEM", Quantity: 10}},
	})
	require.NoError(t, err)

	usage, err := svc.CreateUsage(ctx, CreateUsageInput{
		ProjectID:    1,
		SupervisorID: 1,
		Items:        []UsageLineInput{{MaterialCode: "CEM", Quantity: 4}},
	})
	require.NoError(t, err)
	itemID := usage.Items[0].ID

	// Raising usage is limited by what remains available.
	_, err = svc.EditUsageItemQty(ctx, usage.UsageID, itemID, 11, 1)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	updated, err := svc.EditUsageItemQty(ctx, usage.UsageID, itemID, 6, 1)
	require.NoError(t, err)
	require.Equal(t, 6.0, updated.Items[0].Quantity)
	require.Equal(t, 4.0, repo.materials["CEM"])

	updated, err = svc.EditUsageItemQty(ctx, usage.UsageID, itemID, 2, 1)
	require.NoError(t, err)
	require.Equal(t, 2.0, updated.Items[0].Quantity)
	require.Equal(t, 8.0, repo.materials["CEM"])

	updated, err = svc.DeleteUsageItem(ctx, usage.UsageID, itemID, 1)
	require.NoError(t, err)
	require.Empty(t, updated.Items)
	require.Equal(t, 10.0, repo.materials["CEM"])

	available, err := svc.ProjectAvailable(ctx, 1, "CEM")
	require.NoError(t, err)
	require.Equal(t, 10.0, available)
}

func TestUsageComments(t *testing.T) {
	svc, _ := newTestService("CEM")
	ctx := context.Background()

	createDecidedRequest(t, svc, 1, "CEM", 10, 10)
	_, err := svc.CreateReceipt(ctx, CreateReceiptInput{
		ProjectID:    1,
		SupervisorID: 1,
		Items:        []ReceiptLineInput{{MaterialCode: "CEM", Quantity: 10}},
	})
	require.NoError(t, err)
	usage, err := svc.CreateUsage(ctx, CreateUsageInput{
		ProjectID:    1,
		SupervisorID: 1,
		Items:        []UsageLineInput{{MaterialCode: "CEM", Quantity: 2}},
	})
	require.NoError(t, err)
	itemID := usage.Items[0].ID

	_, err = svc.AddComment(ctx, itemID, 7, "")
	require.ErrorIs(t, err, shared.ErrValidation)

	comment, err := svc.AddComment(ctx, itemID, 7, "used on slab pour")
	require.NoError(t, err)
	require.NotZero(t, comment.ID)

	require.NoError(t, svc.UpdateComment(ctx, comment.ID, "used on first floor slab"))
	comments, err := svc.ListComments(ctx, itemID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	require.Equal(t, "used on first floor slab", comments[0].Text)

	require.NoError(t, svc.DeleteComment(ctx, comment.ID))
	require.ErrorIs(t, svc.DeleteComment(ctx, comment.ID), shared.ErrNotFound)
}

func TestProjectInventorySnapshot(t *testing.T) {
	svc, _ := newTestService("CEM", "SAND")
	ctx := context.Background()

	createDecidedRequest(t, svc, 1, "CEM", 10, 10)
	createDecidedRequest(t, svc, 1, "SAND", 5, 5)
	_, err := svc.CreateReceipt(ctx, CreateReceiptInput{
		ProjectID:    1,
		SupervisorID: 1,
		Items: []ReceiptLineInput{
			{MaterialCode: "CEM", Quantity: 10},
			{MaterialCode: "SAND", Quantity: 5},
		},
	})
	require.NoError(t, err)
	_, err = svc.CreateUsage(ctx, CreateUsageInput{
		ProjectID:    1,
		SupervisorID: 1,
		Items:        []UsageLineInput{{MaterialCode: "SAND", Quantity: 5}},
	})
	require.NoError(t, err)

	entries, err := svc.ProjectInventory(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []InventoryEntry{{MaterialCode: "CEM", Quantity: 10}}, entries)
}
