package projects

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mason-erp/mason-erp/internal/materials"
	"github.com/mason-erp/mason-erp/internal/payments"
)

type memoryProjRepo struct {
	nextID     int64
	projects   map[int64]*Project
	workers    []Worker
	workerCats map[string]bool
	attendance map[string]*AttendanceRecord
	messages   []ChatMessage
	progress   map[int64]*ProgressItem
	comments   []ProgressComment
	payCats    map[string]int64
}

func newMemoryProjRepo() *memoryProjRepo {
	return &memoryProjRepo{
		projects:   make(map[int64]*Project),
		workerCats: make(map[string]bool),
		attendance: make(map[string]*AttendanceRecord),
		progress:   make(map[int64]*ProgressItem),
		payCats:    make(map[string]int64),
	}
}

func (m *memoryProjRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func attKey(projectID, workerID int64, date time.Time) string {
	return fmt.Sprintf("%s/%d/%d", date.Format("2006-01-02"), projectID, workerID)
}

func (m *memoryProjRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryProjRepo) CreateProject(_ context.Context, p Project) (int64, error) {
	p.ID = m.id()
	p.CreatedAt = time.Now()
	m.projects[p.ID] = &p
	return p.ID, nil
}

func (m *memoryProjRepo) GetProject(_ context.Context, id int64) (Project, error) {
	p, ok := m.projects[id]
	if !ok {
		return Project{}, ErrProjectNotFound
	}
	return *p, nil
}

func (m *memoryProjRepo) ListProjects(_ context.Context) ([]Project, error) {
	out := make([]Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memoryProjRepo) SetSupervisor(_ context.Context, projectID, supervisorID int64) error {
	p, ok := m.projects[projectID]
	if !ok {
		return ErrProjectNotFound
	}
	p.SupervisorID = supervisorID
	return nil
}

func (m *memoryProjRepo) CreateWorker(_ context.Context, w Worker) (int64, error) {
	w.ID = m.id()
	m.workers = append(m.workers, w)
	return w.ID, nil
}

func (m *memoryProjRepo) ListWorkers(_ context.Context, projectID int64) ([]Worker, error) {
	var out []Worker
	for _, w := range m.workers {
		if w.ProjectID == projectID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *memoryProjRepo) CreateWorkerCategory(_ context.Context, name string) (int64, error) {
	if m.workerCats[name] {
		return 0, ErrDuplicateCategory
	}
	m.workerCats[name] = true
	return m.id(), nil
}

func (m *memoryProjRepo) ListWorkerCategories(_ context.Context) ([]string, error) {
	out := make([]string, 0, len(m.workerCats))
	for name := range m.workerCats {
		out = append(out, name)
	}
	return out, nil
}

func (m *memoryProjRepo) ListAttendance(_ context.Context, projectID int64, date time.Time) ([]AttendanceRecord, error) {
	var out []AttendanceRecord
	for _, rec := range m.attendance {
		if rec.ProjectID == projectID && rec.Date.Equal(date) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *memoryProjRepo) UpsertAttendance(_ context.Context, rec AttendanceRecord) (int64, error) {
	key := attKey(rec.ProjectID, rec.WorkerID, rec.Date)
	if existing, ok := m.attendance[key]; ok {
		rec.ID = existing.ID
		m.attendance[key] = &rec
		return rec.ID, nil
	}
	rec.ID = m.id()
	m.attendance[key] = &rec
	return rec.ID, nil
}

func (m *memoryProjRepo) InsertMessage(_ context.Context, msg ChatMessage) error {
	m.messages = append(m.messages, msg)
	return nil
}

func (m *memoryProjRepo) ListGroupMessages(_ context.Context, projectID int64, _ int) ([]ChatMessage, error) {
	var out []ChatMessage
	for _, msg := range m.messages {
		if msg.ProjectID == projectID && msg.RecipientID == 0 {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memoryProjRepo) ListPrivateMessages(_ context.Context, projectID, a, b int64, _ int) ([]ChatMessage, error) {
	var out []ChatMessage
	for _, msg := range m.messages {
		if msg.ProjectID != projectID || msg.RecipientID == 0 {
			continue
		}
		if (msg.SenderID == a && msg.RecipientID == b) || (msg.SenderID == b && msg.RecipientID == a) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memoryProjRepo) ListProgress(_ context.Context, projectID int64) ([]ProgressItem, error) {
	var out []ProgressItem
	for _, item := range m.progress {
		if item.ProjectID == projectID {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (m *memoryProjRepo) InsertProgressComment(_ context.Context, c ProgressComment) (int64, error) {
	c.ID = m.id()
	m.comments = append(m.comments, c)
	return c.ID, nil
}

func (m *memoryProjRepo) ListProgressComments(_ context.Context, itemID int64) ([]ProgressComment, error) {
	var out []ProgressComment
	for _, c := range m.comments {
		if c.ItemID == itemID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memoryProjRepo) CreatePaymentCategory(_ context.Context, name string) (int64, error) {
	if _, ok := m.payCats[name]; ok {
		return 0, ErrDuplicateCategory
	}
	id := m.id()
	m.payCats[name] = id
	return id, nil
}

func (m *memoryProjRepo) ListPaymentCategories(_ context.Context) ([]PaymentCategory, error) {
	out := make([]PaymentCategory, 0, len(m.payCats))
	for name, id := range m.payCats {
		out = append(out, PaymentCategory{ID: id, Name: name})
	}
	return out, nil
}

func (m *memoryProjRepo) InsertProgressItem(_ context.Context, item ProgressItem) (int64, error) {
	item.ID = m.id()
	m.progress[item.ID] = &item
	return item.ID, nil
}

func (m *memoryProjRepo) GetProgressItemForUpdate(_ context.Context, itemID int64) (ProgressItem, error) {
	item, ok := m.progress[itemID]
	if !ok {
		return ProgressItem{}, ErrItemNotFound
	}
	return *item, nil
}

func (m *memoryProjRepo) SetProgressPercentage(_ context.Context, itemID int64, pct float64, completed bool) error {
	item, ok := m.progress[itemID]
	if !ok {
		return ErrItemNotFound
	}
	item.Percentage = pct
	item.Completed = completed
	return nil
}

func (m *memoryProjRepo) SumChildPercentage(_ context.Context, parentID int64) (float64, error) {
	var total float64
	for _, item := range m.progress {
		if item.ParentID == parentID {
			total += item.Percentage
		}
	}
	return total, nil
}

func (m *memoryProjRepo) DeleteProgressItem(_ context.Context, itemID int64) error {
	if _, ok := m.progress[itemID]; !ok {
		return ErrItemNotFound
	}
	delete(m.progress, itemID)
	return nil
}

type materialsFake struct {
	requests []materials.Request
	receipts []materials.Receipt
	usages   []materials.Usage
}

func (f *materialsFake) ListRequests(context.Context, int64) ([]materials.Request, error) {
	return f.requests, nil
}

func (f *materialsFake) ListReceipts(context.Context, int64) ([]materials.Receipt, error) {
	return f.receipts, nil
}

func (f *materialsFake) ListUsages(context.Context, int64, *time.Time) ([]materials.Usage, error) {
	return f.usages, nil
}

func newProjTestService(repo *memoryProjRepo, mats *materialsFake) *Service {
	if mats == nil {
		mats = &materialsFake{}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, mats, paymentsFeedFake{}, nil, logger)
}

type paymentsFeedFake []payments.Entry

func (f paymentsFeedFake) ListProjectEntries(context.Context, int64, int) ([]payments.Entry, error) {
	return f, nil
}

func TestAttendanceSheetInitializesMissingWorkers(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryProjRepo()
	svc := newProjTestService(repo, nil)

	project, err := svc.CreateProject(ctx, Project{Name: "Warehouse"})
	require.NoError(t, err)
	first, err := svc.AddWorker(ctx, Worker{ProjectID: project.ID, Name: "Amina", DailyWage: 700})
	require.NoError(t, err)
	second, err := svc.AddWorker(ctx, Worker{ProjectID: project.ID, Name: "Rafi", DailyWage: 650})
	require.NoError(t, err)

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	_, err = svc.RecordAttendance(ctx, AttendanceRecord{
		ProjectID: project.ID,
		WorkerID:  first.ID,
		Date:      day,
		Present:   true,
		Shifts:    1,
	})
	require.NoError(t, err)

	sheet, err := svc.GetAttendance(ctx, project.ID, day)
	require.NoError(t, err)
	require.Len(t, sheet, 2)

	byWorker := make(map[int64]AttendanceRecord, len(sheet))
	for _, rec := range sheet {
		byWorker[rec.WorkerID] = rec
	}
	require.True(t, byWorker[first.ID].Present)
	require.False(t, byWorker[second.ID].Present)
	require.Zero(t, byWorker[second.ID].Shifts)

	// A second read must not duplicate the initialized rows.
	sheet, err = svc.GetAttendance(ctx, project.ID, day)
	require.NoError(t, err)
	require.Len(t, sheet, 2)
}

func TestAttendanceUpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryProjRepo()
	svc := newProjTestService(repo, nil)

	project, err := svc.CreateProject(ctx, Project{Name: "Tower"})
	require.NoError(t, err)
	worker, err := svc.AddWorker(ctx, Worker{ProjectID: project.ID, Name: "Karim"})
	require.NoError(t, err)

	day := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	rec, err := svc.RecordAttendance(ctx, AttendanceRecord{
		ProjectID: project.ID, WorkerID: worker.ID, Date: day, Present: true, Shifts: 1,
	})
	require.NoError(t, err)

	updated, err := svc.RecordAttendance(ctx, AttendanceRecord{
		ProjectID: project.ID, WorkerID: worker.ID, Date: day, Present: true, Shifts: 1.5, OvertimeHours: 2,
	})
	require.NoError(t, err)
	require.Equal(t, rec.ID, updated.ID)

	sheet, err := svc.GetAttendance(ctx, project.ID, day)
	require.NoError(t, err)
	require.Len(t, sheet, 1)
	require.Equal(t, 1.5, sheet[0].Shifts)
	require.Equal(t, 2.0, sheet[0].OvertimeHours)
}

func TestProgressParentRecompute(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryProjRepo()
	svc := newProjTestService(repo, nil)

	project, err := svc.CreateProject(ctx, Project{Name: "Bridge"})
	require.NoError(t, err)
	parent, err := svc.AddProgressItem(ctx, project.ID, 0, "Foundation")
	require.NoError(t, err)
	a, err := svc.AddProgressItem(ctx, project.ID, parent.ID, "Excavation")
	require.NoError(t, err)
	b, err := svc.AddProgressItem(ctx, project.ID, parent.ID, "Piling")
	require.NoError(t, err)

	require.NoError(t, svc.SetProgressPercentage(ctx, a.ID, 60))
	got, err := repo.GetProgressItemForUpdate(ctx, parent.ID)
	require.NoError(t, err)
	require.Equal(t, 60.0, got.Percentage)
	require.False(t, got.Completed)

	// Children summing past 100 clamp the parent and mark it complete.
	require.NoError(t, svc.SetProgressPercentage(ctx, b.ID, 70))
	got, err = repo.GetProgressItemForUpdate(ctx, parent.ID)
	require.NoError(t, err)
	require.Equal(t, 100.0, got.Percentage)
	require.True(t, got.Completed)

	// Deleting a child brings the parent back under 100.
	require.NoError(t, svc.RemoveProgressItem(ctx, b.ID))
	got, err = repo.GetProgressItemForUpdate(ctx, parent.ID)
	require.NoError(t, err)
	require.Equal(t, 60.0, got.Percentage)
	require.False(t, got.Completed)
}

func TestProgressValidation(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryProjRepo()
	svc := newProjTestService(repo, nil)

	project, err := svc.CreateProject(ctx, Project{Name: "Depot"})
	require.NoError(t, err)
	item, err := svc.AddProgressItem(ctx, project.ID, 0, "Roofing")
	require.NoError(t, err)

	require.ErrorIs(t, svc.SetProgressPercentage(ctx, item.ID, 101), ErrValidation)
	require.ErrorIs(t, svc.SetProgressPercentage(ctx, item.ID, -1), ErrValidation)

	_, err = svc.AddProgressItem(ctx, project.ID, 999, "Orphan")
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestGroupAndPrivateMessages(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryProjRepo()
	svc := newProjTestService(repo, nil)

	project, err := svc.CreateProject(ctx, Project{Name: "Quarry"})
	require.NoError(t, err)

	group, err := svc.PostMessage(ctx, project.ID, 1, 0, "cement arriving at noon")
	require.NoError(t, err)
	require.NotEmpty(t, group.ID)

	_, err = svc.PostMessage(ctx, project.ID, 1, 2, "call me about the invoice")
	require.NoError(t, err)
	_, err = svc.PostMessage(ctx, project.ID, 2, 1, "will do")
	require.NoError(t, err)

	groupMsgs, err := svc.ListGroupMessages(ctx, project.ID, 0)
	require.NoError(t, err)
	require.Len(t, groupMsgs, 1)

	private, err := svc.ListPrivateMessages(ctx, project.ID, 1, 2, 0)
	require.NoError(t, err)
	require.Len(t, private, 2)

	_, err = svc.PostMessage(ctx, project.ID, 1, 0, "")
	require.ErrorIs(t, err, ErrValidation)
}

func TestSnapshotAggregatesLedgers(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryProjRepo()
	mats := &materialsFake{
		requests: []materials.Request{
			{Status: materials.StatusReceived},
			{Status: materials.StatusRejected},
			{Status: materials.StatusPartiallyReceived},
			{Status: materials.StatusPending},
		},
		receipts: []materials.Receipt{
			{Items: []materials.ReceiptItem{
				{MaterialCode: "CEM", Quantity: 50},
				{MaterialCode: "SAND", Quantity: 20},
			}},
			{Items: []materials.ReceiptItem{{MaterialCode: "CEM", Quantity: 30}}},
		},
		usages: []materials.Usage{
			{Items: []materials.UsageItem{
				{MaterialCode: "CEM", Quantity: 45},
				{MaterialCode: "SAND", Quantity: 20},
			}},
		},
	}
	svc := newProjTestService(repo, mats)

	project, err := svc.CreateProject(ctx, Project{Name: "Mill"})
	require.NoError(t, err)
	_, err = svc.AddWorker(ctx, Worker{ProjectID: project.ID, Name: "Laila"})
	require.NoError(t, err)

	snap, err := svc.BuildSnapshot(ctx, project.ID)
	require.NoError(t, err)
	require.Equal(t, project.ID, snap.Project.ID)
	require.Len(t, snap.Workers, 1)
	require.Len(t, snap.Attendance, 1)
	require.False(t, snap.Attendance[0].Present)
	require.Equal(t, 80.0, snap.TotalReceived["CEM"])
	require.Equal(t, 45.0, snap.TotalUsed["CEM"])
	require.Equal(t, 35.0, snap.Inventory["CEM"])
	require.NotContains(t, snap.Inventory, "SAND")
	require.Equal(t, 2, snap.OpenRequests)
}

func TestDuplicateCategories(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryProjRepo()
	svc := newProjTestService(repo, nil)

	require.NoError(t, svc.AddWorkerCategory(ctx, "Mason"))
	require.ErrorIs(t, svc.AddWorkerCategory(ctx, "Mason"), ErrDuplicateCategory)

	require.NoError(t, svc.AddPaymentCategory(ctx, "Fuel"))
	require.ErrorIs(t, svc.AddPaymentCategory(ctx, "Fuel"), ErrDuplicateCategory)

	cats, err := svc.ListPaymentCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 1)
}
