package billing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gigfolio/backend/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ---------------------------------------------------------------------------
// In-memory mocks for ProjectStore, TaskStore, LedgerStore and Notifier.
// They keep the same guard semantics as the PostgreSQL repositories (unique
// source pair, conditional flag flips, single upfront/final invoice) so the
// service logic is tested against the real contention behavior.
// ---------------------------------------------------------------------------

type sourceKey struct {
	source   string
	sourceID uuid.UUID
}

type mockProjects struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]*models.Project
	bySource map[sourceKey]uuid.UUID

	failCreate          error
	failMarkUpfrontPaid error
	failAddPaidToDate   error
}

func newMockProjects(ps ...*models.Project) *mockProjects {
	m := &mockProjects{
		byID:     make(map[uuid.UUID]*models.Project),
		bySource: make(map[sourceKey]uuid.UUID),
	}
	for _, p := range ps {
		cp := *p
		m.byID[p.ID] = &cp
		m.bySource[sourceKey{p.Source, p.SourceID}] = p.ID
	}
	return m
}

func (m *mockProjects) GetByID(_ context.Context, id uuid.UUID) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProjects) GetBySource(_ context.Context, source string, sourceID uuid.UUID) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.bySource[sourceKey{source, sourceID}]
	if !ok {
		return nil, nil
	}
	cp := *m.byID[id]
	return &cp, nil
}

func (m *mockProjects) Create(_ context.Context, p *models.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return m.failCreate
	}
	key := sourceKey{p.Source, p.SourceID}
	if _, exists := m.bySource[key]; exists {
		return ErrConcurrencyConflict
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	cp := *p
	m.byID[p.ID] = &cp
	m.bySource[key] = p.ID
	return nil
}

func (m *mockProjects) MarkUpfrontPaid(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failMarkUpfrontPaid != nil {
		return false, m.failMarkUpfrontPaid
	}
	p, ok := m.byID[id]
	if !ok || p.UpfrontPaid {
		return false, nil
	}
	p.UpfrontPaid = true
	return true, nil
}

func (m *mockProjects) MarkCompleted(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok || p.Status != models.ProjectStatusOngoing {
		return false, nil
	}
	p.Status = models.ProjectStatusCompleted
	return true, nil
}

func (m *mockProjects) AddPaidToDate(_ context.Context, id uuid.UUID, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAddPaidToDate != nil {
		return m.failAddPaidToDate
	}
	p, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("project %s not found", id)
	}
	p.PaidToDate += amount
	return nil
}

func (m *mockProjects) SetPaidToDate(_ context.Context, id uuid.UUID, amount int64, reconciledAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("project %s not found", id)
	}
	p.PaidToDate = amount
	p.LastReconciled = &reconciledAt
	return nil
}

func (m *mockProjects) ListOngoingIDs(_ context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, p := range m.byID {
		if p.Status == models.ProjectStatusOngoing {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *mockProjects) get(id uuid.UUID) *models.Project {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.byID[id]
	return &cp
}

// ---

type mockTasks struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*models.Task
}

func newMockTasks(ts ...*models.Task) *mockTasks {
	m := &mockTasks{tasks: make(map[uuid.UUID]*models.Task)}
	for _, t := range ts {
		cp := *t
		m.tasks[t.ID] = &cp
	}
	return m
}

func (m *mockTasks) GetByID(_ context.Context, id uuid.UUID) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockTasks) ListByProject(_ context.Context, projectID uuid.UUID) ([]*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Task
	for _, t := range m.tasks {
		if t.ProjectID == projectID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockTasks) LinkInvoice(_ context.Context, taskID uuid.UUID, invoiceNumber string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	if t.InvoiceNumber != nil {
		return ErrConcurrencyConflict
	}
	t.InvoiceNumber = &invoiceNumber
	return nil
}

func (m *mockTasks) approve(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[id].Status = models.TaskStatusApproved
}

// ---

type mockLedger struct {
	mu           sync.Mutex
	seq          int
	invoices     map[string]*models.Invoice
	order        []string
	transactions []*models.Transaction

	failTransitionTo models.InvoiceStatus // next Transition to this status fails
	transitionErr    error
	createErr        error // next CreateInvoice fails, one shot
}

func newMockLedger() *mockLedger {
	return &mockLedger{invoices: make(map[string]*models.Invoice)}
}

func (m *mockLedger) CreateInvoice(_ context.Context, inv *models.Invoice) (*models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		err := m.createErr
		m.createErr = nil
		return nil, err
	}
	if inv.Type != models.InvoiceManual {
		for _, n := range m.order {
			ex := m.invoices[n]
			if ex.ProjectID == inv.ProjectID && ex.Type == inv.Type && ex.Status != models.InvoiceCancelled {
				return nil, fmt.Errorf("%w: a %s invoice already exists for project %s", ErrConcurrencyConflict, inv.Type, inv.ProjectID)
			}
		}
	}
	m.seq++
	cp := *inv
	cp.Number = fmt.Sprintf("INV-%d", 10000+m.seq)
	cp.CreatedAt = time.Now()
	m.invoices[cp.Number] = &cp
	m.order = append(m.order, cp.Number)
	out := cp
	return &out, nil
}

func (m *mockLedger) CreateManualInvoice(_ context.Context, inv *models.Invoice, capCents int64) (*models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		err := m.createErr
		m.createErr = nil
		return nil, err
	}
	var used int64
	for _, n := range m.order {
		ex := m.invoices[n]
		if ex.ProjectID == inv.ProjectID && ex.CountsTowardCap() {
			used += ex.Amount
		}
	}
	remaining := capCents - used
	if remaining <= 0 {
		return nil, fmt.Errorf("%w: manual invoices already cover the non-upfront budget of project %s", ErrBudgetExceeded, inv.ProjectID)
	}
	m.seq++
	cp := *inv
	if cp.Amount > remaining {
		cp.Amount = remaining
	}
	cp.Number = fmt.Sprintf("INV-%d", 10000+m.seq)
	cp.CreatedAt = time.Now()
	m.invoices[cp.Number] = &cp
	m.order = append(m.order, cp.Number)
	out := cp
	return &out, nil
}

func (m *mockLedger) GetInvoice(_ context.Context, number string) (*models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[number]
	if !ok {
		return nil, fmt.Errorf("%w: invoice %s", ErrNotFound, number)
	}
	cp := *inv
	return &cp, nil
}

func (m *mockLedger) Transition(_ context.Context, number string, from, to models.InvoiceStatus) (*models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTransitionTo == to && m.transitionErr != nil {
		err := m.transitionErr
		m.failTransitionTo = ""
		m.transitionErr = nil
		return nil, err
	}
	inv, ok := m.invoices[number]
	if !ok {
		return nil, fmt.Errorf("%w: invoice %s", ErrNotFound, number)
	}
	if inv.Status != from {
		return nil, fmt.Errorf("%w: invoice %s is %s, wanted %s -> %s", ErrInvalidStateTransition, number, inv.Status, from, to)
	}
	inv.Status = to
	now := time.Now()
	switch to {
	case models.InvoiceSent:
		if inv.SentAt == nil {
			inv.SentAt = &now
		}
	case models.InvoicePaid:
		inv.PaidAt = &now
	}
	cp := *inv
	return &cp, nil
}

func (m *mockLedger) ListByProject(_ context.Context, projectID uuid.UUID) ([]*models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Invoice
	for _, n := range m.order {
		if m.invoices[n].ProjectID == projectID {
			cp := *m.invoices[n]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockLedger) SumPaidInvoices(_ context.Context, projectID uuid.UUID) (*PaidSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	summary := &PaidSummary{}
	for _, n := range m.order {
		inv := m.invoices[n]
		if inv.ProjectID == projectID && inv.Status == models.InvoicePaid {
			cp := *inv
			summary.Invoices = append(summary.Invoices, &cp)
			summary.Total += inv.Amount
			summary.Count++
		}
	}
	return summary, nil
}

func (m *mockLedger) RecordTransaction(_ context.Context, t *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.CreatedAt = time.Now()
	cp := *t
	m.transactions = append(m.transactions, &cp)
	return nil
}

func (m *mockLedger) byType(projectID uuid.UUID, typ models.InvoiceType) []*models.Invoice {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Invoice
	for _, n := range m.order {
		inv := m.invoices[n]
		if inv.ProjectID == projectID && inv.Type == typ {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out
}

func (m *mockLedger) txTotal(projectID uuid.UUID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, t := range m.transactions {
		if t.ProjectID == projectID {
			total += t.Amount
		}
	}
	return total
}

// ---

type mockNotifier struct {
	mu     sync.Mutex
	events []models.Event
	fail   error
}

func (m *mockNotifier) Emit(_ context.Context, ev models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *mockNotifier) byType(typ models.EventType) []models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Event
	for _, ev := range m.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

type fixture struct {
	svc      *Service
	projects *mockProjects
	tasks    *mockTasks
	ledger   *mockLedger
	notifier *mockNotifier
}

func newFixture() *fixture {
	projects := newMockProjects()
	tasks := newMockTasks()
	ledger := newMockLedger()
	notifier := &mockNotifier{}
	svc := NewService(DefaultConfig, projects, tasks, ledger, notifier, discardLogger())
	return &fixture{svc: svc, projects: projects, tasks: tasks, ledger: ledger, notifier: notifier}
}

func acceptance(budget int64, tasks int) AcceptanceEvent {
	return AcceptanceEvent{
		Source:          models.SourceGig,
		SourceID:        uuid.New(),
		CommissionerID:  uuid.New(),
		FreelancerID:    uuid.New(),
		Title:           "Landing page redesign",
		InvoicingMethod: models.InvoicingCompletion,
		TotalBudget:     budget,
		TotalTasks:      tasks,
	}
}

// activate runs a successful activation and seeds the project's tasks.
func (f *fixture) activate(t *testing.T, ev AcceptanceEvent) (*models.Project, []*models.Task) {
	t.Helper()
	res, err := f.svc.ActivateProject(context.Background(), ev)
	if err != nil {
		t.Fatalf("ActivateProject: %v", err)
	}
	var tasks []*models.Task
	for i := 0; i < ev.TotalTasks; i++ {
		task := &models.Task{
			ID:        uuid.New(),
			ProjectID: res.Project.ID,
			Title:     fmt.Sprintf("Task %d", i+1),
			Status:    models.TaskStatusTodo,
		}
		cp := *task
		f.tasks.mu.Lock()
		f.tasks.tasks[task.ID] = &cp
		f.tasks.mu.Unlock()
		tasks = append(tasks, task)
	}
	return res.Project, tasks
}
