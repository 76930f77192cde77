package inventory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/medimart/medimart/internal/platform/apperr"
	"github.com/medimart/medimart/internal/platform/lock"
)

// -- Mock Repository --

type mockRepo struct {
	mu      sync.Mutex
	batches map[uuid.UUID]*Batch
	logs    []*LogEntry
	totals  map[[2]uuid.UUID]*Total
	logErr  error
}

func newMockRepo() *mockRepo {
	return &mockRepo{batches: make(map[uuid.UUID]*Batch), totals: make(map[[2]uuid.UUID]*Total)}
}

func (m *mockRepo) CreateBatch(_ context.Context, b *Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.batches {
		if x.ProviderID == b.ProviderID && x.ItemID == b.ItemID && x.BatchNo == b.BatchNo {
			return apperr.Conflict("batch %s already exists", b.BatchNo)
		}
	}
	b.ID = uuid.New()
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	c := *b
	m.batches[b.ID] = &c
	return nil
}

func (m *mockRepo) GetBatch(_ context.Context, id uuid.UUID) (*Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return nil, apperr.NotFound("batch %s not found", id)
	}
	c := *b
	return &c, nil
}

func (m *mockRepo) GetBatchForUpdate(ctx context.Context, id uuid.UUID) (*Batch, error) {
	return m.GetBatch(ctx, id)
}

func (m *mockRepo) UpdateBatch(_ context.Context, b *Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.batches[b.ID]; !ok {
		return apperr.NotFound("batch %s not found", b.ID)
	}
	b.UpdatedAt = time.Now()
	c := *b
	m.batches[b.ID] = &c
	return nil
}

func (m *mockRepo) DeleteBatch(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.batches[id]; !ok {
		return apperr.NotFound("batch %s not found", id)
	}
	delete(m.batches, id)
	for _, e := range m.logs {
		if e.BatchID != nil && *e.BatchID == id {
			e.BatchID = nil
		}
	}
	return nil
}

func (m *mockRepo) filterBatches(fn func(*Batch) bool) []*Batch {
	var out []*Batch
	for _, b := range m.batches {
		if fn(b) {
			c := *b
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiryDate.Equal(out[j].ExpiryDate) {
			return out[i].ExpiryDate.Before(out[j].ExpiryDate)
		}
		return out[i].BatchNo < out[j].BatchNo
	})
	return out
}

func (m *mockRepo) ListBatches(_ context.Context, providerID uuid.UUID, itemID *uuid.UUID, limit, offset int) ([]*Batch, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.filterBatches(func(b *Batch) bool {
		return b.ProviderID == providerID && (itemID == nil || b.ItemID == *itemID)
	})
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockRepo) ExpiringBatches(_ context.Context, providerID uuid.UUID, before time.Time) ([]*Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filterBatches(func(b *Batch) bool {
		return b.ProviderID == providerID && b.StockQty > 0 && !b.ExpiryDate.After(before)
	}), nil
}

func (m *mockRepo) AppendLog(_ context.Context, e *LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logErr != nil {
		return m.logErr
	}
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	c := *e
	if e.BatchID != nil {
		id := *e.BatchID
		c.BatchID = &id
	}
	m.logs = append(m.logs, &c)
	return nil
}

func (m *mockRepo) ListLogs(_ context.Context, providerID uuid.UUID, itemID *uuid.UUID, limit, offset int) ([]*LogEntry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*LogEntry
	for i := len(m.logs) - 1; i >= 0; i-- {
		e := m.logs[i]
		if e.ProviderID == providerID && (itemID == nil || e.ItemID == *itemID) {
			c := *e
			all = append(all, &c)
		}
	}
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockRepo) RecomputeTotal(_ context.Context, providerID, itemID uuid.UUID) (*Total, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := 0
	for _, b := range m.batches {
		if b.ProviderID == providerID && b.ItemID == itemID {
			sum += b.StockQty
		}
	}
	t := &Total{ProviderID: providerID, ItemID: itemID, TotalStock: sum, UpdatedAt: time.Now()}
	m.totals[[2]uuid.UUID{providerID, itemID}] = t
	c := *t
	return &c, nil
}

func (m *mockRepo) GetTotal(_ context.Context, providerID, itemID uuid.UUID) (*Total, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.totals[[2]uuid.UUID{providerID, itemID}]
	if !ok {
		return nil, apperr.NotFound("inventory total for item %s not found", itemID)
	}
	c := *t
	return &c, nil
}

func (m *mockRepo) LowStock(_ context.Context, providerID uuid.UUID, threshold int) ([]*Total, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Total
	for _, t := range m.totals {
		if t.ProviderID == providerID && t.TotalStock < threshold {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalStock < out[j].TotalStock })
	return out, nil
}

// sum is the ground truth the stored total must match.
func (m *mockRepo) sum(providerID, itemID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		if b.ProviderID == providerID && b.ItemID == itemID {
			n += b.StockQty
		}
	}
	return n
}

func (m *mockRepo) logsFor(batchID uuid.UUID) []*LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*LogEntry
	for _, e := range m.logs {
		if e.BatchID != nil && *e.BatchID == batchID {
			out = append(out, e)
		}
	}
	return out
}

// passTx runs fn directly; mocks have no rollback.
type passTx struct{}

func (passTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type fixture struct {
	svc      *Service
	repo     *mockRepo
	provider Caller
	other    Caller
	admin    Caller
	item     uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		repo:     newMockRepo(),
		provider: Caller{UserID: uuid.New()},
		other:    Caller{UserID: uuid.New()},
		admin:    Caller{UserID: uuid.New(), Admin: true},
		item:     uuid.New(),
	}
	f.svc = NewService(f.repo, passTx{}, lock.NewKeyedMutex(), 30, 10, zerolog.Nop())
	f.svc.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return f
}

var ctx = context.Background()

func (f *fixture) batch(t *testing.T, no string, qty int, expiry string) *Batch {
	t.Helper()
	b, _, err := f.svc.CreateBatch(ctx, f.provider, CreateBatchRequest{
		ItemID:        f.item,
		BatchNo:       no,
		ExpiryDate:    expiry,
		StockQty:      qty,
		PurchasePrice: decimal.NewFromInt(800),
		SellingPrice:  decimal.NewFromInt(1200),
	})
	if err != nil {
		t.Fatalf("CreateBatch(%s): %v", no, err)
	}
	return b
}

func intPtr(n int) *int { return &n }

// -- Tests --

func TestCreateBatch_LogsInitialStock(t *testing.T) {
	f := newFixture()
	b, total, err := f.svc.CreateBatch(ctx, f.provider, CreateBatchRequest{
		ItemID:       f.item,
		BatchNo:      " B-001 ",
		ExpiryDate:   "2026-12-31",
		StockQty:     10,
		SellingPrice: decimal.RequireFromString("1500.50"),
	})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if b.ProviderID != f.provider.UserID || b.BatchNo != "B-001" {
		t.Errorf("unexpected batch %+v", b)
	}
	if total.TotalStock != 10 {
		t.Errorf("total = %d, want 10", total.TotalStock)
	}
	logs := f.repo.logsFor(b.ID)
	if len(logs) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(logs))
	}
	if logs[0].ChangeType != ChangeStockIn || logs[0].QtyChanged != 10 || logs[0].Reason != ReasonInitialStock {
		t.Errorf("unexpected log %+v", logs[0])
	}
}

func TestCreateBatch_ZeroQtyNoLog(t *testing.T) {
	f := newFixture()
	b := f.batch(t, "B-000", 0, "2026-12-31")
	if n := len(f.repo.logsFor(b.ID)); n != 0 {
		t.Errorf("expected no log entries, got %d", n)
	}
	total, err := f.svc.ItemTotal(ctx, f.provider, nil, f.item)
	if err != nil {
		t.Fatal(err)
	}
	if total.TotalStock != 0 {
		t.Errorf("total = %d, want 0", total.TotalStock)
	}
}

func TestCreateBatch_Validation(t *testing.T) {
	f := newFixture()
	base := func() CreateBatchRequest {
		return CreateBatchRequest{ItemID: f.item, BatchNo: "B-1", ExpiryDate: "2026-12-31", StockQty: 1}
	}
	tests := []struct {
		name string
		mut  func(r *CreateBatchRequest)
	}{
		{"missing batch no", func(r *CreateBatchRequest) { r.BatchNo = "  " }},
		{"missing item", func(r *CreateBatchRequest) { r.ItemID = uuid.Nil }},
		{"bad expiry", func(r *CreateBatchRequest) { r.ExpiryDate = "31/12/2026" }},
		{"negative qty", func(r *CreateBatchRequest) { r.StockQty = -1 }},
		{"negative price", func(r *CreateBatchRequest) { r.PurchasePrice = decimal.NewFromInt(-5) }},
		{"qty too large", func(r *CreateBatchRequest) { r.StockQty = MaxStockQty + 1 }},
		{"price over ceiling", func(r *CreateBatchRequest) { r.SellingPrice = MaxPrice.Add(decimal.NewFromInt(1)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base()
			tt.mut(&req)
			_, _, err := f.svc.CreateBatch(ctx, f.provider, req)
			if apperr.KindOf(err) != apperr.KindValidation {
				t.Errorf("expected validation_error, got %v", err)
			}
		})
	}
	if len(f.repo.batches) != 0 {
		t.Errorf("expected no batches stored, got %d", len(f.repo.batches))
	}
}

func TestCreateBatch_DuplicateBatchNo(t *testing.T) {
	f := newFixture()
	f.batch(t, "B-1", 5, "2026-12-31")
	_, _, err := f.svc.CreateBatch(ctx, f.provider, CreateBatchRequest{
		ItemID: f.item, BatchNo: "B-1", ExpiryDate: "2027-01-31", StockQty: 3,
	})
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateBatch_AdminMustNameProvider(t *testing.T) {
	f := newFixture()
	req := CreateBatchRequest{ItemID: f.item, BatchNo: "B-1", ExpiryDate: "2026-12-31", StockQty: 2}
	if _, _, err := f.svc.CreateBatch(ctx, f.admin, req); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation_error, got %v", err)
	}
	req.ProviderID = &f.provider.UserID
	b, _, err := f.svc.CreateBatch(ctx, f.admin, req)
	if err != nil {
		t.Fatalf("CreateBatch as admin: %v", err)
	}
	if b.ProviderID != f.provider.UserID {
		t.Errorf("batch provider = %s, want %s", b.ProviderID, f.provider.UserID)
	}
}

func TestUpdateBatch_StockOut(t *testing.T) {
	f := newFixture()
	b := f.batch(t, "B-001", 10, "2026-12-31")

	updated, total, err := f.svc.UpdateBatch(ctx, f.provider, b.ID, UpdateBatchRequest{StockQty: intPtr(4)})
	if err != nil {
		t.Fatalf("UpdateBatch: %v", err)
	}
	if updated.StockQty != 4 || total.TotalStock != 4 {
		t.Errorf("qty = %d total = %d, want 4/4", updated.StockQty, total.TotalStock)
	}
	logs := f.repo.logsFor(b.ID)
	if len(logs) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(logs))
	}
	last := logs[1]
	if last.ChangeType != ChangeStockOut || last.QtyChanged != 6 || last.Reason != ReasonManualUpdate {
		t.Errorf("unexpected log %+v", last)
	}
}

func TestUpdateBatch_StockInWithReason(t *testing.T) {
	f := newFixture()
	b := f.batch(t, "B-001", 10, "2026-12-31")
	_, _, err := f.svc.UpdateBatch(ctx, f.provider, b.ID, UpdateBatchRequest{StockQty: intPtr(25), Reason: "supplier delivery"})
	if err != nil {
		t.Fatal(err)
	}
	logs := f.repo.logsFor(b.ID)
	last := logs[len(logs)-1]
	if last.ChangeType != ChangeStockIn || last.QtyChanged != 15 || last.Reason != "supplier delivery" {
		t.Errorf("unexpected log %+v", last)
	}
}

func TestUpdateBatch_NoQtyChangeNoLog(t *testing.T) {
	f := newFixture()
	b := f.batch(t, "B-001", 10, "2026-12-31")
	price := decimal.NewFromInt(1300)
	exp := "2027-06-30"
	updated, _, err := f.svc.UpdateBatch(ctx, f.provider, b.ID, UpdateBatchRequest{
		StockQty: intPtr(10), SellingPrice: &price, ExpiryDate: &exp,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !updated.SellingPrice.Equal(price) || updated.ExpiryDate.Format(DateLayout) != exp {
		t.Errorf("unexpected batch %+v", updated)
	}
	if n := len(f.repo.logsFor(b.ID)); n != 1 {
		t.Errorf("expected only the initial log entry, got %d", n)
	}
}

func TestUpdateBatch_Rejections(t *testing.T) {
	f := newFixture()
	b := f.batch(t, "B-001", 10, "2026-12-31")
	bad := "tomorrow"
	neg := decimal.NewFromInt(-1)
	huge := MaxPrice.Add(decimal.NewFromInt(1))

	tests := []struct {
		name   string
		caller Caller
		id     uuid.UUID
		req    UpdateBatchRequest
		want   apperr.Kind
	}{
		{"negative qty", f.provider, b.ID, UpdateBatchRequest{StockQty: intPtr(-1)}, apperr.KindValidation},
		{"empty", f.provider, b.ID, UpdateBatchRequest{Reason: "x"}, apperr.KindValidation},
		{"bad expiry", f.provider, b.ID, UpdateBatchRequest{ExpiryDate: &bad}, apperr.KindValidation},
		{"negative price", f.provider, b.ID, UpdateBatchRequest{PurchasePrice: &neg}, apperr.KindValidation},
		{"price over ceiling", f.provider, b.ID, UpdateBatchRequest{SellingPrice: &huge}, apperr.KindValidation},
		{"qty too large", f.provider, b.ID, UpdateBatchRequest{StockQty: intPtr(MaxStockQty + 1)}, apperr.KindValidation},
		{"other provider", f.other, b.ID, UpdateBatchRequest{StockQty: intPtr(1)}, apperr.KindForbidden},
		{"unknown batch", f.provider, uuid.New(), UpdateBatchRequest{StockQty: intPtr(1)}, apperr.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.svc.UpdateBatch(ctx, tt.caller, tt.id, tt.req)
			if apperr.KindOf(err) != tt.want {
				t.Errorf("expected %s, got %v", tt.want, err)
			}
		})
	}
	if got := f.repo.batches[b.ID].StockQty; got != 10 {
		t.Errorf("stock changed to %d", got)
	}
}

func TestUpdateBatch_AdminAllowed(t *testing.T) {
	f := newFixture()
	b := f.batch(t, "B-001", 10, "2026-12-31")
	_, total, err := f.svc.UpdateBatch(ctx, f.admin, b.ID, UpdateBatchRequest{StockQty: intPtr(7)})
	if err != nil {
		t.Fatal(err)
	}
	if total.ProviderID != f.provider.UserID || total.TotalStock != 7 {
		t.Errorf("unexpected total %+v", total)
	}
}

func TestDeleteBatch_LogsAdjustment(t *testing.T) {
	f := newFixture()
	f.batch(t, "B-001", 4, "2026-12-31")
	gone := f.batch(t, "B-002", 9, "2027-01-31")

	total, err := f.svc.DeleteBatch(ctx, f.provider, gone.ID)
	if err != nil {
		t.Fatalf("DeleteBatch: %v", err)
	}
	if total.TotalStock != 4 {
		t.Errorf("total = %d, want 4", total.TotalStock)
	}
	if _, err := f.svc.repo.GetBatch(ctx, gone.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("expected batch removed, got %v", err)
	}

	logs, n, err := f.svc.Logs(ctx, f.provider, nil, &f.item, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("expected 3 log entries, got %d", n)
	}
	newest := logs[0]
	if newest.ChangeType != ChangeAdjustment || newest.QtyChanged != 9 || newest.Reason != ReasonBatchDeleted {
		t.Errorf("unexpected log %+v", newest)
	}
	if newest.BatchID != nil {
		t.Errorf("expected batch reference cleared, got %v", newest.BatchID)
	}
}

func TestDeleteBatch_EmptyBatchNoLog(t *testing.T) {
	f := newFixture()
	b := f.batch(t, "B-001", 0, "2026-12-31")
	if _, err := f.svc.DeleteBatch(ctx, f.provider, b.ID); err != nil {
		t.Fatal(err)
	}
	if len(f.repo.logs) != 0 {
		t.Errorf("expected no log entries, got %d", len(f.repo.logs))
	}
}

func TestDeleteBatch_Forbidden(t *testing.T) {
	f := newFixture()
	b := f.batch(t, "B-001", 3, "2026-12-31")
	if _, err := f.svc.DeleteBatch(ctx, f.other, b.ID); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, ok := f.repo.batches[b.ID]; !ok {
		t.Error("batch deleted by another provider")
	}
}

func TestMutation_LogFailureSurfaces(t *testing.T) {
	f := newFixture()
	b := f.batch(t, "B-001", 10, "2026-12-31")
	f.repo.logErr = apperr.Persistence(fmt.Errorf("disk full"), "store stock log entry")
	_, _, err := f.svc.UpdateBatch(ctx, f.provider, b.ID, UpdateBatchRequest{StockQty: intPtr(2)})
	if apperr.KindOf(err) != apperr.KindPersistence {
		t.Fatalf("expected persistence_failure, got %v", err)
	}
}

func TestTotal_MatchesBatchSum(t *testing.T) {
	f := newFixture()
	a := f.batch(t, "B-001", 10, "2026-12-31")
	b := f.batch(t, "B-002", 5, "2027-01-31")
	setQty := func(id uuid.UUID, n int) func() error {
		return func() error {
			_, _, err := f.svc.UpdateBatch(ctx, f.provider, id, UpdateBatchRequest{StockQty: intPtr(n)})
			return err
		}
	}
	steps := []func() error{
		setQty(a.ID, 3),
		setQty(b.ID, 12),
		func() error {
			_, err := f.svc.DeleteBatch(ctx, f.provider, a.ID)
			return err
		},
		func() error {
			f.batch(t, "B-003", 7, "2027-02-28")
			return nil
		},
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		total, err := f.svc.ItemTotal(ctx, f.provider, nil, f.item)
		if err != nil {
			t.Fatal(err)
		}
		if want := f.repo.sum(f.provider.UserID, f.item); total.TotalStock != want {
			t.Errorf("step %d: total = %d, want %d", i, total.TotalStock, want)
		}
	}
}

func TestTotal_ConcurrentUpdates(t *testing.T) {
	f := newFixture()
	batches := make([]*Batch, 4)
	for i := range batches {
		batches[i] = f.batch(t, fmt.Sprintf("B-%03d", i), 50, "2026-12-31")
	}

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b := batches[i%len(batches)]
			if _, _, err := f.svc.UpdateBatch(ctx, f.provider, b.ID, UpdateBatchRequest{StockQty: intPtr(i)}); err != nil {
				t.Errorf("UpdateBatch: %v", err)
			}
		}(i)
	}
	wg.Wait()

	total, err := f.svc.ItemTotal(ctx, f.provider, nil, f.item)
	if err != nil {
		t.Fatal(err)
	}
	if want := f.repo.sum(f.provider.UserID, f.item); total.TotalStock != want {
		t.Errorf("total = %d, want %d", total.TotalStock, want)
	}
}

func TestItemTotal_Forbidden(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.ItemTotal(ctx, f.other, &f.provider.UserID, f.item); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := f.svc.ItemTotal(ctx, Caller{}, nil, f.item); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden for anonymous caller, got %v", err)
	}
}

func TestListBatches_ScopedToProvider(t *testing.T) {
	f := newFixture()
	f.batch(t, "B-001", 1, "2026-12-31")
	f.batch(t, "B-002", 1, "2026-06-30")
	if _, _, err := f.svc.CreateBatch(ctx, f.other, CreateBatchRequest{
		ItemID: f.item, BatchNo: "X-1", ExpiryDate: "2026-12-31", StockQty: 1,
	}); err != nil {
		t.Fatal(err)
	}

	items, total, err := f.svc.ListBatches(ctx, f.provider, nil, nil, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("expected 2 batches, got %d/%d", len(items), total)
	}
	if items[0].BatchNo != "B-002" {
		t.Errorf("expected earliest expiry first, got %s", items[0].BatchNo)
	}
}

func TestExpiring(t *testing.T) {
	f := newFixture()
	f.batch(t, "SOON", 5, "2026-03-20")
	f.batch(t, "LATER", 5, "2026-05-15")
	f.batch(t, "EMPTY", 0, "2026-03-10")

	soon, err := f.svc.Expiring(ctx, f.provider, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(soon) != 1 || soon[0].BatchNo != "SOON" {
		t.Errorf("expected only SOON within the default window, got %v", soon)
	}

	wide, err := f.svc.Expiring(ctx, f.provider, nil, 90)
	if err != nil {
		t.Fatal(err)
	}
	if len(wide) != 2 {
		t.Errorf("expected 2 batches within 90 days, got %d", len(wide))
	}
}

func TestLowStock(t *testing.T) {
	f := newFixture()
	f.batch(t, "B-001", 3, "2026-12-31")
	plenty := uuid.New()
	if _, _, err := f.svc.CreateBatch(ctx, f.provider, CreateBatchRequest{
		ItemID: plenty, BatchNo: "P-1", ExpiryDate: "2026-12-31", StockQty: 100,
	}); err != nil {
		t.Fatal(err)
	}

	low, err := f.svc.LowStock(ctx, f.provider, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(low) != 1 || low[0].ItemID != f.item {
		t.Errorf("expected only the 3-unit item, got %v", low)
	}

	all, err := f.svc.LowStock(ctx, f.provider, nil, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 items below 1000, got %d", len(all))
	}
}

func TestReport(t *testing.T) {
	f := newFixture()
	f.batch(t, "SOON", 3, "2026-03-11")
	f.batch(t, "LATER", 20, "2027-01-31")

	data, err := f.svc.Report(ctx, f.provider, nil)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer wb.Close()

	rows, err := wb.GetRows(SheetExpiring)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 expiring row, got %d", len(rows))
	}
	if rows[0][0] != "Batch No" || rows[1][0] != "SOON" || rows[1][3] != "10" || rows[1][5] != "1200.00" {
		t.Errorf("unexpected expiring rows %v", rows)
	}

	rows, err = wb.GetRows(SheetLowStock)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Errorf("expected header only (total 23 is above threshold), got %v", rows)
	}
}

func TestReport_Forbidden(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Report(ctx, f.other, &f.provider.UserID); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestDaysToExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	b := &Batch{ExpiryDate: time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)}
	if got := b.DaysToExpiry(now); got != 10 {
		t.Errorf("DaysToExpiry = %d, want 10", got)
	}
}
