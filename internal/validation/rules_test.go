package validation

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"groupbuy/internal/models"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func codes(c *Context) []string {
	var out []string
	for _, e := range c.Errors() {
		out = append(out, e.Field+"/"+e.Code)
	}
	return out
}

func TestContext_IsValidDerived(t *testing.T) {
	c := New()
	if !c.IsValid() {
		t.Fatal("empty context must be valid")
	}

	c.Add("quantity", CodeOutOfRange, "quantity must be greater than 0")
	if c.IsValid() {
		t.Fatal("context with errors must be invalid")
	}

	var nilCtx *Context
	if !nilCtx.IsValid() {
		t.Error("nil context must be valid")
	}
}

func TestContext_ErrorsIsCopy(t *testing.T) {
	c := New()
	c.Add("a", CodeRequired, "a is required")

	errs := c.Errors()
	errs[0].Field = "mutated"

	if c.Errors()[0].Field != "a" {
		t.Error("Errors() must return a copy")
	}
}

func TestContext_MarshalJSON(t *testing.T) {
	c := New()
	data, err := c.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"errors":[],"is_valid":true}` {
		t.Errorf("unexpected JSON: %s", data)
	}

	c.Add("quantity", CodeCapacityExceeded, "too much")
	data, _ = c.MarshalJSON()
	if !strings.Contains(string(data), `"is_valid":false`) || !strings.Contains(string(data), `"field":"quantity"`) {
		t.Errorf("unexpected JSON: %s", data)
	}
}

func TestCreateOrder(t *testing.T) {
	tests := []struct {
		name  string
		owner string
		items []models.OrderItem
		want  []string
	}{
		{
			name:  "valid",
			owner: "buyer-1",
			items: []models.OrderItem{{ProductID: "p1", Quantity: 2, UnitPrice: 100}},
		},
		{
			name: "missing owner and items",
			want: []string{"owner_id/required", "items/required"},
		},
		{
			name:  "every bad item field reported",
			owner: "buyer-1",
			items: []models.OrderItem{
				{ProductID: "", Quantity: 0, UnitPrice: -1},
				{ProductID: "p2", Quantity: 1, UnitPrice: 0},
			},
			want: []string{
				"items[0].product_id/required",
				"items[0].quantity/out_of_range",
				"items[0].unit_price/out_of_range",
			},
		},
		{
			name:  "quantity above limit",
			owner: "buyer-1",
			items: []models.OrderItem{{ProductID: "p1", Quantity: math.MaxInt64, UnitPrice: 1}},
			want:  []string{"items[0].quantity/out_of_range"},
		},
		{
			name:  "single item total would overflow",
			owner: "buyer-1",
			items: []models.OrderItem{{ProductID: "p1", Quantity: MaxItemQuantity, UnitPrice: MaxOrderTotal}},
			want:  []string{"total/out_of_range"},
		},
		{
			name:  "total over limit across items reported once",
			owner: "buyer-1",
			items: []models.OrderItem{
				{ProductID: "p1", Quantity: 1, UnitPrice: MaxOrderTotal},
				{ProductID: "p2", Quantity: 1, UnitPrice: 1},
				{ProductID: "p3", Quantity: 1, UnitPrice: 1},
			},
			want: []string{"total/out_of_range"},
		},
		{
			name:  "total exactly at limit",
			owner: "buyer-1",
			items: []models.OrderItem{
				{ProductID: "p1", Quantity: 2, UnitPrice: MaxOrderTotal / 4},
				{ProductID: "p2", Quantity: 1, UnitPrice: MaxOrderTotal / 2},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := codes(CreateOrder(tt.owner, tt.items))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("CreateOrder() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSubmitOrder(t *testing.T) {
	draft := &models.Order{Status: models.OrderStatusDraft, Items: []models.OrderItem{{ProductID: "p", Quantity: 1}}}
	if c := SubmitOrder(draft); !c.IsValid() {
		t.Errorf("unexpected errors: %v", c.Error())
	}

	pending := &models.Order{Status: models.OrderStatusPending}
	got := codes(SubmitOrder(pending))
	want := []string{"status/invalid_transition", "items/required"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SubmitOrder() mismatch (-want +got):\n%s", diff)
	}
}

func TestCreatePool(t *testing.T) {
	if c := CreatePool("p1", "s1", 10, now.Add(time.Hour), now); !c.IsValid() {
		t.Errorf("unexpected errors: %v", c.Error())
	}

	got := codes(CreatePool("", "", 0, now, now))
	want := []string{
		"product_id/required",
		"supplier_id/required",
		"target_quantity/out_of_range",
		"expires_at/out_of_range",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CreatePool() mismatch (-want +got):\n%s", diff)
	}
}

func TestJoinPool(t *testing.T) {
	openPool := func(current int64) *models.PoolGroup {
		return &models.PoolGroup{
			ID:              "pool-1",
			TargetQuantity:  10,
			CurrentQuantity: current,
			Status:          models.PoolStatusOpen,
			ExpiresAt:       now.Add(time.Hour),
		}
	}
	pending := func() *models.Order { return &models.Order{ID: "o1", Status: models.OrderStatusPending} }

	tests := []struct {
		name string
		in   JoinInput
		want []string
	}{
		{
			name: "admitted",
			in:   JoinInput{Order: pending(), Pool: openPool(6), Quantity: 4, Now: now},
		},
		{
			name: "capacity exceeded",
			in:   JoinInput{Order: pending(), Pool: openPool(6), Quantity: 5, Now: now},
			want: []string{"quantity/capacity_exceeded"},
		},
		{
			name: "max int64 quantity does not wrap past capacity",
			in:   JoinInput{Order: pending(), Pool: openPool(6), Quantity: math.MaxInt64, Now: now},
			want: []string{"quantity/capacity_exceeded"},
		},
		{
			name: "zero quantity skips capacity rule",
			in:   JoinInput{Order: pending(), Pool: openPool(10), Quantity: 0, Now: now},
			want: []string{"quantity/out_of_range"},
		},
		{
			name: "expired and over capacity reported together",
			in: JoinInput{
				Order:    pending(),
				Pool:     func() *models.PoolGroup { p := openPool(8); p.ExpiresAt = now; return p }(),
				Quantity: 5,
				Now:      now,
			},
			want: []string{"expires_at/pool_expired", "quantity/capacity_exceeded"},
		},
		{
			name: "everything wrong",
			in: JoinInput{
				Order:    &models.Order{ID: "o1", Status: models.OrderStatusDraft},
				Pool:     func() *models.PoolGroup { p := openPool(10); p.Status = models.PoolStatusFilled; return p }(),
				Active:   &models.Participant{PoolGroupID: "pool-0", Active: true},
				Quantity: 1,
				Now:      now,
			},
			want: []string{
				"status/invalid_transition",
				"order_id/duplicate",
				"pool_group_id/pool_closed",
				"quantity/capacity_exceeded",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := codes(JoinPool(tt.in))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("JoinPool() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLeavePool(t *testing.T) {
	order := &models.Order{Status: models.OrderStatusPooling}
	participant := &models.Participant{Active: true}
	pool := &models.PoolGroup{Status: models.PoolStatusOpen}

	if c := LeavePool(order, participant, pool); !c.IsValid() {
		t.Errorf("unexpected errors: %v", c.Error())
	}

	got := codes(LeavePool(&models.Order{Status: models.OrderStatusProcessing}, nil, &models.PoolGroup{Status: models.PoolStatusFilled}))
	want := []string{"status/invalid_transition", "order_id/not_participant", "pool_group_id/pool_closed"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LeavePool() mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateStatus(t *testing.T) {
	tests := []struct {
		name string
		in   StatusUpdateInput
		want []string
	}{
		{
			name: "PROCESSING -> COMPLETED",
			in:   StatusUpdateInput{Order: &models.Order{Status: models.OrderStatusProcessing}, To: models.OrderStatusCompleted},
		},
		{
			name: "PROCESSING -> POOLING rejected",
			in:   StatusUpdateInput{Order: &models.Order{Status: models.OrderStatusProcessing}, To: models.OrderStatusPooling},
			want: []string{"status/invalid_transition", "pool_group_id/required"},
		},
		{
			name: "unknown status",
			in:   StatusUpdateInput{Order: &models.Order{Status: models.OrderStatusDraft}, To: "SHIPPED"},
			want: []string{"status/unknown_value"},
		},
		{
			name: "cancel pooled order in closed pool",
			in: StatusUpdateInput{
				Order: &models.Order{Status: models.OrderStatusPooling},
				To:    models.OrderStatusCancelled,
				Pool:  &models.PoolGroup{Status: models.PoolStatusFilled},
				Note:  strings.Repeat("x", MaxNoteLength+1),
			},
			want: []string{"pool_group_id/pool_closed", "note/out_of_range"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := codes(UpdateStatus(tt.in))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("UpdateStatus() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExpirePool(t *testing.T) {
	pool := &models.PoolGroup{Status: models.PoolStatusOpen, ExpiresAt: now}
	if c := ExpirePool(pool, now); !c.IsValid() {
		t.Errorf("unexpected errors: %v", c.Error())
	}

	pool = &models.PoolGroup{Status: models.PoolStatusFilled, ExpiresAt: now.Add(time.Minute)}
	got := codes(ExpirePool(pool, now))
	want := []string{"status/pool_closed", "expires_at/out_of_range"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExpirePool() mismatch (-want +got):\n%s", diff)
	}
}

func TestOrderFilter(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		f, c := OrderFilter(RawOrderFilter{})
		if !c.IsValid() {
			t.Fatalf("unexpected errors: %v", c.Error())
		}
		if f.Page != 1 || f.Limit != models.DefaultPageLimit || f.Status != nil {
			t.Errorf("unexpected filter: %+v", f)
		}
	})

	t.Run("parses every field", func(t *testing.T) {
		f, c := OrderFilter(RawOrderFilter{
			UserID: "u1", SupplierID: "s1", Status: "pooling", PoolGroupID: "pool-1", Page: "2", Limit: "50",
		})
		if !c.IsValid() {
			t.Fatalf("unexpected errors: %v", c.Error())
		}
		if *f.UserID != "u1" || *f.SupplierID != "s1" || *f.PoolGroupID != "pool-1" {
			t.Errorf("unexpected ids: %+v", f)
		}
		if *f.Status != models.OrderStatusPooling || f.Page != 2 || f.Limit != 50 {
			t.Errorf("unexpected filter: %+v", f)
		}
	})

	t.Run("rejects unknown status and bad paging", func(t *testing.T) {
		_, c := OrderFilter(RawOrderFilter{Status: "shipped", Page: "0", Limit: "1000"})
		want := []string{"status/unknown_value", "page/out_of_range", "limit/out_of_range"}
		if diff := cmp.Diff(want, codes(c)); diff != "" {
			t.Errorf("OrderFilter() mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestPagination(t *testing.T) {
	bad := models.OrderStatus("SHIPPED")
	c := Pagination(models.OrderFilter{Page: 0, Limit: 0, Status: &bad})
	want := []string{"page/out_of_range", "limit/out_of_range", "status/unknown_value"}
	if diff := cmp.Diff(want, codes(c)); diff != "" {
		t.Errorf("Pagination() mismatch (-want +got):\n%s", diff)
	}
}
