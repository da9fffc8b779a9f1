package lifecycle

import (
	"errors"
	"testing"

	"groupbuy/internal/models"
)

// TestCanTransition_ValidTransitions проверяет все рёбра таблицы переходов
func TestCanTransition_ValidTransitions(t *testing.T) {
	tests := []struct {
		name string
		from models.OrderStatus
		to   models.OrderStatus
	}{
		{"DRAFT → PENDING (owner submits)", models.OrderStatusDraft, models.OrderStatusPending},
		{"PENDING → POOLING (joins pool)", models.OrderStatusPending, models.OrderStatusPooling},
		{"PENDING → CANCELLED (owner cancels)", models.OrderStatusPending, models.OrderStatusCancelled},
		{"POOLING → PROCESSING (pool filled)", models.OrderStatusPooling, models.OrderStatusProcessing},
		{"POOLING → CANCELLED (left or expired)", models.OrderStatusPooling, models.OrderStatusCancelled},
		{"PROCESSING → COMPLETED (fulfilled)", models.OrderStatusProcessing, models.OrderStatusCompleted},
		{"DRAFT → CANCELLED (owner cancels)", models.OrderStatusDraft, models.OrderStatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !CanTransition(tt.from, tt.to) {
				t.Errorf("CanTransition(%s, %s) = false, want true", tt.from, tt.to)
			}
		})
	}
}

// TestCanTransition_InvalidTransitions проверяет что всё вне таблицы запрещено
func TestCanTransition_InvalidTransitions(t *testing.T) {
	legal := map[[2]models.OrderStatus]bool{
		{models.OrderStatusDraft, models.OrderStatusPending}:        true,
		{models.OrderStatusPending, models.OrderStatusPooling}:      true,
		{models.OrderStatusPending, models.OrderStatusCancelled}:    true,
		{models.OrderStatusPooling, models.OrderStatusProcessing}:   true,
		{models.OrderStatusPooling, models.OrderStatusCancelled}:    true,
		{models.OrderStatusProcessing, models.OrderStatusCompleted}: true,
		{models.OrderStatusDraft, models.OrderStatusCancelled}:      true,
	}

	count := 0
	for _, from := range models.AllOrderStatuses {
		for _, to := range models.AllOrderStatuses {
			if legal[[2]models.OrderStatus{from, to}] {
				count++
				continue
			}
			if CanTransition(from, to) {
				t.Errorf("CanTransition(%s, %s) = true, want false", from, to)
			}
			err := Check(from, to)
			var te *TransitionError
			if !errors.As(err, &te) {
				t.Fatalf("Check(%s, %s) = %v, want *TransitionError", from, to, err)
			}
			if te.From != from || te.To != to {
				t.Errorf("TransitionError carries (%s, %s), want (%s, %s)", te.From, te.To, from, to)
			}
			if !errors.Is(err, ErrInvalidTransition) {
				t.Error("TransitionError must unwrap to ErrInvalidTransition")
			}
		}
	}
	if count != 7 {
		t.Errorf("expected 7 legal edges, found %d", count)
	}
}

func TestCanTransition_UnknownState(t *testing.T) {
	if CanTransition("SHIPPED", models.OrderStatusCancelled) {
		t.Error("unknown source state must not transition")
	}
	if CanTransition(models.OrderStatusDraft, "SHIPPED") {
		t.Error("unknown target state must not be reachable")
	}
}

func TestApply(t *testing.T) {
	t.Run("applies legal edge", func(t *testing.T) {
		order := &models.Order{ID: "o1", Status: models.OrderStatusDraft}

		tr, err := Apply(order, models.OrderStatusPending, "buyer-1", "submitted")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if order.Status != models.OrderStatusPending {
			t.Errorf("status = %s, want PENDING", order.Status)
		}
		if tr.From != models.OrderStatusDraft || tr.To != models.OrderStatusPending || tr.ActorID != "buyer-1" {
			t.Errorf("unexpected transition: %+v", tr)
		}
	})

	t.Run("leaves order untouched on illegal edge", func(t *testing.T) {
		order := &models.Order{ID: "o1", Status: models.OrderStatusProcessing}

		_, err := Apply(order, models.OrderStatusPooling, "admin", "")
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
		if order.Status != models.OrderStatusProcessing {
			t.Errorf("status changed to %s", order.Status)
		}
	})

	t.Run("POOLING requires pool group", func(t *testing.T) {
		order := &models.Order{ID: "o1", Status: models.OrderStatusPending}

		_, err := Apply(order, models.OrderStatusPooling, "buyer-1", "")
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
		if order.Status != models.OrderStatusPending {
			t.Errorf("status changed to %s", order.Status)
		}

		poolID := "pool-1"
		order.PoolGroupID = &poolID
		if _, err := Apply(order, models.OrderStatusPooling, "buyer-1", ""); err != nil {
			t.Errorf("unexpected error with pool set: %v", err)
		}
	})
}

func TestIsTerminal(t *testing.T) {
	for _, s := range models.AllOrderStatuses {
		want := s == models.OrderStatusCompleted || s == models.OrderStatusCancelled
		if got := IsTerminal(s); got != want {
			t.Errorf("IsTerminal(%s) = %v, want %v", s, got, want)
		}
		if want && len(ValidTransitions[s]) != 0 {
			t.Errorf("terminal status %s has outgoing edges", s)
		}
	}
}

func TestIsCancellable(t *testing.T) {
	tests := map[models.OrderStatus]bool{
		models.OrderStatusDraft:      true,
		models.OrderStatusPending:    true,
		models.OrderStatusPooling:    true,
		models.OrderStatusProcessing: false,
		models.OrderStatusCompleted:  false,
		models.OrderStatusCancelled:  false,
	}
	for s, want := range tests {
		if got := IsCancellable(s); got != want {
			t.Errorf("IsCancellable(%s) = %v, want %v", s, got, want)
		}
	}
}

// TestValidTransitions_Completeness каждый статус присутствует в таблице
func TestValidTransitions_Completeness(t *testing.T) {
	for _, s := range models.AllOrderStatuses {
		if _, ok := ValidTransitions[s]; !ok {
			t.Errorf("status %s missing from ValidTransitions", s)
		}
		if StateInfo(s) == "Неизвестный статус" {
			t.Errorf("StateInfo(%s) has no description", s)
		}
	}
}

func TestValidTransitions_NoSelfLoops(t *testing.T) {
	for from, targets := range ValidTransitions {
		for _, to := range targets {
			if from == to {
				t.Errorf("self-loop on %s", from)
			}
		}
	}
}
