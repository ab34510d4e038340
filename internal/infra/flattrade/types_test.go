package flattrade

import (
	"testing"

	"knite_oms/internal/domain"
)

func TestMapStatus(t *testing.T) {
	tests := []struct {
		venue  string
		want   domain.OrderStatus
		wantOK bool
	}{
		{"REJECTED", domain.StatusRejected, true},
		{"CANCELLED", domain.StatusRejected, true},
		{"CANCELED", domain.StatusRejected, true},
		{"COMPLETE", domain.StatusComplete, true},
		{"OPEN", domain.StatusOpen, true},
		{"PENDING", domain.StatusOpen, true},
		{"TRIGGER_PENDING", domain.StatusOpen, true},
		{"AMO_RECEIVED", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.venue, func(t *testing.T) {
			got, ok := mapStatus(tt.venue)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("mapStatus(%q) = (%v, %v), want (%v, %v)", tt.venue, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestMapKind(t *testing.T) {
	tests := []struct {
		kind domain.OrderKind
		want string
	}{
		{domain.KindLimit, "LMT"},
		{domain.KindStop, "SL-LMT"},
		{domain.KindMarket, "MKT"},
	}
	for _, tt := range tests {
		if got := mapKind(tt.kind); got != tt.want {
			t.Errorf("mapKind(%v) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestToSnapshot_DropsUnknownStatus(t *testing.T) {
	_, ok := toSnapshot(orderDetail{OrderNo: "V1", Status: "SOMETHING_NEW"})
	if ok {
		t.Error("unknown venue status must not produce a snapshot")
	}

	snap, ok := toSnapshot(orderDetail{
		OrderNo:    "V2",
		Status:     "COMPLETE",
		PriceType:  "LMT",
		FillShares: "50",
		Price:      "101.5",
		Quantity:   "50",
		Remarks:    "KN1234",
	})
	if !ok {
		t.Fatal("expected snapshot for COMPLETE row")
	}
	if snap.Status != domain.StatusComplete || snap.FilledQty != 50 || snap.Tag != "KN1234" {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Kind != domain.KindLimit {
		t.Errorf("kind = %v, want LIMIT", snap.Kind)
	}
}
