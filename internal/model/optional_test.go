package model

import (
	"encoding/json"
	"testing"
)

func TestOpt_ZeroIsAbsent(t *testing.T) {
	var o Opt[int]
	if o.IsSet() {
		t.Error("zero Opt should be absent")
	}
	if got := o.Or(7); got != 7 {
		t.Errorf("Or(7) = %d, want 7", got)
	}
	if o.Ptr() != nil {
		t.Error("Ptr() of absent Opt should be nil")
	}
}

func TestOpt_ExplicitZeroIsPresent(t *testing.T) {
	o := Some(0)
	v, ok := o.Get()
	if !ok || v != 0 {
		t.Errorf("Get() = %d, %v, want 0, true", v, ok)
	}
}

func TestPendingEdit_JSON(t *testing.T) {
	edit := PendingEdit{Counted: Some(0), Price: Some(12.5)}

	data, err := json.Marshal(edit)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"countedValue":0,"pendingPrice":12.5}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}

	var decoded PendingEdit
	if err := json.Unmarshal([]byte(`{"countedValue":0,"addedValue":null}`), &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !decoded.Counted.IsSet() {
		t.Error("countedValue 0 should be present")
	}
	if decoded.Added.IsSet() {
		t.Error("addedValue null should be absent")
	}
}

func TestPendingEdit_Merge(t *testing.T) {
	base := PendingEdit{Counted: Some(5), Price: Some(1.0)}
	merged := base.Merge(PendingEdit{Price: Some(2.0), Name: Some("Cola")})

	if v, _ := merged.Counted.Get(); v != 5 {
		t.Errorf("Counted = %d, want 5", v)
	}
	if v, _ := merged.Price.Get(); v != 2.0 {
		t.Errorf("Price = %v, want 2", v)
	}
	if v, _ := merged.Name.Get(); v != "Cola" {
		t.Errorf("Name = %q, want Cola", v)
	}
	if (PendingEdit{}).IsEmpty() != true {
		t.Error("empty edit should report IsEmpty")
	}
}
