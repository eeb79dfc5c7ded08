package dbtypes

import "testing"

func TestStringListScan(t *testing.T) {
	var l StringList
	if err := l.Scan([]byte(`["large_transaction","cross_border"]`)); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(l) != 2 || !l.Contains("cross_border") {
		t.Fatalf("unexpected list %v", l)
	}

	if err := l.Scan(nil); err != nil || len(l) != 0 {
		t.Fatalf("nil scan should reset the list, got %v err=%v", l, err)
	}
	if err := l.Scan(42); err == nil {
		t.Fatal("expected error for unsupported type")
	}
}

func TestStringListValueNil(t *testing.T) {
	var l StringList
	v, err := l.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if v != "[]" {
		t.Fatalf("expected empty json array, got %v", v)
	}
}
