package types

import "testing"

func TestCategoryNames(t *testing.T) {
	tests := []struct {
		cat  Category
		name string
	}{
		{Uncategorized, "uncategorized"},
		{CanClose, "can-close"},
		{SaveLater, "save-later"},
		{Important, "important"},
	}
	for _, tt := range tests {
		if got := tt.cat.String(); got != tt.name {
			t.Errorf("Category(%d).String() = %q, want %q", int(tt.cat), got, tt.name)
		}
		parsed, err := ParseCategory(tt.name)
		if err != nil {
			t.Fatalf("ParseCategory(%q): %v", tt.name, err)
		}
		if parsed != tt.cat {
			t.Errorf("ParseCategory(%q) = %v, want %v", tt.name, parsed, tt.cat)
		}
	}
}

func TestParseCategoryUnknown(t *testing.T) {
	if _, err := ParseCategory("urgent"); err == nil {
		t.Error("expected error for unknown category name")
	}
}

func TestCategoryOrder(t *testing.T) {
	if !(Uncategorized < CanClose && CanClose < SaveLater && SaveLater < Important) {
		t.Error("category importance order broken")
	}
}

func TestUnitClone(t *testing.T) {
	u := &Unit{ID: 1, Address: "https://example.com", DuplicateIDs: []int{5, 7}}
	c := u.Clone()
	c.DuplicateIDs[0] = 99
	if u.DuplicateIDs[0] != 5 {
		t.Error("Clone shares DuplicateIDs backing array")
	}
}
