package storage

import (
	"errors"
	"testing"

	"github.com/tabtriage/tabtriage/internal/types"
)

func TestGetRecordNotFound(t *testing.T) {
	db := testDB(t)

	_, err := GetRecord(db, "https://nope.example/")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestUpsertAndGetRecord(t *testing.T) {
	db := testDB(t)

	rec := URLRecord{
		Address:    "https://example.com/article",
		Title:      "An Article",
		Domain:     "example.com",
		Category:   types.SaveLater,
		Provenance: types.ProvenanceRemote,
	}
	if err := UpsertRecord(db, rec); err != nil {
		t.Fatalf("UpsertRecord: %v", err)
	}

	got, err := GetRecord(db, rec.Address)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if got.Category != types.SaveLater || got.Provenance != types.ProvenanceRemote {
		t.Errorf("got category=%v provenance=%q", got.Category, got.Provenance)
	}
	if got.Title != "An Article" || got.Domain != "example.com" {
		t.Errorf("got title=%q domain=%q", got.Title, got.Domain)
	}
	if got.LastCategorized == nil {
		t.Error("last_categorized not set")
	}

	// A later automatic assignment replaces an automatic one.
	rec.Category = types.Important
	rec.Provenance = types.ProvenanceRule
	if err := UpsertRecord(db, rec); err != nil {
		t.Fatalf("second UpsertRecord: %v", err)
	}
	got, _ = GetRecord(db, rec.Address)
	if got.Category != types.Important {
		t.Errorf("category = %v after re-upsert, want Important", got.Category)
	}
}

func TestUpsertNeverOverwritesCorrection(t *testing.T) {
	db := testDB(t)
	const address = "https://corrected.example/"

	// User corrects to Important.
	err := UpsertRecord(db, URLRecord{
		Address:    address,
		Category:   types.Important,
		Provenance: types.ProvenanceCorrection,
	})
	if err != nil {
		t.Fatalf("correction upsert: %v", err)
	}

	// An automatic run tries to demote it.
	err = UpsertRecord(db, URLRecord{
		Address:    address,
		Category:   types.CanClose,
		Provenance: types.ProvenanceRemote,
	})
	if err != nil {
		t.Fatalf("automatic upsert: %v", err)
	}

	got, _ := GetRecord(db, address)
	if got.Category != types.Important || got.Provenance != types.ProvenanceCorrection {
		t.Fatalf("correction overwritten: category=%v provenance=%q", got.Category, got.Provenance)
	}

	// A newer correction may replace an older correction.
	err = UpsertRecord(db, URLRecord{
		Address:    address,
		Category:   types.SaveLater,
		Provenance: types.ProvenanceCorrection,
	})
	if err != nil {
		t.Fatalf("second correction upsert: %v", err)
	}
	got, _ = GetRecord(db, address)
	if got.Category != types.SaveLater {
		t.Fatalf("newer correction did not apply, category=%v", got.Category)
	}
}

func TestGetRecords(t *testing.T) {
	db := testDB(t)
	UpsertRecord(db, URLRecord{Address: "https://a.example/", Category: types.Important, Provenance: types.ProvenanceRule})
	UpsertRecord(db, URLRecord{Address: "https://b.example/", Category: types.CanClose, Provenance: types.ProvenanceRemote})

	got, err := GetRecords(db, []string{"https://a.example/", "https://b.example/", "https://missing.example/"})
	if err != nil {
		t.Fatalf("GetRecords: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got["https://a.example/"].Category != types.Important {
		t.Errorf("a.example category = %v", got["https://a.example/"].Category)
	}
	if _, ok := got["https://missing.example/"]; ok {
		t.Error("missing address present in result")
	}
}

func TestSetSavedAndSavedAddresses(t *testing.T) {
	db := testDB(t)
	UpsertRecord(db, URLRecord{Address: "https://known.example/", Category: types.SaveLater, Provenance: types.ProvenanceRemote})

	// Saving an existing record.
	if err := SetSaved(db, "https://known.example/", true); err != nil {
		t.Fatalf("SetSaved existing: %v", err)
	}
	// Saving a brand new address creates a bare record.
	if err := SetSaved(db, "https://fresh.example/", true); err != nil {
		t.Fatalf("SetSaved new: %v", err)
	}

	saved, err := SavedAddresses(db)
	if err != nil {
		t.Fatalf("SavedAddresses: %v", err)
	}
	if len(saved) != 2 || !saved["https://known.example/"] || !saved["https://fresh.example/"] {
		t.Fatalf("saved = %v", saved)
	}

	// Unsave.
	if err := SetSaved(db, "https://known.example/", false); err != nil {
		t.Fatalf("SetSaved false: %v", err)
	}
	saved, _ = SavedAddresses(db)
	if saved["https://known.example/"] {
		t.Error("address still saved after unsave")
	}

	// Unsaving an unknown address errors.
	if err := SetSaved(db, "https://nope.example/", false); err == nil {
		t.Error("expected error unsaving unknown address")
	}
}

func TestListRecords(t *testing.T) {
	db := testDB(t)
	UpsertRecord(db, URLRecord{Address: "https://a.example/", Category: types.Important, Provenance: types.ProvenanceRule})
	UpsertRecord(db, URLRecord{Address: "https://b.example/", Category: types.CanClose, Provenance: types.ProvenanceRemote})
	SetSaved(db, "https://b.example/", true)

	all, err := ListRecords(db, false)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d records, want 2", len(all))
	}

	saved, err := ListRecords(db, true)
	if err != nil {
		t.Fatalf("ListRecords saved: %v", err)
	}
	if len(saved) != 1 || saved[0].Address != "https://b.example/" {
		t.Fatalf("saved records = %+v", saved)
	}
}

func TestListCategorized(t *testing.T) {
	db := testDB(t)
	UpsertRecord(db, URLRecord{Address: "https://a.example/", Category: types.Important, Provenance: types.ProvenanceRule})
	SetSaved(db, "https://bare.example/", true) // bare record, category 0

	recs, err := ListCategorized(db)
	if err != nil {
		t.Fatalf("ListCategorized: %v", err)
	}
	if len(recs) != 1 || recs[0].Address != "https://a.example/" {
		t.Fatalf("categorized = %+v", recs)
	}
}

func TestDeleteRecord(t *testing.T) {
	db := testDB(t)
	UpsertRecord(db, URLRecord{Address: "https://a.example/", Category: types.Important, Provenance: types.ProvenanceRule})
	AppendEvent(db, "https://a.example/", EventOpen, 4)

	if err := DeleteRecord(db, "https://a.example/"); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if _, err := GetRecord(db, "https://a.example/"); !errors.Is(err, ErrNotFound) {
		t.Fatal("record still present after delete")
	}

	// Events cascade.
	var count int
	db.QueryRow("SELECT COUNT(*) FROM url_events").Scan(&count)
	if count != 0 {
		t.Errorf("expected 0 orphan events, got %d", count)
	}

	// Deleting non-existent should error.
	if err := DeleteRecord(db, "https://a.example/"); err == nil {
		t.Fatal("expected error deleting non-existent record")
	}
}

func TestDeleteRecordCascadesOnSecondConnection(t *testing.T) {
	db := testDB(t)
	const address = "https://pinned.example/"
	UpsertRecord(db, URLRecord{Address: address, Category: types.CanClose, Provenance: types.ProvenanceRemote})
	AppendEvent(db, address, EventOpen, 2)

	// Hold a rows iterator open so the delete below is served by a
	// second pooled connection, which must also have foreign keys on.
	rows, err := db.Query("SELECT address FROM url_records")
	if err != nil {
		t.Fatalf("pin query: %v", err)
	}
	defer rows.Close()
	if !rows.Next() {
		t.Fatal("no rows to pin")
	}

	if err := DeleteRecord(db, address); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	rows.Close()

	var count int
	db.QueryRow("SELECT COUNT(*) FROM url_events").Scan(&count)
	if count != 0 {
		t.Errorf("expected 0 orphan events, got %d", count)
	}
}

func TestAppendAndListEvents(t *testing.T) {
	db := testDB(t)
	const address = "https://evented.example/"

	// First event creates the record row implicitly.
	if err := AppendEvent(db, address, EventOpen, 7); err != nil {
		t.Fatalf("AppendEvent open: %v", err)
	}
	if err := AppendEvent(db, address, EventClose, 7); err != nil {
		t.Fatalf("AppendEvent close: %v", err)
	}

	events, err := ListEvents(db, address)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].EventType != EventOpen || events[1].EventType != EventClose {
		t.Errorf("event order = [%s, %s]", events[0].EventType, events[1].EventType)
	}
	if events[0].InstanceID != 7 {
		t.Errorf("instance id = %d, want 7", events[0].InstanceID)
	}

	// The implicit record exists with no category.
	rec, err := GetRecord(db, address)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.Category != types.Uncategorized {
		t.Errorf("implicit record category = %v", rec.Category)
	}
}
