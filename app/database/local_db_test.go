package database

import (
	"path/filepath"
	"testing"
	"time"

	"PosPrint/app/config"
	"PosPrint/app/models"
)

func openTestLocalDB(t *testing.T) *LocalDB {
	t.Helper()
	l, err := OpenLocalDB(filepath.Join(t.TempDir(), "local.db"))
	if err != nil {
		t.Fatalf("open local db: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestInsertPendingIsUniquePerKind(t *testing.T) {
	l := openTestLocalDB(t)

	first, err := l.InsertPending(&models.PendingRecord{ID: "a", Kind: models.RecordBill, Payload: []byte{1}})
	if err != nil || !first {
		t.Fatalf("first insert: inserted=%v err=%v", first, err)
	}
	again, err := l.InsertPending(&models.PendingRecord{ID: "a", Kind: models.RecordBill, Payload: []byte{2}})
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if again {
		t.Fatalf("duplicate id was inserted")
	}
	// same id in the other queue is a different record
	other, err := l.InsertPending(&models.PendingRecord{ID: "a", Kind: models.RecordKOT})
	if err != nil || !other {
		t.Fatalf("kot insert: inserted=%v err=%v", other, err)
	}

	if n, _ := l.CountPending(models.RecordBill); n != 1 {
		t.Fatalf("bills = %d, want 1", n)
	}
	recs, err := l.ListPending(models.RecordBill)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Payload[0] != 1 {
		t.Fatalf("stored record = %+v", recs)
	}
}

func TestPendingLifecycle(t *testing.T) {
	l := openTestLocalDB(t)
	if _, err := l.InsertPending(&models.PendingRecord{ID: "k1", Kind: models.RecordKOT}); err != nil {
		t.Fatal(err)
	}

	if err := l.MarkPendingFailed(models.RecordKOT, "k1", "backend down"); err != nil {
		t.Fatal(err)
	}
	recs, _ := l.ListPending(models.RecordKOT)
	if len(recs) != 1 || recs[0].Attempts != 1 || recs[0].LastError != "backend down" {
		t.Fatalf("after failure: %+v", recs)
	}

	if err := l.DeletePending(models.RecordKOT, "k1"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := l.HasPending(models.RecordKOT, "k1"); ok {
		t.Fatalf("record still present after delete")
	}

	_, _ = l.InsertPending(&models.PendingRecord{ID: "b", Kind: models.RecordBill})
	_, _ = l.InsertPending(&models.PendingRecord{ID: "k", Kind: models.RecordKOT})
	if err := l.ClearPending(); err != nil {
		t.Fatal(err)
	}
	bills, _ := l.CountPending(models.RecordBill)
	kots, _ := l.CountPending(models.RecordKOT)
	if bills != 0 || kots != 0 {
		t.Fatalf("clear left bills=%d kots=%d", bills, kots)
	}
}

func TestSequenceRecordPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.db")
	l, err := OpenLocalDB(path)
	if err != nil {
		t.Fatal(err)
	}
	if rec, err := l.LoadSequence(); err != nil || rec != nil {
		t.Fatalf("fresh db: rec=%v err=%v", rec, err)
	}
	if err := l.SaveSequence("2026-10-19", 4); err != nil {
		t.Fatal(err)
	}
	if err := l.SaveSequence("2026-10-19", 5); err != nil {
		t.Fatal(err)
	}
	_ = l.Close()

	reopened, err := OpenLocalDB(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	rec, err := reopened.LoadSequence()
	if err != nil || rec == nil {
		t.Fatalf("load: rec=%v err=%v", rec, err)
	}
	if rec.Date != "2026-10-19" || rec.Counter != 5 {
		t.Fatalf("record = %+v", rec)
	}
}

func TestReferenceLastWriteWins(t *testing.T) {
	l := openTestLocalDB(t)
	t1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	if err := l.SaveReference(models.ReferenceProducts, `[{"id":1}]`, t1); err != nil {
		t.Fatal(err)
	}
	if err := l.SaveReference(models.ReferenceProducts, `[{"id":2}]`, t2); err != nil {
		t.Fatal(err)
	}
	ref, err := l.LoadReference(models.ReferenceProducts)
	if err != nil || ref == nil {
		t.Fatalf("load: ref=%v err=%v", ref, err)
	}
	if ref.Data != `[{"id":2}]` || !ref.LastSynced.Equal(t2) {
		t.Fatalf("ref = %+v", ref)
	}

	if missing, err := l.LoadReference(models.ReferenceSections); err != nil || missing != nil {
		t.Fatalf("missing key: ref=%v err=%v", missing, err)
	}
}

func TestOpenSQLiteMainDBSeedsCounter(t *testing.T) {
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "main.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer Close(db)

	var counter models.BillCounter
	if err := db.First(&counter, 1).Error; err != nil {
		t.Fatalf("counter row: %v", err)
	}
	if counter.Value != 0 {
		t.Fatalf("counter = %d, want 0", counter.Value)
	}

	// migrations are repeatable
	if err := RunMigrations(db); err != nil {
		t.Fatalf("second migration: %v", err)
	}
}

func TestPayloadCodec(t *testing.T) {
	codec, err := NewPayloadCodec()
	if err != nil {
		t.Fatal(err)
	}
	in := models.BillPayload{ID: "a", Total: 12.5, Items: []models.LineItem{{Name: "Burger", Quantity: 2, UnitPrice: 6.25}}}
	data, err := codec.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out models.BillPayload
	if err := codec.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.ID != "a" || out.Total != 12.5 || len(out.Items) != 1 || out.Items[0].Name != "Burger" {
		t.Fatalf("decoded = %+v", out)
	}
}
