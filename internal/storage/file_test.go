package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"cronlens/internal/engine"
	logx "cronlens/pkg/logx"
)

func openTempFileStore(t *testing.T, dir string) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "store")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if st == nil {
		t.Fatal("Open returned nil store for file driver")
	}
	return st
}

func TestFileStoreCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTempFileStore(t, t.TempDir())
	defer st.Close()

	sc := engine.Schedule{
		ID:              "s1",
		Name:            "backup",
		Expression:      "0 2 * * *",
		DurationMinutes: 30,
		IsActive:        true,
		Color:           "#ef4444",
	}
	if err := st.PutSchedule(ctx, sc); err != nil {
		t.Fatalf("PutSchedule: %v", err)
	}

	got, err := st.GetSchedule(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSchedule: %v", err)
	}
	if got != sc {
		t.Fatalf("GetSchedule = %+v, want %+v", got, sc)
	}

	sc.DurationMinutes = 45
	if err := st.PutSchedule(ctx, sc); err != nil {
		t.Fatalf("PutSchedule update: %v", err)
	}
	got, err = st.GetSchedule(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSchedule after update: %v", err)
	}
	if got.DurationMinutes != 45 {
		t.Fatalf("update not applied: %+v", got)
	}

	if err := st.DeleteSchedule(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSchedule: %v", err)
	}
	if _, err := st.GetSchedule(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetSchedule after delete: %v, want ErrNotFound", err)
	}
	if err := st.DeleteSchedule(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete: %v, want ErrNotFound", err)
	}
}

func TestFileStoreListSortedByName(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTempFileStore(t, t.TempDir())
	defer st.Close()

	for _, sc := range []engine.Schedule{
		{ID: "1", Name: "zeta", Expression: "* * * * *", DurationMinutes: 1, IsActive: true},
		{ID: "2", Name: "alpha", Expression: "* * * * *", DurationMinutes: 1, IsActive: true},
		{ID: "3", Name: "mid", Expression: "* * * * *", DurationMinutes: 1, IsActive: true},
	} {
		if err := st.PutSchedule(ctx, sc); err != nil {
			t.Fatalf("PutSchedule: %v", err)
		}
	}

	list, err := st.ListSchedules(ctx)
	if err != nil {
		t.Fatalf("ListSchedules: %v", err)
	}
	if len(list) != 3 || list[0].Name != "alpha" || list[1].Name != "mid" || list[2].Name != "zeta" {
		t.Fatalf("list not sorted by name: %+v", list)
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	st := openTempFileStore(t, dir)
	sc := engine.Schedule{ID: "keep", Name: "keep", Expression: "0 0 * * *", DurationMinutes: 10, IsActive: true}
	gone := engine.Schedule{ID: "gone", Name: "gone", Expression: "0 0 * * *", DurationMinutes: 10, IsActive: true}
	if err := st.PutSchedule(ctx, sc); err != nil {
		t.Fatalf("PutSchedule: %v", err)
	}
	if err := st.PutSchedule(ctx, gone); err != nil {
		t.Fatalf("PutSchedule: %v", err)
	}
	if err := st.DeleteSchedule(ctx, "gone"); err != nil {
		t.Fatalf("DeleteSchedule: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st2 := openTempFileStore(t, dir)
	defer st2.Close()
	list, err := st2.ListSchedules(ctx)
	if err != nil {
		t.Fatalf("ListSchedules after reopen: %v", err)
	}
	if len(list) != 1 || list[0].ID != "keep" {
		t.Fatalf("reopened state wrong: %+v", list)
	}
}

func TestFileStoreAudit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTempFileStore(t, t.TempDir())
	defer st.Close()

	if err := st.AppendAudit(ctx, AuditEntry{Action: "create", ScheduleID: "s1"}); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("disabled storage: st=%v err=%v", st, err)
	}
	if _, err := Open(Config{Driver: "bolt", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
