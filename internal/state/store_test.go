package state

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "state.json"))
	st, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.PoolID != 0 || st.PositionID != 0 {
		t.Errorf("expected zero state, got %+v", st)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "state.json"))

	want := State{PoolID: 1066, PositionID: 42}
	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Errorf("Load = %+v, want %+v", got, want)
	}
}

func TestSave_Overwrites(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "state.json"))

	if err := s.Save(State{PoolID: 1, PositionID: 7}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(State{PoolID: 1, PositionID: 0}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.PositionID != 0 {
		t.Errorf("PositionID = %d, want 0 after clear", got.PositionID)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "state.json"))
	if err := s.Save(State{PoolID: 1, PositionID: 7}); err != nil {
		t.Fatal(err)
	}

	os.Setenv("CLBOT_STATE_POSITION_ID", "99")
	defer os.Unsetenv("CLBOT_STATE_POSITION_ID")

	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.PositionID != 99 {
		t.Errorf("PositionID = %d, want env override 99", got.PositionID)
	}
	if got.PoolID != 1 {
		t.Errorf("PoolID = %d, want file value 1", got.PoolID)
	}
}
