package positions

import "testing"

func TestUpdateAndOffsetRoundTrip(t *testing.T) {
	s, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	s.Update("/var/log/rig.log", 128, 4096)
	if got := s.Offset("/var/log/rig.log"); got != 128 {
		t.Fatalf("expected offset 128, got %d", got)
	}
}

func TestUpdateResetsOffsetOnTruncation(t *testing.T) {
	s, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	s.Update("/var/log/rig.log", 4096, 4096)
	s.Update("/var/log/rig.log", 10, 100)
	if got := s.Offset("/var/log/rig.log"); got != 0 {
		t.Fatalf("expected offset reset to 0 after truncation, got %d", got)
	}
}

func TestSaveAndLoadPersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	s1, err := New(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	s1.Update("/var/log/rig.log", 512, 1024)
	if err := s1.Save(); err != nil {
		t.Fatal(err)
	}

	s2, err := New(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := s2.Offset("/var/log/rig.log"); got != 512 {
		t.Fatalf("expected reloaded offset 512, got %d", got)
	}
}
