package app

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "dserv.yaml")
	yaml := "" +
		"server:\n  port: 0\n  host: 127.0.0.1\n" +
		"table:\n  shards: 4\n" +
		"processor:\n  plugin_dir: " + filepath.Join(dir, "processors") + "\n" +
		"trigger:\n  script_dir: " + filepath.Join(dir, "triggers") + "\n" +
		"logdir:\n  root: " + filepath.Join(dir, "logs") + "\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewBuildsEveryComponent(t *testing.T) {
	a, err := New(writeTestConfig(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if a.table == nil || a.orch == nil || a.hub == nil || a.sendTbl == nil || a.logTbl == nil {
		t.Fatal("expected core components to be built")
	}
}

func TestStartAndStopRoundTrip(t *testing.T) {
	a, err := New(writeTestConfig(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if a.listener == nil {
		t.Fatal("expected a listener after Start")
	}
	if err := a.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestIngestionReachesTable(t *testing.T) {
	a, err := New(writeTestConfig(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if got := a.hub.Dispatch("%set ess/state=running"); got != "1" {
		t.Fatalf("unexpected set reply: %q", got)
	}
	dp, ok := a.orch.Get("ess/state")
	if !ok {
		t.Fatal("expected ess/state to be set")
	}
	if dp.AsString() != "running" {
		t.Fatalf("unexpected value: %q", dp.AsString())
	}
}
