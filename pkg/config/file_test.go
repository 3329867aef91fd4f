package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMissingFileYieldsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sleepd.json")

	f, err := NewFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if got := f.ShutdownAfter(); got != 5*24*time.Hour {
		t.Errorf("ShutdownAfter = %s, want 120h", got)
	}
	if got := f.HibernateAfter(); got != 24*time.Hour {
		t.Errorf("HibernateAfter = %s, want 24h", got)
	}
	if got := f.MaxDelayTimeout(); got != 20*time.Second {
		t.Errorf("MaxDelayTimeout = %s, want 20s", got)
	}
	if got := f.LowBatteryShutdownPercent(); got != 3.0 {
		t.Errorf("LowBatteryShutdownPercent = %g, want 3", got)
	}
	if got := f.SuspendMode(); got != "s2idle" {
		t.Errorf("SuspendMode = %q, want s2idle", got)
	}
	if got := f.AdaptiveChargeHoldPercent(); got != 80 {
		t.Errorf("AdaptiveChargeHoldPercent = %d, want 80", got)
	}
	if f.AdaptiveChargeEnabled() {
		t.Error("adaptive charge should default to disabled")
	}
	if len(f.DarkResumeSchedule()) == 0 {
		t.Error("default dark resume schedule should not be empty")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sleepd.json")

	f, err := NewFile(path)
	if err != nil {
		t.Fatal(err)
	}

	f.SetAdaptiveChargeEnabled(true)
	f.SetAdaptiveChargeHoldPercent(75)
	f.SetAdaptiveChargeMinProbability(0.6)
	if err := f.Save(); err != nil {
		t.Fatal(err)
	}

	g, err := NewFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !g.AdaptiveChargeEnabled() {
		t.Error("AdaptiveChargeEnabled should survive the round trip")
	}
	if got := g.AdaptiveChargeHoldPercent(); got != 75 {
		t.Errorf("AdaptiveChargeHoldPercent = %d, want 75", got)
	}
	if got := g.AdaptiveChargeMinProbability(); got != 0.6 {
		t.Errorf("AdaptiveChargeMinProbability = %g, want 0.6", got)
	}

	// Unset fields still resolve to defaults after the round trip.
	if got := g.ShutdownAfter(); got != 5*24*time.Hour {
		t.Errorf("ShutdownAfter = %s, want default 120h", got)
	}
}

func TestEmptyFileYieldsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sleepd.json")
	if err := os.WriteFile(path, []byte("  \n"), 0644); err != nil {
		t.Fatal(err)
	}

	f, err := NewFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.SuspendRetries(); got != 10 {
		t.Errorf("SuspendRetries = %d, want default 10", got)
	}
}

func TestMalformedFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sleepd.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewFile(path); err == nil {
		t.Error("expected an error for malformed config")
	}
}
