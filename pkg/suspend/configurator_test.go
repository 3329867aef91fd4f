package suspend

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func testConfigurator(t *testing.T) (*Configurator, string) {
	t.Helper()
	dir := t.TempDir()

	c := NewConfigurator("s2idle")
	c.SleepModePath = filepath.Join(dir, "mem_sleep")
	c.WakealarmPath = filepath.Join(dir, "wakealarm")
	c.WakeupCountPath = filepath.Join(dir, "wakeup_count")
	c.ResumeResultPath = filepath.Join(dir, "last_resume_result")
	c.ResumeDevicePath = filepath.Join(dir, "resume")
	c.HibernateImagePath = filepath.Join(dir, "hibernate-image")

	if err := os.WriteFile(c.WakealarmPath, []byte("0"), 0644); err != nil {
		t.Fatal(err)
	}
	return c, dir
}

func TestPrepareWritesSleepMode(t *testing.T) {
	c, _ := testConfigurator(t)

	c.Prepare(0)

	b, err := os.ReadFile(c.SleepModePath)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "s2idle" {
		t.Errorf("mem_sleep = %q, want s2idle", b)
	}
}

func TestPrepareProgramsWakeAlarmForBoundedSuspend(t *testing.T) {
	c, _ := testConfigurator(t)
	now := time.Unix(1700000000, 0)
	c.clock = func() time.Time { return now }

	got := c.Prepare(time.Hour)
	want := uint64(now.Add(time.Hour).Unix())
	if got != want {
		t.Errorf("Prepare = %d, want %d", got, want)
	}

	b, err := os.ReadFile(c.WakealarmPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != strconv.FormatUint(want, 10) {
		t.Errorf("wakealarm = %q, want %d", b, want)
	}
}

func TestPrepareUnboundedProgramsNoAlarm(t *testing.T) {
	c, _ := testConfigurator(t)

	if got := c.Prepare(0); got != 0 {
		t.Errorf("Prepare(0) = %d, want 0", got)
	}
	b, _ := os.ReadFile(c.WakealarmPath)
	if string(b) != "0" {
		t.Errorf("wakealarm = %q, want untouched 0", b)
	}
}

func TestPrepareReportsUnwritableAlarm(t *testing.T) {
	c, _ := testConfigurator(t)
	c.WakealarmPath = filepath.Join(c.WakealarmPath, "nonexistent", "wakealarm")

	if got := c.Prepare(time.Hour); got != 0 {
		t.Errorf("Prepare = %d, want 0 when the RTC is unwritable", got)
	}
}

func TestPrepareSurvivesModeWriteFailure(t *testing.T) {
	c, _ := testConfigurator(t)
	c.SleepModePath = filepath.Join(c.SleepModePath, "nonexistent", "mem_sleep")
	now := time.Unix(1700000000, 0)
	c.clock = func() time.Time { return now }

	// Mode configuration is best effort; the wake alarm still gets programmed.
	if got := c.Prepare(time.Hour); got == 0 {
		t.Error("Prepare should still program the wake alarm when the mode write fails")
	}
}

func TestReadWakeupCount(t *testing.T) {
	c, _ := testConfigurator(t)
	if err := os.WriteFile(c.WakeupCountPath, []byte("12345\n"), 0644); err != nil {
		t.Fatal(err)
	}

	count, err := c.ReadWakeupCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 12345 {
		t.Errorf("count = %d, want 12345", count)
	}
}

func TestCheckResumeFailure(t *testing.T) {
	cases := []struct {
		name  string
		value string
		want  bool
	}{
		{"missing file", "", false},
		{"clean hex", "0x0", false},
		{"timeout bit hex", "0x80000000", true},
		{"timeout bit with extras", "0x80000001", true},
		{"clean decimal", "1", false},
		{"timeout bit decimal", "2147483648", true},
		{"garbage", "banana", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := testConfigurator(t)
			if tc.value != "" {
				if err := os.WriteFile(c.ResumeResultPath, []byte(tc.value+"\n"), 0644); err != nil {
					t.Fatal(err)
				}
			}
			if got := c.CheckResumeFailure(); got != tc.want {
				t.Errorf("CheckResumeFailure(%q) = %t, want %t", tc.value, got, tc.want)
			}
		})
	}
}

func TestHibernateAvailable(t *testing.T) {
	c, _ := testConfigurator(t)

	if c.HibernateAvailable() {
		t.Error("no resume device, no image: should be unavailable")
	}

	if err := os.WriteFile(c.ResumeDevicePath, []byte("0:0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if c.HibernateAvailable() {
		t.Error("unset resume device 0:0 should be unavailable")
	}

	if err := os.WriteFile(c.ResumeDevicePath, []byte("259:2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if c.HibernateAvailable() {
		t.Error("resume device without image should be unavailable")
	}

	if err := os.WriteFile(c.HibernateImagePath, []byte("img"), 0644); err != nil {
		t.Fatal(err)
	}
	if !c.HibernateAvailable() {
		t.Error("resume device plus image should be available")
	}

	// The image can vanish between decisions; availability must follow.
	if err := os.Remove(c.HibernateImagePath); err != nil {
		t.Fatal(err)
	}
	if c.HibernateAvailable() {
		t.Error("availability must not be cached after the image is removed")
	}
}
