package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out.String(), "wattview") {
		t.Errorf("output = %q", out.String())
	}
}

func TestDatesCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WATTVIEW_DB_PATH", dir+"/readings.db")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"dates"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("dates: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "" {
		t.Errorf("empty store should list no dates, got %q", got)
	}
}

func TestUnknownCommand(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"bogus"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for unknown command")
	}
}
