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
		t.Fatalf("execute: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "battlehub v"+releaseVersion {
		t.Fatalf("got %q", got)
	}
}

func TestReapCommand_Memory(t *testing.T) {
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("SCORE_BACKEND", "memory")
	t.Setenv("NOTIFY_MODE", "off")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"reap", "--sweep-interval", "1s"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), "evicted 0 expired rooms") {
		t.Fatalf("got %q", out.String())
	}
}

func TestServe_ConfigError(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	cmd := newRootCmd()
	cmd.SetArgs([]string{"serve"})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("expected config error, got %v", err)
	}
}
