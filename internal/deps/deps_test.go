package deps

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"vidproc/internal/testsupport"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected status for blank command: %#v", results[2])
	}
}

func TestRequirementsUseConfiguredBinary(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	results := CheckBinaries(Requirements(cfg))
	if len(results) != 1 || !results[0].Available {
		t.Fatalf("expected stubbed ffmpeg to be available, got %#v", results)
	}
	if filepath.Base(results[0].Command) != "ffmpeg" {
		t.Fatalf("expected resolved ffmpeg path, got %q", results[0].Command)
	}
	if reqs := Requirements(cfg); reqs[0].Version == nil {
		t.Fatal("expected ffmpeg requirement to report its version")
	}
}

func stubVersion(t *testing.T, output string, fail bool) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess", "--")
		env := append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "HELPER_OUTPUT="+output)
		if fail {
			env = append(env, "HELPER_FAIL=1")
		}
		cmd.Env = env
		return cmd
	}
	t.Cleanup(func() { commandContext = original })
}

func TestFFmpegVersion(t *testing.T) {
	stubVersion(t, "ffmpeg version 6.1.1 Copyright (c) 2000-2023 the FFmpeg developers\nbuilt with gcc", false)
	version, err := FFmpegVersion(context.Background(), "ffmpeg")
	if err != nil {
		t.Fatalf("FFmpegVersion: %v", err)
	}
	if version != "ffmpeg version 6.1.1" {
		t.Fatalf("unexpected version %q", version)
	}
}

func TestFFmpegVersionRejectsOtherBinaries(t *testing.T) {
	stubVersion(t, "not an encoder", false)
	if _, err := FFmpegVersion(context.Background(), "ffmpeg"); err == nil {
		t.Fatal("expected error for unexpected output")
	}
}

func TestFFmpegVersionCommandFailure(t *testing.T) {
	stubVersion(t, "", true)
	if _, err := FFmpegVersion(context.Background(), "ffmpeg"); err == nil {
		t.Fatal("expected error for failing binary")
	}
	if _, err := FFmpegVersion(context.Background(), ""); err == nil {
		t.Fatal("expected error for blank binary")
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	if os.Getenv("HELPER_FAIL") == "1" {
		os.Exit(1)
	}
	fmt.Fprint(os.Stdout, os.Getenv("HELPER_OUTPUT"))
	os.Exit(0)
}
