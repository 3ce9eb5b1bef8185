// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dotandev/rpcmerge/internal/config"
	"github.com/dotandev/rpcmerge/internal/daemon"
	"github.com/dotandev/rpcmerge/internal/demangle"
)

func TestCheckConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	if dep := checkConfig(cfg); !dep.Installed {
		t.Errorf("default configuration should pass, hint: %s", dep.FixHint)
	}

	cfg.Profile = "cobol"
	dep := checkConfig(cfg)
	if dep.Installed {
		t.Error("unknown profile should fail")
	}
	if !strings.Contains(dep.FixHint, "cobol") {
		t.Errorf("hint should name the profile, got %q", dep.FixHint)
	}
}

func TestCheckDemanglerLocal(t *testing.T) {
	dep := checkDemangler(context.Background(), config.DefaultConfig())
	if !dep.Installed {
		t.Error("the built-in demangler is always available")
	}
}

func TestCheckDemanglerCommand(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Demangler = config.DemanglerCommand
	cfg.DemanglerCommand = "rpcmerge-no-such-demangler"

	dep := checkDemangler(context.Background(), cfg)
	if dep.Installed {
		t.Error("missing command should fail")
	}
	if dep.FixHint == "" {
		t.Error("missing command should carry a FixHint")
	}
}

func TestCheckDemanglerRemote(t *testing.T) {
	handler, err := daemon.NewServer(daemon.Config{}, demangle.Local{}).Handler()
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Demangler = config.DemanglerRemote
	cfg.DemanglerURL = srv.URL + "/rpc"

	if dep := checkDemangler(context.Background(), cfg); !dep.Installed {
		t.Errorf("running bridge should pass, hint: %s", dep.FixHint)
	}

	srv.Close()
	if dep := checkDemangler(context.Background(), cfg); dep.Installed {
		t.Error("stopped bridge should fail")
	}
}

func TestCheckCache(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.CachePath = filepath.Join(t.TempDir(), "cache.db")

	dep := checkCache(cfg)
	if !dep.Installed {
		t.Errorf("temp cache should open, hint: %s", dep.FixHint)
	}
	if dep.Path != cfg.CachePath {
		t.Errorf("path = %q, want %q", dep.Path, cfg.CachePath)
	}
}

func TestCheckTool(t *testing.T) {
	dep := checkTool("opt", false)

	_, err := exec.LookPath("opt")
	if dep.Installed != (err == nil) {
		t.Errorf("checkTool() installed = %v, want %v", dep.Installed, err == nil)
	}
	if !dep.Optional {
		t.Error("LLVM tools are optional")
	}
}

func TestToolVersion(t *testing.T) {
	banner := "Homebrew LLVM version 17.0.6\n  Optimized build.\n"
	if got := toolVersion(banner); got != "17.0.6" {
		t.Errorf("toolVersion() = %q, want 17.0.6", got)
	}
	if got := toolVersion("no banner"); got != "" {
		t.Errorf("toolVersion() = %q, want empty", got)
	}
}

func TestPrintDependencies(t *testing.T) {
	var buf bytes.Buffer
	deps := []DependencyStatus{
		{Name: "Configuration", Installed: true},
		{Name: "opt", Optional: true, FixHint: "install LLVM"},
	}
	if !printDependencies(&buf, deps, false) {
		t.Error("optional failures should not fail the report")
	}
	if !strings.Contains(buf.String(), "install LLVM") {
		t.Errorf("missing hint in output:\n%s", buf.String())
	}

	deps = append(deps, DependencyStatus{Name: "Cache"})
	if printDependencies(&bytes.Buffer{}, deps, false) {
		t.Error("required failures should fail the report")
	}
}
