// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/dotandev/rpcmerge/internal/config"
	"github.com/dotandev/rpcmerge/internal/store"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type DependencyStatus struct {
	Name      string
	Installed bool
	Optional  bool
	Version   string
	Path      string
	FixHint   string
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose the rpcmerge environment",
	Long: `Check the configuration and the external tools rpcmerge relies on.

This command verifies:
  - the configuration file and environment overrides
  - the configured demangler backend
  - the history and demangling cache
  - LLVM tools used to produce and consume textual IR`,
	Example: `  # Check environment status
  rpcmerge doctor

  # Show tool paths
  rpcmerge doctor --verbose`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "rpcmerge Environment Diagnostics")
	fmt.Fprintln(out, "================================")
	fmt.Fprintln(out)

	cfg := activeConfig
	dependencies := []DependencyStatus{
		checkConfig(cfg),
		checkDemangler(cmd.Context(), cfg),
		checkCache(cfg),
	}
	for _, tool := range []string{"opt", "llvm-as", "clang"} {
		dependencies = append(dependencies, checkTool(tool, verbose))
	}

	if printDependencies(out, dependencies, verbose) {
		color.New(color.FgGreen).Fprintln(out, "[OK] rpcmerge is ready")
		return nil
	}
	color.New(color.FgYellow).Fprintln(out, "Some checks failed. Follow the hints above to fix.")
	return nil
}

// printDependencies reports every status and whether all required ones passed.
func printDependencies(out io.Writer, deps []DependencyStatus, verbose bool) bool {
	ok := color.New(color.FgGreen).SprintFunc()
	fail := color.New(color.FgRed).SprintFunc()
	warn := color.New(color.FgYellow).SprintFunc()

	allOK := true
	for _, dep := range deps {
		status := ok("[OK]")
		switch {
		case dep.Installed:
		case dep.Optional:
			status = warn("[WARN]")
		default:
			status = fail("[FAIL]")
			allOK = false
		}

		fmt.Fprintf(out, "%s %s", status, dep.Name)
		if dep.Installed && dep.Version != "" {
			fmt.Fprintf(out, " (%s)", dep.Version)
		}
		fmt.Fprintln(out)

		if verbose && dep.Path != "" {
			fmt.Fprintf(out, "  Path: %s\n", dep.Path)
		}
		if !dep.Installed && dep.FixHint != "" {
			fmt.Fprintf(out, "  %s\n", warn("-> "+dep.FixHint))
		}
	}
	fmt.Fprintln(out)
	return allOK
}

func checkConfig(cfg *config.Config) DependencyStatus {
	dep := DependencyStatus{Name: "Configuration"}
	if err := cfg.Validate(); err != nil {
		dep.FixHint = err.Error()
		return dep
	}
	dep.Installed = true
	dep.Version = "profile " + cfg.Profile
	return dep
}

func checkDemangler(ctx context.Context, cfg *config.Config) DependencyStatus {
	dep := DependencyStatus{Name: "Demangler (" + string(cfg.Demangler) + ")"}
	switch cfg.Demangler {
	case config.DemanglerCommand:
		path, err := exec.LookPath(cfg.DemanglerCommand)
		if err != nil {
			dep.FixHint = fmt.Sprintf("install %s or set demangler = \"local\"", cfg.DemanglerCommand)
			return dep
		}
		dep.Installed = true
		dep.Path = path
	case config.DemanglerRemote:
		if err := pingRemote(ctx, cfg.DemanglerURL); err != nil {
			dep.FixHint = fmt.Sprintf("start `rpcmerge serve-demangler` or fix demangler_url (%v)", err)
			return dep
		}
		dep.Installed = true
		dep.Path = cfg.DemanglerURL
	default:
		dep.Installed = true
		dep.Version = "built in"
	}
	return dep
}

// pingRemote probes the health endpoint that sits next to the RPC endpoint.
func pingRemote(ctx context.Context, rpcURL string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	health := strings.TrimSuffix(strings.TrimSuffix(rpcURL, "/"), "/rpc") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, health, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %s", resp.Status)
	}
	return nil
}

func checkCache(cfg *config.Config) DependencyStatus {
	dep := DependencyStatus{Name: "Cache", Optional: !cfg.HistoryEnabled, Path: cfg.CachePath}
	st, err := store.Open(cfg.CachePath)
	if err != nil {
		dep.FixHint = fmt.Sprintf("cannot open %s: %v", cfg.CachePath, err)
		return dep
	}
	_ = st.Close()
	dep.Installed = true
	return dep
}

// checkTool looks up an optional LLVM tool. The transformation itself does
// not need any of them.
func checkTool(name string, verbose bool) DependencyStatus {
	dep := DependencyStatus{
		Name:     name,
		Optional: true,
		FixHint:  "install LLVM to produce and verify textual IR",
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return dep
	}
	dep.Installed = true
	dep.Path = path

	output, err := exec.Command(name, "--version").Output()
	if err == nil {
		dep.Version = toolVersion(string(output))
	}
	return dep
}

// toolVersion picks the version token out of an LLVM --version banner.
func toolVersion(banner string) string {
	for _, line := range strings.Split(banner, "\n") {
		fields := strings.Fields(line)
		for i, f := range fields {
			if f == "version" && i+1 < len(fields) {
				return fields[i+1]
			}
		}
	}
	return ""
}

func init() {
	doctorCmd.Flags().BoolP("verbose", "v", false, "Show detailed tool paths")
	rootCmd.AddCommand(doctorCmd)
}
