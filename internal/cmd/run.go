// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"

	"github.com/llir/llvm/ir"
	"github.com/spf13/cobra"

	"github.com/dotandev/rpcmerge/internal/diag"
	"github.com/dotandev/rpcmerge/internal/elide"
	"github.com/dotandev/rpcmerge/internal/errors"
	"github.com/dotandev/rpcmerge/internal/irio"
	"github.com/dotandev/rpcmerge/internal/logger"
	"github.com/dotandev/rpcmerge/internal/merge"
	"github.com/dotandev/rpcmerge/internal/store"
)

var (
	runModeFlags = map[merge.Mode]*bool{}
	runCaller    string
	runCallee    string
	runProfile   string
	runOutput    string
	runStrict    bool
)

var runCmd = &cobra.Command{
	Use:   "run [flags] <input.ll>",
	Short: "Apply one split or merge transformation to an IR module",
	Long: `Read an LLVM IR module, apply exactly one transformation and write the result.

Modes:
  --rename-caller     suffix every function with _<caller>
  --rename-callee     give the callee half's entry chain profile names, suffix the rest with _<callee>
  --merge-callee      clone the callee locally and call it instead of the RPC stub
  --merge-existing    call a callee merged earlier instead of the RPC stub
  --replace-make-rpc  --merge-existing with the Go profile

Diagnostics go to stderr. A transformation whose preconditions fail leaves
the module unchanged; use --strict to turn that into a non-zero exit.

Examples:
  rpcmerge run --rename-caller --caller frontend caller.ll -o caller.split.ll
  rpcmerge run --merge-callee --caller frontend --callee backend --profile rust linked.ll
  cat main.ll | rpcmerge run --replace-make-rpc -`,
	Args: cobra.ExactArgs(1),
	RunE: runExec,
}

func selectedMode() (merge.Mode, error) {
	var picked []merge.Mode
	for _, m := range merge.Modes {
		if on := runModeFlags[m]; on != nil && *on {
			picked = append(picked, m)
		}
	}
	if len(picked) != 1 {
		return 0, errors.WrapConfigError(
			fmt.Sprintf("exactly one mode is required, got %d", len(picked)), nil)
	}
	return picked[0], nil
}

func runExec(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := activeConfig

	mode, err := selectedMode()
	if err != nil {
		return err
	}
	profileName := runProfile
	if profileName == "" {
		profileName = cfg.Profile
	}
	profile, err := merge.LookupProfile(profileName)
	if err != nil {
		return err
	}

	input := args[0]
	m, readDiags, err := irio.Read(input)
	if err != nil {
		return err
	}

	st := openStore(cfg)
	defer closeStore(st)
	defer initTelemetry(ctx, cfg, "rpcmerge")()

	pass := merge.New(merge.Options{
		Mode:      mode,
		Caller:    runCaller,
		Callee:    runCallee,
		Profile:   profile,
		Demangler: newDemangler(cfg, st),
		Payload:   elide.Payload{Size: cfg.PayloadSize, Align: cfg.PayloadAlign},
	})
	res := pass.Run(ctx, m)

	var diags diag.List
	diags.Add(readDiags...)
	diags.Add(res.Diagnostics...)

	printer := diag.NewPrinter(cmd.ErrOrStderr())
	if NoColorFlag {
		printer.SetColor(false)
	}
	printer.PrintAll(diags)

	if err := writeModule(cmd.OutOrStdout(), m, runOutput); err != nil {
		return err
	}
	fmt.Fprintln(cmd.ErrOrStderr(), res.Summary())

	if st != nil && cfg.HistoryEnabled {
		run := &store.Run{
			Mode:        mode.String(),
			Profile:     pass.Profile().Name,
			Input:       input,
			Output:      runOutput,
			Caller:      runCaller,
			Callee:      runCallee,
			Changed:     res.Changed,
			Diagnostics: diagStrings(diags),
			Stats:       res.Stats.Map(),
		}
		if err := st.RecordRun(ctx, run); err != nil {
			logger.Logger.Warn("Failed to record run", "error", err)
		}
	}

	if runStrict && diags.Blocking() {
		return fmt.Errorf("%s reported %d diagnostics", mode, len(diags))
	}
	return nil
}

// writeModule writes m to path, or to stdout for "-".
func writeModule(stdout io.Writer, m *ir.Module, path string) error {
	if path != irio.Stdio {
		return irio.Write(m, path)
	}
	out, err := irio.Format(m)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(stdout, out); err != nil {
		return errors.WrapWriteIR(path, err)
	}
	return nil
}

func diagStrings(l diag.List) []string {
	out := make([]string, len(l))
	for i, d := range l {
		out[i] = d.String()
	}
	return out
}

func init() {
	for _, m := range merge.Modes {
		on := new(bool)
		runModeFlags[m] = on
		runCmd.Flags().BoolVar(on, m.String(), false, "Run the "+m.String()+" transformation")
	}
	names := make([]string, len(merge.Modes))
	for i, m := range merge.Modes {
		names[i] = m.String()
	}
	runCmd.MarkFlagsMutuallyExclusive(names...)

	runCmd.Flags().StringVar(&runCaller, "caller", "", "Caller partition name")
	runCmd.Flags().StringVar(&runCallee, "callee", "", "Callee partition name")
	runCmd.Flags().StringVar(&runProfile, "profile", "", "Toolchain profile (go, rust); defaults to the configuration")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", irio.Stdio, "Output file path (- for stdout)")
	runCmd.Flags().BoolVar(&runStrict, "strict", false, "Exit non-zero when the transformation reports blocking diagnostics")

	runCmd.ValidArgsFunction = completeIRFile
	_ = runCmd.RegisterFlagCompletionFunc("profile", completeProfileFlag)
	_ = runCmd.RegisterFlagCompletionFunc("caller", completeNoOp)
	_ = runCmd.RegisterFlagCompletionFunc("callee", completeNoOp)

	rootCmd.AddCommand(runCmd)
}
