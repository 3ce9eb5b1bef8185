// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/llir/llvm/ir"
	"github.com/spf13/cobra"

	"github.com/dotandev/rpcmerge/internal/diag"
	"github.com/dotandev/rpcmerge/internal/irio"
	"github.com/dotandev/rpcmerge/internal/irutil"
	"github.com/dotandev/rpcmerge/internal/locate"
	"github.com/dotandev/rpcmerge/internal/merge"
)

var (
	inspectProfile  string
	inspectSuffixes []string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <input.ll>",
	Short: "List functions and call sites with their logical names",
	Long: `Print every function with its kind and logical (demangled) name, then every
call site with its target. Call sites that match the profile's RPC stub are
marked, together with the callee name they carry when the profile has one.

Pass the partition names used by earlier rename runs with --suffix so they
are stripped before demangling.

Examples:
  rpcmerge inspect linked.ll
  rpcmerge inspect --profile rust --suffix frontend --suffix backend linked.ll`,
	Args: cobra.ExactArgs(1),
	RunE: inspectExec,
}

func inspectExec(cmd *cobra.Command, args []string) error {
	cfg := activeConfig
	profileName := inspectProfile
	if profileName == "" {
		profileName = cfg.Profile
	}
	profile, err := merge.LookupProfile(profileName)
	if err != nil {
		return err
	}

	m, diags, err := irio.Read(args[0])
	if err != nil {
		return err
	}

	st := openStore(cfg)
	defer closeStore(st)
	loc := locate.New(newDemangler(cfg, st), inspectSuffixes...)

	if err := writeInspection(cmd.Context(), cmd.OutOrStdout(), m, loc, profile); err != nil {
		return err
	}

	diags.Add(loc.Diagnostics()...)
	printer := diag.NewPrinter(cmd.ErrOrStderr())
	if NoColorFlag {
		printer.SetColor(false)
	}
	printer.PrintAll(diags)
	return nil
}

func functionKind(f *ir.Func) string {
	switch {
	case irutil.IsIntrinsic(f.Name()):
		return "intrinsic"
	case irutil.IsDeclaration(f):
		return "declare"
	default:
		return "define"
	}
}

func writeInspection(ctx context.Context, w io.Writer, m *ir.Module, loc *locate.Locator, profile merge.Profile) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "FUNCTION\tKIND\tLOGICAL\n")
	for _, f := range m.Funcs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Name(), functionKind(f), loc.Logical(ctx, f.Name()))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w)

	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "CALLER\tBLOCK\tKIND\tTARGET\tLOGICAL\tRPC\n")
	for _, f := range m.Funcs {
		for _, cs := range irutil.CallSites(f) {
			target, logical := "<indirect>", ""
			if callee := cs.CalledFunc(); callee != nil {
				target = callee.Name()
				logical = loc.Logical(ctx, target)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				f.Name(), cs.Block.Name(), cs.Kind(), target, logical, rpcMark(cs, logical, profile))
		}
	}
	return tw.Flush()
}

func rpcMark(cs irutil.CallSite, logical string, profile merge.Profile) string {
	if logical == "" || !profile.MatchesRPC(logical) {
		return "-"
	}
	if profile.NameOperand < 0 {
		return "yes"
	}
	if name, ok := merge.StringOperand(cs.Arg(profile.NameOperand)); ok {
		return fmt.Sprintf("yes (%s)", name)
	}
	return "yes (unnamed)"
}

func init() {
	inspectCmd.Flags().StringVar(&inspectProfile, "profile", "", "Toolchain profile (go, rust); defaults to the configuration")
	inspectCmd.Flags().StringArrayVar(&inspectSuffixes, "suffix", nil, "Partition suffix to strip before demangling (repeatable)")
	inspectCmd.ValidArgsFunction = completeIRFile
	_ = inspectCmd.RegisterFlagCompletionFunc("profile", completeProfileFlag)
	rootCmd.AddCommand(inspectCmd)
}
