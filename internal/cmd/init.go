// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dotandev/rpcmerge/internal/config"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

const projectConfigName = ".rpcmerge.toml"

var (
	initForceFlag       bool
	initProfileFlag     string
	initDemanglerFlag   string
	initInteractiveFlag bool
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Write a project-local rpcmerge configuration",
	Long: `Create a .rpcmerge.toml for a partitioned application.

The generated file selects the toolchain profile and demangler backend and
keeps the run history next to the project. A .gitignore entry for the
local cache is added as well.

When run in an interactive terminal, it prompts for the profile and the
demangler backend.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		targetDir := "."
		if len(args) == 1 {
			targetDir = args[0]
		}

		opts := initScaffoldOptions{
			Force:     initForceFlag,
			Profile:   initProfileFlag,
			Demangler: initDemanglerFlag,
		}

		if shouldRunInitWizard(cmd, initInteractiveFlag) {
			if err := runInitWizard(cmd, &opts); err != nil {
				return err
			}
		}

		if err := scaffoldProject(targetDir, opts); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Initialized rpcmerge configuration in %s\n", targetDir)
		return nil
	},
}

type initScaffoldOptions struct {
	Force     bool
	Profile   string
	Demangler string
}

// validate checks the options against the same rules Load applies.
func (o initScaffoldOptions) validate() error {
	cfg := config.DefaultConfig()
	if o.Profile != "" {
		cfg.Profile = o.Profile
	}
	if o.Demangler != "" {
		cfg.Demangler = config.DemanglerKind(o.Demangler)
	}
	return cfg.Validate()
}

func shouldRunInitWizard(cmd *cobra.Command, interactive bool) bool {
	if !interactive {
		return false
	}

	inFile, ok := cmd.InOrStdin().(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(inFile.Fd())
}

func runInitWizard(cmd *cobra.Command, opts *initScaffoldOptions) error {
	reader := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "rpcmerge init")
	fmt.Fprintln(out, "Press Enter to accept defaults.")

	profile, err := promptWithDefault(reader, out, "Toolchain profile (go, rust)", orDefault(opts.Profile, "go"))
	if err != nil {
		return err
	}
	demangler, err := promptWithDefault(reader, out, "Demangler (local, command, remote)", orDefault(opts.Demangler, string(config.DemanglerLocal)))
	if err != nil {
		return err
	}

	opts.Profile = profile
	opts.Demangler = demangler
	return nil
}

func promptWithDefault(reader *bufio.Reader, out io.Writer, prompt, defaultValue string) (string, error) {
	fmt.Fprintf(out, "%s [%s]: ", prompt, defaultValue)
	input, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}

	value := strings.TrimSpace(input)
	if value == "" {
		return defaultValue, nil
	}

	return value, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

func scaffoldProject(targetDir string, opts initScaffoldOptions) error {
	root := targetDir
	if root == "" {
		root = "."
	}

	if err := opts.validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Join(root, ".rpcmerge"), 0755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}

	if err := writeScaffoldFile(filepath.Join(root, projectConfigName), renderProjectConfig(opts), opts.Force); err != nil {
		return err
	}

	return ensureGitignoreBlock(filepath.Join(root, ".gitignore"), renderProjectGitignoreBlock())
}

func writeScaffoldFile(path, content string, force bool) error {
	if existing, err := os.ReadFile(path); err == nil {
		if string(existing) == content {
			return nil
		}
		if !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", filepath.Base(path))
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func ensureGitignoreBlock(path, block string) error {
	const marker = "# rpcmerge local artifacts"

	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read .gitignore: %w", err)
	}

	if errors.Is(err, os.ErrNotExist) {
		return os.WriteFile(path, []byte(block), 0644)
	}

	content := string(existing)
	if strings.Contains(content, marker) {
		return nil
	}

	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += "\n" + block

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to update .gitignore: %w", err)
	}
	return nil
}

func renderProjectConfig(opts initScaffoldOptions) string {
	profile := orDefault(opts.Profile, "go")
	demangler := orDefault(opts.Demangler, string(config.DemanglerLocal))

	return fmt.Sprintf(`# rpcmerge project configuration
# RPCMERGE_* environment variables override these values.

profile = %s
demangler = %s
log_level = "info"
cache_path = ".rpcmerge/cache.db"
history_enabled = true

# Marshalling buffer copied when the payload type cannot be recovered
# payload_size = 24
# payload_align = 8
`, strconv.Quote(profile), strconv.Quote(demangler))
}

func renderProjectGitignoreBlock() string {
	return `# rpcmerge local artifacts
.rpcmerge/
`
}

func init() {
	initCmd.Flags().BoolVar(&initForceFlag, "force", false, "Overwrite the configuration when it already exists")
	initCmd.Flags().BoolVar(&initInteractiveFlag, "interactive", true, "Prompt for the profile and demangler")
	initCmd.Flags().StringVar(&initProfileFlag, "profile", "", "Toolchain profile to write (go, rust)")
	initCmd.Flags().StringVar(&initDemanglerFlag, "demangler", "", "Demangler backend to write (local, command, remote)")
	_ = initCmd.RegisterFlagCompletionFunc("profile", completeProfileFlag)
	rootCmd.AddCommand(initCmd)
}
