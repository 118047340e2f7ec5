package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"linefix/cli/internal/config"
	"linefix/cli/internal/erruser"
	"linefix/cli/internal/pipeline"
	"linefix/cli/internal/provider"
	"linefix/cli/internal/trace"
	"linefix/cli/internal/version"
	"linefix/cli/internal/violation"
)

// errExit is an error that carries an exit code for the CLI. Use errors.As to detect it.
type errExit int

func (e errExit) Error() string {
	return "exit " + strconv.Itoa(int(e))
}

// outcomesOut is the writer for outcome JSON on success. Tests may replace it to capture output.
var outcomesOut io.Writer = os.Stdout

// runEnvelope is the JSON envelope written by linefix fix.
type runEnvelope struct {
	RunID    string                 `json:"run_id"`
	Outcomes []violation.FixOutcome `json:"outcomes"`
}

// parseViolations decodes the input stream: either a JSON array of
// violations or a wrapper object with a "violations" key.
func parseViolations(data []byte) ([]violation.Violation, error) {
	var list []violation.Violation
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var wrapper struct {
		Violations []violation.Violation `json:"violations"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, erruser.New("Input is not a JSON array of violations.", err)
	}
	return wrapper.Violations, nil
}

// exitCodeFor maps batch outcomes to the shell convention: 0 all fixed,
// 1 at least one unfixable, 2 at least one errored (errored wins).
func exitCodeFor(outcomes []violation.FixOutcome) int {
	code := 0
	for _, o := range outcomes {
		switch o.Status {
		case violation.StatusErrored:
			return 2
		case violation.StatusUnfixable:
			code = 1
		}
	}
	return code
}

func newFixCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fix [violations.json]",
		Short: "Run the repair pipeline over a violation stream",
		Long: `Read a JSON array of violations (or {"violations": [...]}) from the given
file, or from stdin when the argument is "-" or omitted, fix each one, and
write the outcomes as JSON to stdout.

Exit codes: 0 when every item was fixed, 1 when at least one was unfixable,
2 when at least one errored.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runFix,
	}
	cmd.Flags().Int("max-width", 0, "Width ceiling for violations that do not carry one (default 79)")
	cmd.Flags().Int("parallel", 0, "Max violations fixed concurrently (default 4)")
	cmd.Flags().Duration("timeout", 0, "Per-provider call timeout (default 30s)")
	cmd.Flags().Int("indent-unit", 0, "Continuation indent width in spaces (default 4)")
	cmd.Flags().Bool("offline", false, "Deterministic tier only; no model calls")
	cmd.Flags().Bool("human", false, "Human-readable summary instead of JSON")
	return cmd
}

func loadConfigFromFlags(cmd *cobra.Command) (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, erruser.New("Could not determine current directory.", err)
	}
	globalPath, _ := cmd.Flags().GetString("config")
	o := &config.Overrides{}
	if v, _ := cmd.Flags().GetInt("max-width"); v > 0 {
		o.MaxWidth = &v
	}
	if v, _ := cmd.Flags().GetInt("parallel"); v > 0 {
		o.Parallel = &v
	}
	if v, _ := cmd.Flags().GetDuration("timeout"); v > 0 {
		o.Timeout = &v
	}
	if v, _ := cmd.Flags().GetInt("indent-unit"); v > 0 {
		o.IndentUnit = &v
	}
	return config.Load(config.LoadOptions{WorkDir: cwd, GlobalConfigPath: globalPath, Overrides: o})
}

func newTracer(cmd *cobra.Command) *trace.Tracer {
	if on, _ := cmd.Flags().GetBool("trace"); on {
		return trace.New(os.Stderr)
	}
	return trace.New(nil)
}

func runFix(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigFromFlags(cmd)
	if err != nil {
		return err
	}

	var data []byte
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return erruser.New("Could not read violations from stdin.", err)
		}
	} else {
		data, err = os.ReadFile(args[0])
		if err != nil {
			return erruser.Newf(err, "Could not read %s.", args[0])
		}
	}
	violations, err := parseViolations(data)
	if err != nil {
		return err
	}
	// Items without their own ceiling inherit the configured one.
	for i := range violations {
		if violations[i].MaxWidth == 0 {
			violations[i].MaxWidth = cfg.MaxWidth
		}
	}

	tracer := newTracer(cmd)
	router, err := provider.NewRouter(cfg.EffectiveProfiles(), provider.RouterOptions{Tracer: tracer})
	if err != nil {
		return erruser.New("Invalid provider configuration.", err)
	}
	offline, _ := cmd.Flags().GetBool("offline")
	p := pipeline.New(router, pipeline.Options{
		IndentUnit: cfg.IndentUnit,
		Parallel:   cfg.Parallel,
		Offline:    offline,
	}, tracer)

	start := time.Now()
	tracer.Section("Fix run")
	outcomes := p.FixAll(cmd.Context(), violations)
	tracer.Printf("[linefix:trace] %d item(s) in %s\n", len(outcomes), time.Since(start))

	human, _ := cmd.Flags().GetBool("human")
	if human {
		if err := writeOutcomesHuman(outcomesOut, outcomes); err != nil {
			return err
		}
	} else {
		envelope := runEnvelope{RunID: uuid.NewString(), Outcomes: outcomes}
		enc := json.NewEncoder(outcomesOut)
		if err := enc.Encode(envelope); err != nil {
			return erruser.New("Could not write outcomes.", err)
		}
	}
	if code := exitCodeFor(outcomes); code != 0 {
		return errExit(code)
	}
	return nil
}

// writeOutcomesHuman writes one line per outcome (id prefix, status, reason)
// and a summary line.
func writeOutcomesHuman(w io.Writer, outcomes []violation.FixOutcome) error {
	fixed := 0
	for _, o := range outcomes {
		id := o.ViolationID
		if len(id) > 12 {
			id = id[:12]
		}
		line := fmt.Sprintf("%s  %s", id, o.Status)
		if o.TerminalReason != "" {
			line += "  (" + o.TerminalReason + ")"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return erruser.New("Could not write outcomes.", err)
		}
		if o.Status.Fixed() {
			fixed++
		}
	}
	if _, err := fmt.Fprintf(w, "%d of %d fixed.\n", fixed, len(outcomes)); err != nil {
		return erruser.New("Could not write outcomes.", err)
	}
	return nil
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify providers (Ollama reachability, credentials, chains)",
		RunE:  runCheck,
	}
	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigFromFlags(cmd)
	if err != nil {
		return err
	}
	profiles := cfg.EffectiveProfiles()
	router, err := provider.NewRouter(profiles, provider.RouterOptions{})
	if err != nil {
		return erruser.New("Invalid provider configuration.", err)
	}

	failed := false
	checked := map[string]bool{}
	for _, p := range profiles {
		if p.Kind != provider.KindOllama || checked[p.BaseURL] {
			continue
		}
		checked[p.BaseURL] = true
		result, cerr := provider.CheckOllama(cmd.Context(), p.BaseURL, p.ModelID)
		if cerr != nil {
			if errors.Is(cerr, provider.ErrUnreachable) {
				fmt.Fprintf(os.Stderr, "Ollama unreachable at %s. Is the server running? For local: ollama serve.\n", p.BaseURL)
				fmt.Fprintf(os.Stderr, "Details: %v\n", cerr)
				failed = true
				continue
			}
			fmt.Fprintln(os.Stderr, cerr.Error())
			failed = true
			continue
		}
		if !result.ModelPresent {
			fmt.Fprintf(os.Stderr, "Model %q not found at %s. Pull it with: ollama pull %s\n", p.ModelID, p.BaseURL, p.ModelID)
			failed = true
			continue
		}
		fmt.Fprintf(os.Stdout, "Ollama OK at %s (model %s)\n", p.BaseURL, p.ModelID)
	}

	for _, role := range []provider.Role{provider.RoleGenerator, provider.RoleValidator} {
		chain := router.Chain(role)
		if len(chain) == 0 {
			fmt.Fprintf(os.Stderr, "No enabled %s profiles.\n", role)
			failed = true
			continue
		}
		fmt.Fprintf(os.Stdout, "%s chain:\n", role)
		for i, entry := range chain {
			fmt.Fprintf(os.Stdout, "  %d. %s\n", i+1, entry)
		}
	}
	if failed {
		return errExit(2)
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the linefix version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(os.Stdout, "linefix "+version.String())
			return nil
		},
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "linefix",
		Short:         "Multi-tier repair pipeline for line-too-long violations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Bool("trace", false, "Write internal step output to stderr")
	root.PersistentFlags().String("config", "", "Path to the global config file (default: XDG location)")
	root.AddCommand(newFixCmd())
	root.AddCommand(newCheckCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		var code errExit
		if errors.As(err, &code) {
			os.Exit(int(code))
		}
		fmt.Fprintln(os.Stderr, err.Error())
		if u := errors.Unwrap(err); u != nil {
			fmt.Fprintf(os.Stderr, "Details: %v\n", u)
		}
		os.Exit(1)
	}
}
