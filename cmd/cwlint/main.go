// Command cwlint validates Clausewitz mod script against a CWT schema
// directory and prints diagnostics for a whole workspace.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corvee/cwt"
	"github.com/corvee/cwt/diag"
)

var (
	version = "dev"

	cfgFile   string
	verbose   bool
	logger    *log.Logger
	scriptExt = map[string]bool{".txt": true, ".mod": true, ".gui": true, ".gfx": true}

	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	pathStyle    = lipgloss.NewStyle().Bold(true)
	codeStyle    = lipgloss.NewStyle().Faint(true)

	rootCmd = &cobra.Command{
		Use:     "cwlint <workspace>",
		Short:   "Validate Clausewitz mod script against a CWT schema",
		Args:    cobra.ExactArgs(1),
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0])
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./cwlint.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().StringP("schema", "s", "", "schema directory containing .cwt files")
	rootCmd.Flags().String("localisation", "", "file listing known localisation keys, one per line")
	rootCmd.Flags().String("fail-on", "error", "lowest severity that fails the run (error, warning, info)")
	rootCmd.Flags().String("unexpected-keys", "warning", "how to treat keys the schema has no rule for (error, warning, info, ignore)")

	for _, flag := range []string{"schema", "localisation", "fail-on", "unexpected-keys"} {
		if err := viper.BindPFlag(flag, rootCmd.Flags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("cwlint")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix("CWLINT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			logger.Warn("could not read config", "err", err)
		}
	}

	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	logger.SetLevel(level)
}

func main() {
	logger = log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          "cwlint",
		ReportTimestamp: false,
	})
	if err := rootCmd.Execute(); err != nil {
		logger.Error(err.Error())
		os.Exit(2)
	}
}

func run(ctx context.Context, workspace string) error {
	schemaDir := viper.GetString("schema")
	if schemaDir == "" {
		return fmt.Errorf("no schema directory: pass --schema or set it in cwlint.yaml")
	}

	schema, err := cwt.LoadSchemaFS(os.DirFS(schemaDir), ".")
	if err != nil {
		return err
	}
	logger.Debug("schema loaded", "dir", schemaDir, "types", len(schema.TypeNames()))

	var opts []cwt.WorkspaceOption
	if locFile := viper.GetString("localisation"); locFile != "" {
		oracle, err := loadLocalisationKeys(locFile)
		if err != nil {
			return err
		}
		logger.Debug("localisation keys loaded", "file", locFile, "keys", len(oracle))
		opts = append(opts, cwt.WithWorkspaceLocalisation(func(key string) bool { return oracle[key] }))
	}

	switch mode := strings.ToLower(viper.GetString("unexpected-keys")); mode {
	case "ignore":
		opts = append(opts, cwt.WithWorkspaceIgnoreUnexpectedKeys())
	case "warning", "":
	default:
		sev, err := parseSeverity(mode)
		if err != nil {
			return err
		}
		opts = append(opts, cwt.WithWorkspaceUnexpectedKeySeverity(sev))
	}

	ws, err := cwt.NewWorkspace(schema, opts...)
	if err != nil {
		return err
	}

	texts, err := collectScripts(workspace)
	if err != nil {
		return err
	}
	logger.Debug("workspace collected", "files", len(texts))

	if err := ws.Scan(ctx, texts); err != nil {
		return err
	}

	threshold, err := parseSeverity(viper.GetString("fail-on"))
	if err != nil {
		return err
	}

	paths := make([]string, 0, len(texts))
	for path := range texts {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	failures := 0
	total := 0
	for _, path := range paths {
		diags := ws.Diagnostics(path)
		if len(diags) == 0 {
			continue
		}
		fmt.Println(pathStyle.Render(path))
		for _, d := range diags {
			total++
			if d.Severity <= threshold {
				failures++
			}
			printDiagnostic(d)
		}
	}

	logger.Info("scan finished", "files", len(texts), "diagnostics", total)
	if failures > 0 {
		return fmt.Errorf("%d diagnostics at or above %s severity", failures, viper.GetString("fail-on"))
	}
	return nil
}

func printDiagnostic(d diag.Diagnostic) {
	var style lipgloss.Style
	switch d.Severity {
	case diag.SeverityError:
		style = errorStyle
	case diag.SeverityWarning:
		style = warningStyle
	default:
		style = infoStyle
	}
	fmt.Printf("  %s %s %s\n",
		style.Render(d.Severity.String()),
		fmt.Sprintf("%d:%d", d.Span.Start.Line, d.Span.Start.Column),
		d.Message,
	)
	fmt.Printf("    %s\n", codeStyle.Render(string(d.Code)))
}

func collectScripts(root string) (map[string]string, error) {
	texts := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !scriptExt[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		texts[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return texts, nil
}

func loadLocalisationKeys(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open localisation keys: %w", err)
	}
	defer f.Close()

	keys := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			keys[line] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read localisation keys: %w", err)
	}
	return keys, nil
}

func parseSeverity(s string) (diag.Severity, error) {
	switch strings.ToLower(s) {
	case "error":
		return diag.SeverityError, nil
	case "warning":
		return diag.SeverityWarning, nil
	case "info":
		return diag.SeverityInfo, nil
	default:
		return 0, fmt.Errorf("unknown severity %q", s)
	}
}
