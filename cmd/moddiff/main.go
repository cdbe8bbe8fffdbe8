// Command moddiff structurally compares two script trees, typically a
// mod directory against the base game. Formatting differences never
// count; only semantic changes are reported.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/corvee/cwt"
)

var (
	version = "dev"

	jsonOutput bool
	logger     *log.Logger

	addedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	removedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	changedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	fileStyle    = lipgloss.NewStyle().Bold(true)

	rootCmd = &cobra.Command{
		Use:     "moddiff <base> <mod>",
		Short:   "Structurally diff two script trees",
		Args:    cobra.ExactArgs(2),
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], args[1])
		},
	}
)

type fileChanges struct {
	File    string       `json:"file"`
	Status  string       `json:"status"`
	Changes []jsonChange `json:"changes,omitempty"`
}

type jsonChange struct {
	Kind string `json:"kind"`
	Path string `json:"path"`
	Old  string `json:"old,omitempty"`
	New  string `json:"new,omitempty"`
}

func init() {
	rootCmd.Flags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON")
}

func main() {
	logger = log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          "moddiff",
		ReportTimestamp: false,
	})
	if err := rootCmd.Execute(); err != nil {
		logger.Error(err.Error())
		os.Exit(2)
	}
}

func run(baseRoot, modRoot string) error {
	baseFiles, err := collect(baseRoot)
	if err != nil {
		return err
	}
	modFiles, err := collect(modRoot)
	if err != nil {
		return err
	}

	paths := make(map[string]bool, len(baseFiles)+len(modFiles))
	for p := range baseFiles {
		paths[p] = true
	}
	for p := range modFiles {
		paths[p] = true
	}
	ordered := make([]string, 0, len(paths))
	for p := range paths {
		ordered = append(ordered, p)
	}
	sort.Strings(ordered)

	var report []fileChanges
	for _, rel := range ordered {
		base, inBase := baseFiles[rel]
		mod, inMod := modFiles[rel]
		switch {
		case !inBase:
			report = append(report, fileChanges{File: rel, Status: "added"})
		case !inMod:
			report = append(report, fileChanges{File: rel, Status: "removed"})
		default:
			changes, err := cwt.Diff(base, mod)
			if err != nil {
				logger.Warn("skipping unparsable file", "file", rel, "err", err)
				continue
			}
			if len(changes) == 0 {
				continue
			}
			fc := fileChanges{File: rel, Status: "changed"}
			for _, c := range changes {
				fc.Changes = append(fc.Changes, jsonChange{
					Kind: c.Kind.String(),
					Path: c.Path,
					Old:  c.Old,
					New:  c.New,
				})
			}
			report = append(report, fc)
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	render(report)
	return nil
}

func render(report []fileChanges) {
	if len(report) == 0 {
		fmt.Println("no changes")
		return
	}
	for _, fc := range report {
		switch fc.Status {
		case "added":
			fmt.Println(addedStyle.Render("+ " + fc.File))
		case "removed":
			fmt.Println(removedStyle.Render("- " + fc.File))
		default:
			fmt.Println(fileStyle.Render(fc.File))
			for _, c := range fc.Changes {
				switch c.Kind {
				case "added":
					fmt.Printf("  %s %s = %s\n", addedStyle.Render("+"), c.Path, c.New)
				case "removed":
					fmt.Printf("  %s %s = %s\n", removedStyle.Render("-"), c.Path, c.Old)
				default:
					fmt.Printf("  %s %s: %s -> %s\n", changedStyle.Render("~"), c.Path, c.Old, c.New)
				}
			}
		}
	}
}

var scriptExt = map[string]bool{".txt": true, ".mod": true, ".gui": true, ".gfx": true}

func collect(root string) (map[string]string, error) {
	files := make(map[string]string)
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
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, nil
}
