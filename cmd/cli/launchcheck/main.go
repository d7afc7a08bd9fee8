package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/core-tools/hsu-launch-go/pkg/launchdesc"
	"github.com/core-tools/hsu-launch-go/pkg/launcher"

	flags "github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"
)

type flagOptions struct {
	Config string `long:"config" short:"c" description:"Launch descriptor file path (YAML, JSON or TOML)" required:"true"`
	Output string `long:"output" short:"o" description:"Summary format" choice:"text" choice:"json" choice:"yaml" default:"text"`
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v", err)
		os.Exit(1)
	}

	descriptor, err := launcher.ValidateFile(opts.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Descriptor is invalid: %v\n", err)
		os.Exit(1)
	}

	if err := writeSummary(os.Stdout, launchdesc.Summarize(descriptor), opts.Output); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write summary: %v\n", err)
		os.Exit(1)
	}
}

func writeSummary(w io.Writer, summary launchdesc.Summary, output string) error {
	switch output {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(summary)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(summary); err != nil {
			return err
		}
		return encoder.Close()
	default:
		return writeText(w, summary)
	}
}

func writeText(w io.Writer, summary launchdesc.Summary) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Descriptor: %s\n", summary.Source)
	fmt.Fprintf(&b, "Apps: %d (watched: %d)\n", summary.TotalApps, summary.WatchedApps)
	for _, app := range summary.Apps {
		fmt.Fprintf(&b, "  - %s\n", app.Name)
		fmt.Fprintf(&b, "      cwd:     %s\n", app.WorkingDirectory)
		fmt.Fprintf(&b, "      command: %s\n", app.CommandLine)
		fmt.Fprintf(&b, "      watch:   %t\n", app.Watch)
		if len(app.EnvironmentKeys) > 0 {
			fmt.Fprintf(&b, "      env:     %s\n", strings.Join(app.EnvironmentKeys, ", "))
		}
	}
	for _, key := range summary.UnknownKeys {
		fmt.Fprintf(&b, "Warning: unsupported key %s\n", key)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
