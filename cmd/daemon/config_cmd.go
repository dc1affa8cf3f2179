// SPDX-License-Identifier: MIT

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/streamarr/streamarr-server-sub001/internal/config"
	"github.com/streamarr/streamarr-server-sub001/internal/version"
)

func runConfigCLI(args []string) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printConfigUsage(os.Stderr)
		return 0
	}

	switch args[0] {
	case "validate":
		return runConfigValidate(args[1:], os.Stdout, os.Stderr)
	case "dump":
		return runConfigDump(args[1:], os.Stdout, os.Stderr)
	default:
		fmt.Fprintf(os.Stderr, "Unknown subcommand: %s\n\n", args[0])
		printConfigUsage(os.Stderr)
		return 2
	}
}

func printConfigUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  streamarr config validate [--file|-f config.yaml]")
	fmt.Fprintln(w, "  streamarr config dump [--file|-f config.yaml]")
}

// resolveDefaultConfigPath returns ${STREAMARR_DATA_DIR}/config.yaml when it
// exists.
func resolveDefaultConfigPath() string {
	dataDir := strings.TrimSpace(os.Getenv(config.EnvPrefix + "DATA_DIR"))
	if dataDir == "" {
		dataDir = config.Defaults().DataDir
	}
	autoPath := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(autoPath); err == nil {
		return autoPath
	}
	return ""
}

func configFlags(name string, args []string, stderr io.Writer) (string, bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)

	var file string
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	if err := fs.Parse(args); err != nil {
		return "", false
	}
	file = strings.TrimSpace(file)
	if file == "" {
		file = resolveDefaultConfigPath()
	}
	return file, true
}

func runConfigValidate(args []string, stdout, stderr io.Writer) int {
	configPath, ok := configFlags("streamarr config validate", args, stderr)
	if !ok {
		return 2
	}
	if configPath == "" {
		fmt.Fprintln(stderr, "Error: --file is required (no config.yaml found in the data directory)")
		return 2
	}

	if _, err := config.NewLoader(configPath, version.Version).Load(); err != nil {
		fmt.Fprintf(stderr, "Configuration error in %s:\n  %v\n", configPath, err)
		return 1
	}
	fmt.Fprintf(stdout, "%s is valid\n", configPath)
	return 0
}

// runConfigDump prints the effective configuration (defaults + file + env).
func runConfigDump(args []string, stdout, stderr io.Writer) int {
	configPath, ok := configFlags("streamarr config dump", args, stderr)
	if !ok {
		return 2
	}

	cfg, err := config.NewLoader(configPath, version.Version).Load()
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error:\n  %v\n", err)
		return 1
	}

	enc := yaml.NewEncoder(stdout)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		fmt.Fprintf(stderr, "Failed to encode YAML: %v\n", err)
		return 1
	}
	_ = enc.Close()
	return 0
}
