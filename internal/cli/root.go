// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-certauth.
//
// go-certauth is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package cli implements the certauth command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-certauth/internal/config"
	"github.com/jeremyhahn/go-certauth/pkg/storage"
	"github.com/jeremyhahn/go-certauth/pkg/storage/file"
	"github.com/jeremyhahn/go-certauth/pkg/storage/memory"
)

var (
	configFile string
	dataDir    string
	verbose    bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "certauth",
	Short: "certauth - certificate authority and certificate login server",
	Long: `certauth issues client certificates from a private CA and
authenticates users with a challenge-response certificate login that
binds verified logins to OAuth2 authorization codes.

Commands:
  ca init   bootstrap the root and intermediate CA
  issue     issue a user certificate as a PKCS#12 bundle
  server    run the HTTP API server
  agent     inspect the local signing Agent`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default is /etc/certauth/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "",
		"directory for CA material and registry storage")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"verbose output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(caCmd)
	rootCmd.AddCommand(issueCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(agentCmd)
}

// loadConfig resolves the effective configuration: file if present,
// defaults otherwise, with command-line overrides applied last.
func loadConfig() (*config.Config, error) {
	path := configFile
	if path == "" {
		path = "/etc/certauth/config.yaml"
	}

	var cfg *config.Config
	if _, err := os.Stat(path); err == nil {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	} else if configFile != "" {
		// An explicitly named config file must exist.
		return nil, fmt.Errorf("config file %s: %w", configFile, err)
	} else {
		cfg = config.DefaultConfig()
	}

	if dataDir != "" {
		cfg.Storage.Path = dataDir
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	return cfg, nil
}

// newBackend creates the storage backend named in the configuration.
func newBackend(cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return memory.New(), nil
	default:
		return file.New(cfg.Storage.Path)
	}
}

// handleError prints an error and exits with code 1
func handleError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// printVerbose prints a message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[VERBOSE] "+format+"\n", args...)
	}
}
