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

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-certauth/pkg/agent"
)

var agentDrive string

// agentCmd groups commands that talk to the local signing Agent
var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Inspect the local signing Agent",
	Long: `Check the local signing Agent and list the certificates it can
sign with. The Agent holds certificate private keys on this machine;
no key material ever leaves it.`,
}

// agentStatusCmd checks Agent reachability
var agentStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check that the Agent is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		client := agent.New(&agent.Config{
			Address: cfg.Agent.Address,
			Timeout: cfg.Agent.Timeout,
		})

		if err := client.Health(cmd.Context()); err != nil {
			return fmt.Errorf("agent at %s is not reachable: %w", cfg.Agent.Address, err)
		}

		fmt.Printf("Agent at %s is healthy\n", cfg.Agent.Address)
		return nil
	},
}

// agentCertsCmd lists the Agent's certificates
var agentCertsCmd = &cobra.Command{
	Use:   "certificates",
	Short: "List certificates available to the Agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		client := agent.New(&agent.Config{
			Address: cfg.Agent.Address,
			Timeout: cfg.Agent.Timeout,
		})

		entries, err := client.Certificates(cmd.Context(), agentDrive)
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No certificates found")
			return nil
		}

		for _, entry := range entries {
			status := "valid"
			if entry.IsExpired {
				status = "EXPIRED"
			}
			fmt.Printf("%s\n", entry.CertID)
			fmt.Printf("  Serial:   %s\n", entry.SerialNumber)
			fmt.Printf("  Subject:  %s\n", entry.SubjectDN)
			fmt.Printf("  Issuer:   %s\n", entry.IssuerDN)
			fmt.Printf("  NotAfter: %s (%s)\n", entry.NotAfter.Format("2006-01-02"), status)
		}
		return nil
	},
}

func init() {
	agentCertsCmd.Flags().StringVar(&agentDrive, "drive", "",
		"restrict the listing to one removable drive")

	agentCmd.AddCommand(agentStatusCmd)
	agentCmd.AddCommand(agentCertsCmd)
}
