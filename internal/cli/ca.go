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

	"github.com/jeremyhahn/go-certauth/pkg/ca"
)

var (
	caCommonName           string
	caOrganization         string
	caCountry              string
	caRootValidity         int
	caIntermediateValidity int
)

// caCmd groups certificate authority management commands
var caCmd = &cobra.Command{
	Use:   "ca",
	Short: "Manage the certificate authority",
	Long:  `Bootstrap and inspect the root and intermediate CA`,
}

// caInitCmd bootstraps the CA hierarchy
var caInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap the root and intermediate CA",
	Long: `Generate a self-signed root CA and an intermediate CA signed by it.
The intermediate is constrained to pathlen 0 and signs all user
certificates. Existing CA material is never overwritten.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		backend, err := newBackend(cfg)
		if err != nil {
			return err
		}
		defer backend.Close()

		store, err := ca.NewStore(&ca.StoreConfig{
			Backend:     backend,
			KeyPassword: []byte(cfg.CA.KeyPassword),
		})
		if err != nil {
			return err
		}

		initialized, err := store.Initialized()
		if err != nil {
			return err
		}
		if initialized {
			return fmt.Errorf("CA is already initialized in %s", cfg.Storage.Path)
		}

		factory := ca.NewFactory()

		printVerbose("issuing root CA %q", caCommonName)
		root, err := factory.IssueRootCA(ca.SubjectFields{
			CommonName:   caCommonName,
			Organization: caOrganization,
			Country:      caCountry,
		}, caRootValidity)
		if err != nil {
			return err
		}

		printVerbose("issuing intermediate CA")
		intermediate, err := factory.IssueIntermediateCA(ca.SubjectFields{
			CommonName:   caCommonName + " Intermediate",
			Organization: caOrganization,
			Country:      caCountry,
		}, root.Certificate, root.PrivateKey, caIntermediateValidity)
		if err != nil {
			return err
		}

		if err := store.Save(&ca.CAMaterial{Root: root, Intermediate: intermediate}); err != nil {
			return err
		}

		fmt.Printf("CA initialized\n")
		fmt.Printf("  Root:         %s (serial %s)\n", root.SubjectDN, root.SerialNumber)
		fmt.Printf("  Intermediate: %s (serial %s)\n", intermediate.SubjectDN, intermediate.SerialNumber)
		fmt.Printf("  Valid until:  %s\n", root.NotAfter.Format("2006-01-02"))
		return nil
	},
}

// caInfoCmd prints the current CA hierarchy
var caInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the CA hierarchy",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		backend, err := newBackend(cfg)
		if err != nil {
			return err
		}
		defer backend.Close()

		store, err := ca.NewStore(&ca.StoreConfig{
			Backend:     backend,
			KeyPassword: []byte(cfg.CA.KeyPassword),
		})
		if err != nil {
			return err
		}

		material, err := store.Load()
		if err != nil {
			return err
		}

		fmt.Printf("Root CA\n")
		fmt.Printf("  Subject:   %s\n", material.Root.SubjectDN)
		fmt.Printf("  Serial:    %s\n", material.Root.SerialNumber)
		fmt.Printf("  Expires:   %s\n", material.Root.NotAfter.Format("2006-01-02"))
		fmt.Printf("Intermediate CA\n")
		fmt.Printf("  Subject:   %s\n", material.Intermediate.SubjectDN)
		fmt.Printf("  Serial:    %s\n", material.Intermediate.SerialNumber)
		fmt.Printf("  Expires:   %s\n", material.Intermediate.NotAfter.Format("2006-01-02"))
		return nil
	},
}

func init() {
	caInitCmd.Flags().StringVar(&caCommonName, "cn", "Certificate Login CA", "root CA common name")
	caInitCmd.Flags().StringVar(&caOrganization, "org", "", "organization")
	caInitCmd.Flags().StringVar(&caCountry, "country", "", "two-letter country code")
	caInitCmd.Flags().IntVar(&caRootValidity, "root-validity", 10, "root CA validity in years")
	caInitCmd.Flags().IntVar(&caIntermediateValidity, "intermediate-validity", 5, "intermediate CA validity in years")

	caCmd.AddCommand(caInitCmd)
	caCmd.AddCommand(caInfoCmd)
}
