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
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-certauth/pkg/ca"
	"github.com/jeremyhahn/go-certauth/pkg/registry"
)

var (
	issueCommonName string
	issueEmail      string
	issueOrg        string
	issueCountry    string
	issueValidity   int
	issuePassword   string
	issueOut        string
	issueUserID     string
)

// issueCmd issues a user certificate and writes it as a PKCS#12 bundle
var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a user certificate",
	Long: `Issue an end-entity certificate signed by the intermediate CA,
register it in the certificate registry, and write the certificate and
private key as a password-protected PKCS#12 bundle.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if issueCommonName == "" {
			return fmt.Errorf("--cn is required")
		}
		if issuePassword == "" {
			return fmt.Errorf("--password is required")
		}

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

		caCert, caKey, err := store.SigningKey()
		if err != nil {
			return err
		}

		material, err := store.Load()
		if err != nil {
			return err
		}

		reg, err := registry.New(backend)
		if err != nil {
			return err
		}

		var factoryOpts []ca.Option
		if cfg.CA.ModernPKCS12 {
			factoryOpts = append(factoryOpts, ca.WithModernPKCS12())
		}
		factory := ca.NewFactory(factoryOpts...)

		validity := issueValidity
		if validity == 0 {
			validity = cfg.CA.DefaultValidityYears
		}

		issued, err := factory.IssueUserCertificate(ca.UserCertificateRequest{
			Subject: ca.SubjectFields{
				CommonName:   issueCommonName,
				Organization: issueOrg,
				Country:      issueCountry,
			},
			Email:         issueEmail,
			ValidityYears: validity,
		}, caCert, caKey)
		if err != nil {
			return err
		}

		userID := issueUserID
		if userID == "" {
			userID = uuid.NewString()
			if err := reg.SaveUser(&registry.User{
				ID:      userID,
				Name:    issueCommonName,
				Email:   issueEmail,
				Created: time.Now(),
			}); err != nil {
				return err
			}
		}

		if err := reg.Register(&registry.Record{
			SerialNumber:   issued.SerialNumber,
			UserID:         userID,
			CommonName:     issued.CommonName,
			SubjectDN:      issued.SubjectDN,
			IssuerDN:       issued.IssuerDN,
			NotBefore:      issued.NotBefore,
			NotAfter:       issued.NotAfter,
			CertificatePEM: issued.CertificatePEM,
		}); err != nil {
			return err
		}

		bundle, err := factory.PackagePKCS12(issued.CertificatePEM, issued.PrivateKeyPEM, issuePassword,
			material.Intermediate.Certificate, material.Root.Certificate)
		if err != nil {
			return err
		}

		out := issueOut
		if out == "" {
			out = issueCommonName + ".p12"
		}
		if err := os.WriteFile(out, bundle, 0600); err != nil {
			return fmt.Errorf("failed to write bundle: %w", err)
		}

		fmt.Printf("Certificate issued\n")
		fmt.Printf("  Subject: %s\n", issued.SubjectDN)
		fmt.Printf("  Serial:  %s\n", issued.SerialNumber)
		fmt.Printf("  User:    %s\n", userID)
		fmt.Printf("  Expires: %s\n", issued.NotAfter.Format("2006-01-02"))
		fmt.Printf("  Bundle:  %s\n", out)
		return nil
	},
}

func init() {
	issueCmd.Flags().StringVar(&issueCommonName, "cn", "", "subject common name (any UTF-8)")
	issueCmd.Flags().StringVar(&issueEmail, "email", "", "email subject alternative name")
	issueCmd.Flags().StringVar(&issueOrg, "org", "", "organization")
	issueCmd.Flags().StringVar(&issueCountry, "country", "", "two-letter country code")
	issueCmd.Flags().IntVar(&issueValidity, "validity", 0, "validity in years (default from config)")
	issueCmd.Flags().StringVar(&issuePassword, "password", "", "PKCS#12 bundle password")
	issueCmd.Flags().StringVar(&issueOut, "out", "", "output file (default <cn>.p12)")
	issueCmd.Flags().StringVar(&issueUserID, "user-id", "", "bind to an existing user instead of creating one")
}
