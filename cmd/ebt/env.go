package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/oukeidos/ebt/internal/auth"
	"github.com/oukeidos/ebt/internal/pipeline"
	"github.com/spf13/cobra"
)

type envOptions struct {
	service string
}

func (o *envOptions) normalized() (string, error) {
	svc := strings.ToLower(strings.TrimSpace(o.service))
	if !slices.Contains(auth.Services(), svc) {
		return "", fmt.Errorf("invalid service %q: must be one of %s", o.service, strings.Join(auth.Services(), ", "))
	}
	return svc, nil
}

func newEnvCmd() *cobra.Command {
	opts := envOptions{}
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Manage API keys in OS Keychain",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnvStatus(cmd, &opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.service, "service", pipeline.ProviderGemini, "Service to manage ("+strings.Join(auth.Services(), " or ")+")")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "setup",
			Short: "Save API key to keychain (prompt only)",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, args []string) error { return runEnvSetup(cmd, &opts) },
		},
		&cobra.Command{
			Use:   "delete",
			Short: "Delete key from keychain",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, args []string) error { return runEnvDelete(cmd, &opts) },
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show key status (default if no action given)",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, args []string) error { return runEnvStatus(cmd, &opts) },
		},
	)
	return cmd
}

func runEnvSetup(cmd *cobra.Command, opts *envOptions) error {
	svc, err := opts.normalized()
	if err != nil {
		return err
	}
	promptKey, err := promptForKey(fmt.Sprintf("%s API Key: ", serviceLabel(svc)))
	if err != nil {
		return fmt.Errorf("error reading key: %w", err)
	}
	key := strings.TrimSpace(promptKey)
	if key == "" {
		return fmt.Errorf("API key is required for setup")
	}
	if err := auth.SaveKey(svc, key); err != nil {
		return fmt.Errorf("error saving key: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s API key to keychain.\n", svc)
	return nil
}

func runEnvDelete(cmd *cobra.Command, opts *envOptions) error {
	svc, err := opts.normalized()
	if err != nil {
		return err
	}
	if err := auth.DeleteKey(svc); err != nil {
		return fmt.Errorf("error deleting key: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s API key from keychain.\n", svc)
	return nil
}

func runEnvStatus(cmd *cobra.Command, opts *envOptions) error {
	svc, err := opts.normalized()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if getStatus(svc) {
		fmt.Fprintf(out, "%s API Key: Found (source=%s)\n", svc, auth.SourceKeychain)
		return nil
	}
	if envKey, ok := getEnvKey(svc); ok && envKey != "" {
		fmt.Fprintf(out, "%s API Key: Found (source=%s %s; disabled by default, use --allow-env)\n", svc, auth.SourceEnv, auth.EnvVar(svc))
		return nil
	}
	fmt.Fprintf(out, "%s API Key: Not Found (keychain empty, env not set)\n", svc)
	return nil
}
