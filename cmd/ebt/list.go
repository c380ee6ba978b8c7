package main

import (
	"fmt"

	"github.com/oukeidos/ebt/internal/language"
	"github.com/oukeidos/ebt/internal/metadata"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var models bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List supported languages or models",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			if models {
				fmt.Fprintln(out, "Gemini Models:")
				for _, m := range metadata.GeminiModels {
					fmt.Fprintf(out, "  %-28s in $%.2f / out $%.2f per 1M tokens\n", m.ID, m.InputPerMillion, m.OutputPerMillion)
				}
				fmt.Fprintln(out, "OpenAI Models:")
				for _, m := range metadata.OpenAIModels {
					fmt.Fprintf(out, "  %-28s in $%.2f / out $%.2f per 1M tokens\n", m.ID, m.InputPerMillion, m.OutputPerMillion)
				}
				return
			}
			fmt.Fprintln(out, "Supported Languages:")
			for _, l := range language.GetSupportedLanguages() {
				fmt.Fprintf(out, "  %-35s [%s] %s\n", l.Name, l.Code, l.Self)
			}
		},
	}
	cmd.Flags().BoolVar(&models, "models", false, "List known models and their pricing")
	return cmd
}
