package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oukeidos/ebt/internal/auth"
	"github.com/oukeidos/ebt/internal/version"
)

func newAboutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "about",
		Short: "Show what ebt is and which providers it supports",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ebt %s: EPUB Book Translator\n", version.Version)
			fmt.Fprintln(out, "Translates the text of an EPUB book and keeps its markup, images and package layout.")
			fmt.Fprintf(out, "Providers: %s\n", strings.Join(auth.Services(), ", "))
			fmt.Fprintln(out, "https://github.com/oukeidos/ebt")
		},
	}
}
