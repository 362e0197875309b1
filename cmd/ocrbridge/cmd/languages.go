package cmd

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/ocrbridge/internal/engine"
)

// languagesCmd lists the language codes the service understands.
var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List supported OCR languages",
	Long: `List every language code accepted in the "languages" request field,
together with the Tesseract traineddata it maps to. Codes marked with *
are loaded by the current configuration.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		printLanguages(cmd.OutOrStdout(), GetConfig().Engine.Languages)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(languagesCmd)
}

func printLanguages(w io.Writer, loaded []string) {
	_, _ = fmt.Fprintf(w, "  %-8s %-10s %s\n", "CODE", "TESSDATA", "NAME")
	for _, lang := range engine.SupportedLanguages() {
		mark := " "
		if slices.Contains(loaded, lang.Code) {
			mark = "*"
		}
		_, _ = fmt.Fprintf(w, "%s %-8s %-10s %s\n", mark, lang.Code, lang.Tesseract, lang.Name)
	}
}
