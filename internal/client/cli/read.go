package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newGetCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print one record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := app.documents()
			if err != nil {
				return err
			}
			cred, err := app.credential()
			if err != nil {
				return err
			}
			r, err := docs.Get(cmd.Context(), cred, args[0])
			if err != nil {
				return err
			}
			return writeJSON(app.out, r)
		},
	}
}

func newListCommand(app *App) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the records of the document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := app.documents()
			if err != nil {
				return err
			}
			cred, err := app.credential()
			if err != nil {
				return err
			}
			doc, err := docs.List(cmd.Context(), cred)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(app.out, doc.Records)
			}
			tw := tabwriter.NewWriter(app.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tMEDIA\tLAST EDITED")
			for _, r := range doc.Records {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.ID, truncate(r.Title, 48), len(r.Media), r.LastEdited)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(app.errOut, "%d records at %s\n", len(doc.Records), doc.Hash)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the records as JSON")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
