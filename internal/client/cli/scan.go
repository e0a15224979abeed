package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/dmitrijs2005/docsync/internal/client/models"
	"github.com/dmitrijs2005/docsync/internal/codec"
	"github.com/spf13/cobra"
)

type finding struct {
	id      string
	level   codec.Level
	markers int
	changes models.Changes
}

func newScanCommand(app *App) *cobra.Command {
	var repair bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Report records with double-encoded text",
		Long: `Report records whose title or description carries double-encoded UTF-8
("CafÃ©" instead of "Café"). With --repair each affected record is
rewritten through a normal update, one record at a time.`,
		Args: cobra.NoArgs,
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

			var found []finding
			for _, r := range doc.Records {
				if f, ok := inspect(r); ok {
					found = append(found, f)
				}
			}

			tw := tabwriter.NewWriter(app.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tLEVEL\tMARKERS")
			for _, f := range found {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", f.id, f.level, f.markers)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(app.errOut, "%d of %d records affected\n", len(found), len(doc.Records))

			if !repair {
				return nil
			}
			for _, f := range found {
				if f.changes.Empty() {
					fmt.Fprintf(app.errOut, "skipping %s: no safe repair\n", f.id)
					continue
				}
				if err := app.update(cmd, f.id, f.changes); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "rewrite affected records with repaired text")
	return cmd
}

// inspect reports whether r needs attention and the changes that would
// repair it.
func inspect(r models.Record) (finding, bool) {
	f := finding{id: r.ID}
	for _, text := range []string{r.Title, r.Description} {
		if l := codec.CorruptionLevel(text); l > f.level {
			f.level = l
		}
		f.markers += codec.Signatures(text)
	}
	if f.level == codec.Clean && f.markers == 0 {
		return f, false
	}
	if fixed, ok := codec.Repair(r.Title); ok && fixed != r.Title {
		f.changes.Title = models.SetTo(fixed)
	}
	if fixed, ok := codec.Repair(r.Description); ok && fixed != r.Description {
		f.changes.Description = models.SetTo(fixed)
	}
	return f, true
}
