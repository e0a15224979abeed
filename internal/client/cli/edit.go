package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dmitrijs2005/docsync/internal/client/models"
	"github.com/dmitrijs2005/docsync/internal/client/services"
	"github.com/dmitrijs2005/docsync/internal/common"
	"github.com/spf13/cobra"
)

func newUpdateCommand(app *App) *cobra.Command {
	var (
		changesArg      string
		title           string
		description     string
		background      string
		clearBackground bool
		clearMedia      bool
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change named fields of one record",
		Long: `Change the named fields of one record. Fields that are not named are
left as they are in the current document, including edits made by others
since you last looked.

--changes takes a JSON object, or @file to read one:

  {"title": "New", "media": [{"type": "image", "url": "/img/a.png"}],
   "backgroundImage": null}

A null value clears the field. Flags are applied on top of --changes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var c models.Changes
			if changesArg != "" {
				data, err := readArg(changesArg)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(data, &c); err != nil {
					return fmt.Errorf("%w: --changes: %w", common.ErrInvalidChange, err)
				}
			}
			f := cmd.Flags()
			if f.Changed("title") {
				c.Title = models.SetTo(title)
			}
			if f.Changed("description") {
				c.Description = models.SetTo(description)
			}
			if f.Changed("background") {
				c.BackgroundImage = models.SetTo(background)
			}
			if clearBackground {
				c.BackgroundImage = models.Cleared[string]()
			}
			if clearMedia {
				c.Media = models.Cleared[[]models.Media]()
			}
			return app.update(cmd, args[0], c)
		},
	}
	f := cmd.Flags()
	f.StringVar(&changesArg, "changes", "", "changes as a JSON object, or @file")
	f.StringVar(&title, "title", "", "new title")
	f.StringVar(&description, "description", "", "new description")
	f.StringVar(&background, "background", "", "media url or thumb to use as background image")
	f.BoolVar(&clearBackground, "clear-background", false, "remove the background image")
	f.BoolVar(&clearMedia, "clear-media", false, "remove all media")
	cmd.MarkFlagsMutuallyExclusive("background", "clear-background")
	return cmd
}

func (a *App) update(cmd *cobra.Command, id string, c models.Changes) error {
	docs, err := a.documents()
	if err != nil {
		return err
	}
	cred, err := a.credential()
	if err != nil {
		return err
	}
	res, err := docs.Update(cmd.Context(), cred, id, c)
	if err != nil {
		return err
	}
	a.report("updated", id, res)
	return nil
}

func newDeleteCommand(app *App) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if !yes {
				got, err := GetSimpleText(app.reader, fmt.Sprintf("Type %s to delete it", id), app.errOut)
				if err != nil {
					return fmt.Errorf("%w: confirmation: %w", common.ErrInvalidChange, err)
				}
				if got != id {
					return fmt.Errorf("%w: confirmation did not match", common.ErrInvalidChange)
				}
			}
			docs, err := app.documents()
			if err != nil {
				return err
			}
			cred, err := app.credential()
			if err != nil {
				return err
			}
			res, err := docs.Delete(cmd.Context(), cred, id)
			if err != nil {
				return err
			}
			app.report("deleted", id, res)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func (a *App) report(verb, id string, res services.Result) {
	fmt.Fprintf(a.out, "%s %s at %s (attempts: %d)\n", verb, id, res.Hash, res.Attempts)
	if res.Warning != nil {
		fmt.Fprintf(a.errOut, "warning: %v\n", res.Warning)
	}
}

// readArg returns s, or the contents of the file when s is @path.
func readArg(s string) ([]byte, error) {
	if p, ok := strings.CutPrefix(s, "@"); ok {
		return os.ReadFile(p)
	}
	return []byte(s), nil
}
