package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/docsync/internal/client/models"
	"github.com/dmitrijs2005/docsync/internal/common"
	"github.com/spf13/cobra"
)

func newUploadCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload media files and print their references",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := app.upload(cmd, args)
			if err != nil {
				return err
			}
			return writeJSON(app.out, items)
		},
	}
}

func newAttachCommand(app *App) *cobra.Command {
	var asBackground bool
	cmd := &cobra.Command{
		Use:   "attach <id> <file>...",
		Short: "Upload media files and append them to a record",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, files := args[0], args[1:]
			if len(files) > common.MaxMediaItems {
				return fmt.Errorf("%w: %d files, a record holds at most %d media", common.ErrInvalidChange, len(files), common.MaxMediaItems)
			}
			items, err := app.upload(cmd, files)
			if err != nil {
				return err
			}
			c := models.Changes{MediaAppend: items}
			if asBackground {
				bg := items[0].URL
				if items[0].Thumb != "" {
					bg = items[0].Thumb
				}
				c.BackgroundImage = models.SetTo(bg)
			}
			return app.update(cmd, id, c)
		},
	}
	cmd.Flags().BoolVar(&asBackground, "background", false, "use the first file as background image")
	return cmd
}

func (a *App) upload(cmd *cobra.Command, files []string) ([]models.Media, error) {
	u, err := a.media(cmd.Context())
	if err != nil {
		return nil, err
	}
	items := make([]models.Media, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		m, err := u.Upload(cmd.Context(), filepath.Base(f), data)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(a.errOut, "uploaded %s -> %s\n", f, m.URL)
		items = append(items, m)
	}
	return items, nil
}
