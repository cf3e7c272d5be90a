package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/voicecapture/internal/catalog"
	"github.com/audiolibrelab/voicecapture/internal/session"
)

var recordingsCmd = &cobra.Command{
	Use:   "recordings",
	Short: "List cataloged recordings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := catalog.NewFileCatalog(cfg.Storage.Path)
		entries, err := cat.Entries()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No recordings cataloged yet")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tLENGTH\tADDED\tPATH")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
				e.ID,
				e.Title,
				session.FormatDuration(time.Duration(e.Duration)*time.Millisecond),
				e.DateAdded.Format("2006-01-02 15:04"),
				e.Path)
		}
		return w.Flush()
	},
}
