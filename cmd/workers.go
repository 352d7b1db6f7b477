package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newWorkersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "Inspect worker nodes",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List known workers, most recently seen first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, cfg, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			workers, err := st.ListWorkers(cmd.Context())
			if err != nil {
				return err
			}
			deadAfter := time.Duration(cfg.Worker.DeadAfterSecs) * time.Second
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tHOST\tLAST SEEN\tCAP\tRESTARTS\tVERSION\tSTATUS")
			for _, rec := range workers {
				status := "alive"
				if time.Since(rec.LastSeen) > deadAfter {
					status = "dead"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
					rec.ID, rec.DisplayName, rec.Hostname,
					rec.LastSeen.Format(time.RFC3339), rec.Capacity,
					rec.RestartCount, rec.Version, status)
			}
			return w.Flush()
		},
	})
	return cmd
}
