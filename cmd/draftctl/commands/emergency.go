package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/draftsync"
	"github.com/arloliu/draftsync/emergency"
)

func newEmergencyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emergency",
		Short: "Inspect or clear the local emergency log",
	}

	cmd.AddCommand(newEmergencyListCmd())
	cmd.AddCommand(newEmergencyClearCmd())

	return cmd
}

func newEmergencyListCmd() *cobra.Command {
	var (
		resource string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List emergency records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			log, err := openEmergencyBadger(cfg)
			if err != nil {
				return err
			}
			defer log.Close()

			recs, err := log.ReadAll(cmd.Context())
			if err != nil {
				return err
			}

			return printRecords(cmd.OutOrStdout(), filterRecords(recs, resource), asJSON)
		},
	}

	cmd.Flags().StringVarP(&resource, "resource", "r", "", "only records of this resource")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print full records as JSON lines")

	return cmd
}

func newEmergencyClearCmd() *cobra.Command {
	var (
		resource string
		all      bool
	)

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete emergency records of a resource, or all with --all",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if resource == "" && !all {
				return errors.New("either --resource or --all is required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			log, err := openEmergencyBadger(cfg)
			if err != nil {
				return err
			}
			defer log.Close()

			if err := log.Clear(cmd.Context(), resource); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cleared")

			return nil
		},
	}

	cmd.Flags().StringVarP(&resource, "resource", "r", "", "resource whose records are deleted")
	cmd.Flags().BoolVar(&all, "all", false, "delete every record")

	return cmd
}

func openEmergencyBadger(cfg Config) (*emergency.Badger, error) {
	if cfg.Emergency.Path == "" {
		return nil, errors.New("emergency.path is empty; records were kept in memory only")
	}

	return emergency.OpenBadger(cfg.Emergency.Path, emergency.WithBadgerLogger(newLogger(cfg)))
}

func filterRecords(recs []draftsync.EmergencyRecord, resource string) []draftsync.EmergencyRecord {
	if resource == "" {
		return recs
	}

	out := recs[:0:0]
	for _, r := range recs {
		if r.ResourceID == resource {
			out = append(out, r)
		}
	}

	return out
}

func printRecords(w io.Writer, recs []draftsync.EmergencyRecord, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		for _, r := range recs {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}

		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RESOURCE\tTIMESTAMP\tVERSION\tFIELDS")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", r.ResourceID, r.Timestamp.Format(time.RFC3339), r.Data.Version, len(r.Data.Fields))
	}

	return tw.Flush()
}
