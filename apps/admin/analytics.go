package main

import (
	"context"
	"fmt"
	"net/mail"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/flowboard/core/workflow"
	"github.com/trezcool/flowboard/services/scheduler"
)

func (cli *commandLine) newAnalyticsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Inspect, refresh and mail the stage analytics",
		RunE:  cli.help,
	}
	cmd.AddCommand(cli.newAnalyticsListCommand())
	cmd.AddCommand(cli.newAnalyticsRefreshCommand())
	cmd.AddCommand(cli.newAnalyticsDigestCommand())
	return cmd
}

func (cli *commandLine) newAnalyticsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list WORKFLOW_ID",
		Short: "List the analytics records of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			stages, err := cli.svc.QueryStages(ctx, args[0])
			if err != nil {
				return err
			}
			names := make(map[string]string, len(stages))
			for _, st := range stages {
				names[st.ID] = st.Name
			}
			records, err := cli.svc.QueryAnalytics(ctx, args[0])
			if err != nil {
				return err
			}
			cli.renderAnalytics(records, names)
			return nil
		},
	}
}

func (cli *commandLine) renderAnalytics(records []workflow.AnalyticsDetail, stageNames map[string]string) {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		updated := "never"
		if !rec.LastUpdated.IsZero() {
			updated = rec.LastUpdated.Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{
			stageNames[rec.StageID],
			strconv.Itoa(rec.RecordCount),
			strconv.FormatFloat(rec.AvgDuration, 'f', 1, 64),
			strconv.FormatFloat(rec.EfficiencyScore, 'f', 0, 64),
			string(rec.Trend),
			updated,
		})
	}
	renderTable(cli.out,
		[]string{"Stage", "Records", "Avg (h)", "Efficiency", "Trend", "Last updated"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
	)
}

func (cli *commandLine) newAnalyticsRefreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [WORKFLOW_ID]",
		Short: "Refresh the analytics of a workflow, or of every workflow",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			if len(args) == 0 {
				n, err := cli.refresher.RunOnce(ctx)
				if errors.Cause(err) == scheduler.ErrLocked {
					return errors.New("another process is refreshing the analytics, try again later")
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cli.out, "%d analytics records refreshed\n", n)
				return nil
			}

			records, err := cli.svc.RefreshWorkflowAnalytics(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cli.out, "%d analytics records refreshed\n", len(records))
			return nil
		},
	}
}

func (cli *commandLine) newAnalyticsDigestCommand() *cobra.Command {
	var to string

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Mail the analytics digest of the active workflows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recipients := cli.conf.Mail.DigestRecipients
			if to = strings.TrimSpace(to); to != "" {
				addrs, err := mail.ParseAddressList(to)
				if err != nil {
					return errors.Wrap(err, "parsing --to")
				}
				recipients = recipients[:0:0]
				for _, a := range addrs {
					recipients = append(recipients, *a)
				}
			}
			if len(recipients) == 0 {
				return errors.New("no recipients: set mail.digestRecipients or use --to")
			}

			if err := cli.svc.SendAnalyticsDigest(context.Background(), recipients); err != nil {
				return err
			}
			fmt.Fprintf(cli.out, "Digest sent to %d recipient(s)\n", len(recipients))
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "Comma separated recipients, overrides mail.digestRecipients")
	return cmd
}
