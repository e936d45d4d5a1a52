package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/flowboard/core/workflow"
)

func (cli *commandLine) newWorkflowsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflows",
		Short: "Manage workflows",
		RunE:  cli.help,
	}
	cmd.AddCommand(cli.newWorkflowsListCommand())
	cmd.AddCommand(cli.newWorkflowsCreateCommand())
	cmd.AddCommand(cli.newWorkflowsSetupCommand())
	cmd.AddCommand(cli.newStudentLifecycleCommand())
	return cmd
}

func (cli *commandLine) newWorkflowsListCommand() *cobra.Command {
	var search string
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows with their progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			filter := workflow.QueryFilter{Search: search}
			if activeOnly {
				filter.Active = &activeOnly
			}
			workflows, err := cli.svc.QueryWorkflows(ctx, filter)
			if err != nil {
				return errors.Wrap(err, "querying workflows")
			}

			rows := make([][]string, 0, len(workflows))
			for _, wf := range workflows {
				detail, err := cli.svc.GetWorkflowDetail(ctx, wf.ID)
				if err != nil {
					return errors.Wrap(err, "getting workflow")
				}
				rows = append(rows, []string{
					wf.ID,
					wf.Name,
					strconv.Itoa(wf.Sequence),
					yesNo(wf.Active),
					strconv.Itoa(detail.StageCount),
					fmt.Sprintf("%.2f%%", detail.ProgressPercentage),
				})
			}
			renderTable(cli.out,
				[]string{"ID", "Name", "Sequence", "Active", "Stages", "Progress"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignRight},
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "Only workflows whose name or description contains this text")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only active workflows")
	return cmd
}

func (cli *commandLine) newWorkflowsCreateCommand() *cobra.Command {
	var nw workflow.NewWorkflow
	var sequence int

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nw.Name = args[0]
			if cmd.Flags().Changed("sequence") {
				nw.Sequence = &sequence
			}
			wf, err := cli.svc.CreateWorkflow(context.Background(), nw)
			if err != nil {
				return err
			}
			fmt.Fprintf(cli.out, "Workflow %q created: %s\n", wf.Name, wf.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&nw.Description, "description", "", "Workflow description")
	cmd.Flags().IntVar(&sequence, "sequence", workflow.DefaultSequence, "Display order")
	cmd.Flags().StringVar(&nw.Color, "color", "", "Hex color, e.g. #3498db")
	cmd.Flags().StringVar(&nw.Icon, "icon", "", "Icon name")
	return cmd
}

func (cli *commandLine) newWorkflowsSetupCommand() *cobra.Command {
	var (
		setupType     string
		color         string
		file          string
		noStages      bool
		noTransitions bool
		noAnalytics   bool
	)

	cmd := &cobra.Command{
		Use:   "setup WORKFLOW_ID",
		Short: "Run the setup wizard on a workflow",
		Long: "Run the setup wizard on a workflow. Custom setups read their stages and transitions " +
			"from a JSON file (--file) shaped like the body of POST /v1/workflows/:id/setup.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts workflow.SetupOptions
			if file != "" {
				b, err := os.ReadFile(file)
				if err != nil {
					return errors.Wrap(err, "reading setup file")
				}
				if err = json.Unmarshal(b, &opts); err != nil {
					return errors.Wrapf(err, "decoding %s", file)
				}
			}
			if setupType != "" {
				opts.Type = workflow.SetupType(setupType)
			}
			if color != "" {
				opts.DefaultColor = color
			}
			if noStages {
				opts.AutoCreateStages = new(bool)
			}
			if noTransitions {
				opts.AutoCreateTransitions = new(bool)
			}
			if noAnalytics {
				opts.IncludeAnalytics = new(bool)
			}

			res, err := cli.svc.Setup(context.Background(), args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cli.out, "%s: %d stages, %d transitions, %d analytics records\n",
				res.Workflow.Name, len(res.Stages), len(res.Transitions), res.Analytics)
			for _, w := range res.Warnings {
				fmt.Fprintf(cli.out, "warning: %s\n", w)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&setupType, "type", "", "basic (default), advanced or custom")
	cmd.Flags().StringVar(&color, "color", "", "Default hex color of the created stages")
	cmd.Flags().StringVar(&file, "file", "", "JSON file with the setup options")
	cmd.Flags().BoolVar(&noStages, "no-stages", false, "Do not create the default stages")
	cmd.Flags().BoolVar(&noTransitions, "no-transitions", false, "Do not create the default transitions")
	cmd.Flags().BoolVar(&noAnalytics, "no-analytics", false, "Do not create the analytics records")
	return cmd
}

func (cli *commandLine) newStudentLifecycleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "student-lifecycle",
		Short: "Get or create the Student Lifecycle workflow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := cli.svc.StudentLifecycle(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintln(cli.out, wf.ID)
			return nil
		},
	}
}

func (cli *commandLine) newStagesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stages",
		Short: "Inspect stages",
		RunE:  cli.help,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list WORKFLOW_ID",
		Short: "List the stages of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			stages, err := cli.svc.QueryStages(ctx, args[0])
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(stages))
			for _, st := range stages {
				nst, err := cli.svc.NextStage(ctx, st)
				if err != nil {
					return err
				}
				next := ""
				if nst != nil {
					next = nst.Name
				}
				rows = append(rows, []string{st.ID, st.Name, strconv.Itoa(st.Sequence), st.ActionRef, next})
			}
			renderTable(cli.out,
				[]string{"ID", "Name", "Sequence", "Action", "Next"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight},
			)
			return nil
		},
	})
	return cmd
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
