package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newEventsCmd(opts *rootOptions) *cobra.Command {
	events := &cobra.Command{
		Use:   "events",
		Short: "Publish chain events",
	}
	events.AddCommand(&cobra.Command{
		Use:   "post <chain> <event|events array|-|@file>",
		Short: "Post a single event or an array of events",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args[1])
			if err != nil {
				return err
			}
			var batch []json.RawMessage
			if err = json.Unmarshal(input, &batch); err != nil {
				batch = []json.RawMessage{input}
			}
			res, err := opts.client().PostEvents(cmd.Context(), args[0], batch)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	})
	return events
}

func newTaskCmd(opts *rootOptions) *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}
	task.AddCommand(&cobra.Command{
		Use:   "post <chain> <task|-|@file>",
		Short: "Store a task for the chain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args[1])
			if err != nil {
				return err
			}
			res, err := opts.client().PostTask(cmd.Context(), args[0], input)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	})
	return task
}

func newTasksCmd(opts *rootOptions) *cobra.Command {
	tasks := &cobra.Command{
		Use:   "tasks",
		Short: "Read tasks",
	}
	var after string
	list := &cobra.Command{
		Use:   "list <chain>",
		Short: "List tasks of the chain in timestamp order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.client().ListTasks(cmd.Context(), args[0], after)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	list.Flags().StringVar(&after, "after", "", "only return tasks newer than the task with this id")
	tasks.AddCommand(list)
	return tasks
}

func newBroadcastCmd(opts *rootOptions) *cobra.Command {
	broadcast := &cobra.Command{
		Use:   "broadcast",
		Short: "Broadcast execute messages to contracts",
	}
	broadcast.AddCommand(
		&cobra.Command{
			Use:   "send <contract> <payload|-|@file>",
			Short: "Broadcast an execute message, returns the broadcast id",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				input, err := readInput(cmd, args[1])
				if err != nil {
					return err
				}
				res, err := opts.client().Broadcast(cmd.Context(), args[0], input)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			},
		},
		&cobra.Command{
			Use:   "status <contract> <broadcast id>",
			Short: "Show the status of a broadcast",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				res, err := opts.client().BroadcastStatus(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			},
		},
	)
	return broadcast
}

func newQueryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query <contract> <query|-|@file>",
		Short: "Run a smart query against a contract",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args[1])
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			res, err := opts.client().Query(cmd.Context(), args[0], input)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}
