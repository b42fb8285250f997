package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vidproc/internal/status"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Inspect and manage video status records",
	}
	statusCmd.AddCommand(newStatusListCommand(ctx))
	statusCmd.AddCommand(newStatusShowCommand(ctx))
	statusCmd.AddCommand(newStatusClearCommand(ctx))
	return statusCmd
}

func newStatusListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List status records",
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := parseStatusFilters(statusFlags)
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(store status.Store) error {
				records, err := store.List(cmd.Context(), filters...)
				if err != nil {
					return fmt.Errorf("list records: %w", err)
				}
				if asJSON {
					if records == nil {
						records = []*status.Record{}
					}
					return writeJSON(cmd, records)
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No records")
					return nil
				}
				rows := make([][]string, 0, len(records))
				for _, rec := range records {
					rows = append(rows, []string{
						rec.ID,
						rec.UID,
						string(rec.Status),
						strconv.Itoa(rec.Attempts),
						formatTimestamp(rec.UpdatedAt),
						summarizeRecord(rec),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Video", "Owner", "Status", "Attempts", "Updated", "Detail"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status ("+statusNames()+")")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newStatusShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <video-id>",
		Short: "Show one status record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withStore(cmd.Context(), func(store status.Store) error {
				rec, err := store.Get(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("get record: %w", err)
				}
				if rec == nil {
					return fmt.Errorf("video %s not found", id)
				}
				if asJSON {
					return writeJSON(cmd, rec)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Video:    %s\n", rec.ID)
				fmt.Fprintf(out, "Owner:    %s\n", rec.UID)
				fmt.Fprintf(out, "Status:   %s\n", rec.Status)
				fmt.Fprintf(out, "Attempts: %d\n", rec.Attempts)
				fmt.Fprintf(out, "Created:  %s\n", formatTimestamp(rec.CreatedAt))
				fmt.Fprintf(out, "Updated:  %s\n", formatTimestamp(rec.UpdatedAt))
				if rec.Filename != "" {
					fmt.Fprintf(out, "Output:   %s\n", rec.Filename)
				}
				if rec.Error != "" {
					fmt.Fprintf(out, "Error:    %s\n", rec.Error)
				}
				if !rec.IsTerminal() {
					fmt.Fprintln(out, "A job is still working on this video")
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newStatusClearCommand(ctx *commandContext) *cobra.Command {
	var failedOnly bool

	cmd := &cobra.Command{
		Use:   "clear [video-id...]",
		Short: "Delete status records so videos can be processed again",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !failedOnly {
				return errors.New("specify video ids or --failed")
			}
			return ctx.withStore(cmd.Context(), func(store status.Store) error {
				ids := append([]string(nil), args...)
				if failedOnly {
					records, err := store.List(cmd.Context(), status.StatusFailed)
					if err != nil {
						return fmt.Errorf("list failed records: %w", err)
					}
					for _, rec := range records {
						ids = append(ids, rec.ID)
					}
				}
				out := cmd.OutOrStdout()
				removed := 0
				for _, id := range ids {
					ok, err := store.Delete(cmd.Context(), strings.TrimSpace(id))
					if err != nil {
						return fmt.Errorf("delete %s: %w", id, err)
					}
					if !ok {
						fmt.Fprintf(out, "Video %s not found\n", id)
						continue
					}
					removed++
				}
				fmt.Fprintf(out, "Cleared %d record(s)\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Clear every failed record")
	return cmd
}

func parseStatusFilters(values []string) ([]status.Status, error) {
	var filters []status.Status
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		parsed, ok := status.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown status %q (want one of %s)", value, statusNames())
		}
		filters = append(filters, parsed)
	}
	return filters, nil
}

func statusNames() string {
	all := status.AllStatuses()
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

func summarizeRecord(rec *status.Record) string {
	switch {
	case rec.Error != "":
		return truncate(rec.Error, 60)
	case rec.Filename != "":
		return rec.Filename
	default:
		return ""
	}
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit-3] + "..."
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
