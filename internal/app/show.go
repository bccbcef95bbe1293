package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// Show prints the most recently created alarms.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	alarms, err := store.ListRecent(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(alarms) == 0 {
		fmt.Fprintln(os.Stdout, "no alarms found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tClass\tSymbol\tType\tStatus\tEmail\tLast Check (UTC)\tError")

	for _, row := range alarms {
		fmt.Fprintf(
			writer,
			"%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			row.ID,
			row.AssetClass,
			row.AssetSymbol,
			row.Type,
			row.Status,
			row.Email,
			formatCheckTime(row.LastCheckAt),
			formatLastError(row.LastError),
		)
	}

	writer.Flush()
	return nil
}

func formatCheckTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatLastError(v *string) string {
	if v == nil {
		return ""
	}
	cleaned := strings.ReplaceAll(*v, "\n", " ")
	return strings.ReplaceAll(cleaned, "\r", " ")
}
