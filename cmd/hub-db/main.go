// Bonsai Hub Database CLI Tool
// Provides command-line access to the hub controller database
package main

import (
	"database/sql"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
)

var (
	dbPath  string
	rootCmd = &cobra.Command{
		Use:   "hub-db",
		Short: "Bonsai Hub Database CLI",
		Long:  "Command-line tool for inspecting the bonsai hub controller database.",
	}

	readingsCmd = &cobra.Command{
		Use:   "readings",
		Short: "Show soil moisture readings",
		RunE:  showReadings,
	}

	wateringsCmd = &cobra.Command{
		Use:   "waterings",
		Short: "Show watering events",
		RunE:  showWaterings,
	}

	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		RunE:  showStats,
	}

	queryCmd = &cobra.Command{
		Use:   "query [sql]",
		Short: "Execute a raw SQL query",
		Args:  cobra.ExactArgs(1),
		RunE:  executeQuery,
	}

	limit int
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "database", "d", "/var/lib/bonsaihub/hub.db", "Database file path")

	readingsCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records to show")
	wateringsCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of records to show")

	rootCmd.AddCommand(readingsCmd)
	rootCmd.AddCommand(wateringsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(queryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openDB() (*sql.DB, error) {
	return sql.Open("sqlite3", dbPath+"?mode=ro")
}

func showReadings(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT timestamp, moisture_percent
		FROM moisture_readings ORDER BY timestamp DESC LIMIT ?
	`, limit)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tMOISTURE")
	fmt.Fprintln(w, "----\t--------")

	for rows.Next() {
		var ts time.Time
		var moisture float64
		if err := rows.Scan(&ts, &moisture); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%.1f%%\n", ts.Format("2006-01-02 15:04:05"), moisture)
	}
	w.Flush()
	return rows.Err()
}

func showWaterings(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT timestamp, run_id, mode, stop_reason, duration_seconds, moisture_before, moisture_after
		FROM watering_events ORDER BY timestamp DESC LIMIT ?
	`, limit)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tRUN\tMODE\tSTOP\tDURATION\tBEFORE\tAFTER")
	fmt.Fprintln(w, "----\t---\t----\t----\t--------\t------\t-----")

	for rows.Next() {
		var ts time.Time
		var runID, mode string
		var stopReason sql.NullString
		var duration float64
		var before, after sql.NullFloat64

		if err := rows.Scan(&ts, &runID, &mode, &stopReason, &duration, &before, &after); err != nil {
			return err
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1fs\t%s\t%s\n",
			ts.Format("2006-01-02 15:04:05"), runID[:8], mode, stopReason.String,
			duration, nullPct(before), nullPct(after))
	}
	w.Flush()
	return rows.Err()
}

func nullPct(v sql.NullFloat64) string {
	if !v.Valid {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", v.Float64)
}

func showStats(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tROWS\tOLDEST\tNEWEST")
	fmt.Fprintln(w, "-----\t----\t------\t------")

	for _, table := range []string{"moisture_readings", "watering_events"} {
		var count int
		var oldest, newest sql.NullString
		row := db.QueryRow(fmt.Sprintf(
			"SELECT COUNT(*), MIN(timestamp), MAX(timestamp) FROM %s", table))
		if err := row.Scan(&count, &oldest, &newest); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", table, count, orDash(oldest), orDash(newest))
	}
	w.Flush()
	return nil
}

func orDash(v sql.NullString) string {
	if !v.Valid || v.String == "" {
		return "-"
	}
	return v.String
}

func executeQuery(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.Query(args[0])
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for i, col := range cols {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, col)
	}
	fmt.Fprintln(w)

	values := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		for i, v := range values {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			switch val := v.(type) {
			case nil:
				fmt.Fprint(w, "NULL")
			case []byte:
				fmt.Fprint(w, string(val))
			default:
				fmt.Fprint(w, val)
			}
		}
		fmt.Fprintln(w)
	}
	w.Flush()
	return rows.Err()
}
