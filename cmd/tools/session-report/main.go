// Command session-report renders stored session results as a standalone
// HTML bar chart for quick visual review of a testing day.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/fieldlab-data/kinemetric/internal/store"
)

func main() {
	var (
		dbPath    = flag.String("db", "kinemetric.db", "path to results database")
		sessionID = flag.String("session", "", "session to chart (required)")
		outPath   = flag.String("out", "session-report.html", "output HTML file")
	)
	flag.Parse()

	if *sessionID == "" {
		flag.Usage()
		os.Exit(2)
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("session-report: %v", err)
	}
	defer db.Close()

	res, err := db.GetSession(*sessionID)
	if err != nil {
		log.Fatalf("session-report: %v", err)
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s session %s", res.Discipline, res.SessionID),
			Subtitle: fmt.Sprintf("%d trials, %d valid (%s)", len(res.Trials), res.CountValid, res.Unit),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	labels := make([]string, 0, len(res.Trials))
	values := make([]opts.BarData, 0, len(res.Trials))
	for i, tm := range res.Trials {
		name := fmt.Sprintf("trial %d", i+1)
		if !tm.Accepted {
			name += " (rejected)"
		}
		labels = append(labels, name)
		values = append(values, opts.BarData{Value: tm.Value})
	}
	bar.SetXAxis(labels).AddSeries(res.Unit, values)

	out, err := os.Create(*outPath)
	if err != nil {
		log.Fatalf("session-report: %v", err)
	}
	defer out.Close()
	if err := bar.Render(out); err != nil {
		log.Fatalf("session-report: %v", err)
	}
	fmt.Printf("wrote %s\n", *outPath)
}
