package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/bodyviewer/internal/httputil"
)

// echartsAssetsHost serves the echarts scripts for the dashboard.
const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// AttachAdminRoutes adds the stats dashboard and counters to the /debug/
// index on mux.
func (s *Stats) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.KVFunc("Captures", func() any { return FormatWithCommas(s.Totals().Captures) })
	debug.KVFunc("Results", func() any { return FormatWithCommas(s.Totals().Results) })
	debug.KVFunc("Dropped captures", func() any { return s.Totals().Dropped })
	debug.KVFunc("Pipeline uptime", func() any { return s.GetUptime().Round(time.Second).String() })
	debug.HandleFunc("charts", "Pipeline throughput charts", s.handleCharts)
	debug.HandleSilentFunc("stats", s.handleStatsJSON)
}

func (s *Stats) handleStatsJSON(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]any{
		"totals": s.Totals(),
		"latest": s.GetLatestSnapshot(),
	})
}

// handleCharts renders the throughput history and totals.
func (s *Stats) handleCharts(w http.ResponseWriter, r *http.Request) {
	history := s.History()

	x := make([]string, len(history))
	captures := make([]opts.LineData, len(history))
	results := make([]opts.LineData, len(history))
	bodies := make([]opts.LineData, len(history))
	for i, snap := range history {
		x[i] = snap.Timestamp.Format("15:04:05")
		captures[i] = opts.LineData{Value: snap.CapturesPerSec}
		results[i] = opts.LineData{Value: snap.ResultsPerSec}
		bodies[i] = opts.LineData{Value: snap.BodiesPerResult}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Body Tracking Throughput", Theme: "dark", Width: "100%", Height: "480px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Throughput", Subtitle: fmt.Sprintf("%d intervals", len(history))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(x).
		AddSeries("captures/s", captures).
		AddSeries("results/s", results).
		AddSeries("bodies/result", bodies)

	t := s.Totals()
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "100%", Height: "360px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Totals", Subtitle: "uptime " + s.GetUptime().Round(time.Second).String()}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis([]string{"Captures", "Results", "Bodies", "Dropped", "Skipped", "Published"}).
		AddSeries("totals", []opts.BarData{
			{Value: t.Captures},
			{Value: t.Results},
			{Value: t.Bodies},
			{Value: t.Dropped},
			{Value: t.Skipped},
			{Value: t.Published},
		}, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))

	page := components.NewPage()
	page.PageTitle = "Body Tracking Throughput"
	page.SetAssetsHost(echartsAssetsHost)
	page.AddCharts(line, bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
