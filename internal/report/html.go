package report

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"os"
	"sort"
	"time"
)

// htmlData is what the report template renders.
type htmlData struct {
	*Summary
	RunID     string
	Generated time.Time
	Passed    bool
	Failures  []failureCount
}

type failureCount struct {
	Reason string
	Count  int64
}

// WriteHTML renders the summary as a standalone HTML page.
func (s *Summary) WriteHTML(w io.Writer, runID string) error {
	if s.Snapshot == nil {
		return fmt.Errorf("summary has no snapshot")
	}
	tmpl, err := template.New("report").Funcs(htmlFuncs).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	data := htmlData{Summary: s, RunID: runID, Generated: time.Now(), Passed: s.Passed()}
	for reason, n := range s.Snapshot.Failures {
		data.Failures = append(data.Failures, failureCount{Reason: reason, Count: n})
	}
	sort.Slice(data.Failures, func(i, j int) bool {
		if data.Failures[i].Count != data.Failures[j].Count {
			return data.Failures[i].Count > data.Failures[j].Count
		}
		return data.Failures[i].Reason < data.Failures[j].Reason
	})

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	_, err = buf.WriteTo(w)
	return err
}

// WriteHTMLFile writes the HTML report to path.
func (s *Summary) WriteHTMLFile(path, runID string) error {
	var buf bytes.Buffer
	if err := s.WriteHTML(&buf, runID); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write HTML file: %w", err)
	}
	return nil
}

var htmlFuncs = template.FuncMap{
	"duration": formatDuration,
	"latency":  formatDurationShort,
	"number":   formatNumber,
	"percent":  func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
	"success":  func(s *Snapshot) string { return fmt.Sprintf("%.1f%%", 100-s.FailedPercent()) },
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Name}} - Simulation Report</title>
<style>
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; background: #f8fafc; color: #1e293b; margin: 0; }
main { max-width: 1100px; margin: 0 auto; padding: 2rem; }
h1 { margin-bottom: 0.25rem; }
.meta { color: #64748b; font-size: 0.9rem; }
.status { display: inline-block; padding: 0.2rem 0.7rem; border-radius: 999px; color: #fff; font-weight: 600; }
.pass { background: #22c55e; } .fail { background: #ef4444; }
.cards { display: grid; grid-template-columns: repeat(auto-fit, minmax(180px, 1fr)); gap: 1rem; margin: 1.5rem 0; }
.card { background: #fff; border: 1px solid #e2e8f0; border-radius: 8px; padding: 1rem; }
.card .label { color: #64748b; font-size: 0.8rem; text-transform: uppercase; }
.card .value { font-size: 1.5rem; font-weight: 600; }
table { width: 100%; border-collapse: collapse; background: #fff; margin-bottom: 1.5rem; }
th, td { text-align: left; padding: 0.5rem 0.75rem; border-bottom: 1px solid #e2e8f0; }
th { background: #f1f5f9; font-size: 0.85rem; }
td.num { text-align: right; font-variant-numeric: tabular-nums; }
.ko { color: #ef4444; font-weight: 600; }
</style>
</head>
<body>
<main>
<h1>{{.Name}}</h1>
<p class="meta">Run {{.RunID}} &middot; started {{.Snapshot.StartTime.Format "2006-01-02 15:04:05"}} &middot; generated {{.Generated.Format "2006-01-02 15:04:05"}}</p>
<span class="status {{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}Completed{{else}}Failed{{end}}</span>

<section class="cards">
<div class="card"><div class="label">Duration</div><div class="value">{{duration .Snapshot.Elapsed}}</div></div>
<div class="card"><div class="label">Users</div><div class="value">{{number .Snapshot.Started}}</div></div>
<div class="card"><div class="label">Requests</div><div class="value">{{number .Snapshot.Requests}}</div></div>
<div class="card"><div class="label">Success rate</div><div class="value">{{success .Snapshot}}</div></div>
<div class="card"><div class="label">P95</div><div class="value">{{latency .Snapshot.Latency.P95}}</div></div>
</section>

{{if .Snapshot.Actions}}
<h2>Actions</h2>
<table>
<tr><th>Action</th><th>Count</th><th>KO</th><th>KO %</th><th>Min</th><th>P50</th><th>P95</th><th>P99</th><th>Max</th></tr>
{{range .Snapshot.Actions}}
<tr><td>{{.Name}}</td><td class="num">{{number .Count}}</td><td class="num{{if .Failed}} ko{{end}}">{{number .Failed}}</td><td class="num">{{percent .FailedPercent}}</td>
<td class="num">{{latency .Latency.Min}}</td><td class="num">{{latency .Latency.P50}}</td><td class="num">{{latency .Latency.P95}}</td><td class="num">{{latency .Latency.P99}}</td><td class="num">{{latency .Latency.Max}}</td></tr>
{{end}}
</table>
{{end}}

{{if .Failures}}
<h2>Failures</h2>
<table>
<tr><th>Count</th><th>Reason</th></tr>
{{range .Failures}}<tr><td class="num">{{number .Count}}</td><td>{{.Reason}}</td></tr>
{{end}}
</table>
{{end}}

{{if .Assertions}}
<h2>Assertions</h2>
<table>
<tr><th></th><th>Assertion</th><th>Actual</th></tr>
{{range .Assertions}}<tr><td class="{{if .Passed}}{{else}}ko{{end}}">{{if .Passed}}&#10003;{{else}}&#10007;{{end}}</td><td>{{.Expression}}</td><td>{{.Actual}}</td></tr>
{{end}}
</table>
{{end}}
</main>
</body>
</html>
`
