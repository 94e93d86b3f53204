package report

import (
	"encoding/json"
	"html/template"
	"io"
	"sort"
	"time"

	"github.com/wastewatch/wastewatch/pkg/engine"
	"github.com/wastewatch/wastewatch/pkg/finding"
)

const dashboardTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>WasteWatch Report</title>
<script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
<style>
  :root { --bg: #0b1120; --panel: #111827; --border: rgba(255,255,255,0.08);
          --text: #f8fafc; --muted: #94a3b8; --danger: #ef4444; --ok: #10b981; }
  body { background: var(--bg); color: var(--text); margin: 0; padding: 2rem;
         font-family: system-ui, sans-serif; }
  .panel { background: var(--panel); border: 1px solid var(--border);
           border-radius: 0.75rem; padding: 1.5rem; margin-bottom: 1.5rem; }
  header { display: flex; justify-content: space-between; align-items: baseline; }
  h1 { margin: 0; font-size: 1.75rem; }
  .muted { color: var(--muted); font-size: 0.875rem; }
  .kpis { display: grid; grid-template-columns: repeat(4, 1fr); gap: 1rem; }
  .kpi .value { font-size: 2rem; font-weight: 700; font-family: monospace; }
  .kpi.danger .value { color: var(--danger); }
  .kpi.ok .value { color: var(--ok); }
  table { width: 100%; border-collapse: collapse; }
  th, td { text-align: left; padding: 0.6rem 0.8rem; border-bottom: 1px solid var(--border); }
  th { color: var(--muted); text-transform: uppercase; font-size: 0.7rem; letter-spacing: 0.08em; }
  td.cost { font-family: monospace; }
  .grade { padding: 0.15rem 0.5rem; border-radius: 99px; font-size: 0.75rem;
           background: rgba(255,255,255,0.06); }
  .grade.critical { color: var(--danger); }
</style>
</head>
<body>
<header class="panel">
  <div>
    <h1>WasteWatch</h1>
    <div class="muted">{{.Provider}} account {{.Account}} // catalog {{.CatalogVersion}} // {{.GeneratedAt}}</div>
  </div>
</header>

<div class="kpis">
  <div class="panel kpi danger"><div class="muted">Monthly waste</div><div class="value">${{printf "%.2f" .Summary.TotalMonthlyCost}}</div></div>
  <div class="panel kpi ok"><div class="muted">Annual projection</div><div class="value">${{printf "%.2f" .AnnualProjection}}</div></div>
  <div class="panel kpi"><div class="muted">Burned to date</div><div class="value">${{printf "%.2f" .Summary.TotalWastedToDate}}</div></div>
  <div class="panel kpi"><div class="muted">Findings</div><div class="value">{{.Summary.Findings}}</div></div>
</div>

<div class="panel" style="height: 320px;"><canvas id="costChart"></canvas></div>

<div class="panel">
  <table>
    <thead>
      <tr><th>Resource</th><th>Type</th><th>Region</th><th>Confidence</th><th>Monthly</th><th>Reason</th></tr>
    </thead>
    <tbody>
      {{range .Findings}}
      <tr>
        <td>{{.ResourceID}}</td>
        <td>{{.ResourceType}}</td>
        <td>{{.Region}}</td>
        <td><span class="grade {{.Metadata.Confidence}}">{{.Metadata.Confidence}}</span></td>
        <td class="cost">${{printf "%.2f" .MonthlyCost}}</td>
        <td class="muted">{{.Metadata.Reason}}</td>
      </tr>
      {{else}}
      <tr><td colspan="6" class="muted">No waste detected.</td></tr>
      {{end}}
    </tbody>
  </table>
</div>

{{if .RegionErrors}}
<div class="panel">
  <div class="muted" style="margin-bottom: 0.5rem;">Regions that failed to scan</div>
  <table>
    <tbody>
      {{range .RegionErrors}}<tr><td>{{.Region}}</td><td class="muted">{{.Error}}</td></tr>{{end}}
    </tbody>
  </table>
</div>
{{end}}

<script>
  const labels = {{.ChartLabels}};
  const values = {{.ChartValues}};
  new Chart(document.getElementById('costChart'), {
    type: 'bar',
    data: { labels: labels, datasets: [{ label: 'Monthly cost', data: values,
            backgroundColor: 'rgba(239, 68, 68, 0.5)', borderColor: '#ef4444', borderWidth: 1 }] },
    options: { responsive: true, maintainAspectRatio: false,
               plugins: { legend: { display: false } } }
  });
</script>
</body>
</html>
`

var dashboard = template.Must(template.New("dashboard").Parse(dashboardTemplate))

type dashboardData struct {
	Document
	GeneratedAt      string
	AnnualProjection float64
	ChartLabels      template.JS
	ChartValues      template.JS
}

// WriteHTML renders the self-contained dashboard. Chart arrays go through
// the JSON encoder so untrusted names cannot break out of the script block;
// everything else relies on html/template's contextual escaping.
func WriteHTML(w io.Writer, res *engine.Result) error {
	doc := NewDocument(res)

	costByType := make(map[string]float64)
	for i := range doc.Findings {
		costByType[string(doc.Findings[i].ResourceType)] += doc.Findings[i].MonthlyCost
	}
	type entry struct {
		label string
		cost  float64
	}
	entries := make([]entry, 0, len(costByType))
	for label, cost := range costByType {
		entries = append(entries, entry{label, finding.RoundCents(cost)})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].cost != entries[j].cost {
			return entries[i].cost > entries[j].cost
		}
		return entries[i].label < entries[j].label
	})

	labels := make([]string, 0, len(entries))
	values := make([]float64, 0, len(entries))
	for _, e := range entries {
		labels = append(labels, e.label)
		values = append(values, e.cost)
	}
	labelsJSON, err := json.Marshal(labels)
	if err != nil {
		return err
	}
	valuesJSON, err := json.Marshal(values)
	if err != nil {
		return err
	}

	return dashboard.Execute(w, dashboardData{
		Document:         doc,
		GeneratedAt:      doc.StartedAt.Format(time.RFC822),
		AnnualProjection: finding.RoundCents(doc.Summary.TotalMonthlyCost * 12),
		ChartLabels:      template.JS(labelsJSON),
		ChartValues:      template.JS(valuesJSON),
	})
}
