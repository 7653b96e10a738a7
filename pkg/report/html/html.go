// Package html 将运行历史渲染为静态HTML报告
package html

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/stevelan1995/forgebuild/pkg/storage"
)

const summaryTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>forgebuild run {{.Run.ID}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; margin-bottom: 2em; }
th, td { border: 1px solid #ccc; padding: 4px 10px; text-align: left; }
.status-SUCCEEDED, .outcome-PASS, .success-true { color: #080; }
.status-FAILED, .outcome-FAIL, .outcome-SHOULD_FAIL, .success-false { color: #b00; }
.outcome-SKIP, .outcome-KNOWN_FAIL { color: #960; }
pre.detail { background: #f6f6f6; padding: 6px; max-width: 70em; overflow-x: auto; }
</style>
</head>
<body>
<h1>Run {{.Run.ID}}</h1>
<p class="run-meta">
  <span class="kind">{{.Run.Kind}}</span>
  <span class="status status-{{.Run.Status}}">{{.Run.Status}}</span>
  <span class="started">{{.Run.StartTime.Format "2006-01-02 15:04:05"}}</span>
  {{if .Duration}}<span class="duration">{{.Duration}}</span>{{end}}
</p>
{{if .Run.ErrorMessage}}<pre class="error">{{.Run.ErrorMessage}}</pre>{{end}}

{{if .Run.ModuleResults}}
<h2>Modules</h2>
<table id="modules">
<tr><th>Module</th><th>Result</th><th>Elapsed</th></tr>
{{range .Run.ModuleResults}}
<tr class="module">
  <td class="name">{{.Module}}</td>
  <td class="success-{{.Success}}">{{if .Success}}OK{{else}}FAILED{{end}}</td>
  <td class="elapsed">{{.Elapsed}}</td>
</tr>
{{end}}
</table>
{{end}}

{{if .Run.TestResults}}
<h2>Tests</h2>
<table id="tests">
<tr><th>Suite</th><th>Test</th><th>Config</th><th>Outcome</th></tr>
{{range .Run.TestResults}}
<tr class="test">
  <td class="suite">{{.Suite}}</td>
  <td class="name">{{.Name}}</td>
  <td class="config">{{.Config}}</td>
  <td class="outcome outcome-{{.Outcome}}">{{.Outcome}}</td>
</tr>
{{end}}
</table>
{{range .Run.TestResults}}{{if .Detail}}
<h3>{{.Suite}} / {{.Name}}</h3>
<pre class="detail">{{.Detail}}</pre>
{{end}}{{end}}
{{end}}
</body>
</html>
`

var summaryTmpl = template.Must(template.New("summary").Parse(summaryTemplate))

type summaryData struct {
	Run      *storage.Run
	Duration time.Duration
}

// WriteSummary 渲染一次运行的HTML摘要（对外导出）
func WriteSummary(w io.Writer, run *storage.Run) error {
	data := summaryData{Run: run}
	if !run.EndTime.IsZero() {
		data.Duration = run.EndTime.Sub(run.StartTime).Round(time.Second)
	}
	if err := summaryTmpl.Execute(w, data); err != nil {
		return fmt.Errorf("render run %s: %w", run.ID, err)
	}
	return nil
}
