package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/pfir-bridge/internal/pfir"
	"github.com/sweeney/pfir-bridge/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"inc": func(i int) int { return i + 1 },
	"outputClass": func(v uint8) string {
		switch v {
		case pfir.ValueFloat:
			return "float"
		case pfir.ValueBrake:
			return "brake"
		}
		return ""
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>PF IR Bridge</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.float { color: #888; }
.brake { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>PF IR Bridge</h1>

<h2>Channels</h2>
<table>
<tr><th>Channel</th><th>A</th><th>B</th><th>Mode</th></tr>
{{range $i, $c := .Channels}}<tr><td>{{inc $i}}</td><td class="{{outputClass $c.A}}">{{$c.A}}</td><td class="{{outputClass $c.B}}">{{$c.B}}</td><td>{{$c.Mode}}</td></tr>
{{end}}</table>
{{if .LastCommand}}<p>Last command: {{.LastCommand}}</p>{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
<tr><th>Serial</th><td>{{if .Config.Serial}}{{.Config.Serial}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>Counts</h2>
<table>
<tr><th>Received</th><td>{{.Counts.Received}}</td></tr>
<tr><th>Duplicates</th><td>{{.Counts.Duplicates}}</td></tr>
<tr><th>Applied</th><td>{{.Counts.Applied}}</td></tr>
<tr><th>Rejected</th><td>{{.Counts.Rejected}}</td></tr>
<tr><th>Refreshes</th><td>{{.Counts.Refreshes}}</td></tr>
<tr><th>Frames</th><td>{{.Counts.Frames}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>IR line</th><td>{{.Config.Chip}}:{{.Config.Pin}}</td></tr>
<tr><th>Repeats</th><td>{{.Config.Repeats}} every {{.Config.RepeatDelayMs}}ms</td></tr>
<tr><th>Refresh</th><td>{{if eq .Config.RefreshMs 0}}disabled{{else}}{{.Config.RefreshMs}}ms{{end}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
