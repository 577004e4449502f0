package report

import (
	"fmt"
	"html/template"
	"io"
	"sort"

	"github.com/rewired-gh/pulsereport/internal/models"
)

const eventTimeLayout = "2006-01-02 1504Z"

// Labels are the kind-specific captions of a rendered report.
type Labels struct {
	Events     string // stat card caption for the event count
	Actors     string // stat card caption for unique actors
	Categories string
	Recent     string
	Note       string // prefix of the "<Note>: N" section note
}

// LabelsFor returns the captions used for kind.
func LabelsFor(kind models.Kind) (Labels, error) {
	switch kind {
	case models.KindChat:
		return Labels{
			Events:     "Total Messages",
			Actors:     "Active Participants",
			Categories: "Message Types",
			Recent:     "Recent Messages",
			Note:       "Total messages",
		}, nil
	case models.KindRepository:
		return Labels{
			Events:     "Total Activity",
			Actors:     "Contributors",
			Categories: "Activity Types",
			Recent:     "Recent Activity",
			Note:       "Total events",
		}, nil
	}
	return Labels{}, fmt.Errorf("entity kind %q is not supported", kind)
}

var pageTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Pulse Report - {{.Report.Name}} Report</title>
<link rel="stylesheet" href="../static/report.css">
</head>
<body>
<header class="report-header">
<h1>{{if .Report.Icon}}{{.Report.Icon}} {{end}}{{.Report.Name}}</h1>
<p class="report-range">{{.Start}} to {{.End}}</p>
<p class="report-generated">Generated {{.Generated}}</p>
</header>
<section class="stats-grid">
<div class="stat-card">
<div class="stat-value">{{.Report.Stats.EventCount}}</div>
<div class="stat-label">{{.Labels.Events}}</div>
</div>
<div class="stat-card">
<div class="stat-value">{{.Report.Stats.UniqueActors}}</div>
<div class="stat-label">{{.Labels.Actors}}</div>
</div>
{{- with .Report.Trend}}
<div class="stat-card trend-{{.Direction}}">
<div class="stat-value">{{$.Change}}</div>
<div class="stat-label">Change vs Previous Day</div>
</div>
{{- end}}
</section>
<section class="breakdown">
<h2>{{.Labels.Categories}}</h2>
<ul>
{{- range .Categories}}
<li><span class="category">{{.Name}}</span> <span class="count">{{.Count}}</span></li>
{{- end}}
</ul>
</section>
<section class="hourly">
<h2>Hourly Activity (UTC)</h2>
<ol class="hours">
{{- range .Hours}}
<li data-hour="{{.Name}}">{{.Count}}</li>
{{- end}}
</ol>
</section>
<section class="events">
<h2>{{.Labels.Recent}}</h2>
<p class="section-note">{{.Labels.Note}}: {{.Report.Stats.EventCount}}</p>
{{- range .Events}}
<article class="event">
<div class="event-meta"><span class="author">{{.Author}}</span> <time>{{.Time}}</time> <span class="event-type">{{.Category}}</span></div>
<div class="event-text">{{.Text}}</div>
</article>
{{- else}}
<p class="empty">No activity in this window.</p>
{{- end}}
</section>
</body>
</html>
`))

type count struct {
	Name  string
	Count int
}

type eventView struct {
	Author   string
	Time     string
	Category string
	Text     string
}

type pageData struct {
	Report     *models.Report
	Labels     Labels
	Start      string
	End        string
	Generated  string
	Change     template.HTML // signed percentage, empty without a trend
	Categories []count
	Hours      []count
	Events     []eventView
}

// Render writes r as an HTML page.
func Render(w io.Writer, r *models.Report) error {
	labels, err := LabelsFor(r.Kind)
	if err != nil {
		return err
	}

	data := pageData{
		Report:     r,
		Labels:     labels,
		Start:      r.Window.Start.UTC().Format(models.TimestampLayout),
		End:        r.Window.End.UTC().Format(models.TimestampLayout),
		Generated:  r.GeneratedAt.UTC().Format(models.TimestampLayout) + " UTC",
		Categories: byCount(r.Stats.Categories),
	}
	if r.Trend != nil {
		data.Change = template.HTML(fmt.Sprintf("%+.1f%%", r.Trend.DeltaPercent))
	}
	for h := 0; h < 24; h++ {
		name := fmt.Sprintf("%02d", h)
		data.Hours = append(data.Hours, count{Name: name, Count: r.Stats.HourlyActivity[name]})
	}
	for _, e := range r.SampleEvents {
		author := e.ActorName
		if author == "" {
			author = e.ActorID
		}
		if author == "" {
			author = "Unknown"
		}
		data.Events = append(data.Events, eventView{
			Author:   author,
			Time:     e.Timestamp.UTC().Format(eventTimeLayout),
			Category: e.Category,
			Text:     e.Payload,
		})
	}

	return pageTemplate.Execute(w, data)
}

// byCount orders a histogram by count desc, then name asc.
func byCount(hist map[string]int) []count {
	out := make([]count, 0, len(hist))
	for name, n := range hist {
		out = append(out, count{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}
