// Package report renders an overview of stored searches.
package report

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"net/url"
	"strings"
	"text/template"
	"time"
	"unicode/utf8"

	"github.com/mng48301/searchai/internal/pipeline"
	"github.com/mng48301/searchai/internal/storage"
)

// excerptLen caps the summary text shown per search.
const excerptLen = 160

// Entry is one stored search in the overview.
type Entry struct {
	Query     string    `json:"query"`
	JobID     string    `json:"jobId"`
	Sites     []string  `json:"sites"`
	Excerpt   string    `json:"excerpt"`
	CreatedAt time.Time `json:"createdAt"`
}

// Summary aggregates the stored searches.
type Summary struct {
	TotalSearches    int            `json:"totalSearches"`
	TotalSites       int            `json:"totalSites"`
	TotalChars       int            `json:"totalChars"`
	PlaceholderCount int            `json:"placeholderCount"`
	SitesByHost      map[string]int `json:"sitesByHost"`
	StartTime        time.Time      `json:"startTime"`
	EndTime          time.Time      `json:"endTime"`
	Duration         time.Duration  `json:"duration"`
	Entries          []Entry        `json:"entries"`
}

// GenerateSummary aggregates docs. Entries keep the order of docs.
func GenerateSummary(docs []*storage.SearchDocument) Summary {
	s := Summary{SitesByHost: make(map[string]int)}
	if len(docs) == 0 {
		return s
	}

	s.StartTime = docs[0].CreatedAt
	s.EndTime = docs[0].CreatedAt

	for _, d := range docs {
		s.TotalSearches++
		s.TotalSites += len(d.Sites)
		for _, r := range d.SiteResults {
			s.TotalChars += utf8.RuneCountInString(r.Content)
		}
		for _, site := range d.Sites {
			s.SitesByHost[host(site)]++
		}
		if isPlaceholder(d.Summary) {
			s.PlaceholderCount++
		}
		if d.CreatedAt.Before(s.StartTime) {
			s.StartTime = d.CreatedAt
		}
		if d.CreatedAt.After(s.EndTime) {
			s.EndTime = d.CreatedAt
		}
		s.Entries = append(s.Entries, Entry{
			Query:     d.Query,
			JobID:     d.JobID,
			Sites:     d.Sites,
			Excerpt:   excerpt(d.Summary),
			CreatedAt: d.CreatedAt,
		})
	}

	s.Duration = s.EndTime.Sub(s.StartTime)
	return s
}

func isPlaceholder(summary string) bool {
	return summary == pipeline.UnavailableSummary || strings.HasPrefix(summary, pipeline.SummaryErrorPrefix)
}

func host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

func excerpt(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= excerptLen {
		return s
	}
	return string([]rune(s)[:excerptLen]) + "..."
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	const textTmpl = `Search Results Overview
-----------------------
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Searches:      {{.TotalSearches}}
Sites:         {{.TotalSites}}
Content:       {{.TotalChars}} chars
Placeholders:  {{.PlaceholderCount}}

Sites By Host:
{{- range $host, $count := .SitesByHost}}
  {{$host}}: {{$count}}
{{- else}}
  None
{{- end}}

Searches:
{{- range .Entries}}
  [{{.CreatedAt.Format "2006-01-02 15:04"}}] {{.Query}} ({{len .Sites}} sites)
    {{.Excerpt}}
{{- else}}
  None
{{- end}}
`

	t, err := template.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parse text report: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render text report: %w", err)
	}
	return nil
}

const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>Search Results Dashboard</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; vertical-align: top; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>Search Results Dashboard</h1>
  <div class="stat-card">
    <div>Searches</div>
    <div class="stat-val">{{.TotalSearches}}</div>
  </div>
  <div class="stat-card">
    <div>Sites</div>
    <div class="stat-val">{{.TotalSites}}</div>
  </div>
  <div class="stat-card">
    <div>Placeholder Summaries</div>
    <div class="stat-val" style="color: {{if gt .PlaceholderCount 0}}red{{else}}green{{end}};">{{.PlaceholderCount}}</div>
  </div>

  <h3>Searches</h3>
  <table>
    <tr><th>Created</th><th>Query</th><th>Sites</th><th>Summary</th></tr>
    {{- range .Entries}}
    <tr>
      <td>{{.CreatedAt.Format "2006-01-02 15:04"}}</td>
      <td>{{.Query}}</td>
      <td>{{range .Sites}}<a href="/source_detail?url={{.}}">{{.}}</a><br>{{end}}</td>
      <td>{{.Excerpt}}</td>
    </tr>
    {{- else}}
    <tr><td colspan="4">None</td></tr>
    {{- end}}
  </table>

  <h3>Sites By Host</h3>
  <table>
    <tr><th>Host</th><th>Count</th></tr>
    {{- range $host, $count := .SitesByHost}}
    <tr><td>{{$host}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`

var htmlReport = htmltemplate.Must(htmltemplate.New("htmlReport").Parse(htmlTmpl))

// WriteHTML writes the dashboard page. Stored text is escaped.
func WriteHTML(w io.Writer, summary Summary) error {
	if err := htmlReport.Execute(w, summary); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}
