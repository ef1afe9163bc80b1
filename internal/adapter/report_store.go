package adapter

import (
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/olekukonko/tablewriter"

	m "funcov.dev/pkg/funcov/internal/model"
)

// Report formats accepted by Validate and Emit.
const (
	FormatTxt  = "txt"
	FormatXML  = "xml"
	FormatHTML = "html"
	FormatCSV  = "csv"
)

const (
	calledGlyph   = "✓"
	uncalledGlyph = "✗"
)

var unsafeNameRx = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// ReportStore renders aggregated coverage records into report files. Every
// emitter is deterministic: the same records produce byte-identical files,
// so regenerating a report never dirties a checked-in artifact.
type ReportStore interface {
	// Validate rejects unknown format names before anything is written.
	Validate(formats []string) error

	// Emit writes one report file per record and format into dir, plus
	// an index page when html is requested. It returns the files
	// written.
	Emit(dir m.Path, records []m.CoverageRecord, formats []string) ([]m.Path, error)
}

// LocalReportStore is the filesystem-backed ReportStore.
type LocalReportStore struct{}

// NewLocalReportStore creates a new LocalReportStore.
func NewLocalReportStore() *LocalReportStore {
	return &LocalReportStore{}
}

// Validate implements ReportStore.
func (s *LocalReportStore) Validate(formats []string) error {
	if len(formats) == 0 {
		return fmt.Errorf("no report formats requested: %w", m.ErrUnsupportedFormat)
	}

	for _, format := range formats {
		switch strings.ToLower(strings.TrimSpace(format)) {
		case FormatTxt, FormatXML, FormatHTML, FormatCSV:
		default:
			return fmt.Errorf("report format %q: %w", format, m.ErrUnsupportedFormat)
		}
	}

	return nil
}

// Emit implements ReportStore.
func (s *LocalReportStore) Emit(dir m.Path, records []m.CoverageRecord, formats []string) ([]m.Path, error) {
	if err := s.Validate(formats); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(string(dir), 0o755); err != nil {
		slog.Error("failed to create report directory", "dir", dir, "error", err)
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	names := reportNames(records)

	var written []m.Path

	for _, format := range normalizeFormats(formats) {
		for i, record := range records {
			content, err := renderRecord(record, names[i], format)
			if err != nil {
				return written, err
			}

			path := filepath.Join(string(dir), fmt.Sprintf("coverage_%s.%s", names[i], format))
			if err := os.WriteFile(path, content, 0o644); err != nil {
				slog.Error("failed to write report", "path", path, "error", err)
				return written, fmt.Errorf("failed to write %s: %w", path, err)
			}

			written = append(written, m.Path(path))
		}

		if format == FormatHTML {
			path := filepath.Join(string(dir), "index.html")

			content, err := renderIndex(records, names)
			if err != nil {
				return written, err
			}

			if err := os.WriteFile(path, content, 0o644); err != nil {
				return written, fmt.Errorf("failed to write %s: %w", path, err)
			}

			written = append(written, m.Path(path))
		}
	}

	slog.Debug("emitted reports", "dir", dir, "files", len(written))

	return written, nil
}

func normalizeFormats(formats []string) []string {
	seen := make(map[string]struct{}, len(formats))
	normalized := make([]string, 0, len(formats))

	for _, format := range formats {
		format = strings.ToLower(strings.TrimSpace(format))
		if _, dup := seen[format]; dup {
			continue
		}

		seen[format] = struct{}{}
		normalized = append(normalized, format)
	}

	return normalized
}

// reportNames maps records to file-name-safe stems. Two binaries sharing a
// base name get disambiguated by their content digest.
func reportNames(records []m.CoverageRecord) []string {
	used := make(map[string]int, len(records))
	names := make([]string, len(records))

	for i, record := range records {
		names[i] = unsafeNameRx.ReplaceAllString(record.Identity.Name(), "_")
		used[names[i]]++
	}

	for i, record := range records {
		if used[names[i]] > 1 && len(record.Identity.Digest) >= 12 {
			names[i] = names[i] + "_" + record.Identity.Digest[:12]
		}
	}

	return names
}

func renderRecord(record m.CoverageRecord, name, format string) ([]byte, error) {
	switch format {
	case FormatTxt:
		return renderTxt(record), nil
	case FormatXML:
		return renderXML(record)
	case FormatHTML:
		return renderHTML(record, name)
	case FormatCSV:
		return renderCSV(record)
	}

	return nil, fmt.Errorf("report format %q: %w", format, m.ErrUnsupportedFormat)
}

func summaryLine(record m.CoverageRecord) string {
	return fmt.Sprintf(
		"Coverage for %s | Functions: %d | Called: %d | Uncalled: %d | Coverage: %.2f%% | Runs: %d | Unresolved: %d",
		record.Identity.Name(), record.Total(), record.Called(), record.Total()-record.Called(),
		record.Percent(), record.Runs, record.Unresolved,
	)
}

func statusGlyph(status m.CallStatus) string {
	if status == m.StatusCalled {
		return calledGlyph
	}

	return uncalledGlyph
}

func renderTxt(record m.CoverageRecord) []byte {
	var buf bytes.Buffer

	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Binary", "Functions", "Called", "Coverage", "Runs", "Unresolved"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.Append([]string{
		record.Identity.Name(),
		fmt.Sprintf("%d", record.Total()),
		fmt.Sprintf("%d", record.Called()),
		fmt.Sprintf("%.2f%%", record.Percent()),
		fmt.Sprintf("%d", record.Runs),
		fmt.Sprintf("%d", record.Unresolved),
	})
	table.Render()

	buf.WriteString("\n")

	for _, fn := range record.Functions {
		fmt.Fprintf(&buf, "  %s %s\n", statusGlyph(fn.Status), fn.Name)
	}

	return buf.Bytes()
}

type xmlTestSuites struct {
	XMLName xml.Name       `xml:"testsuites"`
	Suites  []xmlTestSuite `xml:"testsuite"`
}

type xmlTestSuite struct {
	Errors   int           `xml:"errors,attr"`
	Failures int           `xml:"failures,attr"`
	Name     string        `xml:"name,attr"`
	Skipped  int           `xml:"skipped,attr"`
	Tests    int           `xml:"tests,attr"`
	Cases    []xmlTestCase `xml:"testcase"`
}

type xmlTestCase struct {
	ClassName string     `xml:"classname,attr"`
	Name      string     `xml:"name,attr"`
	Passed    *xmlPassed `xml:"passed"`
}

type xmlPassed struct {
	Message string `xml:"message,attr"`
	Text    string `xml:",chardata"`
}

// renderXML emits the XUnit shape CI systems already ingest: one suite per
// binary with uncalled functions reported as skipped tests.
func renderXML(record m.CoverageRecord) ([]byte, error) {
	var details strings.Builder

	details.WriteString("\n")

	for _, fn := range record.Functions {
		fmt.Fprintf(&details, "  %s %s\n", statusGlyph(fn.Status), fn.Name)
	}

	suiteName := "binary_coverage_" + unsafeNameRx.ReplaceAllString(record.Identity.Name(), "_")

	suites := xmlTestSuites{
		Suites: []xmlTestSuite{{
			Errors:   0,
			Failures: 0,
			Name:     suiteName,
			Skipped:  record.Total() - record.Called(),
			Tests:    record.Total(),
			Cases: []xmlTestCase{{
				ClassName: suiteName,
				Name:      "Result",
				Passed: &xmlPassed{
					Message: summaryLine(record),
					Text:    details.String(),
				},
			}},
		}},
	}

	var buf bytes.Buffer

	buf.WriteString(xml.Header)

	encoder := xml.NewEncoder(&buf)
	encoder.Indent("", "  ")

	if err := encoder.Encode(suites); err != nil {
		return nil, fmt.Errorf("failed to encode xml report: %w", err)
	}

	buf.WriteString("\n")

	return buf.Bytes(), nil
}

func renderCSV(record m.CoverageRecord) ([]byte, error) {
	var buf bytes.Buffer

	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"function", "status"}); err != nil {
		return nil, fmt.Errorf("failed to encode csv report: %w", err)
	}

	for _, fn := range record.Functions {
		if err := writer.Write([]string{fn.Name, string(fn.Status)}); err != nil {
			return nil, fmt.Errorf("failed to encode csv report: %w", err)
		}
	}

	writer.Flush()

	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to encode csv report: %w", err)
	}

	return buf.Bytes(), nil
}

type htmlReport struct {
	Name       string
	Digest     string
	File       string
	Total      int
	Called     int
	Uncalled   int
	Percent    float64
	Runs       int
	Unresolved int
	Functions  []m.FunctionCoverage
}

func newHTMLReport(record m.CoverageRecord, name string) htmlReport {
	return htmlReport{
		Name:       record.Identity.Name(),
		Digest:     record.Identity.Digest,
		File:       fmt.Sprintf("coverage_%s.html", name),
		Total:      record.Total(),
		Called:     record.Called(),
		Uncalled:   record.Total() - record.Called(),
		Percent:    record.Percent(),
		Runs:       record.Runs,
		Unresolved: record.Unresolved,
		Functions:  record.Functions,
	}
}

func renderHTML(record m.CoverageRecord, name string) ([]byte, error) {
	var buf bytes.Buffer

	if err := binaryPage.Execute(&buf, newHTMLReport(record, name)); err != nil {
		return nil, fmt.Errorf("failed to render html report: %w", err)
	}

	return buf.Bytes(), nil
}

func renderIndex(records []m.CoverageRecord, names []string) ([]byte, error) {
	rows := make([]htmlReport, len(records))
	for i, record := range records {
		rows[i] = newHTMLReport(record, names[i])
	}

	var buf bytes.Buffer

	if err := indexPage.Execute(&buf, rows); err != nil {
		return nil, fmt.Errorf("failed to render html index: %w", err)
	}

	return buf.Bytes(), nil
}

var binaryPage = template.Must(template.New("binary").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>funcov: {{.Name}}</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
table { border-collapse: collapse; margin-bottom: 1.5em; }
th, td { border: 1px solid #ccc; padding: 0.4em 0.9em; text-align: left; }
th { background: #f0f0f0; }
tr.called td { background: #e6f4e6; }
tr.uncalled td { background: #f9e6e6; }
.digest { color: #888; font-size: 0.85em; }
</style>
</head>
<body>
<h1>{{.Name}}</h1>
<p class="digest">sha256 {{.Digest}}</p>
<table>
<tr><th>Functions</th><th>Called</th><th>Uncalled</th><th>Coverage</th><th>Runs</th><th>Unresolved</th></tr>
<tr><td>{{.Total}}</td><td>{{.Called}}</td><td>{{.Uncalled}}</td><td>{{printf "%.2f" .Percent}}%</td><td>{{.Runs}}</td><td>{{.Unresolved}}</td></tr>
</table>
<table>
<tr><th>Function</th><th>Status</th></tr>
{{range .Functions}}<tr class="{{.Status}}"><td>{{.Name}}</td><td>{{.Status}}</td></tr>
{{end}}</table>
</body>
</html>
`))

var indexPage = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>funcov coverage</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 0.4em 0.9em; text-align: left; }
th { background: #f0f0f0; }
</style>
</head>
<body>
<h1>Function coverage</h1>
<table>
<tr><th>Binary</th><th>Functions</th><th>Called</th><th>Coverage</th><th>Runs</th><th>Unresolved</th></tr>
{{range .}}<tr><td><a href="{{.File}}">{{.Name}}</a></td><td>{{.Total}}</td><td>{{.Called}}</td><td>{{printf "%.2f" .Percent}}%</td><td>{{.Runs}}</td><td>{{.Unresolved}}</td></tr>
{{end}}</table>
</body>
</html>
`))
