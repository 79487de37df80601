package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/docker/go-units"
	"github.com/kiranshivaraju/trainboard/internal/view"
	"github.com/kiranshivaraju/trainboard/pkg/models"
	"gopkg.in/yaml.v3"
)

type outputFormat string

const (
	formatTable outputFormat = "table"
	formatJSON  outputFormat = "json"
	formatYAML  outputFormat = "yaml"
)

func parseFormat(s string) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(s)); f {
	case formatTable, formatJSON, formatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unsupported output format %q (use table, json or yaml)", s)
}

type printer struct {
	out    io.Writer
	errOut io.Writer
	format outputFormat
	now    func() time.Time
}

func newPrinter(out, errOut io.Writer, format outputFormat) *printer {
	return &printer{out: out, errOut: errOut, format: format, now: time.Now}
}

// structured writes v as JSON or YAML. It reports false for table output.
func (p *printer) structured(v any) (bool, error) {
	switch p.format {
	case formatJSON:
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		return true, p.yaml(v)
	}
	return false, nil
}

func (p *printer) yaml(v any) error {
	// Round-trip through JSON so keys follow the json tags.
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	enc := yaml.NewEncoder(p.out)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(m)
}

func (p *printer) table(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(p.out, 0, 8, 2, ' ', 0)
	upper := make([]string, len(headers))
	for i, h := range headers {
		upper[i] = strings.ToUpper(h)
	}
	fmt.Fprintln(w, strings.Join(upper, "\t"))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
}

// page renders one dashboard tab.
func (p *printer) page(pg view.Page) error {
	if pg.Stale {
		fmt.Fprintf(p.errOut, "Warning: showing data from %s, last refresh failed: %s\n",
			p.age(*pg.FetchedAt), pg.Error)
	}
	if ok, err := p.structured(pg); ok {
		return err
	}

	switch {
	case pg.Overview != nil:
		p.overview(pg.Overview)
	case pg.Datasets != nil:
		p.datasets(pg.Datasets.Datasets)
	case pg.Models != nil:
		p.models(pg.Models.Models)
		if len(pg.Models.History) > 0 {
			fmt.Fprintln(p.out)
			p.history(pg.Models.History)
		}
	case pg.Deploy != nil:
		p.deploy(pg.Deploy)
	default:
		fmt.Fprintf(p.out, "No data (%s)\n", pg.Presentation)
	}
	return nil
}

func (p *printer) overview(o *view.Overview) {
	p.table(
		[]string{"Datasets", "Models", "Deployed", "API Calls"},
		[][]string{{
			strconv.Itoa(o.Stats.Datasets),
			strconv.Itoa(o.Stats.Models),
			strconv.Itoa(o.Stats.Deployed),
			strconv.FormatInt(o.Stats.APICalls, 10),
		}},
	)
	fmt.Fprintln(p.out)
	if len(o.RecentModels) == 0 {
		fmt.Fprintln(p.out, "No models yet.")
		return
	}
	fmt.Fprintln(p.out, "Recent models:")
	p.models(o.RecentModels)
}

func (p *printer) datasets(rows []view.DatasetRow) {
	out := make([][]string, 0, len(rows))
	for _, d := range rows {
		out = append(out, []string{
			d.ID.String(), d.Name, string(d.FileType), d.Size,
			strconv.Itoa(d.Rows), strconv.Itoa(d.Columns), p.age(d.CreatedAt),
		})
	}
	p.table([]string{"ID", "Name", "Type", "Size", "Rows", "Columns", "Created"}, out)
}

func (p *printer) models(rows []view.ModelRow) {
	out := make([][]string, 0, len(rows))
	for _, m := range rows {
		deployed := "no"
		switch {
		case m.Deploying:
			deployed = "deploying"
		case m.Deployed:
			deployed = "yes"
		}
		out = append(out, []string{
			m.ID.String(), m.Name, m.DatasetName, string(m.Status), deployed, p.age(m.CreatedAt),
		})
	}
	p.table([]string{"ID", "Name", "Dataset", "Status", "Deployed", "Created"}, out)
}

func (p *printer) history(results []models.TestResult) {
	out := make([][]string, 0, len(results))
	for _, r := range results {
		out = append(out, []string{
			r.ModelID.String(), truncate(r.Input, 40), truncate(r.Output, 60),
			confidence(r.Confidence), seconds(r.ProcessingTime),
		})
	}
	p.table([]string{"Model", "Input", "Output", "Confidence", "Time"}, out)
}

func (p *printer) deploy(d *view.DeployTab) {
	out := make([][]string, 0, len(d.Deployments))
	for _, dep := range d.Deployments {
		out = append(out, []string{
			dep.ID.String(), dep.Name, dep.ModelName, dep.Endpoint, string(dep.Status),
			strconv.FormatInt(dep.UsageCount, 10), p.age(dep.CreatedAt),
		})
	}
	p.table([]string{"ID", "Name", "Model", "Endpoint", "Status", "Usage", "Created"}, out)

	if len(d.Available) > 0 {
		fmt.Fprintln(p.out)
		fmt.Fprintln(p.out, "Ready to deploy:")
		p.models(d.Available)
	}
}

func (p *printer) dataset(d *models.Dataset) error {
	if ok, err := p.structured(d); ok {
		return err
	}
	p.table(
		[]string{"ID", "Name", "Type", "Size", "Rows", "Columns"},
		[][]string{{
			d.ID.String(), d.Name, string(d.FileType), view.FileSize(d.FileSize),
			strconv.Itoa(d.RowCount), strconv.Itoa(d.ColumnCount),
		}},
	)
	return nil
}

func (p *printer) model(m *models.Model) error {
	if ok, err := p.structured(m); ok {
		return err
	}
	p.table(
		[]string{"ID", "Name", "Status", "Type", "Created"},
		[][]string{{m.ID.String(), m.Name, string(m.Status), m.ModelType, p.age(m.CreatedAt)}},
	)
	if m.ErrorMessage != nil {
		fmt.Fprintf(p.out, "\nError: %s\n", *m.ErrorMessage)
	}
	return nil
}

func (p *printer) testResult(r models.TestResult) error {
	if ok, err := p.structured(r); ok {
		return err
	}
	fmt.Fprintln(p.out, r.Output)
	fmt.Fprintf(p.out, "\nconfidence %s, %s\n", confidence(r.Confidence), seconds(r.ProcessingTime))
	return nil
}

func (p *printer) deployment(d *models.Deployment) error {
	if ok, err := p.structured(d); ok {
		return err
	}
	p.table(
		[]string{"ID", "Name", "Endpoint", "Status"},
		[][]string{{d.ID.String(), d.Name, d.APIEndpoint, string(d.Status)}},
	)
	return nil
}

func (p *printer) age(t time.Time) string {
	return units.HumanDuration(p.now().Sub(t)) + " ago"
}

func confidence(c float64) string {
	return strconv.FormatFloat(c*100, 'f', 1, 64) + "%"
}

func seconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 2, 64) + "s"
}

// truncate shortens s to n runes, appending "..." if truncated.
func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
