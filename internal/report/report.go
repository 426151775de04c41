// Package report renders a learner's study plan as Markdown and PDF.
package report

import (
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/mandolyte/mdtopdf"

	"github.com/Gidwell/jiro/internal/learner"
	"github.com/Gidwell/jiro/internal/learning"
)

//go:embed templates/plan.md.go.tmpl
var fallbackPlanTemplate string

const planTemplateName = "plan.md.go.tmpl"

// PlanReport is the data handed to the plan template.
type PlanReport struct {
	Learner     *learner.Learner
	Plan        *learning.Plan
	Stats       learning.Stats
	Streak      int
	GeneratedAt time.Time
}

// ParsePlanTemplate reads the template at templatePath, falling back to the
// embedded one when the path is empty or broken.
func ParsePlanTemplate(templatePath string) (*template.Template, error) {
	funcMap := template.FuncMap{
		"join": strings.Join,
		"percent": func(v float64) string {
			return fmt.Sprintf("%.0f%%", v*100)
		},
		"day": func(t time.Time) string {
			return t.Format("2006-01-02")
		},
	}

	if templatePath != "" {
		if _, err := os.Stat(templatePath); err == nil {
			tmpl, err := template.New(filepath.Base(templatePath)).
				Funcs(funcMap).
				ParseFiles(templatePath)
			if err == nil {
				return tmpl, nil
			}
			slog.Default().Warn("failed to parse a templatePath",
				slog.String("templatePath", templatePath),
				slog.Any("error", err),
			)
		}
	}

	tmpl, err := template.New(planTemplateName).
		Funcs(funcMap).
		Parse(fallbackPlanTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded template: %w", err)
	}
	return tmpl, nil
}

// WritePlan renders the plan as Markdown.
func WritePlan(w io.Writer, tmpl *template.Template, report PlanReport) error {
	if report.Plan == nil {
		report.Plan = &learning.Plan{}
	}
	if err := tmpl.Execute(w, report); err != nil {
		return fmt.Errorf("tmpl.Execute() > %w", err)
	}
	return nil
}

// ExportPlan writes the plan to dir as Markdown and, when withPDF is set,
// converts it to PDF. It returns the path of the last file written.
func ExportPlan(dir string, tmpl *template.Template, report PlanReport, withPDF bool) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("os.MkdirAll(%s) > %w", dir, err)
	}
	name := fmt.Sprintf("plan-%d-%s.md", report.Learner.ID, report.GeneratedAt.Format("20060102"))
	markdownPath := filepath.Join(dir, name)

	f, err := os.Create(markdownPath)
	if err != nil {
		return "", fmt.Errorf("os.Create(%s) > %w", markdownPath, err)
	}
	if err := WritePlan(f, tmpl, report); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("f.Close() > %w", err)
	}

	if !withPDF {
		return markdownPath, nil
	}
	return ConvertMarkdownToPDF(markdownPath)
}

// ConvertMarkdownToPDF converts a markdown file to a PDF next to it.
func ConvertMarkdownToPDF(markdownPath string) (string, error) {
	if !strings.HasSuffix(markdownPath, ".md") {
		return "", fmt.Errorf("input file must have .md extension: %s", markdownPath)
	}

	content, err := os.ReadFile(markdownPath)
	if err != nil {
		return "", fmt.Errorf("os.ReadFile(%s) > %w", markdownPath, err)
	}

	pdfPath := strings.TrimSuffix(markdownPath, ".md") + ".pdf"

	renderer := mdtopdf.NewPdfRenderer("P", "A4", pdfPath, "", nil, mdtopdf.LIGHT)
	if err := renderer.Process(content); err != nil {
		return "", fmt.Errorf("renderer.Process() > %w", err)
	}

	absPath, err := filepath.Abs(pdfPath)
	if err != nil {
		return pdfPath, nil
	}
	return absPath, nil
}
