// Package dossier builds the EN 1090 traceability workbook of one assembly.
package dossier

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"fabprogress/internal/storage"
)

const (
	SheetProgress = "Progress"
	SheetHistory  = "History"
	SheetChecks   = "Checks"
	SheetNCRs     = "NCRs"
	SheetCoating  = "Coating"
)

type Source interface {
	GetAssembly(ctx context.Context, id string) (*storage.Assembly, error)
	GetProgress(ctx context.Context, assemblyID string) (*storage.ProgressState, error)
	ListHistory(ctx context.Context, assemblyID string) ([]*storage.StepHistoryEntry, error)
	ListChecks(ctx context.Context, assemblyID string, step *storage.ManufacturingStep) ([]*storage.QualityCheck, error)
	ListAssemblyNCRs(ctx context.Context, assemblyID string) ([]*storage.NonComplianceRecord, error)
	ListCoatingRecords(ctx context.Context, assemblyID string) ([]*storage.OutsourcedCoatingRecord, error)
}

type Generator struct {
	source Source
	now    func() time.Time
}

func NewGenerator(source Source) *Generator {
	return &Generator{source: source, now: time.Now}
}

type data struct {
	assembly *storage.Assembly
	progress *storage.ProgressState
	history  []*storage.StepHistoryEntry
	checks   []*storage.QualityCheck
	ncrs     []*storage.NonComplianceRecord
	coating  []*storage.OutsourcedCoatingRecord
}

func (g *Generator) load(ctx context.Context, assemblyID string) (*data, error) {
	d := &data{}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		d.assembly, err = g.source.GetAssembly(ctx, assemblyID)
		return err
	})
	eg.Go(func() (err error) {
		d.progress, err = g.source.GetProgress(ctx, assemblyID)
		return err
	})
	eg.Go(func() (err error) {
		d.history, err = g.source.ListHistory(ctx, assemblyID)
		return err
	})
	eg.Go(func() (err error) {
		d.checks, err = g.source.ListChecks(ctx, assemblyID, nil)
		return err
	})
	eg.Go(func() (err error) {
		d.ncrs, err = g.source.ListAssemblyNCRs(ctx, assemblyID)
		return err
	})
	eg.Go(func() (err error) {
		d.coating, err = g.source.ListCoatingRecords(ctx, assemblyID)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return d, nil
}

// Generate returns the xlsx workbook for the assembly.
func (g *Generator) Generate(ctx context.Context, assemblyID string) ([]byte, error) {
	const op = "service.dossier.Generate"

	d, err := g.load(ctx, assemblyID)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch data: %w", op, err)
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"E0E0E0"}, Pattern: 1},
		Border: []excelize.Border{{Type: "bottom", Color: "000000", Style: 2}},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: style: %w", op, err)
	}

	if err := f.SetSheetName("Sheet1", SheetProgress); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sheets := []struct {
		name    string
		headers []string
		rows    [][]any
	}{
		{SheetProgress, []string{"Field", "Value"}, g.progressRows(d)},
		{SheetHistory, []string{"Step", "Started", "Completed", "Duration (h)", "Actor", "Notes"}, historyRows(d.history)},
		{SheetChecks, []string{"Step", "Check", "Required", "Status", "Checked by", "Checked at", "Results", "Defects", "Corrective actions"}, checkRows(d.checks)},
		{SheetNCRs, []string{"Number", "Step", "Severity", "Status", "Description", "Discovered by", "Discovered at", "Root cause", "Immediate action", "Preventive action", "Assigned to", "Target date", "Resolved"}, ncrRows(d.ncrs)},
		{SheetCoating, []string{"Supplier", "Sent", "Expected return", "Returned", "Status", "Sent by", "Returned by", "Notes"}, coatingRows(d.coating)},
	}

	for _, s := range sheets {
		if s.name != SheetProgress {
			if _, err := f.NewSheet(s.name); err != nil {
				return nil, fmt.Errorf("%s: sheet %s: %w", op, s.name, err)
			}
		}
		if err := writeTable(f, s.name, s.headers, s.rows, headerStyle); err != nil {
			return nil, fmt.Errorf("%s: sheet %s: %w", op, s.name, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("%s: write: %w", op, err)
	}

	return buf.Bytes(), nil
}

func writeTable(f *excelize.File, sheet string, headers []string, rows [][]any, headerStyle int) error {
	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	lastCol := cellName(len(headers), 1)
	if err := f.SetCellStyle(sheet, "A1", lastCol, headerStyle); err != nil {
		return err
	}

	for i, row := range rows {
		if err := f.SetSheetRow(sheet, cellName(1, i+2), &row); err != nil {
			return err
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	col, _ := excelize.ColumnNumberToName(len(headers))
	return f.SetColWidth(sheet, "A", col, 18)
}

func (g *Generator) progressRows(d *data) [][]any {
	p := d.progress
	rows := [][]any{
		{"Assembly", d.assembly.Mark},
		{"Assembly ID", d.assembly.ID},
		{"Project", d.assembly.ProjectRef},
		{"Current step", p.CurrentStep.String()},
		{"Step started", formatTime(&p.CurrentStepStartedAt)},
		{"Step completed", formatTime(p.CurrentStepCompletedAt)},
		{"Updated by", p.UpdatedBy},
		{"Updated at", formatTime(&p.UpdatedAt)},
		{"Coating outsourced", yesNo(p.IsCoatingOutsourced)},
		{"Expected coating return", formatTime(p.ExpectedReturnAt)},
		{"Actual coating return", formatTime(p.ActualReturnAt)},
		{"Notes", p.Notes},
	}
	if p.PreviousStep != nil {
		rows = append(rows, []any{"Previous step", p.PreviousStep.String()})
	}
	now := g.now().UTC()
	rows = append(rows, []any{"Generated", formatTime(&now)})
	return rows
}

func historyRows(entries []*storage.StepHistoryEntry) [][]any {
	rows := make([][]any, 0, len(entries))
	for _, h := range entries {
		rows = append(rows, []any{
			h.Step.String(),
			formatTime(&h.StartedAt),
			formatTime(&h.CompletedAt),
			h.Duration.Round(time.Minute).Hours(),
			h.Actor,
			h.Notes,
		})
	}
	return rows
}

func checkRows(checks []*storage.QualityCheck) [][]any {
	rows := make([][]any, 0, len(checks))
	for _, c := range checks {
		rows = append(rows, []any{
			c.ForStep.String(),
			string(c.CheckType),
			yesNo(c.IsRequired),
			string(c.Status),
			c.CheckedBy,
			formatTime(c.CheckedAt),
			c.Results,
			c.DefectsFound,
			c.CorrectiveActions,
		})
	}
	return rows
}

func ncrRows(ncrs []*storage.NonComplianceRecord) [][]any {
	rows := make([][]any, 0, len(ncrs))
	for _, n := range ncrs {
		rows = append(rows, []any{
			n.Number,
			n.Step.String(),
			string(n.Severity),
			string(n.Status),
			n.Description,
			n.DiscoveredBy,
			formatTime(&n.DiscoveredAt),
			n.RootCause,
			n.ImmediateAction,
			n.PreventiveAction,
			n.AssignedTo,
			formatDate(n.TargetDate),
			formatTime(n.ActualResolutionDate),
		})
	}
	return rows
}

func coatingRows(records []*storage.OutsourcedCoatingRecord) [][]any {
	rows := make([][]any, 0, len(records))
	for _, c := range records {
		rows = append(rows, []any{
			c.SupplierID,
			formatTime(&c.SentAt),
			formatDate(&c.ExpectedReturnAt),
			formatTime(c.ActualReturnAt),
			string(c.Status),
			c.SentBy,
			c.ReturnedBy,
			c.Notes,
		})
	}
	return rows
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
