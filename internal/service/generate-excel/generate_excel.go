package generate_excel

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"printfarm/internal/storage"
)

type GenerateExcelStorage interface {
	GetCycles(ctx context.Context) ([]storage.PlannedCycle, error)
	GetPrinters(ctx context.Context) ([]storage.Printer, error)
	GetProjects(ctx context.Context) ([]storage.Project, error)
}

// ScheduleFilter bounds the export. Zero times are open ends.
type ScheduleFilter struct {
	From      time.Time
	To        time.Time
	PrinterID string
	Location  *time.Location
}

type GenerateExcelService struct {
	storage GenerateExcelStorage
}

func NewGenerateService(storage GenerateExcelStorage) *GenerateExcelService {
	return &GenerateExcelService{storage: storage}
}

var scheduleHeaders = []string{"Start", "End", "Hours", "Project", "Units", "Plate", "Color", "Material", "Grams", "Status", "Readiness", "Notes"}

// GenerateSchedule writes one sheet per printer listing its cycles in start order.
func (g *GenerateExcelService) GenerateSchedule(ctx context.Context, filter ScheduleFilter) ([]byte, error) {
	const op = "generate_excel.GenerateSchedule"

	cycles, err := g.storage.GetCycles(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch cycles: %w", op, err)
	}
	printers, err := g.storage.GetPrinters(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch printers: %w", op, err)
	}
	projects, err := g.storage.GetProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch projects: %w", op, err)
	}

	loc := filter.Location
	if loc == nil {
		loc = time.Local
	}

	byPrinter := map[string][]storage.PlannedCycle{}
	for _, c := range cycles {
		if c.Status == storage.CycleCancelled {
			continue
		}
		if !filter.From.IsZero() && c.EndTime.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && c.StartTime.After(filter.To) {
			continue
		}
		byPrinter[c.PrinterID] = append(byPrinter[c.PrinterID], c)
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"E0E0E0"}, Pattern: 1},
		Border: []excelize.Border{{Type: "bottom", Color: "000000", Style: 2}},
	})
	blockedStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"F8D7DA"}, Pattern: 1},
	})

	names := map[string]bool{}
	first := true
	for _, p := range printers {
		if filter.PrinterID != "" && p.ID != filter.PrinterID {
			continue
		}
		if p.Status == storage.PrinterArchived && len(byPrinter[p.ID]) == 0 {
			continue
		}

		sheet := sheetName(p, names)
		if first {
			f.SetSheetName("Sheet1", sheet)
			first = false
		} else if _, err := f.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("%s: new sheet: %w", op, err)
		}

		for i, name := range scheduleHeaders {
			f.SetCellValue(sheet, cellName(i+1, 1), name)
		}
		f.SetCellStyle(sheet, "A1", cellName(len(scheduleHeaders), 1), headerStyle)

		rows := byPrinter[p.ID]
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].StartTime.Before(rows[j].StartTime) })

		for i, c := range rows {
			row := i + 2
			projectName := c.ProjectID
			if pr := storage.ProjectByID(projects, c.ProjectID); pr != nil && pr.Name != "" {
				projectName = pr.Name
			}

			f.SetCellValue(sheet, cellName(1, row), c.StartTime.In(loc).Format("2006-01-02 15:04"))
			f.SetCellValue(sheet, cellName(2, row), c.EndTime.In(loc).Format("2006-01-02 15:04"))
			f.SetCellValue(sheet, cellName(3, row), roundHours(c.Duration()))
			f.SetCellValue(sheet, cellName(4, row), projectName)
			f.SetCellValue(sheet, cellName(5, row), c.UnitsPlanned)
			f.SetCellValue(sheet, cellName(6, row), string(c.PlateType))
			f.SetCellValue(sheet, cellName(7, row), c.RequiredColor)
			f.SetCellValue(sheet, cellName(8, row), c.RequiredMaterial)
			f.SetCellValue(sheet, cellName(9, row), c.GramsPlanned)
			f.SetCellValue(sheet, cellName(10, row), string(c.Status))
			f.SetCellValue(sheet, cellName(11, row), string(c.ReadinessState))
			f.SetCellValue(sheet, cellName(12, row), c.ReadinessDetails)

			if c.Status == storage.CyclePlanned && c.ReadinessState == storage.BlockedInventory {
				f.SetCellStyle(sheet, cellName(1, row), cellName(len(scheduleHeaders), row), blockedStyle)
			}
		}

		f.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
		})
		f.SetColWidth(sheet, "A", "B", 18)
		f.SetColWidth(sheet, "D", "D", 24)
		f.SetColWidth(sheet, "K", "L", 22)
	}

	if first {
		// no printers: keep the default sheet with headers only
		for i, name := range scheduleHeaders {
			f.SetCellValue("Sheet1", cellName(i+1, 1), name)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return buf.Bytes(), nil
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

// sheetName makes a unique sheet title within Excel's 31 character limit.
func sheetName(p storage.Printer, used map[string]bool) string {
	base := p.Name
	if base == "" {
		base = p.ID
	}
	base = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '-'
		}
		return r
	}, base)
	if len([]rune(base)) > 28 {
		base = string([]rune(base)[:28])
	}

	name := base
	for i := 2; used[name]; i++ {
		name = fmt.Sprintf("%s %d", base, i)
	}
	used[name] = true
	return name
}

func roundHours(d time.Duration) float64 {
	return float64(d.Round(time.Minute)) / float64(time.Hour)
}
