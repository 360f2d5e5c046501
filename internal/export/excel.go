package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"parkpass/internal/database"
	"parkpass/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const occupancySheet = "Occupancy"

// ExcelBuilder renders occupancy reports for lot admins as xlsx files.
type ExcelBuilder struct {
	db     *database.DB
	dir    string
	logger *zerolog.Logger
}

func NewExcelBuilder(db *database.DB, dir string, logger *zerolog.Logger) *ExcelBuilder {
	return &ExcelBuilder{db: db, dir: dir, logger: logger}
}

// BuildOccupancyReport writes a slots-by-days occupancy grid for the lot and
// returns the file path. Each cell lists the bookings touching that day.
func (e *ExcelBuilder) BuildOccupancyReport(ctx context.Context, lotID int64, from, to time.Time) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	lot, err := e.db.GetLot(ctx, lotID)
	if err != nil {
		return "", fmt.Errorf("get lot: %w", err)
	}
	slots, err := e.db.LotSlots(ctx, lotID)
	if err != nil {
		return "", fmt.Errorf("get lot slots: %w", err)
	}
	bookings, err := e.db.GetLotBookings(ctx, lotID, from, to)
	if err != nil {
		return "", fmt.Errorf("get lot bookings: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(occupancySheet)
	if err != nil {
		return "", fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(occupancySheet, "A1", fmt.Sprintf("%s: %s - %s",
		lot.Name, from.Format("2006-01-02"), to.Format("2006-01-02")))

	dateCols := e.writeDateHeaders(f, from, to)
	e.writeSlotHeaders(f, slots)
	e.writeCells(f, slots, bookings, dateCols)

	_ = f.SetColWidth(occupancySheet, "A", "A", 25)
	last, _ := excelize.ColumnNumberToName(len(dateCols) + 1)
	_ = f.SetColWidth(occupancySheet, "B", last, 22)
	_ = f.MergeCell(occupancySheet, "A1", last+"1")

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(occupancySheet, "A1", "A1", titleStyle)
	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("occupancy_%d_%s_to_%s.xlsx",
		lotID, from.Format("2006-01-02"), to.Format("2006-01-02"))
	filePath := filepath.Join(e.dir, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Int64("lot_id", lotID).Msg("occupancy report created")
	return filePath, nil
}

func (e *ExcelBuilder) writeDateHeaders(f *excelize.File, from, to time.Time) map[string]int {
	col := 2
	day := from.UTC().Truncate(24 * time.Hour)
	end := to.UTC().Truncate(24 * time.Hour)
	cols := make(map[string]int)

	headStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	for !day.After(end) {
		cell, _ := excelize.CoordinatesToCellName(col, 2)
		_ = f.SetCellValue(occupancySheet, cell, day.Format("Jan 02"))
		_ = f.SetCellStyle(occupancySheet, cell, cell, headStyle)
		cols[day.Format("2006-01-02")] = col
		col++
		day = day.AddDate(0, 0, 1)
	}
	return cols
}

func (e *ExcelBuilder) writeSlotHeaders(f *excelize.File, slots []*models.Slot) {
	style, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, slot := range slots {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		label := fmt.Sprintf("%s [%s]", slot.Label, slot.VehicleClass)
		if !slot.IsActive {
			label += " (inactive)"
		}
		_ = f.SetCellValue(occupancySheet, cell, label)
		_ = f.SetCellStyle(occupancySheet, cell, cell, style)
	}
}

func (e *ExcelBuilder) writeCells(f *excelize.File, slots []*models.Slot, bookings []*models.Booking, dateCols map[string]int) {
	bySlot := make(map[int64][]*models.Booking)
	for _, b := range bookings {
		bySlot[b.SlotID] = append(bySlot[b.SlotID], b)
	}

	freeStyle, _ := f.NewStyle(cellStyle("#FFFFFF"))
	busyStyle, _ := f.NewStyle(cellStyle("#FFC7CE"))
	doneStyle, _ := f.NewStyle(cellStyle("#C6EFCE"))

	for i, slot := range slots {
		row := i + 3
		for dateKey, col := range dateCols {
			dayStart, err := time.Parse("2006-01-02", dateKey)
			if err != nil {
				continue
			}
			dayEnd := dayStart.AddDate(0, 0, 1)

			var cellValue string
			var hasActive, hasCompleted bool
			for _, b := range bySlot[slot.ID] {
				if b.Status == models.BookingCancelled {
					continue
				}
				if !models.Overlaps(b.StartTime, b.EndTime, dayStart, dayEnd) {
					continue
				}
				cellValue += fmt.Sprintf("#%d user %d %s-%s (%s)\n",
					b.ID, b.UserID,
					b.StartTime.Format("15:04"), b.EndTime.Format("15:04"), b.Status)
				if b.Status == models.BookingCompleted {
					hasCompleted = true
				} else {
					hasActive = true
				}
			}

			cell, _ := excelize.CoordinatesToCellName(col, row)
			style := freeStyle
			switch {
			case hasActive:
				cellValue += "occupied"
				style = busyStyle
			case hasCompleted:
				style = doneStyle
			default:
				cellValue = "free"
			}
			_ = f.SetCellValue(occupancySheet, cell, cellValue)
			_ = f.SetCellStyle(occupancySheet, cell, cell, style)
		}
	}
}

func cellStyle(color string) *excelize.Style {
	return &excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "left",
			Vertical:   "top",
			WrapText:   true,
		},
	}
}
