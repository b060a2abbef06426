// Package export renders sensor readings as CSV or XLSX downloads.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/apperr"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
)

// Format is a download format
type Format string

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

// ParseFormat accepts csv or xlsx, defaulting to csv
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", CSV:
		return CSV, nil
	case XLSX:
		return XLSX, nil
	}
	return "", apperr.Validation("format must be csv or xlsx")
}

// ContentType returns the MIME type of f
func (f Format) ContentType() string {
	if f == XLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Filename builds the attachment name for a device export
func Filename(deviceID string, f Format, at time.Time) string {
	return fmt.Sprintf("%s-readings-%s.%s", deviceID, at.UTC().Format("20060102-150405"), f)
}

// Header is the column order of every export
var Header = []string{
	"Timestamp",
	"Data ID",
	"Device ID",
	"pH",
	"EC (mS/cm)",
	"TDS (ppt)",
	"Water Temp (°C)",
	"Air Temp (°C)",
	"Humidity (%)",
	"Light (lux)",
	"Quality",
	"Source",
}

func row(r *models.SensorReading) []string {
	humidity := ""
	if r.AirHumidity != nil {
		humidity = formatFloat(*r.AirHumidity)
	}
	return []string{
		r.CreatedAt.UTC().Format(time.RFC3339),
		r.DataID,
		r.DeviceID,
		formatFloat(r.PHValue),
		formatFloat(r.ECValue),
		formatFloat(r.TDSValue),
		formatFloat(r.WaterTemperatureC),
		formatFloat(r.AirTemperatureC),
		humidity,
		formatFloat(r.LightIntensity),
		string(r.QualityFlag),
		r.Source,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Write renders readings in format f to w
func Write(w io.Writer, f Format, readings []models.SensorReading) error {
	switch f {
	case XLSX:
		return WriteXLSX(w, readings)
	default:
		return WriteCSV(w, readings)
	}
}

// WriteCSV writes readings as CSV with a header row
func WriteCSV(w io.Writer, readings []models.SensorReading) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i := range readings {
		if err := cw.Write(row(&readings[i])); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

const sheetName = "Readings"

// WriteXLSX writes readings as a single-sheet workbook
func WriteXLSX(w io.Writer, readings []models.SensorReading) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to remove default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2F0D9"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(Header), 1)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}
	if err := f.SetColWidth(sheetName, "A", "C", 24); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}

	for i := range readings {
		r := &readings[i]
		values := []interface{}{
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.DataID,
			r.DeviceID,
			r.PHValue,
			r.ECValue,
			r.TDSValue,
			r.WaterTemperatureC,
			r.AirTemperatureC,
			nil,
			r.LightIntensity,
			string(r.QualityFlag),
			r.Source,
		}
		if r.AirHumidity != nil {
			values[8] = *r.AirHumidity
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return fmt.Errorf("failed to render workbook: %w", err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}
