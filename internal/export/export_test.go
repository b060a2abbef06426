package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/apperr"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/models"
)

func sampleReadings() []models.SensorReading {
	humidity := 62.5
	at := time.Date(2026, 2, 14, 6, 30, 0, 0, time.UTC)
	return []models.SensorReading{
		{
			DataID: "d-1", DeviceID: "GREENPULSE-V1-00001",
			PHValue: 6.8, ECValue: 1.6, TDSValue: 1.02,
			WaterTemperatureC: 24, AirTemperatureC: 27.5, LightIntensity: 4800,
			QualityFlag: models.QualityValid, Source: models.SourceHTTP, CreatedAt: at,
		},
		{
			DataID: "d-2", DeviceID: "GREENPULSE-V1-00001",
			PHValue: 5.1, ECValue: 1.2, TDSValue: 0.77, AirHumidity: &humidity,
			WaterTemperatureC: 23, AirTemperatureC: 26, LightIntensity: 3900,
			QualityFlag: models.QualitySuspect, Source: models.SourceMQTT, CreatedAt: at.Add(5 * time.Minute),
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleReadings()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, Header, records[0])
	assert.Equal(t, []string{
		"2026-02-14T06:30:00Z", "d-1", "GREENPULSE-V1-00001",
		"6.8", "1.6", "1.02", "24", "27.5", "", "4800", "valid", "http",
	}, records[1])
	assert.Equal(t, "62.5", records[2][8])
	assert.Equal(t, "suspect", records[2][10])
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, XLSX, sampleReadings()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetName}, f.GetSheetList())
	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, "d-2", rows[2][1])
	assert.Equal(t, "5.1", rows[2][3])
	assert.Equal(t, "62.5", rows[2][8])

	cell, err := f.GetCellValue(sheetName, "I2")
	require.NoError(t, err)
	assert.Empty(t, cell, "missing humidity stays blank")
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, CSV, f)

	f, err = ParseFormat("XLSX")
	require.NoError(t, err)
	assert.Equal(t, XLSX, f)
	assert.Contains(t, f.ContentType(), "spreadsheetml")

	_, err = ParseFormat("pdf")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestFilename(t *testing.T) {
	at := time.Date(2026, 2, 14, 6, 30, 5, 0, time.UTC)
	assert.Equal(t, "DEV-1-readings-20260214-063005.csv", Filename("DEV-1", CSV, at))
}
