package printer

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"
)

// LabelConfig holds the sheet layout for label printing
type LabelConfig struct {
	Cols       int     `json:"cols"`
	Rows       int     `json:"rows"`
	MarginTop  float64 `json:"marginTop"`
	MarginLeft float64 `json:"marginLeft"`
	GapX       float64 `json:"gapX"`
	GapY       float64 `json:"gapY"`
}

// DefaultLabelConfig is a 3x7 A4 sheet
func DefaultLabelConfig() LabelConfig {
	return LabelConfig{Cols: 3, Rows: 7, MarginTop: 10, MarginLeft: 8, GapX: 2, GapY: 2}
}

// SingleLabelConfig lays one large label on the page
func SingleLabelConfig() LabelConfig {
	return LabelConfig{Cols: 1, Rows: 2, MarginTop: 20, MarginLeft: 40}
}

// withDefaults fills unset grid dimensions
func (c LabelConfig) withDefaults() LabelConfig {
	def := DefaultLabelConfig()
	if c.Cols <= 0 {
		c.Cols = def.Cols
	}
	if c.Rows <= 0 {
		c.Rows = def.Rows
	}
	return c
}

// DeviceLabel is the text printed on one sticker
type DeviceLabel struct {
	DeviceID   string
	DeviceName string
	FarmName   string
	// QRContent is encoded in the code, usually the provisioning URL
	QRContent string
}

// ProvisioningURL is what a phone opens after scanning a device label
func ProvisioningURL(publicURL, deviceID string) string {
	return fmt.Sprintf("%s/devices/%s", strings.TrimRight(publicURL, "/"), url.PathEscape(deviceID))
}

// QRCodePNG encodes content as a PNG QR code of size pixels
func QRCodePNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(content, qrcode.Medium, size)
}

// GenerateLabelsPDF creates an A4 PDF with one QR label per device
func GenerateLabelsPDF(cfg LabelConfig, labels []DeviceLabel) ([]byte, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("no labels to print")
	}
	cfg = cfg.withDefaults()

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetFont("Arial", "B", 10)

	pageWidth, pageHeight := 210.0, 297.0

	totalGapX := float64(cfg.Cols-1) * cfg.GapX
	totalGapY := float64(cfg.Rows-1) * cfg.GapY
	availW := pageWidth - (cfg.MarginLeft * 2)
	availH := pageHeight - (cfg.MarginTop * 2)
	labelW := (availW - totalGapX) / float64(cfg.Cols)
	labelH := (availH - totalGapY) / float64(cfg.Rows)

	labelsPerPage := cfg.Cols * cfg.Rows
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for i, label := range labels {
		if i%labelsPerPage == 0 {
			pdf.AddPage()
		}

		indexOnPage := i % labelsPerPage
		col := indexOnPage % cfg.Cols
		row := indexOnPage / cfg.Cols

		// Top-left of the label
		x := cfg.MarginLeft + float64(col)*(labelW+cfg.GapX)
		y := cfg.MarginTop + float64(row)*(labelH+cfg.GapY)

		content := label.QRContent
		if content == "" {
			content = label.DeviceID
		}
		qrPng, err := QRCodePNG(content, 256)
		if err != nil {
			return nil, fmt.Errorf("encode qr for %s: %w", label.DeviceID, err)
		}

		imgName := fmt.Sprintf("qr_%d", i)
		imgOptions := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
		pdf.RegisterImageOptionsReader(imgName, imgOptions, bytes.NewReader(qrPng))

		// QR takes 60% of the label height, leaving room for two text lines
		qrSize := labelH * 0.6
		if qrSize > labelW {
			qrSize = labelW * 0.9
		}
		qrX := x + (labelW-qrSize)/2
		qrY := y + 2

		pdf.ImageOptions(imgName, qrX, qrY, qrSize, qrSize, false, imgOptions, 0, "")

		pdf.SetXY(x, qrY+qrSize+1)
		pdf.SetFontSize(8)
		pdf.CellFormat(labelW, 4, label.DeviceID, "", 2, "C", false, 0, "")

		pdf.SetFont("Arial", "", 7)
		pdf.CellFormat(labelW, 4, tr(label.DeviceName), "", 2, "C", false, 0, "")
		if label.FarmName != "" {
			pdf.SetFontSize(6)
			pdf.CellFormat(labelW, 3, tr(label.FarmName), "", 0, "C", false, 0, "")
		}
		pdf.SetFont("Arial", "B", 10)
	}

	if err := pdf.Error(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
