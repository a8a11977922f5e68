package report

import (
	"io"

	"github.com/go-pdf/fpdf"
)

const (
	pdfMargin = 15.0
	pdfLineH  = 5.0
	pdfFont   = "Helvetica"
)

// WritePDF renders the print form of the acta on Letter paper.
func WritePDF(w io.Writer, a Acta) error {
	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(a.Number, true)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 2*pdfMargin

	// header
	pdf.SetFont(pdfFont, "B", 13)
	pdf.CellFormat(contentW, 7, tr(a.Institution), "", 1, "C", false, 0, "")
	pdf.SetFont(pdfFont, "", 11)
	pdf.CellFormat(contentW, 6, tr(a.Title), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	// metadata
	labelW := 50.0
	for _, f := range a.Meta {
		pdf.SetFont(pdfFont, "B", 9)
		pdf.CellFormat(labelW, pdfLineH, tr(f.Label+":"), "", 0, "L", false, 0, "")
		pdf.SetFont(pdfFont, "", 9)
		pdf.MultiCell(contentW-labelW, pdfLineH, tr(f.Value), "", "L", false)
	}
	pdf.Ln(3)

	// behaviors
	sectionTitle(pdf, tr("Behaviors"), contentW)
	bw := []float64{contentW - 50, 25, 25}
	ba := []string{"L", "C", "C"}
	tableRow(pdf, tr, bw, ba, []string{"Behavior", "Weight", "Compliance"}, true)
	for _, r := range a.Behaviors {
		tableRow(pdf, tr, bw, ba, []string{r.Label, r.Weight, r.Compliance}, false)
	}
	pdf.Ln(3)

	// objectives
	sectionTitle(pdf, tr("Objectives"), contentW)
	ow := []float64{35, contentW - 35 - 45 - 40, 45, 18, 22}
	oa := []string{"L", "L", "L", "C", "C"}
	tableRow(pdf, tr, ow, oa, []string{"Axis", "Objective", "Indicator", "Weight", "Compliance"}, true)
	for _, r := range a.Objectives {
		tableRow(pdf, tr, ow, oa, []string{r.Axis, r.Label, r.Indicator, r.Weight, r.Compliance}, false)
	}
	pdf.Ln(3)

	// comments
	sectionTitle(pdf, tr("Comments"), contentW)
	for _, c := range a.Comments {
		pdf.SetFont(pdfFont, "B", 9)
		pdf.CellFormat(contentW, pdfLineH, tr(c.Label), "", 1, "L", false, 0, "")
		pdf.SetFont(pdfFont, "", 9)
		pdf.MultiCell(contentW, pdfLineH, tr(c.Value), "", "L", false)
		pdf.Ln(1)
	}

	signatures(pdf, tr, a.Signatures, contentW)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.Output(w)
}

func sectionTitle(pdf *fpdf.Fpdf, title string, width float64) {
	pdf.SetFont(pdfFont, "B", 10)
	pdf.CellFormat(width, 6, title, "", 1, "L", false, 0, "")
}

// tableRow draws one bordered row whose height fits the tallest cell. Rows
// never split across pages.
func tableRow(pdf *fpdf.Fpdf, tr func(string) string, widths []float64, aligns, cells []string, header bool) {
	style := ""
	if header {
		style = "B"
		pdf.SetFillColor(230, 230, 230)
	}
	pdf.SetFont(pdfFont, style, 8)

	lines := 1
	for i, c := range cells {
		if n := len(pdf.SplitText(tr(c), widths[i]-2)); n > lines {
			lines = n
		}
	}
	h := float64(lines)*4.5 + 1

	_, pageH := pdf.GetPageSize()
	if pdf.GetY()+h > pageH-pdfMargin {
		pdf.AddPage()
		pdf.SetFont(pdfFont, style, 8)
	}

	x, y := pdf.GetXY()
	for i, c := range cells {
		w := widths[i]
		if header {
			pdf.Rect(x, y, w, h, "FD")
		} else {
			pdf.Rect(x, y, w, h, "D")
		}
		pdf.SetXY(x+1, y+0.5)
		pdf.MultiCell(w-2, 4.5, tr(c), "", aligns[i], false)
		x += w
	}
	pdf.SetXY(pdfMargin, y+h)
}

func signatures(pdf *fpdf.Fpdf, tr func(string) string, sigs [2]Signature, contentW float64) {
	const blockH = 30.0
	_, pageH := pdf.GetPageSize()
	if pdf.GetY()+blockH > pageH-pdfMargin {
		pdf.AddPage()
	}
	pdf.Ln(18)
	colW := (contentW - 20) / 2
	y := pdf.GetY()
	for i, s := range sigs {
		x := pdfMargin + float64(i)*(colW+20)
		pdf.Line(x, y, x+colW, y)
		pdf.SetXY(x, y+1)
		pdf.SetFont(pdfFont, "B", 9)
		pdf.CellFormat(colW, pdfLineH, tr(s.Name), "", 2, "C", false, 0, "")
		pdf.SetFont(pdfFont, "", 9)
		for _, l := range s.Lines {
			pdf.CellFormat(colW, pdfLineH, tr(l), "", 2, "C", false, 0, "")
		}
	}
}
