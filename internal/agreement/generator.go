package agreement

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"endless-wallet/lending-backend/internal/loan"
)

// Data carries everything the agreement document states about a loan.
type Data struct {
	Loan         *loan.Loan
	Schedule     []loan.ScheduledPayment
	BorrowerName string
	OwnerName    string
	CosignerName string
	GoverningLaw string
}

// Generator renders loan agreements as PDF documents.
type Generator struct {
	fontFamily string
	fontSize   float64
}

func NewGenerator() *Generator {
	return &Generator{
		fontFamily: "Arial",
		fontSize:   10,
	}
}

// Generate renders the agreement for a loan and returns the PDF bytes.
func (g *Generator) Generate(data *Data) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(g.fontFamily, "", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	g.addTitle(pdf, data)
	g.addParties(pdf, data)
	g.addTerms(pdf, data)
	g.addScheduleTable(pdf, data)
	g.addSignatures(pdf, data)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render agreement: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *Generator) addTitle(pdf *gofpdf.Fpdf, data *Data) {
	pdf.SetFont(g.fontFamily, "B", 16)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 10, "Loan Agreement", "", 1, "C", false, 0, "")

	pdf.SetFont(g.fontFamily, "", 9)
	pdf.SetTextColor(128, 128, 128)
	pdf.CellFormat(0, 6, fmt.Sprintf("Reference %s", data.Loan.ID), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated %s", time.Now().Format("2006-01-02")), "", 1, "C", false, 0, "")
	pdf.Ln(6)
}

func (g *Generator) addParties(pdf *gofpdf.Fpdf, data *Data) {
	g.sectionTitle(pdf, "Parties")

	g.keyValue(pdf, "Borrower", data.BorrowerName)
	g.keyValue(pdf, "Lender of record", data.OwnerName)
	if data.CosignerName != "" {
		g.keyValue(pdf, "Cosigner", data.CosignerName)
	}
	pdf.Ln(4)
}

func (g *Generator) addTerms(pdf *gofpdf.Fpdf, data *Data) {
	l := data.Loan

	g.sectionTitle(pdf, "Terms")

	g.keyValue(pdf, "Principal", fmt.Sprintf("%.2f %s", l.Principal, l.Currency))
	g.keyValue(pdf, "Annual percentage rate", fmt.Sprintf("%.3f%%", l.APR))
	g.keyValue(pdf, "Term", fmt.Sprintf("%d months", l.TermMonths))
	g.keyValue(pdf, "Repayment schedule", l.ScheduleKind)
	if l.Purpose != "" {
		g.keyValue(pdf, "Purpose", l.Purpose)
	}
	g.keyValue(pdf, "Effective date", l.StartedAt.Format("2006-01-02"))

	law := data.GoverningLaw
	if law == "" {
		law = l.GoverningLaw
	}
	if law != "" {
		g.keyValue(pdf, "Governing law", law)
	}
	pdf.Ln(4)
}

func (g *Generator) addScheduleTable(pdf *gofpdf.Fpdf, data *Data) {
	g.sectionTitle(pdf, "Repayment Schedule")

	widths := []float64{20, 50, 50, 30}
	labels := []string{"#", "Due Date", "Amount", "Status"}

	pdf.SetFont(g.fontFamily, "B", 11)
	pdf.SetFillColor(68, 114, 196)
	pdf.SetTextColor(255, 255, 255)
	for i, label := range labels {
		pdf.CellFormat(widths[i], 8, label, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(g.fontFamily, "", g.fontSize)
	pdf.SetTextColor(0, 0, 0)
	for i, p := range data.Schedule {
		if i%2 == 1 {
			pdf.SetFillColor(242, 242, 242)
		} else {
			pdf.SetFillColor(255, 255, 255)
		}

		status := "Due"
		if p.Paid {
			status = "Paid"
		}

		pdf.CellFormat(widths[0], 7, fmt.Sprintf("%d", p.Sequence), "1", 0, "C", true, 0, "")
		pdf.CellFormat(widths[1], 7, p.DueDate.Format("2006-01-02"), "1", 0, "L", true, 0, "")
		pdf.CellFormat(widths[2], 7, fmt.Sprintf("%.2f %s", p.Amount, data.Loan.Currency), "1", 0, "R", true, 0, "")
		pdf.CellFormat(widths[3], 7, status, "1", 0, "C", true, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(6)
}

func (g *Generator) addSignatures(pdf *gofpdf.Fpdf, data *Data) {
	g.sectionTitle(pdf, "Signatures")

	pdf.SetFont(g.fontFamily, "", g.fontSize)
	pdf.Ln(10)
	pdf.CellFormat(80, 6, "_________________________", "", 0, "L", false, 0, "")
	pdf.CellFormat(80, 6, "_________________________", "", 1, "L", false, 0, "")
	pdf.CellFormat(80, 6, data.BorrowerName, "", 0, "L", false, 0, "")
	pdf.CellFormat(80, 6, data.OwnerName, "", 1, "L", false, 0, "")
	pdf.SetTextColor(128, 128, 128)
	pdf.CellFormat(80, 5, "Borrower", "", 0, "L", false, 0, "")
	pdf.CellFormat(80, 5, "Lender of record", "", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
}

func (g *Generator) sectionTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont(g.fontFamily, "B", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
	pdf.Ln(2)
	pdf.SetFont(g.fontFamily, "", g.fontSize)
}

func (g *Generator) keyValue(pdf *gofpdf.Fpdf, key, value string) {
	pdf.SetFont(g.fontFamily, "B", g.fontSize)
	pdf.CellFormat(60, 6, key+":", "", 0, "L", false, 0, "")
	pdf.SetFont(g.fontFamily, "", g.fontSize)
	pdf.CellFormat(0, 6, value, "", 1, "L", false, 0, "")
}
