// Package document renders sanction letters to PDF and serves them back for
// download.
package document

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"

	"github.com/bibbank/origination/internal/domain/apperr"
	"github.com/bibbank/origination/internal/domain/model"
	"github.com/bibbank/origination/internal/domain/service"
	"github.com/bibbank/origination/pkg/money"
)

const (
	lenderName    = "TATA CAPITAL"
	lenderSubline = "Financial Services Limited"
	refPrefix     = "file://"
)

// PDFRenderer writes sanction letters as PDF files under dir. It implements
// port.DocumentRenderer.
type PDFRenderer struct {
	dir string
}

// NewPDFRenderer creates dir if needed and returns a renderer writing into it.
func NewPDFRenderer(dir string) (*PDFRenderer, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create render dir: %w", err)
	}
	return &PDFRenderer{dir: dir}, nil
}

// Render produces the letter and returns its document reference.
func (r *PDFRenderer) Render(ctx context.Context, letter model.SanctionLetter) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: render %s: %w", apperr.ErrExternalService, letter.SanctionID, err)
	}

	var buf bytes.Buffer
	if err := writeLetter(&buf, letter); err != nil {
		return "", fmt.Errorf("%w: render %s: %w", apperr.ErrExternalService, letter.SanctionID, err)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: render %s: %w", apperr.ErrExternalService, letter.SanctionID, err)
	}

	name := letter.SanctionID + ".pdf"
	tmp := filepath.Join(r.dir, name+".tmp")
	if err := os.WriteFile(tmp, buf.Bytes(), 0o640); err != nil {
		return "", fmt.Errorf("%w: write %s: %w", apperr.ErrExternalService, name, err)
	}
	if err := os.Rename(tmp, filepath.Join(r.dir, name)); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("%w: store %s: %w", apperr.ErrExternalService, name, err)
	}
	return refPrefix + name, nil
}

func writeLetter(w *bytes.Buffer, l model.SanctionLetter) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Loan Sanction Letter "+l.SanctionID, false)
	pdf.SetAuthor(lenderName, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 10, lenderName, "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 6, lenderSubline, "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "LOAN SANCTION LETTER", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, "Sanction ID: "+l.SanctionID, "", 1, "R", false, 0, "")
	pdf.CellFormat(0, 6, "Date: "+l.IssuedAt.Format("02 Jan 2006"), "", 1, "R", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 7, fmt.Sprintf("Dear %s,", l.CustomerName), "", 1, "L", false, 0, "")
	pdf.MultiCell(0, 6, "We are pleased to inform you that your personal loan application has been "+
		"approved on the following terms:", "", "L", false)
	pdf.Ln(3)

	t := l.Terms
	rows := [][2]string{
		{"Customer ID", l.CustomerID},
		{"Loan Amount", rupees(t.Amount)},
		{"Interest Rate", t.InterestRate.StringFixed(2) + "% p.a."},
		{"Tenure", fmt.Sprintf("%d months", t.TenureMonths)},
		{"Monthly EMI", rupees(t.EMI)},
		{"Total Amount Payable", rupees(t.TotalPayable())},
	}
	pdf.SetFillColor(240, 240, 240)
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(70, 8, row[0], "1", 0, "L", true, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 8, row[1], "1", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, "Terms and Conditions", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for i, term := range []string{
		"This sanction is valid for 30 days from the date of issue.",
		"A processing fee of 2% of the loan amount plus applicable taxes will be charged.",
		"Prepayment is allowed after 6 EMIs with a prepayment charge of 3%.",
		"Late payment attracts a penalty of 2% per month on the overdue amount.",
	} {
		pdf.MultiCell(0, 6, fmt.Sprintf("%d. %s", i+1, term), "", "L", false)
	}

	writeSchedule(pdf, l)

	pdf.Ln(8)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5, "This is a system generated letter and does not require a signature.", "", "C", false)

	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.Output(w)
}

func writeSchedule(pdf *fpdf.Fpdf, l model.SanctionLetter) {
	schedule := service.RepaymentSchedule(l.Terms.Amount, l.Terms.InterestRate, l.Terms.TenureMonths, l.IssuedAt)
	if len(schedule) == 0 {
		return
	}
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, "Indicative Repayment Schedule", "", 1, "L", false, 0, "")

	widths := []float64{15, 35, 35, 35, 35, 35}
	pdf.SetFont("Helvetica", "B", 9)
	for i, h := range []string{"#", "Due Date", "Principal", "Interest", "Instalment", "Balance"} {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, in := range schedule {
		cells := []string{
			fmt.Sprintf("%d", in.Period),
			in.DueDate.Format("02 Jan 2006"),
			group2(in.Principal),
			group2(in.Interest),
			group2(in.Total),
			group2(in.RemainingBalance),
		}
		for i, c := range cells {
			align := "R"
			if i < 2 {
				align = "C"
			}
			pdf.CellFormat(widths[i], 6, c, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
}

// rupees formats an amount for the core PDF fonts, which lack the rupee sign.
func rupees(d decimal.Decimal) string {
	return "Rs. " + money.Group(d)
}

func group2(d decimal.Decimal) string {
	d = d.Round(2)
	whole := d.Truncate(0)
	frac := strings.TrimPrefix(d.Sub(whole).Abs().StringFixed(2), "0")
	return money.Group(whole) + frac
}
