package dmca

import (
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// noticePDF renders a takedown notice as a letter-style PDF.
type noticePDF struct {
	pdf *gofpdf.Fpdf
}

func newNoticePDF(title string) *noticePDF {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 25)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.SetTextColor(33, 37, 41)
	pdf.CellFormat(0, 12, title, "", 1, "C", false, 0, "")
	pdf.Ln(6)

	return &noticePDF{pdf: pdf}
}

// addClaimantBlock prints the rights holder details under the title.
func (n *noticePDF) addClaimantBlock(data noticeContext) {
	n.pdf.SetFont("Arial", "", 10)
	n.pdf.SetTextColor(108, 117, 125)

	lines := []string{
		fmt.Sprintf("%s, %s", data.ClaimantName, data.Company),
		data.ClaimantEmail,
		data.ClaimantAddress,
		data.ClaimantWebsite,
	}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" || line == ", " {
			continue
		}
		n.pdf.CellFormat(0, 5, line, "", 1, "C", false, 0, "")
	}
	n.pdf.Ln(8)
}

func (n *noticePDF) addBody(body string) {
	n.pdf.SetFont("Arial", "", 11)
	n.pdf.SetTextColor(33, 37, 41)
	for _, para := range strings.Split(body, "\n\n") {
		n.pdf.MultiCell(0, 6, para, "", "L", false)
		n.pdf.Ln(3)
	}
}

func (n *noticePDF) write(path string) error {
	if err := n.pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("writing PDF: %w", err)
	}
	return nil
}
