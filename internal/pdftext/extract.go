package pdftext

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"ankigen/internal/models"
)

// Extract reads the text layer of every page of a PDF. Pages that fail to
// decode are kept as empty records so page numbering stays aligned with the
// document; only file-level failures abort.
func Extract(path string) (*models.SourceDocument, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	total := r.NumPage()
	if total == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	doc := &models.SourceDocument{
		Path:      path,
		Name:      filepath.Base(path),
		PageCount: total,
	}
	for num := 1; num <= total; num++ {
		page := r.Page(num)
		text := ""
		if !page.V.IsNull() {
			if extracted, err := page.GetPlainText(nil); err == nil {
				text = strings.TrimSpace(extracted)
			} else {
				fmt.Fprintf(os.Stderr, "pdf %s: page %d text extraction failed: %v\n", doc.Name, num, err)
			}
		}
		doc.Pages = append(doc.Pages, models.Page{Number: num, Text: text})
		doc.CharCount += len(text)
	}
	return doc, nil
}
