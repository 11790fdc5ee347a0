package extract

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Metadata is the PDF info dictionary subset carried into the registry.
type Metadata struct {
	Author   string `json:"author,omitempty"`
	Creator  string `json:"creator,omitempty"`
	Producer string `json:"producer,omitempty"`
	Subject  string `json:"subject,omitempty"`
	Title    string `json:"title,omitempty"`
}

// Result is a parsed PDF: page-joined text, the number of embedded images,
// and the info-dictionary metadata.
type Result struct {
	Text       string
	ImageCount int
	Metadata   Metadata
}

// PDFParser reads PDFs from disk.
type PDFParser struct{}

// Parse extracts per-page plain text (pages joined under "### Page N"
// headings), counts image XObjects across all pages, and reads the info
// dictionary. Pages with no text are skipped; a scanned PDF therefore yields
// empty text and a positive image count.
func (PDFParser) Parse(path string) (Result, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("extract: open %s: %w", path, err)
	}
	defer f.Close()

	var b strings.Builder
	images := 0
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		images += countImages(page)

		text, err := page.GetPlainText(nil)
		if err != nil {
			return Result{}, fmt.Errorf("extract: page %d of %s: %w", i, path, err)
		}
		if len(text) > 0 {
			fmt.Fprintf(&b, "### Page %d\n\n%s\n\n", i, text)
		}
	}

	return Result{
		Text:       strings.TrimSpace(b.String()),
		ImageCount: images,
		Metadata:   readMetadata(r),
	}, nil
}

// countImages counts image XObjects in the page's resource dictionary.
func countImages(page pdf.Page) int {
	xobjects := page.V.Key("Resources").Key("XObject")
	if xobjects.IsNull() {
		return 0
	}
	n := 0
	for _, name := range xobjects.Keys() {
		if xobjects.Key(name).Key("Subtype").Name() == "Image" {
			n++
		}
	}
	return n
}

func readMetadata(r *pdf.Reader) Metadata {
	info := r.Trailer().Key("Info")
	if info.IsNull() {
		return Metadata{}
	}
	return Metadata{
		Author:   info.Key("Author").Text(),
		Creator:  info.Key("Creator").Text(),
		Producer: info.Key("Producer").Text(),
		Subject:  info.Key("Subject").Text(),
		Title:    info.Key("Title").Text(),
	}
}
