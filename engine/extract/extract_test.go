package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/clauseai/clause-engine/engine/domain"
)

type fakeParser struct {
	// first result is returned for the original path, second for the OCR
	// output.
	results []Result
	errs    []error
	calls   int
}

func (f *fakeParser) Parse(string) (Result, error) {
	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return f.results[i], err
}

type fakeOCR struct {
	err   error
	calls int
}

func (f *fakeOCR) Run(context.Context, string, string) error {
	f.calls++
	return f.err
}

func TestProcess_NoOCRForTextPDF(t *testing.T) {
	longText := strings.Repeat("clause text. ", 200)
	parser := &fakeParser{results: []Result{{Text: longText, ImageCount: 0}}}
	ocr := &fakeOCR{}
	svc := New(parser, ocr, nil)

	doc, err := svc.Process(context.Background(), "/tmp/contract.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ocr.calls != 0 {
		t.Fatal("text PDF must not be OCRed")
	}
	if doc.OCRUsed {
		t.Error("OCRUsed must be false")
	}
	if !strings.HasPrefix(doc.ID, "contract_") {
		t.Errorf("document id should derive from the file name: %s", doc.ID)
	}
	if doc.Name != "contract.pdf" {
		t.Errorf("wrong name: %s", doc.Name)
	}
	if !strings.Contains(doc.Text, longText) || !strings.Contains(doc.Text, "# Metadata") {
		t.Error("text must carry the extraction and metadata sections")
	}
}

func TestProcess_ImagesWithLittleTextTriggersOCR(t *testing.T) {
	parser := &fakeParser{results: []Result{
		{Text: "", ImageCount: 3},
		{Text: "Recovered scanned text that is long enough to matter."},
	}}
	ocr := &fakeOCR{}
	svc := New(parser, ocr, nil)

	doc, err := svc.Process(context.Background(), "/tmp/scan.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ocr.calls != 1 {
		t.Fatalf("expected one OCR run, got %d", ocr.calls)
	}
	if !doc.OCRUsed {
		t.Error("OCRUsed must be set")
	}
	if !strings.Contains(doc.Text, "Recovered scanned text") {
		t.Error("OCR output must replace the original text")
	}
}

func TestProcess_ImagesWithEnoughTextSkipsOCR(t *testing.T) {
	parser := &fakeParser{results: []Result{
		{Text: strings.Repeat("x", OCRTextThreshold), ImageCount: 5},
	}}
	ocr := &fakeOCR{}
	svc := New(parser, ocr, nil)

	doc, err := svc.Process(context.Background(), "/tmp/mixed.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ocr.calls != 0 || doc.OCRUsed {
		t.Error("a PDF at the text threshold must not be OCRed")
	}
}

func TestProcess_EmptyAfterOCR(t *testing.T) {
	parser := &fakeParser{results: []Result{
		{Text: "", ImageCount: 1},
		{Text: ""},
	}}
	svc := New(parser, &fakeOCR{}, nil)

	_, err := svc.Process(context.Background(), "/tmp/blank.pdf")
	if !errors.Is(err, domain.ErrExtractionFailed) {
		t.Fatalf("got %v, want ErrExtractionFailed", err)
	}
}

func TestProcess_OCRFailure(t *testing.T) {
	parser := &fakeParser{results: []Result{{Text: "", ImageCount: 1}}}
	svc := New(parser, &fakeOCR{err: errors.New("ocrmypdf not installed")}, nil)

	_, err := svc.Process(context.Background(), "/tmp/scan.pdf")
	if !errors.Is(err, domain.ErrExtractionFailed) {
		t.Fatalf("got %v, want ErrExtractionFailed", err)
	}
}

func TestProcess_NoRunnerNoFallback(t *testing.T) {
	parser := &fakeParser{results: []Result{{Text: "", ImageCount: 2}}}
	svc := New(parser, nil, nil)

	_, err := svc.Process(context.Background(), "/tmp/scan.pdf")
	if !errors.Is(err, domain.ErrExtractionFailed) {
		t.Fatalf("got %v, want ErrExtractionFailed", err)
	}
}

func TestMetadataSection(t *testing.T) {
	got := withMetadataSection("body", Metadata{Author: "ACME Legal", Title: "MSA"})
	for _, want := range []string{"- **Author**: ACME Legal", "- **Title**: MSA", "- **Producer**: N/A"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
}
