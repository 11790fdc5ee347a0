package extract

import (
	"context"
	"fmt"
	"os/exec"
)

// OCRMyPDF shells out to the ocrmypdf binary to add a text layer to a
// scanned PDF.
type OCRMyPDF struct {
	// Binary overrides the executable name. Empty means "ocrmypdf" on PATH.
	Binary string
}

// Run OCRs in into out, re-rendering even pages that already carry text so
// the output is uniform.
func (o OCRMyPDF) Run(ctx context.Context, in, out string) error {
	bin := o.Binary
	if bin == "" {
		bin = "ocrmypdf"
	}
	cmd := exec.CommandContext(ctx, bin, "--force-ocr", in, out)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("extract: ocrmypdf %s: %w: %s", in, err, output)
	}
	return nil
}
