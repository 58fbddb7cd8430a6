package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/people-extractor/constants"
	"github.com/joseph-ayodele/people-extractor/internal/common"
)

type fakeRunner struct {
	stdout, stderr string
	err            error
	name           string
	args           []string
	image          []byte
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.name, f.args = name, args
	if len(args) > 0 {
		f.image, _ = os.ReadFile(args[0])
	}
	return []byte(f.stdout), []byte(f.stderr), f.err
}

func TestExtractPlainText(t *testing.T) {
	r := NewRouter(Config{}, nil)
	in := "\ufeffJane Doe\r\nCTO,   Acme\r\n\r\n\r\n\r\nBob\t\tSmith  \n"

	res, err := r.Extract(context.Background(), []byte(in), constants.TXT)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe\nCTO, Acme\n\nBob Smith", res.Text)
	assert.Equal(t, "plain", res.Method)
	assert.Equal(t, constants.TXT, res.Kind)
	assert.Equal(t, 1, res.Pages)
}

func TestExtractEmptyInput(t *testing.T) {
	r := NewRouter(Config{}, nil)

	_, err := r.Extract(context.Background(), nil, constants.TXT)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrTextExtraction)

	// WHAT: whitespace-only text is not text
	// WHY: downstream analysis must never receive an empty document
	_, err = r.Extract(context.Background(), []byte(" \n\t \r\n"), constants.TXT)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrTextExtraction)
}

func TestExtractUnsupportedKind(t *testing.T) {
	r := NewRouter(Config{}, nil)
	_, err := r.Extract(context.Background(), []byte("x"), constants.UNKNOWN)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestExtractSpreadsheet(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Name", "Email", "Company"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"Jane Doe", "jane@x.com", "Acme"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A4", &[]any{"Bob", "", "  Globex "}))
	_, err := f.NewSheet("Board")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Board", "A1", &[]any{"Carol", 42}))
	_, err = f.NewSheet("Empty")
	require.NoError(t, err)
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	res, err := NewRouter(Config{}, nil).Extract(context.Background(), buf.Bytes(), constants.SPREADSHEET)
	require.NoError(t, err)
	assert.Equal(t, "Name, Email, Company\nJane Doe, jane@x.com, Acme\nBob, Globex\n\nCarol, 42", res.Text)
	assert.Equal(t, "xlsx", res.Method)
	assert.Equal(t, 2, res.Pages)
}

func TestExtractSpreadsheetCorrupt(t *testing.T) {
	_, err := NewRouter(Config{}, nil).Extract(context.Background(), []byte("not a zip"), constants.SPREADSHEET)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrTextExtraction)
}

func TestExtractImageOCR(t *testing.T) {
	run := &fakeRunner{stdout: "Jane Doe\n-----\njane@x.com\n"}
	r := NewRouter(Config{Tesseract: "/opt/tesseract", Lang: "deu", TessdataDir: "/td"}, nil).WithRunner(run)

	res, err := r.Extract(context.Background(), []byte("PNGDATA"), constants.IMAGE)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe\n\njane@x.com", res.Text)
	assert.Equal(t, "image-ocr", res.Method)

	assert.Equal(t, "/opt/tesseract", run.name)
	require.Len(t, run.args, 6)
	assert.Equal(t, []string{"stdout", "-l", "deu", "--tessdata-dir", "/td"}, run.args[1:])
	assert.Equal(t, []byte("PNGDATA"), run.image)

	// temp image is gone
	_, statErr := os.Stat(run.args[0])
	assert.True(t, os.IsNotExist(statErr))
}

func TestExtractImageOCRFailure(t *testing.T) {
	run := &fakeRunner{stderr: "Error opening data file eng.traineddata", err: errors.New("exit status 1")}
	r := NewRouter(Config{}, nil).WithRunner(run)

	res, err := r.Extract(context.Background(), []byte("PNGDATA"), constants.IMAGE)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrTextExtraction)
	assert.Equal(t, "tesseract", run.name)
	assert.Equal(t, []string{"stdout", "-l", "eng"}, run.args[1:])
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "traineddata")
}

func TestExtractPDFCorrupt(t *testing.T) {
	run := &fakeRunner{stderr: "Syntax Error: Couldn't find trailer dictionary", err: errors.New("exit status 1")}
	_, err := NewRouter(Config{}, nil).WithRunner(run).Extract(context.Background(), []byte("%PDF-1.4 garbage"), constants.PDF)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrTextExtraction)
	assert.Equal(t, "pdftoppm", run.name)
}

func TestExtractPDFCorruptWithoutOCR(t *testing.T) {
	run := &fakeRunner{}
	_, err := NewRouter(Config{DisablePDFOCR: true}, nil).WithRunner(run).Extract(context.Background(), []byte("%PDF-1.4 garbage"), constants.PDF)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrTextExtraction)
	assert.Empty(t, run.name, "no external command should run")
}

// pageRunner fakes pdftoppm by writing page images and tesseract by echoing
// the page file name.
type pageRunner struct {
	pages int
	calls []string
	fail  string
}

func (p *pageRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	p.calls = append(p.calls, name+" "+strings.Join(args, " "))
	switch name {
	case "pdftoppm":
		prefix := args[len(args)-1]
		for i := 1; i <= p.pages; i++ {
			if err := os.WriteFile(fmt.Sprintf("%s-%02d.png", prefix, i), []byte("PNG"), 0o600); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	case "tesseract":
		base := filepath.Base(args[0])
		if base == p.fail {
			return nil, []byte("page unreadable"), errors.New("exit status 1")
		}
		return []byte("text of " + base + "\n"), nil, nil
	}
	return nil, nil, fmt.Errorf("unexpected command %s", name)
}

func TestExtractPDFOCRFallback(t *testing.T) {
	// WHAT: a PDF without a usable text layer is rasterized and every page OCRed in order.
	// WHY: scanned attendee lists and business cards arrive as image-only PDFs.
	run := &pageRunner{pages: 3, fail: "page-02.png"}
	r := NewRouter(Config{DPI: 150, MaxPages: 2}, nil).WithRunner(run)

	res, err := r.Extract(context.Background(), []byte("%PDF-1.4 scanned"), constants.PDF)
	require.NoError(t, err)
	assert.Equal(t, "pdf-ocr", res.Method)
	assert.Equal(t, "text of page-01.png", res.Text)
	assert.Equal(t, 2, res.Pages)

	require.GreaterOrEqual(t, len(run.calls), 3)
	assert.Contains(t, run.calls[0], "pdftoppm -r 150 -png ")
	assert.Len(t, run.calls, 3, "pdftoppm plus two capped pages")

	joined := strings.Join(res.Warnings, "\n")
	assert.Contains(t, joined, "only the first 2 of 3 pages")
	assert.Contains(t, joined, "page 2")
	assert.Contains(t, joined, "page unreadable")
	assert.Contains(t, joined, "pdfcpu read")
}

func TestContentText(t *testing.T) {
	tests := []struct {
		name   string
		stream string
		want   string
	}{
		{
			name:   "Tj with line moves",
			stream: "BT /F1 12 Tf 72 712 Td (Jane Doe) Tj 0 -14 Td (jane@x.com) Tj ET",
			want:   "Jane Doe\njane@x.com",
		},
		{
			name:   "TJ kerning gap",
			stream: "BT [(Ja) -20 (ne) -300 (Doe)] TJ ET",
			want:   "Jane Doe",
		},
		{
			name:   "escapes and nesting",
			stream: `BT (A\(B\) \101 \(x\)) Tj (f(o)o) Tj ET`,
			want:   "A(B) A (x)f(o)o",
		},
		{
			name:   "hex strings",
			stream: "BT <4A616E65> Tj 10 0 Td <FEFF0042006F0062> Tj ET",
			want:   "Jane Bob",
		},
		{
			name:   "quote operator starts a line",
			stream: "BT (one) Tj (two) ' ET",
			want:   "one\ntwo",
		},
		{
			name:   "comments and dictionaries skipped",
			stream: "% header\n/Span <</MCID 0>> BDC BT (CTO) Tj T* (Acme) Tj ET EMC",
			want:   "CTO\nAcme",
		},
		{
			name:   "no text operators",
			stream: "q 1 0 0 1 0 0 cm /Im0 Do Q",
			want:   "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, strings.TrimSpace(contentText([]byte(tt.stream))))
		})
	}
}

func TestExtractFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "team.md")
	require.NoError(t, os.WriteFile(path, []byte("# Team\n\nJane Doe, CTO\n"), 0o600))

	r := NewRouter(Config{}, nil)
	res, err := r.ExtractFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "# Team\n\nJane Doe, CTO", res.Text)

	_, err = r.ExtractFile(context.Background(), filepath.Join(dir, "tool.exe"))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = r.ExtractFile(context.Background(), filepath.Join(dir, "missing.txt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrTextExtraction)
}
