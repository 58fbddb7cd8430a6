package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// kernSpace is the TJ displacement (thousandths of an em) read as a word gap.
const kernSpace = -250

// pdfText reads the text layer of every page. Documents without one, or
// that pdfcpu cannot parse, are rasterized and OCRed unless DisablePDFOCR.
func (r *Router) pdfText(ctx context.Context, data []byte) (Result, error) {
	res, err := r.pdfTextLayer(data)
	if r.cfg.DisablePDFOCR || (err == nil && strings.TrimSpace(res.Text) != "") {
		return res, err
	}

	ocr, ocrErr := r.pdfOCR(ctx, data)
	if ocrErr != nil {
		if err != nil {
			return res, errors.Join(err, ocrErr)
		}
		res.Warnings = append(res.Warnings, ocr.Warnings...)
		res.Warnings = append(res.Warnings, "ocr fallback: "+ocrErr.Error())
		return res, nil
	}
	ocr.Warnings = append(res.Warnings, ocr.Warnings...)
	if err != nil {
		ocr.Warnings = append(ocr.Warnings, err.Error())
	}
	return ocr, nil
}

func (r *Router) pdfTextLayer(data []byte) (Result, error) {
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return Result{Method: "pdf-text"}, fmt.Errorf("pdfcpu read: %w", err)
	}

	last := ctx.PageCount
	var warnings []string
	if r.cfg.MaxPages > 0 && last > r.cfg.MaxPages {
		warnings = append(warnings, fmt.Sprintf("only the first %d of %d pages were read", r.cfg.MaxPages, last))
		last = r.cfg.MaxPages
	}

	var pages []string
	for nr := 1; nr <= last; nr++ {
		rd, err := pdfcpu.ExtractPageContent(ctx, nr)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("page %d: %v", nr, err))
			continue
		}
		if rd == nil {
			continue
		}
		content, err := io.ReadAll(rd)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("page %d: %v", nr, err))
			continue
		}
		if txt := strings.TrimSpace(contentText(content)); txt != "" {
			pages = append(pages, txt)
		}
	}
	if len(pages) == 0 && last > 0 {
		warnings = append(warnings, "no text layer found")
	}

	return Result{
		Text:     strings.Join(pages, "\n\n"),
		Pages:    ctx.PageCount,
		Method:   "pdf-text",
		Warnings: warnings,
	}, nil
}

type operand struct {
	str   string
	isStr bool
	num   float64
}

// contentText walks a page content stream and renders the operands of its
// text-showing operators. Positioning operators become line breaks or spaces.
func contentText(stream []byte) string {
	var (
		out      strings.Builder
		operands []operand
	)
	newline := func() {
		if out.Len() > 0 && !strings.HasSuffix(out.String(), "\n") {
			out.WriteByte('\n')
		}
	}
	space := func() {
		s := out.String()
		if s != "" && !strings.HasSuffix(s, " ") && !strings.HasSuffix(s, "\n") {
			out.WriteByte(' ')
		}
	}
	show := func(kerned bool) {
		for _, op := range operands {
			switch {
			case op.isStr:
				out.WriteString(op.str)
			case kerned && op.num <= kernSpace:
				space()
			}
		}
	}

	for i := 0; i < len(stream); {
		c := stream[i]
		switch {
		case isPDFSpace(c):
			i++
		case c == '%':
			for i < len(stream) && stream[i] != '\n' && stream[i] != '\r' {
				i++
			}
		case c == '(':
			s, n := readLiteral(stream[i:])
			operands = append(operands, operand{str: s, isStr: true})
			i += n
		case c == '<' && i+1 < len(stream) && stream[i+1] == '<',
			c == '>' && i+1 < len(stream) && stream[i+1] == '>':
			i += 2
		case c == '<':
			s, n := readHex(stream[i:])
			operands = append(operands, operand{str: s, isStr: true})
			i += n
		case isPDFDelim(c) && c != '/':
			i++
		default:
			j := i + 1
			for j < len(stream) && !isPDFSpace(stream[j]) && !isPDFDelim(stream[j]) {
				j++
			}
			tok := string(stream[i:j])
			i = j
			if tok[0] == '/' {
				continue
			}
			if v, err := strconv.ParseFloat(tok, 64); err == nil {
				operands = append(operands, operand{num: v})
				continue
			}
			switch tok {
			case "Tj":
				show(false)
			case "TJ":
				show(true)
			case "'", `"`:
				newline()
				show(false)
			case "T*", "ET":
				newline()
			case "Td", "TD":
				if n := len(operands); n >= 2 && operands[n-1].num != 0 {
					newline()
				} else {
					space()
				}
			}
			operands = operands[:0]
		}
	}
	return out.String()
}

// readLiteral decodes a (...) string starting at b[0] and returns it with the
// number of bytes consumed. Balanced parentheses nest.
func readLiteral(b []byte) (string, int) {
	var buf []byte
	depth := 0
	i := 0
	for ; i < len(b); i++ {
		c := b[i]
		switch c {
		case '(':
			depth++
			if depth == 1 {
				continue
			}
		case ')':
			depth--
			if depth == 0 {
				return decodeText(buf), i + 1
			}
		case '\\':
			if i+1 >= len(b) {
				continue
			}
			i++
			switch e := b[i]; e {
			case 'n':
				buf = append(buf, '\n')
			case 'r':
				buf = append(buf, '\r')
			case 't':
				buf = append(buf, '\t')
			case 'b':
				buf = append(buf, '\b')
			case 'f':
				buf = append(buf, '\f')
			case '\r':
				if i+1 < len(b) && b[i+1] == '\n' {
					i++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for k := 0; k < 2 && i+1 < len(b) && b[i+1] >= '0' && b[i+1] <= '7'; k++ {
						i++
						v = v*8 + int(b[i]-'0')
					}
					buf = append(buf, byte(v))
				} else {
					buf = append(buf, e)
				}
			}
			continue
		}
		buf = append(buf, c)
	}
	return decodeText(buf), i
}

// readHex decodes a <...> string starting at b[0]. An odd final digit is
// padded with zero.
func readHex(b []byte) (string, int) {
	var (
		buf  []byte
		hi   byte
		half bool
	)
	i := 1
	for ; i < len(b) && b[i] != '>'; i++ {
		v, ok := hexVal(b[i])
		if !ok {
			continue
		}
		if half {
			buf = append(buf, hi<<4|v)
		} else {
			hi = v
		}
		half = !half
	}
	if half {
		buf = append(buf, hi<<4)
	}
	if i < len(b) {
		i++
	}
	return decodeText(buf), i
}

// decodeText maps raw string bytes to text: UTF-16BE with a byte order mark,
// UTF-8 when valid, otherwise one rune per byte.
func decodeText(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		u := make([]uint16, 0, len(b)/2)
		for i := 2; i+1 < len(b); i += 2 {
			u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(u))
	}
	if utf8.Valid(b) {
		return string(b)
	}
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func isPDFSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', 0:
		return true
	}
	return false
}

func isPDFDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
