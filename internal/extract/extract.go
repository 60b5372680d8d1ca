package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeText = "text/plain"
	mimeRTF  = "application/rtf"
)

// Single-image referrals are scanned letters; anything past this pixel budget
// is a misupload, not a letter.
const maxImagePixels = 50_000_000

// TextResult carries decoded text plus decoder diagnostics.
type TextResult struct {
	Text      string
	PageCount int
	Warnings  []string
}

// ErrUnsupportedMime is returned for MIME types with no text decoder. Image
// uploads validate but do not decode; they need an OCR step upstream.
var ErrUnsupportedMime = errors.New("unsupported mime type")

// TextFromBytes extracts text from an in-memory payload.
// Libraries used: github.com/ledongthuc/pdf (PDF); DOCX is unpacked as
// zip + word/document.xml.
func TextFromBytes(ctx context.Context, data []byte, mimeType string, fileName string) (TextResult, error) {
	if err := ctx.Err(); err != nil {
		return TextResult{}, err
	}
	normalized := normalizeMimeType(mimeType, fileName, data)
	switch normalized {
	case mimePDF:
		return extractPDF(data)
	case mimeDOCX:
		return extractDOCX(data)
	case mimeText:
		return TextResult{Text: CleanText(string(data))}, nil
	case mimeRTF:
		return TextResult{Text: CleanText(stripRTF(string(data)))}, nil
	default:
		return TextResult{}, fmt.Errorf("%w: %s", ErrUnsupportedMime, normalized)
	}
}

// ValidateImage checks that an image payload decodes and stays inside the
// pixel budget without loading pixel data.
func ValidateImage(data []byte) error {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode image config: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("invalid %s dimensions %dx%d", format, cfg.Width, cfg.Height)
	}
	if cfg.Width*cfg.Height > maxImagePixels {
		return fmt.Errorf("%s image %dx%d exceeds pixel budget", format, cfg.Width, cfg.Height)
	}
	return nil
}

func extractPDF(data []byte) (TextResult, error) {
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return TextResult{}, err
	}
	plain, err := pdfReader.GetPlainText()
	if err != nil {
		return TextResult{}, err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return TextResult{}, err
	}
	return TextResult{Text: CleanText(buf.String()), PageCount: pdfReader.NumPage()}, nil
}

func extractDOCX(data []byte) (TextResult, error) {
	if len(data) == 0 {
		return TextResult{}, errors.New("empty docx data")
	}
	readerAt := bytes.NewReader(data)
	zr, err := zip.NewReader(readerAt, int64(len(data)))
	if err != nil {
		return TextResult{}, err
	}

	var docFile *zip.File
	for _, f := range zr.File {
		name := strings.ReplaceAll(f.Name, "\\", "/")
		if name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return TextResult{}, errors.New("document.xml file not found")
	}

	rc, err := docFile.Open()
	if err != nil {
		return TextResult{}, err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return TextResult{}, err
	}

	result := TextResult{Text: CleanText(stripDocxXML(string(raw)))}
	if result.Text == "" {
		result.Warnings = append(result.Warnings, "document.xml yielded no text")
	}
	return result, nil
}

func stripDocxXML(raw string) string {
	decoder := xml.NewDecoder(strings.NewReader(raw))
	var buf strings.Builder
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return raw
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf.WriteString(string(t))
		case xml.EndElement:
			if t.Name.Local == "p" || t.Name.Local == "br" {
				if last := buf.Len(); last > 0 {
					buf.WriteString("\n")
				}
			}
		}
	}
	return strings.TrimSpace(buf.String())
}

var (
	reRTFControl = regexp.MustCompile(`\\[a-zA-Z]+-?\d* ?`)
	reRTFBraces  = regexp.MustCompile(`[{}]`)
)

// stripRTF removes RTF control words and group braces. Referral letters in
// RTF are plain correspondence, so a lossy strip is acceptable.
func stripRTF(raw string) string {
	stripped := reRTFControl.ReplaceAllString(raw, "")
	stripped = reRTFBraces.ReplaceAllString(stripped, "")
	return strings.TrimSpace(stripped)
}

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reTabs       = regexp.MustCompile(`\t+`)
	reMultiSpace = regexp.MustCompile(` {2,}`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
)

// CleanText collapses noisy whitespace while keeping line breaks, which the
// extraction prompts rely on.
func CleanText(s string) string {
	if s == "" {
		return s
	}
	s = reCRLF.ReplaceAllString(s, "\n")
	s = reTabs.ReplaceAllString(s, " ")
	s = reMultiSpace.ReplaceAllString(s, " ")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func normalizeMimeType(mimeType string, fileName string, data []byte) string {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	if clean == "text/rtf" {
		return mimeRTF
	}
	if clean != "application/zip" {
		return clean
	}

	if mapped := mapOOXMLFromZip(data); mapped != "" {
		return mapped
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".docx":
		return mimeDOCX
	default:
		return clean
	}
}

func mapOOXMLFromZip(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	readerAt := bytes.NewReader(data)
	zr, err := zip.NewReader(readerAt, int64(len(data)))
	if err != nil {
		return ""
	}
	for _, f := range zr.File {
		name := strings.ReplaceAll(f.Name, "\\", "/")
		if name == "word/document.xml" {
			return mimeDOCX
		}
	}
	return ""
}
