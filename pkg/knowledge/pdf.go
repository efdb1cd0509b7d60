package knowledge

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrUnreadablePDF wraps every failure to pull text out of a PDF.
var ErrUnreadablePDF = errors.New("pdf has no extractable text")

// IsPDF reports whether data starts with the PDF file signature.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// ExtractPDFText returns the plain text of every page in order. Scanned
// documents without a text layer fail with ErrUnreadablePDF; there is no
// OCR fallback.
func ExtractPDFText(sourceID string, data []byte) (text string, err error) {
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", &DocumentError{SourceID: sourceID, Err: fmt.Errorf("%w: %v", ErrUnreadablePDF, r)}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &DocumentError{SourceID: sourceID, Err: fmt.Errorf("%w: %v", ErrUnreadablePDF, err)}
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", &DocumentError{SourceID: sourceID, Err: fmt.Errorf("%w: %v", ErrUnreadablePDF, err)}
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", &DocumentError{SourceID: sourceID, Err: fmt.Errorf("%w: %v", ErrUnreadablePDF, err)}
	}
	if strings.TrimSpace(string(raw)) == "" {
		return "", &DocumentError{SourceID: sourceID, Err: ErrUnreadablePDF}
	}
	return string(raw), nil
}

// DocumentFromFile builds a Document from an uploaded or loaded file. PDFs
// are detected by extension or signature and converted to text; anything
// else is taken as UTF-8 text and checked by Ingest.
func DocumentFromFile(sourceID, title, filename string, data []byte) (Document, error) {
	doc := Document{SourceID: sourceID, Title: title}
	if strings.HasSuffix(strings.ToLower(filename), ".pdf") || IsPDF(data) {
		text, err := ExtractPDFText(sourceID, data)
		if err != nil {
			return Document{}, err
		}
		doc.Text = text
		return doc, nil
	}
	doc.Text = string(data)
	return doc, nil
}
