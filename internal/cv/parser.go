package cv

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

// ErrExtractionFailed marks unsupported or corrupt input documents.
var ErrExtractionFailed = errors.New("extraction failed")

// ExtractionError carries file level detail for ErrExtractionFailed.
type ExtractionError struct {
	Filename string
	FileKind string
	Err      error
}

func (e *ExtractionError) Error() string {
	name := e.Filename
	if name == "" {
		name = "document"
	}
	return fmt.Sprintf("extraction failed for %s (%s): %v", name, e.FileKind, e.Err)
}

func (e *ExtractionError) Unwrap() []error {
	return []error{ErrExtractionFailed, e.Err}
}

// Supported file kinds.
const (
	KindPDF  = "pdf"
	KindDOCX = "docx"
	KindDOC  = "doc"
	KindRTF  = "rtf"
	KindODT  = "odt"
	KindTXT  = "txt"
)

var docconvMIME = map[string]string{
	KindDOC: "application/msword",
	KindRTF: "application/rtf",
	KindODT: "application/vnd.oasis.opendocument.text",
}

// KindFromFilename derives the file kind from the extension.
func KindFromFilename(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}

// Document is the plain text of a resume with coarse section boundaries.
type Document struct {
	Text     string
	Sections Sections
	Contact  Contact
}

type Contact struct {
	Name     string
	Email    string
	Phone    string
	Location string
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Extract converts raw bytes of the given kind into text, sections and contact fields.
func (p *Parser) Extract(filename string, data []byte, fileKind string) (*Document, error) {
	if fileKind == "" {
		fileKind = KindFromFilename(filename)
	}
	fail := func(err error) error {
		return &ExtractionError{Filename: filename, FileKind: fileKind, Err: err}
	}

	var text string
	var err error
	switch fileKind {
	case KindPDF:
		text, err = extractPDFText(data)
	case KindDOCX:
		text, err = extractDocxText(data)
	case KindDOC, KindRTF, KindODT:
		var res *docconv.Response
		res, err = docconv.Convert(bytes.NewReader(data), docconvMIME[fileKind], false)
		if err == nil {
			text = res.Body
		}
	case KindTXT, "text", "":
		if !utf8.Valid(data) {
			err = errors.New("text is not valid utf-8")
		}
		text = string(data)
	default:
		err = fmt.Errorf("unsupported file type: %s", fileKind)
	}
	if err != nil {
		return nil, fail(err)
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil, fail(errors.New("document contains no text"))
	}

	sections := SplitSections(text)
	return &Document{
		Text:     text,
		Sections: sections,
		Contact:  parseContact(text, sections),
	}, nil
}

func extractPDFText(data []byte) (text string, err error) {
	// ledongthuc/pdf panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to read pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to read pdf: %w", err)
	}
	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read pdf page %d: %w", i, err)
		}
		b.WriteString(pageText)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func extractDocxText(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse docx: %w", err)
	}
	defer doc.Close()
	return stripXML(doc.Editable().GetContent()), nil
}

// stripXML turns the raw document.xml body into text, one paragraph per line.
func stripXML(content string) string {
	content = strings.ReplaceAll(content, "</w:p>", "\n")
	var b strings.Builder
	inTag := false
	for _, r := range content {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	replacer := strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'")
	return replacer.Replace(b.String())
}

// ReadAllLimited reads at most limit bytes, failing when the input is larger.
func ReadAllLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("file exceeds %d bytes", limit)
	}
	return data, nil
}
