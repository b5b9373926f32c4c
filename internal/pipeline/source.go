package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	pdf "github.com/ledongthuc/pdf"

	"taxelev/internal/util"
)

var ErrUnsupportedFormat = errors.New("unsupported document format")

type Format string

const (
	FormatText  Format = "txt"
	FormatPDF   Format = "pdf"
	FormatHTML  Format = "html"
	FormatEmail Format = "eml"
)

// DetectFormat maps a file extension to a supported format.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return FormatText, nil
	case ".pdf":
		return FormatPDF, nil
	case ".html", ".htm":
		return FormatHTML, nil
	case ".eml":
		return FormatEmail, nil
	default:
		return "", fmt.Errorf("%w: %q (want .txt, .pdf, .html or .eml)", ErrUnsupportedFormat, filepath.Base(path))
	}
}

// Document is the decoded text of one input plus the key its correction
// rules are filed under.
type Document struct {
	Key    string
	Format Format
	Text   string
}

// ReadDocument reads path once and decodes it according to its extension.
func ReadDocument(path string) (Document, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return Document{}, err
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	text, err := DecodeDocument(format, blob)
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return Document{Key: util.DocumentKey(path), Format: format, Text: text}, nil
}

func DecodeDocument(format Format, blob []byte) (string, error) {
	switch format {
	case FormatText:
		return decodeText(blob)
	case FormatPDF:
		return decodePDF(blob)
	case FormatHTML:
		return decodeHTML(blob)
	case FormatEmail:
		parts, err := DecodeEmail(blob)
		if err != nil {
			return "", err
		}
		texts := make([]string, 0, len(parts))
		for _, p := range parts {
			texts = append(texts, p.Text)
		}
		return strings.Join(texts, "\n"), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func decodeText(blob []byte) (string, error) {
	blob = bytes.TrimPrefix(blob, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(blob) {
		return "", errors.New("text is not valid UTF-8")
	}
	return string(blob), nil
}

// decodePDF concatenates the plain text of every page in order.
func decodePDF(blob []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		b.WriteString(text)
		if !strings.HasSuffix(text, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

// decodeHTML keeps the visible text, one line per block element.
func decodeHTML(blob []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(blob))
	if err != nil {
		return "", err
	}
	doc.Find("script,style,noscript").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p,div,li,tr,h1,h2,h3,h4,h5,h6,pre,td").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	return doc.Find("body").Text(), nil
}

// EmailPart is one decodable piece of a message: the body or an attachment.
type EmailPart struct {
	Name   string
	Format Format
	Text   string
}

// DecodeEmail returns the plain-text body followed by every attachment in a
// supported format. Attachments that fail to decode are dropped.
func DecodeEmail(raw []byte) ([]EmailPart, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	parts := make([]EmailPart, 0, 1+len(env.Attachments))
	if strings.TrimSpace(env.Text) != "" {
		parts = append(parts, EmailPart{Name: "body", Format: FormatText, Text: env.Text})
	}

	for _, att := range env.Attachments {
		filename := strings.TrimSpace(att.FileName)
		if filename == "" {
			continue
		}
		format, err := DetectFormat(filename)
		if err != nil || format == FormatEmail {
			continue
		}
		text, err := DecodeDocument(format, att.Content)
		if err != nil {
			continue
		}
		parts = append(parts, EmailPart{Name: filename, Format: format, Text: text})
	}
	return parts, nil
}
