// Package render formats article bodies and checks uploaded hero media.
package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/beevik/etree"
	"github.com/gabriel-vasile/mimetype"
	"github.com/yosssi/gohtml"
	xhtml "golang.org/x/net/html"
)

// ErrUnsupportedMedia is returned for hero uploads that are not images or MP4 video.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// Prettify indents JSON, XML and HTML documents. Anything else yields an empty slice.
func Prettify(body []byte) ([]byte, error) {
	if len(body) == 0 {
		return []byte{}, nil
	}

	trimmed := bytes.TrimSpace(body)

	var jsonData any
	if err := json.Unmarshal(trimmed, &jsonData); err == nil {
		output, err := json.MarshalIndent(jsonData, "", "  ")
		if err != nil {
			return []byte{}, fmt.Errorf("remarshalling JSON: %w", err)
		}
		return output, nil
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(trimmed); err == nil && doc.Root() != nil {
		doc.Indent(1)
		var output bytes.Buffer
		if _, err := doc.WriteTo(&output); err != nil {
			return []byte{}, fmt.Errorf("writing indented XML: %w", err)
		}
		return output.Bytes(), nil
	}

	if isHTML(trimmed) {
		output := gohtml.FormatBytes(trimmed)
		if !bytes.Equal(output, trimmed) && len(output) > 0 {
			return output, nil
		}
	}

	return []byte{}, nil
}

func isHTML(body []byte) bool {
	contentType := mimetype.Detect(body).String()
	return strings.Contains(contentType, "text/html") ||
		(bytes.HasPrefix(body, []byte("<")) && !bytes.HasPrefix(body, []byte("<?xml")))
}

// FormatBody prepares an article body for display. HTML is indented, plain text is
// escaped and split into paragraphs on blank lines.
func FormatBody(body string) string {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return ""
	}
	if isHTML([]byte(trimmed)) {
		return gohtml.Format(trimmed)
	}

	normalized := strings.ReplaceAll(trimmed, "\r\n", "\n")
	var out strings.Builder
	for _, paragraph := range strings.Split(normalized, "\n\n") {
		paragraph = strings.Join(strings.Fields(paragraph), " ")
		if paragraph == "" {
			continue
		}
		if out.Len() > 0 {
			out.WriteString("\n")
		}
		out.WriteString("<p>")
		out.WriteString(html.EscapeString(paragraph))
		out.WriteString("</p>")
	}
	return out.String()
}

// PlainText returns the visible text of an HTML fragment with whitespace collapsed.
func PlainText(fragment string) string {
	nodes, err := xhtml.ParseFragment(strings.NewReader(fragment), nil)
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}

	var sb strings.Builder
	var walk func(*xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == xhtml.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// Excerpt returns the plain text of fragment cut to at most n runes, with an ellipsis
// when shortened. Words are not split.
func Excerpt(fragment string, n int) string {
	text := PlainText(fragment)
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)[:n]
	cut := string(runes)
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "…"
}

// Media is the detected type of an uploaded file.
type Media struct {
	MIME      string `json:"mime"`
	Extension string `json:"extension"` // with the leading dot
}

// DetectMedia returns the type of an uploaded hero image or video. Only images and MP4
// video are accepted.
func DetectMedia(data []byte) (Media, error) {
	mtype := mimetype.Detect(data)
	if strings.HasPrefix(mtype.String(), "image/") || mtype.Is("video/mp4") {
		mime, _, _ := strings.Cut(mtype.String(), ";")
		return Media{MIME: mime, Extension: mtype.Extension()}, nil
	}
	return Media{}, fmt.Errorf("%w: %s", ErrUnsupportedMedia, mtype.String())
}
