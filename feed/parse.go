// Package feed imports racing news from RSS 2.0 and Atom feeds into articles.
package feed

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/beevik/etree"
)

// ErrUnknownFormat is returned when a document is neither RSS nor Atom.
var ErrUnknownFormat = errors.New("document is not an RSS or Atom feed")

// Item is a single entry read from a feed.
type Item struct {
	Title      string
	Link       string
	Author     string
	Summary    string
	Body       string
	Published  time.Time
	Categories []string
}

var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	time.RFC3339Nano,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02",
}

func parseDate(value string) time.Time {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func text(parent *etree.Element, path string) string {
	if el := parent.FindElement(path); el != nil {
		return strings.TrimSpace(el.Text())
	}
	return ""
}

// Parse reads every item of an RSS 2.0 or Atom document.
func Parse(r io.Reader) ([]*Item, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("%w: reading feed: %v", ErrUnknownFormat, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, ErrUnknownFormat
	}

	switch strings.ToLower(root.Tag) {
	case "rss":
		return parseRSS(root), nil
	case "feed":
		return parseAtom(root), nil
	}
	return nil, fmt.Errorf("%w: root element <%s>", ErrUnknownFormat, root.Tag)
}

func parseRSS(root *etree.Element) []*Item {
	var items []*Item
	for _, el := range root.FindElements("./channel/item") {
		item := &Item{
			Title:     text(el, "title"),
			Link:      text(el, "link"),
			Summary:   text(el, "description"),
			Body:      text(el, "content:encoded"),
			Published: parseDate(text(el, "pubDate")),
		}
		if item.Author = text(el, "dc:creator"); item.Author == "" {
			item.Author = text(el, "author")
		}
		if item.Link == "" {
			item.Link = text(el, "guid")
		}
		for _, c := range el.SelectElements("category") {
			if v := strings.TrimSpace(c.Text()); v != "" {
				item.Categories = append(item.Categories, v)
			}
		}
		items = append(items, item)
	}
	return items
}

func parseAtom(root *etree.Element) []*Item {
	var items []*Item
	for _, el := range root.SelectElements("entry") {
		item := &Item{
			Title:   text(el, "title"),
			Author:  text(el, "author/name"),
			Summary: text(el, "summary"),
			Body:    text(el, "content"),
		}
		for _, link := range el.SelectElements("link") {
			rel := link.SelectAttrValue("rel", "alternate")
			if rel == "alternate" {
				item.Link = strings.TrimSpace(link.SelectAttrValue("href", ""))
				break
			}
		}
		if published := text(el, "published"); published != "" {
			item.Published = parseDate(published)
		} else {
			item.Published = parseDate(text(el, "updated"))
		}
		for _, c := range el.SelectElements("category") {
			if v := strings.TrimSpace(c.SelectAttrValue("term", "")); v != "" {
				item.Categories = append(item.Categories, v)
			}
		}
		items = append(items, item)
	}
	return items
}
