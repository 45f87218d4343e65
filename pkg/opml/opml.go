// Package opml loads feed subscriptions from an OPML document.
package opml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"

	"github.com/umputun/heartbeat/pkg/domain"
)

// ErrNoFeeds indicates a well-formed OPML document with zero feed entries
var ErrNoFeeds = errors.New("no feeds found in OPML")

type document struct {
	XMLName xml.Name `xml:"opml"`
	Body    opmlBody `xml:"body"`
}

type opmlBody struct {
	Outlines []outline `xml:"outline"`
}

type outline struct {
	Title    string    `xml:"title,attr"`
	Text     string    `xml:"text,attr"`
	XMLURL   string    `xml:"xmlUrl,attr"`
	Outlines []outline `xml:"outline"`
}

// Parse reads the OPML file at path and returns its feed sources in
// document order. Outlines may nest arbitrarily (folders), only outlines
// carrying an xmlUrl attribute count as feeds.
func Parse(path string) ([]domain.FeedSource, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from config
	if err != nil {
		return nil, fmt.Errorf("read OPML file: %w", err)
	}

	var doc document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse OPML: %w", err)
	}

	var feeds []domain.FeedSource
	collect(doc.Body.Outlines, &feeds)

	if len(feeds) == 0 {
		return nil, ErrNoFeeds
	}
	return feeds, nil
}

func collect(outlines []outline, feeds *[]domain.FeedSource) {
	for _, o := range outlines {
		if o.XMLURL != "" {
			title := o.Title
			if title == "" {
				title = o.Text
			}
			if title == "" {
				title = "Unknown"
			}
			*feeds = append(*feeds, domain.FeedSource{Title: title, URL: o.XMLURL})
		}
		collect(o.Outlines, feeds)
	}
}
