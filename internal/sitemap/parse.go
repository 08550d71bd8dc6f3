package sitemap

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ParseLocs extracts every <loc> value from a sitemap document, in document
// order. It accepts both <sitemapindex> and <urlset> roots; the sitemap
// schema is two fixed elements, so a streaming decoder is all it takes.
func ParseLocs(doc []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	var (
		locs  []string
		inLoc bool
		buf   strings.Builder
	)
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode sitemap: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "loc" {
				inLoc = true
				buf.Reset()
			}
		case xml.CharData:
			if inLoc {
				buf.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local == "loc" {
				inLoc = false
				if loc := strings.TrimSpace(buf.String()); loc != "" {
					locs = append(locs, loc)
				}
			}
		}
	}
	return locs, nil
}
