package soundcloud

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

// Details is best-effort profile metadata shown by the check command.
type Details struct {
	Title       string
	Description string
	Permalink   string
	Username    string
	UserID      string
	Followers   int64
}

var hydrationRegex = regexp.MustCompile(`window\.__sc_hydration\s*=\s*`)

// ParseDetails reads the whole page and extracts what it can find.
func ParseDetails(r io.Reader) (Details, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Details{}, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var d Details
	d.Title = strings.TrimSpace(doc.Find("title").First().Text())
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && og != "" {
		d.Title = strings.TrimSpace(og)
	}
	if desc, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
		d.Description = strings.TrimSpace(desc)
	}
	if u, ok := doc.Find(`meta[property="og:url"]`).Attr("content"); ok {
		d.Permalink = u
	}

	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		loc := hydrationRegex.FindStringIndex(text)
		if loc == nil {
			return true
		}
		raw := strings.TrimRight(strings.TrimSpace(text[loc[1]:]), ";")
		if !gjson.Valid(raw) {
			return true
		}
		user := gjson.Get(raw, `#(hydratable=="user").data`)
		if !user.Exists() {
			return true
		}
		d.UserID = user.Get("id").String()
		d.Username = user.Get("username").String()
		d.Followers = user.Get("followers_count").Int()
		if pl := user.Get("permalink_url").String(); pl != "" {
			d.Permalink = pl
		}
		return false
	})

	return d, nil
}
