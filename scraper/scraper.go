// Package scraper locates holdings tables in rendered fund pages
package scraper

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"fundholdings/config"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	// ErrTableNotFound means the locator matched nothing on the page
	ErrTableNotFound = errors.New("holdings table not found")
	// ErrMalformedRow means a data row had a single cell under FailOnMalformed
	ErrMalformedRow = errors.New("malformed holdings row")
)

// HoldingRow is one position of a fund. Weight is kept as display text.
type HoldingRow struct {
	Position string `json:"position"`
	Weight   string `json:"weight"`
}

// FundTable is the extracted holdings of one fund
type FundTable struct {
	Fund config.FundSource `json:"fund"`
	Rows []HoldingRow      `json:"rows"`
}

// TableLocator finds the holdings table of a page
type TableLocator interface {
	// Find returns the table element, or an empty selection
	Find(doc *goquery.Document) *goquery.Selection

	// ReadyJS returns a browser expression that is truthy once the table
	// is present and its row count has stopped changing
	ReadyJS() string

	String() string
}

// ByHeadingText finds the first text matching Heading (case-insensitive)
// and takes the first table under the grandparent of that text
type ByHeadingText struct {
	Heading string
}

// ByID finds the element with a stable id attribute
type ByID struct {
	ID string
}

// LocatorFor picks the locator configured for a fund
func LocatorFor(fund config.FundSource) TableLocator {
	if fund.TableID != "" {
		return ByID{ID: fund.TableID}
	}
	heading := fund.Heading
	if heading == "" {
		heading = config.DefaultHeading
	}
	return ByHeadingText{Heading: heading}
}

func (b ByHeadingText) pattern() *regexp.Regexp {
	return regexp.MustCompile("(?i)" + regexp.QuoteMeta(b.Heading))
}

// Find implements TableLocator
func (b ByHeadingText) Find(doc *goquery.Document) *goquery.Selection {
	re := b.pattern()

	var match *html.Node
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template":
				return false
			}
		}
		if n.Type == html.TextNode && re.MatchString(n.Data) {
			match = n
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	for _, n := range doc.Nodes {
		if walk(n) {
			break
		}
	}

	if match == nil || match.Parent == nil || match.Parent.Parent == nil {
		return doc.FindNodes()
	}
	container := doc.FindNodes(match.Parent.Parent)
	if match.Parent.Parent.Type == html.DocumentNode {
		container = doc.Selection
	}
	return container.Find("table").First()
}

// ReadyJS implements TableLocator
func (b ByHeadingText) ReadyJS() string {
	source, _ := json.Marshal(regexp.QuoteMeta(b.Heading))
	return readyScript(fmt.Sprintf(`() => {
		const re = new RegExp(%s, "i");
		const root = document.body || document.documentElement;
		const walker = document.createTreeWalker(root, NodeFilter.SHOW_TEXT);
		for (let n = walker.nextNode(); n; n = walker.nextNode()) {
			const parent = n.parentElement;
			if (parent && ["SCRIPT", "STYLE", "NOSCRIPT", "TEMPLATE"].includes(parent.tagName)) {
				continue;
			}
			if (re.test(n.nodeValue)) {
				const container = parent && parent.parentElement;
				return (container || document).querySelector("table");
			}
		}
		return null;
	}`, source))
}

func (b ByHeadingText) String() string {
	return fmt.Sprintf("heading %q", b.Heading)
}

// Find implements TableLocator
func (b ByID) Find(doc *goquery.Document) *goquery.Selection {
	el := doc.Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		id, _ := s.Attr("id")
		return id == b.ID
	}).First()
	if el.Length() == 0 || goquery.NodeName(el) == "table" {
		return el
	}
	return el.Find("table").First()
}

// ReadyJS implements TableLocator
func (b ByID) ReadyJS() string {
	id, _ := json.Marshal(b.ID)
	return readyScript(fmt.Sprintf(`() => {
		const el = document.getElementById(%s);
		if (!el) {
			return null;
		}
		return el.tagName === "TABLE" ? el : el.querySelector("table");
	}`, id))
}

func (b ByID) String() string {
	return fmt.Sprintf("id %q", b.ID)
}

// readyScript wraps a table finder in a check that passes once the table
// has rows and the same row count was seen on the previous poll of the same URL.
// The marker is keyed by location.href since it survives fragment navigations.
func readyScript(finder string) string {
	return fmt.Sprintf(`(() => {
	const table = (%s)();
	if (!table) {
		return false;
	}
	const rows = table.querySelectorAll("tr").length;
	const prev = window.__fundholdingsRows;
	window.__fundholdingsRows = {href: location.href, rows: rows};
	return rows > 0 && !!prev && prev.href === location.href && prev.rows === rows;
})()`, finder)
}
