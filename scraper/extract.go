package scraper

import (
	"fmt"
	"strings"

	"fundholdings/config"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

// RowPolicy decides what happens to a data row with a single cell
type RowPolicy int

const (
	// SkipMalformed logs the row and leaves it out
	SkipMalformed RowPolicy = iota
	// FailOnMalformed aborts extraction with ErrMalformedRow
	FailOnMalformed
)

// Extract locates the holdings table in doc and decodes its rows.
// The last row is the total footer and is never returned.
func Extract(doc *goquery.Document, fund config.FundSource, locator TableLocator, policy RowPolicy) (*FundTable, error) {
	table := locator.Find(doc)
	if table.Length() == 0 {
		return nil, fmt.Errorf("%w: %s by %s", ErrTableNotFound, fund.URL, locator)
	}

	rows, err := decodeRows(table, policy)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fund.URL, err)
	}

	return &FundTable{Fund: fund, Rows: rows}, nil
}

func decodeRows(table *goquery.Selection, policy RowPolicy) ([]HoldingRow, error) {
	trs := table.Find("tr")
	rows := make([]HoldingRow, 0, trs.Length())

	for i := 0; i < trs.Length()-1; i++ {
		cells := trs.Eq(i).Find("td")
		switch cells.Length() {
		case 0:
			// header rows carry th cells only
			continue
		case 1:
			text := strings.TrimSpace(cells.Text())
			if policy == FailOnMalformed {
				return nil, fmt.Errorf("%w: row %d has one cell (%q)", ErrMalformedRow, i+1, text)
			}
			logrus.WithFields(logrus.Fields{"row": i + 1, "cell": text}).Warn("skipping row with a single cell")
			continue
		}

		rows = append(rows, HoldingRow{
			Position: strings.TrimSpace(cells.Eq(0).Text()),
			Weight:   strings.TrimSpace(cells.Eq(1).Text()),
		})
	}

	return rows, nil
}
