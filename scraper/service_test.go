package scraper_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"fundholdings/browser"
	"fundholdings/config"
	"fundholdings/report"
	"fundholdings/scraper"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeLoader struct {
	pages          map[string]string
	errs           map[string]error
	consent        browser.ConsentReport
	establishCalls int
	loaded         []string
	readyScripts   []string
}

func (l *fakeLoader) Establish(ctx context.Context) (browser.ConsentReport, error) {
	l.establishCalls++
	return l.consent, nil
}

func (l *fakeLoader) Load(ctx context.Context, url string, readyJS string) (string, error) {
	l.loaded = append(l.loaded, url)
	l.readyScripts = append(l.readyScripts, readyJS)
	return l.pages[url], l.errs[url]
}

func page(n int) string {
	var sb strings.Builder
	sb.WriteString("<html><body><div><h2>Top 10 Positions</h2><table>")
	for i := 1; i <= n; i++ {
		sb.WriteString(fmt.Sprintf("<tr><td>Holding %d</td><td>%d.0</td></tr>", i, i))
	}
	sb.WriteString("<tr><td>Total</td><td>100</td></tr></table></div></body></html>")
	return sb.String()
}

var funds = []config.FundSource{
	{URL: "https://funds.example.com/Our-Funds/Alpha/#/Portfolio"},
	{URL: "https://funds.example.com/Our-Funds/Beta/#/Portfolio"},
	{URL: "https://funds.example.com/Our-Funds/Gamma/#/Portfolio"},
}

func TestRunEndToEnd(t *testing.T) {
	loader := &fakeLoader{
		pages: map[string]string{
			funds[0].URL: page(10),
			funds[1].URL: "<html><body><p>Portfolio unavailable</p></body></html>",
			funds[2].URL: page(5),
		},
		consent: browser.ConsentReport{
			Cookies: browser.StepResult{Step: "cookies", Outcome: browser.Performed},
			Terms:   browser.StepResult{Step: "terms", Outcome: browser.Failed, Err: errors.New("not clickable")},
		},
	}
	svc := scraper.NewService(loader, nil, scraper.SkipMalformed)

	result, err := svc.Run(context.Background(), funds)
	require.NoError(t, err)
	require.Equal(t, 1, loader.establishCalls)
	require.Equal(t, []string{funds[0].URL, funds[1].URL, funds[2].URL}, loader.loaded)
	for _, js := range loader.readyScripts {
		require.NotEmpty(t, js)
	}

	require.Len(t, result.Tables, 2)
	require.Equal(t, []config.FundSource{funds[1]}, result.Missing)

	path := filepath.Join(t.TempDir(), "funds.xlsx")
	require.NoError(t, report.Write(path, report.Entries(result.Tables)))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, []string{"Alpha Fund", "Gamma Fund"}, f.GetSheetList())

	rows, err := f.GetRows("Alpha Fund")
	require.NoError(t, err)
	require.Len(t, rows, 11)
	rows, err = f.GetRows("Gamma Fund")
	require.NoError(t, err)
	require.Len(t, rows, 6)

	// A second run reuses the established session
	_, err = svc.Run(context.Background(), funds[:1])
	require.NoError(t, err)
	require.Equal(t, 1, loader.establishCalls)
}

func TestRunNavigationFailureAborts(t *testing.T) {
	boom := errors.New("net::ERR_NAME_NOT_RESOLVED")
	loader := &fakeLoader{
		pages: map[string]string{funds[0].URL: page(3), funds[2].URL: page(3)},
		errs:  map[string]error{funds[1].URL: boom},
	}

	_, err := scraper.NewService(loader, nil, scraper.SkipMalformed).Run(context.Background(), funds)
	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{funds[0].URL, funds[1].URL}, loader.loaded)
}

func TestRunNotReadyStillExtracts(t *testing.T) {
	notReady := fmt.Errorf("%w: slow page", browser.ErrNotReady)
	loader := &fakeLoader{
		pages: map[string]string{funds[0].URL: page(4), funds[1].URL: "<html></html>"},
		errs:  map[string]error{funds[0].URL: notReady, funds[1].URL: notReady},
	}

	result, err := scraper.NewService(loader, nil, scraper.SkipMalformed).Run(context.Background(), funds[:2])
	require.NoError(t, err)
	require.Len(t, result.Tables, 1)
	require.Len(t, result.Tables[0].Rows, 4)
	require.Equal(t, []config.FundSource{funds[1]}, result.Missing)
}

func TestRunStrictRowsAborts(t *testing.T) {
	malformed := `<html><body><div><h2>Top 10 Positions</h2><table>
		<tr><td>Holding 1</td><td>5.0</td></tr>
		<tr><td>Holding 2</td></tr>
		<tr><td>Total</td><td>5.0</td></tr>
	</table></div></body></html>`
	loader := &fakeLoader{pages: map[string]string{funds[0].URL: malformed, funds[1].URL: page(2)}}

	_, err := scraper.NewService(loader, nil, scraper.FailOnMalformed).Run(context.Background(), funds[:2])
	require.ErrorIs(t, err, scraper.ErrMalformedRow)
	require.Equal(t, []string{funds[0].URL}, loader.loaded)

	loader.loaded = nil
	result, err := scraper.NewService(loader, nil, scraper.SkipMalformed).Run(context.Background(), funds[:2])
	require.NoError(t, err)
	require.Len(t, result.Tables, 2)
	require.Len(t, result.Tables[0].Rows, 1)
}

func TestRunByTableID(t *testing.T) {
	fund := config.FundSource{URL: "https://funds.example.com/x", TableID: "tbl-x", Name: "X"}
	markup := `<html><body><table id="tbl-x">
		<tr><td>Holding</td><td>9.9</td></tr>
		<tr><td>Total</td><td>9.9</td></tr>
	</table></body></html>`
	loader := &fakeLoader{pages: map[string]string{fund.URL: markup}}

	result, err := scraper.NewService(loader, nil, scraper.SkipMalformed).Run(context.Background(), []config.FundSource{fund})
	require.NoError(t, err)
	require.Equal(t, []scraper.HoldingRow{{Position: "Holding", Weight: "9.9"}}, result.Tables[0].Rows)
	require.Contains(t, loader.readyScripts[0], `getElementById("tbl-x")`)
}
