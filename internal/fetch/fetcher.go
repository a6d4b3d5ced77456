// Package fetch retrieves and parses listing pages from the target site.
// It is the site-specific collaborator behind the cache: everything here is
// markup plumbing, and the rest of the service only depends on the Listing
// records it produces.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/html"

	"github.com/ashenomo/tomigaya/internal/logger"
	"github.com/ashenomo/tomigaya/internal/models"
)

// Detail table row labels on the building page.
const (
	labelRoomNumber   = "部屋番号"
	labelFloorPlan    = "間取り"
	labelName         = "物件名称"
	labelArea         = "専有面積"
	labelRent         = "賃料"
	labelLeaseTerm    = "契約期間"
	labelAddress      = "所在地"
	labelConstruction = "構造"
	labelBuildYear    = "築年月"

	unitArea = "m²"
	unitRent = "円"
)

var (
	bgImageRe = regexp.MustCompile(`url\(([^)]+)\)`)
	onclickRe = regexp.MustCompile(`location\.href='(.*)';`)
)

// SiteFetcher downloads pages from one host with a retrying HTTP client
// and parses them into Listing records.
type SiteFetcher struct {
	host   string
	client *retryablehttp.Client
	log    *logger.Logger
	format models.NumberFormat
}

// New creates a SiteFetcher for the given host. GETs are retried with
// capped exponential backoff on 429 and 5xx responses.
func New(host string, log *logger.Logger) *SiteFetcher {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 1 * time.Second
	client.RetryWaitMax = 30 * time.Second
	client.HTTPClient.Timeout = 30 * time.Second
	client.Logger = nil

	return &SiteFetcher{
		host:   host,
		client: client,
		log:    log,
		format: models.JapaneseFormat,
	}
}

// Host returns the configured target host.
func (f *SiteFetcher) Host() string { return f.host }

func (f *SiteFetcher) get(ctx context.Context, path string) (*goquery.Document, error) {
	url := "http://" + f.host + path
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request for %s: %w", url, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: unexpected status %d", url, resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return doc, nil
}

// FetchSummaries retrieves the start page at path and extracts summary
// listings from it. Feature pages carry links plus display text and a
// thumbnail; search result pages carry room links only, following the
// pager through all result pages.
func (f *SiteFetcher) FetchSummaries(ctx context.Context, path string) ([]models.Listing, error) {
	f.log.Info("rescan triggered", map[string]interface{}{
		"host": f.host,
		"path": path,
	})
	doc, err := f.get(ctx, path)
	if err != nil {
		return nil, err
	}

	if doc.Find("ul.new").Length() > 0 {
		return f.parseFeaturePage(doc), nil
	}
	if doc.Find("div.result_list").Length() > 0 {
		return f.parseSearchResults(ctx, doc)
	}
	return nil, fmt.Errorf("unrecognized start page at %s%s", f.host, path)
}

func (f *SiteFetcher) parseFeaturePage(doc *goquery.Document) []models.Listing {
	var listings []models.Listing
	doc.Find("ul.new li").Each(func(_ int, li *goquery.Selection) {
		link, ok := li.Find("a").Attr("href")
		if !ok {
			return
		}
		listing := models.Listing{
			Link: link,
			Text: li.Find("span.text_area").Text(),
		}
		// Thumbnail from the inline background-image style.
		if style, ok := li.Find("span.img_area").Attr("style"); ok {
			if m := bgImageRe.FindStringSubmatch(style); m != nil {
				listing.Images = []string{m[1]}
			}
		}
		listings = append(listings, listing)
	})
	return listings
}

func (f *SiteFetcher) parseSearchResults(ctx context.Context, doc *goquery.Document) ([]models.Listing, error) {
	var listings []models.Listing
	for {
		doc.Find("div.result_list div.base").Each(func(_ int, result *goquery.Selection) {
			roomTable := result.Find("table.room")
			if roomTable.Length() > 0 {
				roomTable.Find("tr.clickableRow").Each(func(_ int, row *goquery.Selection) {
					onclick, _ := row.Attr("onclick")
					m := onclickRe.FindStringSubmatch(onclick)
					if m == nil {
						f.log.Warn("invalid onclick in result row", map[string]interface{}{
							"onclick": onclick,
						})
						return
					}
					listings = append(listings, models.Listing{Link: m[1]})
				})
				return
			}
			// No room table: fall back to the building-level link.
			link, ok := result.Find("a").Attr("href")
			if !ok {
				f.log.Warn("result without link", nil)
				return
			}
			f.log.Warn("no room table in result, using building-level link", map[string]interface{}{
				"link": link,
			})
			listings = append(listings, models.Listing{Link: link})
		})

		next, ok := doc.Find("div.pager li.next a").Attr("href")
		if !ok {
			f.log.Debug("last page of results reached", nil)
			return listings, nil
		}
		f.log.Info("moving to next result page", map[string]interface{}{"path": next})
		var err error
		doc, err = f.get(ctx, next)
		if err != nil {
			return nil, err
		}
	}
}

// Fetch retrieves the listing page for link. A building page with a rooms
// table fans out into one fetch per unit link; a room page yields a single
// listing.
func (f *SiteFetcher) Fetch(ctx context.Context, link string) ([]models.Listing, error) {
	f.log.Info("fetching listing page", map[string]interface{}{"link": link})
	doc, err := f.get(ctx, link)
	if err != nil {
		return nil, err
	}

	roomsTable := doc.Find("div.table_area.scroll-area")
	if roomsTable.Length() == 0 {
		if listing, ok := f.parseListingPage(doc, link); ok {
			return []models.Listing{listing}, nil
		}
		return nil, nil
	}

	unitLinks := map[string]struct{}{}
	roomsTable.Find("tr").Each(func(_ int, row *goquery.Selection) {
		if href, ok := row.Find("td a").First().Attr("href"); ok {
			unitLinks[href] = struct{}{}
		}
	})
	sorted := make([]string, 0, len(unitLinks))
	for unitLink := range unitLinks {
		sorted = append(sorted, unitLink)
	}
	sort.Strings(sorted)

	var listings []models.Listing
	for _, unitLink := range sorted {
		unitDoc, err := f.get(ctx, unitLink)
		if err != nil {
			return nil, err
		}
		if listing, ok := f.parseListingPage(unitDoc, unitLink); ok {
			listings = append(listings, listing)
		}
	}
	return listings, nil
}

// parseListingPage extracts one listing from a unit detail page. Pages
// without the detail table (e.g. removed rooms) yield nothing.
func (f *SiteFetcher) parseListingPage(doc *goquery.Document, link string) (models.Listing, bool) {
	table := doc.Find(`table[summary="建物詳細"]`)
	if table.Length() == 0 {
		return models.Listing{}, false
	}

	details := map[string]string{}
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		key := row.Find("th")
		value := row.Find("td")
		if key.Length() == 0 || value.Length() == 0 {
			return
		}
		details[key.Text()] = models.NormalizeValue(directText(value))
	})

	var images []string
	doc.Find("a.sp-slide-fancy").Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok {
			images = append(images, href)
		}
	})

	return models.Listing{
		Link:         link,
		RoomNumber:   details[labelRoomNumber],
		FloorPlan:    details[labelFloorPlan],
		Name:         details[labelName],
		Area:         models.ParseNumber(details[labelArea], unitArea, f.format),
		Rent:         models.ParseNumber(details[labelRent], unitRent, f.format),
		LeaseTerm:    details[labelLeaseTerm],
		Address:      details[labelAddress],
		Images:       images,
		Construction: details[labelConstruction],
		BuildYear:    details[labelBuildYear],
	}, true
}

// ReadSiteMap returns the link targets of the site map on the host's root
// page, or nothing when the page has no site map section.
func (f *SiteFetcher) ReadSiteMap(ctx context.Context) ([]string, error) {
	doc, err := f.get(ctx, "")
	if err != nil {
		return nil, err
	}
	sitemap := doc.Find("div.sitemap")
	if sitemap.Length() == 0 {
		f.log.Warn("no sitemap section found", map[string]interface{}{"host": f.host})
		return nil, nil
	}
	var links []string
	sitemap.Find("a").Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok {
			links = append(links, href)
		}
	})
	return links, nil
}

// directText collects the text of a selection's immediate text-node
// children, skipping nested elements such as annotation spans.
func directText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, node := range sel.Nodes {
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == html.TextNode {
				b.WriteString(child.Data)
			}
		}
	}
	return b.String()
}
