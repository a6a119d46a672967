package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"FundingScanner/internal/domain"
	"FundingScanner/internal/ports"
	"FundingScanner/internal/scraper"
)

const odListURL = "https://opportunitydesk.org/category/grants/"

// ODScraper pages through the Opportunity Desk grants category. Pagination
// uses /page/N/ suffixes and ends at the first 404.
type ODScraper struct {
	client    *http.Client
	logger    *slog.Logger
	opts      scraper.Options
	listURL   string
	pageDelay time.Duration
	now       func() time.Time
}

var _ ports.OpportunitySource = (*ODScraper)(nil)

// NewODScraper wires an HTTP client; a nil client gets the shared retrying one.
func NewODScraper(client *http.Client, opts scraper.Options, logger *slog.Logger) *ODScraper {
	if client == nil {
		client = NewClient(30 * time.Second)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ODScraper{
		client:    client,
		logger:    logger,
		opts:      opts,
		listURL:   odListURL,
		pageDelay: 2 * time.Second,
		now:       time.Now,
	}
}

// Name identifies the source inside the registry.
func (s *ODScraper) Name() string {
	return "od"
}

// Fetch lists recent postings, drops known links, and scrapes the rest.
func (s *ODScraper) Fetch(ctx context.Context, knownLinks map[string]struct{}) ([]domain.RawOpportunity, error) {
	cutoff := s.now().UTC().AddDate(0, -s.opts.CutoffMonths, 0)
	s.logger.Debug("listing recent postings", "cutoff", cutoff.Format("2006-01-02"))

	recent := s.listRecentLinks(ctx, cutoff)
	toScrape := filterLinks(recent, knownLinks, s.opts.TestLimit)
	s.logger.Info("listing complete", "recent", len(recent), "new", len(toScrape))

	var opportunities []domain.RawOpportunity
	for _, link := range toScrape {
		opp, ok := s.scrapeDetails(ctx, link)
		if ok {
			opportunities = append(opportunities, opp)
		}
		politeSleep(ctx, s.pageDelay)
	}

	return opportunities, nil
}

func (s *ODScraper) listRecentLinks(ctx context.Context, cutoff time.Time) []string {
	var recent []string

	for page := 1; ; page++ {
		pageURL := s.listURL
		if page > 1 {
			pageURL = fmt.Sprintf("%spage/%d/", s.listURL, page)
		}

		resp, err := fetchResponse(ctx, s.client, pageURL)
		if err != nil {
			s.logger.Error("listing page failed, stopping pagination", "page", page, "error", err)
			break
		}
		if resp.StatusCode == http.StatusNotFound {
			_ = resp.Body.Close()
			s.logger.Debug("reached last page", "page", page)
			break
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			s.logger.Error("listing page returned bad status, stopping pagination", "page", page, "status", resp.Status)
			break
		}

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			s.logger.Error("listing page unparseable, stopping pagination", "page", page, "error", err)
			break
		}

		articles := doc.Find("article.l-post")
		if articles.Length() == 0 {
			break
		}

		articles.Each(func(_ int, article *goquery.Selection) {
			href, hasLink := article.Find("h2.post-title > a").First().Attr("href")
			dateText := strings.TrimSpace(article.Find("time.post-date").First().Text())
			if !hasLink || dateText == "" {
				return
			}

			published, ok := parseAbsoluteDate(dateText)
			if !ok {
				s.logger.Warn("unparseable listing date", "date", dateText, "link", href)
				return
			}
			if !published.Before(cutoff) {
				recent = append(recent, href)
			}
		})

		politeSleep(ctx, s.pageDelay)
	}

	return recent
}

func (s *ODScraper) scrapeDetails(ctx context.Context, link string) (domain.RawOpportunity, bool) {
	doc, err := fetchDocument(ctx, s.client, link)
	if err != nil {
		s.logger.Error("detail page failed", "link", link, "error", err)
		return domain.RawOpportunity{}, false
	}

	title := strings.TrimSpace(doc.Find("h1.entry-title").First().Text())
	if title == "" {
		// Some OD posts render without an H1; recover a title from the slug.
		title = titleFromSlug(link)
		s.logger.Warn("title missing, derived from slug", "link", link, "title", title)
	}

	fullText := collapseText(doc.Find("div.entry-content").First())
	if fullText == "" {
		s.logger.Warn("detail page missing content", "link", link)
	}

	return domain.RawOpportunity{
		Link:      link,
		Title:     title,
		Source:    domain.SourceOD,
		FullText:  fullText,
		Status:    domain.StatusPendingAnalysis,
		ScrapedAt: s.now().UTC(),
	}, true
}

func titleFromSlug(link string) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return "Title Generation Failed"
	}

	path := strings.Trim(parsed.Path, "/")
	segments := strings.Split(path, "/")
	slug := segments[len(segments)-1]
	if slug == "" {
		return "Title Generation Failed"
	}

	words := strings.Split(strings.ReplaceAll(slug, "-", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
