package parser

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"FundingScanner/internal/domain"
	"FundingScanner/internal/ports"
	"FundingScanner/internal/scraper"
)

const gsoListURL = "https://www.globalsouthopportunities.com/category/funding/"

// GSOScraper walks the Global South Opportunities funding category and
// extracts postings newer than the cutoff.
type GSOScraper struct {
	client    *http.Client
	logger    *slog.Logger
	opts      scraper.Options
	listURL   string
	pageDelay time.Duration
	now       func() time.Time
}

var _ ports.OpportunitySource = (*GSOScraper)(nil)

// NewGSOScraper wires an HTTP client; a nil client gets the shared retrying one.
func NewGSOScraper(client *http.Client, opts scraper.Options, logger *slog.Logger) *GSOScraper {
	if client == nil {
		client = NewClient(15 * time.Second)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GSOScraper{
		client:    client,
		logger:    logger,
		opts:      opts,
		listURL:   gsoListURL,
		pageDelay: time.Second,
		now:       time.Now,
	}
}

// Name identifies the source inside the registry.
func (s *GSOScraper) Name() string {
	return "gso"
}

// Fetch lists recent postings, drops links already known, and scrapes detail
// pages for the remainder. Listing failures terminate pagination but keep
// whatever was collected so far.
func (s *GSOScraper) Fetch(ctx context.Context, knownLinks map[string]struct{}) ([]domain.RawOpportunity, error) {
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
		politeSleep(ctx, s.pageDelay/2)
	}

	return opportunities, nil
}

func (s *GSOScraper) listRecentLinks(ctx context.Context, cutoff time.Time) []string {
	var recent []string

	pageURL := s.listURL
	for page := 1; pageURL != ""; page++ {
		doc, err := fetchDocument(ctx, s.client, pageURL)
		if err != nil {
			s.logger.Error("listing page failed, stopping pagination", "page", page, "error", err)
			break
		}

		container := doc.Find("ul#posts-container")
		if container.Length() == 0 {
			s.logger.Warn("posts container not found, stopping pagination", "page", page)
			break
		}

		posts := container.Find("li.post-item")
		if posts.Length() == 0 {
			break
		}

		posts.Each(func(_ int, post *goquery.Selection) {
			href, hasLink := post.Find("a.more-link").First().Attr("href")
			dateText := strings.TrimSpace(post.Find("span.date").First().Text())
			if !hasLink || dateText == "" {
				return
			}

			published, ok := parseFlexibleDate(dateText, s.now().UTC())
			if !ok {
				s.logger.Warn("unparseable listing date", "date", dateText, "link", href)
				return
			}
			if !published.Before(cutoff) {
				recent = append(recent, href)
			}
		})

		pageURL = ""
		if next, exists := doc.Find("span.last-page > a").First().Attr("href"); exists {
			pageURL = next
			politeSleep(ctx, s.pageDelay)
		}
	}

	return recent
}

func (s *GSOScraper) scrapeDetails(ctx context.Context, link string) (domain.RawOpportunity, bool) {
	doc, err := fetchDocument(ctx, s.client, link)
	if err != nil {
		s.logger.Error("detail page failed", "link", link, "error", err)
		return domain.RawOpportunity{}, false
	}

	title := strings.TrimSpace(doc.Find("h1.entry-title").First().Text())
	if title == "" {
		s.logger.Warn("detail page missing title, skipping", "link", link)
		return domain.RawOpportunity{}, false
	}

	fullText := collapseText(doc.Find("div.entry-content").First())
	if fullText == "" {
		s.logger.Warn("detail page missing content", "link", link)
	}

	return domain.RawOpportunity{
		Link:      link,
		Title:     title,
		Source:    domain.SourceGSO,
		FullText:  fullText,
		Status:    domain.StatusPendingAnalysis,
		ScrapedAt: s.now().UTC(),
	}, true
}
