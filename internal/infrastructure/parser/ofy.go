package parser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"FundingScanner/internal/domain"
	"FundingScanner/internal/ports"
	"FundingScanner/internal/scraper"
)

const (
	ofyLandingURL = "https://opportunitiesforyouth.org/category/grants/"
	ofyAjaxURL    = "https://opportunitiesforyouth.org/wp-admin/admin-ajax.php"
)

var ofyNonceExpr = regexp.MustCompile(`"blog_feed_nonce":"(.*?)"`)

// OFYScraper drives the Opportunities For Youth blog feed. Listings are not
// plain pages: a security nonce is scraped from the landing page, then each
// page of entries is fetched through the theme's AJAX endpoint.
type OFYScraper struct {
	client     *http.Client
	logger     *slog.Logger
	opts       scraper.Options
	landingURL string
	ajaxURL    string
	pageDelay  time.Duration
	now        func() time.Time
}

var _ ports.OpportunitySource = (*OFYScraper)(nil)

// NewOFYScraper wires an HTTP client; a nil client gets the shared retrying one.
func NewOFYScraper(client *http.Client, opts scraper.Options, logger *slog.Logger) *OFYScraper {
	if client == nil {
		client = NewClient(30 * time.Second)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OFYScraper{
		client:     client,
		logger:     logger,
		opts:       opts,
		landingURL: ofyLandingURL,
		ajaxURL:    ofyAjaxURL,
		pageDelay:  2 * time.Second,
		now:        time.Now,
	}
}

// Name identifies the source inside the registry.
func (s *OFYScraper) Name() string {
	return "ofy"
}

// Fetch obtains a fresh nonce, lists recent postings through the AJAX feed,
// and scrapes detail pages for links not yet known.
func (s *OFYScraper) Fetch(ctx context.Context, knownLinks map[string]struct{}) ([]domain.RawOpportunity, error) {
	nonce, err := s.freshNonce(ctx)
	if err != nil {
		s.logger.Error("could not obtain feed nonce, returning no results", "error", err)
		return nil, nil
	}

	cutoff := s.now().UTC().AddDate(0, -s.opts.CutoffMonths, 0)
	recent := s.listRecentLinks(ctx, nonce, cutoff)
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

func (s *OFYScraper) freshNonce(ctx context.Context) (string, error) {
	resp, err := fetchResponse(ctx, s.client, s.landingURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("landing page returned %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read landing page: %w", err)
	}

	match := ofyNonceExpr.FindSubmatch(body)
	if match == nil {
		return "", fmt.Errorf("nonce not present on landing page")
	}
	return string(match[1]), nil
}

func (s *OFYScraper) feedPayload(nonce string, page int) url.Values {
	form := url.Values{}
	form.Set("action", "extra_blog_feed_get_content")
	form.Set("et_load_builder_modules", "1")
	form.Set("blog_feed_nonce", nonce)
	form.Set("to_page", strconv.Itoa(page))
	form.Set("posts_per_page", "12")
	form.Set("order", "desc")
	form.Set("orderby", "date")
	form.Set("categories", "5")
	form.Set("blog_feed_module_type", "masonry")
	form.Set("show_date", "1")
	form.Set("date_format", "M+j,+Y")
	form.Set("content_length", "excerpt")
	form.Set("use_tax_query", "1")
	form.Set("tax_query[0][taxonomy]", "category")
	form.Set("tax_query[0][terms][]", "grants")
	form.Set("tax_query[0][field]", "slug")
	form.Set("tax_query[0][operator]", "IN")
	form.Set("tax_query[0][include_children]", "true")
	return form
}

func (s *OFYScraper) listRecentLinks(ctx context.Context, nonce string, cutoff time.Time) []string {
	var recent []string

	for page := 1; ; page++ {
		fragment, err := s.fetchFeedPage(ctx, nonce, page)
		if err != nil {
			s.logger.Error("feed page failed, stopping pagination", "page", page, "error", err)
			break
		}
		if strings.TrimSpace(fragment) == "" {
			break
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
		if err != nil {
			s.logger.Error("feed page unparseable, stopping pagination", "page", page, "error", err)
			break
		}

		articles := doc.Find("article")
		if articles.Length() == 0 {
			break
		}

		articles.Each(func(_ int, article *goquery.Selection) {
			href, hasLink := article.Find("a.read-more-button").First().Attr("href")
			dateText := strings.TrimSpace(article.Find("span.updated").First().Text())
			if !hasLink || dateText == "" {
				return
			}

			// The feed renders dates with plus signs ("Sep+5,+2025").
			published, ok := parseAbsoluteDate(strings.ReplaceAll(dateText, "+", " "))
			if !ok {
				s.logger.Warn("unparseable feed date", "date", dateText, "link", href)
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

func (s *OFYScraper) fetchFeedPage(ctx context.Context, nonce string, page int) (string, error) {
	form := s.feedPayload(nonce, page)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.ajaxURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request feed page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("feed returned %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read feed page: %w", err)
	}
	return string(body), nil
}

func (s *OFYScraper) scrapeDetails(ctx context.Context, link string) (domain.RawOpportunity, bool) {
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
		Source:    domain.SourceOFY,
		FullText:  fullText,
		Status:    domain.StatusPendingAnalysis,
		ScrapedAt: s.now().UTC(),
	}, true
}
