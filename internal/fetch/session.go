package fetch

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Bootstrap describes the optional session bootstrap: one GET against the
// vendor dashboard before any API call, to pick up the anti-CSRF token the
// dashboard embeds in its HTML and whatever session cookies the response
// sets. The cookies land in the client's jar automatically; the token is
// promoted to a request header.
type Bootstrap struct {
	// URL of the dashboard page. Relative URLs resolve against the base URL.
	URL string

	// TokenSelector locates the token element. Empty means the common
	// `meta[name="csrf-token"]` pattern.
	TokenSelector string

	// TokenHeader is the header the token is sent under on API calls.
	// Empty means "X-Csrf-Token".
	TokenHeader string
}

// BootstrapSession fetches the dashboard page and installs the scraped token
// as a default header on the client.
//
// Errors:
//   - transport/status errors from the page fetch
//   - unparseable HTML
//   - a page that matches no token element, which almost always means the
//     session cookies have expired and the vendor served the login page.
func (c *Client) BootstrapSession(ctx context.Context, b Bootstrap) error {
	u, err := c.resolveURL(b.URL)
	if err != nil {
		return err
	}

	resp, err := c.rc.R().SetContext(ctx).Get(u)
	if err != nil {
		return fmt.Errorf("bootstrap %s: %w", u, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("bootstrap %s: status %d", u, resp.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return fmt.Errorf("bootstrap %s: parse html: %w", u, err)
	}

	selector := b.TokenSelector
	if selector == "" {
		selector = `meta[name="csrf-token"]`
	}

	token := extractToken(doc, selector)
	if token == "" {
		return fmt.Errorf("bootstrap %s: no token matched %q (session expired?)", u, selector)
	}

	header := b.TokenHeader
	if header == "" {
		header = "X-Csrf-Token"
	}
	c.rc.SetHeader(header, token)
	return nil
}

// extractToken reads the token from the first matching element, preferring
// the attribute forms (`content` for meta tags, `value` for hidden inputs)
// over element text.
func extractToken(doc *goquery.Document, selector string) string {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return ""
	}
	if v, ok := sel.Attr("content"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if v, ok := sel.Attr("value"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(sel.Text())
}
