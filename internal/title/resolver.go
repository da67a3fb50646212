// Package title fetches a web page and extracts the text of its first
// <title> element.
package title

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	tberr "titlebot/internal/errors"
)

// Result is the outcome of resolving one link: either a non-empty
// Title or a non-nil Err, never both.
type Result struct {
	URL   string
	Title string
	Err   error
}

// OK reports whether a title was found.
func (r Result) OK() bool { return r.Err == nil }

// Resolver turns a link into a page title.
type Resolver interface {
	Resolve(ctx context.Context, link string) Result
}

// HTTPResolver resolves titles with a plain HTTP GET.
type HTTPResolver struct {
	// Client defaults to http.DefaultClient when nil.
	Client *http.Client
	// Timeout bounds a single fetch.  Zero leaves the fetch unbounded
	// apart from whatever the client itself enforces.
	Timeout time.Duration
}

// NewHTTPResolver returns a resolver using the default HTTP client.
func NewHTTPResolver(timeout time.Duration) *HTTPResolver {
	return &HTTPResolver{Timeout: timeout}
}

func (r *HTTPResolver) client() *http.Client {
	if r.Client != nil {
		return r.Client
	}
	return http.DefaultClient
}

// Resolve fetches link and returns the text of its first title element.
// The status code is not inspected: an error page with a title still
// yields that title.
func (r *HTTPResolver) Resolve(ctx context.Context, link string) Result {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return fail(link, tberr.WrapResolve("fetch", link, err))
	}

	resp, err := r.client().Do(req)
	if err != nil {
		return fail(link, tberr.WrapResolve("fetch", link, err))
	}
	defer resp.Body.Close()

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return fail(link, tberr.WrapResolve("parse", link, err))
	}

	t, ok := FirstTitle(doc)
	if !ok {
		return fail(link, tberr.WrapResolve("extract", link, tberr.ErrNoTitle))
	}
	return Result{URL: link, Title: t}
}

func fail(link string, err error) Result {
	return Result{URL: link, Err: err}
}

// FirstTitle walks doc in document order and returns the text content
// of the first <title> element, verbatim.  An empty title counts as
// missing.
func FirstTitle(doc *html.Node) (string, bool) {
	n := findFirst(doc, atom.Title)
	if n == nil {
		return "", false
	}
	var sb strings.Builder
	collectText(n, &sb)
	if sb.Len() == 0 {
		return "", false
	}
	return sb.String(), true
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}
