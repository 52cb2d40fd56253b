// Package browser is a lightweight fetch-based browser: an HTTP client plus a
// parsed DOM. It covers the interactions the workflow tasks need on
// server-rendered pages: navigation, reading content, following links,
// filling and submitting forms, and probing selectors. The runtime holds
// Browser and Page as opaque handles, so a driver for a real headless browser
// can be swapped in without touching the engine.
package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

// Browser owns the HTTP client shared by its pages. It lives for one workflow
// execution and is closed with the environment.
type Browser struct {
	client *resty.Client
	closed bool
}

// Launch creates a browser with the given per-request timeout.
func Launch(timeout time.Duration) *Browser {
	return &Browser{
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", "flowforge/1.0"),
	}
}

// NewPage opens a blank page on this browser.
func (b *Browser) NewPage() *Page {
	return &Page{browser: b, fields: make(map[string]string)}
}

// Close releases the browser. Pages opened on it become unusable.
func (b *Browser) Close() error {
	b.closed = true
	return nil
}

// Page is one navigation context: current URL, parsed document, and any form
// fields filled since the last navigation.
type Page struct {
	browser *Browser
	url     *url.URL
	doc     *goquery.Document
	html    string
	fields  map[string]string
}

// Goto fetches the URL and replaces the page content. Filled form fields are
// discarded, as a real navigation would.
func (p *Page) Goto(ctx context.Context, rawURL string) error {
	if p.browser.closed {
		return fmt.Errorf("browser is closed")
	}
	target, err := p.resolve(rawURL)
	if err != nil {
		return err
	}

	resp, err := p.browser.client.R().SetContext(ctx).Get(target.String())
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", target, err)
	}
	if resp.IsError() {
		return fmt.Errorf("navigation to %s failed with status code: %d", target, resp.StatusCode())
	}
	return p.load(target, string(resp.Body()))
}

func (p *Page) load(u *url.URL, html string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("error parsing page: %w", err)
	}
	p.url = u
	p.html = html
	p.doc = doc
	p.fields = make(map[string]string)
	return nil
}

// Content returns the raw HTML of the current page.
func (p *Page) Content() (string, error) {
	if p.doc == nil {
		return "", fmt.Errorf("no page loaded")
	}
	return p.html, nil
}

// URL returns the current page address, or "" before the first navigation.
func (p *Page) URL() string {
	if p.url == nil {
		return ""
	}
	return p.url.String()
}

// Has reports whether the selector matches anything on the current page.
func (p *Page) Has(selector string) (bool, error) {
	if p.doc == nil {
		return false, fmt.Errorf("no page loaded")
	}
	return p.doc.Find(selector).Length() > 0, nil
}

// Fill records a value for the input matched by the selector. The value is
// sent with the next form submission.
func (p *Page) Fill(selector, value string) error {
	if p.doc == nil {
		return fmt.Errorf("no page loaded")
	}
	el := p.doc.Find(selector).First()
	if el.Length() == 0 {
		return fmt.Errorf("element not found: %s", selector)
	}
	name, ok := el.Attr("name")
	if !ok || name == "" {
		// Fall back to the selector so the value is still submittable.
		name = selector
	}
	p.fields[name] = value
	return nil
}

// Click activates the element matched by the selector: anchors navigate to
// their href, submit controls submit their enclosing form.
func (p *Page) Click(ctx context.Context, selector string) error {
	if p.doc == nil {
		return fmt.Errorf("no page loaded")
	}
	el := p.doc.Find(selector).First()
	if el.Length() == 0 {
		return fmt.Errorf("element not found: %s", selector)
	}

	if href, ok := el.Attr("href"); ok && href != "" {
		return p.Goto(ctx, href)
	}
	if form := el.Closest("form"); form.Length() > 0 {
		return p.submit(ctx, form)
	}
	return fmt.Errorf("element is not clickable: %s", selector)
}

// submit collects the form's fields (filled values override defaults) and
// performs the GET or POST the form declares.
func (p *Page) submit(ctx context.Context, form *goquery.Selection) error {
	values := url.Values{}
	form.Find("input[name], select[name], textarea[name]").Each(func(_ int, el *goquery.Selection) {
		name, _ := el.Attr("name")
		if v, ok := p.fields[name]; ok {
			values.Set(name, v)
			return
		}
		if v, ok := el.Attr("value"); ok {
			values.Set(name, v)
		}
	})

	action, _ := form.Attr("action")
	target, err := p.resolve(action)
	if err != nil {
		return err
	}

	method, _ := form.Attr("method")
	var resp *resty.Response
	if strings.EqualFold(method, "post") {
		resp, err = p.browser.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/x-www-form-urlencoded").
			SetBody(values.Encode()).
			Post(target.String())
	} else {
		target.RawQuery = values.Encode()
		resp, err = p.browser.client.R().SetContext(ctx).Get(target.String())
	}
	if err != nil {
		return fmt.Errorf("form submission failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("form submission failed with status code: %d", resp.StatusCode())
	}
	return p.load(target, string(resp.Body()))
}

// resolve interprets raw against the current page URL.
func (p *Page) resolve(raw string) (*url.URL, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if p.url != nil {
		return p.url.ResolveReference(ref), nil
	}
	if !ref.IsAbs() {
		return nil, fmt.Errorf("relative url %q with no page loaded", raw)
	}
	return ref, nil
}
