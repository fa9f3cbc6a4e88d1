package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/normalize"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	defaultMaxBody   = 5 << 20
	defaultUserAgent = "narwhal-structure/1.0"
)

var (
	cssRule        = regexp.MustCompile(`([^{}]+)\{([^}]*)\}`)
	outlineRemoved = regexp.MustCompile(`(?i)outline\s*:\s*(none|0(px)?)\s*(!important)?\s*(;|$)`)
	focusPseudo    = regexp.MustCompile(`(?i):focus(-visible|-within)?`)
	maxScale       = regexp.MustCompile(`(?i)maximum-scale\s*=\s*([0-9.]+)`)
)

// StructureAnalyzer fetches the page and inspects its static markup. It
// needs no external tool and is therefore always available.
type StructureAnalyzer struct {
	client    *http.Client
	userAgent string
	maxBody   int64
	log       *log.Entry
}

func NewStructure(c *http.Client, opts Options, l *log.Entry) *StructureAnalyzer {
	if c == nil {
		c = http.DefaultClient
	}
	maxBody := opts.MaxBodyBytes
	if maxBody == 0 {
		maxBody = defaultMaxBody
	}
	return &StructureAnalyzer{
		client:    c,
		userAgent: withDefault(opts.UserAgent, defaultUserAgent),
		maxBody:   maxBody,
		log:       l.WithField("tool", domain.ToolStructure),
	}
}

func (a *StructureAnalyzer) Name() domain.ToolName { return domain.ToolStructure }

func (a *StructureAnalyzer) Invoke(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.NewAdapterError(domain.ToolStructure, "build request", err)
	}
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.NewAdapterError(domain.ToolStructure, "fetch page", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domain.NewAdapterError(domain.ToolStructure, fmt.Sprintf("http status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, a.maxBody+1))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.NewAdapterError(domain.ToolStructure, "read page", err)
	}
	if int64(len(body)) > a.maxBody {
		return nil, domain.NewAdapterError(domain.ToolStructure, fmt.Sprintf("page exceeds %d bytes", a.maxBody), nil)
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewAdapterError(domain.ToolStructure, "parse page", err)
	}

	report := Inspect(doc)
	report.URL = url
	a.log.WithField("issues", len(report.Issues)).Debug("Structure inspection complete")

	payload, err := json.Marshal(report)
	if err != nil {
		return nil, domain.NewAdapterError(domain.ToolStructure, "encode report", err)
	}
	return payload, nil
}

// inspector accumulates issues while walking one document.
type inspector struct {
	ids    map[string]bool
	labels map[string]bool
	stats  map[string]int
	issues []normalize.StructureIssue
}

func (in *inspector) add(code, category, severity, message string, n *html.Node, wcag ...string) {
	is := normalize.StructureIssue{
		Code:     code,
		Category: category,
		Severity: severity,
		Message:  message,
		WCAG:     wcag,
	}
	if n != nil {
		is.Selector = selectorFor(n)
		is.Context = snippet(n)
	}
	in.issues = append(in.issues, is)
}

// Inspect runs every structural check against a parsed document.
func Inspect(doc *html.Node) normalize.StructureReport {
	in := &inspector{ids: map[string]bool{}, labels: map[string]bool{}, stats: map[string]int{}}
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		if id, ok := attr(n, "id"); ok && id != "" {
			in.ids[id] = true
		}
		if n.DataAtom == atom.Label {
			if f, ok := attr(n, "for"); ok && f != "" {
				in.labels[f] = true
			}
		}
	})

	in.checkDocument(doc)
	in.checkLandmarks(doc)
	in.checkHeadings(doc)
	walk(doc, in.checkElement)
	in.checkStyles(doc)

	return normalize.StructureReport{Issues: in.issues, Stats: in.stats}
}

func (in *inspector) checkDocument(doc *html.Node) {
	hasDoctype := false
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.DoctypeNode {
			hasDoctype = true
		}
	}
	if !hasDoctype {
		in.add("document-doctype", "document", "warning", "Document is missing DOCTYPE declaration", nil)
	}

	root := find(doc, func(n *html.Node) bool { return n.DataAtom == atom.Html })
	if lang, _ := attr(root, "lang"); strings.TrimSpace(lang) == "" {
		in.add("document-lang", "document", "error", "Document language is not specified", nil, "3.1.1")
	}

	title := find(doc, func(n *html.Node) bool { return n.DataAtom == atom.Title })
	if title == nil || strings.TrimSpace(textContent(title)) == "" {
		in.add("document-title", "document", "error", "Document does not have a title", nil, "2.4.2")
	}

	viewport := find(doc, func(n *html.Node) bool {
		name, _ := attr(n, "name")
		return n.DataAtom == atom.Meta && strings.EqualFold(name, "viewport")
	})
	if viewport == nil {
		in.add("meta-viewport-missing", "document", "warning", "No viewport meta tag found", nil, "1.4.4")
		return
	}
	content, _ := attr(viewport, "content")
	content = strings.ToLower(strings.ReplaceAll(content, " ", ""))
	zoomBlocked := strings.Contains(content, "user-scalable=no") || strings.Contains(content, "user-scalable=0")
	if m := maxScale.FindStringSubmatch(content); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v < 2 {
			zoomBlocked = true
		}
	}
	if zoomBlocked {
		in.add("meta-viewport-zoom", "document", "error", "Viewport meta tag prevents zooming", viewport, "1.4.4")
	}
}

func (in *inspector) checkLandmarks(doc *html.Node) {
	main := find(doc, func(n *html.Node) bool { return n.DataAtom == atom.Main || hasRole(n, "main") })
	if main == nil {
		in.add("landmark-main", "structure", "error", "No main landmark found", nil, "1.3.1", "2.4.1")
	}
	nav := find(doc, func(n *html.Node) bool { return n.DataAtom == atom.Nav || hasRole(n, "navigation") })
	if nav == nil {
		in.add("landmark-nav", "navigation", "warning", "No navigation landmark found", nil, "2.4.1")
	}
}

func (in *inspector) checkHeadings(doc *html.Node) {
	prev := 0
	sawH1 := false
	walk(doc, func(n *html.Node) {
		level := headingLevel(n)
		if level == 0 {
			return
		}
		in.stats["headings"]++
		if level == 1 {
			sawH1 = true
		}
		if level > prev+1 {
			in.add("heading-order", "structure", "error",
				fmt.Sprintf("Heading level h%d follows h%d", level, prev), n, "1.3.1", "2.4.6")
		}
		prev = level
		if strings.TrimSpace(accessibleText(n)) == "" {
			in.add("empty-heading", "content", "error", fmt.Sprintf("Empty h%d heading found", level), n, "1.3.1", "2.4.6")
		}
	})
	if !sawH1 {
		in.add("heading-h1", "structure", "warning", "Page has no h1 heading", nil, "1.3.1")
	}
}

func (in *inspector) checkElement(n *html.Node) {
	if n.Type != html.ElementNode || ariaHidden(n) {
		return
	}

	switch n.DataAtom {
	case atom.Img:
		in.stats["images"]++
		if _, ok := attr(n, "alt"); !ok && !hasRole(n, "presentation") && !hasRole(n, "none") && !hasAriaName(n) {
			in.add("img-alt", "images", "error", "Image is missing an alt attribute", n, "1.1.1")
		}
	case atom.Input, atom.Select, atom.Textarea:
		in.stats["form_controls"]++
		typ, _ := attr(n, "type")
		switch strings.ToLower(typ) {
		case "hidden", "submit", "button", "reset", "image":
			return
		}
		if !in.labelled(n) {
			in.add("form-label", "labels", "error", "Form control missing label or aria-label", n, "1.3.1", "3.3.2", "4.1.2")
		}
	case atom.Button:
		in.stats["buttons"]++
		if strings.TrimSpace(accessibleText(n)) == "" && !hasAriaName(n) {
			in.add("button-name", "buttons", "error", "Button has no accessible name", n, "4.1.2")
		}
	case atom.A:
		in.stats["links"]++
		href, hasHref := attr(n, "href")
		_, named := attr(n, "name")
		_, hasID := attr(n, "id")
		if !hasHref && !named && !hasID && !hasRole(n, "button") {
			in.add("link-href", "navigation", "warning", "Link has no href attribute", n, "4.1.2")
		}
		if hasHref && strings.TrimSpace(accessibleText(n)) == "" && !hasAriaName(n) {
			in.add("link-text", "content", "error", "Link has no text content", n, "2.4.4", "4.1.2")
		}
		if target := strings.TrimPrefix(href, "#"); strings.HasPrefix(href, "#") && target != "" && !in.ids[target] {
			in.add("skip-link-target", "navigation", "error",
				fmt.Sprintf("In-page link points to missing target #%s", target), n, "2.4.1")
		}
	case atom.Table:
		in.stats["tables"]++
		if hasRole(n, "presentation") || hasRole(n, "none") {
			break
		}
		if find(n, func(c *html.Node) bool { return c.DataAtom == atom.Th }) == nil {
			in.add("table-headers", "structure", "error", "Table has no headers", n, "1.3.1")
		}
		if find(n, func(c *html.Node) bool { return c.DataAtom == atom.Caption }) == nil {
			in.add("table-caption", "structure", "info", "Table has no caption", n, "1.3.1")
		}
	case atom.Iframe:
		if title, _ := attr(n, "title"); strings.TrimSpace(title) == "" && !hasAriaName(n) {
			in.add("frame-title", "structure", "error", "Frame has no title", n, "4.1.2")
		}
	}

	if v, ok := attr(n, "tabindex"); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && i > 0 {
			in.add("tabindex-positive", "keyboard", "warning", "Positive tabindex value may disrupt keyboard navigation", n, "2.1.1", "2.4.3")
		}
	}
	for _, ref := range []struct{ attr, code string }{
		{"aria-labelledby", "aria-labelledby-ref"},
		{"aria-describedby", "aria-describedby-ref"},
	} {
		v, ok := attr(n, ref.attr)
		if !ok {
			continue
		}
		for _, id := range strings.Fields(v) {
			if !in.ids[id] {
				in.add(ref.code, "references", "error",
					fmt.Sprintf("%s references non-existent ID: %s", ref.attr, id), n, "4.1.2")
			}
		}
	}
	if style, ok := attr(n, "style"); ok && focusable(n) && outlineRemoved.MatchString(style) {
		in.add("focus-outline-removed", "keyboard", "error", "Focus outline is removed by an inline style", n, "2.4.7")
	}
}

// checkStyles looks for :focus rules in embedded style sheets that remove
// the outline. The rule's own selector becomes the finding selector.
func (in *inspector) checkStyles(doc *html.Node) {
	walk(doc, func(n *html.Node) {
		if n.DataAtom != atom.Style {
			return
		}
		for _, m := range cssRule.FindAllStringSubmatch(textContent(n), -1) {
			if !outlineRemoved.MatchString(m[2]) {
				continue
			}
			for _, sel := range strings.Split(m[1], ",") {
				if !focusPseudo.MatchString(sel) {
					continue
				}
				target := strings.TrimSpace(focusPseudo.ReplaceAllString(sel, ""))
				is := normalize.StructureIssue{
					Code:     "focus-outline-removed",
					Category: "keyboard",
					Severity: "error",
					Message:  "Focus outline is removed by a style rule",
					Context:  strings.TrimSpace(sel),
					WCAG:     []string{"2.4.7"},
				}
				if target != "*" {
					is.Selector = target
				}
				in.issues = append(in.issues, is)
			}
		}
	})
}

func (in *inspector) labelled(n *html.Node) bool {
	if hasAriaName(n) {
		return true
	}
	if title, _ := attr(n, "title"); strings.TrimSpace(title) != "" {
		return true
	}
	if id, _ := attr(n, "id"); id != "" && in.labels[id] {
		return true
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if p.DataAtom == atom.Label {
			return true
		}
	}
	return false
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := find(c, match); f != nil {
			return f
		}
	}
	return nil
}

func attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func hasRole(n *html.Node, role string) bool {
	v, _ := attr(n, "role")
	for _, r := range strings.Fields(v) {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

func hasAriaName(n *html.Node) bool {
	if v, _ := attr(n, "aria-label"); strings.TrimSpace(v) != "" {
		return true
	}
	v, _ := attr(n, "aria-labelledby")
	return strings.TrimSpace(v) != ""
}

// ariaHidden reports whether n or one of its ancestors is hidden from
// assistive technology.
func ariaHidden(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if v, _ := attr(cur, "aria-hidden"); v == "true" {
			return true
		}
	}
	return false
}

func focusable(n *html.Node) bool {
	switch n.DataAtom {
	case atom.A, atom.Button, atom.Input, atom.Select, atom.Textarea, atom.Summary:
		return true
	}
	_, ok := attr(n, "tabindex")
	return ok
}

func headingLevel(n *html.Node) int {
	switch n.DataAtom {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	case atom.H6:
		return 6
	}
	return 0
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	})
	return sb.String()
}

// accessibleText is the visible text plus the alt text of contained images.
func accessibleText(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) {
		switch {
		case c.Type == html.TextNode:
			sb.WriteString(c.Data)
		case c.Type == html.ElementNode && c.DataAtom == atom.Img:
			alt, _ := attr(c, "alt")
			sb.WriteString(alt)
		}
	})
	return sb.String()
}

// selectorFor builds a CSS path from the nearest ancestor with an id down to
// n, using nth-of-type where a tag repeats among siblings.
func selectorFor(n *html.Node) string {
	var parts []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if id, ok := attr(cur, "id"); ok && id != "" && !strings.ContainsAny(id, " \t\n") {
			parts = append(parts, "#"+id)
			break
		}
		idx := 1
		for s := cur.PrevSibling; s != nil; s = s.PrevSibling {
			if s.Type == html.ElementNode && s.Data == cur.Data {
				idx++
			}
		}
		if idx > 1 {
			parts = append(parts, fmt.Sprintf("%s:nth-of-type(%d)", cur.Data, idx))
		} else {
			parts = append(parts, cur.Data)
		}
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return normalize.NormalizeSelector(strings.Join(parts, " > "))
}

func snippet(n *html.Node) string {
	var buf bytes.Buffer
	shallow := *n
	shallow.FirstChild, shallow.LastChild = nil, nil
	shallow.Parent, shallow.PrevSibling, shallow.NextSibling = nil, nil, nil
	if err := html.Render(&buf, &shallow); err != nil {
		return n.Data
	}
	s := buf.String()
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
