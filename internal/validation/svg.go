// svg.go strips scriptable constructs from SVG icons before they are stored.
//
// This is a textual, best-effort filter built on regular expressions, not an XML-aware
// sanitizer. Its output is a fixed point: every pass only removes text, and passes repeat until
// nothing changes, so SanitizeSVG(SanitizeSVG(b)) == SanitizeSVG(b) for any b.
package validation

import (
	"regexp"
	"strings"
)

type svgPass func(string) string

func removeAll(re *regexp.Regexp) svgPass {
	return func(s string) string { return re.ReplaceAllString(s, "") }
}

// removeIf drops every match for which drop returns true.
func removeIf(re *regexp.Regexp, drop func(match string) bool) svgPass {
	return func(s string) string {
		return re.ReplaceAllStringFunc(s, func(m string) string {
			if drop(m) {
				return ""
			}
			return m
		})
	}
}

// elementPasses removes a whole element: paired form, self-closing form, then any
// dangling open or close tag left behind by malformed markup.
func elementPasses(tag string) []svgPass {
	return []svgPass{
		removeAll(regexp.MustCompile(`(?is)<` + tag + `\b[^>]*/>`)),
		removeAll(regexp.MustCompile(`(?is)<` + tag + `\b[^>]*>.*?</` + tag + `\s*>`)),
		removeAll(regexp.MustCompile(`(?is)</?` + tag + `\b[^>]*>`)),
	}
}

// animationPasses removes <set>/<animate> elements that carry an on* attribute. The
// self-closing form goes first so the paired form cannot swallow a sibling's close tag.
func animationPasses(tag string) []svgPass {
	withHandler := `<` + tag + `\b[^>]*[\s/]on[a-z]+\s*=[^>]*`
	return []svgPass{
		removeAll(regexp.MustCompile(`(?is)` + withHandler + `/>`)),
		removeAll(regexp.MustCompile(`(?is)` + withHandler + `>.*?</` + tag + `\s*>`)),
		removeAll(regexp.MustCompile(`(?is)` + withHandler + `>`)),
	}
}

// Attributes may be separated by a slash as well as whitespace (<svg/onload=...>).
var (
	quotedHandlerRe   = regexp.MustCompile(`(?i)[\s/]+on[a-z]+\s*=\s*("[^"]*"|'[^']*')`)
	unquotedHandlerRe = regexp.MustCompile(`(?i)[\s/]+on[a-z]+\s*=\s*[^\s>"']+`)

	hrefAttrRe = regexp.MustCompile(`(?i)[\s/]+(?:xlink:)?href\s*=\s*("[^"]*"|'[^']*'|[^\s>"']+)`)
	hrefValRe  = regexp.MustCompile(`(?i)(?:xlink:)?href\s*=\s*("[^"]*"|'[^']*'|[^\s>"']+)`)

	useSelfClosingRe = regexp.MustCompile(`(?is)<use\b[^>]*/>`)
	usePairedRe      = regexp.MustCompile(`(?is)<use\b[^>]*>.*?</use\s*>`)
	useOpenRe        = regexp.MustCompile(`(?is)<use\b[^>]*>`)
)

var svgPasses = buildSVGPasses()

func buildSVGPasses() []svgPass {
	var passes []svgPass
	passes = append(passes, elementPasses("script")...)
	passes = append(passes, elementPasses("foreignObject")...)
	for _, tag := range []string{"iframe", "embed", "object"} {
		passes = append(passes, elementPasses(tag)...)
	}
	// Animation elements are matched by their handler, so they must go before handlers are stripped.
	passes = append(passes, animationPasses("set")...)
	passes = append(passes, animationPasses("animate")...)
	passes = append(passes,
		removeAll(quotedHandlerRe),
		removeAll(unquotedHandlerRe),
		removeIf(hrefAttrRe, func(m string) bool {
			return dangerousURL(attrValue(hrefAttrRe, m))
		}),
		removeIf(useSelfClosingRe, externalUse),
		removeIf(usePairedRe, externalUse),
		removeIf(useOpenRe, externalUse),
	)
	return passes
}

// SanitizeSVG removes script elements, event handler attributes, javascript:/vbscript: and
// non-image data: links, foreignObject blocks, external <use> references, embedded
// iframe/embed/object elements, and set/animate elements carrying handlers.
func SanitizeSVG(b []byte) []byte {
	s := string(b)
	for {
		next := s
		for _, pass := range svgPasses {
			next = pass(next)
		}
		if next == s {
			return []byte(s)
		}
		s = next
	}
}

func attrValue(re *regexp.Regexp, m string) string {
	sub := re.FindStringSubmatch(m)
	if len(sub) < 2 {
		return ""
	}
	return strings.Trim(sub[1], `"'`)
}

// dangerousURL normalises whitespace and case before matching the scheme, since browsers
// ignore embedded tabs and newlines in "java\tscript:".
func dangerousURL(v string) bool {
	v = strings.Map(func(r rune) rune {
		if r <= ' ' {
			return -1
		}
		return r
	}, strings.ToLower(v))

	switch {
	case strings.HasPrefix(v, "javascript:"), strings.HasPrefix(v, "vbscript:"):
		return true
	case strings.HasPrefix(v, "data:"):
		return !strings.HasPrefix(v, "data:image/")
	}
	return false
}

// externalUse reports whether a <use> element references anything but a local fragment.
func externalUse(m string) bool {
	open := m
	if i := strings.Index(m, ">"); i >= 0 {
		open = m[:i+1]
	}
	for _, sub := range hrefValRe.FindAllStringSubmatch(open, -1) {
		if !strings.HasPrefix(strings.TrimSpace(strings.Trim(sub[1], `"'`)), "#") {
			return true
		}
	}
	return false
}
