package discovery

import (
	"context"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"crmoverlay/api/internal/host"
	"crmoverlay/api/internal/store"
)

var (
	containerHints = []string{"label", "etiqueta", "etiquetas"}
	chipRoles      = map[string]struct{}{
		"button": {}, "option": {}, "tab": {}, "listitem": {}, "menuitem": {}, "menuitemcheckbox": {}, "checkbox": {},
	}
	styleColor   = regexp.MustCompile(`(?i)(?:^|;)\s*(?:fill|color|background-color|background)\s*:\s*([^;]+)`)
	timeLike     = regexp.MustCompile(`^\d{1,2}:\d{2}(\s?[ap]\.?m\.?)?$`)
	dateLike     = regexp.MustCompile(`^\d{1,2}[/.\-]\d{1,2}([/.\-]\d{2,4})?$`)
	maxChipText  = 40
	maxChipWords = 5
)

// MarkupStrategy scans the rendered page for label chips.
type MarkupStrategy struct {
	page host.Page
}

func NewMarkupStrategy(page host.Page) *MarkupStrategy {
	return &MarkupStrategy{page: page}
}

func (s *MarkupStrategy) Source() store.Source { return store.SourceMarkup }

func (s *MarkupStrategy) Discover(ctx context.Context) ([]RawCandidate, error) {
	markup, err := s.page.Markup(ctx)
	if err != nil {
		return nil, err
	}
	return ExtractChips(markup)
}

// ExtractChips finds chips inside label containers (elements whose
// aria-label, title or data-testid mentions labels) and chips carrying a
// label icon. Times, dates and sentence-length text are skipped.
func ExtractChips(markup string) ([]RawCandidate, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []RawCandidate
	add := func(chip *html.Node, iconColor string) {
		text := chipText(chip)
		if !plausibleChipText(text) {
			return
		}
		key := strings.ToLower(text)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		c := chipColor(chip)
		if c == "" {
			c = iconColor
		}
		out = append(out, RawCandidate{Name: text, Color: c, OriginalID: attr(chip, "data-id")})
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if isLabelContainer(n) {
				for _, chip := range chipsUnder(n) {
					add(chip, "")
				}
			}
			if isLabelIcon(n) {
				if chip := chipAncestor(n); chip != nil {
					add(chip, chipColor(n))
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return out, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func mentionsLabel(value string) bool {
	value = strings.ToLower(value)
	for _, hint := range containerHints {
		if strings.Contains(value, hint) {
			return true
		}
	}
	return false
}

func isLabelContainer(n *html.Node) bool {
	switch attr(n, "role") {
	case "list", "listbox", "tablist", "group", "menu", "grid", "toolbar":
	default:
		switch n.DataAtom {
		case atom.Ul, atom.Ol, atom.Div, atom.Section, atom.Nav:
		default:
			return false
		}
	}
	return mentionsLabel(attr(n, "aria-label")) || mentionsLabel(attr(n, "title")) || mentionsLabel(attr(n, "data-testid"))
}

func isLabelIcon(n *html.Node) bool {
	icon := strings.ToLower(attr(n, "data-icon"))
	return strings.HasPrefix(icon, "label") || strings.HasPrefix(icon, "etiqueta")
}

func isChip(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if _, ok := chipRoles[attr(n, "role")]; ok {
		return true
	}
	return n.DataAtom == atom.Li || n.DataAtom == atom.Button
}

// chipsUnder returns the outermost chips below container.
func chipsUnder(container *html.Node) []*html.Node {
	var chips []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if isChip(child) {
				chips = append(chips, child)
				continue
			}
			walk(child)
		}
	}
	walk(container)
	return chips
}

func chipAncestor(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if isChip(p) {
			return p
		}
	}
	return nil
}

func chipText(chip *html.Node) string {
	if label := strings.TrimSpace(attr(chip, "aria-label")); label != "" {
		return whitespaceRun.ReplaceAllString(label, " ")
	}
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(chip)
	text := whitespaceRun.ReplaceAllString(strings.TrimSpace(b.String()), " ")
	if text == "" {
		text = strings.TrimSpace(attr(chip, "title"))
	}
	return text
}

func plausibleChipText(text string) bool {
	if text == "" || len([]rune(text)) > maxChipText || len(strings.Fields(text)) > maxChipWords {
		return false
	}
	return !timeLike.MatchString(text) && !dateLike.MatchString(text)
}

// chipColor returns the first declared color in n or its descendants.
func chipColor(n *html.Node) string {
	if n.Type == html.ElementNode {
		if c := strings.TrimSpace(attr(n, "data-color")); c != "" {
			return c
		}
		if m := styleColor.FindStringSubmatch(attr(n, "style")); m != nil {
			return strings.TrimSpace(m[1])
		}
		if c := strings.TrimSpace(attr(n, "fill")); c != "" && c != "none" && c != "currentColor" {
			return c
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if c := chipColor(child); c != "" {
			return c
		}
	}
	return ""
}
