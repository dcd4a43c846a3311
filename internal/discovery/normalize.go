package discovery

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"time"
	"unicode"

	"crmoverlay/api/internal/color"
	"crmoverlay/api/internal/store"
)

// Palette is the host's label color table, indexed by the colorIndex some
// host versions store instead of a color.
var Palette = []string{
	"#ff9485", "#64c4ff", "#ffd429", "#dfaef0", "#99b6c1",
	"#55ccb3", "#ff9dff", "#d3a91d", "#6d7cce", "#d7e752",
	"#00d0e2", "#ffc5c7", "#93ceac", "#f74848", "#00a0f2",
	"#83e422", "#ffaf04", "#b5ebff", "#9ba6ff", "#9368cf",
}

const maxNameLength = 64

var (
	unitCounterSuffix  = regexp.MustCompile(`(?i)\s*[·•\-–]?\s*\(?\d+\s+(items?|chats?|contacts?|conversations?|messages?|elementos?|itens|conversas|contatos|contactos|mensajes|mensagens)\)?$`)
	parenCounterSuffix = regexp.MustCompile(`\s*\(\d+\)$`)
	dotCounterSuffix   = regexp.MustCompile(`\s*[·•]\s*\d+$`)
	numericOnly        = regexp.MustCompile(`^[\d\s.,:;/+\-()#%]+$`)
	whitespaceRun      = regexp.MustCompile(`\s+`)
)

// blockList holds UI words that show up where label names would: menu
// entries, headings and filter chips of the host itself.
var blockList = map[string]struct{}{
	"label": {}, "labels": {}, "etiqueta": {}, "etiquetas": {},
	"new label": {}, "add label": {}, "edit label": {}, "manage labels": {},
	"nova etiqueta": {}, "nueva etiqueta": {}, "adicionar etiqueta": {},
	"all": {}, "todos": {}, "todas": {}, "unread": {}, "não lidas": {}, "no leídos": {},
	"groups": {}, "grupos": {}, "favorites": {}, "favoritos": {},
	"chats": {}, "contacts": {}, "contatos": {}, "contactos": {},
	"archived": {}, "arquivadas": {}, "archivados": {},
	"search": {}, "pesquisar": {}, "buscar": {}, "menu": {}, "more": {},
	"settings": {}, "configurações": {}, "close": {}, "back": {}, "cancel": {},
	"undefined": {}, "null": {}, "[object object]": {},
}

// CleanName trims, strips control characters and counter suffixes such as
// "(3)" or "· 12 chats", and collapses whitespace. The result is "" when the
// name is not plausible: block-listed, numeric-only or too long.
func CleanName(raw string) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, raw)
	name = whitespaceRun.ReplaceAllString(strings.TrimSpace(name), " ")
	for {
		before := name
		name = unitCounterSuffix.ReplaceAllString(name, "")
		name = parenCounterSuffix.ReplaceAllString(name, "")
		name = dotCounterSuffix.ReplaceAllString(name, "")
		name = strings.TrimSpace(name)
		if name == before {
			break
		}
	}
	if name == "" || len([]rune(name)) > maxNameLength || numericOnly.MatchString(name) {
		return ""
	}
	if _, blocked := blockList[strings.ToLower(name)]; blocked {
		return ""
	}
	return name
}

// LabelID derives the stable label id from a cleaned name so that the same
// label keeps its id whichever strategy found it. Names made only of letters,
// digits and single spaces map to a plain slug. Any other name, such as "C++"
// or an emoji, also gets "_" and a hash of its lower-cased form.
func LabelID(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	dash, lossless := false, true
	for _, r := range key {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if r != ' ' || dash || b.Len() == 0 {
			lossless = false
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if dash {
		lossless = false
	}
	if lossless && slug != "" {
		return "lbl_" + slug
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return fmt.Sprintf("lbl_%s_%08x", slug, h.Sum32())
}

func paletteColor(index *int) string {
	if index == nil || *index < 0 || *index >= len(Palette) {
		return ""
	}
	return Palette[*index]
}

// normalizeCandidate turns a raw candidate into a Label, or reports false when
// the name is not plausible.
func normalizeCandidate(ctx context.Context, raw RawCandidate, source store.Source, resolver color.Resolver, now time.Time) (store.Label, bool) {
	name := CleanName(raw.Name)
	if name == "" {
		return store.Label{}, false
	}
	rawColor := raw.Color
	if strings.TrimSpace(rawColor) == "" {
		rawColor = paletteColor(raw.ColorIndex)
	}
	return store.Label{
		ID:         LabelID(name),
		Name:       name,
		Color:      color.Normalize(ctx, rawColor, resolver),
		Source:     source,
		OriginalID: strings.TrimSpace(raw.OriginalID),
		CreatedAt:  now,
	}, true
}
