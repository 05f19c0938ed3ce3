// Package metadata implements the three-tier metadata ladder:
// JSON-LD takes priority, OpenGraph/Twitter Cards fill blanks, and a plain
// HTML fallback covers pages with no structured data at all.
package metadata

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"openfeeder-sidecar/models"
)

var isoDurationRe = regexp.MustCompile(
	`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`,
)

// ParseISODuration renders an ISO-8601 duration like "PT1H30M" as a short
// human-readable composite ("1h 30 min"). Empty input yields empty output;
// unparseable input passes through unchanged.
func ParseISODuration(raw string) string {
	if raw == "" {
		return ""
	}
	m := isoDurationRe.FindStringSubmatch(raw)
	if m == nil {
		return raw
	}
	var parts []string
	if m[1] != "" {
		parts = append(parts, m[1]+"d")
	}
	if m[2] != "" {
		parts = append(parts, m[2]+"h")
	}
	if m[3] != "" {
		parts = append(parts, m[3]+" min")
	}
	if m[4] != "" {
		parts = append(parts, m[4]+"s")
	}
	if len(parts) == 0 {
		return raw
	}
	return strings.Join(parts, " ")
}

// schemaTypePriority ranks @type values for candidate selection when more
// than one JSON-LD block is present.
var schemaTypePriority = []string{"Recipe", "NewsArticle", "Article", "BlogPosting", "Product", "Event"}

// ExtractMetadata runs the full priority ladder against raw HTML and
// returns the typed metadata record for the page at url.
func ExtractMetadata(html, url string) models.Metadata {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return models.Metadata{Type: models.MetadataPage, Keywords: []string{}}
	}

	if ld := selectJSONLD(doc); ld != nil {
		meta := mapJSONLDVariant(ld)
		fillFromOpenGraph(doc, &meta, true)
		return meta
	}

	if og := extractOpenGraph(doc); og != nil {
		return *og
	}

	return extractHTMLFallback(doc)
}

// ---------------------------------------------------------------------
// JSON-LD
// ---------------------------------------------------------------------

func selectJSONLD(doc *goquery.Document) map[string]any {
	var candidates []map[string]any

	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		typ, _ := s.Attr("type")
		if !strings.EqualFold(strings.TrimSpace(typ), "application/ld+json") {
			return
		}
		raw := s.Text()
		var parsed any
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return // malformed block: tolerate and skip
		}
		candidates = append(candidates, flattenJSONLD(parsed)...)
	})

	if len(candidates) == 0 {
		return nil
	}

	// Priority selection.
	for _, want := range schemaTypePriority {
		for _, c := range candidates {
			if matchesType(c, want) {
				return c
			}
		}
	}
	return candidates[0]
}

// flattenJSONLD flattens @graph arrays and top-level arrays into a flat
// list of candidate objects.
func flattenJSONLD(parsed any) []map[string]any {
	switch v := parsed.(type) {
	case map[string]any:
		if graph, ok := v["@graph"].([]any); ok {
			var out []map[string]any
			for _, g := range graph {
				if m, ok := g.(map[string]any); ok {
					out = append(out, m)
				}
			}
			return out
		}
		return []map[string]any{v}
	case []any:
		var out []map[string]any
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, flattenJSONLD(m)...)
			}
		}
		return out
	default:
		return nil
	}
}

func matchesType(obj map[string]any, want string) bool {
	t, ok := obj["@type"]
	if !ok {
		return false
	}
	switch v := t.(type) {
	case string:
		return v == want
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

func schemaTypeOf(obj map[string]any) string {
	switch v := obj["@type"].(type) {
	case string:
		return v
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

func mapJSONLDVariant(obj map[string]any) models.Metadata {
	schemaType := schemaTypeOf(obj)

	meta := models.Metadata{
		SchemaType: schemaType,
		Keywords:   parseKeywords(obj["keywords"]),
		Extra:      map[string]any{},
	}

	switch {
	case schemaType == "Recipe":
		meta.Type = models.MetadataRecipe
		meta.Title = stringField(obj, "name")
		meta.Description = stringField(obj, "description")
		meta.Author = normaliseAuthor(obj["author"])
		meta.Published = stringField(obj, "datePublished")
		meta.Modified = stringField(obj, "dateModified")
		meta.Image = normaliseImage(obj["image"])
		mapRecipeExtra(obj, &meta)
	case schemaType == "NewsArticle" || schemaType == "Article" || schemaType == "BlogPosting":
		meta.Type = models.MetadataArticle
		meta.Title = stringField(obj, "headline")
		if meta.Title == "" {
			meta.Title = stringField(obj, "name")
		}
		meta.Description = stringField(obj, "description")
		meta.Author = normaliseAuthor(obj["author"])
		meta.Published = stringField(obj, "datePublished")
		meta.Modified = stringField(obj, "dateModified")
		meta.Image = normaliseImage(obj["image"])
		if sec := stringField(obj, "articleSection"); sec != "" {
			meta.Extra[models.ExtraArticleSection] = sec
		}
	case schemaType == "Product":
		meta.Type = models.MetadataProduct
		meta.Title = stringField(obj, "name")
		meta.Description = stringField(obj, "description")
		meta.Image = normaliseImage(obj["image"])
		mapProductExtra(obj, &meta)
	case schemaType == "Event":
		meta.Type = models.MetadataEvent
		meta.Title = stringField(obj, "name")
		meta.Description = stringField(obj, "description")
		meta.Image = normaliseImage(obj["image"])
		mapEventExtra(obj, &meta)
	default:
		meta.Type = models.MetadataPage
		meta.Title = stringField(obj, "name")
		if meta.Title == "" {
			meta.Title = stringField(obj, "headline")
		}
		meta.Description = stringField(obj, "description")
		meta.Author = normaliseAuthor(obj["author"])
		meta.Published = stringField(obj, "datePublished")
		meta.Modified = stringField(obj, "dateModified")
		meta.Image = normaliseImage(obj["image"])
	}

	if len(meta.Extra) == 0 {
		meta.Extra = nil
	}
	return meta
}

func mapRecipeExtra(obj map[string]any, meta *models.Metadata) {
	meta.Extra[models.ExtraIngredients] = stringSliceField(obj, "recipeIngredient")
	meta.Extra[models.ExtraInstructions] = flattenInstructions(obj["recipeInstructions"])
	meta.Extra[models.ExtraPrepTime] = ParseISODuration(stringField(obj, "prepTime"))
	meta.Extra[models.ExtraCookTime] = ParseISODuration(stringField(obj, "cookTime"))
	meta.Extra[models.ExtraTotalTime] = ParseISODuration(stringField(obj, "totalTime"))
	meta.Extra[models.ExtraCategory] = stringField(obj, "recipeCategory")
	meta.Extra[models.ExtraYield] = stringField(obj, "recipeYield")

	if rating, ok := obj["aggregateRating"].(map[string]any); ok {
		meta.Extra[models.ExtraRating] = coerceString(rating["ratingValue"])
		meta.Extra[models.ExtraRatingCount] = coerceString(rating["ratingCount"])
	}
	if subs := stringSliceField(obj, "recipeSubCategories"); len(subs) > 0 {
		meta.Extra[models.ExtraSubCategories] = subs
	}
}

func mapProductExtra(obj map[string]any, meta *models.Metadata) {
	meta.Extra[models.ExtraBrand] = brandName(obj["brand"])
	if offers, ok := obj["offers"].(map[string]any); ok {
		meta.Extra[models.ExtraPrice] = coerceString(offers["price"])
		meta.Extra[models.ExtraCurrency] = stringField(offers, "priceCurrency")
		meta.Extra[models.ExtraAvailability] = stringField(offers, "availability")
	}
	if rating, ok := obj["aggregateRating"].(map[string]any); ok {
		meta.Extra[models.ExtraRating] = coerceString(rating["ratingValue"])
	}
}

func mapEventExtra(obj map[string]any, meta *models.Metadata) {
	if loc, ok := obj["location"].(map[string]any); ok {
		meta.Extra[models.ExtraLocation] = stringField(loc, "name")
	} else {
		meta.Extra[models.ExtraLocation] = stringField(obj, "location")
	}
	meta.Extra[models.ExtraStartDate] = stringField(obj, "startDate")
	meta.Extra[models.ExtraEndDate] = stringField(obj, "endDate")
}

// flattenInstructions flattens recipeInstructions into a sequence of
// strings, inserting "## <section name>" markers for HowToSection entries.
func flattenInstructions(raw any) []string {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		step, ok := item.(map[string]any)
		if !ok {
			continue
		}
		switch stringField(step, "@type") {
		case "HowToSection":
			if name := stringField(step, "name"); name != "" {
				out = append(out, "## "+name)
			}
			if sub, ok := step["itemListElement"].([]any); ok {
				for _, s := range sub {
					if sm, ok := s.(map[string]any); ok {
						if text := stringField(sm, "text"); text != "" {
							out = append(out, text)
						}
					}
				}
			}
		default:
			if text := stringField(step, "text"); text != "" {
				out = append(out, text)
			}
		}
	}
	return out
}

func brandName(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case map[string]any:
		return stringField(v, "name")
	}
	return ""
}

// coerceString renders a JSON-LD scalar as a string. Rating and price
// values appear in the wild both quoted ("4.8") and bare (4.8).
func coerceString(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func stringField(obj map[string]any, key string) string {
	if v, ok := obj[key].(string); ok {
		return v
	}
	return ""
}

func stringSliceField(obj map[string]any, key string) []string {
	raw, ok := obj[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func parseKeywords(raw any) []string {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return []string{}
		}
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}

// normaliseAuthor accepts a string, an object (use "name" then "@id"), or a
// sequence (comma-join non-empty names).
func normaliseAuthor(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case map[string]any:
		if name := stringField(v, "name"); name != "" {
			return name
		}
		return stringField(v, "@id")
	case []any:
		var names []string
		for _, item := range v {
			switch a := item.(type) {
			case string:
				if a != "" {
					names = append(names, a)
				}
			case map[string]any:
				if name := stringField(a, "name"); name != "" {
					names = append(names, name)
				}
			}
		}
		return strings.Join(names, ", ")
	default:
		return ""
	}
}

// normaliseImage keeps the first element when the source is a sequence.
func normaliseImage(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
			if m, ok := v[0].(map[string]any); ok {
				return stringField(m, "url")
			}
		}
	case map[string]any:
		return stringField(v, "url")
	}
	return ""
}

// ---------------------------------------------------------------------
// OpenGraph / Twitter Cards
// ---------------------------------------------------------------------

func extractOpenGraph(doc *goquery.Document) *models.Metadata {
	og := metaPropertyMap(doc)
	title := og["og:title"]
	if title == "" {
		title = metaNameMap(doc)["twitter:title"]
	}
	description := og["og:description"]
	if description == "" {
		description = metaNameMap(doc)["twitter:description"]
	}
	if title == "" && description == "" {
		return nil
	}

	var keywords []string
	doc.Find(`meta[property="article:tag"]`).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("content"); ok && v != "" {
			keywords = append(keywords, v)
		}
	})
	if keywords == nil {
		keywords = []string{}
	}

	meta := &models.Metadata{
		Type:        models.MetadataPage,
		Title:       title,
		Description: description,
		Author:      og["article:author"],
		Published:   og["article:published_time"],
		Modified:    og["article:modified_time"],
		Image:       og["og:image"],
		Keywords:    keywords,
	}
	return meta
}

// fillFromOpenGraph fills blanks left by a JSON-LD record from OpenGraph
// tags.
func fillFromOpenGraph(doc *goquery.Document, meta *models.Metadata, blanksOnly bool) {
	if !blanksOnly {
		return
	}
	og := metaPropertyMap(doc)
	if meta.Title == "" {
		meta.Title = og["og:title"]
	}
	if meta.Description == "" {
		meta.Description = og["og:description"]
	}
	if meta.Image == "" {
		meta.Image = og["og:image"]
	}
	if meta.Author == "" {
		meta.Author = og["article:author"]
	}
	if meta.Published == "" {
		meta.Published = og["article:published_time"]
	}
	if meta.Modified == "" {
		meta.Modified = og["article:modified_time"]
	}
}

func metaPropertyMap(doc *goquery.Document) map[string]string {
	out := map[string]string{}
	doc.Find("meta[property]").Each(func(_ int, s *goquery.Selection) {
		prop, _ := s.Attr("property")
		content, _ := s.Attr("content")
		if prop != "" && content != "" {
			if _, exists := out[prop]; !exists {
				out[prop] = content
			}
		}
	})
	return out
}

func metaNameMap(doc *goquery.Document) map[string]string {
	out := map[string]string{}
	doc.Find("meta[name]").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		content, _ := s.Attr("content")
		if name != "" && content != "" {
			if _, exists := out[name]; !exists {
				out[name] = content
			}
		}
	})
	return out
}

// ---------------------------------------------------------------------
// HTML fallback
// ---------------------------------------------------------------------

var publishedMetaKeys = []string{"article:published_time", "datePublished", "date"}

func extractHTMLFallback(doc *goquery.Document) models.Metadata {
	names := metaNameMap(doc)
	props := metaPropertyMap(doc)

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		title = h1
	}

	var published string
	for _, key := range publishedMetaKeys {
		if v := props[key]; v != "" {
			published = v
			break
		}
		if v := names[key]; v != "" {
			published = v
			break
		}
	}
	if published == "" {
		if dt, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
			published = dt
		}
	}

	return models.Metadata{
		Type:        models.MetadataPage,
		Title:       title,
		Description: names["description"],
		Author:      names["author"],
		Published:   published,
		Keywords:    parseKeywords(names["keywords"]),
	}
}
