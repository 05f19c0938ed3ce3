// Package chunker turns raw HTML into a clean, typed, chunked
// representation of a page's visible content. It strips
// boilerplate (nav, ads, sidebars), walks the remaining content tree, and
// emits ordered typed chunks suitable for embedding.
package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"openfeeder-sidecar/metadata"
	"openfeeder-sidecar/models"
)

// stripTags are removed entirely before content walking (boilerplate / noise).
var stripTags = []string{"nav", "header", "footer", "aside", "script", "style", "ins", "iframe", "noscript"}

// noiseClasses flags elements whose class/id suggests they are not content.
var noiseClasses = regexp.MustCompile(
	`(?i)(ad\b|ads\b|advert|banner|cookie|sidebar|menu|social|share|comment|popup|modal|newsletter|promo)`,
)

// maxChunkLen is the length above which a chunk is split at sentence
// boundaries.
const maxChunkLen = 1500

var sentenceSplitRe = regexp.MustCompile(`(?:[.!?])\s+`)

// ChunkHTML parses html and extracts a cleaned, typed, chunked ParsedPage
// for url.
func ChunkHTML(url, html string) models.ParsedPage {
	meta := metadata.ExtractMetadata(html, url)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return models.ParsedPage{URL: url, Language: "en", Metadata: meta}
	}

	author, published, language := extractPageMeta(doc)

	title := cleanText(doc.Find("title").First().Text())
	if h1 := cleanText(doc.Find("h1").First().Text()); h1 != "" {
		title = h1
	}

	removeNoise(doc)

	contentRoot := contentRoot(doc)

	var chunks []models.Chunk
	seen := map[string]bool{}

	contentRoot.Find("*").Each(func(_ int, s *goquery.Selection) {
		tag := goquery.NodeName(s)

		var text string
		var chunkType models.ChunkType

		switch tag {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			chunkType = models.ChunkHeading
			text = cleanText(s.Text())
		case "ul", "ol":
			chunkType = models.ChunkList
			text = cleanText(s.Text())
		case "pre", "code":
			chunkType = models.ChunkCode
			text = strings.TrimSpace(s.Text())
		case "blockquote":
			chunkType = models.ChunkQuote
			text = cleanText(s.Text())
		case "p":
			chunkType = models.ChunkParagraph
			text = cleanText(s.Text())
		default:
			return
		}

		if text == "" || len(text) < 20 || seen[text] {
			return
		}
		seen[text] = true
		chunks = append(chunks, splitLongText(text, chunkType)...)
	})

	if meta.Type == models.MetadataRecipe {
		chunks = prependRecipeChunks(chunks, meta)
	}

	for i := range chunks {
		chunks[i].Index = i
		chunks[i].URL = url
	}

	summary := buildSummary(chunks, meta, title)

	return models.ParsedPage{
		URL:       url,
		Title:     title,
		Author:    author,
		Published: published,
		Language:  language,
		Summary:   summary,
		Metadata:  meta,
		Chunks:    chunks,
	}
}

func extractPageMeta(doc *goquery.Document) (author, published, language string) {
	language = "en"
	if lang, ok := doc.Find("html").First().Attr("lang"); ok && lang != "" {
		language = lang
	}

	if v, ok := doc.Find(`meta[name="author"]`).First().Attr("content"); ok {
		author = v
	}

	for _, key := range []string{"article:published_time", "datePublished", "date"} {
		if v, ok := doc.Find(fmt.Sprintf(`meta[property="%s"]`, key)).First().Attr("content"); ok && v != "" {
			published = v
			break
		}
		if v, ok := doc.Find(fmt.Sprintf(`meta[name="%s"]`, key)).First().Attr("content"); ok && v != "" {
			published = v
			break
		}
	}
	if published == "" {
		if v, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
			published = v
		}
	}
	return author, published, language
}

func removeNoise(doc *goquery.Document) {
	for _, tag := range stripTags {
		doc.Find(tag).Remove()
	}
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		id, _ := s.Attr("id")
		role, _ := s.Attr("role")
		if noiseClasses.MatchString(class) || noiseClasses.MatchString(id) ||
			role == "navigation" || role == "banner" || role == "complementary" {
			s.Remove()
		}
	})
}

func contentRoot(doc *goquery.Document) *goquery.Selection {
	if main := doc.Find("main").First(); main.Length() > 0 {
		return main
	}
	if article := doc.Find("article").First(); article.Length() > 0 {
		return article
	}
	if body := doc.Find("body").First(); body.Length() > 0 {
		return body
	}
	return doc.Selection
}

func cleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// splitLongText splits text exceeding maxChunkLen into multiple chunks at
// sentence boundaries, greedily packing sentences.
func splitLongText(text string, chunkType models.ChunkType) []models.Chunk {
	if len(text) <= maxChunkLen {
		return []models.Chunk{{Type: chunkType, Text: text}}
	}

	sentences := splitSentences(text)
	var chunks []models.Chunk
	var current strings.Builder

	for _, sentence := range sentences {
		if current.Len() > 0 && current.Len()+len(sentence)+1 > maxChunkLen {
			chunks = append(chunks, models.Chunk{Type: chunkType, Text: strings.TrimSpace(current.String())})
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	if strings.TrimSpace(current.String()) != "" {
		chunks = append(chunks, models.Chunk{Type: chunkType, Text: strings.TrimSpace(current.String())})
	}
	return chunks
}

// splitSentences splits on ".", "!", "?" followed by whitespace, keeping the
// punctuation attached to the preceding sentence.
func splitSentences(text string) []string {
	idxs := sentenceSplitRe.FindAllStringIndex(text, -1)
	if len(idxs) == 0 {
		return []string{text}
	}
	var out []string
	last := 0
	for _, loc := range idxs {
		out = append(out, text[last:loc[0]+1])
		last = loc[1]
	}
	if last < len(text) {
		out = append(out, text[last:])
	}
	return out
}

// prependRecipeChunks inserts "ingredients" and "instructions" chunks ahead
// of the rest of the content.
func prependRecipeChunks(chunks []models.Chunk, meta models.Metadata) []models.Chunk {
	var augmented []models.Chunk

	if ingredients, ok := meta.Extra[models.ExtraIngredients].([]string); ok && len(ingredients) > 0 {
		var b strings.Builder
		b.WriteString("Ingredients:\n")
		for _, ing := range ingredients {
			b.WriteString("- " + ing + "\n")
		}
		augmented = append(augmented, models.Chunk{
			Type: models.ChunkIngredients,
			Text: strings.TrimRight(b.String(), "\n"),
		})
	}

	if instructions, ok := meta.Extra[models.ExtraInstructions].([]string); ok && len(instructions) > 0 {
		var b strings.Builder
		b.WriteString("Instructions:\n")
		step := 1
		for _, line := range instructions {
			if strings.HasPrefix(line, "## ") {
				b.WriteString(line + "\n")
				continue
			}
			b.WriteString(fmt.Sprintf("%d. %s\n", step, line))
			step++
		}
		augmented = append(augmented, models.Chunk{
			Type: models.ChunkInstructions,
			Text: strings.TrimRight(b.String(), "\n"),
		})
	}

	return append(augmented, chunks...)
}

// buildSummary concatenates paragraph chunks until the total length exceeds
// 300 characters, truncated to 500; falls back to the metadata description,
// then the title, if there are no paragraph chunks.
func buildSummary(chunks []models.Chunk, meta models.Metadata, title string) string {
	var parts []string
	total := 0
	for _, c := range chunks {
		if c.Type != models.ChunkParagraph {
			continue
		}
		parts = append(parts, c.Text)
		total += len(c.Text)
		if total > 300 {
			break
		}
	}
	if len(parts) == 0 {
		if meta.Description != "" {
			return meta.Description
		}
		return title
	}
	summary := strings.Join(parts, " ")
	if len(summary) > 500 {
		summary = summary[:500]
	}
	return summary
}
