package chunker

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"

	"openfeeder-sidecar/models"
)

// wordsPerChunk bounds the greedy paragraph-packing pass used by
// ChunkPlainText.
const wordsPerChunk = 500

var (
	tagRe        = regexp.MustCompile(`<[^>]*>`)
	spaceTabRe   = regexp.MustCompile(`[ \t]+`)
	manyNewlines = regexp.MustCompile(`\n{3,}`)
	paraSplitRe  = regexp.MustCompile(`\n{2,}`)
	listLineRe   = regexp.MustCompile(`^(\d+[.)]\s|[-*+]\s)`)
)

var htmlEntities = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#039;", "'",
	"&nbsp;", " ",
)

// CleanHTML strips tags, decodes the fixed entity set, and normalises
// whitespace while preserving paragraph breaks.
func CleanHTML(html string) string {
	text := tagRe.ReplaceAllString(html, " ")
	text = htmlEntities.Replace(text)
	text = spaceTabRe.ReplaceAllString(text, " ")
	text = manyNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func countWords(text string) int {
	return len(strings.Fields(text))
}

func detectPlainType(text string) models.ChunkType {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	total := len(lines)

	if total == 1 && countWords(text) < 15 {
		return models.ChunkHeading
	}

	listLines := 0
	for _, line := range lines {
		if listLineRe.MatchString(strings.TrimSpace(line)) {
			listLines++
		}
	}
	if total > 0 && float64(listLines)/float64(total) >= 0.5 {
		return models.ChunkList
	}

	return models.ChunkParagraph
}

// PlainChunk is a chunk produced by ChunkPlainText: it carries its own
// md5-derived id rather than the sha256 scheme used by the primary chunker,
// since the embedded-library adapter this variant serves has no vector
// index backing it.
type PlainChunk struct {
	ID   string
	Text string
	Type models.ChunkType
}

// ChunkPlainText implements the embedded-library adapter's chunker: strip
// tags, decode entities, greedily pack paragraphs up to wordsPerChunk words,
// and derive ids from md5(url).
func ChunkPlainText(url, html string) []PlainChunk {
	text := CleanHTML(html)
	if text == "" {
		return nil
	}

	var paragraphs []string
	for _, p := range paraSplitRe.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	if len(paragraphs) == 0 {
		return nil
	}

	var chunkTexts []string
	var current strings.Builder
	currentWords := 0

	for _, para := range paragraphs {
		paraWords := countWords(para)
		if currentWords > 0 && currentWords+paraWords > wordsPerChunk {
			chunkTexts = append(chunkTexts, current.String())
			current.Reset()
			current.WriteString(para)
			currentWords = paraWords
			continue
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
		currentWords += paraWords
	}
	if current.Len() > 0 {
		chunkTexts = append(chunkTexts, current.String())
	}

	sum := md5.Sum([]byte(url))
	prefix := hex.EncodeToString(sum[:])

	out := make([]PlainChunk, 0, len(chunkTexts))
	for i, text := range chunkTexts {
		out = append(out, PlainChunk{
			ID:   prefix + "_" + strconv.Itoa(i),
			Text: text,
			Type: detectPlainType(text),
		})
	}
	return out
}

// SummarisePlainText returns the first ~words words of cleaned HTML,
// suffixed with "..." when truncated.
func SummarisePlainText(html string, words int) string {
	text := CleanHTML(html)
	fields := strings.Fields(text)
	if len(fields) <= words {
		return text
	}
	return strings.Join(fields[:words], " ") + "..."
}
