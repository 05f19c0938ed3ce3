package chunker

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openfeeder-sidecar/models"
)

func TestCleanHTMLStripsTagsAndDecodesEntities(t *testing.T) {
	html := `<p>Fish &amp; chips &nbsp;&mdash; &quot;the best&#039;s&quot;</p>`
	out := CleanHTML(html)
	assert.Equal(t, `Fish & chips &mdash; "the best's"`, out)
}

func TestDetectPlainType(t *testing.T) {
	assert.Equal(t, models.ChunkHeading, detectPlainType("Short Title"))
	assert.Equal(t, models.ChunkList, detectPlainType("1. one\n2. two\n3. three"))
	assert.Equal(t, models.ChunkParagraph, detectPlainType(
		"This is a long paragraph with many words that should not be classified as a heading or a list at all."))
}

func TestChunkPlainTextPacksParagraphs(t *testing.T) {
	para := strings.Repeat("word ", 300)
	html := "<p>" + para + "</p>\n\n<p>" + para + "</p>\n\n<p>" + para + "</p>"

	chunks := ChunkPlainText("https://example.com/a", html)
	require.GreaterOrEqual(t, len(chunks), 2)
	prefix := strings.SplitN(chunks[0].ID, "_", 2)[0]
	for i, c := range chunks {
		assert.Equal(t, prefix+"_"+strconv.Itoa(i), c.ID)
	}
}

func TestChunkPlainTextIDsAreDeterministic(t *testing.T) {
	html := "<p>Hello world, this is a test paragraph.</p>"
	a := ChunkPlainText("https://example.com/x", html)
	b := ChunkPlainText("https://example.com/x", html)
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0].ID, b[0].ID)
}

func TestSummarisePlainTextTruncates(t *testing.T) {
	html := "<p>" + strings.Repeat("word ", 100) + "</p>"
	summary := SummarisePlainText(html, 40)
	assert.True(t, strings.HasSuffix(summary, "..."))
	assert.Len(t, strings.Fields(strings.TrimSuffix(summary, "...")), 40)
}
