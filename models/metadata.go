package models

// MetadataType discriminates the typed metadata record.
type MetadataType string

const (
	MetadataRecipe  MetadataType = "recipe"
	MetadataArticle MetadataType = "article"
	MetadataProduct MetadataType = "product"
	MetadataEvent   MetadataType = "event"
	MetadataPage    MetadataType = "page"
)

// Metadata is the discriminated typed metadata record extracted per page.
// The common envelope carries fields shared by every variant; Extra carries
// the variant-specific fields. MarshalFlat renders the record as a single
// flat map with Extra folded in; encoding the struct directly with
// encoding/json nests Extra under an "extra" key.
type Metadata struct {
	Type        MetadataType `json:"type"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Author      string       `json:"author,omitempty"`
	Published   string       `json:"published,omitempty"`
	Modified    string       `json:"modified,omitempty"`
	Keywords    []string     `json:"keywords"`
	Image       string       `json:"image,omitempty"`
	SchemaType  string       `json:"schema_type,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// RecipeExtra keys, populated into Metadata.Extra for MetadataRecipe.
const (
	ExtraIngredients   = "ingredients"
	ExtraInstructions  = "instructions"
	ExtraPrepTime      = "prepTime"
	ExtraCookTime      = "cookTime"
	ExtraTotalTime     = "totalTime"
	ExtraRating        = "rating"
	ExtraRatingCount   = "rating_count"
	ExtraCategory      = "category"
	ExtraYield         = "yield"
	ExtraSubCategories = "sub_categories"

	ExtraBrand        = "brand"
	ExtraPrice        = "price"
	ExtraCurrency     = "currency"
	ExtraAvailability = "availability"

	ExtraLocation  = "location"
	ExtraStartDate = "startDate"
	ExtraEndDate   = "endDate"

	ExtraArticleSection = "articleSection"
)

// MarshalFlat renders Metadata as a flat JSON-compatible map, folding Extra
// into the top level alongside the common envelope fields.
func (m Metadata) MarshalFlat() map[string]any {
	out := map[string]any{
		"type":     string(m.Type),
		"title":    m.Title,
		"keywords": m.Keywords,
	}
	if m.Description != "" {
		out["description"] = m.Description
	}
	if m.Author != "" {
		out["author"] = m.Author
	}
	if m.Published != "" {
		out["published"] = m.Published
	}
	if m.Modified != "" {
		out["modified"] = m.Modified
	}
	if m.Image != "" {
		out["image"] = m.Image
	}
	if m.SchemaType != "" {
		out["schema_type"] = m.SchemaType
	}
	for k, v := range m.Extra {
		out[k] = v
	}
	return out
}
