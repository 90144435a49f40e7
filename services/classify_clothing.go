package services

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ClothingClassification is what the vision model returns for a garment photo.
type ClothingClassification struct {
	Name                string `json:"name"`
	Description         string `json:"description"`
	Category            string `json:"category"`
	BodyRegion          string `json:"body_region"`
	LayerOrder          int    `json:"layer_order"`
	WearingInstructions string `json:"wearing_instructions"`
}

var shoeKeywords = []string{"shoe", "sneaker", "boot", "heel", "sandal", "loafer", "slipper", "trainer", "footwear"}
var lowerBodyKeywords = []string{"pant", "trouser", "jean", "skirt", "short", "legging", "chino", "culotte"}
var upperBodyKeywords = []string{"shirt", "t-shirt", "tee", "blouse", "top", "sweater", "hoodie", "jacket", "coat", "cardigan", "blazer", "vest", "polo", "tank"}
var fullBodyKeywords = []string{"dress", "gown", "jumpsuit", "romper", "overall", "suit", "bodysuit", "onesie"}
var accessoryKeywords = []string{"hat", "cap", "scarf", "belt", "bag", "glove", "sock", "tie", "necklace", "bracelet", "watch", "sunglass", "earring", "beanie"}

const (
	CategoryUpperBody   = "UPPER_BODY"
	CategoryLowerBody   = "LOWER_BODY"
	CategoryFullBody    = "FULL_BODY"
	CategoryShoes       = "SHOES"
	CategoryAccessories = "ACCESSORIES"
)

var canonicalCategories = map[string]bool{
	CategoryUpperBody:   true,
	CategoryLowerBody:   true,
	CategoryFullBody:    true,
	CategoryShoes:       true,
	CategoryAccessories: true,
}

// NormalizeClothingCategory maps a free-form model- or user-supplied category
// into one of the canonical slots. The raw value wins when it already is
// canonical (any case). Otherwise the category text, then the filename, are
// scanned for garment keywords. Unknown input defaults to UPPER_BODY.
func NormalizeClothingCategory(rawCategory string, fileName string) string {
	canonical := strings.ToUpper(strings.TrimSpace(rawCategory))
	canonical = strings.ReplaceAll(canonical, " ", "_")
	canonical = strings.ReplaceAll(canonical, "-", "_")
	if canonicalCategories[canonical] {
		return canonical
	}

	for _, text := range []string{strings.ToLower(rawCategory), strings.ToLower(fileName)} {
		if text == "" {
			continue
		}
		switch {
		case containsAny(text, fullBodyKeywords):
			return CategoryFullBody
		case containsAny(text, shoeKeywords):
			return CategoryShoes
		case containsAny(text, lowerBodyKeywords):
			return CategoryLowerBody
		case containsAny(text, accessoryKeywords):
			return CategoryAccessories
		case containsAny(text, upperBodyKeywords):
			return CategoryUpperBody
		}
	}
	return CategoryUpperBody
}

// BodyRegionForCategory derives the coarse body slot a garment occupies.
func BodyRegionForCategory(category string) string {
	switch category {
	case CategoryShoes:
		return "feet"
	case CategoryLowerBody:
		return "lower"
	case CategoryFullBody:
		return "full"
	case CategoryAccessories:
		return "accessory"
	default:
		return "upper"
	}
}

var labelCaser = cases.Title(language.English)

// LabelFromFileName turns an uploaded file name into a presentable garment
// label, e.g. "blue-denim_jacket.jpg" -> "Blue Denim Jacket".
func LabelFromFileName(fileName string) string {
	base := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	base = strings.NewReplacer("-", " ", "_", " ", ".", " ").Replace(base)
	base = strings.Join(strings.Fields(base), " ")
	if base == "" {
		return ""
	}
	return labelCaser.String(base)
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

// DefaultLayerOrder gives a sane stacking position when the classifier did
// not provide one. Base garments render under outerwear.
func DefaultLayerOrder(category string) int {
	switch category {
	case CategoryShoes:
		return 0
	case CategoryLowerBody, CategoryFullBody:
		return 1
	case CategoryUpperBody:
		return 2
	case CategoryAccessories:
		return 3
	default:
		return 2
	}
}

// ParseClothingClassification unmarshals the classifier's JSON answer and
// normalizes its category. The raw JSON is preserved by callers for storage.
func ParseClothingClassification(responseText string, fileName string) (*ClothingClassification, error) {
	cleaned := StripCodeFences(responseText)
	var classification ClothingClassification
	if err := json.Unmarshal([]byte(cleaned), &classification); err != nil {
		return nil, fmt.Errorf("failed to parse classification response: %v", err)
	}
	classification.Category = NormalizeClothingCategory(classification.Category, fileName)
	if classification.LayerOrder == 0 {
		classification.LayerOrder = DefaultLayerOrder(classification.Category)
	}
	if classification.BodyRegion == "" {
		classification.BodyRegion = BodyRegionForCategory(classification.Category)
	}
	if classification.Name == "" {
		classification.Name = LabelFromFileName(fileName)
	}
	if classification.Name == "" {
		classification.Name = "Unknown item"
	}
	return &classification, nil
}
