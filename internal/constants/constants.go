package constants

// DummyAPIKey is used as a placeholder when connecting to OpenAI-compatible services
// that don't require authentication. Many services expect a token in the request
// header but don't validate it.
const DummyAPIKey = "not-needed"

// Record keys shared by every extracted record.
const (
	ContentKey = "content"
	MarkerKey  = "title_valid"
)

// Vocabulary is the language-specific set of labels the pipeline relies on.
// All of it is configuration: nothing in the comparison or reassembly logic
// depends on the concrete strings.
type Vocabulary struct {
	// SectionMarkers are the label prefixes that start a new line in
	// reassembled label text.
	SectionMarkers []string
	// NumericKeys hold nutrition values compared like content fields.
	NumericKeys []string
	// NutritionSection is the top-level key of the nutrition table record.
	NutritionSection string
	// PerHundredKey is the sub-record of NutritionSection that receives the
	// header marker.
	PerHundredKey string
	// NutritionHeaderPhrase is the column header expected in the table OCR text.
	NutritionHeaderPhrase string
}

// TraditionalChinese is the vocabulary for Taiwanese food packaging.
var TraditionalChinese = Vocabulary{
	SectionMarkers: []string{
		"品名:",
		"原料:",
		"過敏原資訊:",
		"淨重:",
		"原產地:",
		"注意事項:",
		"有效日期:",
		"工廠地址:",
		"消費者免費服務專線:",
	},
	NumericKeys:           []string{"每份", "每100公克", "每日參考值百分比"},
	NutritionSection:      "營養標示",
	PerHundredKey:         "每100公克",
	NutritionHeaderPhrase: "每份 每100公克",
}
