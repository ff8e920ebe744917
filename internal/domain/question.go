package domain

// Language is a supported editor language tag.
type Language string

const (
	LanguageJavaScript Language = "javascript"
	LanguagePython     Language = "python"
	LanguageTypeScript Language = "typescript"
	LanguageJava       Language = "java"
	LanguageCPP        Language = "cpp"
)

// DefaultLanguage is the language a fresh room starts with.
const DefaultLanguage = LanguageJavaScript

// SupportedLanguages lists every language the editor understands.
var SupportedLanguages = []Language{
	LanguageJavaScript,
	LanguagePython,
	LanguageTypeScript,
	LanguageJava,
	LanguageCPP,
}

// Valid reports whether l is one of SupportedLanguages.
func (l Language) Valid() bool {
	for _, s := range SupportedLanguages {
		if s == l {
			return true
		}
	}
	return false
}

// Difficulty grades a question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Example is one worked input/output pair shown with a question.
type Example struct {
	Input       string `json:"input" bson:"input"`
	Output      string `json:"output" bson:"output"`
	Explanation string `json:"explanation,omitempty" bson:"explanation,omitempty"`
}

// Question is an interview problem. The server treats it as read-only.
type Question struct {
	ID          string              `json:"id" bson:"id"`
	Title       string              `json:"title" bson:"title"`
	Description string              `json:"description" bson:"description"`
	Difficulty  Difficulty          `json:"difficulty" bson:"difficulty"`
	Category    string              `json:"category" bson:"category"`
	Examples    []Example           `json:"examples" bson:"examples"`
	Constraints string              `json:"constraints,omitempty" bson:"constraints,omitempty"`
	StarterCode map[Language]string `json:"starterCode" bson:"starterCode"`
}

// StarterFor returns the starter code for lang, or "" when the question has none.
func (q *Question) StarterFor(lang Language) string {
	if q == nil || q.StarterCode == nil {
		return ""
	}
	return q.StarterCode[lang]
}
