package engine

import (
	"fmt"
	"sort"
	"strings"
)

// Language maps a client-facing code to the backend's traineddata name.
type Language struct {
	Code      string `json:"code" yaml:"code"`
	Tesseract string `json:"tesseract" yaml:"tesseract"`
	Name      string `json:"name" yaml:"name"`
}

// Client codes follow the short codes the mobile app already sends.
var languageTable = map[string]Language{
	"ar":     {Code: "ar", Tesseract: "ara", Name: "Arabic"},
	"ch_sim": {Code: "ch_sim", Tesseract: "chi_sim", Name: "Chinese (Simplified)"},
	"ch_tra": {Code: "ch_tra", Tesseract: "chi_tra", Name: "Chinese (Traditional)"},
	"de":     {Code: "de", Tesseract: "deu", Name: "German"},
	"en":     {Code: "en", Tesseract: "eng", Name: "English"},
	"es":     {Code: "es", Tesseract: "spa", Name: "Spanish"},
	"fr":     {Code: "fr", Tesseract: "fra", Name: "French"},
	"hi":     {Code: "hi", Tesseract: "hin", Name: "Hindi"},
	"id":     {Code: "id", Tesseract: "ind", Name: "Indonesian"},
	"it":     {Code: "it", Tesseract: "ita", Name: "Italian"},
	"ja":     {Code: "ja", Tesseract: "jpn", Name: "Japanese"},
	"ko":     {Code: "ko", Tesseract: "kor", Name: "Korean"},
	"lo":     {Code: "lo", Tesseract: "lao", Name: "Lao"},
	"ms":     {Code: "ms", Tesseract: "msa", Name: "Malay"},
	"my":     {Code: "my", Tesseract: "mya", Name: "Burmese"},
	"nl":     {Code: "nl", Tesseract: "nld", Name: "Dutch"},
	"pt":     {Code: "pt", Tesseract: "por", Name: "Portuguese"},
	"ru":     {Code: "ru", Tesseract: "rus", Name: "Russian"},
	"th":     {Code: "th", Tesseract: "tha", Name: "Thai"},
	"vi":     {Code: "vi", Tesseract: "vie", Name: "Vietnamese"},
}

// DefaultLanguages is the language set loaded when nothing is configured.
var DefaultLanguages = []string{"th", "en"}

// LanguageError reports a language code that cannot be used.
type LanguageError struct {
	Code   string
	Reason string
}

func (e *LanguageError) Error() string {
	return fmt.Sprintf("language %q %s", e.Code, e.Reason)
}

// LookupLanguage returns the table entry for a client code.
func LookupLanguage(code string) (Language, bool) {
	l, ok := languageTable[strings.ToLower(strings.TrimSpace(code))]
	return l, ok
}

// SupportedLanguages lists every known language sorted by code.
func SupportedLanguages() []Language {
	out := make([]Language, 0, len(languageTable))
	for _, l := range languageTable {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// ValidateLanguages checks that every code is known, returning the
// normalized, de-duplicated list in input order.
func ValidateLanguages(codes []string) ([]string, error) {
	out := make([]string, 0, len(codes))
	seen := make(map[string]bool, len(codes))
	for _, c := range codes {
		l, ok := LookupLanguage(c)
		if !ok {
			return nil, &LanguageError{Code: c, Reason: "is not supported"}
		}
		if seen[l.Code] {
			continue
		}
		seen[l.Code] = true
		out = append(out, l.Code)
	}
	return out, nil
}

// ResolveLanguages picks the effective language list for a request.
// An empty request yields the allowed set. Otherwise every requested code
// must be known and present in allowed.
func ResolveLanguages(requested, allowed []string) ([]string, error) {
	if len(requested) == 0 {
		return append([]string(nil), allowed...), nil
	}
	codes, err := ValidateLanguages(requested)
	if err != nil {
		return nil, err
	}
	permitted := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		permitted[a] = true
	}
	for _, c := range codes {
		if !permitted[c] {
			return nil, &LanguageError{Code: c, Reason: "is not loaded on this server"}
		}
	}
	return codes, nil
}

// TesseractCodes maps client codes to traineddata names, skipping unknowns.
func TesseractCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if l, ok := LookupLanguage(c); ok {
			out = append(out, l.Tesseract)
		}
	}
	return out
}
