package web

import (
	"net/http"

	"simpleml/internal/common"
)

// Locale holds the user-facing strings of one language. Only the interface
// is translated; column names and labels in the data are left as they are.
type Locale struct {
	Code           string
	Name           string
	Title          string
	Intro          string
	UploadLabel    string
	UploadButton   string
	PreviewHeading string
	PredictLabel   string
	OutputLabel    string
	AtRiskSummary  string // printf format: at-risk count, total
	DroppedNotice  string
	ExplainHeading string
	DownloadLabel  string
	ErrorHeading   string
	BackLink       string
	LanguageLabel  string
}

var locales = map[string]Locale{
	common.LangEnglish: {
		Code:           common.LangEnglish,
		Name:           "English",
		Title:          "SimpleML for Teachers",
		Intro:          "This app helps identify students at risk in Additional Mathematics.",
		UploadLabel:    "Upload student data (.csv):",
		UploadButton:   "Upload",
		PreviewHeading: "Data Preview",
		PredictLabel:   "Predict At-Risk Students",
		OutputLabel:    "Prediction Results",
		AtRiskSummary:  "%d of %d students flagged as at risk.",
		DroppedNotice:  "Columns ignored because they are not numeric:",
		ExplainHeading: "Model Explainability (SHAP)",
		DownloadLabel:  "Download Results",
		ErrorHeading:   "Something went wrong",
		BackLink:       "Upload another file",
		LanguageLabel:  "Language / Bahasa",
	},
	common.LangMalay: {
		Code:           common.LangMalay,
		Name:           "Bahasa Malaysia",
		Title:          "SimpleML untuk Guru",
		Intro:          "Aplikasi ini membantu mengenal pasti pelajar berisiko dalam Matematik Tambahan.",
		UploadLabel:    "Muat naik data pelajar (.csv):",
		UploadButton:   "Muat naik",
		PreviewHeading: "Pratonton Data",
		PredictLabel:   "Ramalkan Pelajar Berisiko",
		OutputLabel:    "Keputusan Ramalan",
		AtRiskSummary:  "%d daripada %d pelajar dikenal pasti berisiko.",
		DroppedNotice:  "Lajur yang diabaikan kerana bukan nombor:",
		ExplainHeading: "Kebolehjelasan Model (SHAP)",
		DownloadLabel:  "Muat turun Keputusan",
		ErrorHeading:   "Berlaku ralat",
		BackLink:       "Muat naik fail lain",
		LanguageLabel:  "Language / Bahasa",
	},
}

// localeOrder is the order of the language toggle.
var localeOrder = []string{common.LangEnglish, common.LangMalay}

// SupportedLanguage reports whether code names a locale.
func SupportedLanguage(code string) bool {
	_, ok := locales[code]
	return ok
}

// localeFor returns the locale for code, or the fallback locale.
func localeFor(code, fallback string) Locale {
	if l, ok := locales[code]; ok {
		return l
	}
	if l, ok := locales[fallback]; ok {
		return l
	}
	return locales[common.LangEnglish]
}

// requestLocale reads the "lang" query parameter.
func (s *Server) requestLocale(r *http.Request) Locale {
	return localeFor(r.URL.Query().Get("lang"), s.cfg.DefaultLang)
}
