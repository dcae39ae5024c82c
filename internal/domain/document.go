package domain

import "errors"

var ErrUnknownLanguage = errors.New("unknown language")

type Language string

const (
	LangJavaScript Language = "javascript"
	LangPython     Language = "python"
	LangGo         Language = "go"
	LangCPP        Language = "cpp"
	LangJava       Language = "java"
	LangHTML       Language = "html"
	LangCSS        Language = "css"

	DefaultLanguage = LangJavaScript
)

var languages = map[Language]struct{}{
	LangJavaScript: {},
	LangPython:     {},
	LangGo:         {},
	LangCPP:        {},
	LangJava:       {},
	LangHTML:       {},
	LangCSS:        {},
}

func ParseLanguage(s string) (Language, error) {
	l := Language(s)
	if _, ok := languages[l]; !ok {
		return "", ErrUnknownLanguage
	}
	return l, nil
}

// SharedDocument is replicated by whole-value replacement; the latest update wins.
type SharedDocument struct {
	Text     string   `json:"text"`
	Language Language `json:"language"`
}

func NewSharedDocument() SharedDocument {
	return SharedDocument{Language: DefaultLanguage}
}
