package i18n

import (
	"sync"

	"golang.org/x/text/language"
)

// Translator retrieves localized message templates for keywords.
// Templates may reference keyword parameters as {name}; they are filled in
// when the error is raised.
type Translator interface {
	Message(keyword string) string
}

// dictTranslator is the built-in dictionary-based Translator.
type dictTranslator struct{ dict map[string]string }

func (t dictTranslator) Message(keyword string) string {
	if m, ok := t.dict[keyword]; ok {
		return m
	}
	if m, ok := english[keyword]; ok {
		return m
	}
	return "must pass \"" + keyword + "\" keyword validation"
}

var english = map[string]string{
	"false schema":          "boolean schema is false",
	"type":                  "must be {type}",
	"required":              "must have required property '{missingProperty}'",
	"dependentRequired":     "must have property {missingProperty} when property {property} is present",
	"minimum":               "must be {comparison} {limit}",
	"maximum":               "must be {comparison} {limit}",
	"exclusiveMinimum":      "must be {comparison} {limit}",
	"exclusiveMaximum":      "must be {comparison} {limit}",
	"multipleOf":            "must be multiple of {multipleOf}",
	"minLength":             "must NOT have fewer than {limit} characters",
	"maxLength":             "must NOT have more than {limit} characters",
	"minItems":              "must NOT have fewer than {limit} items",
	"maxItems":              "must NOT have more than {limit} items",
	"minProperties":         "must NOT have fewer than {limit} properties",
	"maxProperties":         "must NOT have more than {limit} properties",
	"minContains":           "must contain at least {minContains} valid item(s)",
	"maxContains":           "must contain at most {maxContains} valid item(s)",
	"contains":              "must contain at least {minContains} valid item(s)",
	"uniqueItems":           "must NOT have duplicate items (items ## {j} and {i} are identical)",
	"pattern":               "must match pattern \"{pattern}\"",
	"format":                "must match format \"{format}\"",
	"const":                 "must be equal to constant",
	"enum":                  "must be equal to one of the allowed values",
	"not":                   "must NOT be valid",
	"anyOf":                 "must match a schema in anyOf",
	"oneOf":                 "must match exactly one schema in oneOf",
	"if":                    "must match \"{failingKeyword}\" schema",
	"additionalProperties":  "must NOT have additional properties",
	"unevaluatedProperties": "must NOT have unevaluated properties",
	"additionalItems":       "must NOT have more than {limit} items",
	"items":                 "must NOT have more than {limit} items",
	"unevaluatedItems":      "must NOT have more than {len} items",
	"propertyNames":         "property name must be valid",
	"$data":                 "\"{keyword}\" keyword must be {expected} ($data)",
}

var japanese = map[string]string{
	"false schema":          "スキーマが false です",
	"type":                  "{type} 型である必要があります",
	"required":              "必須プロパティ '{missingProperty}' がありません",
	"dependentRequired":     "プロパティ {property} がある場合はプロパティ {missingProperty} が必要です",
	"minimum":               "{limit} {comparison} である必要があります",
	"maximum":               "{limit} {comparison} である必要があります",
	"exclusiveMinimum":      "{limit} {comparison} である必要があります",
	"exclusiveMaximum":      "{limit} {comparison} である必要があります",
	"multipleOf":            "{multipleOf} の倍数である必要があります",
	"minLength":             "{limit} 文字以上である必要があります",
	"maxLength":             "{limit} 文字以下である必要があります",
	"minItems":              "{limit} 個以上の要素が必要です",
	"maxItems":              "{limit} 個以下の要素である必要があります",
	"minProperties":         "{limit} 個以上のプロパティが必要です",
	"maxProperties":         "{limit} 個以下のプロパティである必要があります",
	"uniqueItems":           "重複した要素があります ({j} 番目と {i} 番目)",
	"pattern":               "パターン \"{pattern}\" に一致する必要があります",
	"format":                "フォーマット \"{format}\" に一致する必要があります",
	"const":                 "定数と等しい必要があります",
	"enum":                  "許可された値のいずれかである必要があります",
	"not":                   "スキーマに一致してはいけません",
	"anyOf":                 "anyOf のいずれかのスキーマに一致する必要があります",
	"oneOf":                 "oneOf のちょうど一つのスキーマに一致する必要があります",
	"additionalProperties":  "追加のプロパティは許可されていません",
	"unevaluatedProperties": "未評価のプロパティは許可されていません",
	"propertyNames":         "プロパティ名が不正です",
}

var (
	supported = []language.Tag{language.English, language.Japanese}
	matcher   = language.NewMatcher(supported)
	catalogs  = map[language.Tag]map[string]string{
		language.English:  english,
		language.Japanese: japanese,
	}
)

// For returns the built-in Translator closest to the BCP-47 tag lang.
// Unknown or malformed tags fall back to English.
func For(lang string) Translator {
	tag, _, _ := matcher.Match(language.Make(lang))
	base, _ := tag.Base()
	for t, dict := range catalogs {
		if b, _ := t.Base(); b == base {
			return dictTranslator{dict: dict}
		}
	}
	return dictTranslator{dict: english}
}

var (
	mu                           = sync.RWMutex{}
	currentTranslator Translator = dictTranslator{dict: english}
)

// SetLanguage switches the default Translator language.
func SetLanguage(lang string) {
	mu.Lock()
	defer mu.Unlock()
	currentTranslator = For(lang)
}

// SetTranslator replaces the default Translator (not limited to the
// dictionary version). nil restores English.
func SetTranslator(tr Translator) {
	mu.Lock()
	defer mu.Unlock()
	if tr == nil {
		currentTranslator = dictTranslator{dict: english}
		return
	}
	currentTranslator = tr
}

// Default returns the current default Translator.
func Default() Translator {
	mu.RLock()
	defer mu.RUnlock()
	return currentTranslator
}

// T fetches a template for keyword using the default Translator.
func T(keyword string) string { return Default().Message(keyword) }
