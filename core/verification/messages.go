package verification

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

const (
	msgAuthentic = "verification.authentic"
	msgPartial   = "verification.partial"
	msgMismatch  = "verification.mismatch"
)

var messages = newCatalog()

func newCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	set := func(tag language.Tag, key, msg string) {
		if err := b.SetString(tag, key, msg); err != nil {
			panic(err)
		}
	}
	set(language.English, msgAuthentic, "Document %s is authentic and valid.")
	set(language.English, msgPartial, "Document %s is authentic but its current state is %s.")
	set(language.English, msgMismatch, "The provided content does not match document %s.")
	set(language.Vietnamese, msgAuthentic, "Tài liệu %s là xác thực và hợp lệ.")
	set(language.Vietnamese, msgPartial, "Tài liệu %s là xác thực nhưng trạng thái hiện tại là %s.")
	set(language.Vietnamese, msgMismatch, "Nội dung được cung cấp không khớp với tài liệu %s.")
	return b
}

var supportedLocales = language.NewMatcher([]language.Tag{language.English, language.Vietnamese})

// printer returns a printer for the closest supported locale. A locale with
// no usable match falls back to fallback, then to English.
func printer(locale, fallback string) *message.Printer {
	tag, ok := matchLocale(locale)
	if !ok {
		tag, _ = matchLocale(fallback)
	}
	base, _ := tag.Base()
	return message.NewPrinter(language.Make(base.String()), message.Catalog(messages))
}

func matchLocale(locale string) (language.Tag, bool) {
	parsed, err := language.Parse(locale)
	if err != nil {
		return language.English, false
	}
	tag, _, confidence := supportedLocales.Match(parsed)
	return tag, confidence != language.No
}
