package gateway

import (
	"golang.org/x/text/language"
)

var supportedLocales = []language.Tag{
	language.AmericanEnglish,
	language.MustParse("vi-VN"),
}

var localeMatcher = language.NewMatcher(supportedLocales)

// negotiateLocale picks the notice locale from an Accept-Language header.
// The product audience is Vietnamese-first, but en-US stays the fallback
// for unmatched preferences.
func negotiateLocale(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return language.AmericanEnglish
	}
	tag, _, _ := localeMatcher.Match(tags...)
	return tag
}

func isVietnamese(tag language.Tag) bool {
	base, _ := tag.Base()
	return base.String() == "vi"
}

func systemLabel(tag language.Tag) string {
	if isVietnamese(tag) {
		return "hệ thống"
	}
	return "system"
}

func joinNoticeBody(tag language.Tag, counterpartName string) string {
	if isVietnamese(tag) {
		if counterpartName != "" {
			return "Bạn đã tham gia cuộc trò chuyện với " + counterpartName + "."
		}
		return "Bạn đã tham gia cuộc trò chuyện."
	}
	if counterpartName != "" {
		return "You joined the conversation with " + counterpartName + "."
	}
	return "You joined the conversation."
}
