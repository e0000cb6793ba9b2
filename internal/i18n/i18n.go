// Package i18n renders the bridge's user-facing messages. Messages form a
// closed enumeration so a missing translation is a programming error caught
// by tests, not a silent key-miss fallback at runtime.
package i18n

import "strings"

// Locale selects a message catalog.
type Locale string

const (
	LocaleKorean  Locale = "ko"
	LocaleEnglish Locale = "en"
)

// ParseLocale maps a raw configuration value to a supported locale.
// Anything unrecognized resolves to Korean, the project default.
func ParseLocale(raw string) Locale {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "en", "en-us", "en-gb", "english":
		return LocaleEnglish
	default:
		return LocaleKorean
	}
}

// MessageID identifies one template in the catalog.
type MessageID int

const (
	MsgThinking MessageID = iota
	MsgModeSwitched
	MsgBypassBlocked
	MsgQueryTimeout
	MsgQueryFailed
	MsgTruncationNote
	MsgTaskReportTitle
	MsgTaskCompleted
	MsgTaskInProgress
	MsgTaskPending
	MsgSessionNotFound
)

// AllMessageIDs lists every defined message, for catalog completeness tests.
var AllMessageIDs = []MessageID{
	MsgThinking,
	MsgModeSwitched,
	MsgBypassBlocked,
	MsgQueryTimeout,
	MsgQueryFailed,
	MsgTruncationNote,
	MsgTaskReportTitle,
	MsgTaskCompleted,
	MsgTaskInProgress,
	MsgTaskPending,
	MsgSessionNotFound,
}

var catalogs = map[Locale]map[MessageID]string{
	LocaleKorean: {
		MsgThinking:        "생각 중...",
		MsgModeSwitched:    "권한 모드가 {mode}(으)로 변경되었습니다.",
		MsgBypassBlocked:   "bypassPermissions 모드는 현재 설정에서 허용되지 않습니다.",
		MsgQueryTimeout:    "요청이 {seconds}초 안에 완료되지 않아 중단되었습니다.",
		MsgQueryFailed:     "요청 처리 중 오류가 발생했습니다: {error}",
		MsgTruncationNote:  "\n... [{bytes}바이트 생략됨]",
		MsgTaskReportTitle: "작업 목록",
		MsgTaskCompleted:   "완료",
		MsgTaskInProgress:  "진행 중",
		MsgTaskPending:     "대기",
		MsgSessionNotFound: "세션을 찾을 수 없습니다: {id}",
	},
	LocaleEnglish: {
		MsgThinking:        "Thinking...",
		MsgModeSwitched:    "Permission mode switched to {mode}.",
		MsgBypassBlocked:   "The bypassPermissions mode is not allowed by the current configuration.",
		MsgQueryTimeout:    "The request was aborted after {seconds}s.",
		MsgQueryFailed:     "An error occurred while processing the request: {error}",
		MsgTruncationNote:  "\n... [{bytes} bytes omitted]",
		MsgTaskReportTitle: "Tasks",
		MsgTaskCompleted:   "completed",
		MsgTaskInProgress:  "in progress",
		MsgTaskPending:     "pending",
		MsgSessionNotFound: "session not found: {id}",
	},
}

// Localizer renders messages for one locale. Stateless and safe for
// concurrent use.
type Localizer struct {
	locale Locale
}

// NewLocalizer creates a localizer for the given locale.
func NewLocalizer(locale Locale) *Localizer {
	if _, ok := catalogs[locale]; !ok {
		locale = LocaleKorean
	}
	return &Localizer{locale: locale}
}

// Locale reports the active locale.
func (l *Localizer) Locale() Locale {
	return l.locale
}

// Render resolves the template for id and substitutes {name} placeholders
// from args. Placeholders without a matching arg are left intact so a
// mismatch is visible rather than silently dropped.
func (l *Localizer) Render(id MessageID, args map[string]string) string {
	template, ok := catalogs[l.locale][id]
	if !ok {
		template = catalogs[LocaleKorean][id]
	}
	if len(args) == 0 {
		return template
	}
	result := template
	for name, value := range args {
		result = strings.ReplaceAll(result, "{"+name+"}", value)
	}
	return result
}
