package directory

import "strings"

type iconRule struct {
	keywords []string // all must appear
	icon     string
}

// Title rules are checked in order; the first match wins.
var chatTitleRules = []iconRule{
	{[]string{"ethereum", "core"}, "⚡"},
	{[]string{"research"}, "🔬"},
	{[]string{"defi"}, "💸"},
	{[]string{"protocol"}, "💸"},
	{[]string{"layer", "2"}, "🛣️"},
	{[]string{"nft"}, "🖼️"},
	{[]string{"governance"}, "🏛️"},
	{[]string{"dao"}, "🏛️"},
	{[]string{"security"}, "🛡️"},
	{[]string{"audit"}, "🛡️"},
	{[]string{"developer"}, "🛠️"},
	{[]string{"tool"}, "🛠️"},
	{[]string{"crypto"}, "₿"},
	{[]string{"bitcoin"}, "₿"},
	{[]string{"trading"}, "📈"},
	{[]string{"news"}, "📰"},
}

var repoNameRules = []iconRule{
	{[]string{"go-ethereum"}, "⚡"},
	{[]string{"eip"}, "📋"},
	{[]string{"consensus"}, "🔐"},
	{[]string{"solidity"}, "🔧"},
	{[]string{"security"}, "🛡️"},
	{[]string{"audit"}, "🛡️"},
}

var languageIcons = map[string]string{
	"go":         "🐹",
	"python":     "🐍",
	"javascript": "🟨",
	"typescript": "🟨",
	"rust":       "🦀",
	"c++":        "🔧",
	"markdown":   "📝",
}

func matchRules(text string, rules []iconRule) (string, bool) {
	text = strings.ToLower(text)
	for _, rule := range rules {
		matched := true
		for _, kw := range rule.keywords {
			if !strings.Contains(text, kw) {
				matched = false
				break
			}
		}
		if matched {
			return rule.icon, true
		}
	}
	return "", false
}

// ChatIcon picks an icon from the chat title, falling back to the chat type.
func ChatIcon(chatType, title string) string {
	if icon, ok := matchRules(title, chatTitleRules); ok {
		return icon
	}
	switch chatType {
	case "channel":
		return "📢"
	case "supergroup", "group":
		return "👥"
	}
	return "💬"
}

// RepoIcon picks an icon from the repository name, falling back to its
// primary language.
func RepoIcon(name, language string) string {
	if icon, ok := matchRules(name, repoNameRules); ok {
		return icon
	}
	if icon, ok := languageIcons[strings.ToLower(language)]; ok {
		return icon
	}
	return "💻"
}
