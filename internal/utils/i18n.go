package utils

// SupportedLocales are the languages the server has messages for.
var SupportedLocales = []string{"en", "zh"}

// Server-side messages only; form labels live in the frontend.
var translations = map[string]map[string]string{
	"en": {
		"health.ok":           "ok",
		"submission.done":     "You have made the submission for this month.",
		"submission.none":     "You have not made any submissions yet.",
		"submission.open":     "You have not made the submission for this month yet.",
		"submission.partial":  "Your reading was saved but some bills are missing. Please upload them again.",
		"estimate.incomplete": "Fill in all four usage fields to see your estimate.",
		"signup.ok":           "Account created. You can sign in now.",
		"session.signed_out":  "You have been signed out.",
	},
	"zh": {
		"health.ok":           "好的",
		"submission.done":     "您已完成本月的提交。",
		"submission.none":     "您还没有任何提交记录。",
		"submission.open":     "您尚未完成本月的提交。",
		"submission.partial":  "您的数据已保存，但部分账单未上传成功，请重新上传。",
		"estimate.incomplete": "请填写全部四项用量以查看估算结果。",
		"signup.ok":           "账户已创建，现在可以登录。",
		"session.signed_out":  "您已退出登录。",
	},
}

// T returns the translated string for key in locale; falls back to English.
func T(locale, key string) string {
	if m, ok := translations[locale]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	if v, ok := translations["en"][key]; ok {
		return v
	}
	return key
}
