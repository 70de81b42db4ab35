package detector

import (
	"errors"
	"strings"

	"github.com/kaiven11/artical-generate/internal/types"
)

// defaultQuotaPhrases and defaultVerificationPhrases are the Chinese/English
// phrase lists the original implementation scans page text for, preserved
// verbatim since they are what the real detector site emits. DefaultConfig
// seeds Config with these, and New falls back to them when a Config leaves
// either list nil; operators may override them
// per §9 ("the exact identity of 'verification failure' is locale-specific").
var defaultQuotaPhrases = []string{
	"今日使用次数已达上限",
	"daily limit exceeded",
	"已达到每日使用限制",
	"quota exceeded",
	"使用次数已用完",
}

var defaultVerificationPhrases = []string{
	"验证失败",
	"verification failed",
	"请完成验证",
	"please verify",
	"人机验证",
	"security check",
}

// checkDailyLimitExceeded reports whether text contains a known quota
// message, returning the profile id the caller should attribute the hit to.
func checkDailyLimitExceeded(text string, currentProfileID int64, phrases []string) (bool, int64) {
	lower := strings.ToLower(text)
	for _, phrase := range phrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return true, currentProfileID
		}
	}
	return false, 0
}

// checkVerificationFailure reports whether text contains a known
// verification-challenge message. The caller tracks the consecutive-failure
// counter; this function only classifies a single page read.
func checkVerificationFailure(text string, phrases []string) (bool, int) {
	lower := strings.ToLower(text)
	for _, phrase := range phrases {
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return true, 1
		}
	}
	return false, 0
}

func isQuotaExceeded(err error) bool {
	var quotaErr *types.QuotaExceededError
	return errors.As(err, &quotaErr)
}

func isVerificationFailed(err error) bool {
	var verificationErr *types.VerificationFailedError
	return errors.As(err, &verificationErr)
}
