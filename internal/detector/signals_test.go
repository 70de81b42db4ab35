package detector

import (
	"testing"

	"github.com/kaiven11/artical-generate/internal/types"
)

func TestCheckDailyLimitExceeded(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"今日使用次数已达上限，请明天再试", true},
		{"Sorry, daily limit exceeded for this account", true},
		{"Everything looks fine", false},
	}
	for _, tt := range tests {
		exceeded, profileID := checkDailyLimitExceeded(tt.text, 7, defaultQuotaPhrases)
		if exceeded != tt.want {
			t.Errorf("checkDailyLimitExceeded(%q) = %v, want %v", tt.text, exceeded, tt.want)
		}
		if exceeded && profileID != 7 {
			t.Errorf("expected the current profile id to be attributed, got %d", profileID)
		}
	}
}

func TestCheckVerificationFailure(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"验证失败，请重试", true},
		{"Please verify you are human", true},
		{"Content generated successfully", false},
	}
	for _, tt := range tests {
		failed, _ := checkVerificationFailure(tt.text, defaultVerificationPhrases)
		if failed != tt.want {
			t.Errorf("checkVerificationFailure(%q) = %v, want %v", tt.text, failed, tt.want)
		}
	}
}

func TestIsQuotaExceededAndIsVerificationFailed(t *testing.T) {
	if !isQuotaExceeded(&types.QuotaExceededError{ProfileID: 1}) {
		t.Error("expected isQuotaExceeded to recognize a QuotaExceededError")
	}
	if isQuotaExceeded(types.ErrFatal) {
		t.Error("expected isQuotaExceeded to reject an unrelated error")
	}
	if !isVerificationFailed(&types.VerificationFailedError{ConsecutiveFailures: 2}) {
		t.Error("expected isVerificationFailed to recognize a VerificationFailedError")
	}
	if isVerificationFailed(types.ErrFatal) {
		t.Error("expected isVerificationFailed to reject an unrelated error")
	}
}
