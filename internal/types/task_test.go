package types

import "testing"

func TestStatusForStep(t *testing.T) {
	tests := []struct {
		step Step
		want Status
	}{
		{StepCreate, StatusCreating},
		{StepExtract, StatusExtracting},
		{StepTranslate, StatusTranslating},
		{StepOptimise, StatusOptimising},
		{StepPublish, StatusReady},
	}
	for _, tt := range tests {
		if got := StatusForStep(tt.step); got != tt.want {
			t.Errorf("StatusForStep(%s) = %s, want %s", tt.step, got, tt.want)
		}
	}
}

func TestErrorTypesFormatMessages(t *testing.T) {
	ve := &ValidationError{Field: "status", Reason: "bad transition"}
	if ve.Error() == "" {
		t.Error("expected non-empty ValidationError message")
	}

	le := &LoopError{LastAIProbability: 40, Threshold: 25, AttemptsUsed: 5}
	if le.Error() == "" {
		t.Error("expected non-empty LoopError message")
	}

	pe := &PipelineError{Stage: "optimise", Err: ErrLLMFailure}
	if pe.Unwrap() != ErrLLMFailure {
		t.Error("expected PipelineError to unwrap to the wrapped error")
	}
}
