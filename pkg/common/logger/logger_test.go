package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogUsableWithoutInit(t *testing.T) {
	if Log == nil {
		t.Fatal("Log must be ready at package init")
	}

	var buf bytes.Buffer
	Log.SetOutput(&buf)
	Log.WithField("consultation_id", "abc").Info("rebuild failed")
	if !strings.Contains(buf.String(), "consultation_id") {
		t.Fatalf("expected structured field in output, got %q", buf.String())
	}
}
