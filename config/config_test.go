package config

import (
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{12, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := retryDelay(tt.attempt); got != tt.want {
			t.Errorf("retryDelay(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logrus.Level
	}{
		{"", logrus.ErrorLevel},
		{"debug", logrus.DebugLevel},
		{" INFO ", logrus.InfoLevel},
		{"loud", logrus.ErrorLevel},
	}
	for _, tt := range tests {
		if got := logLevel(tt.in); got != tt.want {
			t.Errorf("logLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestDatabaseDSN(t *testing.T) {
	t.Setenv("DB_USER", "dash")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_NAME", "impact")

	t.Setenv("DB_HOST", "10.0.0.5")
	t.Setenv("DB_PORT", "3306")
	if dsn := databaseDSN(); !strings.HasPrefix(dsn, "dash:pw@tcp(10.0.0.5:3306)/impact?") || !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("tcp dsn = %q", dsn)
	}

	t.Setenv("DB_HOST", "/cloudsql/proj:region:db")
	if dsn := databaseDSN(); !strings.HasPrefix(dsn, "dash:pw@unix(/cloudsql/proj:region:db)/impact?") {
		t.Errorf("unix dsn = %q", dsn)
	}
}
