package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunVersion(t *testing.T) {
	// Save original values
	originalAppVersion := AppVersion
	originalBuildTime := BuildTime
	originalGitCommit := GitCommit
	defer func() {
		AppVersion = originalAppVersion
		BuildTime = originalBuildTime
		GitCommit = originalGitCommit
	}()

	tests := []struct {
		name            string
		apiKey          string
		appVersion      string
		buildTime       string
		gitCommit       string
		expectedStrings []string
	}{
		{
			name:       "with API key set",
			apiKey:     "test-key-1234567890",
			appVersion: "1.0.0",
			buildTime:  "2026-01-01T00:00:00Z",
			gitCommit:  "abc123",
			expectedStrings: []string{
				"anidex 1.0.0",
				"Build Time: 2026-01-01T00:00:00Z",
				"Git Commit: abc123",
				"GEMINI_API_KEY: test...7890 (configured)",
			},
		},
		{
			name:       "without API key",
			apiKey:     "",
			appVersion: "development",
			buildTime:  "unknown",
			gitCommit:  "unknown",
			expectedStrings: []string{
				"anidex development",
				"Build Time: unknown",
				"Git Commit: unknown",
				"GEMINI_API_KEY: Not set",
				"Hint: Please set GEMINI_API_KEY",
				"export GEMINI_API_KEY=your-api-key",
			},
		},
		{
			name:       "with short API key",
			apiKey:     "short",
			appVersion: "2.0.0-beta",
			buildTime:  "2026-06-01",
			gitCommit:  "def456",
			expectedStrings: []string{
				"anidex 2.0.0-beta",
				"GEMINI_API_KEY: configured",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GEMINI_API_KEY", tt.apiKey)
			AppVersion = tt.appVersion
			BuildTime = tt.buildTime
			GitCommit = tt.gitCommit

			var buf bytes.Buffer
			if err := runVersion(&buf); err != nil {
				t.Fatalf("runVersion() = %v", err)
			}

			output := buf.String()
			for _, want := range tt.expectedStrings {
				if !strings.Contains(output, want) {
					t.Errorf("output missing %q:\n%s", want, output)
				}
			}
		})
	}
}
