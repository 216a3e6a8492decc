package soletic

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCLILoggerLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		verbose bool
		debug   bool
		want    []string
		reject  []string
	}{
		{name: "quiet", want: []string{"WARN warn", "ERROR error"}, reject: []string{"INFO", "DEBUG"}},
		{name: "verbose", verbose: true, want: []string{"INFO info", "WARN warn"}, reject: []string{"DEBUG"}},
		{name: "debug", debug: true, want: []string{"DEBUG debug", "INFO info"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var console bytes.Buffer
			logPath := filepath.Join(t.TempDir(), "logs", "soletic.log")
			logger, closer, err := NewCLILogger(LogOptions{
				Tag:      "soletic",
				Console:  &console,
				Verbose:  tt.verbose,
				Debug:    tt.debug,
				FilePath: logPath,
			})
			if err != nil {
				t.Fatalf("NewCLILogger returned error: %v", err)
			}

			logger.Debugf("debug")
			logger.Printf("info")
			logger.Warnf("warn")
			logger.Errorf("error")
			if err := closer.Close(); err != nil {
				t.Fatalf("close failed: %v", err)
			}

			out := console.String()
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Fatalf("console missing %q:\n%s", want, out)
				}
			}
			for _, reject := range tt.reject {
				if strings.Contains(out, reject) {
					t.Fatalf("console unexpectedly contains %q:\n%s", reject, out)
				}
			}
			if !strings.Contains(out, "[soletic]") {
				t.Fatalf("console missing tag:\n%s", out)
			}

			file, err := os.ReadFile(logPath)
			if err != nil {
				t.Fatalf("failed to read log file: %v", err)
			}
			if strings.Count(string(file), "\n") != 4 {
				t.Fatalf("expected every entry in the log file:\n%s", file)
			}
		})
	}
}

func TestContextLoggerDropsEntriesAfterCancel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	logger := contextLogger{ctx: ctx, Logger: NewLevelLogger("test", &buf, LevelDebug)}

	logger.Printf("before")
	cancel()
	logger.Errorf("after")

	if !strings.Contains(buf.String(), "before") || strings.Contains(buf.String(), "after") {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}
}
