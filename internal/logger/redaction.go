package logger

import (
	"io"
	"regexp"
)

const redactedText = "[REDACTED]"

// Redactor scrubs credentials out of log lines before they are written.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor with patterns for the credentials this
// process handles: chat bot tokens and whatever an agent CLI might echo.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// Slack bot, user and app-level tokens
			regexp.MustCompile(`xox[abposr]-[A-Za-z0-9-]{10,}`),
			regexp.MustCompile(`xapp-[A-Za-z0-9-]{10,}`),

			// Discord bot tokens
			regexp.MustCompile(`[MNO][A-Za-z0-9_-]{23,27}\.[A-Za-z0-9_-]{6}\.[A-Za-z0-9_-]{27,}`),

			// Authorization headers
			regexp.MustCompile(`(?i)(Bearer|Bot)\s+[A-Za-z0-9._-]{20,}`),

			// LLM provider keys an agent may print on failure
			regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`),
			regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`),

			// key=value style secrets
			regexp.MustCompile(`(?i)(token|secret|password)["\s:=]+[^\s",}]{8,}`),
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact replaces every match with [REDACTED].
func (r *Redactor) Redact(s string) string {
	for _, pattern := range r.patterns {
		s = pattern.ReplaceAllString(s, redactedText)
	}
	return s
}

// Wrap returns a writer that redacts before passing bytes on to w.
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, redactor: r}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so zerolog does not treat a shorter
// redacted line as a short write.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
