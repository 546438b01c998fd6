package notify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildMIME(t *testing.T) {
	msg := Message{
		Subject: "[HIGH] Contract reprocessing failed",
		Body:    "Execution e1 failed at stage erp.\nError: boom",
	}

	raw := string(buildMIME("pipeline@example.com", []string{"ops@example.com", "oncall@example.com"}, msg))

	assert.Contains(t, raw, "From: pipeline@example.com\r\n")
	assert.Contains(t, raw, "To: ops@example.com, oncall@example.com\r\n")
	assert.Contains(t, raw, "Subject: [HIGH] Contract reprocessing failed\r\n")
	assert.Contains(t, raw, "Content-Type: text/plain; charset=\"utf-8\"\r\n")

	headerEnd := strings.Index(raw, "\r\n\r\n")
	assert.Greater(t, headerEnd, 0)
	assert.Contains(t, raw[headerEnd:], "Error: boom")
}

func TestNewEmail_Options(t *testing.T) {
	ch := NewEmail("smtp.example.com", 587, "pipeline@example.com",
		[]string{"ops@example.com"}, WithSMTPAuth("user", "secret"))

	assert.Equal(t, "email", ch.Name())
	assert.Equal(t, "user", ch.username)
	assert.Equal(t, "secret", ch.password)
}
