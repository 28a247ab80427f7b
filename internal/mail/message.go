// Package mail builds multipart messages with file attachments and delivers them over SMTP or SES.
package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoRecipients is returned when a message has nowhere to go
var ErrNoRecipients = errors.New("message has no recipients")

// Sender delivers a built message
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Attachment is a named file carried by a message
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is a plain-text email with optional attachments
type Message struct {
	From        string
	To          []string
	Subject     string
	Body        string
	Attachments []Attachment
}

// AttachFile reads path and attaches it under its base name
func (m *Message) AttachFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read attachment %s: %w", path, err)
	}

	filename := filepath.Base(path)
	m.Attachments = append(m.Attachments, Attachment{
		Filename:    filename,
		ContentType: contentTypeFor(filename),
		Data:        data,
	})
	return nil
}

// report formats missing from minimal mime tables
var fallbackTypes = map[string]string{
	".csv":  "text/csv",
	".json": "application/json",
}

func contentTypeFor(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if contentType, ok := fallbackTypes[ext]; ok {
		return contentType
	}
	if contentType := mime.TypeByExtension(ext); contentType != "" {
		return contentType
	}
	return "application/octet-stream"
}

// Validate checks the fields every transport needs
func (m Message) Validate() error {
	if m.From == "" {
		return fmt.Errorf("message sender is required")
	}
	if len(m.To) == 0 {
		return ErrNoRecipients
	}
	return nil
}

// Build renders the message as multipart/mixed MIME with base64 attachments
func (m Message) Build() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	// Headers
	fmt.Fprintf(&buf, "From: %s\r\n", m.From)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(m.To, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n", writer.Boundary())
	buf.WriteString("\r\n")

	// Body
	bodyPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/plain; charset=UTF-8"},
		"Content-Transfer-Encoding": {"7bit"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create body part: %w", err)
	}
	if _, err := bodyPart.Write([]byte(m.Body + "\r\n")); err != nil {
		return nil, fmt.Errorf("failed to write body part: %w", err)
	}

	// Attachments
	for _, attachment := range m.Attachments {
		contentType := attachment.ContentType
		if contentType == "" {
			contentType = contentTypeFor(attachment.Filename)
		}

		part, err := writer.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {mime.FormatMediaType(contentType, map[string]string{"name": attachment.Filename})},
			"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": attachment.Filename})},
			"Content-Transfer-Encoding": {"base64"},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment part %s: %w", attachment.Filename, err)
		}

		encoded := base64.StdEncoding.EncodeToString(attachment.Data)
		for _, line := range chunkString(encoded, 76) {
			if _, err := part.Write([]byte(line + "\r\n")); err != nil {
				return nil, fmt.Errorf("failed to write attachment %s: %w", attachment.Filename, err)
			}
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close message: %w", err)
	}

	return buf.Bytes(), nil
}

// chunkString splits s into chunks of at most size bytes
func chunkString(s string, size int) []string {
	var chunks []string
	for i := 0; i < len(s); i += size {
		end := i + size
		if end > len(s) {
			end = len(s)
		}
		chunks = append(chunks, s[i:end])
	}
	return chunks
}
