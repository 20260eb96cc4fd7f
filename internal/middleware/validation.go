package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	maxContentLength = 100000
	maxTitleLength   = 256
)

// ValidateMessageContent validates message content. Blank content is left
// to the conversation, which accepts it when attachments are present.
func ValidateMessageContent(content string) error {
	if len(content) > maxContentLength {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ValidateAttachmentID validates an attachment ID.
func ValidateAttachmentID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid attachment ID format")
	}
	return nil
}

// ValidateTitle validates a conversation title.
func ValidateTitle(title string) error {
	if len(title) > maxTitleLength {
		return errors.New("title exceeds maximum length")
	}
	if !utf8.ValidString(title) {
		return errors.New("title must be valid UTF-8")
	}
	return nil
}
