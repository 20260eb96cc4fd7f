// Package attachment stores uploaded deal documents and describes them as
// message attachments.
package attachment

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/capitalize-ai/deal-conversations/internal/apperr"
	"github.com/capitalize-ai/deal-conversations/internal/clock"
	"github.com/capitalize-ai/deal-conversations/internal/model"
	"github.com/capitalize-ai/deal-conversations/pkg/metrics"
)

// DefaultMaxBytes bounds a single upload.
const DefaultMaxBytes = 25 << 20

// allowedTypes are the document formats accepted in a deal room. Subtypes
// (for example xlsx under zip) are accepted through their parent.
var allowedTypes = []string{
	"application/pdf",
	"application/zip",
	"application/msword",
	"application/vnd.ms-excel",
	"image/png",
	"image/jpeg",
	"image/tiff",
	"text/plain",
	"text/csv",
}

// Store persists attachment bytes.
type Store interface {
	Put(ctx context.Context, conversationID, fileName string, data []byte) (model.Attachment, error)
	Get(ctx context.Context, id string) (Object, error)
}

// Object is a stored attachment with its content.
type Object struct {
	Attachment     model.Attachment
	ConversationID string
	Sha256         string
	Data           []byte
}

// MemoryStore keeps attachments in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	objects  map[string]Object
	baseURL  string
	maxBytes int64
	clock    clock.Clock
}

// NewMemoryStore creates a store whose attachment URLs are rooted at baseURL.
func NewMemoryStore(baseURL string, maxBytes int64, clk clock.Clock) *MemoryStore {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &MemoryStore{
		objects:  make(map[string]Object),
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxBytes: maxBytes,
		clock:    clk,
	}
}

// Put validates and stores data. The file type is sniffed from the content,
// not taken from the file name.
func (s *MemoryStore) Put(ctx context.Context, conversationID, fileName string, data []byte) (model.Attachment, error) {
	if err := ctx.Err(); err != nil {
		return model.Attachment{}, err
	}
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return model.Attachment{}, apperr.Validation("file name is required")
	}
	if len(data) == 0 {
		return model.Attachment{}, apperr.Validation("file %q is empty", fileName)
	}
	if int64(len(data)) > s.maxBytes {
		return model.Attachment{}, apperr.Validation("file %q exceeds max size of %d bytes", fileName, s.maxBytes)
	}

	mt := mimetype.Detect(data)
	if !allowed(mt) {
		return model.Attachment{}, apperr.Validation("unsupported file type %s", mt.String())
	}

	id := uuid.Must(uuid.NewV7()).String()
	sum := sha256.Sum256(data)
	att := model.Attachment{
		ID:         id,
		FileName:   fileName,
		FileType:   mt.String(),
		FileSize:   int64(len(data)),
		URL:        fmt.Sprintf("%s/attachments/%s", s.baseURL, id),
		UploadedAt: s.clock.Now(),
	}

	s.mu.Lock()
	s.objects[id] = Object{
		Attachment:     att,
		ConversationID: conversationID,
		Sha256:         fmt.Sprintf("%x", sum[:]),
		Data:           append([]byte(nil), data...),
	}
	s.mu.Unlock()

	metrics.AttachmentBytesTotal.WithLabelValues(mt.String()).Add(float64(len(data)))
	return att, nil
}

// Get returns a stored attachment.
func (s *MemoryStore) Get(_ context.Context, id string) (Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[id]
	if !ok {
		return Object{}, apperr.NotFound("attachment %q not found", id)
	}
	obj.Data = append([]byte(nil), obj.Data...)
	return obj, nil
}

func allowed(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		for _, t := range allowedTypes {
			if m.Is(t) {
				return true
			}
		}
	}
	return false
}
