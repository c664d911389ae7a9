package recorder

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// defaultContentType is used when the recorder did not report a type.
const defaultContentType = "video/webm"

// Artifact is a finalized recording ready for download.
type Artifact struct {
	ID        uuid.UUID `json:"id"`
	Filename  string    `json:"filename"`
	MimeType  string    `json:"mime_type"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`

	data []byte
}

// NewArtifact concatenates chunks in order. It returns nil when there is nothing to save.
func NewArtifact(chunks [][]byte, mimeType string, now time.Time) *Artifact {
	var buf bytes.Buffer
	for _, c := range chunks {
		buf.Write(c)
	}
	if buf.Len() == 0 {
		return nil
	}
	if mimeType == "" {
		mimeType = defaultContentType
	}
	return &Artifact{
		ID:        uuid.New(),
		Filename:  fmt.Sprintf("stream-recording-%d.%s", now.UnixMilli(), Extension(mimeType)),
		MimeType:  mimeType,
		Size:      buf.Len(),
		CreatedAt: now,
		data:      buf.Bytes(),
	}
}

// Bytes returns the artifact content. Callers must not modify it.
func (a *Artifact) Bytes() []byte { return a.data }

// Reader returns a fresh reader over the content.
func (a *Artifact) Reader() *bytes.Reader { return bytes.NewReader(a.data) }
