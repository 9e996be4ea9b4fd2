package entity

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/jobwatch/constants"
)

// TaskHandle is the opaque identifier returned by a submission. It only has
// meaning for the polling session that follows that submission.
type TaskHandle string

func (h TaskHandle) String() string { return string(h) }

// FilePart is one document attached to a submission.
// Content wins over Path when both are set.
type FilePart struct {
	Field    string `json:"field"`
	Filename string `json:"filename"`
	Path     string `json:"path,omitempty"`
	Content  []byte `json:"-"`
}

// Open returns a reader over the part's bytes.
func (f FilePart) Open() (io.ReadCloser, error) {
	if f.Content != nil {
		return io.NopCloser(bytes.NewReader(f.Content)), nil
	}
	return os.Open(f.Path)
}

// Size reports the part's length in bytes.
func (f FilePart) Size() (int64, error) {
	if f.Content != nil {
		return int64(len(f.Content)), nil
	}
	st, err := os.Stat(f.Path)
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

// Name returns Filename, falling back to the base of Path.
func (f FilePart) Name() string {
	if f.Filename != "" {
		return f.Filename
	}
	return filepath.Base(f.Path)
}

// JobInput is what gets submitted: the queue endpoint plus a multipart body.
type JobInput struct {
	Kind   constants.JobKind `json:"kind"`
	Files  []FilePart        `json:"files,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Source describes the input for logs and journal rows.
func (in JobInput) Source() string {
	if len(in.Files) > 0 {
		return in.Files[0].Name()
	}
	return string(in.Kind)
}
