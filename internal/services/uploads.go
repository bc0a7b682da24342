package services

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MaxUploadSize bounds avatar, logo and reference image uploads.
const MaxUploadSize = 10 * 1024 * 1024

var imageFormats = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpeg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// UploadStore keeps uploaded images on disk and serves them under
// publicURL + "/uploads/".
type UploadStore struct {
	dir       string
	publicURL string
}

func NewUploadStore(dir, publicURL string) (*UploadStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &UploadStore{dir: dir, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

func (s *UploadStore) Dir() string {
	return s.dir
}

// SaveImage stores an image owned by owner and returns its public URL.
// Anything that does not sniff as a supported image is rejected.
func (s *UploadStore) SaveImage(owner uuid.UUID, r io.Reader) (string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		if err == io.EOF {
			return "", &ValidationError{Fields: map[string]string{"file": "File is empty"}}
		}
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]

	format, ok := imageFormats[http.DetectContentType(head)]
	if !ok {
		return "", &ValidationError{Fields: map[string]string{"file": "File type not supported"}}
	}

	name := owner.String() + "-" + uuid.NewString() + "." + format
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create upload: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, io.MultiReader(bytes.NewReader(head), r)); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write upload: %w", err)
	}

	return s.publicURL + "/uploads/" + name, nil
}

// Load returns the bytes and format of an image this store handed out.
func (s *UploadStore) Load(url string) ([]byte, string, bool) {
	prefix := s.publicURL + "/uploads/"
	if !strings.HasPrefix(url, prefix) {
		return nil, "", false
	}

	name := filepath.Base(strings.TrimPrefix(url, prefix))
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, "", false
	}

	format, ok := imageFormats[http.DetectContentType(data)]
	if !ok {
		return nil, "", false
	}
	return data, format, true
}
