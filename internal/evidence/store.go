package evidence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/storage/gcs"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const sniffBytes = 3072

var (
	ErrVideoRequired = pkgerrors.New(pkgerrors.CodeValidation, "video file is required")
	ErrVideoTooLarge = pkgerrors.New(pkgerrors.CodeValidation, "video exceeds the maximum upload size")
	ErrNotAVideo     = pkgerrors.New(pkgerrors.CodeValidation, "uploaded file is not a video")
)

// VideoUpload is an evidence file streamed from the client.
type VideoUpload struct {
	FileName  string
	SizeBytes int64
	Content   io.Reader
}

// Store keeps cancellation evidence in object storage.
type Store interface {
	UploadVideo(ctx context.Context, requestID uuid.UUID, upload VideoUpload) (string, error)
}

type store struct {
	uploader gcs.Uploader
	maxBytes int64
	logg     *logger.Logger
}

// NewStore builds the evidence store. maxBytes bounds a single video.
func NewStore(uploader gcs.Uploader, maxBytes int64, logg *logger.Logger) (Store, error) {
	if uploader == nil {
		return nil, fmt.Errorf("gcs uploader required")
	}
	if maxBytes <= 0 {
		return nil, fmt.Errorf("max video size must be positive")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &store{uploader: uploader, maxBytes: maxBytes, logg: logg}, nil
}

// UploadVideo sniffs the content, then streams it to
// cancellations/<requestId>/<uuid><ext> and returns the object URL.
func (s *store) UploadVideo(ctx context.Context, requestID uuid.UUID, upload VideoUpload) (string, error) {
	if requestID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}
	if upload.Content == nil || upload.SizeBytes == 0 {
		return "", ErrVideoRequired
	}
	if upload.SizeBytes > s.maxBytes {
		return "", ErrVideoTooLarge
	}

	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(upload.Content, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read video")
	}
	head = head[:n]
	if len(head) == 0 {
		return "", ErrVideoRequired
	}

	detected := mimetype.Detect(head)
	contentType := detected.String()
	if !strings.HasPrefix(contentType, "video/") {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, ErrNotAVideo, "uploaded file is not a video").
			WithDetails(map[string]any{"detected": contentType})
	}

	object := objectName(requestID, detected.Extension(), upload.FileName)
	body := &cappedReader{r: io.MultiReader(bytes.NewReader(head), upload.Content), remaining: s.maxBytes}

	ctx = s.logg.WithCancellationRequestID(ctx, requestID.String())
	stored, err := s.uploader.Upload(ctx, object, contentType, body)
	if err != nil {
		if body.exceeded {
			return "", ErrVideoTooLarge
		}
		s.logg.Error(ctx, "evidence upload failed", err)
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "evidence storage unavailable")
	}
	s.logg.Info(ctx, fmt.Sprintf("evidence stored (%d bytes)", stored.Size))
	return stored.URL, nil
}

func objectName(requestID uuid.UUID, ext, fileName string) string {
	if ext == "" {
		ext = strings.ToLower(path.Ext(fileName))
	}
	return fmt.Sprintf("cancellations/%s/%s%s", requestID, uuid.NewString(), ext)
}

var errTooLarge = errors.New("video exceeds the maximum upload size")

// cappedReader fails once more than remaining bytes are read.
type cappedReader struct {
	r         io.Reader
	remaining int64
	exceeded  bool
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.remaining < 0 {
		c.exceeded = true
		return 0, errTooLarge
	}
	if int64(len(p)) > c.remaining+1 {
		p = p[:c.remaining+1]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		c.exceeded = true
		return n, errTooLarge
	}
	return n, err
}
