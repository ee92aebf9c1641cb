package evidence

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/storage/gcs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUploader struct {
	object      string
	contentType string
	body        []byte
	err         error
}

func (u *stubUploader) Upload(_ context.Context, object, contentType string, body io.Reader) (*gcs.Object, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if u.err != nil {
		return nil, u.err
	}
	u.object = object
	u.contentType = contentType
	u.body = data
	return &gcs.Object{Bucket: "evidence", Name: object, Size: int64(len(data)), URL: "https://storage.googleapis.com/evidence/" + object}, nil
}

func mp4Bytes(size int) []byte {
	header := []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00, 'i', 's', 'o', 'm', 'i', 's', 'o', '2'}
	out := make([]byte, size)
	copy(out, header)
	return out
}

func newTestStore(t *testing.T, uploader gcs.Uploader, maxBytes int64) Store {
	t.Helper()
	s, err := NewStore(uploader, maxBytes, logger.New(logger.Options{ServiceName: "evidence-test"}))
	require.NoError(t, err)
	return s
}

func TestUploadVideoStoresUnderRequestPrefix(t *testing.T) {
	uploader := &stubUploader{}
	s := newTestStore(t, uploader, 1<<20)
	requestID := uuid.New()
	data := mp4Bytes(8192)

	url, err := s.UploadVideo(context.Background(), requestID, VideoUpload{
		FileName:  "unboxing.mp4",
		SizeBytes: int64(len(data)),
		Content:   bytes.NewReader(data),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uploader.object, "cancellations/"+requestID.String()+"/"))
	assert.True(t, strings.HasSuffix(uploader.object, ".mp4"))
	assert.Equal(t, "video/mp4", uploader.contentType)
	assert.Equal(t, data, uploader.body)
	assert.Contains(t, url, uploader.object)
}

func TestUploadVideoRejectsNonVideo(t *testing.T) {
	s := newTestStore(t, &stubUploader{}, 1<<20)
	data := []byte("%PDF-1.7\nnot a video at all")

	_, err := s.UploadVideo(context.Background(), uuid.New(), VideoUpload{
		FileName: "claim.mp4", SizeBytes: int64(len(data)), Content: bytes.NewReader(data),
	})
	assert.ErrorIs(t, err, ErrNotAVideo)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestUploadVideoEnforcesMaxSize(t *testing.T) {
	s := newTestStore(t, &stubUploader{}, 4096)
	data := mp4Bytes(8192)

	_, err := s.UploadVideo(context.Background(), uuid.New(), VideoUpload{
		FileName: "big.mp4", SizeBytes: int64(len(data)), Content: bytes.NewReader(data),
	})
	assert.ErrorIs(t, err, ErrVideoTooLarge)

	// declared size understated
	_, err = s.UploadVideo(context.Background(), uuid.New(), VideoUpload{
		FileName: "big.mp4", SizeBytes: 100, Content: bytes.NewReader(data),
	})
	assert.ErrorIs(t, err, ErrVideoTooLarge)
}

func TestUploadVideoRequiresContent(t *testing.T) {
	s := newTestStore(t, &stubUploader{}, 4096)
	_, err := s.UploadVideo(context.Background(), uuid.New(), VideoUpload{FileName: "x.mp4"})
	assert.ErrorIs(t, err, ErrVideoRequired)
}

func TestUploadFailureIsRetryableDependencyError(t *testing.T) {
	s := newTestStore(t, &stubUploader{err: errors.New("503 from storage")}, 1<<20)
	data := mp4Bytes(4096)

	_, err := s.UploadVideo(context.Background(), uuid.New(), VideoUpload{
		FileName: "clip.mp4", SizeBytes: int64(len(data)), Content: bytes.NewReader(data),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.True(t, pkgerrors.IsRetryable(err))
}
