package s3

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"

	"farmledger/internal/blob/core"
)

func newTestStore(t *testing.T, bucket *fakeBucket) *Store {
	t.Helper()
	store, err := New(context.Background(), Config{
		Region:          "us-east-1",
		Bucket:          "backups",
		AccessKeyID:     "AKIDTEST",
		SecretAccessKey: "secret",
		PathStyle:       true,
	}, func(o *awss3.Options) {
		o.BaseEndpoint = aws.String("https://mock.s3.local")
		o.HTTPClient = &http.Client{Transport: bucket}
	})
	require.NoError(t, err)
	return store
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
}

func TestPutGetHeadDelete(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeBucket()
	store := newTestStore(t, bucket)
	require.Equal(t, core.DriverS3, store.Driver())

	payload := `{"version":1,"fields":[]}`
	info, err := store.Put(ctx, "farm-1/backup-2025-01-01.json", strings.NewReader(payload), core.PutOptions{ContentType: "application/json"})
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), info.Size)
	require.Equal(t, "etag123", info.ETag)

	_, err = store.Put(ctx, "farm-1/backup-2025-01-01.json", strings.NewReader("again"), core.PutOptions{})
	require.ErrorIs(t, err, core.ErrExists)

	got, rc, err := store.Get(ctx, "farm-1/backup-2025-01-01.json")
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	require.Equal(t, payload, string(body))
	require.Equal(t, "application/json", got.ContentType)

	deleted, err := store.Delete(ctx, "farm-1/backup-2025-01-01.json")
	require.NoError(t, err)
	require.True(t, deleted)
	deleted, err = store.Delete(ctx, "farm-1/backup-2025-01-01.json")
	require.NoError(t, err)
	require.False(t, deleted)

	_, err = store.Head(ctx, "farm-1/backup-2025-01-01.json")
	require.ErrorIs(t, err, core.ErrNotFound)
	_, _, err = store.Get(ctx, "farm-1/backup-2025-01-01.json")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestListFollowsContinuationTokens(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeBucket()
	bucket.pageSize = 2
	for _, k := range []string{"farm-1/c", "farm-1/a", "farm-1/b", "farm-2/a", "farm-1/d"} {
		bucket.objects[k] = fakeObject{body: []byte(k)}
	}
	store := newTestStore(t, bucket)
	infos, err := store.List(ctx, "farm-1/")
	require.NoError(t, err)
	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		keys = append(keys, info.Key)
	}
	require.Equal(t, []string{"farm-1/a", "farm-1/b", "farm-1/c", "farm-1/d"}, keys)
	require.Equal(t, int64(len("farm-1/a")), infos[0].Size)
}

func TestPresignURL(t *testing.T) {
	store := newTestStore(t, newFakeBucket())
	url, err := store.PresignURL(context.Background(), "farm-1/x.json", core.SignedURLOptions{Expiry: 5 * time.Minute})
	require.NoError(t, err)
	require.Contains(t, url, "/backups/farm-1/x.json")
	require.Contains(t, url, "X-Amz-Expires=300")

	_, err = store.PresignURL(context.Background(), "farm-1/x.json", core.SignedURLOptions{Method: "PUT"})
	require.True(t, errors.Is(err, core.ErrUnsupported))
}

func TestDecodeAWSChunked(t *testing.T) {
	framed := "5;chunk-signature=abc\r\nhello\r\n6\r\n world\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n"
	out, ok := decodeAWSChunked([]byte(framed))
	require.True(t, ok)
	require.Equal(t, "hello world", string(out))

	_, ok = decodeAWSChunked([]byte("zz\r\n"))
	require.False(t, ok)
}
