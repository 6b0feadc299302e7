package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	minioLib "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/storefront-client/internal/model"
)

// fakeMinio implements minioAPI for testing without network.
type fakeMinio struct {
	bucketExists    bool
	bucketExistsErr error
	makeBucketErr   error
	madeBucket      bool

	putErr    error
	putObject string
	putBody   []byte

	getRC  io.ReadCloser
	getErr error

	removeErr error
}

func (f *fakeMinio) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, f.bucketExistsErr
}
func (f *fakeMinio) MakeBucket(_ context.Context, _ string, _ minioLib.MakeBucketOptions) error {
	f.madeBucket = true
	return f.makeBucketErr
}
func (f *fakeMinio) PutObject(_ context.Context, _ string, objectName string, r io.Reader, _ int64, _ minioLib.PutObjectOptions) (minioLib.UploadInfo, error) {
	f.putObject = objectName
	f.putBody, _ = io.ReadAll(r)
	return minioLib.UploadInfo{}, f.putErr
}
func (f *fakeMinio) GetObject(_ context.Context, _ string, _ string, _ minioLib.GetObjectOptions) (io.ReadCloser, error) {
	return f.getRC, f.getErr
}
func (f *fakeMinio) RemoveObject(_ context.Context, _ string, _ string, _ minioLib.RemoveObjectOptions) error {
	return f.removeErr
}

// failingReader simulates the lazy NoSuchKey error of minio objects.
type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }
func (r failingReader) Close() error             { return nil }

func TestNewStoreWithAPI(t *testing.T) {
	ctx := context.Background()

	t.Run("bucket exists", func(t *testing.T) {
		api := &fakeMinio{bucketExists: true}
		s, err := NewStoreWithAPI(ctx, api, "b", "sessions")
		require.NoError(t, err)
		assert.Equal(t, "b", s.bucket)
		assert.False(t, api.madeBucket)
	})

	t.Run("creates bucket", func(t *testing.T) {
		api := &fakeMinio{}
		_, err := NewStoreWithAPI(ctx, api, "b", "sessions")
		require.NoError(t, err)
		assert.True(t, api.madeBucket)
	})

	t.Run("bucket check error", func(t *testing.T) {
		api := &fakeMinio{bucketExistsErr: errors.New("boom")}
		s, err := NewStoreWithAPI(ctx, api, "b", "sessions")
		assert.Nil(t, s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to ensure bucket exists")
	})

	t.Run("make bucket error", func(t *testing.T) {
		api := &fakeMinio{makeBucketErr: errors.New("fail")}
		s, err := NewStoreWithAPI(ctx, api, "b", "sessions")
		assert.Nil(t, s)
		require.Error(t, err)
	})
}

func TestStore_Put(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		api := &fakeMinio{}
		s := &Store{api: api, bucket: "b", prefix: "sessions/default"}
		require.NoError(t, s.Put(ctx, "cart:guest", []byte(`[]`)))
		assert.Equal(t, "sessions/default/cart:guest.json", api.putObject)
		assert.Equal(t, []byte(`[]`), api.putBody)
	})

	t.Run("error", func(t *testing.T) {
		api := &fakeMinio{putErr: errors.New("put-fail")}
		s := &Store{api: api, bucket: "b"}
		err := s.Put(ctx, "k", []byte("data"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to upload object")
	})
}

func TestStore_Get(t *testing.T) {
	ctx := context.Background()
	noSuchKey := minioLib.ErrorResponse{Code: "NoSuchKey"}

	t.Run("success", func(t *testing.T) {
		api := &fakeMinio{getRC: io.NopCloser(bytes.NewReader([]byte("abc")))}
		s := &Store{api: api, bucket: "b"}
		got, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), got)
	})

	t.Run("missing on open", func(t *testing.T) {
		api := &fakeMinio{getErr: noSuchKey}
		s := &Store{api: api, bucket: "b"}
		_, err := s.Get(ctx, "k")
		require.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("missing on read", func(t *testing.T) {
		api := &fakeMinio{getRC: failingReader{err: noSuchKey}}
		s := &Store{api: api, bucket: "b"}
		_, err := s.Get(ctx, "k")
		require.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("other error", func(t *testing.T) {
		api := &fakeMinio{getErr: errors.New("get-fail")}
		s := &Store{api: api, bucket: "b"}
		_, err := s.Get(ctx, "k")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get object")
	})
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		s := &Store{api: &fakeMinio{}, bucket: "b"}
		assert.NoError(t, s.Delete(ctx, "k"))
	})

	t.Run("absent key", func(t *testing.T) {
		s := &Store{api: &fakeMinio{removeErr: minioLib.ErrorResponse{Code: "NoSuchKey"}}, bucket: "b"}
		assert.NoError(t, s.Delete(ctx, "k"))
	})

	t.Run("error", func(t *testing.T) {
		s := &Store{api: &fakeMinio{removeErr: errors.New("remove-fail")}, bucket: "b"}
		err := s.Delete(ctx, "k")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to delete object")
	})
}
