package s3store

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	puts    []*s3.PutObjectInput
	bodies  [][]byte
	deletes []*s3.DeleteObjectInput
	err     error
}

func (f *fakeAPI) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts = append(f.puts, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deletes = append(f.deletes, in)
	return &s3.DeleteObjectOutput{}, nil
}

func TestPut(t *testing.T) {
	api := &fakeAPI{}
	store := NewWithAPI(api, Options{Region: "ap-northeast-2", Bucket: "drives"})

	require.NoError(t, store.Put(context.Background(), "driving/r1/1-1.bin", []byte("abc"), "application/octet-stream"))
	require.Len(t, api.puts, 1)

	in := api.puts[0]
	assert.Equal(t, "drives", aws.ToString(in.Bucket))
	assert.Equal(t, "driving/r1/1-1.bin", aws.ToString(in.Key))
	assert.Equal(t, "application/octet-stream", aws.ToString(in.ContentType))
	assert.Equal(t, int64(3), aws.ToInt64(in.ContentLength))
	assert.Equal(t, types.ObjectCannedACLPrivate, in.ACL)
	assert.Equal(t, []byte("abc"), api.bodies[0])
}

func TestPutDefaultsContentType(t *testing.T) {
	api := &fakeAPI{}
	store := NewWithAPI(api, Options{Region: "us-east-1", Bucket: "b"})

	require.NoError(t, store.Put(context.Background(), "k", nil, ""))
	assert.Equal(t, "application/octet-stream", aws.ToString(api.puts[0].ContentType))
}

func TestErrorsWrapped(t *testing.T) {
	cause := errors.New("access denied")
	store := NewWithAPI(&fakeAPI{err: cause}, Options{Region: "us-east-1", Bucket: "b"})

	err := store.Put(context.Background(), "k", []byte("x"), "")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "s3://b/k")

	assert.ErrorIs(t, store.Delete(context.Background(), "k"), cause)
}

func TestDelete(t *testing.T) {
	api := &fakeAPI{}
	store := NewWithAPI(api, Options{Region: "us-east-1", Bucket: "b"})

	require.NoError(t, store.Delete(context.Background(), "driving/r1/1-1.bin"))
	require.Len(t, api.deletes, 1)
	assert.Equal(t, "b", aws.ToString(api.deletes[0].Bucket))
	assert.Equal(t, "driving/r1/1-1.bin", aws.ToString(api.deletes[0].Key))
}

func TestPublicURL(t *testing.T) {
	cases := []struct {
		name string
		opts Options
		want string
	}{
		{
			name: "aws",
			opts: Options{Region: "ap-northeast-2", Bucket: "drives"},
			want: "https://drives.s3.ap-northeast-2.amazonaws.com/driving/r1/1-1.bin",
		},
		{
			name: "path style endpoint",
			opts: Options{Bucket: "drives", Endpoint: "http://localhost:9000", PathStyle: true},
			want: "http://localhost:9000/drives/driving/r1/1-1.bin",
		},
		{
			name: "virtual host endpoint",
			opts: Options{Bucket: "drives", Endpoint: "https://storage.example.com"},
			want: "https://drives.storage.example.com/driving/r1/1-1.bin",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u, err := NewWithAPI(&fakeAPI{}, tc.opts).PublicURL("driving/r1/1-1.bin")
			require.NoError(t, err)
			assert.Equal(t, tc.want, u.String())
		})
	}

	_, err := NewWithAPI(&fakeAPI{}, Options{Bucket: "b"}).PublicURL("k")
	assert.Error(t, err)
}
