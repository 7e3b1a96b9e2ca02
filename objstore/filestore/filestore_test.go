package filestore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestStore(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "relay-filestore")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tempDir)

	// Need some indirection to deal with a chicken-egg problem.
	var fs *Store
	server := httptest.NewServer(http.StripPrefix("/blobs", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.ServeHTTP(w, r)
	})))
	defer server.Close()

	fs, err = Open(tempDir, server.URL+"/blobs")
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()

	Convey("Put stores the blob and its content type", t, func() {
		key := "driving/rec-1/1700000000000-1.bin"
		So(fs.Put(ctx, key, []byte("chunk"), "video/webm"), ShouldBeNil)

		data, err := os.ReadFile(fs.path(key))
		So(err, ShouldBeNil)
		So(string(data), ShouldEqual, "chunk")

		data, contentType, err := fs.Get(key)
		So(err, ShouldBeNil)
		So(string(data), ShouldEqual, "chunk")
		So(contentType, ShouldEqual, "video/webm")

		Convey("and serves it at its public url", func() {
			u, err := fs.PublicURL(key)
			So(err, ShouldBeNil)
			So(u.String(), ShouldEqual, server.URL+"/blobs/"+key)

			resp, err := http.Get(u.String())
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(resp.Header.Get("Content-Type"), ShouldEqual, "video/webm")
			body, err := io.ReadAll(resp.Body)
			So(err, ShouldBeNil)
			So(string(body), ShouldEqual, "chunk")
		})

		Convey("Put replaces an existing blob", func() {
			So(fs.Put(ctx, key, []byte("again"), ""), ShouldBeNil)
			data, _, err := fs.Get(key)
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, "again")
		})

		Convey("Delete removes it, and deleting again is fine", func() {
			So(fs.Delete(ctx, key), ShouldBeNil)
			_, _, err := fs.Get(key)
			So(err, ShouldEqual, ErrNotFound)
			So(fs.Delete(ctx, key), ShouldBeNil)

			resp, err := http.Get(server.URL + "/blobs/" + key)
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
		})
	})

	Convey("Keys escaping the root are rejected", t, func() {
		for _, key := range []string{"", "/abs", "a/../../b", "a//b", ".meta/x", "a/./b"} {
			So(errors.Is(fs.Put(ctx, key, []byte("x"), ""), ErrInvalidKey), ShouldBeTrue)
		}
	})

	Convey("A cancelled context fails the put", t, func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		So(errors.Is(fs.Put(cctx, "k", []byte("x"), ""), context.Canceled), ShouldBeTrue)
	})

	Convey("Without a base url there are no public urls", t, func() {
		bare, err := Open(tempDir, "")
		So(err, ShouldBeNil)
		_, err = bare.PublicURL("k")
		So(err, ShouldEqual, ErrNoBaseURL)
	})

	Convey("Only reads are served", t, func() {
		req, err := http.NewRequest("PUT", server.URL+"/blobs/k", nil)
		So(err, ShouldBeNil)
		resp, err := http.DefaultClient.Do(req)
		So(err, ShouldBeNil)
		resp.Body.Close()
		So(resp.StatusCode, ShouldEqual, http.StatusMethodNotAllowed)
	})
}
