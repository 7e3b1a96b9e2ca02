package backend

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"

	. "github.com/smartystreets/goconvey/convey"
)

func TestConfig(t *testing.T) {
	Convey("Defaults are valid", t, func() {
		c := DefaultConfig()
		So(c.Validate(), ShouldBeNil)
		So(c.HTTP.Path, ShouldEqual, "/driving")
		So(c.Session.KeyPrefix, ShouldEqual, "driving")
		So(c.Session.RestartPolicy, ShouldEqual, RestartOverwrite)
		So(c.Session.KeepAliveMisses, ShouldEqual, 3)
		So(c.Session.NodeID, ShouldEqual, int64(-1))
	})

	Convey("Flags write into the config", t, func() {
		c := DefaultConfig()
		fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
		c.RegisterFlags(fs)

		So(fs.Parse([]string{
			"--http=:9000",
			"--restart-policy=reject",
			"--keepalive=5s",
			"--node-id=3",
			"--blob=memory",
			"--psql=postgres://localhost/relay",
		}), ShouldBeNil)
		So(c.HTTP.Listen, ShouldEqual, ":9000")
		So(c.Session.RestartPolicy, ShouldEqual, RestartReject)
		So(c.Session.KeepAlive, ShouldEqual, 5*time.Second)
		So(c.Session.NodeID, ShouldEqual, int64(3))
		So(c.Blob.Driver, ShouldEqual, BlobMemory)
		So(c.DB.DSN, ShouldEqual, "postgres://localhost/relay")
		So(c.Validate(), ShouldBeNil)
	})

	Convey("A YAML file overwrites the fields it names", t, func() {
		dir, err := os.MkdirTemp("", "relay-config")
		So(err, ShouldBeNil)
		defer os.RemoveAll(dir)

		path := filepath.Join(dir, "relay.yaml")
		So(os.WriteFile(path, []byte(`
http:
  listen: ":7000"
session:
  restart-policy: reject
  keepalive: 45s
  node-id: 12
blob:
  driver: s3
  s3:
    region: ap-northeast-2
    bucket: drives
log:
  level: debug
`), 0644), ShouldBeNil)

		c := DefaultConfig()
		So(c.LoadFromFile(path), ShouldBeNil)
		So(c.HTTP.Listen, ShouldEqual, ":7000")
		So(c.HTTP.Path, ShouldEqual, "/driving")
		So(c.Session.RestartPolicy, ShouldEqual, RestartReject)
		So(c.Session.KeepAlive, ShouldEqual, 45*time.Second)
		So(c.Session.KeyPrefix, ShouldEqual, "driving")
		So(c.Session.NodeID, ShouldEqual, int64(12))
		So(c.Blob.Driver, ShouldEqual, BlobS3)
		So(c.Blob.S3.Bucket, ShouldEqual, "drives")
		So(c.Log.Level, ShouldEqual, "debug")
		So(c.Validate(), ShouldBeNil)

		So(c.LoadFromFile(filepath.Join(dir, "missing.yaml")), ShouldNotBeNil)
	})

	Convey("Invalid settings are all reported", t, func() {
		c := DefaultConfig()
		c.HTTP.Path = "driving"
		c.Session.KeyPrefix = "/driving/"
		c.Session.RestartPolicy = "sometimes"
		c.Session.NodeID = 4096
		c.Blob.Driver = "tape"

		err := c.Validate()
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "http.path")
		So(err.Error(), ShouldContainSubstring, "session.key-prefix")
		So(err.Error(), ShouldContainSubstring, "session.restart-policy")
		So(err.Error(), ShouldContainSubstring, "session.node-id")
		So(err.Error(), ShouldContainSubstring, "blob.driver")
	})
}
