package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLogging(t *testing.T) {
	Convey("Logger falls back to the default logger", t, func() {
		So(Logger(context.Background()), ShouldNotBeNil)
	})

	Convey("WithFields tags entries", t, func() {
		buf := &bytes.Buffer{}
		prev := root
		defer func() { root = prev }()

		Init(buf, "info", false)
		ctx := WithFields(context.Background(), map[string]interface{}{"sid": "c1"})
		ctx = WithFields(ctx, map[string]interface{}{"login": "driver1"})
		Logger(ctx).Info().Str("record", "r1").Msg("hello")

		entry := map[string]interface{}{}
		So(json.Unmarshal(buf.Bytes(), &entry), ShouldBeNil)
		So(entry["sid"], ShouldEqual, "c1")
		So(entry["login"], ShouldEqual, "driver1")
		So(entry["record"], ShouldEqual, "r1")
		So(entry["message"], ShouldEqual, "hello")
	})

	Convey("Init honors the level", t, func() {
		buf := &bytes.Buffer{}
		prev := root
		defer func() { root = prev }()

		Init(buf, "warn", false)
		Logger(context.Background()).Info().Msg("dropped")
		So(buf.Len(), ShouldEqual, 0)
		Logger(context.Background()).Warn().Msg("kept")
		So(buf.String(), ShouldContainSubstring, "kept")
	})
}
