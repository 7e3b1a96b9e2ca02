package cmd

import (
	"bytes"
	"context"
	"encoding/base64"
	"path/filepath"
	"strings"
	"testing"

	bwsnowflake "github.com/bwmarrin/snowflake"

	"github.com/Driving-Capstone/DrivingCoach-BE/backend"
	"github.com/Driving-Capstone/DrivingCoach-BE/proto/security"
	"github.com/Driving-Capstone/DrivingCoach-BE/proto/snowflake"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCommands(t *testing.T) {
	Convey("Every command is registered with help text", t, func() {
		for _, name := range []string{"help", "version", "serve", "migrate", "mint-token"} {
			cmd, ok := subcommands[name]
			So(ok, ShouldBeTrue)
			So(cmd.desc(), ShouldNotBeBlank)
			So(cmd.usage(), ShouldStartWith, name)
			So(cmd.flags(), ShouldNotBeNil)
		}
	})

	Convey("help describes a command", t, func() {
		buf := &bytes.Buffer{}
		out = buf
		So(subcommands["help"].run(context.Background(), []string{"migrate"}), ShouldBeNil)
		So(buf.String(), ShouldContainSubstring, "--dsn=")
		So(subcommands["help"].run(context.Background(), []string{"launch"}), ShouldNotBeNil)
	})

	Convey("mint-token issues tokens the relay accepts", t, func() {
		buf := &bytes.Buffer{}
		out = buf
		secret := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("k"), security.MinSecretSize))

		cmd := &mintTokenCmd{}
		So(cmd.flags().Parse([]string{
			"--auth-secret=" + secret, "--login=driver7", "--uid=7", "--ttl=5m",
		}), ShouldBeNil)
		So(cmd.run(context.Background(), nil), ShouldBeNil)

		token := strings.TrimSpace(buf.String())
		So(token, ShouldStartWith, "Bearer ")
		token = strings.TrimPrefix(token, "Bearer ")

		validator, err := security.NewJWT(secret, backend.Config.Auth.Issuer, 0)
		So(err, ShouldBeNil)
		So(validator.Validate(token), ShouldBeTrue)
		claims, err := validator.Claims(token)
		So(err, ShouldBeNil)
		So(claims.UserID, ShouldEqual, int64(7))
		So(claims.LoginID, ShouldEqual, "driver7")

		Convey("but needs a login and user id", func() {
			cmd := &mintTokenCmd{}
			So(cmd.flags().Parse([]string{"--auth-secret=" + secret}), ShouldBeNil)
			So(cmd.run(context.Background(), nil), ShouldNotBeNil)
		})
	})

	Convey("migrate needs a dsn", t, func() {
		cmd := &migrateCmd{}
		So(cmd.flags().Parse(nil), ShouldBeNil)
		cmd.dsn = ""
		So(cmd.run(context.Background(), nil), ShouldNotBeNil)
	})

	Convey("execute flushes output and reports exit codes", t, func() {
		buf := &bytes.Buffer{}
		So(execute(buf, []string{"help", "migrate"}), ShouldEqual, 0)
		So(buf.String(), ShouldContainSubstring, "--dsn=")

		So(execute(&bytes.Buffer{}, []string{"launch"}), ShouldEqual, 2)

		prev := *config
		defer func() { *config = prev }()
		*config = filepath.Join(t.TempDir(), "missing.yaml")
		So(execute(&bytes.Buffer{}, []string{"version"}), ShouldEqual, 2)
	})

	Convey("serve pins the configured snowflake node", t, func() {
		cfg := backend.DefaultConfig().Session
		So(configureNode(cfg), ShouldBeNil)

		cfg.NodeID = 42
		So(configureNode(cfg), ShouldBeNil)
		sid, err := snowflake.New()
		So(err, ShouldBeNil)
		So(bwsnowflake.ParseInt64(int64(sid)).Node(), ShouldEqual, int64(42))

		cfg.NodeID = 5000
		So(configureNode(cfg), ShouldNotBeNil)
	})
}
