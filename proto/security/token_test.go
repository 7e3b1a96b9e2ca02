package security

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	. "github.com/smartystreets/goconvey/convey"
)

var testKey = []byte(strings.Repeat("k", MinSecretSize))

func TestJWT(t *testing.T) {
	Convey("Issued tokens validate and carry claims", t, func() {
		j, err := NewJWTFromKey(testKey, "driving-coach", time.Hour)
		So(err, ShouldBeNil)

		token, err := j.Issue(42, "alice", "USER")
		So(err, ShouldBeNil)
		So(j.Validate(token), ShouldBeTrue)

		claims, err := j.Claims(token)
		So(err, ShouldBeNil)
		So(claims.LoginID, ShouldEqual, "alice")
		So(claims.UserID, ShouldEqual, 42)
		So(claims.Role, ShouldEqual, "USER")
		So(claims.Expiry, ShouldHappenWithin, 5*time.Second, time.Now().Add(time.Hour))
	})

	Convey("Expired tokens are rejected", t, func() {
		j, err := NewJWTFromKey(testKey, "driving-coach", time.Minute)
		So(err, ShouldBeNil)
		j.SetClock(func() time.Time { return time.Now().Add(-time.Hour) })
		token, err := j.Issue(1, "bob", "USER")
		So(err, ShouldBeNil)

		j.SetClock(time.Now)
		So(j.Validate(token), ShouldBeFalse)
		_, err = j.Claims(token)
		So(errors.Is(err, jwt.ErrTokenExpired), ShouldBeTrue)
	})

	Convey("Tokens signed with another key or issuer are rejected", t, func() {
		j, err := NewJWTFromKey(testKey, "driving-coach", time.Hour)
		So(err, ShouldBeNil)

		other, err := NewJWTFromKey([]byte(strings.Repeat("x", MinSecretSize)), "driving-coach", time.Hour)
		So(err, ShouldBeNil)
		token, err := other.Issue(1, "mallory", "USER")
		So(err, ShouldBeNil)
		So(j.Validate(token), ShouldBeFalse)

		foreign, err := NewJWTFromKey(testKey, "someone-else", time.Hour)
		So(err, ShouldBeNil)
		token, err = foreign.Issue(1, "mallory", "USER")
		So(err, ShouldBeNil)
		So(j.Validate(token), ShouldBeFalse)
	})

	Convey("Garbage is rejected", t, func() {
		j, err := NewJWTFromKey(testKey, "", time.Hour)
		So(err, ShouldBeNil)
		So(j.Validate(""), ShouldBeFalse)
		So(j.Validate("not.a.token"), ShouldBeFalse)
	})

	Convey("Secrets", t, func() {
		_, err := NewJWTFromKey([]byte("short"), "", time.Hour)
		So(errors.Is(err, ErrWeakSecret), ShouldBeTrue)

		_, err = NewJWT("%%%", "", time.Hour)
		So(err, ShouldNotBeNil)

		j, err := NewJWT(base64.StdEncoding.EncodeToString(testKey), "", time.Hour)
		So(err, ShouldBeNil)
		So(j, ShouldNotBeNil)
	})
}
