package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Driving-Capstone/DrivingCoach-BE/backend/mock"
	"github.com/Driving-Capstone/DrivingCoach-BE/proto"

	. "github.com/smartystreets/goconvey/convey"
)

func TestServer(t *testing.T) {
	Convey("A server needs a blob store", t, func() {
		_, err := NewServer(context.Background(), ServerOptions{Session: DefaultConfig().Session})
		So(err, ShouldNotBeNil)
	})

	Convey("Over HTTP", t, func() {
		h := newHarness(nil)
		h.srv.blobH = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "blob:"+r.URL.Path)
		})
		h.srv.route()
		server := httptest.NewServer(h.srv)
		defer server.Close()
		defer h.srv.Shutdown(context.Background())

		get := func(path, token string) (int, string) {
			req, err := http.NewRequest("GET", server.URL+path, nil)
			So(err, ShouldBeNil)
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			resp, err := http.DefaultClient.Do(req)
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			So(err, ShouldBeNil)
			return resp.StatusCode, string(body)
		}

		Convey("health and metrics are served", func() {
			status, body := get("/healthz", "")
			So(status, ShouldEqual, http.StatusOK)
			So(body, ShouldContainSubstring, `"status":"ok"`)

			status, body = get("/metrics", "")
			So(status, ShouldEqual, http.StatusOK)
			So(body, ShouldContainSubstring, "relay_sessions_active")
		})

		Convey("blobs are served under /blobs/", func() {
			status, body := get("/blobs/driving/r/1-1.bin", "")
			So(status, ShouldEqual, http.StatusOK)
			So(body, ShouldEqual, "blob:driving/r/1-1.bin")
		})

		Convey("unknown paths are 404", func() {
			status, _ := get("/nowhere", "")
			So(status, ShouldEqual, http.StatusNotFound)
		})

		Convey("websockets from any origin are accepted", func() {
			token, err := h.tokens.Issue(4, "driver4", "USER")
			So(err, ShouldBeNil)

			header := http.Header{}
			header.Set("Origin", "https://elsewhere.example")
			u := "ws" + strings.TrimPrefix(server.URL, "http") + "/driving?token=Bearer%20" + token
			conn, _, err := websocket.DefaultDialer.Dial(u, header)
			So(err, ShouldBeNil)
			defer conn.Close()

			So(conn.SetReadDeadline(time.Now().Add(5*time.Second)), ShouldBeNil)
			_, data, err := conn.ReadMessage()
			So(err, ShouldBeNil)
			var connected map[string]interface{}
			So(json.Unmarshal(data, &connected), ShouldBeNil)
			So(connected["type"], ShouldEqual, string(proto.ConnectedType))

			So(conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"PING"}`)), ShouldBeNil)
			_, data, err = conn.ReadMessage()
			So(err, ShouldBeNil)
			So(string(data), ShouldEqual, `{"type":"PONG"}`)

			Convey("and listed for their owner", func() {
				status, body := get("/sessions", token)
				So(status, ShouldEqual, http.StatusOK)
				So(body, ShouldContainSubstring, connected["sessionId"].(string))

				other, err := h.tokens.Issue(5, "driver5", "USER")
				So(err, ShouldBeNil)
				status, body = get("/sessions", other)
				So(status, ShouldEqual, http.StatusOK)
				So(body, ShouldNotContainSubstring, connected["sessionId"].(string))

				status, _ = get("/sessions", "")
				So(status, ShouldEqual, http.StatusUnauthorized)
			})
		})

		Convey("without a record store the records API is unavailable", func() {
			bare, err := NewServer(context.Background(), ServerOptions{
				Validator: h.tokens,
				Blobs:     mock.NewBlobStore(""),
				Session:   DefaultConfig().Session,
			})
			So(err, ShouldBeNil)
			token, err := h.tokens.Issue(4, "driver4", "USER")
			So(err, ShouldBeNil)

			req := httptest.NewRequest("GET", "/records", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			bare.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}
