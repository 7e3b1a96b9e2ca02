package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Driving-Capstone/DrivingCoach-BE/proto"

	. "github.com/smartystreets/goconvey/convey"
)

type weeklyView struct {
	From         time.Time   `json:"from"`
	To           time.Time   `json:"to"`
	Records      int         `json:"records"`
	TotalSeconds int64       `json:"totalSeconds"`
	AverageScore *float64    `json:"averageScore"`
	DailySeconds []dayBucket `json:"dailySeconds"`
}

func (h *harness) get(path string, userID int64) (int, []byte) {
	token, err := h.tokens.Issue(userID, "driver", "USER")
	So(err, ShouldBeNil)

	req := httptest.NewRequest("GET", path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.srv.ServeHTTP(w, req)
	return w.Code, w.Body.Bytes()
}

func TestWeeklySummary(t *testing.T) {
	Convey("Days are cut at midnight in the requested zone", t, func() {
		h := newHarness(nil)
		ctx := context.Background()
		driver := proto.NewIdentity(9, "driver9")
		score := 70.0

		// 08:30 on the 15th in Seoul, still the 14th in UTC.
		late := time.Date(2023, 11, 14, 23, 30, 0, 0, time.UTC)
		So(h.records.FinishRecording(ctx, &proto.RecordSummary{
			RecordID: "late", Identity: driver, Started: late, Ended: late.Add(10 * time.Minute), Score: &score,
		}), ShouldBeNil)
		early := time.Date(2023, 11, 13, 10, 0, 0, 0, time.UTC)
		So(h.records.FinishRecording(ctx, &proto.RecordSummary{
			RecordID: "early", Identity: driver, Started: early, Ended: early.Add(5 * time.Minute),
		}), ShouldBeNil)

		status, body := h.get("/records/weekly", 9)
		So(status, ShouldEqual, http.StatusOK)
		var utc weeklyView
		So(json.Unmarshal(body, &utc), ShouldBeNil)
		So(utc.To.Equal(time.Date(2023, 11, 15, 0, 0, 0, 0, time.UTC)), ShouldBeTrue)
		So(utc.From.Equal(time.Date(2023, 11, 8, 0, 0, 0, 0, time.UTC)), ShouldBeTrue)
		So(utc.Records, ShouldEqual, 2)
		So(utc.TotalSeconds, ShouldEqual, int64(900))
		So(*utc.AverageScore, ShouldEqual, 70.0)
		So(utc.DailySeconds, ShouldHaveLength, 7)
		So(utc.DailySeconds[5], ShouldResemble, dayBucket{Date: "2023-11-13", Seconds: 300})
		So(utc.DailySeconds[6], ShouldResemble, dayBucket{Date: "2023-11-14", Seconds: 600})

		status, body = h.get("/records/weekly?tz=Asia/Seoul", 9)
		So(status, ShouldEqual, http.StatusOK)
		var seoul weeklyView
		So(json.Unmarshal(body, &seoul), ShouldBeNil)
		So(seoul.DailySeconds, ShouldHaveLength, 7)
		So(seoul.DailySeconds[0].Date, ShouldEqual, "2023-11-09")
		So(seoul.DailySeconds[4], ShouldResemble, dayBucket{Date: "2023-11-13", Seconds: 300})
		So(seoul.DailySeconds[5], ShouldResemble, dayBucket{Date: "2023-11-14", Seconds: 0})
		So(seoul.DailySeconds[6], ShouldResemble, dayBucket{Date: "2023-11-15", Seconds: 600})
	})

	Convey("A missing bound is a week from the other", t, func() {
		h := newHarness(nil)

		status, body := h.get("/records/weekly?from=2023-10-01T00:00:00Z", 9)
		So(status, ShouldEqual, http.StatusOK)
		var view weeklyView
		So(json.Unmarshal(body, &view), ShouldBeNil)
		So(view.To.Equal(time.Date(2023, 10, 8, 0, 0, 0, 0, time.UTC)), ShouldBeTrue)
		So(view.Records, ShouldEqual, 0)
		So(view.AverageScore, ShouldBeNil)
		So(view.DailySeconds, ShouldHaveLength, 7)

		status, body = h.get("/records/weekly?to=2023-10-08T12:00:00Z", 9)
		So(status, ShouldEqual, http.StatusOK)
		So(json.Unmarshal(body, &view), ShouldBeNil)
		So(view.From.Equal(time.Date(2023, 10, 1, 12, 0, 0, 0, time.UTC)), ShouldBeTrue)
		// The first bucket is the whole day the period starts in.
		So(view.DailySeconds, ShouldHaveLength, 8)
		So(view.DailySeconds[0].Date, ShouldEqual, "2023-10-01")
	})

	Convey("Without a record store the summary is unavailable", t, func() {
		h := newHarness(nil)
		h.srv.records = nil
		status, _ := h.get("/records/weekly", 9)
		So(status, ShouldEqual, http.StatusServiceUnavailable)
	})
}
