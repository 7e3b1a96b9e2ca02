package backend

import (
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/Driving-Capstone/DrivingCoach-BE/proto"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSession(t *testing.T) {
	t0 := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	ids := 0
	newID := func() string {
		ids++
		return "gen"
	}

	Convey("A new session is idle", t, func() {
		s := NewSession("c1", proto.NewIdentity(3, "driver3"), t0)
		So(s.State(), ShouldEqual, Idle)
		So(s.ID(), ShouldEqual, "c1")
		So(s.ConnectedAt(), ShouldEqual, t0)
		_, _, ok := s.Recording()
		So(ok, ShouldBeFalse)

		_, err := s.ChunkStored("k")
		So(err, ShouldEqual, proto.ErrNotStarted)
		_, err = s.End(t0)
		So(err, ShouldEqual, proto.ErrNoActiveRecord)

		Convey("START begins a recording", func() {
			recordID, abandoned, err := s.Start("r1", RestartOverwrite, newID, t0)
			So(err, ShouldBeNil)
			So(abandoned, ShouldBeNil)
			So(recordID, ShouldEqual, "r1")
			So(s.State(), ShouldEqual, Recording)

			for i := 1; i <= 3; i++ {
				index, err := s.ChunkStored("k")
				So(err, ShouldBeNil)
				So(index, ShouldEqual, i)
			}

			view := s.View()
			So(view.State, ShouldEqual, "recording")
			So(view.RecordID, ShouldEqual, "r1")
			So(view.Chunks, ShouldEqual, 3)

			Convey("END returns the summary and goes idle", func() {
				summary, err := s.End(t0.Add(95 * time.Second))
				So(err, ShouldBeNil)
				So(summary.RecordID, ShouldEqual, "r1")
				So(summary.SessionID, ShouldEqual, "c1")
				So(summary.Chunks, ShouldEqual, 3)
				So(summary.Keys, ShouldResemble, []string{"k", "k", "k"})
				So(summary.TotalSeconds(), ShouldEqual, 95)
				So(summary.Identity.LoginID, ShouldEqual, "driver3")
				So(s.State(), ShouldEqual, Idle)
				So(s.View().State, ShouldEqual, "idle")
			})

			Convey("an overwriting START abandons it", func() {
				recordID, abandoned, err := s.Start("r2", RestartOverwrite, newID, t0)
				So(err, ShouldBeNil)
				So(recordID, ShouldEqual, "r2")
				So(abandoned.RecordID, ShouldEqual, "r1")
				So(abandoned.Chunks, ShouldEqual, 3)

				_, chunks, _ := s.Recording()
				So(chunks, ShouldEqual, 0)
			})

			Convey("a rejected START leaves it alone", func() {
				_, _, err := s.Start("r2", RestartReject, newID, t0)
				So(err, ShouldEqual, proto.ErrRecordActive)
				recordID, chunks, _ := s.Recording()
				So(recordID, ShouldEqual, "r1")
				So(chunks, ShouldEqual, 3)
			})
		})

		Convey("An empty record id is generated", func() {
			before := ids
			recordID, _, err := s.Start("", RestartOverwrite, newID, t0)
			So(err, ShouldBeNil)
			So(recordID, ShouldEqual, "gen")
			So(ids, ShouldEqual, before+1)
		})
	})
}

func TestRestartPolicyFlag(t *testing.T) {
	Convey("Restart policies parse as flags", t, func() {
		policy := RestartOverwrite
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		fs.Var(&policy, "restart-policy", "")

		So(fs.Parse([]string{"--restart-policy=reject"}), ShouldBeNil)
		So(policy, ShouldEqual, RestartReject)
		So(fs.Parse([]string{"--restart-policy=sometimes"}), ShouldNotBeNil)
		So(policy, ShouldEqual, RestartReject)
	})
}
