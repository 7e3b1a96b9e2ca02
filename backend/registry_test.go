package backend

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Driving-Capstone/DrivingCoach-BE/proto"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRegistry(t *testing.T) {
	t0 := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

	Convey("Sessions are registered by connection id", t, func() {
		r := NewRegistry()
		a := NewSession("a", proto.Anonymous(), t0.Add(time.Second))
		b := NewSession("b", proto.NewIdentity(1, "driver1"), t0)

		So(r.Register(a), ShouldBeNil)
		So(r.Register(b), ShouldBeNil)
		So(r.Register(NewSession("a", proto.Anonymous(), t0)), ShouldEqual, ErrSessionExists)
		So(r.Len(), ShouldEqual, 2)

		found, ok := r.Lookup("a")
		So(ok, ShouldBeTrue)
		So(found, ShouldEqual, a)

		views := r.Views()
		So(len(views), ShouldEqual, 2)
		So(views[0].SessionID, ShouldEqual, "b")
		So(views[1].SessionID, ShouldEqual, "a")

		removed, ok := r.Remove("a")
		So(ok, ShouldBeTrue)
		So(removed, ShouldEqual, a)
		_, ok = r.Remove("a")
		So(ok, ShouldBeFalse)
		_, ok = r.Lookup("a")
		So(ok, ShouldBeFalse)
		So(r.Len(), ShouldEqual, 1)
	})

	Convey("The registry is safe for concurrent use", t, func() {
		r := NewRegistry()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := fmt.Sprintf("s%d", i)
				r.Register(NewSession(id, proto.Anonymous(), t0))
				r.Lookup(id)
				r.Views()
				if i%2 == 0 {
					r.Remove(id)
				}
			}(i)
		}
		wg.Wait()
		So(r.Len(), ShouldEqual, 25)
	})
}
