package rcbled

import (
	"encoding/json"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.yaml.in/yaml/v4"
)

func TestDuration(t *testing.T) {
	Convey("Durations are read from YAML", t, func() {
		var v struct {
			A Duration `yaml:"a"`
			B Duration `yaml:"b"`
			C Duration `yaml:"c"`
		}
		v.C.Duration = time.Minute

		So(yaml.Unmarshal([]byte("a: 1500ms\nb: 2\n"), &v), ShouldBeNil)
		So(v.A.Duration, ShouldEqual, 1500*time.Millisecond)
		So(v.B.Duration, ShouldEqual, 2*time.Second)
		So(v.C.Duration, ShouldEqual, time.Minute)

		So(yaml.Unmarshal([]byte("a: soon\n"), &v), ShouldNotBeNil)
	})

	Convey("Durations are written as strings in JSON", t, func() {
		p, err := json.Marshal(Duration{90 * time.Second})
		So(err, ShouldBeNil)
		So(string(p), ShouldEqual, `"1m30s"`)

		var d Duration
		So(json.Unmarshal(p, &d), ShouldBeNil)
		So(d.Duration, ShouldEqual, 90*time.Second)

		So(json.Unmarshal([]byte("0.5"), &d), ShouldBeNil)
		So(d.Duration, ShouldEqual, 500*time.Millisecond)
	})
}
