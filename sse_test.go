package rcbled

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSSE(t *testing.T) {
	Convey("Written messages are read back one by one", t, func() {
		var buf bytes.Buffer
		So(WriteSSE(&buf, []byte(`{"duty":50}`)), ShouldBeNil)
		So(WriteSSE(&buf, []byte(`{"duty":0}`)), ShouldBeNil)
		So(buf.String(), ShouldEqual, "data: {\"duty\":50}\n\ndata: {\"duty\":0}\n\n")

		r := bufio.NewReader(&buf)
		p, err := ReadSSE(r)
		So(err, ShouldBeNil)
		So(string(p), ShouldEqual, `{"duty":50}`)

		p, err = ReadSSE(r)
		So(err, ShouldBeNil)
		So(string(p), ShouldEqual, `{"duty":0}`)

		_, err = ReadSSE(r)
		So(err, ShouldEqual, io.EOF)
	})

	Convey("Comments are skipped and multi-line data is joined", t, func() {
		r := bufio.NewReader(strings.NewReader("\n: keep-alive\nevent: status\ndata: a\r\ndata:b\n\n"))
		p, err := ReadSSE(r)
		So(err, ShouldBeNil)
		So(string(p), ShouldEqual, "a\nb")
	})
}
