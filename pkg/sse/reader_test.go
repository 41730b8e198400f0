package sse_test

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing/iotest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sigmachat/sigma/pkg/sse"
)

func collect(r *sse.Reader) []sse.Event {
	var events []sse.Event
	for {
		ev, ok := r.Next()
		if !ok {
			return events
		}
		events = append(events, ev)
	}
}

var _ = Describe("Reader", func() {
	It("yields deltas lazily and ends on the sentinel", func() {
		body := strings.NewReader(frame("un") + frame("deux") + "data: [DONE]\n\n")
		r := sse.NewReader(iotest.OneByteReader(body), openAIPath)

		Expect(collect(r)).To(Equal([]sse.Event{sse.Delta("un"), sse.Delta("deux"), {Kind: sse.End}}))
		Expect(r.Err()).NotTo(HaveOccurred())
	})

	It("ends when the body closes without a sentinel", func() {
		r := sse.NewReader(strings.NewReader(frame("seul")), openAIPath)

		Expect(collect(r)).To(Equal([]sse.Event{sse.Delta("seul"), {Kind: sse.End}}))
	})

	It("stops with an error event on a read failure", func() {
		boom := errors.New("connection reset")
		r := sse.NewReader(io.MultiReader(strings.NewReader(frame("avant")), iotest.ErrReader(boom)), openAIPath)

		Expect(collect(r)).To(Equal([]sse.Event{sse.Delta("avant"), {Kind: sse.Error, ErrKind: sse.ErrKindRead}}))
		Expect(r.Err()).To(MatchError(boom))
	})

	It("is not restartable", func() {
		r := sse.NewReader(strings.NewReader("data: [DONE]\n\n"), openAIPath)
		collect(r)

		_, ok := r.Next()
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("Writer", func() {
	It("writes normalized frames that the normalizer reads back", func() {
		var buf bytes.Buffer
		w := sse.NewWriter(bufio.NewWriter(&buf))

		Expect(w.Delta(`dit "bonjour"`)).To(Succeed())
		Expect(w.Comment("error read")).To(Succeed())
		Expect(w.Done()).To(Succeed())

		Expect(buf.String()).To(HavePrefix(`data: {"choices":[{"delta":{"content":"dit \"bonjour\""}}]}` + "\n\n"))
		Expect(buf.String()).To(HaveSuffix("data: [DONE]\n\n"))

		events := sse.NewNormalizer(openAIPath).Feed(buf.Bytes())
		Expect(events).To(Equal([]sse.Event{sse.Delta(`dit "bonjour"`), {Kind: sse.End}}))
	})
})
