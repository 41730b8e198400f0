package provider_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sigmachat/sigma/pkg/llm"
	"github.com/sigmachat/sigma/pkg/provider"
)

type capturedRequest struct {
	Path   string
	Query  string
	Header http.Header
	Body   map[string]any
}

// upstream starts a fake provider that records the request and answers with
// the given status and body.
func upstream(status int, body string) (*httptest.Server, *capturedRequest) {
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Path = r.URL.Path
		captured.Query = r.URL.RawQuery
		captured.Header = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &captured.Body)

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	DeferCleanup(srv.Close)
	return srv, captured
}

var conversation = llm.Conversation{
	{Role: llm.RoleUser, Text: "Bonjour"},
	{Role: llm.RoleAssistant, Text: "Salut"},
	{Role: llm.RoleUser, Text: "Que vois-tu ?", Image: "data:image/png;base64,iVBORw0KGgo="},
}

func send(spec provider.Spec, model string) (*provider.Stream, error) {
	return sendConversation(spec, model, conversation)
}

func sendConversation(spec provider.Spec, model string, conv llm.Conversation) (*provider.Stream, error) {
	a, err := provider.New(spec, model, http.DefaultClient)
	Expect(err).NotTo(HaveOccurred())
	return a.Send(context.Background(), &provider.Request{Conversation: conv, SystemPrompt: "sois bref"})
}

var _ = Describe("OpenAI-compatible adapter", func() {
	It("shapes a streaming chat request with bearer auth", func() {
		srv, got := upstream(http.StatusOK, "data: [DONE]\n\n")
		spec := provider.Spec{Name: "gateway", Kind: provider.KindOpenAI, Endpoint: srv.URL + "/v1/chat/completions", APIKey: "k-1"}

		stream, err := send(spec, "gpt-mini")
		Expect(err).NotTo(HaveOccurred())
		defer stream.Close()

		Expect(got.Path).To(Equal("/v1/chat/completions"))
		Expect(got.Header.Get("Authorization")).To(Equal("Bearer k-1"))
		Expect(got.Body["model"]).To(Equal("gpt-mini"))
		Expect(got.Body["stream"]).To(BeTrue())

		messages := got.Body["messages"].([]any)
		Expect(messages).To(HaveLen(4))
		Expect(messages[0]).To(HaveKeyWithValue("role", "system"))
		Expect(messages[0]).To(HaveKeyWithValue("content", "sois bref"))
		Expect(messages[2]).To(HaveKeyWithValue("role", "assistant"))
		Expect(messages[2]).To(HaveKeyWithValue("content", "Salut"))

		parts := messages[3].(map[string]any)["content"].([]any)
		Expect(parts).To(HaveLen(2))
		Expect(parts[0]).To(HaveKeyWithValue("type", "text"))
		Expect(parts[1]).To(HaveKeyWithValue("type", "image_url"))
		Expect(parts[1]).To(HaveKeyWithValue("image_url", HaveKeyWithValue("url", "data:image/png;base64,iVBORw0KGgo=")))
	})

	It("sends only the image part for an image-only turn", func() {
		srv, got := upstream(http.StatusOK, "data: [DONE]\n\n")
		spec := provider.Spec{Name: "gateway", Kind: provider.KindOpenAI, Endpoint: srv.URL}

		stream, err := sendConversation(spec, "m", llm.Conversation{
			{Role: llm.RoleUser, Image: "data:image/png;base64,AAAA"},
		})
		Expect(err).NotTo(HaveOccurred())
		defer stream.Close()

		messages := got.Body["messages"].([]any)
		Expect(messages).To(HaveLen(2))
		parts := messages[1].(map[string]any)["content"].([]any)
		Expect(parts).To(HaveLen(1))
		Expect(parts[0]).To(HaveKeyWithValue("type", "image_url"))
		Expect(parts[0]).NotTo(HaveKey("text"))
	})

	It("returns the body and delta path on success", func() {
		srv, _ := upstream(http.StatusOK, `data: {"choices":[{"delta":{"content":"hi"}}]}`+"\n\n")
		spec := provider.Spec{Name: "gateway", Kind: provider.KindOpenAI, Endpoint: srv.URL}

		stream, err := send(spec, "m")
		Expect(err).NotTo(HaveOccurred())
		defer stream.Close()

		Expect(stream.Provider).To(Equal("gateway/m"))
		Expect(stream.DeltaPath).To(Equal(llm.DeltaPath))
		body, err := io.ReadAll(stream.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(ContainSubstring(`"hi"`))
	})
})

var _ = Describe("Gemini adapter", func() {
	It("shapes a native streaming request with header auth", func() {
		srv, got := upstream(http.StatusOK, "")
		spec := provider.Spec{
			Name: "gemini", Kind: provider.KindGemini, Endpoint: srv.URL + "/v1beta/models/",
			AuthKind: provider.AuthHeader, AuthHeader: "x-goog-api-key", APIKey: "g-1",
		}

		stream, err := send(spec, "gemini-1.5-flash")
		Expect(err).NotTo(HaveOccurred())
		defer stream.Close()

		Expect(got.Path).To(Equal("/v1beta/models/gemini-1.5-flash:streamGenerateContent"))
		Expect(got.Query).To(Equal("alt=sse"))
		Expect(got.Header.Get("x-goog-api-key")).To(Equal("g-1"))
		Expect(got.Header.Get("Authorization")).To(BeEmpty())
		Expect(stream.DeltaPath).To(Equal("candidates.0.content.parts.0.text"))

		system := got.Body["systemInstruction"].(map[string]any)
		Expect(system["parts"]).To(ConsistOf(HaveKeyWithValue("text", "sois bref")))

		contents := got.Body["contents"].([]any)
		Expect(contents).To(HaveLen(3))
		Expect(contents[1]).To(HaveKeyWithValue("role", "model"))

		last := contents[2].(map[string]any)
		Expect(last["role"]).To(Equal("user"))
		Expect(last["parts"]).To(ConsistOf(
			HaveKeyWithValue("text", "Que vois-tu ?"),
			HaveKeyWithValue("inline_data", And(
				HaveKeyWithValue("mime_type", "image/png"),
				HaveKeyWithValue("data", "iVBORw0KGgo="),
			)),
		))
	})
})

var _ = Describe("Gemini adapter with sparse turns", func() {
	var spec provider.Spec
	var got *capturedRequest

	BeforeEach(func() {
		var srv *httptest.Server
		srv, got = upstream(http.StatusOK, "")
		spec = provider.Spec{Name: "gemini", Kind: provider.KindGemini, Endpoint: srv.URL}
	})

	It("skips turns that carry neither text nor image", func() {
		stream, err := sendConversation(spec, "gemini-1.5-flash", llm.Conversation{
			{Role: llm.RoleUser, Text: "Bonjour"},
			{Role: llm.RoleAssistant},
			{Role: llm.RoleUser, Text: "Tu es là ?"},
		})
		Expect(err).NotTo(HaveOccurred())
		defer stream.Close()

		contents := got.Body["contents"].([]any)
		Expect(contents).To(HaveLen(2))
		for _, c := range contents {
			Expect(c.(map[string]any)["parts"]).NotTo(BeEmpty())
		}
	})

	It("sends an image-only turn as a single inline part", func() {
		stream, err := sendConversation(spec, "gemini-1.5-flash", llm.Conversation{
			{Role: llm.RoleUser, Image: "data:image/jpeg;base64,/9j/"},
		})
		Expect(err).NotTo(HaveOccurred())
		defer stream.Close()

		contents := got.Body["contents"].([]any)
		Expect(contents).To(HaveLen(1))
		Expect(contents[0].(map[string]any)["parts"]).To(ConsistOf(
			HaveKeyWithValue("inline_data", HaveKeyWithValue("mime_type", "image/jpeg")),
		))
	})
})

var _ = Describe("Failure classification", func() {
	DescribeTable("maps upstream statuses",
		func(status int, want provider.Class) {
			srv, _ := upstream(status, `{"error":{"message":"nope"}}`)
			spec := provider.Spec{Name: "gateway", Kind: provider.KindOpenAI, Endpoint: srv.URL}

			stream, err := send(spec, "m")
			Expect(stream).To(BeNil())

			var f *provider.Failure
			Expect(errors.As(err, &f)).To(BeTrue())
			Expect(f.Class).To(Equal(want))
			Expect(f.StatusCode).To(Equal(status))
			Expect(f.Provider).To(Equal("gateway/m"))
			Expect(f.Detail).To(ContainSubstring("nope"))
		},
		Entry("401 unauthorized", http.StatusUnauthorized, provider.AuthFailure),
		Entry("403 forbidden", http.StatusForbidden, provider.AuthFailure),
		Entry("402 payment required", http.StatusPaymentRequired, provider.QuotaOrRateLimited),
		Entry("429 too many requests", http.StatusTooManyRequests, provider.QuotaOrRateLimited),
		Entry("408 request timeout", http.StatusRequestTimeout, provider.TransientServerError),
		Entry("500 internal error", http.StatusInternalServerError, provider.TransientServerError),
		Entry("503 unavailable", http.StatusServiceUnavailable, provider.TransientServerError),
		Entry("400 bad request", http.StatusBadRequest, provider.PermanentError),
		Entry("404 not found", http.StatusNotFound, provider.PermanentError),
	)

	It("drains large error bodies and keeps a bounded excerpt", func() {
		srv, _ := upstream(http.StatusInternalServerError, strings.Repeat("x", 64*1024))
		spec := provider.Spec{Name: "gateway", Kind: provider.KindOpenAI, Endpoint: srv.URL}

		_, err := send(spec, "m")

		var f *provider.Failure
		Expect(errors.As(err, &f)).To(BeTrue())
		Expect(len(f.Detail)).To(BeNumerically("<=", 512))
	})

	It("treats connection errors as transient", func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := send(provider.Spec{Name: "gateway", Kind: provider.KindOpenAI, Endpoint: url}, "m")

		var f *provider.Failure
		Expect(errors.As(err, &f)).To(BeTrue())
		Expect(f.Class).To(Equal(provider.TransientServerError))
		Expect(f.StatusCode).To(BeZero())
	})

	It("treats caller cancellation as permanent", func() {
		srv, _ := upstream(http.StatusOK, "")
		a, err := provider.New(provider.Spec{Name: "gateway", Kind: provider.KindOpenAI, Endpoint: srv.URL}, "m", http.DefaultClient)
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = a.Send(ctx, &provider.Request{Conversation: conversation})

		var f *provider.Failure
		Expect(errors.As(err, &f)).To(BeTrue())
		Expect(f.Class).To(Equal(provider.PermanentError))
	})

	It("only retries quota and transient classes", func() {
		Expect(provider.QuotaOrRateLimited.Retryable()).To(BeTrue())
		Expect(provider.TransientServerError.Retryable()).To(BeTrue())
		Expect(provider.AuthFailure.Retryable()).To(BeFalse())
		Expect(provider.PermanentError.Retryable()).To(BeFalse())
	})
})

var _ = Describe("BuildChain", func() {
	It("expands families into one candidate per model, in order", func() {
		chain, err := provider.BuildChain([]provider.Spec{
			{Name: "gateway", Kind: provider.KindOpenAI, Models: []string{"a", "b"}, Retry: provider.SingleAttempt()},
			{Name: "gemini", Kind: provider.KindGemini, Models: []string{"c"}, Retry: provider.RetryPolicy{MaxAttempts: 3}},
		}, http.DefaultClient)
		Expect(err).NotTo(HaveOccurred())

		var names []string
		for _, c := range chain {
			names = append(names, c.Adapter.Name())
		}
		Expect(names).To(Equal([]string{"gateway/a", "gateway/b", "gemini/c"}))
		Expect(chain[0].Adapter.Family()).To(Equal("gateway"))
		Expect(chain[2].Retry.Attempts()).To(Equal(3))
	})

	It("rejects unknown kinds", func() {
		_, err := provider.BuildChain([]provider.Spec{{Name: "x", Kind: "carrier-pigeon", Models: []string{"m"}}}, http.DefaultClient)

		Expect(err).To(MatchError(ContainSubstring("unknown kind")))
	})
})

var _ = Describe("RetryPolicy", func() {
	It("waits base times attempt", func() {
		p := provider.RetryPolicy{MaxAttempts: 3, Backoff: provider.LinearBackoff(time.Second)}

		Expect(p.Delay(1)).To(Equal(time.Second))
		Expect(p.Delay(2)).To(Equal(2 * time.Second))
	})

	It("defaults to one attempt without pauses", func() {
		var p provider.RetryPolicy

		Expect(p.Attempts()).To(Equal(1))
		Expect(p.Delay(1)).To(BeZero())
	})
})
