package askcmder

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sigmachat/sigma/pkg/llm"
	"github.com/sigmachat/sigma/pkg/sse"
)

const askLongDesc string = `Ask the SIGMA gateway a single question.

Posts a one-turn conversation to the gateway and prints the answer as it
streams in. An image can be attached with --image; it is sent inline as a
data URL. With --render, the complete answer is rendered as markdown when
stdout is a terminal.

Examples:
  sigma ask "Quelle est la capitale du Japon ?"
  sigma ask --image photo.png "Que vois-tu ?"
  sigma ask --server http://192.168.1.42:8080 --render "Explique les goroutines"`

const askShortDesc string = "Ask the gateway a question"

const defaultServer = "http://localhost:8080"

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("205"))

type askCommander struct {
	server  string
	path    string
	image   string
	render  bool
	timeout time.Duration
}

func NewAskCmd() *cobra.Command {
	cmder := &askCommander{}

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: askShortDesc,
		Long:  askLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&cmder.server, "server", "s", defaultServer, "Gateway base URL")
	cmd.Flags().StringVar(&cmder.path, "path", "/chat", "Chat endpoint path")
	cmd.Flags().StringVarP(&cmder.image, "image", "i", "", "Image file to attach")
	cmd.Flags().BoolVar(&cmder.render, "render", false, "Render the answer as markdown on a terminal")
	cmd.Flags().DurationVar(&cmder.timeout, "timeout", 2*time.Minute, "Overall request timeout")

	return cmd
}

func (c *askCommander) run(ctx context.Context, cmd *cobra.Command, question string) error {
	turn := llm.Turn{Role: llm.RoleUser, Text: question}
	if c.image != "" {
		dataURL, err := encodeImage(c.image)
		if err != nil {
			return err
		}
		turn.Image = dataURL
	}

	body, err := json.Marshal(llm.ChatRequest{Messages: llm.Conversation{turn}})
	if err != nil {
		return fmt.Errorf("could not marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := strings.TrimRight(c.server, "/") + c.path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("could not build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	out := cmd.OutOrStdout()
	rendering := c.render && isTerminal(out)
	fmt.Fprintln(out, headerStyle.Render("SIGMA"))

	// Token-by-token output is only useful when nothing is rendered at the
	// end.
	var live io.Writer = out
	if rendering {
		live = io.Discard
	}

	var answer string
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		answer, err = readStream(resp.Body, live)
	} else {
		answer, err = readMessage(resp.Body, live)
	}
	if err != nil {
		return err
	}

	if rendering {
		return renderMarkdown(out, answer)
	}
	fmt.Fprintln(out)
	return nil
}

// readStream copies deltas to w as they arrive and returns the full answer.
func readStream(body io.Reader, w io.Writer) (string, error) {
	events := sse.NewReader(body, llm.DeltaPath)

	var answer strings.Builder
	for {
		ev, ok := events.Next()
		if !ok {
			return answer.String(), nil
		}

		switch ev.Kind {
		case sse.TokenDelta:
			answer.WriteString(ev.Text)
			if _, err := io.WriteString(w, ev.Text); err != nil {
				return "", err
			}
		case sse.End:
			return answer.String(), nil
		case sse.Error:
			if err := events.Err(); err != nil {
				return answer.String(), fmt.Errorf("stream interrupted: %w", err)
			}
			return answer.String(), fmt.Errorf("stream interrupted: %s", ev.ErrKind)
		}
	}
}

// readMessage handles the non-streamed replies: refusals, the overloaded
// notice and fault messages.
func readMessage(body io.Reader, w io.Writer) (string, error) {
	var msg llm.CompletionResponse
	if err := json.NewDecoder(body).Decode(&msg); err != nil {
		return "", fmt.Errorf("could not decode response: %w", err)
	}
	text := msg.Text()
	if _, err := io.WriteString(w, text); err != nil {
		return "", err
	}
	return text, nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var e llm.ErrorResponse
	if err := json.Unmarshal(raw, &e); err == nil && e.Error != "" {
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}

// encodeImage reads path and returns it as a data URL.
func encodeImage(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("could not read image: %w", err)
	}
	if len(raw) == 0 {
		return "", errors.New("image file is empty")
	}

	mime := http.DetectContentType(raw)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("%s does not look like an image (detected %s)", path, mime)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func renderMarkdown(w io.Writer, text string) error {
	width := 80
	if f, ok := w.(*os.File); ok {
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 0 {
			width = cols
		}
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fmt.Errorf("could not create markdown renderer: %w", err)
	}

	rendered, err := r.Render(text)
	if err != nil {
		return fmt.Errorf("could not render answer: %w", err)
	}
	_, err = io.WriteString(w, rendered)
	return err
}
