package interceptor

import (
	"context"
	"fmt"

	"github.com/torkjacobs/tork-guardian/internal/client"
	"github.com/torkjacobs/tork-guardian/internal/policy"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type LLMRequest struct {
	Model    string    `json:"model,omitempty"`
	Messages []Message `json:"messages"`
}

// GovernedRequest is the request as it may be sent on, plus what
// governance found along the way.
type GovernedRequest struct {
	Request  LLMRequest `json:"request"`
	Governed bool       `json:"governed"`
	PIIFound bool       `json:"pii_found"`
	Receipts []string   `json:"receipts,omitempty"`
}

// Governor is the subset of client.Client used for content governance.
type Governor interface {
	Govern(ctx context.Context, content string, opts *client.Options) client.GovernResponse
}

// GovernanceDeniedError is returned when the governance service rejects a
// message outright.
type GovernanceDeniedError struct {
	MessageIndex int
	Response     client.GovernResponse
}

func (e *GovernanceDeniedError) Error() string {
	return fmt.Sprintf("governance denied message %d", e.MessageIndex)
}

// GovernLLMRequest sends each non-empty message through g. The input
// request is left unmodified; redacted content appears only in the
// returned copy. A deny verdict stops processing with a
// *GovernanceDeniedError.
func GovernLLMRequest(ctx context.Context, g Governor, req LLMRequest, cfg *policy.Config) (GovernedRequest, error) {
	out := GovernedRequest{
		Request: LLMRequest{
			Model:    req.Model,
			Messages: make([]Message, len(req.Messages)),
		},
	}
	copy(out.Request.Messages, req.Messages)

	opts := &client.Options{Mode: "govern"}
	if cfg != nil && cfg.RedactPII {
		opts.Mode = "redact"
	}

	for i, msg := range out.Request.Messages {
		if msg.Content == "" {
			continue
		}

		resp := g.Govern(ctx, msg.Content, opts)
		if resp.Receipt != nil && resp.Receipt.ID != "" {
			out.Receipts = append(out.Receipts, resp.Receipt.ID)
		}

		switch resp.Action {
		case client.ActionDeny:
			return GovernedRequest{}, &GovernanceDeniedError{MessageIndex: i, Response: resp}
		case client.ActionRedact:
			out.Request.Messages[i].Content = resp.Output
			out.Governed = true
			out.PIIFound = true
		}
	}
	return out, nil
}
