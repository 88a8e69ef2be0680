package mock

import (
	"context"
	"time"

	"github.com/sproutbotics/robin/pkg/llm"
)

type LLMConfig struct {
	Reply string
	// EchoUser replies with the last user message instead of the fixed
	// reply, which makes demo runs feel responsive.
	EchoUser bool
	Delay    time.Duration
	Err      error
}

type Responder struct {
	cfg LLMConfig
}

func NewResponder(cfg LLMConfig) *Responder {
	if cfg.Reply == "" && cfg.Err == nil {
		cfg.Reply = "mock response"
	}
	return &Responder{cfg: cfg}
}

var _ llm.Responder = (*Responder)(nil)

func (r *Responder) Name() string { return "mock_llm" }

func (r *Responder) Respond(ctx context.Context, messages []llm.Message) (llm.Response, error) {
	if r.cfg.Delay > 0 {
		select {
		case <-time.After(r.cfg.Delay):
		case <-ctx.Done():
			return llm.Response{}, ctx.Err()
		}
	}
	if r.cfg.Err != nil {
		return llm.Response{}, r.cfg.Err
	}
	text := r.cfg.Reply
	if r.cfg.EchoUser {
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].Role == llm.RoleUser {
				text = "You said: " + messages[i].Content
				break
			}
		}
	}
	return llm.Response{
		Text:         text,
		FinishReason: "stop",
		Usage:        llm.Usage{TotalTokens: len(text)},
	}, nil
}
