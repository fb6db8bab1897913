package assistant

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicflow/booking-assistant/internal/scheduling"
	"github.com/clinicflow/booking-assistant/pkg/logging"
)

const (
	defaultMaxHistory  = 40
	defaultLLMTimeout  = 30 * time.Second
	defaultToolTimeout = 15 * time.Second
	defaultMaxTokens   = 1024
)

const unavailableReply = "I'm sorry, I'm having trouble responding right now. Please try again in a moment, or call the clinic directly."

// Engine runs one conversation turn: extract entities, resolve references,
// let the model call tools, execute them, and guard the final reply.
type Engine struct {
	store     SessionStore
	extractor *Extractor
	resolver  *Resolver
	executor  *ToolExecutor
	llm       LLMClient
	selector  *scheduling.Selector
	logger    *logging.Logger
	clinic    ClinicContext

	maxHistory  int
	llmTimeout  time.Duration
	toolTimeout time.Duration
	now         func() time.Time
}

type EngineOption func(*Engine)

func WithMaxHistory(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxHistory = n
		}
	}
}

func WithLLMTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.llmTimeout = d
		}
	}
}

func WithToolTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.toolTimeout = d
		}
	}
}

// WithEngineClock overrides the clock, for tests.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store SessionStore, extractor *Extractor, resolver *Resolver, executor *ToolExecutor, llm LLMClient, selector *scheduling.Selector, clinic ClinicContext, logger *logging.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		store:       store,
		extractor:   extractor,
		resolver:    resolver,
		executor:    executor,
		llm:         llm,
		selector:    selector,
		logger:      logger,
		clinic:      clinic,
		maxHistory:  defaultMaxHistory,
		llmTimeout:  defaultLLMTimeout,
		toolTimeout: defaultToolTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ToolLogEntry records one executed tool call for the turn's audit log.
type ToolLogEntry struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result"`
	IsError   bool   `json:"is_error,omitempty"`
}

// TurnMetadata is diagnostic detail returned alongside the reply.
type TurnMetadata struct {
	Provider       string     `json:"provider"`
	AdapterMode    string     `json:"adapter_mode"`
	Resolved       bool       `json:"resolved_reference,omitempty"`
	GuardCorrected bool       `json:"guard_corrected,omitempty"`
	Usage          TokenUsage `json:"-"`
	DurationMS     int64      `json:"duration_ms"`
}

// TurnResult is the outcome of processing one inbound message.
type TurnResult struct {
	Reply       string         `json:"reply"`
	ToolCallLog []ToolLogEntry `json:"tool_call_log,omitempty"`
	Metadata    TurnMetadata   `json:"metadata"`
}

// ProcessMessage handles one inbound message for a session. The session is
// locked for the whole turn, so two in-flight turns for the same key
// serialize; different sessions run in parallel.
func (e *Engine) ProcessMessage(ctx context.Context, sessionKey, text string) (*TurnResult, error) {
	started := e.now()
	sess, release, err := e.store.Acquire(ctx, sessionKey)
	if err != nil {
		turnsTotal.WithLabelValues("store_error").Inc()
		return nil, fmt.Errorf("assistant: failed to acquire session: %w", err)
	}
	defer release()

	// Pre-context: mine entities from the new message, then try to map it
	// onto something already offered. Relative dates resolve against the
	// clinic's calendar day.
	turnNow := e.clinic.LocalTime(e.now())
	ex := e.extractor.Extract(text, RoleUser, turnNow)
	mergeExtraction(sess, ex, turnNow)
	res := e.resolver.Resolve(sess, text)
	catalogue := e.executor.Catalogue(sess)

	system := BuildSystemPrompt(e.clinic, sess, res, turnNow)
	messages := e.historyMessages(sess)
	messages = append(messages, Message{Role: RoleUser, Content: text})

	first, err := e.complete(ctx, ChatRequest{
		System:    system,
		Messages:  messages,
		Tools:     catalogue,
		MaxTokens: defaultMaxTokens,
	})
	if err != nil {
		e.logger.Error("first LLM pass failed", "session", sessionKey, "error", err.Error())
		return e.finishTurn(ctx, sess, text, unavailableReply, nil, TurnMetadata{
			Provider:    e.llm.Name(),
			AdapterMode: string(e.selector.Mode()),
			DurationMS:  e.now().Sub(started).Milliseconds(),
		}, "llm_error")
	}

	reply := first.Text
	var toolLog []ToolLogEntry
	turnOps := turnOperations{}

	if len(first.ToolCalls) > 0 {
		results := e.executeToolCalls(ctx, sess, catalogue, first.ToolCalls, turnOps)
		for i, r := range results {
			toolLog = append(toolLog, ToolLogEntry{
				Name:      r.Name,
				Arguments: string(first.ToolCalls[i].Arguments),
				Result:    r.Content,
				IsError:   r.IsError,
			})
		}

		// Second pass: the original assistant turn plus one tool-result
		// message per call, to produce the user-facing reply.
		messages = append(messages, Message{
			Role:      RoleAssistant,
			Content:   first.Text,
			ToolCalls: first.ToolCalls,
		})
		for _, r := range results {
			messages = append(messages, Message{
				Role:       RoleTool,
				Content:    r.Content,
				ToolCallID: r.CallID,
			})
		}
		second, err := e.complete(ctx, ChatRequest{
			System:    system,
			Messages:  messages,
			Tools:     catalogue,
			MaxTokens: defaultMaxTokens,
		})
		switch {
		case err != nil:
			e.logger.Error("second LLM pass failed", "session", sessionKey, "error", err.Error())
			reply = unavailableReply
		case second.Text != "":
			reply = second.Text
		default:
			// The model asked for more tools instead of answering; a turn
			// runs the loop once, so fall back to a neutral prompt.
			reply = "Let me know if you'd like me to check anything else for you."
		}
	}

	reply, verdict := CheckReply(reply, turnOps)
	if verdict.Corrected {
		guardCorrectionsTotal.WithLabelValues(string(verdict.Operation)).Inc()
		e.logger.Error("reply claimed an operation that did not succeed",
			"session", sessionKey,
			"operation", string(verdict.Operation),
		)
	}

	meta := TurnMetadata{
		Provider:       e.llm.Name(),
		AdapterMode:    string(e.selector.Mode()),
		Resolved:       res != nil,
		GuardCorrected: verdict.Corrected,
		DurationMS:     e.now().Sub(started).Milliseconds(),
	}
	return e.finishTurn(ctx, sess, text, reply, toolLog, meta, "ok")
}

// executeToolCalls runs each requested call exactly once, in order. A
// failed call produces an error payload entry, never a dropped call.
func (e *Engine) executeToolCalls(ctx context.Context, sess *Session, catalogue []ToolSpec, calls []ToolCall, turnOps turnOperations) []ToolResult {
	results := make([]ToolResult, 0, len(calls))
	for _, call := range calls {
		callCtx, cancel := context.WithTimeout(ctx, e.toolTimeout)
		result := e.executor.Execute(callCtx, sess, catalogue, call)
		cancel()
		results = append(results, result)

		if kind, ok := mutatingToolKinds[call.Name]; ok {
			if result.IsError {
				turnOps[kind] = StatusFailed
			} else {
				turnOps[kind] = StatusSuccess
			}
		}
	}
	return results
}

func (e *Engine) finishTurn(ctx context.Context, sess *Session, userText, reply string, toolLog []ToolLogEntry, meta TurnMetadata, status string) (*TurnResult, error) {
	sess.AppendMessage(RoleUser, userText, e.now())
	sess.AppendMessage(RoleAssistant, reply, e.now())
	if err := e.store.Save(ctx, sess); err != nil {
		e.logger.Error("failed to persist session after turn", "session", sess.Key, "error", err.Error())
	}
	turnsTotal.WithLabelValues(status).Inc()
	return &TurnResult{Reply: reply, ToolCallLog: toolLog, Metadata: meta}, nil
}

func (e *Engine) complete(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.llmTimeout)
	defer cancel()
	started := e.now()
	resp, err := e.llm.Complete(callCtx, req)
	observeLLMCall(e.llm.Name(), e.now().Sub(started).Seconds(), resp.Usage, err)
	return resp, err
}

func (e *Engine) historyMessages(sess *Session) []Message {
	recent := sess.RecentMessages(e.maxHistory)
	messages := make([]Message, 0, len(recent)+1)
	for _, m := range recent {
		messages = append(messages, Message{Role: m.Role, Content: m.Content})
	}
	return messages
}

// Session returns a read-only copy of the session for inspection and
// export.
func (e *Engine) Session(ctx context.Context, key string) (*Session, error) {
	return e.store.Peek(ctx, key)
}

// DeleteSession drops all stored state for the session key.
func (e *Engine) DeleteSession(ctx context.Context, key string) error {
	return e.store.Delete(ctx, key)
}
