// Package agent is the recursive loop driver: it builds each prompt, streams
// the reply, executes embedded directives and persists progress so a run can
// be paused, cancelled or resumed.
//
// Run returns an iterator; the caller pulls events synchronously and all work
// happens on the caller's goroutine.
package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"laserlens/internal/archive"
	"laserlens/internal/contextmgr"
	"laserlens/internal/llm"
	"laserlens/internal/logging"
	"laserlens/internal/ratelimit"
	"laserlens/internal/retry"
	"laserlens/internal/state"
	"laserlens/internal/tools"

	"github.com/google/uuid"
)

// ErrCancelled is the cause carried by a cancelled run's final state.
var ErrCancelled = errors.New("run cancelled")

// errStopped means the event consumer stopped pulling.
var errStopped = errors.New("event consumer stopped")

// TurnArchive receives every completed turn. Failures are logged only.
type TurnArchive interface {
	AppendTurn(ctx context.Context, t archive.Turn) error
}

// Deps are the collaborators the driver is built from.
type Deps struct {
	Generator llm.Generator
	Limiter   *ratelimit.Limiter
	Context   *contextmgr.Aggregator
	Registry  *tools.Registry
	Store     *state.Store
	Archive   TurnArchive // optional
	Policy    retry.Policy
	Control   *Control // optional; one is created if nil
	Now       func() time.Time
}

// Options configure one session.
type Options struct {
	SessionID     string
	Topic         string
	Model         string
	Loops         int
	Temperature   float64
	Seed          *int
	ThinkingMode  bool
	HistoryWindow int
	StreamDelim   string
	StreamSuffix  string

	// StartLoop seeds the loop index of a fresh session; 0 means 1.
	StartLoop int
}

// Agent drives one session.
type Agent struct {
	deps    Deps
	opts    Options
	sess    *state.Session
	mirror  *state.Mirror
	control *Control
	state   State
}

// New starts a fresh session and persists it.
func New(deps Deps, opts Options) (*Agent, error) {
	if err := validate(deps, opts); err != nil {
		return nil, err
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.New().String()
	}
	start := opts.StartLoop
	if start < 1 {
		start = 1
	}
	sess := &state.Session{
		SessionID:        opts.SessionID,
		Topic:            opts.Topic,
		Model:            opts.Model,
		CurrentLoopIndex: start,
		TotalLoops:       opts.Loops,
	}
	a := newAgent(deps, opts, sess)
	a.openMirror("")
	a.persist()
	logging.Session("started session %s: %q, loops %d..%d", sess.SessionID, sess.Topic, start, sess.TotalLoops)
	return a, nil
}

// Resume rebuilds a driver from persisted state. Loop index, history and
// last thought are kept; pause and cancel flags are cleared; the previous
// stream mirror is reopened for appending. opts.Loops, when positive,
// replaces the persisted total.
func Resume(deps Deps, opts Options, prior *state.Session) (*Agent, error) {
	if prior == nil || prior.Status() == state.StatusEmpty {
		return nil, fmt.Errorf("no session to resume")
	}
	sess := *prior
	sess.History = append([]state.Turn(nil), prior.History...)
	sess.CommandResults = append([]state.CommandResult(nil), prior.CommandResults...)
	// a finished run persists its index clamped to the total
	if sess.Completed {
		sess.CurrentLoopIndex = sess.TotalLoops + 1
		sess.Completed = false
	}
	if opts.Loops > 0 {
		sess.TotalLoops = opts.Loops
	}
	if sess.CurrentLoopIndex < 1 {
		sess.CurrentLoopIndex = len(sess.History) + 1
	}
	if opts.Topic == "" {
		opts.Topic = sess.Topic
	}
	if opts.Model == "" {
		opts.Model = sess.Model
	}
	opts.SessionID = sess.SessionID
	opts.Loops = sess.TotalLoops
	if err := validate(deps, opts); err != nil {
		return nil, err
	}
	sess.Paused, sess.Cancelled = nil, nil

	a := newAgent(deps, opts, &sess)
	a.openMirror(prior.TmpStreamPath)
	a.persist()
	logging.Session("resumed session %s at loop %d of %d (%d turns)",
		sess.SessionID, sess.CurrentLoopIndex, sess.TotalLoops, len(sess.History))
	return a, nil
}

func validate(deps Deps, opts Options) error {
	switch {
	case deps.Generator == nil:
		return fmt.Errorf("generator is required")
	case deps.Store == nil:
		return fmt.Errorf("state store is required")
	case deps.Registry == nil:
		return fmt.Errorf("directive registry is required")
	case opts.Loops <= 0:
		return fmt.Errorf("loop count must be positive, got %d", opts.Loops)
	case strings.TrimSpace(opts.Topic) == "":
		return fmt.Errorf("topic is required")
	}
	return nil
}

func newAgent(deps Deps, opts Options, sess *state.Session) *Agent {
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.New(0)
	}
	if deps.Context == nil {
		deps.Context = contextmgr.New(contextmgr.Options{})
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Control == nil {
		deps.Control = NewControl()
	}
	if opts.StreamDelim == "" {
		opts.StreamDelim = "###"
	}
	if deps.Policy.Classify == nil {
		deps.Policy.Classify = classify
	}
	return &Agent{deps: deps, opts: opts, sess: sess, control: deps.Control, state: StateIdle}
}

// openMirror reopens prev in append mode, falling back to a new file in the
// state directory. Without a mirror the run continues unmirrored.
func (a *Agent) openMirror(prev string) {
	log := logging.Get(logging.CategorySession)
	if prev != "" {
		m, err := state.OpenMirror(prev)
		if err == nil {
			a.mirror = m
			a.sess.TmpStreamPath = m.Path()
			return
		}
		log.Warn("could not reopen stream mirror %s, creating a new one: %v", prev, err)
	}
	path := state.MirrorPath(a.deps.Store.Dir(), a.sess.SessionID, a.opts.StreamSuffix)
	m, err := state.OpenMirror(path)
	if err != nil {
		log.Warn("stream mirror disabled: %v", err)
		a.sess.TmpStreamPath = ""
		return
	}
	a.mirror = m
	a.sess.TmpStreamPath = m.Path()
}

// Control returns the driver's cancellation token.
func (a *Agent) Control() *Control { return a.control }

// State returns the lifecycle state after the last Run.
func (a *Agent) State() State { return a.state }

// Session returns a copy of the current session.
func (a *Agent) Session() state.Session {
	s := *a.sess
	s.History = append([]state.Turn(nil), a.sess.History...)
	s.CommandResults = append([]state.CommandResult(nil), a.sess.CommandResults...)
	return s
}

// Close releases the stream mirror.
func (a *Agent) Close() error {
	if a.mirror == nil {
		return nil
	}
	err := a.mirror.Close()
	a.mirror = nil
	return err
}

// Run drives turns until the session completes, pauses, is cancelled or
// fails. A failure produces one EventError, always the last event. Calling
// Run again after a pause continues at the same loop index.
func (a *Agent) Run(ctx context.Context) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		if a.state.Terminal() {
			logging.Get(logging.CategoryAgent).Warn("run requested on a %s session", a.state)
			return
		}
		ctx, release := a.control.bind(ctx)
		defer release()

		a.control.Resume()
		a.sess.Paused = nil
		a.state = StateRunning
		logging.Agent("run: loop %d of %d", a.sess.CurrentLoopIndex, a.sess.TotalLoops)

		out := a.loop(ctx, yield)
		a.finish(out)
	}
}

func (a *Agent) loop(ctx context.Context, yield func(Event) bool) outcome {
	for a.sess.CurrentLoopIndex <= a.sess.TotalLoops {
		if a.cancelRequested(ctx) {
			a.markCancelled(ctx, "")
			return outcomeCancel
		}
		if out := a.turn(ctx, yield); out != outcomeContinue {
			return out
		}
	}
	return outcomeComplete
}

// turn runs one prompt/response cycle.
func (a *Agent) turn(ctx context.Context, yield func(Event) bool) outcome {
	loop, total := a.sess.CurrentLoopIndex, a.sess.TotalLoops
	log := logging.Get(logging.CategoryAgent)

	contextText := a.deps.Context.Render()
	prompt := BuildPrompt(a.sess, contextText, a.opts.ThinkingMode, a.opts.HistoryWindow)
	logging.AgentDebug("loop %d: context %d chars, prompt %d chars", loop, len(contextText), len(prompt))

	if err := a.deps.Limiter.Wait(ctx); err != nil {
		a.markCancelled(ctx, "")
		return outcomeCancel
	}

	response, err := a.generate(ctx, prompt, loop, total, yield)
	switch {
	case errors.Is(err, errStopped):
		a.markCancelled(ctx, "event consumer stopped")
		return outcomeCancel
	case err != nil && a.cancelRequested(ctx):
		a.markCancelled(ctx, "")
		return outcomeCancel
	case err != nil:
		err = llm.Tag(err)
		msg := errorMessage(loop, err)
		log.Error("%s", msg)
		yield(Event{Kind: EventError, Loop: loop, Total: total, Text: msg, Err: err})
		return outcomeError
	}

	a.mirrorWrite("\n" + a.opts.StreamDelim + "\n")

	ts := a.deps.Now().UTC()
	a.sess.History = append(a.sess.History, state.Turn{
		Loop:      loop,
		Prompt:    prompt,
		Response:  response,
		Timestamp: ts.Format(time.RFC3339),
	})
	a.sess.LastThought = response
	a.persist()
	a.archive(ctx, loop, prompt, response, ts)

	results := a.deps.Registry.ScanAndExecute(ctx, response)
	a.sess.CommandResults = toCommandResults(results)
	a.applyControl(results)
	a.persist()

	more := yield(Event{Kind: EventTurnEnd, Loop: loop, Total: total, Text: response, Directives: results})

	a.sess.CurrentLoopIndex++
	a.persist()

	if reason, ok := a.control.Paused(); ok && a.sess.Paused == nil {
		a.sess.Paused = &reason
	}
	switch {
	case a.sess.Cancelled != nil:
		return outcomeCancel
	case !more:
		a.markCancelled(ctx, "event consumer stopped")
		return outcomeCancel
	case a.sess.Paused != nil:
		return outcomePause
	}
	return outcomeContinue
}

// generate streams one response under the retry policy. Fragments are
// mirrored and yielded as they arrive; a retried attempt starts a fresh
// response, and the mirror gets a delimiter after a failed attempt's text
// so the two never read back as one segment.
func (a *Agent) generate(ctx context.Context, prompt string, loop, total int, yield func(Event) bool) (string, error) {
	req := llm.Request{Prompt: prompt, Temperature: a.opts.Temperature, Seed: a.opts.Seed}
	var buf strings.Builder
	mirrored := false

	err := a.deps.Policy.Do(ctx, func(attempt int) error {
		buf.Reset()
		if mirrored {
			a.mirrorWrite("\n" + a.opts.StreamDelim + "\n")
			mirrored = false
		}
		if attempt > 1 {
			logging.API("loop %d: attempt %d", loop, attempt)
		}
		for frag, err := range a.deps.Generator.Stream(ctx, req) {
			if err != nil {
				return err
			}
			if a.cancelRequested(ctx) {
				return context.Canceled
			}
			if strings.TrimSpace(frag) == "" {
				continue
			}
			a.mirrorWrite(frag)
			mirrored = true
			buf.WriteString(frag)
			if !yield(Event{Kind: EventChunk, Loop: loop, Total: total, Text: frag}) {
				return errStopped
			}
		}
		if a.cancelRequested(ctx) {
			return context.Canceled
		}
		return nil
	})
	return buf.String(), err
}

// classify maps generation failures to retry actions.
func classify(err error) retry.Action {
	if errors.Is(err, errStopped) {
		return retry.Fatal
	}
	switch llm.Classify(err) {
	case llm.ClassQuota, llm.ClassCancelled:
		return retry.Fatal
	case llm.ClassOverloaded:
		return retry.Fixed
	default:
		return retry.Backoff
	}
}

func errorMessage(loop int, err error) string {
	var exhausted *retry.ExhaustedError
	switch {
	case errors.Is(err, llm.ErrQuotaExhausted):
		return fmt.Sprintf("Quota exhausted on loop %d: %v", loop, err)
	case errors.As(err, &exhausted):
		return fmt.Sprintf("Exceeded retries on loop %d: %v", loop, exhausted.Err)
	default:
		return fmt.Sprintf("Generation failed on loop %d: %v", loop, err)
	}
}

// applyControl turns successful CANCEL/PAUSE directives into session flags.
func (a *Agent) applyControl(results []tools.Result) {
	for i := range results {
		r := &results[i]
		if !r.IsSuccess() {
			continue
		}
		tool := a.deps.Registry.Get(r.Tool)
		if tool == nil || tool.Category != tools.CategoryControl {
			continue
		}
		reason := r.Output
		switch r.Tool {
		case "CANCEL":
			if a.sess.Cancelled == nil {
				a.sess.Cancelled = &reason
			}
			logging.Agent("model requested cancel: %s", reason)
		case "PAUSE":
			if a.sess.Paused == nil {
				a.sess.Paused = &reason
			}
			logging.Agent("model requested pause: %s", reason)
		}
	}
}

func toCommandResults(results []tools.Result) []state.CommandResult {
	if len(results) == 0 {
		return nil
	}
	out := make([]state.CommandResult, len(results))
	for i, r := range results {
		out[i] = state.CommandResult{Name: r.Name, Result: r.Output}
	}
	return out
}

func (a *Agent) cancelRequested(ctx context.Context) bool {
	if _, ok := a.control.Cancelled(); ok {
		return true
	}
	return ctx.Err() != nil
}

func (a *Agent) markCancelled(ctx context.Context, fallback string) {
	if a.sess.Cancelled != nil {
		return
	}
	reason, ok := a.control.Cancelled()
	if !ok {
		reason = fallback
		if reason == "" && ctx.Err() != nil {
			reason = ctx.Err().Error()
		}
		if reason == "" {
			reason = ErrCancelled.Error()
		}
	}
	a.sess.Cancelled = &reason
	logging.Agent("run cancelled at loop %d: %s", a.sess.CurrentLoopIndex, reason)
}

func (a *Agent) finish(out outcome) {
	a.state = out.state()
	a.sess.Completed = out == outcomeComplete
	if (out == outcomeComplete || out == outcomeCancel) && a.sess.CurrentLoopIndex > a.sess.TotalLoops {
		a.sess.CurrentLoopIndex = a.sess.TotalLoops
	}
	a.persist()
	logging.Agent("run ended: %s (loop %d of %d, %d turns)",
		a.state, a.sess.CurrentLoopIndex, a.sess.TotalLoops, len(a.sess.History))
}

// persist is best effort; a failed save is logged and the run goes on.
func (a *Agent) persist() {
	if err := a.deps.Store.Save(a.sess); err != nil {
		logging.Get(logging.CategoryStore).Error("state save failed: %v", err)
	}
}

func (a *Agent) mirrorWrite(text string) {
	if a.mirror == nil {
		return
	}
	if err := a.mirror.Write(text); err != nil {
		logging.Get(logging.CategorySession).Warn("%v", err)
	}
}

func (a *Agent) archive(ctx context.Context, loop int, prompt, response string, ts time.Time) {
	if a.deps.Archive == nil {
		return
	}
	err := a.deps.Archive.AppendTurn(context.WithoutCancel(ctx), archive.Turn{
		SessionID: a.sess.SessionID,
		LoopIndex: loop,
		Prompt:    prompt,
		Response:  response,
		CreatedAt: ts,
	})
	if err != nil {
		logging.Get(logging.CategoryStore).Warn("archive append failed: %v", err)
	}
}
