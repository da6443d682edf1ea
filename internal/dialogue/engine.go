// Package dialogue implements the conversation state machine: a fixed
// questionnaire that collects a content profile, generates and validates a
// content calendar, and serves per-post and product-repackaging requests.
package dialogue

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/avbuyanov/postpilot/internal/backend"
	"github.com/avbuyanov/postpilot/internal/chat"
	"github.com/avbuyanov/postpilot/internal/entitlement"
	"github.com/avbuyanov/postpilot/internal/models"
	"github.com/avbuyanov/postpilot/internal/plan"
	"github.com/avbuyanov/postpilot/internal/prompt"
	"github.com/avbuyanov/postpilot/internal/store"
	"github.com/google/uuid"
)

// maxMessageLen is the largest single message we send; longer texts
// (content plans) are split into chunks.
const maxMessageLen = 4000

// Engine is the dialogue state machine controller. It owns all sessions,
// applies one transition per inbound event, and talks to the backend and
// store at the terminal transitions. Collaborator failures degrade to a
// user-visible retry message; no error escapes HandleEvent.
type Engine struct {
	sessions *SessionStore
	store    store.Store
	gen      backend.Generator
	gate     entitlement.Checker
	sender   chat.Sender
	out      io.Writer

	minExamples int
	planDays    int
	genTimeout  time.Duration
	channelName string
	channelURL  string
}

// EngineOpts holds parameters for creating an Engine.
type EngineOpts struct {
	Store   store.Store
	Backend backend.Generator
	Gate    entitlement.Checker
	Sender  chat.Sender

	MinExamples int           // defaults to 1
	PlanDays    int           // defaults to plan.DefaultDays
	GenTimeout  time.Duration // defaults to 90s
	ChannelName string        // shown in subscription prompts
	ChannelURL  string        // subscribe-button target
	Out         io.Writer     // defaults to os.Stdout
}

// NewEngine creates an Engine.
func NewEngine(opts EngineOpts) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("dialogue: store is required")
	}
	if opts.Backend == nil {
		return nil, fmt.Errorf("dialogue: backend is required")
	}
	if opts.Gate == nil {
		return nil, fmt.Errorf("dialogue: entitlement checker is required")
	}
	if opts.Sender == nil {
		return nil, fmt.Errorf("dialogue: sender is required")
	}
	minExamples := opts.MinExamples
	if minExamples <= 0 {
		minExamples = 1
	}
	planDays := opts.PlanDays
	if planDays <= 0 {
		planDays = plan.DefaultDays
	}
	genTimeout := opts.GenTimeout
	if genTimeout <= 0 {
		genTimeout = 90 * time.Second
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Engine{
		sessions:    NewSessionStore(),
		store:       opts.Store,
		gen:         opts.Backend,
		gate:        opts.Gate,
		sender:      opts.Sender,
		out:         out,
		minExamples: minExamples,
		planDays:    planDays,
		genTimeout:  genTimeout,
		channelName: opts.ChannelName,
		channelURL:  opts.ChannelURL,
	}, nil
}

// EvictIdle removes sessions idle longer than maxIdle and returns the count.
func (e *Engine) EvictIdle(maxIdle time.Duration) int {
	return e.sessions.EvictIdle(maxIdle)
}

// SessionCount returns the number of live sessions.
func (e *Engine) SessionCount() int {
	return e.sessions.Len()
}

// HandleEvent applies exactly one transition for one inbound event.
// Events for the same chat must not be handled concurrently; the daemon
// serializes them, and the session mutex is a second line of defense.
func (e *Engine) HandleEvent(ctx context.Context, ev chat.InboundEvent) {
	if ev.ChatID == "" {
		return
	}
	sess := e.sessions.Get(ev.ChatID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.LastActive = time.Now()
	if ev.UserID != "" {
		sess.UserID = ev.UserID
	}
	if ev.UserName != "" {
		sess.UserName = ev.UserName
	}

	fmt.Fprintf(e.out, "dialogue: recv [chat=%s state=%s kind=%s] %q\n",
		ev.ChatID, sess.State, ev.Kind, summarize(ev))

	switch ev.Kind {
	case chat.KindCommand:
		e.handleCommand(ctx, sess, ev)
	case chat.KindChoice:
		e.handleChoice(ctx, sess, ev)
	case chat.KindText:
		e.handleText(ctx, sess, ev)
	default:
		e.send(ctx, textReply(sess.ChatID, msgUnexpectedInput))
	}
}

func (e *Engine) handleCommand(ctx context.Context, sess *Session, ev chat.InboundEvent) {
	switch ev.Command {
	case chat.CommandStart:
		e.startConversation(ctx, sess)
	case chat.CommandCancel:
		e.send(ctx, textReply(sess.ChatID, msgCancelled))
		e.sessions.Delete(sess.ChatID)
	default:
		e.send(ctx, textReply(sess.ChatID, msgUnexpectedInput))
	}
}

// startConversation runs the entitlement gate and, on success, shows the
// main menu. Policy on lookup failure: deny (fail closed); the user can
// retry with the recheck button.
func (e *Engine) startConversation(ctx context.Context, sess *Session) {
	userID := sess.UserID
	if userID == "" {
		userID = sess.ChatID
	}
	member, err := e.gate.IsMember(ctx, userID)
	if err != nil {
		log.Printf("dialogue: entitlement check for %s: %v", userID, err)
		member = false
	}
	if !member {
		sess.State = StateGate
		e.send(ctx, e.subscriptionReply(sess.ChatID, fmt.Sprintf(msgSubscribeRequired, e.channelName)))
		return
	}
	sess.State = StateMenu
	e.send(ctx, e.menuReply(sess.ChatID))
}

func (e *Engine) handleChoice(ctx context.Context, sess *Session, ev chat.InboundEvent) {
	// Back to menu works from any state past the gate. Before the gate the
	// callback id is just unexpected input: the only way out of the gate is
	// a successful recheck.
	if ev.ChoiceID == choiceBackToMenu && sess.State != StateNew && sess.State != StateGate {
		sess.State = StateMenu
		e.send(ctx, e.menuReply(sess.ChatID))
		return
	}

	switch sess.State {
	case StateGate:
		if ev.ChoiceID == choiceCheckSubscription {
			e.recheckSubscription(ctx, sess)
			return
		}
	case StateMenu:
		switch ev.ChoiceID {
		case choiceContentPlan:
			sess.resetRequest()
			sess.State = StateTopic
			e.send(ctx, textReply(sess.ChatID, msgAskTopic))
			return
		case choiceRepackage:
			sess.resetRepackage()
			sess.State = StateRepackageAudience
			e.send(ctx, textReply(sess.ChatID, msgAskRepackageAudience))
			return
		case choiceStartOver:
			sess.resetRequest()
			sess.resetRepackage()
			e.send(ctx, e.menuReply(sess.ChatID))
			return
		}
	case StateMonetization:
		if _, ok := monetizationLabels[ev.ChoiceID]; ok {
			sess.Request.Monetization = ev.ChoiceID
			if ev.ChoiceID == choiceAdvertising {
				sess.State = StatePreferences
				e.send(ctx, textReply(sess.ChatID, msgAskPreferences))
			} else {
				sess.State = StateProductDetails
				e.send(ctx, textReply(sess.ChatID, msgAskProductDetails))
			}
			return
		}
	case StateStyle:
		if _, ok := styleLabels[ev.ChoiceID]; ok {
			if ev.ChoiceID == choiceStyleCustom {
				sess.State = StateStyleCustom
				e.send(ctx, textReply(sess.ChatID, msgAskCustomStyle))
				return
			}
			sess.Request.Style = ev.ChoiceID
			sess.State = StateEmotions
			e.send(ctx, textReply(sess.ChatID, msgAskEmotions))
			return
		}
	case StateExamples:
		if ev.ChoiceID == choiceFinishExamples {
			e.finishExamples(ctx, sess)
			return
		}
	case StatePostNumber:
		if ev.ChoiceID == choiceNewPlan {
			sess.resetRequest()
			sess.State = StateTopic
			e.send(ctx, textReply(sess.ChatID, msgAskTopic))
			return
		}
	}

	e.send(ctx, textReply(sess.ChatID, msgUnexpectedInput))
}

func (e *Engine) recheckSubscription(ctx context.Context, sess *Session) {
	userID := sess.UserID
	if userID == "" {
		userID = sess.ChatID
	}
	member, err := e.gate.IsMember(ctx, userID)
	if err != nil {
		log.Printf("dialogue: entitlement recheck for %s: %v", userID, err)
		member = false
	}
	if !member {
		e.send(ctx, e.subscriptionReply(sess.ChatID, fmt.Sprintf(msgStillNotMember, e.channelName)))
		return
	}
	sess.State = StateMenu
	e.send(ctx, e.menuReply(sess.ChatID))
}

func (e *Engine) handleText(ctx context.Context, sess *Session, ev chat.InboundEvent) {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		e.send(ctx, textReply(sess.ChatID, msgUnexpectedInput))
		return
	}

	switch sess.State {
	case StateTopic:
		sess.Request.Topic = text
		sess.State = StateAudience
		e.send(ctx, textReply(sess.ChatID, msgAskAudience))
	case StateAudience:
		sess.Request.Audience = text
		sess.State = StateMonetization
		e.send(ctx, monetizationReply(sess.ChatID))
	case StateProductDetails:
		sess.Request.ProductDetails = text
		sess.State = StatePreferences
		e.send(ctx, textReply(sess.ChatID, msgAskPreferences))
	case StatePreferences:
		sess.Request.Preferences = text
		sess.State = StateStyle
		e.send(ctx, styleReply(sess.ChatID))
	case StateStyleCustom:
		sess.Request.Style = text
		sess.State = StateEmotions
		e.send(ctx, textReply(sess.ChatID, msgAskEmotions))
	case StateEmotions:
		sess.Request.Emotions = text
		sess.Examples = nil
		sess.State = StateExamples
		e.send(ctx, chat.Reply{ChatID: sess.ChatID, Text: msgAskExamples, Choices: finishExamplesRow()})
	case StateExamples:
		example := models.Example{Text: text}
		if ev.Forwarded != "" {
			example.Source = "переслано из: " + ev.Forwarded
		}
		sess.Examples = append(sess.Examples, example)
		e.send(ctx, chat.Reply{
			ChatID:  sess.ChatID,
			Text:    fmt.Sprintf(msgExampleSaved, len(sess.Examples)),
			Choices: finishExamplesRow(),
		})
	case StatePostNumber:
		e.handlePostNumber(ctx, sess, text)
	case StateRepackageAudience:
		sess.Repackage.Audience = text
		sess.State = StateRepackageTool
		e.send(ctx, textReply(sess.ChatID, msgAskRepackageTool))
	case StateRepackageTool:
		sess.Repackage.Tool = text
		sess.State = StateRepackageResult
		e.send(ctx, textReply(sess.ChatID, msgAskRepackageResult))
	case StateRepackageResult:
		sess.Repackage.Result = text
		e.finishRepackage(ctx, sess)
	default:
		e.send(ctx, textReply(sess.ChatID, msgUnexpectedInput))
	}
}

// requiredMissing lists the empty required questionnaire fields.
// ProductDetails is required for every monetization method except
// advertising.
func requiredMissing(sess *Session) []string {
	var missing []string
	req := sess.Request
	if req.Topic == "" {
		missing = append(missing, "тема")
	}
	if req.Audience == "" {
		missing = append(missing, "аудитория")
	}
	if req.Monetization == "" {
		missing = append(missing, "монетизация")
	}
	if req.Monetization != "" && req.Monetization != choiceAdvertising && req.ProductDetails == "" {
		missing = append(missing, "детали продукта")
	}
	if req.Preferences == "" {
		missing = append(missing, "пожелания")
	}
	if req.Style == "" {
		missing = append(missing, "стиль")
	}
	if req.Emotions == "" {
		missing = append(missing, "эмоции")
	}
	return missing
}

// finishExamples is the terminal transition of the questionnaire: enforce
// the example minimum, fail fast on missing fields without touching the
// backend, then generate, validate, persist, and show the plan.
func (e *Engine) finishExamples(ctx context.Context, sess *Session) {
	if len(sess.Examples) < e.minExamples {
		e.send(ctx, chat.Reply{
			ChatID:  sess.ChatID,
			Text:    fmt.Sprintf(msgNeedMoreExamples, e.minExamples),
			Choices: finishExamplesRow(),
		})
		return
	}

	if missing := requiredMissing(sess); len(missing) > 0 {
		err := &MissingFieldError{Fields: missing}
		log.Printf("dialogue: plan generation refused for %s: %v", sess.ChatID, err)
		e.send(ctx, textReplyf(sess.ChatID, msgMissingFields, strings.Join(missing, ", ")))
		return
	}

	if err := sess.Request.SetExamples(sess.Examples); err != nil {
		log.Printf("dialogue: encode examples for %s: %v", sess.ChatID, err)
		e.send(ctx, textReply(sess.ChatID, msgGenerationError))
		return
	}

	e.send(ctx, textReplyf(sess.ChatID, msgGeneratingPlan, e.planDays))

	promptText := prompt.ComposePlanPrompt(&sess.Request, e.planDays)
	raw, err := e.generate(ctx, sess.ChatID, "plan", promptText)
	if err != nil {
		log.Printf("dialogue: generate plan for %s: %v", sess.ChatID, err)
		e.send(ctx, textReply(sess.ChatID, msgGenerationError))
		return
	}

	if _, err := plan.Validate(raw, e.planDays); err != nil {
		// Malformed plans are never persisted.
		log.Printf("dialogue: plan for %s failed validation: %v", sess.ChatID, err)
		e.send(ctx, textReply(sess.ChatID, msgGenerationError))
		return
	}

	sess.Request.ContentPlan = raw
	if err := e.store.Save(ctx, &sess.Request); err != nil {
		// Durability lost, but the in-memory record stays authoritative.
		log.Printf("dialogue: persist plan for %s: %v", sess.ChatID, err)
	}

	full := fmt.Sprintf(msgPlanHeader, e.planDays) + "\n\n" + raw
	for _, chunk := range splitChunks(full, maxMessageLen) {
		e.send(ctx, textReply(sess.ChatID, chunk))
	}
	sess.State = StatePostNumber
	e.send(ctx, chat.Reply{
		ChatID:  sess.ChatID,
		Text:    fmt.Sprintf(msgAskPostNumber, e.planDays),
		Choices: newPlanRow(),
	})
}

// handlePostNumber serves one "generate post N" request. The plan is read
// from the store (it may predate this process); the in-memory session is
// the fallback when the store read fails.
func (e *Engine) handlePostNumber(ctx context.Context, sess *Session, text string) {
	n, err := strconv.Atoi(text)
	if err != nil || n < 1 || n > e.planDays {
		vErr := &ValidationError{State: sess.State, Input: text}
		fmt.Fprintf(e.out, "dialogue: %v\n", vErr)
		e.send(ctx, chat.Reply{
			ChatID:  sess.ChatID,
			Text:    fmt.Sprintf(msgBadPostNumber, e.planDays),
			Choices: newPlanRow(),
		})
		return
	}

	e.send(ctx, textReplyf(sess.ChatID, msgGeneratingPost, n))

	profile, loadErr := e.store.Load(ctx, sess.ChatID)
	if loadErr != nil {
		// Read failures read as "no prior data"; fall through to the
		// in-memory copy.
		log.Printf("dialogue: load profile for %s: %v", sess.ChatID, loadErr)
		profile = nil
	}
	if profile == nil || profile.ContentPlan == "" {
		if sess.Request.ContentPlan != "" {
			copied := sess.Request
			profile = &copied
		} else {
			sess.State = StateMenu
			e.send(ctx, textReply(sess.ChatID, msgPlanNotFound))
			e.send(ctx, e.menuReply(sess.ChatID))
			return
		}
	}

	entry, err := plan.Extract(profile.ContentPlan, n, e.planDays)
	if err != nil {
		log.Printf("dialogue: extract entry %d for %s: %v", n, sess.ChatID, err)
		e.send(ctx, chat.Reply{
			ChatID:  sess.ChatID,
			Text:    msgEntryNotFound,
			Choices: newPlanRow(),
		})
		return
	}

	promptText := prompt.ComposePostPrompt(profile, entry)
	post, err := e.generate(ctx, sess.ChatID, "post", promptText)
	if err != nil {
		log.Printf("dialogue: generate post %d for %s: %v", n, sess.ChatID, err)
		e.send(ctx, chat.Reply{
			ChatID:  sess.ChatID,
			Text:    msgGenerationError,
			Choices: newPlanRow(),
		})
		return
	}

	e.send(ctx, chat.Reply{
		ChatID:  sess.ChatID,
		Text:    fmt.Sprintf(msgPostReady, n, post, e.planDays),
		Choices: newPlanRow(),
	})
}

// finishRepackage is the terminal transition of the repackaging flow.
func (e *Engine) finishRepackage(ctx context.Context, sess *Session) {
	profile, err := e.store.Load(ctx, sess.ChatID)
	if err != nil {
		log.Printf("dialogue: load profile for %s: %v", sess.ChatID, err)
		profile = nil
	}
	if profile == nil {
		profile = &models.ContentProfile{ChatID: sess.ChatID}
	}
	profile.RepackageAudience = sess.Repackage.Audience
	profile.RepackageTool = sess.Repackage.Tool
	profile.RepackageResult = sess.Repackage.Result

	promptText := prompt.ComposeRepackagePrompt(profile)
	result, err := e.generate(ctx, sess.ChatID, "repackage", promptText)
	if err != nil {
		log.Printf("dialogue: generate repackage for %s: %v", sess.ChatID, err)
		// Stay in StateRepackageResult: resending the result text retries.
		e.send(ctx, textReply(sess.ChatID, msgGenerationError))
		return
	}

	if err := e.store.Save(ctx, profile); err != nil {
		log.Printf("dialogue: persist repackage for %s: %v", sess.ChatID, err)
	}

	sess.State = StateMenu
	for _, chunk := range splitChunks(result, maxMessageLen) {
		e.send(ctx, textReply(sess.ChatID, chunk))
	}
	e.send(ctx, chat.Reply{ChatID: sess.ChatID, Text: "Что дальше?", Choices: backToMenuRow()})
}

// generate runs one backend call under the engine's timeout and records a
// GenerationLog row (best effort).
func (e *Engine) generate(ctx context.Context, chatID, kind, promptText string) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, e.genTimeout)
	defer cancel()

	start := time.Now()
	text, err := e.gen.Generate(genCtx, promptText)

	entry := &models.GenerationLog{
		RequestID:   uuid.NewString(),
		ChatID:      chatID,
		Kind:        kind,
		PromptChars: len(promptText),
		LatencyMs:   int(time.Since(start).Milliseconds()),
		Success:     err == nil,
	}
	if err != nil {
		entry.Error = truncate(err.Error(), 255)
	} else {
		entry.OutputChars = len(text)
	}
	if logErr := e.store.LogGeneration(ctx, entry); logErr != nil {
		log.Printf("dialogue: log generation %s: %v", entry.RequestID, logErr)
	}

	if err != nil {
		return "", err
	}
	return text, nil
}

// send delivers one reply, logging delivery failures.
func (e *Engine) send(ctx context.Context, reply chat.Reply) {
	if err := e.sender.Send(ctx, reply); err != nil {
		log.Printf("dialogue: send to %s: %v", reply.ChatID, err)
	}
}

// splitChunks splits s into pieces of at most size bytes, preferring to
// break at line boundaries.
func splitChunks(s string, size int) []string {
	if len(s) <= size {
		return []string{s}
	}
	var chunks []string
	for len(s) > size {
		cut := strings.LastIndex(s[:size], "\n")
		if cut <= 0 {
			if cut = runeBoundary(s, size); cut == 0 {
				cut = size
			}
		}
		chunks = append(chunks, strings.TrimRight(s[:cut], "\n"))
		s = strings.TrimLeft(s[cut:], "\n")
	}
	if s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}

// runeBoundary backs n up to the start of the rune it lands inside, so a
// byte-offset cut never splits a multi-byte character. Returns 0 only for
// invalid UTF-8 with no rune start before n.
func runeBoundary(s string, n int) int {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if n := runeBoundary(s, maxLen); n > 0 {
		return s[:n]
	}
	return s[:maxLen]
}

func summarize(ev chat.InboundEvent) string {
	switch ev.Kind {
	case chat.KindChoice:
		return ev.ChoiceID
	case chat.KindCommand:
		return "/" + ev.Command
	default:
		return truncate(ev.Text, 60)
	}
}
