package dialogue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/avbuyanov/postpilot/internal/chat"
	"github.com/avbuyanov/postpilot/internal/models"
)

// fakeStore records saves and serves canned loads.
type fakeStore struct {
	saved   []*models.ContentProfile
	logs    []*models.GenerationLog
	loadRet *models.ContentProfile
	loadErr error
	saveErr error
}

func (f *fakeStore) Save(ctx context.Context, p *models.ContentProfile) error {
	copied := *p
	f.saved = append(f.saved, &copied)
	return f.saveErr
}

func (f *fakeStore) Load(ctx context.Context, chatID string) (*models.ContentProfile, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.loadRet == nil {
		return nil, nil
	}
	copied := *f.loadRet
	return &copied, nil
}

func (f *fakeStore) LogGeneration(ctx context.Context, entry *models.GenerationLog) error {
	f.logs = append(f.logs, entry)
	return nil
}

// fakeGenerator returns canned text and records prompts.
type fakeGenerator struct {
	prompts []string
	text    string
	err     error
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

// fakeChecker is a scripted entitlement gate.
type fakeChecker struct {
	member bool
	err    error
	calls  int
}

func (f *fakeChecker) IsMember(ctx context.Context, userID string) (bool, error) {
	f.calls++
	return f.member, f.err
}

// fakeSender collects outbound replies.
type fakeSender struct {
	replies []chat.Reply
	err     error
}

func (f *fakeSender) Send(ctx context.Context, reply chat.Reply) error {
	f.replies = append(f.replies, reply)
	return f.err
}

func (f *fakeSender) last(t *testing.T) chat.Reply {
	t.Helper()
	if len(f.replies) == 0 {
		t.Fatal("no replies sent")
	}
	return f.replies[len(f.replies)-1]
}

func validPlanText() string {
	var b strings.Builder
	for d := 1; d <= 14; d++ {
		fmt.Fprintf(&b, "День %d: заголовок %d\nОписание: описание %d\nЦель: вовлечение\n\n", d, d, d)
	}
	return b.String()
}

type engineFixture struct {
	engine *Engine
	store  *fakeStore
	gen    *fakeGenerator
	gate   *fakeChecker
	sender *fakeSender
}

func newFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		store:  &fakeStore{},
		gen:    &fakeGenerator{text: validPlanText()},
		gate:   &fakeChecker{member: true},
		sender: &fakeSender{},
	}
	engine, err := NewEngine(EngineOpts{
		Store:       f.store,
		Backend:     f.gen,
		Gate:        f.gate,
		Sender:      f.sender,
		ChannelName: "@test_channel",
		ChannelURL:  "https://t.me/test_channel",
		Out:         io.Discard,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	f.engine = engine
	return f
}

func (f *engineFixture) command(cmd string) {
	f.engine.HandleEvent(context.Background(), chat.InboundEvent{
		Platform: "telegram", ChatID: "100", UserID: "200", UserName: "anna",
		Kind: chat.KindCommand, Command: cmd,
	})
}

func (f *engineFixture) choice(id string) {
	f.engine.HandleEvent(context.Background(), chat.InboundEvent{
		Platform: "telegram", ChatID: "100", UserID: "200",
		Kind: chat.KindChoice, ChoiceID: id,
	})
}

func (f *engineFixture) text(text string) {
	f.engine.HandleEvent(context.Background(), chat.InboundEvent{
		Platform: "telegram", ChatID: "100", UserID: "200",
		Kind: chat.KindText, Text: text,
	})
}

func (f *engineFixture) forwarded(text, source string) {
	f.engine.HandleEvent(context.Background(), chat.InboundEvent{
		Platform: "telegram", ChatID: "100", UserID: "200",
		Kind: chat.KindText, Text: text, Forwarded: source,
	})
}

// runQuestionnaire drives the full plan flow up to the examples step.
func (f *engineFixture) runQuestionnaire(monetization string) {
	f.command("start")
	f.choice(choiceContentPlan)
	f.text("бизнес")
	f.text("предприниматели 30+")
	f.choice(monetization)
	if monetization != choiceAdvertising {
		f.text("курс по масштабированию")
	}
	f.text("поменьше воды")
	f.choice(choiceStyleBusiness)
	f.text("доверие")
}

func (f *engineFixture) session(t *testing.T) *Session {
	t.Helper()
	return f.engine.sessions.Get("100")
}

func TestNewEngineValidatesOpts(t *testing.T) {
	base := func() EngineOpts {
		return EngineOpts{
			Store:   &fakeStore{},
			Backend: &fakeGenerator{},
			Gate:    &fakeChecker{},
			Sender:  &fakeSender{},
		}
	}
	tests := []struct {
		name   string
		mutate func(*EngineOpts)
	}{
		{"missing store", func(o *EngineOpts) { o.Store = nil }},
		{"missing backend", func(o *EngineOpts) { o.Backend = nil }},
		{"missing gate", func(o *EngineOpts) { o.Gate = nil }},
		{"missing sender", func(o *EngineOpts) { o.Sender = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := base()
			tt.mutate(&opts)
			if _, err := NewEngine(opts); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestStartShowsMenuForMember(t *testing.T) {
	f := newFixture(t)
	f.command("start")

	if got := f.session(t).State; got != StateMenu {
		t.Errorf("state = %q, want %q", got, StateMenu)
	}
	reply := f.sender.last(t)
	if !strings.Contains(reply.Text, "Добро пожаловать") {
		t.Errorf("menu text = %q", reply.Text)
	}
	if len(reply.Choices) != 3 {
		t.Errorf("menu rows = %d, want 3", len(reply.Choices))
	}
}

func TestStartGatesNonMember(t *testing.T) {
	f := newFixture(t)
	f.gate.member = false
	f.command("start")

	if got := f.session(t).State; got != StateGate {
		t.Errorf("state = %q, want %q", got, StateGate)
	}
	reply := f.sender.last(t)
	if reply.LinkURL != "https://t.me/test_channel" {
		t.Errorf("link url = %q", reply.LinkURL)
	}
	if !strings.Contains(reply.Text, "@test_channel") {
		t.Errorf("gate text = %q", reply.Text)
	}
}

func TestStartFailsClosedOnGateError(t *testing.T) {
	f := newFixture(t)
	f.gate.err = errors.New("api down")
	f.command("start")

	if got := f.session(t).State; got != StateGate {
		t.Errorf("state = %q, want %q (deny on lookup failure)", got, StateGate)
	}
}

func TestRecheckSubscription(t *testing.T) {
	f := newFixture(t)
	f.gate.member = false
	f.command("start")

	// Still not a member: stay gated.
	f.choice(choiceCheckSubscription)
	if got := f.session(t).State; got != StateGate {
		t.Errorf("state after failed recheck = %q, want %q", got, StateGate)
	}
	if !strings.Contains(f.sender.last(t).Text, "всё ещё не подписаны") {
		t.Errorf("recheck text = %q", f.sender.last(t).Text)
	}

	// Subscribed now: through to the menu.
	f.gate.member = true
	f.choice(choiceCheckSubscription)
	if got := f.session(t).State; got != StateMenu {
		t.Errorf("state after successful recheck = %q, want %q", got, StateMenu)
	}
}

func TestGateIgnoresBackToMenu(t *testing.T) {
	f := newFixture(t)
	f.gate.member = false
	f.command("start")

	// Arbitrary callback data is sendable by modified clients; the menu
	// shortcut must not open the menu for a gated user.
	f.choice(choiceBackToMenu)
	if got := f.session(t).State; got != StateGate {
		t.Fatalf("state after back_to_menu = %q, want %q", got, StateGate)
	}
	if !strings.Contains(f.sender.last(t).Text, "не понял") {
		t.Errorf("reply = %q", f.sender.last(t).Text)
	}

	f.choice(choiceContentPlan)
	if got := f.session(t).State; got != StateGate {
		t.Errorf("state after content_plan = %q, want %q", got, StateGate)
	}
	if f.gate.calls != 1 {
		t.Errorf("gate calls = %d, want 1 (no recheck ran)", f.gate.calls)
	}

	// The recheck button stays the only way through.
	f.gate.member = true
	f.choice(choiceCheckSubscription)
	if got := f.session(t).State; got != StateMenu {
		t.Errorf("state after recheck = %q, want %q", got, StateMenu)
	}
}

func TestFreshSessionIgnoresBackToMenu(t *testing.T) {
	f := newFixture(t)

	// No /start yet: the zero state must not jump to the menu either.
	f.choice(choiceBackToMenu)
	if got := f.session(t).State; got != StateNew {
		t.Errorf("state = %q, want %q", got, StateNew)
	}
	if !strings.Contains(f.sender.last(t).Text, "не понял") {
		t.Errorf("reply = %q", f.sender.last(t).Text)
	}
}

func TestCancelDropsSession(t *testing.T) {
	f := newFixture(t)
	f.command("start")
	f.choice(choiceContentPlan)
	f.text("бизнес")

	f.command("cancel")
	if !strings.Contains(f.sender.last(t).Text, "отменена") {
		t.Errorf("cancel text = %q", f.sender.last(t).Text)
	}
	if n := f.engine.SessionCount(); n != 0 {
		t.Errorf("sessions after cancel = %d, want 0", n)
	}
}

func TestPlanFlowHappyPath(t *testing.T) {
	f := newFixture(t)
	f.runQuestionnaire(choiceProducts)
	f.text("пример поста про рост выручки")
	f.choice(choiceFinishExamples)

	if len(f.gen.prompts) != 1 {
		t.Fatalf("backend calls = %d, want 1", len(f.gen.prompts))
	}
	prompt := f.gen.prompts[0]
	for _, want := range []string{
		"бизнес",
		"предприниматели 30+",
		choiceProducts,
		"курс по масштабированию",
		"поменьше воды",
		choiceStyleBusiness,
		"доверие",
		"пример поста про рост выручки",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("plan prompt missing %q", want)
		}
	}

	if len(f.store.saved) != 1 {
		t.Fatalf("saved profiles = %d, want 1", len(f.store.saved))
	}
	saved := f.store.saved[0]
	if saved.ChatID != "100" {
		t.Errorf("saved chat id = %q", saved.ChatID)
	}
	if saved.ContentPlan == "" {
		t.Error("saved profile has no content plan")
	}

	if got := f.session(t).State; got != StatePostNumber {
		t.Errorf("state = %q, want %q", got, StatePostNumber)
	}
	if !strings.Contains(f.sender.last(t).Text, "введите его номер") {
		t.Errorf("final reply = %q", f.sender.last(t).Text)
	}

	// One generation log entry, successful.
	if len(f.store.logs) != 1 {
		t.Fatalf("generation logs = %d, want 1", len(f.store.logs))
	}
	log := f.store.logs[0]
	if !log.Success || log.Kind != "plan" || log.RequestID == "" {
		t.Errorf("log = %+v", log)
	}
}

func TestPlanFlowWithAdvertising(t *testing.T) {
	f := newFixture(t)
	f.runQuestionnaire(choiceAdvertising)
	f.text("пример рекламного поста")
	f.choice(choiceFinishExamples)

	if len(f.gen.prompts) != 1 {
		t.Fatalf("backend calls = %d, want 1", len(f.gen.prompts))
	}
	prompt := f.gen.prompts[0]
	for _, want := range []string{
		"бизнес",
		"предприниматели 30+",
		choiceAdvertising,
		"поменьше воды",
		choiceStyleBusiness,
		"доверие",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("plan prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "Детали продукта") {
		t.Error("advertising prompt should not carry product details")
	}
	if len(f.store.saved) != 1 {
		t.Errorf("saved profiles = %d, want 1", len(f.store.saved))
	}
	if got := f.session(t).State; got != StatePostNumber {
		t.Errorf("state = %q, want %q", got, StatePostNumber)
	}
}

func TestAdvertisingSkipsProductDetails(t *testing.T) {
	f := newFixture(t)
	f.command("start")
	f.choice(choiceContentPlan)
	f.text("бизнес")
	f.text("предприниматели")
	f.choice(choiceAdvertising)

	if got := f.session(t).State; got != StatePreferences {
		t.Errorf("state = %q, want %q (advertising skips product details)", got, StatePreferences)
	}
}

func TestCustomStyleAsksForText(t *testing.T) {
	f := newFixture(t)
	f.command("start")
	f.choice(choiceContentPlan)
	f.text("бизнес")
	f.text("предприниматели")
	f.choice(choiceProducts)
	f.text("курс")
	f.text("поменьше воды")
	f.choice(choiceStyleCustom)

	if got := f.session(t).State; got != StateStyleCustom {
		t.Errorf("state = %q, want %q", got, StateStyleCustom)
	}
	f.text("дерзкий, с самоиронией")
	if got := f.session(t).Request.Style; got != "дерзкий, с самоиронией" {
		t.Errorf("style = %q", got)
	}
	if got := f.session(t).State; got != StateEmotions {
		t.Errorf("state = %q, want %q", got, StateEmotions)
	}
}

func TestFinishExamplesEnforcesMinimum(t *testing.T) {
	f := newFixture(t)
	f.runQuestionnaire(choiceProducts)
	f.choice(choiceFinishExamples) // zero examples provided

	if len(f.gen.prompts) != 0 {
		t.Errorf("backend calls = %d, want 0", len(f.gen.prompts))
	}
	if !strings.Contains(f.sender.last(t).Text, "хотя бы 1") {
		t.Errorf("reply = %q", f.sender.last(t).Text)
	}
	if got := f.session(t).State; got != StateExamples {
		t.Errorf("state = %q, want %q", got, StateExamples)
	}
}

func TestFinishExamplesRefusesIncompleteProfile(t *testing.T) {
	f := newFixture(t)
	f.runQuestionnaire(choiceProducts)
	f.text("пример")

	// Wipe a collected answer behind the flow's back.
	sess := f.session(t)
	sess.mu.Lock()
	sess.Request.Audience = ""
	sess.mu.Unlock()

	f.choice(choiceFinishExamples)

	if len(f.gen.prompts) != 0 {
		t.Errorf("backend calls = %d, want 0 for incomplete profile", len(f.gen.prompts))
	}
	if !strings.Contains(f.sender.last(t).Text, "аудитория") {
		t.Errorf("reply should name the missing field, got %q", f.sender.last(t).Text)
	}
}

func TestMalformedPlanIsNeverPersisted(t *testing.T) {
	f := newFixture(t)
	f.gen.text = "День 1: единственный пункт"
	f.runQuestionnaire(choiceProducts)
	f.text("пример")
	f.choice(choiceFinishExamples)

	if len(f.store.saved) != 0 {
		t.Errorf("saved profiles = %d, want 0 for malformed plan", len(f.store.saved))
	}
	if !strings.Contains(f.sender.last(t).Text, "ошибка") {
		t.Errorf("reply = %q", f.sender.last(t).Text)
	}
}

func TestBackendFailureKeepsExamplesState(t *testing.T) {
	f := newFixture(t)
	f.gen.err = errors.New("quota exceeded")
	f.runQuestionnaire(choiceProducts)
	f.text("пример")
	f.choice(choiceFinishExamples)

	if got := f.session(t).State; got != StateExamples {
		t.Errorf("state = %q, want %q (retry stays possible)", got, StateExamples)
	}
	if len(f.store.logs) != 1 || f.store.logs[0].Success {
		t.Errorf("expected one failed generation log, got %+v", f.store.logs)
	}
}

func TestSaveFailureStillDeliversPlan(t *testing.T) {
	f := newFixture(t)
	f.store.saveErr = errors.New("disk full")
	f.runQuestionnaire(choiceProducts)
	f.text("пример")
	f.choice(choiceFinishExamples)

	if got := f.session(t).State; got != StatePostNumber {
		t.Errorf("state = %q, want %q (in-memory plan stays authoritative)", got, StatePostNumber)
	}
}

func TestPostNumberGeneratesPost(t *testing.T) {
	f := newFixture(t)
	f.runQuestionnaire(choiceProducts)
	f.text("пример")
	f.choice(choiceFinishExamples)

	f.gen.text = "Готовый текст поста."
	f.text("7")

	if len(f.gen.prompts) != 2 {
		t.Fatalf("backend calls = %d, want 2", len(f.gen.prompts))
	}
	if !strings.Contains(f.gen.prompts[1], "пост №7") {
		t.Errorf("post prompt = %q", f.gen.prompts[1])
	}
	reply := f.sender.last(t)
	if !strings.Contains(reply.Text, "Готовый текст поста.") {
		t.Errorf("reply = %q", reply.Text)
	}
	if !strings.Contains(reply.Text, "#7") {
		t.Errorf("reply should echo the post number, got %q", reply.Text)
	}
}

func TestPostNumberRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	f.runQuestionnaire(choiceProducts)
	f.text("пример")
	f.choice(choiceFinishExamples)
	calls := len(f.gen.prompts)

	for _, bad := range []string{"0", "15", "abc", "-3"} {
		f.text(bad)
		if len(f.gen.prompts) != calls {
			t.Errorf("input %q reached the backend", bad)
		}
		if !strings.Contains(f.sender.last(t).Text, "корректный номер") {
			t.Errorf("input %q: reply = %q", bad, f.sender.last(t).Text)
		}
	}
}

func TestPostNumberReadsPersistedPlan(t *testing.T) {
	// A fresh session (process restart) can still serve post requests from
	// the stored profile.
	f := newFixture(t)
	f.store.loadRet = &models.ContentProfile{
		ChatID:       "100",
		Topic:        "бизнес",
		Audience:     "предприниматели",
		Monetization: choiceProducts,
		Preferences:  "пожелания",
		Style:        choiceStyleBusiness,
		Emotions:     "доверие",
		ContentPlan:  validPlanText(),
	}
	sess := f.session(t)
	sess.mu.Lock()
	sess.State = StatePostNumber
	sess.mu.Unlock()

	f.gen.text = "Пост из сохранённого плана."
	f.text("3")

	if len(f.gen.prompts) != 1 {
		t.Fatalf("backend calls = %d, want 1", len(f.gen.prompts))
	}
	if !strings.Contains(f.sender.last(t).Text, "Пост из сохранённого плана.") {
		t.Errorf("reply = %q", f.sender.last(t).Text)
	}
}

func TestPostNumberWithoutAnyPlan(t *testing.T) {
	f := newFixture(t)
	sess := f.session(t)
	sess.mu.Lock()
	sess.State = StatePostNumber
	sess.mu.Unlock()

	f.text("3")

	if len(f.gen.prompts) != 0 {
		t.Errorf("backend calls = %d, want 0", len(f.gen.prompts))
	}
	if got := f.session(t).State; got != StateMenu {
		t.Errorf("state = %q, want %q", got, StateMenu)
	}
}

func TestNewPlanChoiceRestartsQuestionnaire(t *testing.T) {
	f := newFixture(t)
	f.runQuestionnaire(choiceProducts)
	f.text("пример")
	f.choice(choiceFinishExamples)

	f.choice(choiceNewPlan)
	if got := f.session(t).State; got != StateTopic {
		t.Errorf("state = %q, want %q", got, StateTopic)
	}
	if got := f.session(t).Request.Topic; got != "" {
		t.Errorf("topic not reset: %q", got)
	}
}

func TestRepackageFlow(t *testing.T) {
	f := newFixture(t)
	f.gen.text = "Переупакованное предложение."
	f.command("start")
	f.choice(choiceRepackage)
	f.text("фрилансеры")
	f.text("шаблоны договоров")
	f.text("меньше неоплаченных счетов")

	if len(f.gen.prompts) != 1 {
		t.Fatalf("backend calls = %d, want 1", len(f.gen.prompts))
	}
	prompt := f.gen.prompts[0]
	for _, want := range []string{"фрилансеры", "шаблоны договоров", "меньше неоплаченных счетов"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("repackage prompt missing %q", want)
		}
	}

	if len(f.store.saved) != 1 {
		t.Fatalf("saved profiles = %d, want 1", len(f.store.saved))
	}
	saved := f.store.saved[0]
	if saved.RepackageAudience != "фрилансеры" || saved.RepackageTool != "шаблоны договоров" {
		t.Errorf("saved repackage fields = %+v", saved)
	}

	if got := f.session(t).State; got != StateMenu {
		t.Errorf("state = %q, want %q", got, StateMenu)
	}
}

func TestRepackageFailureAllowsRetry(t *testing.T) {
	f := newFixture(t)
	f.gen.err = errors.New("timeout")
	f.command("start")
	f.choice(choiceRepackage)
	f.text("фрилансеры")
	f.text("шаблоны")
	f.text("результат")

	if got := f.session(t).State; got != StateRepackageResult {
		t.Errorf("state = %q, want %q (resend retries)", got, StateRepackageResult)
	}

	f.gen.err = nil
	f.gen.text = "Готово."
	f.text("результат")
	if got := f.session(t).State; got != StateMenu {
		t.Errorf("state after retry = %q, want %q", got, StateMenu)
	}
}

func TestForwardedExampleKeepsProvenance(t *testing.T) {
	f := newFixture(t)
	f.runQuestionnaire(choiceProducts)
	f.forwarded("пример из канала", "@other_channel")
	f.choice(choiceFinishExamples)

	if len(f.store.saved) != 1 {
		t.Fatalf("saved profiles = %d, want 1", len(f.store.saved))
	}
	examples := f.store.saved[0].ExampleList()
	if len(examples) != 1 {
		t.Fatalf("examples = %d, want 1", len(examples))
	}
	if examples[0].Source != "переслано из: @other_channel" {
		t.Errorf("source = %q", examples[0].Source)
	}
}

func TestEmotionsAnswerResetsExamples(t *testing.T) {
	f := newFixture(t)
	f.runQuestionnaire(choiceProducts)
	f.text("первый пример")

	// Going back through emotions starts a fresh example list.
	sess := f.session(t)
	sess.mu.Lock()
	sess.State = StateEmotions
	sess.mu.Unlock()
	f.text("азарт")

	sess.mu.Lock()
	n := len(sess.Examples)
	sess.mu.Unlock()
	if n != 0 {
		t.Errorf("examples after emotions re-answer = %d, want 0", n)
	}
}

func TestBackToMenuFromAnyState(t *testing.T) {
	f := newFixture(t)
	f.runQuestionnaire(choiceProducts)

	f.choice(choiceBackToMenu)
	if got := f.session(t).State; got != StateMenu {
		t.Errorf("state = %q, want %q", got, StateMenu)
	}
}

func TestUnexpectedChoiceIsRejectedGently(t *testing.T) {
	f := newFixture(t)
	f.command("start")
	f.choice("no_such_choice")
	if !strings.Contains(f.sender.last(t).Text, "не понял") {
		t.Errorf("reply = %q", f.sender.last(t).Text)
	}
}

func TestEvictIdle(t *testing.T) {
	f := newFixture(t)
	f.command("start")

	sess := f.session(t)
	sess.mu.Lock()
	sess.LastActive = time.Now().Add(-3 * time.Hour)
	sess.mu.Unlock()

	if n := f.engine.EvictIdle(2 * time.Hour); n != 1 {
		t.Errorf("evicted = %d, want 1", n)
	}
	if n := f.engine.SessionCount(); n != 0 {
		t.Errorf("sessions = %d, want 0", n)
	}
}

func TestLongPlanIsChunked(t *testing.T) {
	f := newFixture(t)
	var b strings.Builder
	for d := 1; d <= 14; d++ {
		fmt.Fprintf(&b, "День %d: заголовок\n%s\n\n", d, strings.Repeat("очень длинное описание ", 30))
	}
	f.gen.text = b.String()

	f.runQuestionnaire(choiceProducts)
	f.text("пример")
	f.choice(choiceFinishExamples)

	long := 0
	for _, r := range f.sender.replies {
		if len(r.Text) > maxMessageLen {
			long++
		}
	}
	if long != 0 {
		t.Errorf("%d replies exceed the message limit", long)
	}
	if got := f.session(t).State; got != StatePostNumber {
		t.Errorf("state = %q, want %q", got, StatePostNumber)
	}
}

func TestSplitChunks(t *testing.T) {
	tests := []struct {
		name string
		in   string
		size int
		want int
	}{
		{"short text single chunk", "привет", 100, 1},
		{"splits on line boundary", strings.Repeat("строка\n", 40), 100, 6},
		{"unbreakable run still splits", strings.Repeat("x", 250), 100, 3},
		{"unbreakable cyrillic keeps runes whole", strings.Repeat("ю", 250), 99, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := splitChunks(tt.in, tt.size)
			if len(chunks) != tt.want {
				t.Errorf("chunks = %d, want %d", len(chunks), tt.want)
			}
			for i, c := range chunks {
				if len(c) > tt.size {
					t.Errorf("chunk %d is %d bytes, over %d", i, len(c), tt.size)
				}
				if !utf8.ValidString(c) {
					t.Errorf("chunk %d is not valid UTF-8", i)
				}
			}
		})
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	got := truncate(strings.Repeat("ё", 10), 5)
	if len(got) > 5 {
		t.Errorf("len = %d, want <= 5", len(got))
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncated string %q is not valid UTF-8", got)
	}
	if got != "ёё" {
		t.Errorf("got %q, want %q", got, "ёё")
	}

	if got := truncate("короткий", 100); got != "короткий" {
		t.Errorf("short input changed: %q", got)
	}
}
