package services

import (
	"context"
	"errors"
	"testing"

	"languagetutor/db"
	"languagetutor/models"
	"languagetutor/services/exercise"
)

// fakeConversation persists turns the way the real agent does so rollback
// behavior can be observed through the store.
type fakeConversation struct {
	repo          db.UserRepository
	replies       []string
	generateCalls int
	onboardCalls  int
	onboardReply  *models.Turn
	guidanceSeen  []string
	inputsSeen    []string
}

func (f *fakeConversation) OnboardUser(ctx context.Context, user *models.UserProfile, input string) (*models.Turn, error) {
	f.onboardCalls++
	if f.onboardReply != nil {
		turn := *f.onboardReply
		f.repo.AppendTurn(user.ID, turn)
		return &turn, nil
	}
	return nil, nil
}

func (f *fakeConversation) ProcessUserInput(ctx context.Context, user *models.UserProfile, input, guidance string) (*models.Turn, error) {
	f.generateCalls++
	f.guidanceSeen = append(f.guidanceSeen, guidance)
	f.inputsSeen = append(f.inputsSeen, input)

	if input != "" {
		f.repo.AppendTurn(user.ID, models.NewUserTurn(models.AgentConversation, input))
	}

	content := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	turn := models.NewAssistantTurn(models.AgentConversation, content)
	if err := f.repo.AppendTurn(user.ID, turn); err != nil {
		return nil, err
	}
	// One topics entry per generated reply, so pops stay in lockstep.
	f.repo.AppendTopics(user.ID, []string{"topic for " + content})
	return &turn, nil
}

// fakeFeedback accepts replies unless their content appears in rejections,
// and redirects the user when redirect is set.
type fakeFeedback struct {
	repo           db.UserRepository
	redirect       string
	rejections     map[string]string
	userChecks     int
	adherenceCalls int
}

func (f *fakeFeedback) IsUserFollowingLesson(ctx context.Context, user *models.UserProfile, input string) (*models.Turn, error) {
	f.userChecks++
	if f.redirect == "" {
		return nil, nil
	}
	turn := models.NewAssistantTurn(models.AgentFeedback, f.redirect)
	if err := f.repo.AppendTurn(user.ID, turn); err != nil {
		return nil, err
	}
	return &turn, nil
}

func (f *fakeFeedback) IsAIOnTopicAndLevel(ctx context.Context, user *models.UserProfile, reply models.Turn) (string, error) {
	f.adherenceCalls++
	return f.rejections[reply.Content], nil
}

type fakeExercises struct {
	calls int
	set   *exercise.Set
}

func (f *fakeExercises) GenerateExercises(ctx context.Context, user *models.UserProfile) (*exercise.Set, error) {
	f.calls++
	return f.set, nil
}

func onboardedUser(t *testing.T, repo db.UserRepository) *models.UserProfile {
	t.Helper()
	user, err := repo.LoadProfile("")
	if err != nil {
		t.Fatalf("failed to create test profile: %v", err)
	}
	if err := repo.UpdateTutoringInfo(user.ID, "French", "beginner"); err != nil {
		t.Fatalf("failed to set tutoring info: %v", err)
	}
	user, _ = repo.LoadProfile(user.ID)
	return user
}

func TestHandleTurnRoutesToOnboardingUntilComplete(t *testing.T) {
	repo := db.NewInMemoryUserRepository()
	ask := models.NewAssistantTurn(models.AgentSetup, "Which language would you like to learn, and at what level?")
	conv := &fakeConversation{repo: repo, onboardReply: &ask}
	fb := &fakeFeedback{repo: repo}
	service := NewTutorService(repo, conv, fb, &fakeExercises{}, 3)

	userID, turn, err := service.HandleTurn(context.Background(), "", "")
	if err != nil {
		t.Fatalf("HandleTurn unexpected error: %v", err)
	}
	if userID == "" {
		t.Fatal("expected a resolved user id for a fresh session")
	}
	if turn == nil || turn.Agent != models.AgentSetup {
		t.Fatalf("turn = %+v, want the setup question", turn)
	}
	if conv.onboardCalls != 1 || conv.generateCalls != 0 {
		t.Errorf("onboard/generate calls = %d/%d, want 1/0", conv.onboardCalls, conv.generateCalls)
	}
	if fb.userChecks != 0 {
		t.Errorf("adherence checks during onboarding = %d, want 0", fb.userChecks)
	}

	// Still unconfigured, so the next turn routes to onboarding again.
	_, _, err = service.HandleTurn(context.Background(), userID, "I want to learn French")
	if err != nil {
		t.Fatalf("HandleTurn unexpected error: %v", err)
	}
	if conv.onboardCalls != 2 {
		t.Errorf("onboard calls = %d, want 2", conv.onboardCalls)
	}
}

func TestHandleTurnAcceptedFirstAttempt(t *testing.T) {
	repo := db.NewInMemoryUserRepository()
	user := onboardedUser(t, repo)
	conv := &fakeConversation{repo: repo, replies: []string{"Bonjour! Comment ça va?"}}
	fb := &fakeFeedback{repo: repo}
	service := NewTutorService(repo, conv, fb, &fakeExercises{}, 3)

	userID, turn, err := service.HandleTurn(context.Background(), user.ID, "Bonjour")
	if err != nil {
		t.Fatalf("HandleTurn unexpected error: %v", err)
	}
	if userID != user.ID {
		t.Errorf("user id = %s, want %s", userID, user.ID)
	}
	if turn == nil || turn.Content != "Bonjour! Comment ça va?" {
		t.Fatalf("turn = %+v, want the tutor reply", turn)
	}
	if conv.generateCalls != 1 || fb.adherenceCalls != 1 {
		t.Errorf("generate/adherence calls = %d/%d, want 1/1", conv.generateCalls, fb.adherenceCalls)
	}

	reloaded, _ := repo.LoadProfile(user.ID)
	if len(reloaded.History) != 2 {
		t.Fatalf("history = %+v, want one user and one assistant turn", reloaded.History)
	}
	if reloaded.History[0].Role != models.RoleUser || reloaded.History[1].Role != models.RoleAssistant {
		t.Errorf("history roles = %s,%s, want user,assistant", reloaded.History[0].Role, reloaded.History[1].Role)
	}
}

func TestHandleTurnRetriesWithGuidanceAndRollsBack(t *testing.T) {
	repo := db.NewInMemoryUserRepository()
	user := onboardedUser(t, repo)
	conv := &fakeConversation{repo: repo, replies: []string{"Let me explain quantum physics", "Bonjour! Comment ça va?"}}
	fb := &fakeFeedback{
		repo:       repo,
		rejections: map[string]string{"Let me explain quantum physics": "Stay on French at a beginner level."},
	}
	service := NewTutorService(repo, conv, fb, &fakeExercises{}, 3)

	_, turn, err := service.HandleTurn(context.Background(), user.ID, "Bonjour")
	if err != nil {
		t.Fatalf("HandleTurn unexpected error: %v", err)
	}
	if turn == nil || turn.Content != "Bonjour! Comment ça va?" {
		t.Fatalf("turn = %+v, want the regenerated reply", turn)
	}
	if conv.generateCalls != 2 {
		t.Errorf("generate calls = %d, want 2", conv.generateCalls)
	}
	if conv.guidanceSeen[0] != "" || conv.guidanceSeen[1] != "Stay on French at a beginner level." {
		t.Errorf("guidance per attempt = %v, want empty then the correction", conv.guidanceSeen)
	}
	// The user turn is only persisted once; retries regenerate without it.
	if conv.inputsSeen[0] != "Bonjour" || conv.inputsSeen[1] != "" {
		t.Errorf("inputs per attempt = %v, want Bonjour then empty", conv.inputsSeen)
	}

	reloaded, _ := repo.LoadProfile(user.ID)
	if len(reloaded.History) != 2 {
		t.Fatalf("history = %+v, want the rejected reply rolled back", reloaded.History)
	}
	if reloaded.History[1].Content != "Bonjour! Comment ça va?" {
		t.Errorf("last turn = %q, want the accepted reply", reloaded.History[1].Content)
	}
	if len(reloaded.TopicsCovered) != 1 {
		t.Errorf("topics = %v, want the rejected reply's topics rolled back too", reloaded.TopicsCovered)
	}
}

func TestHandleTurnRedirectShortCircuitsGeneration(t *testing.T) {
	repo := db.NewInMemoryUserRepository()
	user := onboardedUser(t, repo)
	conv := &fakeConversation{repo: repo, replies: []string{"unused"}}
	fb := &fakeFeedback{repo: repo, redirect: "Please follow the conversation and reply according to what is asked."}
	service := NewTutorService(repo, conv, fb, &fakeExercises{}, 3)

	_, turn, err := service.HandleTurn(context.Background(), user.ID, "Let's talk about something else entirely")
	if err != nil {
		t.Fatalf("HandleTurn unexpected error: %v", err)
	}
	if turn == nil || turn.Agent != models.AgentFeedback {
		t.Fatalf("turn = %+v, want the feedback redirect", turn)
	}
	if conv.generateCalls != 0 {
		t.Errorf("generate calls = %d, want 0 after a redirect", conv.generateCalls)
	}
}

func TestHandleTurnExhaustsRetries(t *testing.T) {
	repo := db.NewInMemoryUserRepository()
	user := onboardedUser(t, repo)
	conv := &fakeConversation{repo: repo, replies: []string{"off topic"}}
	fb := &fakeFeedback{
		repo:       repo,
		rejections: map[string]string{"off topic": "Stay on French at a beginner level."},
	}
	service := NewTutorService(repo, conv, fb, &fakeExercises{}, 3)

	_, turn, err := service.HandleTurn(context.Background(), user.ID, "Bonjour")
	if turn != nil {
		t.Errorf("turn = %+v, want nil on exhaustion", turn)
	}

	var exhausted *models.ValidationExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error = %v, want ValidationExhaustedError", err)
	}
	if exhausted.Attempts != 3 || len(exhausted.Guidance) != 3 {
		t.Errorf("attempts/guidance = %d/%d, want 3/3", exhausted.Attempts, len(exhausted.Guidance))
	}
	if conv.generateCalls != 3 {
		t.Errorf("generate calls = %d, want 3", conv.generateCalls)
	}

	// Every rejected reply is rolled back; only the user turn remains.
	reloaded, _ := repo.LoadProfile(user.ID)
	if len(reloaded.History) != 1 || reloaded.History[0].Role != models.RoleUser {
		t.Errorf("history after exhaustion = %+v, want only the user turn", reloaded.History)
	}
	if len(reloaded.TopicsCovered) != 0 {
		t.Errorf("topics after exhaustion = %v, want none", reloaded.TopicsCovered)
	}
}

func TestGenerateExercisesRequiresOnboarding(t *testing.T) {
	repo := db.NewInMemoryUserRepository()
	exercises := &fakeExercises{set: &exercise.Set{Exercises: []exercise.Exercise{{Type: "matching", Question: "q", CorrectAnswer: "a"}}}}
	service := NewTutorService(repo, &fakeConversation{repo: repo}, &fakeFeedback{repo: repo}, exercises, 3)

	userID, set, err := service.GenerateExercises(context.Background(), "")
	if !errors.Is(err, ErrOnboardingIncomplete) {
		t.Fatalf("error = %v, want ErrOnboardingIncomplete", err)
	}
	if set != nil || exercises.calls != 0 {
		t.Errorf("set=%+v calls=%d, want no generation before onboarding", set, exercises.calls)
	}

	repo.UpdateTutoringInfo(userID, "French", "beginner")
	_, set, err = service.GenerateExercises(context.Background(), userID)
	if err != nil {
		t.Fatalf("GenerateExercises unexpected error: %v", err)
	}
	if set == nil || exercises.calls != 1 {
		t.Errorf("set=%+v calls=%d, want one generated set", set, exercises.calls)
	}
}

func TestSearchHistory(t *testing.T) {
	repo := db.NewInMemoryUserRepository()
	user := onboardedUser(t, repo)
	repo.AppendTurn(user.ID, models.NewUserTurn(models.AgentConversation, "Bonjour, comment allez-vous?"))
	repo.AppendTurn(user.ID, models.NewAssistantTurn(models.AgentConversation, "Très bien, merci!"))
	repo.AppendTurn(user.ID, models.NewAssistantTurn(models.AgentConversation, "Let's practice ordering food."))

	service := NewTutorService(repo, &fakeConversation{repo: repo}, &fakeFeedback{repo: repo}, &fakeExercises{}, 3)

	all, err := service.SearchHistory(user.ID, "")
	if err != nil {
		t.Fatalf("SearchHistory unexpected error: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("unfiltered history length = %d, want 3", len(all))
	}

	matching, err := service.SearchHistory(user.ID, "bonjour")
	if err != nil {
		t.Fatalf("SearchHistory unexpected error: %v", err)
	}
	if len(matching) != 1 || matching[0].Content != "Bonjour, comment allez-vous?" {
		t.Errorf("matches for bonjour = %+v, want the greeting turn", matching)
	}

	// Punctuation around words does not block matches.
	matching, err = service.SearchHistory(user.ID, "merci")
	if err != nil {
		t.Fatalf("SearchHistory unexpected error: %v", err)
	}
	if len(matching) != 1 {
		t.Errorf("matches for merci = %+v, want one turn", matching)
	}

	none, err := service.SearchHistory(user.ID, "zzzzqqq")
	if err != nil {
		t.Fatalf("SearchHistory unexpected error: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("matches for nonsense = %+v, want none", none)
	}
}
