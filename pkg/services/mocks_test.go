package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-accounts/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-accounts/pkg/models"
	"github.com/ekaya-inc/ekaya-accounts/pkg/repositories"
)

// testClock hands out strictly increasing timestamps.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// ============================================================================
// Accounts
// ============================================================================

type mockAccountRepo struct {
	accounts  map[uuid.UUID]*models.Account
	createErr error
	getErr    error
}

func newMockAccountRepo(accounts ...*models.Account) *mockAccountRepo {
	m := &mockAccountRepo{accounts: make(map[uuid.UUID]*models.Account)}
	for _, a := range accounts {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		m.accounts[a.ID] = a
	}
	return m
}

func (m *mockAccountRepo) Create(ctx context.Context, account *models.Account) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, a := range m.accounts {
		if a.CompanyName == account.CompanyName {
			return apperrors.ErrConflict
		}
	}
	account.ID = uuid.New()
	cp := *account
	m.accounts[account.ID] = &cp
	return nil
}

func (m *mockAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	a, ok := m.accounts[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockAccountRepo) GetByName(ctx context.Context, companyName string) (*models.Account, error) {
	for _, a := range m.accounts {
		if a.CompanyName == companyName {
			cp := *a
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockAccountRepo) List(ctx context.Context, filter models.AccountFilter) ([]*models.Account, error) {
	var out []*models.Account
	for _, a := range m.accounts {
		if filter.Search != "" && !strings.Contains(strings.ToLower(a.CompanyName), strings.ToLower(filter.Search)) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockAccountRepo) Update(ctx context.Context, account *models.Account) error {
	if _, ok := m.accounts[account.ID]; !ok {
		return apperrors.ErrNotFound
	}
	cp := *account
	m.accounts[account.ID] = &cp
	return nil
}

func (m *mockAccountRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.accounts[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.accounts, id)
	return nil
}

var _ repositories.AccountRepository = (*mockAccountRepo)(nil)

// ============================================================================
// Interactions
// ============================================================================

type mockInteractionRepo struct {
	interactions []*models.Interaction
	clock        *testClock
	createErr    error
	listErr      error
	createCalls  int
}

func newMockInteractionRepo(clock *testClock) *mockInteractionRepo {
	return &mockInteractionRepo{clock: clock}
}

// add stores an interaction directly, bypassing validation.
func (m *mockInteractionRepo) add(accountID uuid.UUID, t models.InteractionType, question, answer string, data models.StructuredData) *models.Interaction {
	i := &models.Interaction{
		ID:             uuid.New(),
		AccountID:      accountID,
		Type:           t,
		Question:       question,
		Answer:         answer,
		StructuredData: data,
		CreatedAt:      m.clock.Now(),
	}
	i.UpdatedAt = i.CreatedAt
	m.interactions = append(m.interactions, i)
	return i
}

func (m *mockInteractionRepo) Create(ctx context.Context, interaction *models.Interaction) error {
	m.createCalls++
	if m.createErr != nil {
		return m.createErr
	}
	if err := interaction.StructuredData.Validate(models.ProducerFor(interaction.Type)); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	interaction.ID = uuid.New()
	interaction.CreatedAt = m.clock.Now()
	interaction.UpdatedAt = interaction.CreatedAt
	cp := *interaction
	m.interactions = append(m.interactions, &cp)
	return nil
}

func (m *mockInteractionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Interaction, error) {
	for _, i := range m.interactions {
		if i.ID == id {
			cp := *i
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockInteractionRepo) List(ctx context.Context, filter models.InteractionFilter) ([]*models.Interaction, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}

	var out []*models.Interaction
	for _, i := range m.interactions {
		if i.AccountID != filter.AccountID {
			continue
		}
		if len(filter.Types) > 0 && !containsType(filter.Types, i.Type) {
			continue
		}
		if filter.Question != "" && i.Question != filter.Question {
			continue
		}
		if filter.AnsweredOnly && (i.Question == "" || i.Answer == "") {
			continue
		}
		cp := *i
		out = append(out, &cp)
	}

	sort.SliceStable(out, func(a, b int) bool {
		if filter.Ascending {
			return out[a].CreatedAt.Before(out[b].CreatedAt)
		}
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *mockInteractionRepo) LatestByQuestion(ctx context.Context, accountID uuid.UUID, t models.InteractionType, question string) (*models.Interaction, error) {
	list, err := m.List(ctx, models.InteractionFilter{
		AccountID: accountID,
		Types:     []models.InteractionType{t},
		Question:  question,
		Limit:     1,
	})
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (m *mockInteractionRepo) UpdateAnswer(ctx context.Context, interaction *models.Interaction) error {
	if err := interaction.StructuredData.Validate(models.ProducerFor(interaction.Type)); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	for _, i := range m.interactions {
		if i.ID == interaction.ID {
			i.Answer = interaction.Answer
			i.StructuredData = interaction.StructuredData
			i.UpdatedAt = m.clock.Now()
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func containsType(types []models.InteractionType, t models.InteractionType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

var _ repositories.InteractionRepository = (*mockInteractionRepo)(nil)

// ============================================================================
// External facts
// ============================================================================

type mockFactRepo struct {
	facts     map[string]*models.ExternalFact
	clock     *testClock
	upsertErr error
	upserts   int
	// failOn makes UpsertAll reject a batch containing this fact type.
	failOn models.FactType
}

func newMockFactRepo(clock *testClock) *mockFactRepo {
	return &mockFactRepo{facts: make(map[string]*models.ExternalFact), clock: clock}
}

func factKey(accountID uuid.UUID, t models.FactType) string {
	return accountID.String() + "/" + string(t)
}

func (m *mockFactRepo) Upsert(ctx context.Context, fact *models.ExternalFact) error {
	m.upserts++
	if m.upsertErr != nil {
		return m.upsertErr
	}
	now := m.clock.Now()
	key := factKey(fact.AccountID, fact.FactType)
	if existing, ok := m.facts[key]; ok {
		existing.Content = fact.Content
		if fact.SourceURL != "" {
			existing.SourceURL = fact.SourceURL
		}
		existing.UpdatedAt = now
		*fact = *existing
		return nil
	}
	fact.ID = uuid.New()
	fact.CreatedAt = now
	fact.UpdatedAt = now
	cp := *fact
	m.facts[key] = &cp
	return nil
}

func (m *mockFactRepo) UpsertAll(ctx context.Context, facts []*models.ExternalFact) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	for _, fact := range facts {
		if fact.FactType == m.failOn {
			return fmt.Errorf("%s: %w", fact.FactType, apperrors.ErrInvalidInput)
		}
	}
	for _, fact := range facts {
		if err := m.Upsert(ctx, fact); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockFactRepo) Get(ctx context.Context, accountID uuid.UUID, factType models.FactType) (*models.ExternalFact, error) {
	f, ok := m.facts[factKey(accountID, factType)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *mockFactRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*models.ExternalFact, error) {
	var out []*models.ExternalFact
	for _, t := range models.AllFactTypes {
		if f, ok := m.facts[factKey(accountID, t)]; ok {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockFactRepo) Delete(ctx context.Context, accountID uuid.UUID, factType models.FactType) error {
	key := factKey(accountID, factType)
	if _, ok := m.facts[key]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.facts, key)
	return nil
}

var _ repositories.ExternalFactRepository = (*mockFactRepo)(nil)

// ============================================================================
// Question templates
// ============================================================================

type mockTemplateRepo struct {
	templates []*models.QuestionTemplate
}

func (m *mockTemplateRepo) Create(ctx context.Context, q *models.QuestionTemplate) error {
	for _, t := range m.templates {
		if t.QuestionText == q.QuestionText {
			return apperrors.ErrConflict
		}
	}
	q.ID = uuid.New()
	cp := *q
	m.templates = append(m.templates, &cp)
	return nil
}

func (m *mockTemplateRepo) CreateIfAbsent(ctx context.Context, q *models.QuestionTemplate) (bool, error) {
	err := m.Create(ctx, q)
	if err == apperrors.ErrConflict {
		return false, nil
	}
	return err == nil, err
}

func (m *mockTemplateRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.QuestionTemplate, error) {
	for _, t := range m.templates {
		if t.ID == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockTemplateRepo) List(ctx context.Context, activeOnly bool, category string) ([]*models.QuestionTemplate, error) {
	var out []*models.QuestionTemplate
	for _, t := range m.templates {
		if activeOnly && !t.IsActive {
			continue
		}
		if category != "" && t.Category != category {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].DisplayOrder < out[b].DisplayOrder })
	return out, nil
}

func (m *mockTemplateRepo) Update(ctx context.Context, q *models.QuestionTemplate) error {
	for i, t := range m.templates {
		if t.ID == q.ID {
			cp := *q
			m.templates[i] = &cp
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *mockTemplateRepo) Delete(ctx context.Context, id uuid.UUID) error {
	for i, t := range m.templates {
		if t.ID == id {
			m.templates = append(m.templates[:i], m.templates[i+1:]...)
			return nil
		}
	}
	return apperrors.ErrNotFound
}

var _ repositories.QuestionTemplateRepository = (*mockTemplateRepo)(nil)

// ============================================================================
// Plans
// ============================================================================

type mockPlanRepo struct {
	plans     []*models.Plan
	clock     *testClock
	createErr error
}

func newMockPlanRepo(clock *testClock) *mockPlanRepo {
	return &mockPlanRepo{clock: clock}
}

func (m *mockPlanRepo) Create(ctx context.Context, plan *models.Plan) error {
	if m.createErr != nil {
		return m.createErr
	}
	now := m.clock.Now()
	plan.ID = uuid.New()
	if plan.Status == "" {
		plan.Status = models.PlanStatusDraft
	}
	plan.ChangeLog = models.NewChangeLog(now)
	plan.CreatedAt = now
	plan.UpdatedAt = now
	cp := *plan
	m.plans = append(m.plans, &cp)
	return nil
}

func (m *mockPlanRepo) find(id uuid.UUID) *models.Plan {
	for _, p := range m.plans {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (m *mockPlanRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	p := m.find(id)
	if p == nil {
		return nil, apperrors.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPlanRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, includeArchived bool) ([]*models.Plan, error) {
	var out []*models.Plan
	for _, p := range m.plans {
		if p.AccountID != accountID {
			continue
		}
		if !includeArchived && p.Status == models.PlanStatusArchived {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out, nil
}

func (m *mockPlanRepo) Update(ctx context.Context, id uuid.UUID, update models.PlanUpdate, at time.Time) (*models.Plan, error) {
	p := m.find(id)
	if p == nil {
		return nil, apperrors.ErrNotFound
	}
	if update.Title != nil {
		p.Title = *update.Title
	}
	if update.Content != nil {
		p.Content = *update.Content
	}
	if update.Status != nil {
		p.Status = *update.Status
	}
	m.appendEntry(p, update.Changes(), at)
	cp := *p
	return &cp, nil
}

func (m *mockPlanRepo) AppendChangeLog(ctx context.Context, id uuid.UUID, entry map[string]any, at time.Time) (string, error) {
	p := m.find(id)
	if p == nil {
		return "", apperrors.ErrNotFound
	}
	return m.appendEntry(p, entry, at), nil
}

func (m *mockPlanRepo) appendEntry(p *models.Plan, entry map[string]any, at time.Time) string {
	log := models.ChangeLog{}
	for k, v := range p.ChangeLog {
		log[k] = v
	}
	key := log.NextKey(at)
	log[key] = entry
	p.ChangeLog = log
	p.UpdatedAt = at
	return key
}

func (m *mockPlanRepo) ArchiveBeyond(ctx context.Context, accountID uuid.UUID, keepLatest int, at time.Time) ([]uuid.UUID, error) {
	active, _ := m.ListByAccount(ctx, accountID, false)
	var archived []uuid.UUID
	for i, p := range active {
		if i < keepLatest {
			continue
		}
		stored := m.find(p.ID)
		stored.Status = models.PlanStatusArchived
		m.appendEntry(stored, map[string]any{"status": string(models.PlanStatusArchived)}, at)
		archived = append(archived, p.ID)
	}
	return archived, nil
}

var _ repositories.PlanRepository = (*mockPlanRepo)(nil)
