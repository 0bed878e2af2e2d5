package rules

import (
	"testing"
	"time"

	"userbotgo/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	rules      []models.Rule
	saveErr    error
	usageCalls []string
}

func (f *fakeStore) ListRules() ([]models.Rule, error) {
	out := make([]models.Rule, len(f.rules))
	copy(out, f.rules)
	return out, nil
}

func (f *fakeStore) CreateRule(rule *models.Rule) error {
	if rule.ID == "" {
		rule.ID = "generated"
	}
	f.rules = append(f.rules, *rule)
	return nil
}

func (f *fakeStore) SaveRule(rule *models.Rule) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	for i := range f.rules {
		if f.rules[i].ID == rule.ID {
			f.rules[i] = *rule
		}
	}
	return nil
}

func (f *fakeStore) DeleteRule(id string) error {
	for i := range f.rules {
		if f.rules[i].ID == id {
			f.rules = append(f.rules[:i], f.rules[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeStore) IncrementRuleUsage(id string) error {
	f.usageCalls = append(f.usageCalls, id)
	return nil
}

func newRule(id string, priority int, createdAt time.Time) models.Rule {
	return models.Rule{
		ID:        id,
		Name:      id,
		Priority:  priority,
		IsActive:  true,
		CreatedAt: createdAt,
	}
}

func TestRepositoryOrdering(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{rules: []models.Rule{
		newRule("low", 1, base),
		newRule("tie-late", 5, base.Add(time.Hour)),
		newRule("high", 10, base),
		newRule("tie-early", 5, base),
	}}

	repo := NewRepository(store)
	require.NoError(t, repo.Load())

	got := repo.List()
	require.Len(t, got, 4)
	assert.Equal(t, "high", got[0].ID)
	assert.Equal(t, "tie-early", got[1].ID)
	assert.Equal(t, "tie-late", got[2].ID)
	assert.Equal(t, "low", got[3].ID)
}

func TestRepositoryCreateKeepsOrder(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{rules: []models.Rule{newRule("a", 5, base)}}
	repo := NewRepository(store)
	require.NoError(t, repo.Load())

	r := newRule("b", 10, base.Add(time.Minute))
	require.NoError(t, repo.Create(&r))

	got := repo.List()
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
}

func TestRepositoryGetNotFound(t *testing.T) {
	repo := NewRepository(&fakeStore{})
	require.NoError(t, repo.Load())

	_, err := repo.Get("missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRepositoryUpdate(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{rules: []models.Rule{newRule("a", 5, base)}}
	repo := NewRepository(store)
	require.NoError(t, repo.Load())

	priority := 20
	inactive := false
	updated, err := repo.Update("a", &models.RuleUpdate{Priority: &priority, IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, 20, updated.Priority)
	assert.False(t, updated.IsActive)

	// The write must reach the store, not just the cache.
	assert.Equal(t, 20, store.rules[0].Priority)

	_, err = repo.Update("missing", &models.RuleUpdate{Priority: &priority})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRepositoryDeleteIdempotent(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{rules: []models.Rule{newRule("a", 5, base)}}
	repo := NewRepository(store)
	require.NoError(t, repo.Load())

	require.NoError(t, repo.Delete("a"))
	require.NoError(t, repo.Delete("a"))
	assert.Empty(t, repo.List())
}

func TestActiveRulesFor(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	acc := "acc-1"
	other := "acc-2"

	global := newRule("global", 5, base)
	scoped := newRule("scoped", 10, base)
	scoped.AccountID = &acc
	foreign := newRule("foreign", 20, base)
	foreign.AccountID = &other
	disabled := newRule("disabled", 30, base)
	disabled.IsActive = false

	store := &fakeStore{rules: []models.Rule{global, scoped, foreign, disabled}}
	repo := NewRepository(store)
	require.NoError(t, repo.Load())

	got := repo.ActiveRulesFor(acc)
	require.Len(t, got, 2)
	assert.Equal(t, "scoped", got[0].ID)
	assert.Equal(t, "global", got[1].ID)
}

func TestIncrementUsage(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{rules: []models.Rule{newRule("a", 5, base)}}
	repo := NewRepository(store)
	require.NoError(t, repo.Load())

	repo.IncrementUsage("a")
	repo.IncrementUsage("a")

	assert.Equal(t, []string{"a", "a"}, store.usageCalls)
	rule, err := repo.Get("a")
	require.NoError(t, err)
	assert.EqualValues(t, 2, rule.UsageCount)
}
