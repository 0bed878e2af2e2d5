// Package rules owns the auto-reply rule collection and the message
// classifier that evaluates inbound messages against it.
package rules

import (
	"sort"
	"sync"

	"userbotgo/backend/internal/models"

	"github.com/rs/zerolog/log"
)

// Store is the persistence subset the repository needs.
type Store interface {
	ListRules() ([]models.Rule, error)
	CreateRule(rule *models.Rule) error
	SaveRule(rule *models.Rule) error
	DeleteRule(id string) error
	IncrementRuleUsage(id string) error
}

// Repository keeps an in-memory, priority-ordered copy of the rules on top
// of the database. Mutations write through to the store and then refresh the
// cache, so in-flight classification sees the change by the next message at
// the latest.
type Repository struct {
	mu    sync.RWMutex
	store Store
	rules []models.Rule
}

// NewRepository creates a repository; call Load before serving traffic.
func NewRepository(store Store) *Repository {
	return &Repository{store: store}
}

// Load replaces the cache with the store's contents.
func (r *Repository) Load() error {
	rules, err := r.store.ListRules()
	if err != nil {
		return err
	}
	sortRules(rules)

	r.mu.Lock()
	r.rules = rules
	r.mu.Unlock()

	log.Info().Int("count", len(rules)).Msg("rules loaded")
	return nil
}

// List returns all rules sorted by (priority desc, created_at asc).
func (r *Repository) List() []models.Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Get returns the rule by id or models.ErrNotFound.
func (r *Repository) Get(id string) (*models.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.rules {
		if r.rules[i].ID == id {
			rule := r.rules[i]
			return &rule, nil
		}
	}
	return nil, models.ErrNotFound
}

// Create persists a new rule and inserts it into the cache.
func (r *Repository) Create(rule *models.Rule) error {
	if err := r.store.CreateRule(rule); err != nil {
		return err
	}

	r.mu.Lock()
	r.rules = append(r.rules, *rule)
	sortRules(r.rules)
	r.mu.Unlock()
	return nil
}

// Update applies a partial update to the rule, failing with
// models.ErrNotFound when it does not exist.
func (r *Repository) Update(id string, update *models.RuleUpdate) (*models.Rule, error) {
	rule, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	update.Apply(rule)
	if err := r.store.SaveRule(rule); err != nil {
		return nil, err
	}

	r.mu.Lock()
	for i := range r.rules {
		if r.rules[i].ID == id {
			r.rules[i] = *rule
			break
		}
	}
	sortRules(r.rules)
	r.mu.Unlock()
	return rule, nil
}

// Delete removes the rule; deleting a missing rule is a no-op.
func (r *Repository) Delete(id string) error {
	if err := r.store.DeleteRule(id); err != nil {
		return err
	}

	r.mu.Lock()
	for i := range r.rules {
		if r.rules[i].ID == id {
			r.rules = append(r.rules[:i], r.rules[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	return nil
}

// ActiveRulesFor returns the active rules that apply to the account, both
// account-scoped and global ones, preserving evaluation order.
func (r *Repository) ActiveRulesFor(accountID string) []models.Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.Rule
	for _, rule := range r.rules {
		if !rule.IsActive {
			continue
		}
		if rule.AccountID != nil && *rule.AccountID != accountID {
			continue
		}
		out = append(out, rule)
	}
	return out
}

// IncrementUsage bumps the usage counter in the store and the cache.
func (r *Repository) IncrementUsage(id string) {
	if err := r.store.IncrementRuleUsage(id); err != nil {
		log.Error().Err(err).Str("rule_id", id).Msg("failed to increment rule usage")
		return
	}

	r.mu.Lock()
	for i := range r.rules {
		if r.rules[i].ID == id {
			r.rules[i].UsageCount++
			break
		}
	}
	r.mu.Unlock()
}

// sortRules orders by priority descending with creation time as tie-break,
// giving a stable total evaluation order.
func sortRules(rules []models.Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
}
