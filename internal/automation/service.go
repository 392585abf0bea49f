package automation

import (
	"context"
	"fmt"
	"log"
	"time"

	"taskline/internal/domain"
	"taskline/internal/rules"
)

// Store is the slice of the repository the service reads and stamps rules
// through.
type Store interface {
	ActiveRulesByTrigger(ctx context.Context, trigger string) ([]domain.Rule, error)
	RecordRuleExecution(ctx context.Context, id, firedAt string) error
}

// Service matches events against active rules and fires the ones whose
// conditions hold. Rules are isolated from each other: one rule's failure
// never blocks another's firing.
type Service struct {
	Store    Store
	Executor *Executor
	Logger   *log.Logger
	Now      func() time.Time
}

func NewService(store Store, executor *Executor) *Service {
	return &Service{Store: store, Executor: executor, Now: time.Now}
}

func (s *Service) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// ProcessTrigger evaluates every active rule registered for the trigger
// against the event context and executes the matching ones. A matched rule's
// execution counter is bumped exactly once per firing, regardless of how many
// of its actions succeed.
func (s *Service) ProcessTrigger(ctx context.Context, trigger string, evCtx rules.Context) error {
	matched, err := s.Store.ActiveRulesByTrigger(ctx, trigger)
	if err != nil {
		return fmt.Errorf("rules for %s: %w", trigger, err)
	}
	for _, rule := range matched {
		s.fire(ctx, rule, evCtx)
	}
	return nil
}

// fire evaluates and runs one rule. A panic inside a rule is contained here so
// the remaining rules for the trigger still run.
func (s *Service) fire(ctx context.Context, rule domain.Rule, evCtx rules.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logf("rule %s (%s): panic: %v", rule.ID, rule.Name, r)
		}
	}()
	if !rules.Evaluate(rule.Conditions, evCtx) {
		return
	}
	s.Executor.Execute(ctx, rule, evCtx)
	firedAt := s.Now().UTC().Format(time.RFC3339)
	if err := s.Store.RecordRuleExecution(ctx, rule.ID, firedAt); err != nil {
		s.logf("rule %s: record execution: %v", rule.ID, err)
	}
}
