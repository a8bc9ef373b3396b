package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/harvestline/plugin/ai/harvest"
	"github.com/hrygo/harvestline/plugin/ai/timeout"
)

// Service evaluates rules first-match-wins and runs the matched action.
type Service struct {
	rules   []Rule
	actions Actions
	now     func() time.Time
}

// NewService creates a router over the default rules.
func NewService(actions Actions) *Service {
	return &Service{
		rules:   DefaultRules(),
		actions: actions,
		now:     time.Now,
	}
}

// Route implements RouterService. A matched rule always yields a result:
// extraction and action errors, including panics, become ToolErrorMessage.
func (s *Service) Route(ctx context.Context, input string) (*Result, bool) {
	lower := normalize(input)
	if lower == "" {
		return nil, false
	}
	for _, rule := range s.rules {
		if !rule.Match(lower) {
			continue
		}
		return s.run(ctx, rule, input), true
	}
	return nil, false
}

func (s *Service) run(ctx context.Context, rule Rule, input string) (result *Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("structured action panicked",
				slog.String("intent", string(rule.Intent)),
				slog.String("panic", fmt.Sprint(r)))
			result = failed(rule.Intent)
		}
	}()

	action, err := rule.Extract(input, s.now())
	if err != nil {
		slog.Warn("failed to extract structured action",
			slog.String("intent", string(rule.Intent)),
			slog.String("error", err.Error()))
		return failed(rule.Intent)
	}

	result, err = s.execute(ctx, rule.Intent, action)
	if err != nil {
		slog.Warn("structured action failed",
			slog.String("intent", string(rule.Intent)),
			slog.String("error", err.Error()))
		return failed(rule.Intent)
	}
	return result
}

func (s *Service) execute(ctx context.Context, intent Intent, action Action) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout.ToolExecutionTimeout)
	defer cancel()

	switch a := action.(type) {
	case ClarifyAction:
		return &Result{Intent: intent, Text: a.Message, Clarification: true}, nil
	case RecordAction:
		text, err := s.actions.Record(ctx, a.Count, a.Weight, a.Date)
		if err != nil {
			return nil, err
		}
		return &Result{Intent: intent, Text: text}, nil
	case StatsAction:
		stats, err := s.actions.Stats(ctx, a.Year)
		if err != nil {
			return nil, err
		}
		result := &Result{Intent: intent, Text: stats.Message, Stats: stats}
		if stats.Status == harvest.StatsSuccess {
			result.Flex = stats.Flex
		}
		return result, nil
	default:
		return nil, errors.Errorf("unsupported action %T", action)
	}
}

func failed(intent Intent) *Result {
	return &Result{Intent: intent, Text: ToolErrorMessage, Failed: true}
}
