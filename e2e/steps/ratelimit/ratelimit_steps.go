package ratelimit

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GetLastResponseStatus() int
	GetLastResponseHeader(name string) string
}

// RegisterSteps registers rate-limiting step definitions for the
// credential-bearing login routes.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}

	ctx.Step(`^I fail password login (\d+) times for "([^"]*)"$`, steps.failLoginNTimes)
	ctx.Step(`^the first attempt should return (\d+)$`, steps.firstAttemptShouldReturn)
	ctx.Step(`^a later attempt should return (\d+)$`, steps.laterAttemptShouldReturn)
	ctx.Step(`^the response should ask me to retry later$`, steps.shouldAskToRetry)
}

type ratelimitSteps struct {
	tc       TestContext
	statuses []int
	retry    string
}

func (s *ratelimitSteps) failLoginNTimes(ctx context.Context, times int, email string) error {
	s.statuses = s.statuses[:0]
	for i := 0; i < times; i++ {
		if err := s.tc.POST("/auth/login/password", map[string]string{
			"email":    email,
			"password": "definitely-wrong",
		}); err != nil {
			return err
		}
		status := s.tc.GetLastResponseStatus()
		s.statuses = append(s.statuses, status)
		if status == 429 && s.retry == "" {
			s.retry = s.tc.GetLastResponseHeader("Retry-After")
		}
	}
	return nil
}

func (s *ratelimitSteps) firstAttemptShouldReturn(ctx context.Context, expected int) error {
	if len(s.statuses) == 0 {
		return fmt.Errorf("no attempts recorded")
	}
	if s.statuses[0] != expected {
		return fmt.Errorf("expected first attempt to return %d, got %d", expected, s.statuses[0])
	}
	return nil
}

func (s *ratelimitSteps) laterAttemptShouldReturn(ctx context.Context, expected int) error {
	for _, st := range s.statuses[1:] {
		if st == expected {
			return nil
		}
	}
	return fmt.Errorf("no attempt returned %d: %v", expected, s.statuses)
}

func (s *ratelimitSteps) shouldAskToRetry(ctx context.Context) error {
	if s.retry == "" {
		return fmt.Errorf("throttled response carried no Retry-After header")
	}
	return nil
}
