package common

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string, headers map[string]string) error
	POSTWithHeaders(path string, body interface{}, headers map[string]string) error
	GetResponseField(field string) (interface{}, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetLastResponseHeader(name string) string
	GetAdminToken() string
	SetClient(id, secret, redirectURI string)
}

// RegisterSteps registers background and assertion steps shared by all features
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^the server is healthy$`, steps.serverIsHealthy)
	ctx.Step(`^a client registered with redirect URI "([^"]*)"$`, steps.registerClient)
	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, steps.fieldShouldBe)
	ctx.Step(`^the response should contain "([^"]*)"$`, steps.fieldShouldExist)
	ctx.Step(`^the error should be "([^"]*)"$`, steps.errorShouldBe)
	ctx.Step(`^the response should not be cached$`, steps.notCached)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) serverIsHealthy(ctx context.Context) error {
	if err := s.tc.GET("/health", nil); err != nil {
		return err
	}
	return s.statusShouldBe(ctx, 200)
}

func (s *commonSteps) registerClient(ctx context.Context, redirectURI string) error {
	err := s.tc.POSTWithHeaders("/admin/clients", map[string]interface{}{
		"name":          "e2e",
		"redirect_uris": []string{redirectURI},
	}, map[string]string{"X-Admin-Token": s.tc.GetAdminToken()})
	if err != nil {
		return err
	}
	if err := s.statusShouldBe(ctx, 201); err != nil {
		return err
	}
	id, err := s.stringField("client_id")
	if err != nil {
		return err
	}
	secret, err := s.stringField("client_secret")
	if err != nil {
		return err
	}
	s.tc.SetClient(id, secret, redirectURI)
	return nil
}

func (s *commonSteps) statusShouldBe(ctx context.Context, expected int) error {
	if got := s.tc.GetLastResponseStatus(); got != expected {
		return fmt.Errorf("expected status %d, got %d: %s", expected, got, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *commonSteps) fieldShouldBe(ctx context.Context, field, expected string) error {
	got, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if fmt.Sprint(got) != expected {
		return fmt.Errorf("expected %s=%q, got %q", field, expected, fmt.Sprint(got))
	}
	return nil
}

func (s *commonSteps) fieldShouldExist(ctx context.Context, field string) error {
	_, err := s.tc.GetResponseField(field)
	return err
}

func (s *commonSteps) errorShouldBe(ctx context.Context, code string) error {
	return s.fieldShouldBe(ctx, "error", code)
}

func (s *commonSteps) notCached(ctx context.Context) error {
	if got := s.tc.GetLastResponseHeader("Cache-Control"); got != "no-store" {
		return fmt.Errorf("expected Cache-Control no-store, got %q", got)
	}
	return nil
}

func (s *commonSteps) stringField(field string) (string, error) {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return "", err
	}
	str, ok := v.(string)
	if !ok || str == "" {
		return "", fmt.Errorf("field %q is not a non-empty string", field)
	}
	return str, nil
}
