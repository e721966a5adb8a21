package e2e

import (
	"github.com/cucumber/godog"

	"idhub/e2e/steps/auth"
	"idhub/e2e/steps/common"
	"idhub/e2e/steps/ratelimit"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	auth.RegisterSteps(ctx, tc)
	ratelimit.RegisterSteps(ctx, tc)
}
