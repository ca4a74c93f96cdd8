package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POSTAnonymous(path string, body any) error
	GetLastStatusCode() int
	GetResponseField(field string) (any, error)
	SetAccessToken(token string)
}

// RegisterSteps registers authentication-related step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &authSteps{tc: tc}

	ctx.Step(`^I register with email "([^"]*)" and password "([^"]*)"$`, steps.register)
	ctx.Step(`^I log in with email "([^"]*)" and password "([^"]*)"$`, steps.login)
	ctx.Step(`^I am logged in as "([^"]*)"$`, steps.loggedInAs)
	ctx.Step(`^I log out$`, steps.logout)
}

type authSteps struct {
	tc TestContext
}

const defaultPassword = "correct-horse-battery"

func credentials(email, password string) map[string]string {
	return map[string]string{"email": email, "password": password}
}

func (s *authSteps) register(ctx context.Context, email, password string) error {
	return s.tc.POSTAnonymous("/auth/register", credentials(email, password))
}

// login keeps the issued token so later steps act as this user.
func (s *authSteps) login(ctx context.Context, email, password string) error {
	if err := s.tc.POSTAnonymous("/auth/login", credentials(email, password)); err != nil {
		return err
	}
	if s.tc.GetLastStatusCode() != http.StatusOK {
		return nil
	}
	token, err := s.tc.GetResponseField("access_token")
	if err != nil {
		return err
	}
	str, ok := token.(string)
	if !ok {
		return fmt.Errorf("access_token is %T, want string", token)
	}
	s.tc.SetAccessToken(str)
	return nil
}

func (s *authSteps) loggedInAs(ctx context.Context, email string) error {
	if err := s.register(ctx, email, defaultPassword); err != nil {
		return err
	}
	if code := s.tc.GetLastStatusCode(); code != http.StatusCreated {
		return fmt.Errorf("register %s: status %d", email, code)
	}
	if err := s.login(ctx, email, defaultPassword); err != nil {
		return err
	}
	if code := s.tc.GetLastStatusCode(); code != http.StatusOK {
		return fmt.Errorf("login %s: status %d", email, code)
	}
	return nil
}

func (s *authSteps) logout(ctx context.Context) error {
	s.tc.SetAccessToken("")
	return nil
}
