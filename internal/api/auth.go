package api

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"hackonomics/internal/apperr"
	appLog "hackonomics/internal/log"
	"hackonomics/internal/model"
)

// LoginRequest is the user-supplied part of a login.
type LoginRequest struct {
	Email      string
	Password   string
	RememberMe bool
}

// Validate checks the request before any network I/O.
func (r LoginRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" || r.Password == "" {
		return apperr.Validation("Please enter your email and password.")
	}
	return nil
}

type loginBody struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceID   string `json:"device_id"`
	RememberMe bool   `json:"remember_me"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

var errEmptyToken = errors.New("api: backend returned an empty access token")

// Login authenticates with email/password and stores the issued credential.
func (c *Client) Login(ctx context.Context, req LoginRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	body := loginBody{
		Email:      strings.TrimSpace(req.Email),
		Password:   req.Password,
		DeviceID:   c.DeviceID(),
		RememberMe: req.RememberMe,
	}
	var out tokenResponse
	if err := c.post(ctx, pathLogin, body, &out); err != nil {
		return err
	}
	if out.AccessToken == "" {
		return apperr.From(errEmptyToken)
	}
	c.session.Login(out.AccessToken)
	appLog.Info("login succeeded", "remember_me", req.RememberMe)
	return nil
}

// SignupRequest is the sign-up form.
type SignupRequest struct {
	Email           string
	Password        string
	ConfirmPassword string
	AgreedToTerms   bool
}

// Validate mirrors the checks the sign-up form performs locally.
func (r SignupRequest) Validate() error {
	if _, err := mail.ParseAddress(strings.TrimSpace(r.Email)); err != nil {
		return apperr.Validation("Please enter a valid email address.")
	}
	if r.Password == "" {
		return apperr.Validation("Please enter a password.")
	}
	if r.Password != r.ConfirmPassword {
		return apperr.Validation("Password and confirm password do not match.")
	}
	if !r.AgreedToTerms {
		return apperr.Validation("Please agree to the terms and conditions.")
	}
	return nil
}

type signupBody struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Signup registers a new account. It does not log in.
func (c *Client) Signup(ctx context.Context, req SignupRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return c.post(ctx, pathSignup, signupBody{
		Email:           strings.TrimSpace(req.Email),
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	}, nil)
}

// RefreshToken exchanges the refresh cookie for a new access token. It
// sends no bearer header and does not touch the session; use
// Session().Refresh to refresh and store.
func (c *Client) RefreshToken(ctx context.Context) (string, error) {
	r, _ := newRequest(http.MethodPost, pathRefresh, struct{}{})
	r.noBearer = true

	var out tokenResponse
	if err := c.do(ctx, r, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", apperr.From(errEmptyToken)
	}
	return out.AccessToken, nil
}

// Logout asks the backend to end the session and always clears the local
// credential, whatever the backend answers.
func (c *Client) Logout(ctx context.Context) {
	if err := c.post(ctx, pathLogout, struct{}{}, nil); err != nil {
		appLog.Warn("logout request failed, continuing local logout", "err", err.Error())
	}
	c.session.Logout()
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (*model.UserInfo, error) {
	var u model.UserInfo
	if err := c.get(ctx, pathMe, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
