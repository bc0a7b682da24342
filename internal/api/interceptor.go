package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"genstudio/internal/models"
)

var errNoRefreshToken = errors.New("api: no refresh token")

// attempt carries one logical request across its original send and the
// single replay after a refresh.
type attempt struct {
	req         *Request
	body        []byte
	contentType string
	requestID   string

	// accountType is captured at dispatch and picks the refresh route.
	accountType string

	// bearer overrides the session token (used by the refresh call).
	bearer string

	sentToken string
	retried   bool
}

// authorize attaches the bearer token. A missing token is never fatal.
func (c *Client) authorize(ctx context.Context, req *http.Request, at *attempt) {
	if at.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+at.bearer)
		at.sentToken = at.bearer
		return
	}

	var token string
	if p := c.provider(); p != nil {
		t, err := p.AccessToken(ctx)
		if err != nil {
			c.logger.WithError(err).Debug("failed to read access token")
		}
		token = t
	}
	at.sentToken = token

	if token == "" {
		entry := c.logger.WithFields(logrus.Fields{
			"method": at.req.Method,
			"path":   at.req.Path,
		})
		if ExpectsNoToken(at.req.Path) {
			entry.Debug("no access token for public endpoint")
		} else {
			entry.Warn("sending request without access token")
		}
		return
	}

	req.Header.Set("Authorization", "Bearer "+token)

	if exp, ok := tokenExpiry(token); ok && time.Now().After(exp) {
		c.logger.WithFields(logrus.Fields{
			"path":       at.req.Path,
			"expired_at": exp.Format(time.RFC3339),
		}).Debug("access token already expired")
	}
}

// tokenExpiry reads the exp claim without verifying the signature.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// TokenAccountType reads the unverified "type" claim of an access token, or
// returns "" when there is none.
func TokenAccountType(token string) string {
	if token == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	t, _ := claims["type"].(string)
	return t
}

// handleUnauthorized runs after a 401. It refreshes at most once per
// attempt and replays the request with the new token.
func (c *Client) handleUnauthorized(ctx context.Context, at *attempt, original error) (*Response, error) {
	if IsRefreshExempt(at.req.Path) || at.retried {
		return nil, original
	}
	at.retried = true

	if c.provider() == nil {
		return nil, original
	}

	// Another request already refreshed while this one was in flight.
	if current := c.CurrentAccessToken(ctx); current != "" && current != at.sentToken {
		c.logger.WithField("path", at.req.Path).Debug("token rotated since dispatch, replaying")
		return c.send(ctx, at)
	}

	if err := c.refresh(ctx, at.accountType); err != nil {
		if errors.Is(err, errNoRefreshToken) {
			return nil, original
		}
		return nil, err
	}

	return c.send(ctx, at)
}

// refresh joins the in-flight refresh for accountType or starts one.
// Callers whose ctx ends stop waiting; the refresh itself keeps going so
// the other waiters still get the result.
func (c *Client) refresh(ctx context.Context, accountType string) error {
	ch := c.refreshGroup.DoChan(accountType, func() (interface{}, error) {
		c.refreshing.Add(1)
		defer c.refreshing.Add(-1)
		return nil, c.doRefresh(context.WithoutCancel(ctx), accountType)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return &Error{Message: NetworkMessage, Err: ctx.Err()}
	}
}

func (c *Client) doRefresh(ctx context.Context, accountType string) error {
	p := c.provider()
	if p == nil {
		return errNoRefreshToken
	}

	log := c.logger.WithField("account_type", accountType)

	refreshToken, err := p.RefreshToken(ctx)
	if err != nil || refreshToken == "" {
		if err != nil {
			log = log.WithError(err)
		}
		log.Warn("no refresh token available, logging out")
		p.OnAuthFailure(ctx)
		return errNoRefreshToken
	}

	body, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return fmt.Errorf("api: encode refresh body: %w", err)
	}

	at := &attempt{
		req:         &Request{Method: http.MethodPost, Path: RefreshPath(accountType)},
		body:        body,
		contentType: "application/json",
		requestID:   uuid.NewString(),
		accountType: accountType,
		bearer:      refreshToken,
	}

	resp, err := c.send(ctx, at)
	if err != nil {
		log.WithError(err).Warn("token refresh failed, logging out")
		p.OnAuthFailure(ctx)
		return err
	}

	var tokens models.AuthTokens
	if err := resp.Decode(&tokens); err != nil || tokens.AccessToken == "" {
		if err == nil {
			err = errors.New("refresh response has no access token")
		}
		log.WithError(err).Warn("token refresh returned an unusable body, logging out")
		p.OnAuthFailure(ctx)
		return &Error{Status: resp.Status, Message: GenericMessage, Err: err}
	}

	if err := p.OnRefreshed(ctx, tokens); err != nil {
		log.WithError(err).Error("failed to persist refreshed tokens, logging out")
		p.OnAuthFailure(ctx)
		return fmt.Errorf("api: persist refreshed tokens: %w", err)
	}

	log.Debug("session refreshed")
	return nil
}
