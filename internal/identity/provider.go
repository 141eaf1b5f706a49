package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

// Provider is the identity collaborator: it hands out one stable opaque uid
// per principal. The game core only ever reads the uid; credential state
// stays here.
//
// Resolution order: a fixed uid injected at construction (operator
// override), an anonymous sign-in against the auth endpoint when one is
// configured, and a locally generated uuid otherwise.
type Provider struct {
	authBaseURL string
	fixedUID    string
	http        *fasthttp.Client

	mu  sync.Mutex
	uid string
}

type Option func(*Provider)

// WithFixedUID pins the uid, bypassing sign-in entirely.
func WithFixedUID(uid string) Option {
	return func(p *Provider) { p.fixedUID = strings.TrimSpace(uid) }
}

func NewProvider(authBaseURL string, opts ...Option) *Provider {
	p := &Provider{
		authBaseURL: strings.TrimRight(strings.TrimSpace(authBaseURL), "/"),
		http:        &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 4},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type anonSignInResponse struct {
	UID string `json:"uid"`
}

// SignIn establishes (or returns the already-established) uid for this
// process. Safe to call repeatedly; the uid is stable until SignOut.
func (p *Provider) SignIn(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.uid != "" {
		return p.uid, nil
	}
	if p.fixedUID != "" {
		p.uid = p.fixedUID
		return p.uid, nil
	}
	if p.authBaseURL != "" {
		uid, err := p.anonymousSignIn(ctx)
		if err != nil {
			return "", fmt.Errorf("anonymous sign-in: %w", err)
		}
		p.uid = uid
		return p.uid, nil
	}
	p.uid = uuid.NewString()
	return p.uid, nil
}

// UID returns the current uid, empty when signed out.
func (p *Provider) UID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uid
}

// SignOut drops the established identity. The next SignIn starts fresh.
func (p *Provider) SignOut() {
	p.mu.Lock()
	p.uid = ""
	p.mu.Unlock()
}

const signInAttempts = 3

func (p *Provider) anonymousSignIn(ctx context.Context) (string, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(p.authBaseURL + "/v1/anonymous")
	req.Header.SetContentType("application/json")

	var lastErr error
	for attempt := 1; attempt <= signInAttempts; attempt++ {
		deadline := time.Now().Add(10 * time.Second)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		if err := p.http.DoDeadline(req, resp, deadline); err != nil {
			lastErr = err
		} else if resp.StatusCode() != fasthttp.StatusOK {
			lastErr = fmt.Errorf("auth status %d", resp.StatusCode())
		} else {
			var out anonSignInResponse
			if err := json.Unmarshal(resp.Body(), &out); err != nil {
				return "", fmt.Errorf("decode auth response: %w", err)
			}
			if strings.TrimSpace(out.UID) == "" {
				return "", fmt.Errorf("auth response missing uid")
			}
			return out.UID, nil
		}
		if attempt < signInAttempts {
			if err := sleepWithContext(ctx, time.Duration(attempt)*500*time.Millisecond); err != nil {
				return "", err
			}
		}
	}
	return "", lastErr
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
