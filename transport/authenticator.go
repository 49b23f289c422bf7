package transport

import (
	"context"
	"net/http"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/coopsys/sessionkit/credential"
	"github.com/coopsys/sessionkit/helper"
	log "github.com/coopsys/sessionkit/logger"
)

// Header names stamped onto every outgoing request.
const (
	HeaderAuthorization = "Authorization"
	HeaderOrgID         = "X-Org-ID"
	HeaderDeviceID      = "X-Device-ID"
	HeaderRequestID     = "X-Request-ID"
)

// CredentialSource is the read side of the credential store consumed
// by the authenticator.
type CredentialSource interface {
	Token(ctx context.Context) string
	Organization(ctx context.Context) *credential.Organization
}

// DeviceSource stamps requests with the installation's device id.
type DeviceSource interface {
	GetOrCreateDeviceID(ctx context.Context) (string, error)
}

// SessionResetFunc is invoked when the remote side says the session is
// no longer valid. The composition root wires it to clear all local
// credential state and replace the navigation stack with the login
// screen. It must be idempotent.
type SessionResetFunc func(ctx context.Context)

// Authenticator is an http.RoundTripper that attaches the bearer token
// and tenant context to every request, and treats a 401 as an
// authoritative session-invalid signal. A 401 is never retried: one is
// sufficient to force full re-authentication, and there is no
// token-refresh flow in this design.
type Authenticator struct {
	base    http.RoundTripper
	creds   CredentialSource
	devices DeviceSource
	onReset SessionResetFunc
	logger  log.Logger
}

// NewAuthenticator wraps base (a cleanhttp pooled transport when nil).
// devices may be nil for flows with no device registration.
func NewAuthenticator(base http.RoundTripper, creds CredentialSource, devices DeviceSource, onReset SessionResetFunc, logger log.Logger) *Authenticator {
	if base == nil {
		base = cleanhttp.DefaultPooledTransport()
	}
	return &Authenticator{
		base:    base,
		creds:   creds,
		devices: devices,
		onReset: onReset,
		logger:  logger,
	}
}

func (a *Authenticator) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	// RoundTrippers must not mutate the caller's request.
	req = req.Clone(ctx)

	if token := a.creds.Token(ctx); token != "" {
		req.Header.Set(HeaderAuthorization, "Bearer "+token)
	}
	if org := a.creds.Organization(ctx); org != nil {
		req.Header.Set(HeaderOrgID, org.ID)
	}
	if a.devices != nil {
		if deviceID, err := a.devices.GetOrCreateDeviceID(ctx); err == nil {
			req.Header.Set(HeaderDeviceID, deviceID)
		}
	}
	if req.Header.Get(HeaderRequestID) == "" {
		req.Header.Set(HeaderRequestID, helper.GenerateRequestID())
	}

	resp, err := a.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		a.logger.Warn("authorization rejected, forcing session reset",
			log.String("method", req.Method),
			log.String("path", req.URL.Path),
			log.String("request_id", req.Header.Get(HeaderRequestID)),
		)
		if a.onReset != nil {
			a.onReset(ctx)
		}
	}

	// Every status, 401 included, passes through to the caller.
	return resp, nil
}
