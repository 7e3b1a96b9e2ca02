package backend

import (
	"context"
	"net/url"
	"strings"

	"github.com/Driving-Capstone/DrivingCoach-BE/proto"
	"github.com/Driving-Capstone/DrivingCoach-BE/proto/logging"
)

const (
	tokenParam   = "token"
	bearerPrefix = "Bearer "
)

// An Authenticator resolves the credential presented with a handshake into
// an Identity.
type Authenticator struct {
	validator proto.TokenValidator
}

func NewAuthenticator(validator proto.TokenValidator) *Authenticator {
	return &Authenticator{validator: validator}
}

// Identify returns the identity named by the token in rawQuery. It never
// fails: a missing or unacceptable credential yields the anonymous identity.
func (a *Authenticator) Identify(ctx context.Context, rawQuery string) proto.Identity {
	identity, err := a.authenticate(rawQuery)
	if err != nil {
		logging.Logger(ctx).Debug().Err(err).Msg("connection degraded to anonymous")
		return proto.Anonymous()
	}
	return identity
}

// authenticate tries every token parameter in order and accepts the first
// that validates. When none does, the last failure is reported.
func (a *Authenticator) authenticate(rawQuery string) (proto.Identity, error) {
	if rawQuery == "" {
		return proto.Identity{}, &proto.AuthFailure{Reason: "no query"}
	}

	var failure error = &proto.AuthFailure{Reason: "no token"}
	for _, raw := range queryValues(rawQuery, tokenParam) {
		if raw == "" {
			continue
		}
		identity, err := a.queryToken(raw)
		if err == nil {
			return identity, nil
		}
		failure = err
	}
	return proto.Identity{}, failure
}

func (a *Authenticator) queryToken(raw string) (proto.Identity, error) {
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return proto.Identity{}, &proto.AuthFailure{Reason: "decode", Err: err}
	}
	return a.identityFromToken(strings.TrimPrefix(decoded, bearerPrefix))
}

// Bearer resolves an Authorization header value. Unlike Identify it reports
// failures, so HTTP handlers can refuse anonymous callers.
func (a *Authenticator) Bearer(header string) (proto.Identity, error) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return proto.Identity{}, &proto.AuthFailure{Reason: "no bearer token"}
	}
	return a.identityFromToken(strings.TrimSpace(header[len(bearerPrefix):]))
}

func (a *Authenticator) identityFromToken(token string) (proto.Identity, error) {
	if a.validator == nil {
		return proto.Identity{}, &proto.AuthFailure{Reason: "no validator"}
	}
	if token == "" {
		return proto.Identity{}, &proto.AuthFailure{Reason: "empty token"}
	}
	if !a.validator.Validate(token) {
		return proto.Identity{}, &proto.AuthFailure{Reason: "invalid token"}
	}

	claims, err := a.validator.Claims(token)
	if err != nil {
		return proto.Identity{}, &proto.AuthFailure{Reason: "claims", Err: err}
	}
	if claims.LoginID == "" {
		return proto.Identity{}, &proto.AuthFailure{Reason: "no login id"}
	}
	return proto.NewIdentity(claims.UserID, claims.LoginID), nil
}

// queryValues returns the values of key in rawQuery without decoding them,
// so that a malformed sibling parameter cannot hide the token.
func queryValues(rawQuery, key string) []string {
	var values []string
	for _, pair := range strings.Split(rawQuery, "&") {
		name, value, _ := strings.Cut(pair, "=")
		if name == key {
			values = append(values, value)
		}
	}
	return values
}
