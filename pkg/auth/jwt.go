// Copyright 2025 The RAGSEARCH Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// TokenIssuer signs and validates the HS256 access tokens handed out at
// login. The secret is shared with nothing; tokens are both issued and
// checked here.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates a token issuer. ttl bounds the token lifetime and
// must be positive.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %v", ttl)
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}, nil
}

// Issue signs a token carrying the given claims, expiring after the
// configured ttl.
func (t *TokenIssuer) Issue(claims *Claims) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(t.ttl)

	tok, err := jwt.NewBuilder().
		IssuedAt(now).
		Expiration(exp).
		Claim("user_id", claims.UserID).
		Claim("username", claims.Username).
		Claim("is_admin", claims.IsAdmin).
		Build()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, t.secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return string(signed), exp, nil
}

// Validate checks the signature and expiry of a token and returns its
// claims. Expired tokens are reported as ErrTokenExpired, everything else
// as ErrInvalidToken.
func (t *TokenIssuer) Validate(tokenString string) (*Claims, error) {
	tok, err := jwt.Parse([]byte(tokenString),
		jwt.WithKey(jwa.HS256, t.secret),
		jwt.WithValidate(true),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := &Claims{}

	if v, ok := tok.Get("user_id"); ok {
		switch id := v.(type) {
		case float64:
			claims.UserID = int(id)
		case int64:
			claims.UserID = int(id)
		case int:
			claims.UserID = id
		}
	}
	if v, ok := tok.Get("username"); ok {
		if s, ok := v.(string); ok {
			claims.Username = s
		}
	}
	if v, ok := tok.Get("is_admin"); ok {
		if b, ok := v.(bool); ok {
			claims.IsAdmin = b
		}
	}

	if claims.UserID == 0 || claims.Username == "" {
		return nil, fmt.Errorf("%w: missing identity claims", ErrInvalidToken)
	}

	return claims, nil
}
