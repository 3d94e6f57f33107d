package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"geofyle/internal/config"
	"geofyle/internal/repository"
)

// Token is a signed device token.
type Token struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AuthService registers devices and issues and verifies their tokens.
type AuthService interface {
	Authenticate(ctx context.Context, deviceID string) (*Token, error)
	Verify(token string) (string, error)
}

type deviceClaims struct {
	DeviceID string `json:"deviceId"`
	jwt.RegisteredClaims
}

type authService struct {
	devices repository.DeviceRepository
	secret  []byte
	ttl     time.Duration
	opts    options
}

// NewAuthService constructs an AuthService signing HS256 tokens with cfg.JWTSecret.
func NewAuthService(devices repository.DeviceRepository, cfg config.AuthConfig, opts ...Option) AuthService {
	return &authService{
		devices: devices,
		secret:  []byte(cfg.JWTSecret),
		ttl:     cfg.TokenTTL,
		opts:    applyOptions(opts),
	}
}

func (s *authService) Authenticate(ctx context.Context, deviceID string) (*Token, error) {
	if deviceID == "" {
		return nil, ErrIDRequired
	}

	now := s.opts.now().UTC()
	if _, err := s.devices.Touch(ctx, deviceID, now); err != nil {
		s.opts.log.Error("register device failed", zap.String("device_id", deviceID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}

	exp := now.Add(s.ttl)
	claims := deviceClaims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Token{Token: signed, ExpiresAt: exp.Truncate(time.Second)}, nil
}

// Verify returns the device ID carried by a valid token.
func (s *authService) Verify(token string) (string, error) {
	if token == "" {
		return "", ErrUnauthorized
	}
	claims := &deviceClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.opts.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if claims.DeviceID == "" {
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, errors.New("token has no device id"))
	}
	return claims.DeviceID, nil
}
