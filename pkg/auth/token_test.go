package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "storefront", ExpirationMinutes: 30}
}

func mint(t *testing.T, cfg config.JWTConfig, at time.Time, role enums.UserRole) string {
	t.Helper()
	token, err := MintAccessToken(cfg, at, AccessTokenPayload{UserID: uuid.New(), Role: role})
	require.NoError(t, err)
	return token
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()
	userID := uuid.New()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{UserID: userID, Role: enums.UserRoleAdmin, JTI: "jti-1"})
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)
	require.Equal(t, userID, claims.UserID)
	require.Equal(t, userID.String(), claims.Subject)
	require.Equal(t, "jti-1", claims.ID)
	require.True(t, claims.IsAdmin())
	require.WithinDuration(t, now.Add(30*time.Minute), claims.ExpiresAt.Time, time.Second)
}

func TestParseAccessTokenFailures(t *testing.T) {
	cfg := testJWTConfig()
	otherIssuer := cfg
	otherIssuer.Issuer = "someone-else"
	otherSecret := cfg
	otherSecret.Secret = "other"

	cases := []struct {
		name  string
		cfg   config.JWTConfig
		token string
		want  error
	}{
		{"tampered", cfg, mint(t, cfg, time.Now(), enums.UserRoleCustomer) + "x", ErrTokenInvalid},
		{"expired", cfg, mint(t, cfg, time.Now().Add(-2*time.Hour), enums.UserRoleCustomer), ErrTokenExpired},
		{"wrong issuer", otherIssuer, mint(t, cfg, time.Now(), enums.UserRoleCustomer), ErrTokenInvalid},
		{"wrong secret", otherSecret, mint(t, cfg, time.Now(), enums.UserRoleCustomer), ErrTokenInvalid},
		{"garbage", cfg, "not-a-jwt", ErrTokenInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseAccessToken(tc.cfg, tc.token)
			require.Error(t, err)
			require.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestParseAccessTokenToleratesClockSkew(t *testing.T) {
	cfg := testJWTConfig()
	// expired ten seconds ago, inside the skew allowance
	token := mint(t, cfg, time.Now().Add(-30*time.Minute-10*time.Second), enums.UserRoleCustomer)
	_, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)
}

func TestParseAccessTokenRejectsForeignAlgorithm(t *testing.T) {
	cfg := testJWTConfig()
	claims := &AccessTokenClaims{
		UserID: uuid.New(),
		Role:   enums.UserRoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestParseAccessTokenRejectsMissingIdentity(t *testing.T) {
	cfg := testJWTConfig()
	claims := &AccessTokenClaims{
		Role: enums.UserRoleCustomer,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestMintAccessTokenRejectsBadInput(t *testing.T) {
	cfg := testJWTConfig()
	_, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: "owner"})
	require.Error(t, err)

	_, err = MintAccessToken(cfg, time.Now(), AccessTokenPayload{Role: enums.UserRoleCustomer})
	require.Error(t, err)

	noTTL := cfg
	noTTL.ExpirationMinutes = 0
	_, err = MintAccessToken(noTTL, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleCustomer})
	require.Error(t, err)
}
