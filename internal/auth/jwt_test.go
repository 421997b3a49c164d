package auth

import (
	"testing"
	"time"
)

func TestGenerateAndValidateAccessToken(t *testing.T) {
	mgr := NewJWTManager("test-secret-key-123")
	token, err := mgr.GenerateAccessToken("analyst-42")
	if err != nil {
		t.Fatalf("generate access token: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	claims, err := mgr.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.AnalystID != "analyst-42" {
		t.Errorf("expected analyst_id=analyst-42, got %s", claims.AnalystID)
	}
	if claims.Subject != "analyst-42" {
		t.Errorf("expected subject=analyst-42, got %s", claims.Subject)
	}
}

func TestGenerateAndValidateRefreshToken(t *testing.T) {
	mgr := NewJWTManager("test-secret-key-123")
	token, err := mgr.GenerateRefreshToken("analyst-99")
	if err != nil {
		t.Fatalf("generate refresh token: %v", err)
	}

	if _, err := mgr.ValidateToken(token); err == nil {
		t.Error("refresh token must not pass as an access token")
	}
	claims, err := mgr.ValidateRefreshToken(token)
	if err != nil {
		t.Fatalf("validate refresh token: %v", err)
	}
	if claims.AnalystID != "analyst-99" {
		t.Errorf("expected analyst_id=analyst-99, got %s", claims.AnalystID)
	}
}

func TestGenerateTokenPair(t *testing.T) {
	mgr := NewJWTManager("test-secret-key-123")
	pair, err := mgr.GenerateTokenPair("analyst-7")
	if err != nil {
		t.Fatalf("generate token pair: %v", err)
	}
	if pair.AccessToken == "" {
		t.Error("expected non-empty access token")
	}
	if pair.RefreshToken == "" {
		t.Error("expected non-empty refresh token")
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Error("access and refresh tokens should be different")
	}
	if pair.ExpiresIn != 900 {
		t.Errorf("expected expires_in=900, got %d", pair.ExpiresIn)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	mgr1 := NewJWTManager("secret-one")
	mgr2 := NewJWTManager("secret-two")

	token, err := mgr1.GenerateAccessToken("analyst-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	_, err = mgr2.ValidateToken(token)
	if err == nil {
		t.Error("expected validation to fail with wrong secret")
	}
}

func TestValidateTokenGarbage(t *testing.T) {
	mgr := NewJWTManager("test-secret")
	_, err := mgr.ValidateToken("not-a-jwt")
	if err == nil {
		t.Error("expected error for garbage token")
	}
	_, err = mgr.ValidateToken("")
	if err == nil {
		t.Error("expected error for empty token")
	}
}

func TestExpiredToken(t *testing.T) {
	mgr := &JWTManager{
		secret:        []byte("test-secret"),
		accessExpiry:  -1 * time.Second,
		refreshExpiry: 7 * 24 * time.Hour,
	}
	token, err := mgr.GenerateAccessToken("analyst-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	_, err = mgr.ValidateToken(token)
	if err == nil {
		t.Error("expected error for expired token")
	}
}

func TestDifferentUsersGetDifferentTokens(t *testing.T) {
	mgr := NewJWTManager("test-secret")
	t1, _ := mgr.GenerateAccessToken("alice")
	t2, _ := mgr.GenerateAccessToken("bob")
	if t1 == t2 {
		t.Error("different analysts should get different tokens")
	}
}

func TestAccessTokenIsNotARefreshToken(t *testing.T) {
	mgr := NewJWTManager("test-secret")
	token, _ := mgr.GenerateAccessToken("alice")
	if _, err := mgr.ValidateRefreshToken(token); err == nil {
		t.Error("access token must not refresh")
	}
}

func TestWithAccessExpiry(t *testing.T) {
	base := NewJWTManager("test-secret")
	long := base.WithAccessExpiry(24 * time.Hour)

	pair, err := long.GenerateTokenPair("alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if pair.ExpiresIn != 86400 {
		t.Errorf("expected expires_in=86400, got %d", pair.ExpiresIn)
	}
	if base.accessExpiry != 15*time.Minute {
		t.Error("WithAccessExpiry must not modify the receiver")
	}
	if _, err := base.ValidateToken(pair.AccessToken); err != nil {
		t.Errorf("same secret should validate: %v", err)
	}
}
