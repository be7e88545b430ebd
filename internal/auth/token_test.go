package auth

import (
	"testing"

	"github.com/spec-kit/support-desk/internal/domain"
)

func testUser() *domain.User {
	return &domain.User{
		ID:        42,
		CompanyID: 7,
		Role:      domain.RoleAgent,
		Name:      "ana",
		Email:     "ana@example.com",
	}
}

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret", 60)

	token, expiresAt, err := tm.GenerateToken(testUser())
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if expiresAt.IsZero() {
		t.Fatal("expected a future expiry")
	}

	claims, err := tm.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if claims.UserID != 42 {
		t.Errorf("uid = %d, want 42", claims.UserID)
	}
	if claims.CompanyID != 7 {
		t.Errorf("company_id = %d, want 7", claims.CompanyID)
	}
	if claims.Role != domain.RoleAgent {
		t.Errorf("role_id = %d, want %d", claims.Role, domain.RoleAgent)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	tm := NewTokenManager("test-secret", 60)
	token, _, err := tm.GenerateToken(testUser())
	if err != nil {
		t.Fatal(err)
	}

	other := NewTokenManager("different-secret", 60)
	if _, err := other.ParseToken(token); err == nil {
		t.Fatal("token signed with another secret must not validate")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	tm := NewTokenManager("test-secret", 60)
	if _, err := tm.ParseToken("not.a.token"); err == nil {
		t.Fatal("expected parse error")
	}
}
