package auth

import (
	"errors"
	"testing"
	"time"
)

func TestVerifyRoundTrip(t *testing.T) {
	token, err := NewParticipantToken("secret", "alice", "Alice", "camp-1", time.Hour)
	if err != nil {
		t.Fatalf("NewParticipantToken() error = %v", err)
	}

	claims, err := NewVerifier("secret").Verify(token, "camp-1")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.UserID != "alice" {
		t.Errorf("claims.UserID = %q, want alice", claims.UserID)
	}
	if claims.UserName != "Alice" {
		t.Errorf("claims.UserName = %q, want Alice", claims.UserName)
	}
	if claims.CampaignID != "camp-1" {
		t.Errorf("claims.CampaignID = %q, want camp-1", claims.CampaignID)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewParticipantToken("secret", "alice", "Alice", "camp-1", time.Hour)
	if err != nil {
		t.Fatalf("NewParticipantToken() error = %v", err)
	}

	if _, err := NewVerifier("other-secret").Verify(token, "camp-1"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsWrongCampaign(t *testing.T) {
	token, err := NewParticipantToken("secret", "alice", "Alice", "camp-1", time.Hour)
	if err != nil {
		t.Fatalf("NewParticipantToken() error = %v", err)
	}

	if _, err := NewVerifier("secret").Verify(token, "camp-2"); !errors.Is(err, ErrWrongCampaign) {
		t.Errorf("Verify() error = %v, want ErrWrongCampaign", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	token, err := NewParticipantToken("secret", "alice", "Alice", "camp-1", -time.Minute)
	if err != nil {
		t.Fatalf("NewParticipantToken() error = %v", err)
	}

	if _, err := NewVerifier("secret").Verify(token, "camp-1"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
	}
}
