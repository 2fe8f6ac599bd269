package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken  = errors.New("invalid participant token")
	ErrWrongCampaign = errors.New("token not valid for this campaign")
)

// ParticipantClaims are the claims minted by the campaign API when a user
// opens a live session. The relay only verifies them; it never issues them
// outside of tests and tooling.
type ParticipantClaims struct {
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name"`
	CampaignID string `json:"campaign_id"`
	jwt.RegisteredClaims
}

// Verifier checks participant tokens presented at room join.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses the token and checks it was minted for campaignID.
func (v *Verifier) Verify(tokenString, campaignID string) (*ParticipantClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ParticipantClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*ParticipantClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.CampaignID != campaignID {
		return nil, ErrWrongCampaign
	}
	return claims, nil
}

// NewParticipantToken mints a signed participant token. Used by the client
// tooling and tests; in production the campaign API holds the secret.
func NewParticipantToken(secret, userID, userName, campaignID string, ttl time.Duration) (string, error) {
	claims := ParticipantClaims{
		UserID:     userID,
		UserName:   userName,
		CampaignID: campaignID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
