package security

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Driving-Capstone/DrivingCoach-BE/proto"
)

// MinSecretSize is the smallest HS256 key accepted, in bytes.
const MinSecretSize = 32

var (
	ErrWeakSecret   = fmt.Errorf("secret must be at least %d bytes", MinSecretSize)
	ErrMissingLogin = errors.New("token has no login id")
)

type accessClaims struct {
	UID  int64  `json:"uid"`
	LID  string `json:"lid,omitempty"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWT issues and validates HS256 access tokens. The login id is carried as
// the subject, the user id and role as the "uid" and "role" claims.
type JWT struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWT returns a JWT keyed by a base64 encoded secret.
func NewJWT(secret, issuer string, ttl time.Duration) (*JWT, error) {
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("jwt: secret: %w", err)
	}
	return NewJWTFromKey(key, issuer, ttl)
}

func NewJWTFromKey(key []byte, issuer string, ttl time.Duration) (*JWT, error) {
	if len(key) < MinSecretSize {
		return nil, fmt.Errorf("jwt: %w", ErrWeakSecret)
	}
	return &JWT{key: key, issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// SetClock replaces the time source used for issuing and expiry checks.
func (j *JWT) SetClock(now func() time.Time) { j.now = now }

// Issue returns a signed access token for the given user.
func (j *JWT) Issue(userID int64, loginID, role string) (string, error) {
	now := j.now()
	claims := &accessClaims{
		UID:  userID,
		LID:  loginID,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   loginID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.key)
	if err != nil {
		return "", fmt.Errorf("jwt: sign: %w", err)
	}
	return signed, nil
}

func (j *JWT) Validate(token string) bool {
	_, err := j.parse(token)
	return err == nil
}

func (j *JWT) Claims(token string) (*proto.Claims, error) {
	claims, err := j.parse(token)
	if err != nil {
		return nil, err
	}
	loginID := claims.Subject
	if loginID == "" {
		loginID = claims.LID
	}
	if loginID == "" {
		return nil, ErrMissingLogin
	}
	result := &proto.Claims{
		LoginID: loginID,
		UserID:  claims.UID,
		Role:    claims.Role,
	}
	if claims.ExpiresAt != nil {
		result.Expiry = claims.ExpiresAt.Time
	}
	return result, nil
}

func (j *JWT) parse(token string) (*accessClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return j.key, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}
	return claims, nil
}

func (j *JWT) String() string {
	return "jwt(HS256, issuer=" + strconv.Quote(j.issuer) + ")"
}
