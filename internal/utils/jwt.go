package utils // package utils provides helpers for token creation, hashing and OTPs

import (
    "crypto/rand"
    "crypto/sha256"
    "encoding/hex"
    "errors"
    "fmt"
    "strconv"
    "time"

    "github.com/golang-jwt/jwt/v5"

    "github.com/graphuraprojects/agrirent/internal/model"
)

// AccessToken is a signed JWT together with its expiry.
type AccessToken struct {
    Token string
    Exp   time.Time
}

// RefreshToken is the raw opaque refresh token handed to the client.  Only
// its SHA‑256 hash is stored server side.
type RefreshToken struct {
    Raw string
    Exp time.Time
}

// Claims is what an access token asserts about its bearer.
type Claims struct {
    UserID uint64
    Role   model.Role
}

var ErrInvalidToken = errors.New("invalid token")

// NewAccessToken signs an HS256 JWT carrying sub (user id) and role.
func NewAccessToken(secret string, userID uint64, role model.Role, ttlMin int) (AccessToken, error) {
    now := time.Now().UTC()
    exp := now.Add(time.Duration(ttlMin) * time.Minute)
    claims := jwt.MapClaims{
        "sub":  strconv.FormatUint(userID, 10),
        "role": string(role),
        "exp":  exp.Unix(),
        "iat":  now.Unix(),
    }
    signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken validates raw and extracts its claims.  Only HMAC
// signatures are accepted.
func ParseAccessToken(secret, raw string) (Claims, error) {
    tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
        }
        return []byte(secret), nil
    })
    if err != nil || !tok.Valid {
        return Claims{}, ErrInvalidToken
    }
    mc, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return Claims{}, ErrInvalidToken
    }
    id, err := subjectID(mc["sub"])
    if err != nil {
        return Claims{}, ErrInvalidToken
    }
    role, _ := mc["role"].(string)
    if !model.Role(role).Valid() {
        return Claims{}, ErrInvalidToken
    }
    return Claims{UserID: id, Role: model.Role(role)}, nil
}

// subjectID accepts both the string form written by NewAccessToken and a
// numeric sub.
func subjectID(v interface{}) (uint64, error) {
    switch s := v.(type) {
    case string:
        return strconv.ParseUint(s, 10, 64)
    case float64:
        if s <= 0 {
            return 0, ErrInvalidToken
        }
        return uint64(s), nil
    }
    return 0, ErrInvalidToken
}

// NewRefreshToken returns a random 96-char hex token valid for ttlDays.
func NewRefreshToken(ttlDays int) (RefreshToken, error) {
    raw, err := randomHex(48)
    if err != nil {
        return RefreshToken{}, err
    }
    return RefreshToken{
        Raw: raw,
        Exp: time.Now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour),
    }, nil
}

// HashRefreshRaw returns the hex SHA‑256 of a raw refresh token.
func HashRefreshRaw(raw string) string {
    sum := sha256.Sum256([]byte(raw))
    return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
    buf := make([]byte, n)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}
