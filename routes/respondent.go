package routes

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/dtlabs/stepform/survey"
)

// Respondents are anonymous: the first call to the response endpoint mints a
// signed token carrying a random id, and the browser plays it back on every
// later call. Same token, same response row.
const (
	respondentCookie = "respondent_token"
	respondentHeader = "X-Respondent-Token"

	respondentTokenTTL = 365 * 24 * time.Hour
)

func mintRespondentToken(secret string) (id, token string, err error) {
	id = survey.NewID()

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(respondentTokenTTL)),
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	return
}

func parseRespondentToken(secret, token string) (id string, err error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}

	id, err = parsed.Claims.GetSubject()
	if err == nil && id == "" {
		err = errors.New("empty subject")
	}
	return
}

// respondentID resolves the caller's identity from the header or, failing
// that, the cookie. An invalid token counts as absent.
func respondentID(r *http.Request, secret string) (string, bool) {
	if token := r.Header.Get(respondentHeader); token != "" {
		if id, err := parseRespondentToken(secret, token); err == nil {
			return id, true
		}
	}
	if cookie, err := r.Cookie(respondentCookie); err == nil {
		if id, err := parseRespondentToken(secret, cookie.Value); err == nil {
			return id, true
		}
	}
	return "", false
}

func setRespondentCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Path:     "/",
		Name:     respondentCookie,
		Value:    token,
		MaxAge:   int(respondentTokenTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
