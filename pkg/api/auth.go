package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"packwire/pkg/auth"
	"packwire/pkg/model"
)

const tokenTTL = 24 * time.Hour

// AuthHandler serves admin account registration and login. Registration
// is open for the first account only; a private game server has no
// self-service signup.
type AuthHandler struct {
	DB *gorm.DB
}

func (a *AuthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/auth/register", a.handleRegister)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// readCredentials decodes and normalizes a login/register body, or
// replies 400 and reports false.
func readCredentials(w http.ResponseWriter, r *http.Request) (credentials, bool) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return c, false
	}
	c.Username = strings.TrimSpace(c.Username)
	if c.Username == "" || c.Password == "" || len(c.Username) > 64 {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return c, false
	}
	return c, true
}

func (a *AuthHandler) issueToken(w http.ResponseWriter, user model.User) {
	token, err := auth.Generate(user.ID, user.Username, tokenTTL)
	if err != nil {
		log.Errorf("sign token for %s: %v", user.Username, err)
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (a *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	creds, ok := readCredentials(w, r)
	if !ok {
		return
	}
	var count int64
	if err := a.DB.Model(&model.User{}).Count(&count).Error; err != nil {
		http.Error(w, "account database unavailable", http.StatusInternalServerError)
		return
	}
	if count > 0 {
		http.Error(w, "registration closed", http.StatusForbidden)
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "failed to create user", http.StatusInternalServerError)
		return
	}
	user := model.User{Username: creds.Username, PasswordHash: string(hash), IsAdmin: true}
	if err := a.DB.Create(&user).Error; err != nil {
		http.Error(w, "failed to create user", http.StatusInternalServerError)
		return
	}
	log.Noticef("admin account %q created", user.Username)
	a.issueToken(w, user)
}

func (a *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	creds, ok := readCredentials(w, r)
	if !ok {
		return
	}
	var user model.User
	err := a.DB.Where("username = ?", creds.Username).First(&user).Error
	if err == nil {
		err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password))
	}
	if err != nil {
		// Same answer for unknown user and wrong password.
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	a.issueToken(w, user)
}

// AuthMiddleware wraps a handler with bearer-token validation. With
// requireJWT false it passes requests through, which keeps local
// development and tests free of token plumbing.
func AuthMiddleware(next func(http.ResponseWriter, *http.Request), requireJWT bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if requireJWT {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if _, err := auth.Parse(token); err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}
