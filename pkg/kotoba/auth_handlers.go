package kotoba

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/kotoba-app/kotoba/pkg/models"
)

// generateToken creates a random session token.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (a *App) startSession(account *models.Account) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	a.sessionMu.Lock()
	a.sessions[token] = account
	a.sessionMu.Unlock()
	return token, nil
}

// handleRegister creates an account. Usernames are unique; passwords are
// stored as bcrypt hashes only.
func (a *App) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid form")
		return
	}
	username := r.FormValue("username")
	password := r.FormValue("password")
	if username == "" || password == "" {
		respondError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	ctx := r.Context()
	existing, err := a.store.GetAccount(ctx, username)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if existing != nil {
		respondError(w, http.StatusConflict, "username already taken")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	account := &models.Account{
		Username:     username,
		PasswordHash: string(hash),
	}
	if err := a.store.CreateAccount(ctx, account); err != nil {
		// Lost the race on the unique username index.
		respondError(w, http.StatusConflict, "username already taken")
		return
	}

	token, err := a.startSession(account)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	a.log.Info().Str("username", username).Msg("account registered")
	respondJSON(w, http.StatusCreated, map[string]string{
		"token":    token,
		"username": username,
	})
}

// handleLogin verifies credentials and opens a session. Unknown usernames
// and wrong passwords get the same response.
func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid form")
		return
	}
	username := r.FormValue("username")
	password := r.FormValue("password")
	if username == "" || password == "" {
		respondError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	account, err := a.store.GetAccount(r.Context(), username)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if account == nil {
		respondError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		respondError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	token, err := a.startSession(account)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"token":    token,
		"username": username,
	})
}
