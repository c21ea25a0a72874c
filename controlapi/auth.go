// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package controlapi

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashToken returns the bcrypt hash to configure for token.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// bearerAuth rejects requests whose bearer token does not match hash.
func bearerAuth(hash string) func(http.Handler) http.Handler {
	hashBytes := []byte(hash)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="consolebridge"`)
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			if bcrypt.CompareHashAndPassword(hashBytes, []byte(token)) != nil {
				writeError(w, http.StatusForbidden, "invalid bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
