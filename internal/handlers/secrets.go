package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/idropr/core/internal/repository"
	"github.com/idropr/core/internal/secretcodec"
)

type secretRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	APIKey      *string `json:"api_key,omitempty"`
	APISecret   *string `json:"api_secret,omitempty"`
}

type secretResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// encryptField seals plaintext under the master password, returning nil
// when plaintext is nil (the field was omitted). A failure is reported to
// the secrets_crypto_failures_total{operation="encrypt"} counter.
func (h *Handlers) encryptField(plaintext *string) ([]byte, error) {
	if plaintext == nil {
		return nil, nil
	}
	ciphertext, err := secretcodec.Encrypt(h.masterPassword, *plaintext)
	if err != nil && h.metrics != nil {
		h.metrics.IncSecretsCryptoFailure("encrypt")
	}
	return ciphertext, err
}

// handleCreateSecret creates a new API secret. SysAdmin-only; enforced by
// RouteLock before this handler runs.
func (h *Handlers) handleCreateSecret(w http.ResponseWriter, r *http.Request) {
	var req secretRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONDecodeError(w, err)
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	apiKey, err := h.encryptField(req.APIKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encryption failed")
		return
	}
	apiSecret, err := h.encryptField(req.APISecret)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encryption failed")
		return
	}

	created, err := h.db.CreateSecret(r.Context(), repository.Secret{
		Name:        req.Name,
		Description: req.Description,
		APIKey:      apiKey,
		APISecret:   apiSecret,
	})
	switch {
	case errors.Is(err, repository.ErrNameTaken):
		writeError(w, http.StatusBadRequest, "name already in use")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusCreated, "ok", secretResponse{
		ID: created.ID, Name: created.Name, Description: created.Description,
	})
}

func secretIDFromPath(r *http.Request) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(r.PathValue("id")), 10, 64)
}

// handleGetSecret returns non-sensitive metadata for a secret by ID. The
// encrypted api_key/api_secret blobs are never returned to a client.
func (h *Handlers) handleGetSecret(w http.ResponseWriter, r *http.Request) {
	id, err := secretIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be an integer")
		return
	}

	secret, err := h.db.GetSecret(r.Context(), id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "secret not found")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, "ok", secretResponse{
		ID: secret.ID, Name: secret.Name, Description: secret.Description,
	})
}

// handleUpdateSecret updates a secret's name, description, and any
// provided credential fields; omitted credential fields keep their
// existing stored ciphertext unchanged.
func (h *Handlers) handleUpdateSecret(w http.ResponseWriter, r *http.Request) {
	id, err := secretIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be an integer")
		return
	}

	existing, err := h.db.GetSecret(r.Context(), id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "secret not found")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	var req secretRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONDecodeError(w, err)
		return
	}

	apiKey := existing.APIKey
	if req.APIKey != nil {
		apiKey, err = h.encryptField(req.APIKey)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "encryption failed")
			return
		}
	}
	apiSecret := existing.APISecret
	if req.APISecret != nil {
		apiSecret, err = h.encryptField(req.APISecret)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "encryption failed")
			return
		}
	}

	name := existing.Name
	if strings.TrimSpace(req.Name) != "" {
		name = req.Name
	}
	description := req.Description
	if description == "" {
		description = existing.Description
	}

	updated, err := h.db.UpdateSecret(r.Context(), repository.Secret{
		ID: id, Name: name, Description: description, APIKey: apiKey, APISecret: apiSecret,
	})
	switch {
	case errors.Is(err, repository.ErrNameTaken):
		writeError(w, http.StatusBadRequest, "name already in use")
		return
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "secret not found")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, "ok", secretResponse{
		ID: updated.ID, Name: updated.Name, Description: updated.Description,
	})
}

// handleDeleteSecret removes a secret by ID.
func (h *Handlers) handleDeleteSecret(w http.ResponseWriter, r *http.Request) {
	id, err := secretIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be an integer")
		return
	}

	if err := h.db.DeleteSecret(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "secret not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	writeJSON(w, http.StatusOK, "ok", nil)
}
