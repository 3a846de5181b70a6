package analysis

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreachable indicates the request never got an answer (network, timeout).
	ErrUnreachable = errors.New("backend unreachable")
	// ErrNotFound indicates no cached analysis matches the project name.
	ErrNotFound = errors.New("analysis not found")
)

// BackendError is a failure reported by the backend itself: a non-2xx
// status or an explicit error field in an otherwise well-formed answer.
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("Erreur serveur (%d)", e.Status)
}

// ValidationError is raised before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

const (
	unreachableMessage = "Impossible de se connecter au serveur backend. Vérifiez que le backend est démarré."
	fallbackMessage    = "Erreur de connexion au serveur"
)

// Message converts any failure into the text shown to the user.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	var berr *BackendError
	if errors.As(err, &berr) {
		return berr.Error()
	}
	if errors.Is(err, ErrUnreachable) {
		return unreachableMessage
	}
	if errors.Is(err, ErrNotFound) {
		return "Analyse introuvable"
	}
	return fallbackMessage
}
