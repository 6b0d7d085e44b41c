package cli

import (
	"errors"

	"github.com/aretw0/comfyctl/pkg/domain"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitInterrupted = 130
)

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case domain.IsCancelled(err):
		return ExitInterrupted
	default:
		return ExitFailure
	}
}

// Describe turns err into the one-line message shown to the user.
func Describe(err error) string {
	var se *domain.StatusError
	switch {
	case err == nil:
		return ""
	case domain.IsCancelled(err):
		return "interrupted"
	case errors.Is(err, domain.ErrConnectivity):
		return "cannot reach the server: " + err.Error()
	case errors.As(err, &se) && se.Code == 400 && errors.Is(err, domain.ErrSubmission):
		return "the server rejected the workflow: " + se.Body
	default:
		return err.Error()
	}
}
