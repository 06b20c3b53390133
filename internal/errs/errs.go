// Package errs defines the typed error-code registry used across the
// orchestrator and worker, following the teacher's "<DOMAIN>_<NNNN>"
// sentinel-code convention.
package errs

import "fmt"

// Code is a stable, loggable error category. Codes are never renumbered
// once shipped; new categories get a new number in their domain block.
type Code string

const (
	// Configuration domain (CFG): fatal at startup.
	ErrCodeConfigInvalidRouting    Code = "CFG_1001"
	ErrCodeConfigNoProviders       Code = "CFG_1002"
	ErrCodeConfigBadCombination    Code = "CFG_1003"
	ErrCodeConfigInvalidLogLevel   Code = "CFG_1004"

	// Supervisor domain (SUP): worker process lifecycle.
	ErrCodeSupervisorSpawnFailed   Code = "SUP_2001"
	ErrCodeSupervisorRestartBudget Code = "SUP_2002"
	ErrCodeSupervisorDrainTimeout  Code = "SUP_2003"

	// Provider domain (PROV): transient and terminal provider failures.
	ErrCodeProviderRateLimited Code = "PROV_3100"
	ErrCodeProviderAuth        Code = "PROV_3101"
	ErrCodeProviderNetwork     Code = "PROV_3102"
	ErrCodeProviderServer      Code = "PROV_3103"
	ErrCodeProviderMalformed   Code = "PROV_3104"

	// Sink domain (SINK): filesystem output.
	ErrCodeSinkWriteFailed   Code = "SINK_4100"
	ErrCodeSinkOverflow      Code = "SINK_4101"
	ErrCodeSinkDirConflict   Code = "SINK_4102"

	// Orchestrator domain (ORCH): internal event-loop faults.
	ErrCodeOrchestratorPanic Code = "ORCH_5001"
	ErrCodeOrchestratorQueueFull Code = "ORCH_5002"

	// IPC domain (IPC): framing and protocol violations.
	ErrCodeIPCMalformedFrame  Code = "IPC_6001"
	ErrCodeIPCUnexpectedState Code = "IPC_6002"
)

// Error wraps an underlying error with a stable Code so shutdown summaries
// and logs can name the category, not just the message.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap annotates err with code. A nil err yields an untyped nil error
// (never a nil *Error inside a non-nil interface), so callers can write `return errs.Wrap(code, err)`
// unconditionally in an early-return chain without an extra nil check.
func Wrap(code Code, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Err: err}
}

// New creates an *Error from a code and a message, with no wrapped cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Err: fmt.Errorf("%s", msg)}
}
