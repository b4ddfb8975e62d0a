// Package errors provides structured error types for the object bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type carries the slot name, serial number and type
// identifier involved, plus a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDispatch, errors.KindCallbackFault).
//		Slot("simulate-material").
//		Serial(7).
//		Detail("override returned nil").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.StaleHandle(errors.PhaseResolve, 7, "set name")
//	err := errors.RegistrationConflict(typeID, owner, claimant)
//
// Kind sentinels work with the standard errors.Is:
//
//	if errors.Is(err, bridgeerrors.ErrStaleHandle) { ... }
package errors
