package domain

import "errors"

// Error classes shared by adapters, the ledger and the cycle orchestrator.
// Callers wrap them with fmt.Errorf("...: %w", ErrX) and test with errors.Is.
var (
	// ErrTransient marks failures worth one more attempt: timeouts, rate limits,
	// network errors and 5xx responses.
	ErrTransient = errors.New("transient external failure")

	// ErrValidation marks malformed or out-of-range data (bad probability,
	// unparseable oracle reply). Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrLedgerCorruption is returned when durable ledger state cannot be loaded,
	// parsed, or does not reconcile with its journal. The agent refuses to start.
	ErrLedgerCorruption = errors.New("ledger corruption")

	// ErrInvariantViolation is returned when a committed mutation breaks a hard
	// invariant such as a negative bankroll. Fatal.
	ErrInvariantViolation = errors.New("ledger invariant violation")

	// ErrAgentDead is returned by ledger mutations attempted after death.
	ErrAgentDead = errors.New("agent is dead")

	// ErrAgentDied is returned by the scheduler when the ledger reaches DEAD.
	ErrAgentDied = errors.New("agent died: bankroll at or below death threshold")
)

// IsTransient reports whether err belongs to the transient class.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
