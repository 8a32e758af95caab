package domain

import "errors"

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrWalletNotConnected = errors.New("wallet not connected")
	ErrEmptyPairingURI    = errors.New("pairing uri is empty")
	ErrPairingInFlight    = errors.New("pairing uri generation already in flight")
	ErrPairingCleared     = errors.New("pairing uri cleared before generation finished")
	ErrUserCancelled      = errors.New("user cancelled wallet connection")
	ErrEmptyRequestHash   = errors.New("submission returned an empty request hash")
	ErrOperationFailed    = errors.New("operation failed on ledger")
	ErrAttemptSuperseded  = errors.New("attempt superseded by a newer submission with the same hash")
	ErrCoordinatorClosed  = errors.New("coordinator closed")
	ErrCredentialNotFound = errors.New("credential not found")
)
