package ports

import "github.com/bnema/walletsync/internal/domain"

// OperationNotifier receives user-facing feedback. Each method fires at most once per attempt.
type OperationNotifier interface {
	OperationConfirmed(op domain.Operation)
	OperationFailed(op domain.Operation, err error)
}

type IdentitySource interface {
	Identity() (domain.WalletIdentity, bool)
}
