package ports

import (
	"time"

	"github.com/bnema/walletsync/internal/domain"
)

type Metrics interface {
	OperationSubmitted()
	OperationTerminal(state domain.OperationState, elapsed time.Duration)
	DuplicateTerminalSuppressed()
	RefreshPublished(source domain.RefreshSource)
	SessionsObserved(known int, active bool)
	DisconnectAttempted(batch string, err error)
}

type NopMetrics struct{}

func (NopMetrics) OperationSubmitted() {}
func (NopMetrics) OperationTerminal(domain.OperationState, time.Duration) {}
func (NopMetrics) DuplicateTerminalSuppressed() {}
func (NopMetrics) RefreshPublished(domain.RefreshSource) {}
func (NopMetrics) SessionsObserved(int, bool) {}
func (NopMetrics) DisconnectAttempted(string, error) {}
