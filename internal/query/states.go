package query

import (
	"go.uber.org/zap"

	"github.com/stockdesk/backend/internal/metrics"
	"github.com/stockdesk/backend/pkg/logger"
)

type State string

const (
	StateValidating          State = "validating"
	StateQuotaChecking       State = "quota_checking"
	StateBudgetChecking      State = "budget_checking"
	StateConversationLoading State = "conversation_loading"
	StateRouting             State = "routing"
	StateFactBuilding        State = "fact_building"
	StateCostEstimating      State = "cost_estimating"
	StateCalling             State = "calling"
	StatePersisting          State = "persisting"
	StateDone                State = "done"
	StateRejected            State = "rejected"
	StateFailed              State = "failed"
)

// rejectable lists the states a question may be turned away from before the model call.
var rejectable = map[State]bool{
	StateValidating:     true,
	StateQuotaChecking:  true,
	StateBudgetChecking: true,
	StateCostEstimating: true,
}

type run struct {
	id     string
	userID string
	state  State
	trail  []State
}

func (r *run) enter(s State) {
	r.state = s
	r.trail = append(r.trail, s)
	logger.Debug("Ask state", zap.String("ask_id", r.id), zap.String("state", string(s)))
	metrics.StateTransitions.WithLabelValues(string(s)).Inc()
}

// terminate moves to Rejected or Failed depending on where the run stopped.
func (r *run) terminate() State {
	final := StateFailed
	if rejectable[r.state] {
		final = StateRejected
	}
	r.enter(final)
	return final
}
