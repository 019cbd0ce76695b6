package alert

import "time"

// Kind classifies structured alerts produced by the execution core.
type Kind string

const (
	// KindPositionSafety fires when a filled position is found without live
	// protective orders.
	KindPositionSafety Kind = "POSITION_SAFETY"
	// KindBrokerFailure fires when the brokerage interface fails beyond the
	// retry ceiling.
	KindBrokerFailure Kind = "BROKER_FAILURE"
	// KindPDTViolation fires when a sell is blocked or warned for pattern
	// day trading.
	KindPDTViolation Kind = "PDT_VIOLATION"
	// KindLiquidationExhausted is the fatal, human-actionable escalation:
	// emergency liquidation retries ran out with the position still open.
	KindLiquidationExhausted Kind = "LIQUIDATION_EXHAUSTED"
	// KindPoorFill flags a reconciled execution with a poor quality tier.
	KindPoorFill Kind = "POOR_FILL"
	// KindGapRisk reports an extended-hours price gap on an open position.
	KindGapRisk Kind = "GAP_RISK"
)

// Severity orders alerts for delivery collaborators.
type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
	SeverityFatal    Severity = "FATAL"
)

// Alert is one structured event for the delivery collaborator. The transport
// (console, email) is entirely the sink's concern.
type Alert struct {
	Kind      Kind
	Severity  Severity
	Symbol    string
	Issue     string // human-readable problem description
	Action    string // what the core did about it
	Timestamp time.Time
}
