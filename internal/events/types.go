package events

// Event enumerates high-level topics inside the execution core.
type Event string

const (
	EventPriceTick        Event = "price_tick"
	EventOrderSubmitted   Event = "order.submitted"
	EventOrderRejected    Event = "order.rejected"
	EventOrderFilled      Event = "order.filled"
	EventPositionChange   Event = "position_change"
	EventProtectionAlert  Event = "protection.alert"
	EventComplianceAlert  Event = "compliance.alert"
	EventGapRiskAlert     Event = "gap_risk.alert"
	EventFillQualityAlert Event = "fill_quality.alert"
)
