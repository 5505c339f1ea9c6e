// Package trace records what happened on one slave instance: the step calls
// it accepted or refused and the vectors it exchanged with the companion.
// This package has no dependencies on cosim/; it stores pure data types.
package trace

// TraceLevel controls the verbosity of instance tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelSteps captures every step call and its status.
	TraceLevelSteps TraceLevel = "steps"
	// TraceLevelExchanges additionally captures every socket exchange with its values.
	TraceLevelExchanges TraceLevel = "exchanges"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelSteps:     true,
	TraceLevelExchanges: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// InstanceTrace collects records for one instance.
// A nil *InstanceTrace records nothing.
type InstanceTrace struct {
	Level     TraceLevel
	Steps     []StepRecord
	Exchanges []ExchangeRecord
}

// NewInstanceTrace creates a trace for level, or nil when level disables tracing.
func NewInstanceTrace(level TraceLevel) *InstanceTrace {
	if level == TraceLevelNone || level == "" {
		return nil
	}
	return &InstanceTrace{
		Level:     level,
		Steps:     make([]StepRecord, 0),
		Exchanges: make([]ExchangeRecord, 0),
	}
}

// RecordStep appends a step record.
func (it *InstanceTrace) RecordStep(record StepRecord) {
	if it == nil {
		return
	}
	it.Steps = append(it.Steps, record)
}

// RecordExchange appends an exchange record when exchanges are traced.
func (it *InstanceTrace) RecordExchange(record ExchangeRecord) {
	if it == nil || it.Level != TraceLevelExchanges {
		return
	}
	record.Values = append([]float64(nil), record.Values...)
	it.Exchanges = append(it.Exchanges, record)
}
