package trace

// StepRecord captures a single step call.
type StepRecord struct {
	Time   float64 // communication point requested by the master
	Size   float64 // communication step size requested by the master
	Status string  // status returned to the master; ok and warning advance the run
	Reason string  // why the step was refused or ended the run; empty on success
}

// Direction of an exchange relative to the adapter.
type Direction string

const (
	Sent     Direction = "sent"
	Received Direction = "received"
)

// ExchangeRecord captures one vector sent to or received from the companion.
type ExchangeRecord struct {
	Direction Direction
	Time      float64
	Flag      int
	Values    []float64
}
