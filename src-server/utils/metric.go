package utils

type Metric struct {
	DatabaseRead    chan float64
	DatabaseWrite   chan float64
	MessageDelivery chan float64
}

func NewMetric() *Metric {
	return &Metric{
		DatabaseRead:    make(chan float64, 16),
		DatabaseWrite:   make(chan float64, 16),
		MessageDelivery: make(chan float64, 16),
	}
}

// Record pushes a latency sample without ever blocking the caller; a full
// channel just drops the sample.
func Record(ch chan float64, v float64) {
	select {
	case ch <- v:
	default:
	}
}
