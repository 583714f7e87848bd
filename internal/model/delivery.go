package model

import "context"

// Notifier delivers a rendered anomaly summary to humans.
type Notifier interface {
	Send(subject, body string) error
}

// Analyzer turns an anomaly summary into a written assessment.
type Analyzer interface {
	AnalyzeTraffic(ctx context.Context, summary string) (string, error)
}

// Publisher ships an encoded report to a message bus.
type Publisher interface {
	Send(key, data []byte) error
	Close() error
}
