package model

import "context"

// Writer persists flow records to a store that a Searcher can later query.
type Writer interface {
	Write(ctx context.Context, records []FlowRecord) error
}
