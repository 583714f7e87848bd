package transport

import (
	"encoding/json"
	"fmt"
	"strconv"

	"FlowRadar/internal/model"
	"FlowRadar/internal/report"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Payload formats.
const (
	FormatJSON  = "json"
	FormatProto = "proto"
)

// Encode serializes a report. The proto format is a google.protobuf.Struct
// carrying the same fields as the JSON document.
func Encode(rep *report.Report, format string) ([]byte, error) {
	data, err := json.Marshal(rep)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}

	switch format {
	case FormatJSON, "":
		return data, nil
	case FormatProto:
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode report document: %w", err)
		}
		st, err := structpb.NewStruct(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to convert report to protobuf: %w", err)
		}
		out, err := proto.Marshal(st)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal protobuf report: %w", err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown payload format: '%s'", format)
}

// Key returns the message key of a report: its window end in epoch milliseconds.
func Key(rep *report.Report) []byte {
	return []byte(strconv.FormatInt(rep.Window.End, 10))
}

// Publish encodes rep and sends it through p.
func Publish(p model.Publisher, rep *report.Report, format string) error {
	data, err := Encode(rep, format)
	if err != nil {
		return err
	}
	return p.Send(Key(rep), data)
}
