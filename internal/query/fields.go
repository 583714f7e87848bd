package query

import (
	"fmt"
	"strconv"

	"FlowRadar/internal/model"
)

// numericValue returns the integer value of a numeric flow field.
func numericValue(r *model.FlowRecord, field string) (int64, error) {
	switch field {
	case model.FieldDstPort:
		return int64(r.DstPort), nil
	case model.FieldProtocol:
		return int64(r.Protocol), nil
	case model.FieldBytes:
		return int64(r.Bytes), nil
	case model.FieldPackets:
		return int64(r.Packets), nil
	case model.FieldStartTime:
		return r.StartMillis, nil
	}
	return 0, fmt.Errorf("field %s is not numeric", field)
}

// keywordValue returns the term value of any flow field.
func keywordValue(r *model.FlowRecord, field string) (string, error) {
	switch field {
	case model.FieldSrcAddr:
		return r.SrcAddr, nil
	case model.FieldDstAddr:
		return r.DstAddr, nil
	}
	v, err := numericValue(r, field)
	if err != nil {
		return "", fmt.Errorf("unknown flow field: %s", field)
	}
	return strconv.FormatInt(v, 10), nil
}

func isFlowField(field string) bool {
	for _, f := range model.FlowFields {
		if f == field {
			return true
		}
	}
	return false
}
