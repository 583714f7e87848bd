package transport

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"FlowRadar/internal/config"
	"FlowRadar/internal/model"
	"FlowRadar/internal/report"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type recordingDriver struct {
	initErr error
	keys    [][]byte
	sent    [][]byte
	closed  bool
}

func (d *recordingDriver) Init(config.PublishConfig) error { return d.initErr }

func (d *recordingDriver) Send(key, data []byte) error {
	d.keys = append(d.keys, key)
	d.sent = append(d.sent, data)
	return nil
}

func (d *recordingDriver) Close() error {
	d.closed = true
	return nil
}

func testReport() *report.Report {
	end := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &report.Report{
		GeneratedAt: end,
		Window:      model.LastWindow(end, time.Hour),
		Overview:    &report.Overview{TotalBytes: 4096, TotalPackets: 8, FlowCount: 2},
		ScanSources: []report.ScanSource{{Addr: "10.0.0.66", Flows: 150, Destinations: 60, AvgBytes: 5000, Bytes: 750000}},
	}
}

func TestOpen(t *testing.T) {
	d := &recordingDriver{}
	RegisterDriver("recording", func() Driver { return d })

	tr, err := Open(config.PublishConfig{Driver: "recording"})
	require.NoError(t, err)
	assert.Equal(t, "recording", tr.Name())
	assert.Contains(t, Drivers(), "recording")

	require.NoError(t, Publish(tr, testReport(), FormatJSON))
	require.NoError(t, tr.Close())

	require.Len(t, d.sent, 1)
	assert.Equal(t, "1709294400000", string(d.keys[0]))
	assert.True(t, d.closed)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(config.PublishConfig{Driver: "carrier-pigeon"})
	assert.ErrorIs(t, err, ErrTransport)
}

func TestOpen_InitError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	RegisterDriver("broken", func() Driver { return &recordingDriver{initErr: cause} })

	_, err := Open(config.PublishConfig{Driver: "broken"})
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, cause)
	assert.EqualError(t, err, "dial tcp: connection refused for broken transport")
}

func TestEncode_JSON(t *testing.T) {
	data, err := Encode(testReport(), FormatJSON)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, map[string]any{"total_bytes": 4096.0, "total_packets": 8.0, "flow_count": 2.0}, doc["overview"])
}

func TestEncode_Proto(t *testing.T) {
	data, err := Encode(testReport(), FormatProto)
	require.NoError(t, err)

	var st structpb.Struct
	require.NoError(t, proto.Unmarshal(data, &st))

	overview := st.Fields["overview"].GetStructValue()
	require.NotNil(t, overview)
	assert.Equal(t, 4096.0, overview.Fields["total_bytes"].GetNumberValue())

	scans := st.Fields["scan_sources"].GetListValue().GetValues()
	require.Len(t, scans, 1)
	assert.Equal(t, "10.0.0.66", scans[0].GetStructValue().Fields["addr"].GetStringValue())
}

func TestEncode_UnknownFormat(t *testing.T) {
	_, err := Encode(testReport(), "xml")
	assert.Error(t, err)
}
