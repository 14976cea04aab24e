package report

import (
	"encoding/json"
	"io"

	"github.com/Iron-Ham/atkrun/internal/model"
)

// Record types written by JSONL and MQTT.
const (
	RecordResult  = "result"
	RecordSummary = "summary"
)

// ResultRecord is the wire form of one result.
type ResultRecord struct {
	Type  string `json:"type"`
	RunID string `json:"runId,omitempty"`
	State string `json:"state"`
	model.ExecutionResult
}

// SummaryRecord is the wire form of a finished batch. Results are omitted;
// they were already emitted one by one.
type SummaryRecord struct {
	Type   string `json:"type"`
	RunID  string `json:"runId"`
	OK     bool   `json:"ok"`
	Total  int    `json:"total"`
	Failed int    `json:"failed"`
}

func newResultRecord(runID string, res model.ExecutionResult) ResultRecord {
	if res.Events == nil {
		res.Events = model.EventLog{}
	}
	return ResultRecord{
		Type:            RecordResult,
		RunID:           runID,
		State:           res.State(),
		ExecutionResult: res,
	}
}

func newSummaryRecord(batch model.BatchResult) SummaryRecord {
	return SummaryRecord{
		Type:   RecordSummary,
		RunID:  batch.RunID,
		OK:     batch.OK,
		Total:  len(batch.Results),
		Failed: len(batch.Failed()),
	}
}

// JSONL writes one JSON object per line: a "result" record for each result
// and a final "summary" record.
type JSONL struct {
	enc   *json.Encoder
	runID string
}

// NewJSONL creates a JSONL sink. runID is stamped on result records; it may
// be empty when the caller does not know it up front.
func NewJSONL(w io.Writer, runID string) *JSONL {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONL{enc: enc, runID: runID}
}

// Result writes a result record.
func (j *JSONL) Result(res model.ExecutionResult) error {
	if err := j.enc.Encode(newResultRecord(j.runID, res)); err != nil {
		return sinkError("jsonl", "result", err)
	}
	return nil
}

// Summary writes the summary record.
func (j *JSONL) Summary(batch model.BatchResult) error {
	if err := j.enc.Encode(newSummaryRecord(batch)); err != nil {
		return sinkError("jsonl", "summary", err)
	}
	return nil
}

// Close is a no-op; the writer belongs to the caller.
func (j *JSONL) Close() error { return nil }
