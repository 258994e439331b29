package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Result is one analysed video inside a job, as returned by the remote
// analysis service. Sections are kept as raw JSON because their shape varies
// with the analysis pipeline version; the portal only passes them through.
type Result struct {
	ID              string          `json:"id"`
	URL             string          `json:"url,omitempty"`
	Status          string          `json:"status,omitempty"`
	VideoMetadata   json.RawMessage `json:"video_metadata,omitempty"`
	VideoAnalysis   json.RawMessage `json:"video_analysis,omitempty"`
	AudioAnalysis   json.RawMessage `json:"audio_analysis,omitempty"`
	OverallQuality  json.RawMessage `json:"overall_quality,omitempty"`
	Transcription   json.RawMessage `json:"transcription,omitempty"`
	Summarization   json.RawMessage `json:"summarization,omitempty"`
	Translation     json.RawMessage `json:"translation,omitempty"`
	Error           string          `json:"error,omitempty"`
	SubmittedByUser string          `json:"submitted_by_user_id,omitempty"`
	DealerID        string          `json:"dealer_id,omitempty"`
	CreatedAt       *time.Time      `json:"created_at,omitempty"`
}

// ResultList stores results as a JSON column.
type ResultList []Result

func (r ResultList) Value() (driver.Value, error) {
	if len(r) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r *ResultList) Scan(value interface{}) error {
	if value == nil {
		*r = ResultList{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for ResultList")
	}
	if len(data) == 0 {
		*r = ResultList{}
		return nil
	}
	return json.Unmarshal(data, r)
}
