package logs

import (
	"encoding/json"
	"strings"

	"reelforge/internal/logging"
)

// belongsTo reports whether a log line was written for jobID. JSON records
// match on their job_id field, console lines on a job_id=<id> attribute.
func belongsTo(line, jobID string) bool {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "{") {
		var record struct {
			JobID string `json:"job_id"`
		}
		if err := json.Unmarshal([]byte(trimmed), &record); err == nil {
			return record.JobID == jobID
		}
	}
	want := logging.FieldJobID + "=" + jobID
	for _, field := range strings.Fields(trimmed) {
		if strings.TrimSuffix(field, ",") == want {
			return true
		}
	}
	return false
}
