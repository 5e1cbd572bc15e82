package segment

import (
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// Check names a single validation rule.
type Check string

const (
	CheckFilePath  Check = "file_path"
	CheckStartTime Check = "start_time"
	CheckEndTime   Check = "end_time"
	CheckFile      Check = "file"
)

var checkOrder = []Check{CheckFilePath, CheckStartTime, CheckEndTime, CheckFile}

// Issue describes one failed check for one segment of a batch.
type Issue struct {
	Step    string `json:"step"`
	Index   int    `json:"index"`
	Check   Check  `json:"check"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Step == "" {
		return fmt.Sprintf("segment %d: %s", i.Index, i.Message)
	}
	return fmt.Sprintf("%s: segment %d: %s", i.Step, i.Index, i.Message)
}

// Result holds the surviving segments of a batch and every issue found.
type Result struct {
	Valid  []Segment `json:"valid"`
	Issues []Issue   `json:"issues,omitempty"`
}

// Cause names the check that most dropped segments failed first, or "" when
// nothing was dropped. Ties go to the check that runs earlier, so structural
// problems outrank a missing file.
func (r Result) Cause() Check {
	first := make(map[int]Check)
	for _, issue := range r.Issues {
		if _, seen := first[issue.Index]; !seen {
			first[issue.Index] = issue.Check
		}
	}
	counts := make(map[Check]int, len(checkOrder))
	for _, check := range first {
		counts[check]++
	}
	var cause Check
	for _, check := range checkOrder {
		if counts[check] > counts[cause] {
			cause = check
		}
	}
	return cause
}

// IssueStrings renders issues for logs and event payloads.
func (r Result) IssueStrings() []string {
	out := make([]string, 0, len(r.Issues))
	for _, issue := range r.Issues {
		out = append(out, issue.String())
	}
	return out
}

// StatFunc matches os.Stat.
type StatFunc func(name string) (fs.FileInfo, error)

// Validator checks segment batches. The zero value uses os.Stat.
type Validator struct {
	Stat StatFunc
}

// NewValidator returns a Validator backed by the local filesystem.
func NewValidator() *Validator {
	return &Validator{Stat: os.Stat}
}

// Validate checks each segment independently and returns the survivors in
// their original order. A segment with any failed check is dropped; all of its
// failed checks are still reported.
func (v *Validator) Validate(segs []Segment, stepLabel string) Result {
	result := Result{Valid: make([]Segment, 0, len(segs))}
	for idx, seg := range segs {
		issues := v.check(seg)
		if len(issues) == 0 {
			result.Valid = append(result.Valid, seg)
			continue
		}
		for _, issue := range issues {
			issue.Step = stepLabel
			issue.Index = idx
			result.Issues = append(result.Issues, issue)
		}
	}
	return result
}

func (v *Validator) check(seg Segment) []Issue {
	var issues []Issue

	path := strings.TrimSpace(seg.FilePath)
	pathUsable := true
	switch {
	case path == "":
		issues = append(issues, Issue{Check: CheckFilePath, Message: "filePath is missing"})
		pathUsable = false
	case isPlaceholder(path):
		issues = append(issues, Issue{Check: CheckFilePath, Message: fmt.Sprintf("filePath is the placeholder %q", path)})
		pathUsable = false
	}

	if !finite(seg.StartTime) || seg.StartTime < 0 {
		issues = append(issues, Issue{Check: CheckStartTime, Message: fmt.Sprintf("startTime %v must be >= 0", seg.StartTime)})
	}
	if !finite(seg.EndTime) || seg.EndTime <= seg.StartTime {
		issues = append(issues, Issue{Check: CheckEndTime, Message: fmt.Sprintf("endTime %v must be greater than startTime %v", seg.EndTime, seg.StartTime)})
	}

	if pathUsable && !IsRemote(path) {
		if msg := v.checkFile(path); msg != "" {
			issues = append(issues, Issue{Check: CheckFile, Message: msg})
		}
	}
	return issues
}

func (v *Validator) checkFile(path string) string {
	stat := v.Stat
	if stat == nil {
		stat = os.Stat
	}
	info, err := stat(path)
	if err != nil {
		return fmt.Sprintf("file %s is not accessible: %v", path, err)
	}
	if info.IsDir() {
		return fmt.Sprintf("file %s is a directory", path)
	}
	if info.Size() <= 0 {
		return fmt.Sprintf("file %s is empty", path)
	}
	return ""
}

func isPlaceholder(path string) bool {
	switch strings.ToLower(path) {
	case "undefined", "null":
		return true
	default:
		return false
	}
}

// IsRemote reports whether path refers to a URL rather than a local file.
func IsRemote(path string) bool {
	idx := strings.Index(path, "://")
	if idx <= 0 {
		return false
	}
	for _, r := range path[:idx] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.') {
			return false
		}
	}
	return true
}
