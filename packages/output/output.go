package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/hitflow/packages/core/runner"
)

// Formats lists the accepted --output values.
var Formats = []string{"console", "json", "junit"}

// NewReporter returns the reporter for format writing to w.
func NewReporter(format string, w io.Writer, verbose, noColor bool) (runner.Reporter, error) {
	switch strings.ToLower(format) {
	case "", "console":
		return NewConsoleFormatter(WithWriter(w), WithVerbose(verbose), WithNoColor(noColor)), nil
	case "json":
		return NewJSONFormatter(JSONWithWriter(w)), nil
	case "junit":
		return NewJUnitFormatter(JUnitWithWriter(w)), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (expected %s)", format, strings.Join(Formats, ", "))
	}
}

type fileGroup struct {
	file    string
	results []*runner.CallResult
}

// groupByFile keeps the run order of files and of calls within a file.
func groupByFile(s *runner.Summary) []fileGroup {
	index := make(map[string]int)
	var groups []fileGroup
	add := func(file string) int {
		if i, ok := index[file]; ok {
			return i
		}
		index[file] = len(groups)
		groups = append(groups, fileGroup{file: file})
		return len(groups) - 1
	}
	for _, file := range s.Files {
		add(file)
	}
	for _, r := range s.Results {
		i := add(r.File)
		groups[i].results = append(groups[i].results, r)
	}
	return groups
}

func describeInts(codes []int) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ", ")
}
