package utils

import (
	"fmt"
	"runtime"
	"strings"
)

// projectMarkers are directory names after which a source path is trimmed
var projectMarkers = []string{"watch-party-sync", "watch-party"}

// GetFileAndLoC returns the file path and line of code with skip being the number of stack frames to skip
func GetFileAndLoC(skip int) string {
	_, filepath, line, ok := runtime.Caller(1 + skip)
	if !ok {
		return "unknown:0"
	}

	return fmt.Sprintf(
		"%s:%d",
		trimPath(filepath),
		line,
	)
}

// trimPath keeps the path after the project directory, or the last three elements otherwise
func trimPath(filepath string) string {
	for _, marker := range projectMarkers {
		if i := strings.LastIndex(filepath, marker+"/"); i != -1 {
			return filepath[i:]
		}
	}

	parts := strings.Split(filepath, "/")
	if len(parts) > 3 {
		parts = parts[len(parts)-3:]
	}
	return strings.Join(parts, "/")
}
