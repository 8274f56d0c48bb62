package utils

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// NowAsUnixMilli returns current time in ms, the unit of chunk timestamps
func NowAsUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// EnsurePath is used to make sure a path exists
func EnsurePath(path string, dir bool) error {
	if !dir {
		path = filepath.Dir(path)
	}
	return os.MkdirAll(path, 0755)
}

// SplitList splits a comma separated flag value, dropping blank items.
// An empty value gives nil.
func SplitList(s string) []string {
	var res []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			res = append(res, item)
		}
	}
	return res
}
