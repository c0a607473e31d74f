package cache

import (
	"crypto/md5"
	"fmt"
	"strings"
)

// FileName converts a snapshot name into a safe file name.
func FileName(name string) string {
	// For very long names, use hash to avoid filesystem limits
	if len(name) > 200 {
		hash := md5.Sum([]byte(name))
		return fmt.Sprintf("hash_%x.json", hash)
	}

	unsafe := []string{"/", "\\", ":", "?", "&", "=", "#", "<", ">", "|", "*", "\"", " "}
	result := name
	for _, char := range unsafe {
		result = strings.ReplaceAll(result, char, "_")
	}

	return result + ".json"
}
