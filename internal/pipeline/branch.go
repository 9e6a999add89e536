package pipeline

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"
)

// BranchName returns agent/issue-<n>/<hash> where hash is the first seven hex
// digits of sha1(path + summary + timestamp). The timestamp makes repeated
// requests for the same change land on distinct branches.
func BranchName(issueNumber int, path, summary string, now time.Time) string {
	ts := now.UTC().Format("20060102150405")
	sum := sha1.Sum([]byte(path + summary + ts))
	return fmt.Sprintf("agent/issue-%d/%s", issueNumber, hex.EncodeToString(sum[:])[:7])
}
