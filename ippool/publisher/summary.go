package publisher

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"cfip_nexus/ippool/model"
)

// BuildSummary renders the notification text for a run.
func BuildSummary(res *model.RunResult, fileName string, outcomes []Outcome, now time.Time) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "❇️ CF IP harvest finished\n")
	fmt.Fprintf(&sb, "❇ Time: %s\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "❇ Run: %s (%s)\n", res.RunID, res.Duration.Round(time.Millisecond))
	fmt.Fprintf(&sb, "❇ File: %s, %d records, %s\n",
		fileName, len(res.Records), humanize.Bytes(uint64(len(res.Artifact))))

	sb.WriteString("Sources:\n")
	for _, rep := range res.Reports {
		if rep.Failed() {
			fmt.Fprintf(&sb, "  - %s [%s]: failed (%v)\n", rep.Name, rep.Kind, rep.Err)
			continue
		}
		fmt.Fprintf(&sb, "  - %s [%s]: %d fetched, %d kept\n", rep.Name, rep.Kind, rep.Fetched, rep.Kept)
	}

	if len(outcomes) > 0 {
		sb.WriteString("Targets:\n")
		for _, o := range outcomes {
			if o.Err != nil {
				fmt.Fprintf(&sb, "  - %s: failed (%v)\n", o.Name, o.Err)
			} else {
				fmt.Fprintf(&sb, "  - %s: ok\n", o.Name)
			}
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}
