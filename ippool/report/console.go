// Package report prints a finished run for humans.
package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"cfip_nexus/ippool/model"
	"cfip_nexus/ippool/speed"
)

// Print writes the ranking table followed by the per-source breakdown.
func Print(w io.Writer, res *model.RunResult) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"排名", "IP地址", "地区", "速度", "KB/s", "来源"})
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetRowLine(false)
	table.SetColumnSeparator(" ")

	for i, r := range res.Records {
		kbps := "-"
		if r.Speed != "" {
			kbps = strconv.FormatFloat(speed.Normalize(r.Speed), 'f', 1, 64)
		}
		sp := r.Speed
		if sp == "" {
			sp = "-"
		}
		table.Append([]string{
			strconv.Itoa(i + 1),
			r.Address,
			r.CountryCode,
			sp,
			kbps,
			r.Source,
		})
	}
	table.SetFooter([]string{"", "", "", "", "总计", strconv.Itoa(len(res.Records))})
	table.Render()

	fmt.Fprintln(w)
	for _, rep := range res.Reports {
		status := fmt.Sprintf("%d fetched, %d kept", rep.Fetched, rep.Kept)
		if rep.Failed() {
			status = "failed: " + rep.Err.Error()
		}
		fmt.Fprintf(w, "%-24s %-10s %s (%s)\n", rep.Name, rep.Kind, status, rep.Duration.Round(time.Millisecond))
	}
	fmt.Fprintf(w, "run %s: %s\n", res.RunID, res.Status)
}
