package main

import (
	"context"
	"fmt"
	"time"

	detectionpipeline "github.com/e7canasta/orion-care-sensor/modules/detection-pipeline"
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/engine"
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/gstengine"
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/summarybus"
)

// reportStats periodically prints the run statistics and the latest frame
func reportStats(
	ctx context.Context,
	interval time.Duration,
	ctl *detectionpipeline.Controller,
	latest *summarybus.Latest,
	eng engine.Engine,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			printLiveStats(time.Since(startTime), ctl.Stats(), latest, eng)
		}
	}
}

func printLiveStats(
	uptime time.Duration,
	stats detectionpipeline.Stats,
	latest *summarybus.Latest,
	eng engine.Engine,
) {
	agg := stats.Aggregator

	fmt.Println()
	fmt.Println("╭─────────────────────────────────────────────────────────────────╮")
	fmt.Printf("│ Pipeline Statistics (Uptime: %v, State: %s)\n", uptime.Round(time.Second), stats.State)
	fmt.Println("├─────────────────────────────────────────────────────────────────┤")

	fmt.Println("│ Frames:")
	fmt.Printf("│   Frames Counted:     %6d frames\n", stats.Frames)
	fmt.Printf("│   FPS:                %6.2f fps\n", float64(stats.Frames)/uptime.Seconds())
	fmt.Printf("│   Overlays Attached:  %6d\n", agg.OverlaysAttached)
	fmt.Printf("│   Alloc Failures:     %6d (%.1f%%)\n",
		agg.AllocationFailures,
		dropRate(agg.Frames, agg.AllocationFailures))
	if agg.AttachErrors > 0 {
		fmt.Printf("│   Attach Errors:      %6d\n", agg.AttachErrors)
	}

	if g, ok := eng.(*gstengine.Engine); ok {
		es := g.Stats()
		fmt.Println("│")
		fmt.Println("│ Engine:")
		fmt.Printf("│   Buffers Probed:     %6d\n", es.Buffers)
		fmt.Printf("│   Buffers w/o Meta:   %6d\n", es.ReadErrors)
	}

	if s, ok := latest.TryReceive(); ok {
		fmt.Println("│")
		fmt.Println("│ Latest Frame:")
		fmt.Printf("│   %s\n", s.String())
		fmt.Printf("│   Overlay: %q (attached=%v)\n", s.Overlay, s.Attached)
	}

	fmt.Println("╰─────────────────────────────────────────────────────────────────╯")
	fmt.Println()
}

// printFinalStats prints final statistics at shutdown
func printFinalStats(stats detectionpipeline.Stats, busStats summarybus.Stats) {
	agg := stats.Aggregator

	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println("                     Final Statistics                         ")
	fmt.Println("═══════════════════════════════════════════════════════════════")

	fmt.Printf("  Run ID:                %s\n", stats.RunID)
	fmt.Printf("  Final State:           %s\n", stats.State)
	fmt.Printf("  Frames Counted:        %d frames\n", stats.Frames)
	fmt.Printf("  Overlays Attached:     %d\n", agg.OverlaysAttached)
	if agg.AllocationFailures > 0 {
		fmt.Printf("  Allocation Failures:   %d (%.1f%%)\n",
			agg.AllocationFailures,
			dropRate(agg.Frames, agg.AllocationFailures))
	}

	fmt.Println()
	fmt.Printf("  Summaries Published:   %d\n", busStats.Published)
	for id, s := range busStats.Subscribers {
		fmt.Printf("    %-15s: %d sent, %d dropped\n", id, s.Sent, s.Dropped)
	}

	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println()
}

// dropRate calculates drop percentage
func dropRate(total, drops uint64) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(drops) / float64(total) * 100.0
}
