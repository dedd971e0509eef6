package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/aggregator"
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/engine"
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/graph"
	"github.com/e7canasta/orion-care-sensor/modules/detection-pipeline/internal/meta"
)

// syntheticFPS is the frame rate of the dry-run feed.
const syntheticFPS = 30

// syntheticClasses cycles through detections so every counted category
// and one ignored class show up.
var syntheticClasses = [][]int{
	{aggregator.ClassPerson},
	{aggregator.ClassVehicle, aggregator.ClassVehicle},
	{aggregator.ClassPerson, aggregator.ClassVehicle, aggregator.ClassRoadsign},
	{},
	{aggregator.ClassTwoWheeler, aggregator.ClassPerson, aggregator.ClassPerson},
}

// feedSynthetic pushes one single-frame batch per tick into the probe of the
// display stage until ctx is done, the way the muxer would with batch-size 1.
func feedSynthetic(ctx context.Context, m *engine.Memory, logger *slog.Logger) {
	ticker := time.NewTicker(time.Second / syntheticFPS)
	defer ticker.Stop()

	logger.Info("Dry run: feeding synthetic detections", "fps", syntheticFPS)

	for frameNum := 0; ; frameNum++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Push(graph.StageOSD, syntheticBatch(frameNum))
		}
	}
}

func syntheticBatch(frameNum int) *meta.Batch {
	classes := syntheticClasses[frameNum%len(syntheticClasses)]
	objs := make([]meta.Object, len(classes))
	for i, c := range classes {
		objs[i] = meta.Object{ClassID: c, TrackingID: uint64(i + 1), Confidence: 0.9}
	}
	return &meta.Batch{Frames: []*meta.Frame{meta.NewFrame(0, frameNum, objs, nil)}}
}
