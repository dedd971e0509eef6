// Package detectionpipeline runs a single-camera DeepStream detection
// pipeline: USB camera capture, primary inference, tracking and an
// on-screen display annotated with per-frame person and vehicle counts.
//
// # Quick Start
//
//	cfg := appconfig.Default()
//	cfg.Device = "/dev/video1"
//
//	eng, err := gstengine.New("dstest1-cam-pipeline")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctl, err := detectionpipeline.New(cfg, eng)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := ctl.Build(ctx); err != nil {
//	    log.Fatal(err) // the partial graph is already released
//	}
//	if err := ctl.Start(); err == nil {
//	    reason, err := ctl.Wait(ctx)
//	    log.Printf("stopped: %v %v", reason, err)
//	}
//	ctl.Teardown()
//
// # Lifecycle
//
//	Unconfigured → Built → Running → Stopped(EOS) | Stopped(Error) → TornDown
//
// Build fails without leaving the Unconfigured state: the tracker config
// is loaded first, then the graph is built stage by stage and every stage
// created so far is removed on the first failure. Wait is the only
// blocking call. ForceStop queues an end-of-stream and returns; the graph
// is released by Teardown, which runs once.
//
// # Graph
//
// The stage graph is fixed per platform (see graph.Variant). On Jetson
// (platform "tegra") an nvegltransform stage sits between the display and
// the EGL sink; on dGPU it is absent. Each link is checked against the
// format contracts of both ends before the engine is asked to link them.
//
// # Frame Processing
//
// The aggregator runs as a buffer probe on the display's input. For every
// frame it counts people (class 2) and vehicles (class 0), attaches the
// overlay "Person = <n> Vehicle = <n> " at (10,12) and logs
//
//	Frame Number = <n> Number of objects = <total> Person Count = <p> Vehicle Count = <v>
//
// where <n> is the run counter before the frame was counted.
package detectionpipeline
