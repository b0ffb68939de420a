// Package pipeline implements the dictionary train/compress pipeline.
//
// One coordinator repeatedly trains a compression dictionary from samples of
// the lookahead window at the cursor while a second coordinator compresses the
// source window by window with the dictionary generations the first one
// publishes. The two meet at a single shared Slot rather than a queue: the
// slot's state (Empty, Ready, Terminal, Aborted) decides whose turn it is.
//
// After every window a RetrainPolicy decides whether the slot asks for a new
// dictionary (Empty), keeps reusing the current one (Ready) or stops training
// (Terminal):
//
//   - continuous: retrain after every window
//   - once: train one dictionary and pin it for the whole run
//   - adaptive: retrain when the compression signal drops by more than a threshold
//   - adaptive-floor: adaptive, and also retrain when the signal falls below a floor
//
// By default a window is compressed with the generation published before the
// latest one, because the latest one was trained on samples of that very window.
//
// Basic usage:
//
//	p, err := pipeline.New(data,
//	    pipeline.WithTrainChunkSize(1<<20),
//	    pipeline.WithCompressChunkSize(1<<20),
//	    pipeline.WithPolicy(format.PolicyAdaptive),
//	)
//	if err != nil {
//	    return err
//	}
//	report, err := p.Run(ctx)
//
// Non-fatal conditions (not enough data left to train, trainer failure) put
// the slot in Terminal and compression continues with the last generation.
// Copy failures, bounds violations and context cancellation abort the run.
package pipeline
