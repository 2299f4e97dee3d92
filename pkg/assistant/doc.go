// Package assistant coordinates a face-gated voice conversation.
//
// An Orchestrator watches a face signal and a voice-activity signal. When a
// face appears while Detecting it opens the microphone (Listening). A
// finished utterance is transcribed, sent to a conversational model together
// with recent history, and the reply is spoken back (Processing, Speaking).
// Failures surface on an error stream and park the machine in Error for a
// short recovery delay.
//
//	Idle -> Detecting -> Listening -> Processing -> Speaking -> Detecting|Idle
//
// Observers read immutable snapshots:
//
//	o, _ := assistant.New(faces, voice, convo, assistant.WithFreeMode(true))
//	defer o.Release()
//	snaps, unsubscribe := o.Subscribe()
//	defer unsubscribe()
//	if err := o.Start(ctx); err != nil { ... }
//	for s := range snaps { fmt.Println(s.State) }
//
// All mutations happen on one internal goroutine, so intents may be called
// from any goroutine.
package assistant
