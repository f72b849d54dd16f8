// Package audit bridges sluice lifecycle events to an audit trail
// backend. Register the extension and every admission decision, execution
// outcome, and limit notification becomes a structured audit event.
//
// The package defines its own Recorder interface so it stays decoupled
// from any specific audit system; callers inject an adapter at wiring
// time:
//
//	trail := audit.New(audit.RecorderFunc(func(ctx context.Context, evt *audit.Event) error {
//	    return myAuditBackend.Write(ctx, evt.Action, evt.Metadata)
//	}))
//	eng, _ := engine.Build(s, engine.WithExtension(trail))
package audit
