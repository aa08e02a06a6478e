// Package app wires the pieces a shell session needs: paths, the loaded rc
// configuration, the command executor and filesystem, the persistent
// history store, the audit logger and the metrics registry.
//
// Commands use app.Default; tests build their own with options:
//
//	a := app.New(app.WithPaths(paths), app.WithoutHistory())
//	if err := a.LoadConfig(rcFlag, norc); err != nil {
//	    return err
//	}
//	core, err := a.NewCore(shellEnd)
//
// The history store and the audit logger are created on first use. Close
// closes the history store.
package app
