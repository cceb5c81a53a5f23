// Package process supervises a long-running child process.
//
// The bridge runs its Python host through a Supervisor: the child's stdin
// and stdout are handed to Config.Attach for the line protocol, stderr is
// logged, and the last stderr line is folded into the exit error so a
// missing module or a traceback shows up in Stats. Unexpected exits are
// restarted with exponential backoff. Health check failures kill the
// process group.
//
//	sup := process.NewSupervisor(process.Config{
//	    Name:             "python-host",
//	    Binary:           "python3",
//	    Args:             []string{"-u", "-c", hostSource},
//	    RestartOnFailure: true,
//	    Attach:           interp.Attach,
//	})
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	defer sup.Stop()
package process
