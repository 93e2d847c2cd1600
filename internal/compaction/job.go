package compaction

import "context"

// RestartGuard is a scope-bound exclusive handle on the compaction job: it
// pauses the scheduler on acquisition and unconditionally restarts it on
// Release, regardless of what the holder did in between (including a
// panic, since Release is meant to be called via defer). Maintenance
// operations that must briefly quiesce compaction take one of these instead
// of calling Stop/Start directly, so they can never forget the resume half.
type RestartGuard struct {
	job *Job
	ctx context.Context
}

// RestartGuard acquires the job's exclusive lock, pauses the scheduler, and
// returns a guard whose Release resumes it. The caller should immediately
// `defer guard.Release()`.
func (j *Job) RestartGuard(ctx context.Context) *RestartGuard {
	j.mu.Lock()
	j.inner.enableCompaction.Store(false)
	return &RestartGuard{job: j, ctx: ctx}
}

// Release unconditionally restarts the scheduler and releases the job's
// exclusive lock, mirroring the reference implementation's Drop impl on its
// restart guard.
func (g *RestartGuard) Release() {
	defer g.job.mu.Unlock()
	g.job.StartVnodeCompactionJob(g.ctx)
}
