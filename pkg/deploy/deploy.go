// Package deploy moves a service to a requested version and, when that
// does not leave it healthy, back to the version it ran before.
//
// A deployment goes through these stages:
//
//     start -> resolve-current -> forward-update -> forward-healthcheck
//       -> success
//       -> rollback-update -> rollback-healthcheck
//            -> rollback-success
//            -> rollback-failed
//       -> no-rollback
//
// and, unless it stops at a configuration problem before anything is
// touched, ends with exactly one entry in the audit log.
package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"

	"github.com/laconorg/deployer/pkg/audit"
	"github.com/laconorg/deployer/pkg/cluster"
	deployerr "github.com/laconorg/deployer/pkg/errors"
	"github.com/laconorg/deployer/pkg/health"
	"github.com/laconorg/deployer/pkg/lock"
	"github.com/laconorg/deployer/pkg/metrics"
	"github.com/laconorg/deployer/pkg/state"
	"github.com/laconorg/deployer/pkg/version"
)

type Stage string

const (
	StageStart               Stage = "start"
	StageResolveCurrent      Stage = "resolve-current"
	StageForwardUpdate       Stage = "forward-update"
	StageForwardHealthcheck  Stage = "forward-healthcheck"
	StageSuccess             Stage = "success"
	StageRollbackUpdate      Stage = "rollback-update"
	StageRollbackHealthcheck Stage = "rollback-healthcheck"
	StageRollbackSuccess     Stage = "rollback-success"
	StageRollbackFailed      Stage = "rollback-failed"
	StageNoRollback          Stage = "no-rollback"
)

const DefaultUpdateTimeout = 300 * time.Second

// Engine carries out deployments. It keeps nothing between
// deployments; the version running is read afresh from State each
// time.
type Engine struct {
	State      state.State
	Controller cluster.Controller
	Prober     health.Prober
	Audit      audit.Writer
	Logger     log.Logger
	// UpdateTimeout bounds pulling and starting a version.
	UpdateTimeout time.Duration
	// Lock, if true, makes the engine hold the lock for the version
	// file for the whole of a deployment, waiting up to LockTimeout
	// for it.
	Lock        bool
	LockTimeout time.Duration
	Clock       clockwork.Clock
}

func (e *Engine) logger() log.Logger {
	if e.Logger == nil {
		return log.NewNopLogger()
	}
	return e.Logger
}

func (e *Engine) now() time.Time {
	if e.Clock == nil {
		return time.Now().UTC()
	}
	return e.Clock.Now().UTC()
}

func (e *Engine) updateTimeout() time.Duration {
	if e.UpdateTimeout <= 0 {
		return DefaultUpdateTimeout
	}
	return e.UpdateTimeout
}

// Deploy moves the target to the version it names, rolling back if
// need be, and reports the outcome. An error with no outcome is a
// configuration problem (see errors.IsConfig), and nothing has been
// changed. An error with an outcome means the deployment ran its
// course; when the outcome is OutcomeRollbackFailed it is the rollback
// error (see errors.IsRollback), and otherwise the outcome could not be
// recorded in the audit log.
func (e *Engine) Deploy(ctx context.Context, t Target) (audit.Outcome, error) {
	started := e.now()
	logger := log.With(e.logger(), "deployment", uuid.New().String(), "host", t.Hostname)
	if t.TriggeredBy != "" {
		logger = log.With(logger, "triggered_by", t.TriggeredBy)
	}
	e.stage(logger, StageStart, nil, "requested", t.Version)

	if err := t.Validate(); err != nil {
		logger.Log("err", err)
		return "", err
	}
	requested := t.Short()

	if e.Lock {
		held, err := e.acquire(ctx, t)
		if err != nil {
			logger.Log("err", err)
			return "", err
		}
		defer held.Release()
	}

	previous, err := e.resolveCurrent(ctx)
	e.stage(logger, StageResolveCurrent, err, "previous", version.Display(previous))
	if err != nil {
		return "", err
	}

	if err := e.transition(ctx, logger, t, requested, StageForwardUpdate, StageForwardHealthcheck); err == nil {
		e.stage(logger, StageSuccess, nil)
		return e.finish(logger, t, started, requested, previous, audit.OutcomeSuccess)
	}

	if previous == "" || previous == requested {
		e.stage(logger, StageNoRollback, nil, "previous", version.Display(previous))
		return e.finish(logger, t, started, requested, previous, audit.OutcomeNoRollback)
	}

	if err := e.transition(ctx, logger, t, previous, StageRollbackUpdate, StageRollbackHealthcheck); err != nil {
		rollbackErr := &deployerr.Error{
			Type: deployerr.Rollback,
			Err:  errors.Wrapf(err, "rolling back to %s", version.Tag(previous)),
			Help: fmt.Sprintf(`Deploying %s failed, and so did going back to %s.

The service on %s may be down; check it by hand. The version file
%s may record either version, and neither is known to be running.
`, version.Tag(requested), version.Tag(previous), t.Hostname, e.State),
		}
		e.stage(logger, StageRollbackFailed, rollbackErr)
		outcome, err := e.finish(logger, t, started, requested, previous, audit.OutcomeRollbackFailed)
		if err != nil {
			return outcome, err
		}
		return outcome, rollbackErr
	}
	e.stage(logger, StageRollbackSuccess, nil)
	return e.finish(logger, t, started, requested, previous, audit.OutcomeRolledBack)
}

func (e *Engine) acquire(ctx context.Context, t Target) (*lock.FileLock, error) {
	path := lock.PathFor(t.VersionFile)
	var (
		held *lock.FileLock
		err  error
	)
	if e.LockTimeout <= 0 {
		held, err = lock.TryAcquire(path)
	} else {
		lockCtx, cancel := context.WithTimeout(ctx, e.LockTimeout)
		held, err = lock.Acquire(lockCtx, path)
		cancel()
	}
	if err != nil {
		return nil, deployerr.ConfigError(err, fmt.Sprintf(`Another deployment to %s is in progress.

Only one deployment at a time may use the version file %s. Wait for
the other one to finish, then try again. Nothing has been changed on
the host.
`, t.Hostname, t.VersionFile))
	}
	return held, nil
}

// resolveCurrent returns the short identifier of the version recorded
// as running, or "" if there is none.
func (e *Engine) resolveCurrent(ctx context.Context) (string, error) {
	stored, err := e.State.Current(ctx)
	if err != nil {
		return "", deployerr.ConfigError(
			errors.Wrapf(err, "reading current version from %s", e.State),
			fmt.Sprintf(`The version currently deployed could not be read from %s.

Nothing has been changed on the host.
`, e.State),
		)
	}
	if stored == "" {
		return "", nil
	}
	if err := version.Validate(stored); err != nil {
		return "", deployerr.ConfigError(
			errors.Wrapf(err, "current version in %s", e.State),
			fmt.Sprintf(`The version recorded in %s (%q) is not one that could have
been deployed, so it is not safe to roll back to.

Correct or remove the entry, then try again. Nothing has been changed
on the host.
`, e.State, stored),
		)
	}
	return version.Normalize(stored), nil
}

// transition records the version, starts it, and waits for it to
// become healthy. The first failure is returned.
func (e *Engine) transition(ctx context.Context, logger log.Logger, t Target, short string, update, healthcheck Stage) error {
	err := e.update(ctx, short)
	e.stage(logger, update, err, "version", version.Tag(short))
	if err != nil {
		return err
	}

	err = e.Prober.Probe(ctx, t.Hostname)
	e.stage(logger, healthcheck, err, "version", version.Tag(short))
	return err
}

func (e *Engine) update(ctx context.Context, short string) error {
	if err := e.State.Record(ctx, short); err != nil {
		return &deployerr.Error{
			Type: deployerr.Transition,
			Err:  errors.Wrapf(err, "recording %s in %s", version.Tag(short), e.State),
			Help: "The version file could not be updated.",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.updateTimeout())
	defer cancel()
	if err := e.Controller.Deploy(ctx, short); err != nil {
		return &deployerr.Error{
			Type: deployerr.Transition,
			Err:  errors.Wrapf(err, "starting %s", version.Tag(short)),
			Help: "Pulling or starting the service failed.",
		}
	}
	return nil
}

func (e *Engine) stage(logger log.Logger, stage Stage, err error, keyvals ...interface{}) {
	stageCount.With(
		metrics.LabelStage, string(stage),
		metrics.LabelSuccess, fmt.Sprint(err == nil),
	).Add(1)
	keyvals = append([]interface{}{"stage", stage}, keyvals...)
	if err != nil {
		keyvals = append(keyvals, "err", err)
	}
	logger.Log(keyvals...)
}

func (e *Engine) finish(logger log.Logger, t Target, started time.Time, requested, previous string, outcome audit.Outcome) (audit.Outcome, error) {
	deployDuration.With(
		metrics.LabelOutcome, string(outcome),
	).Observe(e.now().Sub(started).Seconds())

	entry := audit.Entry{
		Time:        e.now(),
		Hostname:    t.Hostname,
		Version:     requested,
		Outcome:     outcome,
		Previous:    previous,
		TriggeredBy: t.TriggeredBy,
	}
	logger.Log("level", outcome.LogLevel(), "outcome", outcome, "exit", outcome.ExitCode())
	if err := e.Audit.Append(entry); err != nil {
		logger.Log("err", errors.Wrap(err, "writing audit log"))
		return outcome, errors.Wrap(err, "writing audit log")
	}
	return outcome, nil
}
