package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"TTSCurator/pkg/logger"
)

type Job interface{ Run(ctx context.Context) }

type FuncJob func(ctx context.Context)

func (f FuncJob) Run(ctx context.Context) { f(ctx) }

// cronLogger 把 cron 内部日志转到 zap
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Lg.Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Lg.Sugar().Errorw("cron: "+msg, append(keysAndValues, zap.Error(err))...)
}

// Cron wraps robfig/cron with panic recovery and a cancellable job context.
type Cron struct {
	c      *cron.Cron
	loc    *time.Location
	ctx    context.Context
	cancel context.CancelFunc
}

func NewCron(loc *time.Location) *Cron {
	if loc == nil {
		loc = time.Local
	}
	l := cronLogger{}
	c := cron.New(cron.WithLocation(loc), cron.WithLogger(l), cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)))
	ctx, cancel := context.WithCancel(context.Background())
	return &Cron{c: c, loc: loc, ctx: ctx, cancel: cancel}
}

func (cr *Cron) Start() { cr.c.Start() }

// Stop 取消运行中任务的 ctx 并等待其结束
func (cr *Cron) Stop() {
	cr.cancel()
	<-cr.c.Stop().Done()
}

func (cr *Cron) Add(expr string, job Job) (cron.EntryID, error) {
	return cr.c.AddFunc(expr, func() { job.Run(cr.ctx) })
}

func (cr *Cron) Entries() []cron.Entry { return cr.c.Entries() }
