package pushmetrics

import (
	"context"

	"github.com/smallbiznis/tally/internal/config"
	"github.com/smallbiznis/tally/internal/lock"
	sitedomain "github.com/smallbiznis/tally/internal/site/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("push.metrics",
	fx.Provide(NewPusher),
	fx.Invoke(register),
)

type params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Pusher    Pusher
	Sites     sitedomain.Service
	Locker    *lock.Locker `optional:"true"`
	Log       *zap.Logger
}

func register(p params) {
	if p.Pusher == nil {
		return
	}
	w := NewWorker(NewCollector(p.Config.AppVersion), p.Pusher, p.Sites, p.Locker, p.Config.MetricsPush.Interval, p.Log)
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			w.Start()
			return nil
		},
		OnStop: w.Stop,
	})
}
