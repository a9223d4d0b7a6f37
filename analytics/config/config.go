package config

import (
	"github.com/golang/glog"

	"github.com/bidscreen/bidscreen-server/analytics"
	"github.com/bidscreen/bidscreen-server/config"
)

// NewAnalytics assembles the enabled analytics modules into one Module.
// Transactions are logged to every enabled module.
func NewAnalytics(analyticsConf *config.Analytics) analytics.Module {
	modules := make(enabledAnalytics, 0)
	if len(analyticsConf.File.Filename) > 0 {
		if mod, err := analytics.NewFileLogger(analyticsConf.File.Filename); err == nil {
			modules = append(modules, mod)
		} else {
			glog.Fatalf("Could not initialize FileLogger for file %v :%v", analyticsConf.File.Filename, err)
		}
	}
	return modules
}

// enabledAnalytics is a collection of analytics modules, writing each
// transaction to all of them.
type enabledAnalytics []analytics.Module

func (ea enabledAnalytics) LogScreeningObject(so *analytics.ScreeningObject) {
	for _, module := range ea {
		module.LogScreeningObject(so)
	}
}
