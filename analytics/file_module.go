package analytics

import (
	"bytes"

	"github.com/chasex/glog"
)

// FileLogger is a Module that writes one JSON line per transaction to a
// daily-rotated file.
type FileLogger struct {
	Logger *glog.Logger
}

// Writes ScreeningObject to file
func (f *FileLogger) LogScreeningObject(so *ScreeningObject) {
	var b bytes.Buffer
	b.WriteString(so.ToJson())
	f.Logger.Debug(b.String())
	f.Logger.Flush()
}

// Method to initialize the analytic module
func NewFileLogger(filename string) (Module, error) {
	options := glog.LogOptions{
		File:  filename,
		Flag:  glog.LstdFlags,
		Level: glog.Ldebug,
		Mode:  glog.R_Day,
	}
	if logger, err := glog.New(options); err == nil {
		return &FileLogger{
			logger,
		}, nil
	} else {
		return nil, err
	}
}
