package logger

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// GormLog 把gorm的SQL日志转到logrus，实现gorm logger.Writer
type GormLog struct {
	clog *log.Logger
}

var DbLog *GormLog

func InitDbLog(clog *log.Logger) {
	DbLog = &GormLog{
		clog: clog,
	}
}

func (d *GormLog) Printf(format string, args ...interface{}) {
	logStr := strings.TrimSpace(fmt.Sprintf(format, args...))
	d.clog.WithField("caller", "gorm").Info(logStr)
}
