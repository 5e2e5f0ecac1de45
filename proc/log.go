package proc

import (
	"fmt"
	"log/slog"
)

// proc must not import sys. These mirror sys.LogQueue and sys.LogPresenter.

func logQueue(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "queue"))
}

func logPresenter(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "presenter"))
}
