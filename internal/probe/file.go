package probe

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"

	"etlwatch/internal/config"
)

type fileProbe struct {
	check config.Check
}

func (p *fileProbe) Measure(_ context.Context) Result {
	result := Result{
		Pipeline:   p.check.Name,
		Kind:       p.check.Kind,
		MeasuredAt: time.Now(),
	}

	info, err := os.Stat(p.check.Path)
	switch {
	case err == nil:
		result.Exists = true
		result.Age = time.Since(info.ModTime())
		result.LastRecord = info.ModTime()
	case errors.Is(err, fs.ErrNotExist):
		// Absence is a measurement, not a probe failure.
	default:
		result.Err = err.Error()
	}
	return result
}
