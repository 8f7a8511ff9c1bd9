package cli

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"ffqueue/internal/model"
)

var (
	reFFSpeed = regexp.MustCompile(`\bspeed=\s*([^\s]+)`)
	reFFFps   = regexp.MustCompile(`\bfps=\s*([0-9.]+)`)
	reFFBr    = regexp.MustCompile(`\bbitrate=\s*([0-9.]+)\s*([kKmMgG])bits/s`)
)

type activeSource interface {
	Active() (model.Job, bool)
}

// liveProgress redraws a single status line for the running job.
type liveProgress struct {
	enabled bool
	source  activeSource
	order   map[string]int
	total   int

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func newLiveProgress(enabled bool, source activeSource, ids []string) *liveProgress {
	order := make(map[string]int, len(ids))
	for i, id := range ids {
		order[id] = i + 1
	}
	return &liveProgress{
		enabled: enabled,
		source:  source,
		order:   order,
		total:   len(ids),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (p *liveProgress) Start() {
	if !p.enabled {
		close(p.done)
		return
	}
	go func() {
		defer close(p.done)
		t := time.NewTicker(500 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-t.C:
				job, ok := p.source.Active()
				if !ok {
					continue
				}
				fmt.Printf("\r\033[2K%s", renderLiveLine(job, p.order[job.ID], p.total))
			}
		}
	}()
}

func (p *liveProgress) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
		<-p.done
		if p.enabled {
			fmt.Print("\r\033[2K")
		}
	})
}

func renderLiveLine(job model.Job, index, total int) string {
	parts := []string{}
	if index > 0 && total > 0 {
		parts = append(parts, fmt.Sprintf("[%d/%d]", index, total))
	}
	parts = append(parts, truncateRunes(job.DisplayName(), 40), job.Info)

	last := ""
	if n := len(job.Logs); n > 0 {
		last = job.Logs[n-1]
	}
	if m := reFFFps.FindStringSubmatch(last); len(m) > 1 {
		parts = append(parts, m[1]+" fps")
	}
	if m := reFFBr.FindStringSubmatch(last); len(m) > 2 {
		if rate := ffmpegBitrateToDisplay(m[1], m[2]); rate != "" {
			parts = append(parts, rate)
		}
	}
	if m := reFFSpeed.FindStringSubmatch(last); len(m) > 1 {
		parts = append(parts, "speed "+m[1])
	}
	return strings.Join(parts, "  ")
}

func ffmpegBitrateToDisplay(num, unit string) string {
	f, err := strconv.ParseFloat(num, 64)
	if err != nil || f <= 0 {
		return ""
	}
	var mbps float64
	switch strings.ToUpper(strings.TrimSpace(unit)) {
	case "K":
		mbps = f / 1000.0
	case "M":
		mbps = f
	case "G":
		mbps = f * 1000.0
	default:
		return ""
	}
	return fmt.Sprintf("%.2f Mb/s", mbps)
}
