package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const Clear = "\033[2K\r"

// ProgressBar tracks batch progress within one analysis phase.
type ProgressBar struct {
	total       int
	current     int
	findings    int
	startTime   time.Time
	description string
	mu          sync.Mutex
	width       int
}

func NewProgressBar(total int, description string) *ProgressBar {
	return &ProgressBar{
		total:       total,
		startTime:   time.Now(),
		description: description,
		width:       40,
	}
}

func (pb *ProgressBar) Increment() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current++
	pb.render()
}

// AddFindings bumps the live finding counter; the next render shows it.
func (pb *ProgressBar) AddFindings(n int) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.findings += n
}

func (pb *ProgressBar) PrintMsg(msg string) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	fmt.Print(Clear)
	fmt.Println(msg)
	pb.render()
}

func (pb *ProgressBar) Finish() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current = pb.total
	fmt.Print(Clear)
	pb.render()
	fmt.Println()
}

func (pb *ProgressBar) render() {
	if pb.total == 0 {
		return
	}
	percent := float64(pb.current) / float64(pb.total)
	if percent > 1.0 {
		percent = 1.0
	}

	filled := int(float64(pb.width) * percent)
	bar := strings.Repeat("=", filled)
	if filled < pb.width {
		bar += ">" + strings.Repeat(".", pb.width-filled-1)
	} else {
		bar = strings.Repeat("=", pb.width)
	}

	elapsed := time.Since(pb.startTime)
	rate := float64(pb.current) / elapsed.Seconds()
	remaining := time.Duration(0)
	if rate > 0 {
		remaining = time.Duration(float64(pb.total-pb.current)/rate) * time.Second
	}
	etaStr := fmt.Sprintf("%02dm%02ds", int(remaining.Minutes()), int(remaining.Seconds())%60)

	barColor := Cyan
	if percent >= 1.0 {
		barColor = Green
	}

	findColor := Green
	if pb.findings > 0 {
		findColor = Red
	}

	fmt.Printf("%s%s %s[%s]%s %.0f%% | %d/%d | ETA: %s | Findings: %s%d%s \n",
		Clear,
		pb.description,
		barColor, bar, Reset,
		percent*100,
		pb.current, pb.total,
		etaStr,
		findColor, pb.findings, Reset,
	)
}
