package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	Reset  = "\033[0m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Purple = "\033[35m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"
	Bold   = "\033[1m"
)

var mu sync.Mutex

func PrintBanner() {
	banner := `
 __      __       _     _ _
 \ \    / /      (_)   | (_)
  \ \  / /__ _ __ _  __| |_  __ _ _ __
   \ \/ / _ \ '__| |/ _` + "`" + ` | |/ _` + "`" + ` | '_ \
    \  /  __/ |  | | (_| | | (_| | | | |
     \/ \___|_|  |_|\__,_|_|\__,_|_| |_|
`
	fmt.Println(Cyan + banner + Reset)
	fmt.Println(Gray + "  v1.0.0 - Context-Accumulating AI Smart Contract Audit Pipeline" + Reset)
	fmt.Println()
}

func clearLine() {
	fmt.Print("\r\033[K")
}

func UpdateStatus(format string, a ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	msg := fmt.Sprintf(format, a...)
	clearLine()

	if len(msg) > 100 {
		msg = msg[:97] + "..."
	}

	fmt.Print(Cyan + "⚡ " + msg + Reset)
}

func LogSuccess(format string, a ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	clearLine()
	fmt.Printf(Green+"[SUCCESS] "+Reset+format+"\n", a...)
}

// LogFinding announces one confirmed finding without disturbing the progress line.
func LogFinding(severity, title, contract string) {
	mu.Lock()
	defer mu.Unlock()
	clearLine()
	fmt.Printf(Red+"[FINDING] "+Reset+"%s | %s | %s\n", severity, title, contract)
}

func LogInfo(format string, a ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	clearLine()
	fmt.Printf(Blue+"[INFO] "+Reset+format+"\n", a...)
}

func LogError(format string, a ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	clearLine()
	fmt.Printf(Red+"[ERROR] "+Reset+format+"\n", a...)
}

func StartSpinner(msg string) chan bool {
	stop := make(chan bool)
	go func() {
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		i := 0
		for {
			select {
			case <-stop:
				mu.Lock()
				clearLine()
				mu.Unlock()
				return
			default:
				mu.Lock()
				clearLine()
				fmt.Printf(Cyan+"%s %s"+Reset, frames[i%len(frames)], msg)
				mu.Unlock()
				time.Sleep(100 * time.Millisecond)
				i++
			}
		}
	}()
	return stop
}

// PrintStats prints the end-of-run summary line.
func PrintStats(contracts, calls, findings int, duration time.Duration) {
	fmt.Println()
	fmt.Println(Gray + strings.Repeat("─", 50) + Reset)
	fmt.Printf("🏁 Audit completed in %s\n", duration.Round(time.Second))
	fmt.Printf("📊 Contracts: %d | 🤖 Inference calls: %d | 🛡️  Findings: %d\n", contracts, calls, findings)
	fmt.Println(Gray + strings.Repeat("─", 50) + Reset)
}
