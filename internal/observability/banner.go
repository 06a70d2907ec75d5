package observability

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

var startTime = time.Now()

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[92m"
	colorYellow = "\033[93m"
	colorRed    = "\033[91m"
	colorCyan   = "\033[96m"
)

var spinnerFrames = []string{"◐", "◓", "◑", "◒"}
var spinnerIdx = 0

// termMu serialises every terminal write so the status line's cursor
// save/restore is never split by a log line.
var termMu sync.Mutex

// IsTerminal reports whether stdout is an interactive terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

type termWriter struct{}

func (tw termWriter) Write(p []byte) (n int, err error) {
	termMu.Lock()
	defer termMu.Unlock()
	return os.Stderr.Write(p)
}

// NewTermWriter returns an io.Writer for log.SetOutput that never interleaves
// with PrintLiveStatus.
func NewTermWriter() *termWriter {
	return &termWriter{}
}

func PrintBanner() {
	fmt.Print("\033[2J\033[H")

	banner := `
  _   _  ___  __  __ _____ ____   ___ _____
 | | | |/ _ \|  \/  | ____| __ ) / _ \_   _|
 | |_| | | | | |\/| |  _| |  _ \| | | || |
 |  _  | |_| | |  | | |___| |_) | |_| || |
 |_| |_|\___/|_|  |_|_____|____/ \___/ |_|

        >> one room at a time <<
`

	width := termWidth()
	for _, l := range strings.Split(banner, "\n") {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		fmt.Printf("%s%s%s\n", strings.Repeat(" ", padding), colorCyan+l, colorReset)
	}
}

// InitializeTerminal reserves lines 1-11 for the banner and status line and
// scrolls logs from line 12 down.
func InitializeTerminal() {
	fmt.Print("\033[12;r")
	fmt.Print("\033[12;1H")
}

func CleanupTerminal() {
	fmt.Print("\033[r\033[2J\033[H")
}

func PrintLiveStatus() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	memMB := float64(m.Alloc) / 1024 / 1024
	uptime := time.Since(startTime).Round(time.Second)

	role, task, lastHB := GetStatus()

	pulse, pulseColor := "HEALTHY", colorGreen
	switch delta := time.Since(lastHB); {
	case delta >= 90*time.Second:
		pulse, pulseColor = "OFFLINE", colorRed
	case delta >= 40*time.Second:
		pulse, pulseColor = "LAGGING", colorYellow
	}

	spinner := " "
	if role != RoleIdle {
		spinner = spinnerFrames[spinnerIdx]
		spinnerIdx = (spinnerIdx + 1) % len(spinnerFrames)
	}

	if task == "" {
		task = "waiting"
	}
	if r := []rune(task); len(r) > 25 {
		task = string(r[:22]) + "..."
	}

	statusStr := fmt.Sprintf(
		"\033[s\033[10;1H\033[K[%s] %s%-7s%s | %-9s %s %-25s | tasks done: %d | up %v | %.1fMB\033[u",
		lastHB.Format("15:04:05"),
		pulseColor, pulse, colorReset,
		role, spinner, task,
		TasksCompleted(),
		uptime,
		memMB,
	)

	termMu.Lock()
	fmt.Print(statusStr)
	termMu.Unlock()
}
