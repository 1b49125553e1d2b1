package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/JakeFAU/progress-tracker/internal/progress"
)

// Plain writes one line per snapshot, suitable for pipes and CI logs.
type Plain struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPlain returns a Plain renderer writing to out.
func NewPlain(out io.Writer) *Plain {
	return &Plain{out: out}
}

// Render writes e.g. "[ 40%] ✔ Fetch | ➜ Parse | ○ Step 3 | ○ Step 4 | ○ Step 5".
func (p *Plain) Render(s progress.Snapshot) {
	v := BuildView(s)
	parts := make([]string, 0, len(v.Slots))
	for _, slot := range v.Slots {
		parts = append(parts, slot.Icon+" "+slot.Message)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "[%3.0f%%] %s\n", v.Percent, strings.Join(parts, " | "))
}

// ShowError writes the message prefixed with "error:".
func (p *Plain) ShowError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "error: %s\n", message)
}
