package render

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/JakeFAU/progress-tracker/internal/progress"
)

// Renderer is implemented by every renderer in this package.
type Renderer interface {
	Render(s progress.Snapshot)
	ShowError(message string)
}

// Output modes accepted by New.
const (
	ModeTerminal = "terminal"
	ModeLog      = "log"
	ModePlain    = "plain"
)

// New selects a renderer by mode.
func New(mode string, out io.Writer, subject string, logger *zap.Logger) (Renderer, error) {
	switch mode {
	case ModeTerminal, "":
		return NewTerminal(out, subject), nil
	case ModePlain:
		return NewPlain(out), nil
	case ModeLog:
		return NewLog(logger), nil
	default:
		return nil, fmt.Errorf("unknown render mode %q", mode)
	}
}
