package printer

import (
	"github.com/funnyzak/gqltap/internal/config"
	"github.com/funnyzak/gqltap/internal/logger"
	"github.com/funnyzak/gqltap/pkg/i18n"
	"github.com/funnyzak/gqltap/pkg/inspect"
	"github.com/funnyzak/gqltap/pkg/stats"
)

// Notice identifies a session event worth telling the user about.
type Notice string

const (
	NoticeCleared            Notice = "cleared"
	NoticeNavigated          Notice = "navigated"
	NoticeNavigatedPreserved Notice = "navigated_preserved"
	NoticePaused             Notice = "paused"
	NoticeResumed            Notice = "resumed"
	NoticePreserveDisabled   Notice = "preserve_disabled"
)

// Printer renders rows and the status bar.
type Printer interface {
	PrintRow(*inspect.Row) error
	PrintStats(stats.Snapshot) error
	PrintNotice(Notice) error
}

// New creates the printer for the configured output mode. Silenced output
// discards everything.
func New(cfg *config.OutputConfig, log logger.Logger, translator *i18n.Translator) Printer {
	if cfg == nil {
		cfg = &config.OutputConfig{}
	}
	if cfg.Silence {
		return Discard{}
	}

	var labels i18n.Labels
	if translator != nil {
		labels = translator.Bind(cfg.Locale)
	}

	switch cfg.Mode {
	case "json":
		return NewJSONPrinter(log, labels)
	default:
		return NewConsolePrinter(log, labels)
	}
}

// Discard is a Printer that prints nothing.
type Discard struct{}

func (Discard) PrintRow(*inspect.Row) error     { return nil }
func (Discard) PrintStats(stats.Snapshot) error { return nil }
func (Discard) PrintNotice(Notice) error        { return nil }
