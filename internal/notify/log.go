package notify

import (
	"context"
	"log"
	"os"
)

// LogDispatcher writes notifications to a logger. Used when no desktop
// shell is attached.
type LogDispatcher struct {
	logger *log.Logger
}

// NewLogDispatcher creates a LogDispatcher.
func NewLogDispatcher(logger *log.Logger) *LogDispatcher {
	if logger == nil {
		logger = log.New(os.Stdout, "[notify] ", log.LstdFlags)
	}
	return &LogDispatcher{logger: logger}
}

// Dispatch logs n.
func (d *LogDispatcher) Dispatch(_ context.Context, n Notification) error {
	d.logger.Printf("%s %s: %s | %s (%s)", n.Kind, n.ID, n.Title, n.Body, n.Route)
	return nil
}

// Navigate logs route.
func (d *LogDispatcher) Navigate(_ context.Context, route string) error {
	d.logger.Printf("navigate %s", route)
	return nil
}

var (
	_ Dispatcher = (*LogDispatcher)(nil)
	_ Navigator  = (*LogDispatcher)(nil)
)
