package main

import (
	"time"
)

const redactedMedia = "[expired]"

func init() {
	parser.AddCommand("housekeeping",
		"Redact expired media links",
		"Replace media links of messages older than media.retention_days. Rows are kept.",
		&HousekeepingCommand{},
	)
}

// HousekeepingCommand struct
type HousekeepingCommand struct {
	Batch int `short:"b" long:"batch" default:"500" description:"Rows updated per query."`
}

// Execute command
func (x *HousekeepingCommand) Execute(args []string) error {
	config := LoadConfig(options.Config)
	setupLogger(config.LogLevel)
	orm := NewDb(config)
	defer orm.Close()

	n, err := housekeep(orm, config.Media.RetentionDays, x.Batch, time.Now())
	if err != nil {
		return err
	}

	logger.Infof("housekeeping: %d media links redacted", n)

	return nil
}

func housekeep(orm *Orm, retentionDays, batch int, now time.Time) (int, error) {
	if batch <= 0 {
		batch = 500
	}

	return orm.redactMedia(now.AddDate(0, 0, -retentionDays), batch)
}
