package main

import (
	"fmt"
	"io"
	"time"

	"github.com/aelexs/time-engine/internal/domain"
	"github.com/aelexs/time-engine/internal/tzconv"
)

func runConvert(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("convert", stderr)
	tz := fs.String("tz", "", "IANA timezone (default: detected host zone)")
	toUTC := fs.String("to-utc", "", "local wall-clock time to convert, e.g. 2024-01-01T10:00")
	fromUTC := fs.String("from-utc", "", "UTC instant to convert, e.g. 2024-01-01T15:00:00.000Z")
	pattern := fs.String("pattern", "", "date-fns style pattern for -from-utc output, e.g. \"EEE, MMM d 'at' h:mm a\"")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*toUTC == "") == (*fromUTC == "") {
		fs.Usage()
		return fmt.Errorf("exactly one of -to-utc or -from-utc is required: %w", errUsage)
	}

	converter := tzconv.NewConverter()
	zone := *tz
	if zone == "" {
		detected, method := converter.DetectSystemTimezone()
		zone = detected
		dimColor.Fprintf(stdout, "using host timezone %s (%s)\n", zone, method)
	}

	if *toUTC != "" {
		local, err := tzconv.ParseLocal(*toUTC)
		if err != nil {
			return err
		}
		res := converter.ToUTC(local, zone)
		field(stdout, "timezone", zone)
		field(stdout, "local", local.Format("2006-01-02T15:04:05"))
		field(stdout, "utc", domain.FormatInstant(res.Time))
		warnDegraded(stdout, zone, res.Degraded)
		return nil
	}

	instant, err := domain.ParseInstant(*fromUTC)
	if err != nil {
		return err
	}
	res := converter.FromUTC(instant, zone)
	field(stdout, "timezone", zone)
	field(stdout, "utc", domain.FormatInstant(instant))
	field(stdout, "local", res.Time.Format(time.DateTime+" MST"))
	degraded := res.Degraded
	if *pattern != "" {
		f := converter.Format(instant, *pattern, zone)
		field(stdout, "formatted", f.Text)
		degraded = degraded || f.Degraded
	}
	warnDegraded(stdout, zone, degraded)
	return nil
}

func warnDegraded(w io.Writer, zone string, degraded bool) {
	if degraded {
		warnColor.Fprintf(w, "warning: timezone %q is unknown; the time was not shifted\n", zone)
	}
}
